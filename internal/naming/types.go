package naming

// extensionTypes maps lower-case extensions to MIME types. It is fixed rather
// than read from the host's mime.types so keys resolve identically everywhere.
var extensionTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".jpe":  "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".webp": "image/webp",
	".bmp":  "image/bmp",
	".tif":  "image/tiff",
	".tiff": "image/tiff",
	".svg":  "image/svg+xml",
	".ico":  "image/vnd.microsoft.icon",
	".heic": "image/heic",
	".avif": "image/avif",

	".mp3":  "audio/mpeg",
	".wav":  "audio/x-wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".mp4":  "video/mp4",
	".mov":  "video/quicktime",
	".webm": "video/webm",
	".avi":  "video/x-msvideo",

	".txt":  "text/plain",
	".csv":  "text/csv",
	".tsv":  "text/tab-separated-values",
	".htm":  "text/html",
	".html": "text/html",
	".css":  "text/css",
	".md":   "text/markdown",
	".xml":  "application/xml",
	".json": "application/json",
	".js":   "text/javascript",
	".yaml": "application/yaml",
	".yml":  "application/yaml",

	".pdf":     "application/pdf",
	".doc":     "application/msword",
	".docx":    "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	".xls":     "application/vnd.ms-excel",
	".xlsx":    "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	".ppt":     "application/vnd.ms-powerpoint",
	".pptx":    "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	".parquet": "application/vnd.apache.parquet",

	".zip": "application/zip",
	".gz":  "application/gzip",
	".tgz": "application/gzip",
	".tar": "application/x-tar",
	".bz2": "application/x-bzip2",
	".7z":  "application/x-7z-compressed",
}
