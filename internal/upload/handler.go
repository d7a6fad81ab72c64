package upload

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/munnerz/goautoneg"

	"github.com/blobdrop/service/internal/flash"
	"github.com/blobdrop/service/internal/response"
	"github.com/blobdrop/service/internal/storage"
	"github.com/blobdrop/service/internal/web"
)

// multipartMemory is how much of a multipart body is held in memory before
// spilling to temporary files.
const multipartMemory = 32 << 20

type contextKey string

const jsonOnlyKey contextKey = "jsonOnly"

// Handler holds HTTP handlers for upload, listing and retrieval.
type Handler struct {
	svc      *Service
	views    *web.Views
	flash    *flash.Codec
	maxBytes int64
	logger   *slog.Logger
}

// NewHandler creates a new upload Handler. maxBytes caps the request body.
func NewHandler(svc *Service, views *web.Views, flashCodec *flash.Codec, maxBytes int64, logger *slog.Logger) *Handler {
	return &Handler{
		svc:      svc,
		views:    views,
		flash:    flashCodec,
		maxBytes: maxBytes,
		logger:   logger,
	}
}

// Routes mounts the browser-facing routes, which answer HTML or JSON
// depending on the request.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/", h.Index)
	r.Post("/upload", h.Upload)
	r.Get("/files", h.List)
	r.Get("/files/*", h.Download)
	r.Get("/sas/*", h.Sign)
}

// APIRoutes mounts the JSON-only routes.
func (h *Handler) APIRoutes(r chi.Router) {
	r.Use(JSONOnly)
	r.Post("/files", h.Upload)
	r.Get("/files", h.List)
	r.Get("/files/*", h.Download)
	r.Get("/sas/*", h.Sign)
}

// JSONOnly forces JSON representations for every handler below it.
func JSONOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := context.WithValue(r.Context(), jsonOnlyKey, true)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// wantsJSON picks the representation: JSON under JSONOnly, with ?format=json,
// or when the Accept header prefers it over HTML.
func wantsJSON(r *http.Request) bool {
	if only, _ := r.Context().Value(jsonOnlyKey).(bool); only {
		return true
	}
	switch r.URL.Query().Get("format") {
	case "json":
		return true
	case "html":
		return false
	}
	accept := r.Header.Get("Accept")
	if accept == "" {
		return false
	}
	return goautoneg.Negotiate(accept, []string{"text/html", "application/json"}) == "application/json"
}

// Index renders the upload form.
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	h.render(w, http.StatusOK, web.PageUpload, web.Page{
		Flash:          h.flash.Pop(w, r),
		Container:      h.svc.Container(),
		Prefix:         h.svc.Prefix(),
		MaxUploadBytes: h.maxBytes,
	})
}

// Upload godoc
//
//	@Summary		Upload a file
//	@Description	Stores the multipart field "file" under a timestamped, sanitized key. On a key collision the upload is retried once under a "dup_" key.
//	@Tags			files
//	@Accept			multipart/form-data
//	@Produce		json
//	@Param			file	formData	file	true	"File to upload"
//	@Success		201		{object}	response.Envelope{data=Result}
//	@Failure		400		{object}	response.Envelope
//	@Failure		409		{object}	response.Envelope
//	@Failure		413		{object}	response.Envelope
//	@Failure		415		{object}	response.Envelope
//	@Failure		502		{object}	response.Envelope
//	@Router			/files [post]
func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			h.fail(w, r, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("File exceeds the %d MB upload limit.", h.maxBytes>>20), "/")
			return
		}
		h.fail(w, r, http.StatusBadRequest, "No file part in the request.", "/")
		return
	}
	defer r.MultipartForm.RemoveAll() //nolint:errcheck

	file, header, err := r.FormFile("file")
	if err != nil {
		msg := "No file part in the request."
		if _, present := r.MultipartForm.Value["file"]; present {
			msg = "No file selected."
		}
		h.fail(w, r, http.StatusBadRequest, msg, "/")
		return
	}
	defer file.Close()

	if header.Filename == "" {
		h.fail(w, r, http.StatusBadRequest, "No file selected.", "/")
		return
	}

	result, err := h.svc.Upload(r.Context(), UploadRequest{
		RawFilename:         header.Filename,
		DeclaredContentType: header.Header.Get("Content-Type"),
		Body:                file,
		Size:                header.Size,
	})
	if err != nil {
		h.fail(w, r, statusFor(err), "Upload failed: "+err.Error(), "/")
		return
	}

	if wantsJSON(r) {
		response.Created(w, result)
		return
	}
	h.flash.Set(w, flash.Success,
		fmt.Sprintf("Uploaded to blob '%s' in container '%s'.", result.Key, result.Container))
	http.Redirect(w, r, "/files", http.StatusSeeOther)
}

// List godoc
//
//	@Summary		List files
//	@Description	Lists every object under the configured key prefix.
//	@Tags			files
//	@Produce		json
//	@Success		200	{object}	response.Envelope{data=Listing}
//	@Failure		502	{object}	response.Envelope
//	@Router			/files [get]
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	listing, err := h.svc.List(r.Context())

	if wantsJSON(r) {
		if err != nil {
			writeError(w, statusFor(err), "Could not list blobs: "+err.Error())
			return
		}
		response.OK(w, listing)
		return
	}

	page := web.Page{
		Flash:     h.flash.Pop(w, r),
		Container: h.svc.Container(),
		Prefix:    h.svc.Prefix(),
	}
	status := http.StatusOK
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list objects failed", slog.String("error", err.Error()))
		page.Flash = &flash.Message{Kind: flash.Error, Message: "Could not list blobs: " + err.Error()}
		status = statusFor(err)
	} else {
		page.Objects = listing.Objects
	}
	h.render(w, status, web.PageFiles, page)
}

// Download godoc
//
//	@Summary		Download a file
//	@Description	Streams the object stored under key.
//	@Tags			files
//	@Produce		octet-stream
//	@Param			key	path		string	true	"Storage key"
//	@Success		200	{file}		file
//	@Failure		404	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/files/{key} [get]
func (h *Handler) Download(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		h.fail(w, r, http.StatusBadRequest, "object key is required", "/files")
		return
	}

	rc, info, err := h.svc.Open(r.Context(), key)
	if err != nil {
		h.fail(w, r, statusFor(err), "Could not open blob: "+err.Error(), "/files")
		return
	}
	defer rc.Close()

	contentType := info.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": path.Base(key)}))
	if info.Size >= 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(info.Size, 10))
	}
	if !info.LastModified.IsZero() {
		w.Header().Set("Last-Modified", info.LastModified.UTC().Format(http.TimeFormat))
	}
	w.WriteHeader(http.StatusOK)

	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "download interrupted",
			slog.String("key", key), slog.String("error", err.Error()))
	}
}

// Sign godoc
//
//	@Summary		Signed read URL
//	@Description	Issues a short-lived read-only URL for key. Browsers are redirected to it.
//	@Tags			files
//	@Produce		json
//	@Param			key	path		string	true	"Storage key"
//	@Success		200	{object}	response.Envelope{data=SignedURL}
//	@Success		302
//	@Failure		404	{object}	response.Envelope
//	@Failure		501	{object}	response.Envelope
//	@Failure		502	{object}	response.Envelope
//	@Router			/sas/{key} [get]
func (h *Handler) Sign(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "*")
	if key == "" {
		h.fail(w, r, http.StatusBadRequest, "object key is required", "/files")
		return
	}

	signed, err := h.svc.SignedURL(r.Context(), key)
	if err != nil {
		msg := "Failed to generate SAS: " + err.Error()
		if errors.Is(err, storage.ErrSigningUnsupported) {
			msg = "No account key available to generate SAS (consider a different storage driver)."
		}
		h.fail(w, r, statusFor(err), msg, "/files")
		return
	}

	if wantsJSON(r) {
		response.OK(w, signed)
		return
	}
	http.Redirect(w, r, signed.URL, http.StatusFound)
}

// fail reports an error as JSON or as a flash message followed by a redirect.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, status int, message, redirectTo string) {
	if status >= http.StatusInternalServerError {
		h.logger.ErrorContext(r.Context(), "request failed",
			slog.Int("status", status), slog.String("error", message))
	}
	if wantsJSON(r) {
		writeError(w, status, message)
		return
	}
	h.flash.Set(w, flash.Error, message)
	http.Redirect(w, r, redirectTo, http.StatusSeeOther)
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, page web.Page) {
	if err := h.views.Render(w, status, name, page); err != nil {
		h.logger.Error("render page failed", slog.String("page", name), slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
	}
}

// writeError writes a JSON error envelope for status. Unmapped failures get
// the generic internal error message.
func writeError(w http.ResponseWriter, status int, message string) {
	switch status {
	case http.StatusBadRequest:
		response.BadRequest(w, message)
	case http.StatusNotFound:
		response.NotFound(w, message)
	case http.StatusConflict:
		response.Conflict(w, message)
	case http.StatusRequestEntityTooLarge:
		response.TooLarge(w, message)
	case http.StatusUnsupportedMediaType:
		response.UnsupportedMediaType(w, message)
	case http.StatusNotImplemented:
		response.NotImplemented(w, message)
	case http.StatusBadGateway:
		response.BadGateway(w, message)
	case http.StatusInternalServerError:
		response.InternalError(w)
	default:
		response.Error(w, status, message)
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, ErrUnsupportedContentType):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, ErrUploadFailed):
		return http.StatusConflict
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, storage.ErrSigningUnsupported):
		return http.StatusNotImplemented
	case errors.Is(err, ErrBackendUnavailable):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
