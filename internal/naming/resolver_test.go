package naming

import (
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

var testTime = time.Date(2026, 3, 14, 15, 9, 26, 535_000_000, time.UTC)

func TestResolve_Format(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	got := r.Resolve("report.pdf", "")

	assert.Equal(t, "20260314T150926Z__report.pdf", got.StorageKey)
	assert.Equal(t, "application/pdf", got.ContentType)
	assert.Empty(t, got.Prefix)
}

func TestResolve_UsesUTC(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	r := &Resolver{Now: fixedClock(time.Date(2026, 3, 14, 2, 0, 0, 0, loc))}

	got := r.Resolve("a.txt", "")

	assert.True(t, strings.HasPrefix(got.StorageKey, "20260313T230000Z__"), got.StorageKey)
}

func TestResolve_Prefix(t *testing.T) {
	r := &Resolver{Prefix: "incoming/", Now: fixedClock(testTime)}

	got := r.Resolve("data.csv", "")

	assert.Equal(t, "incoming/20260314T150926Z__data.csv", got.StorageKey)
	assert.Equal(t, "incoming/", got.Prefix)
	assert.Equal(t, "text/csv", got.ContentType)
}

func TestResolve_StripsPathSeparators(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	names := []string{
		"../../etc/passwd",
		`..\..\windows\system32\config`,
		"/absolute/path/file.txt",
		"dir/",
		"a/b\\c/d.bin",
		"..",
		"/",
		`\\server\share\x.png`,
	}
	for _, name := range names {
		t.Run(name, func(t *testing.T) {
			got := r.Resolve(name, "")
			assert.NotContains(t, got.StorageKey, "/")
			assert.NotContains(t, got.StorageKey, `\`)
			assert.NotContains(t, got.StorageKey, "..")
			assert.NotEmpty(t, got.StorageKey)
		})
	}
}

func TestResolve_EtcPasswd(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	got := r.Resolve("../../etc/passwd", "")

	assert.Equal(t, "20260314T150926Z__passwd", got.StorageKey)
	assert.False(t, strings.HasPrefix(got.StorageKey, ".."))
}

func TestResolve_NeverEmpty(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	for _, name := range []string{"", " ", "???", "...", "__", "日本語"} {
		got := r.Resolve(name, "")
		require.NotEmpty(t, got.StorageKey)
		assert.True(t, strings.HasSuffix(got.StorageKey, "__"+Placeholder), "%q -> %q", name, got.StorageKey)
	}
}

func TestResolve_DifferentTimesDifferentKeys(t *testing.T) {
	first := (&Resolver{Now: fixedClock(testTime)}).Resolve("same.txt", "")
	second := (&Resolver{Now: fixedClock(testTime.Add(time.Second))}).Resolve("same.txt", "")

	assert.NotEqual(t, first.StorageKey, second.StorageKey)
}

func TestResolve_SameTickSameKey(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	assert.Equal(t, r.Resolve("same.txt", "").StorageKey, r.Resolve("same.txt", "").StorageKey)
}

func TestResolve_KeysSortChronologically(t *testing.T) {
	early := (&Resolver{Now: fixedClock(testTime)}).Resolve("zzz.txt", "")
	late := (&Resolver{Now: fixedClock(testTime.Add(time.Hour))}).Resolve("aaa.txt", "")

	assert.Less(t, early.StorageKey, late.StorageKey)
}

func TestAlternate(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	primary := r.Resolve("photo.jpg", "")
	alt := r.Alternate("photo.jpg", "")

	assert.NotEqual(t, primary.StorageKey, alt.StorageKey)
	assert.Equal(t, "20260314T150926Z__dup_photo.jpg", alt.StorageKey)
	assert.Equal(t, primary.ContentType, alt.ContentType)
}

func TestAlternate_KeepsMarkerAfterPathStrip(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	alt := r.Alternate("folder/photo.jpg", "")

	assert.Equal(t, "20260314T150926Z__dup_photo.jpg", alt.StorageKey)
}

func TestAlternate_SameShapeAsPrimary(t *testing.T) {
	r := &Resolver{Now: fixedClock(testTime)}

	tests := []struct {
		raw     string
		primary string
		alt     string
		ct      string
	}{
		{"写真.JPG", "20260314T150926Z__upload.JPG", "20260314T150926Z__dup_upload.JPG", "image/jpeg"},
		{"日本語.txt", "20260314T150926Z__upload.txt", "20260314T150926Z__dup_upload.txt", "text/plain"},
		{"...", "20260314T150926Z__upload", "20260314T150926Z__dup_upload", DefaultContentType},
		{"__init__.py", "20260314T150926Z__init.py", "20260314T150926Z__dup_init.py", ""},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			primary := r.Resolve(tt.raw, "")
			alt := r.Alternate(tt.raw, "")

			assert.Equal(t, tt.primary, primary.StorageKey)
			assert.Equal(t, tt.alt, alt.StorageKey)
			assert.Equal(t, primary.ContentType, alt.ContentType)
			if tt.ct != "" {
				assert.Equal(t, tt.ct, primary.ContentType)
			}
		})
	}
}

func TestSanitize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"simple.txt", "simple.txt"},
		{"My Report (final).pdf", "My_Report_final.pdf"},
		{"a   b", "a_b"},
		{"café.txt", "cafe.txt"},
		{"naïve résumé.doc", "naive_resume.doc"},
		{".bashrc", "upload.bashrc"},
		{"__init__.py", "init.py"},
		{"写真.JPG", "upload.JPG"},
		{"日本語.txt", "upload.txt"},
		{"報告 2024.pdf", "2024.pdf"},
		{"file.", "file"},
		{"name._", "name"},
		{"...", Placeholder},
		{"file.tar.gz", "file.tar.gz"},
		{"semi;colon&amp.sh", "semi_colon_amp.sh"},
		{"", Placeholder},
		{"../", Placeholder},
		{"dash-and_underscore", "dash-and_underscore"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Truncates(t *testing.T) {
	long := strings.Repeat("a", 500) + ".json"

	got := Sanitize(long)

	assert.Len(t, got, maxNameLen)
	assert.True(t, strings.HasSuffix(got, ".json"))
}

func TestContentType(t *testing.T) {
	tests := []struct {
		name     string
		declared string
		want     string
	}{
		{"photo.JPG", "", "image/jpeg"},
		{"photo.jpeg", "", "image/jpeg"},
		{"file.xyz", "", DefaultContentType},
		{"noextension", "", DefaultContentType},
		{"file.xyz", "text/plain", "text/plain"},
		{"file.xyz", "text/plain; charset=utf-8", "text/plain; charset=utf-8"},
		{"file.xyz", "not a media type", DefaultContentType},
		{"image.png", "application/pdf", "image/png"},
	}
	for _, tt := range tests {
		t.Run(tt.name+"|"+tt.declared, func(t *testing.T) {
			assert.Equal(t, tt.want, ContentType(tt.name, tt.declared))
		})
	}
}

func TestResolver_ZeroValueUsesWallClock(t *testing.T) {
	var r Resolver
	before := time.Now().UTC().Truncate(time.Second)

	got := r.Resolve("x.txt", "")

	ts, err := time.Parse(TimestampLayout, strings.SplitN(got.StorageKey, separator, 2)[0])
	require.NoError(t, err)
	assert.False(t, ts.Before(before))
}

func TestResolver_Concurrent(t *testing.T) {
	r := NewResolver("p/")
	r.Now = fixedClock(testTime)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.Equal(t, "p/20260314T150926Z__x.txt", r.Resolve("x.txt", "").StorageKey)
		}()
	}
	wg.Wait()
}
