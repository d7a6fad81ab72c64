// Package web renders the HTML pages of the upload UI.
package web

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/blobdrop/service/internal/flash"
	"github.com/blobdrop/service/internal/storage"
)

//go:embed templates/*.html
var templatesFS embed.FS

// Page names accepted by Render.
const (
	PageUpload = "upload"
	PageFiles  = "files"
)

// Page is the data every template receives.
type Page struct {
	Flash          *flash.Message
	Container      string
	Prefix         string
	MaxUploadBytes int64
	Objects        []storage.ObjectInfo
}

// Views holds the parsed page templates.
type Views struct {
	pages map[string]*template.Template
}

var funcs = template.FuncMap{
	"bytes": func(n int64) string {
		if n < 0 {
			return "unknown"
		}
		return humanize.Bytes(uint64(n))
	},
	"ago": func(t time.Time) string {
		if t.IsZero() {
			return ""
		}
		return humanize.Time(t)
	},
}

// New parses the embedded templates.
func New() (*Views, error) {
	v := &Views{pages: make(map[string]*template.Template)}
	for _, name := range []string{PageUpload, PageFiles} {
		t, err := template.New(name).Funcs(funcs).ParseFS(templatesFS, "templates/layout.html", "templates/"+name+".html")
		if err != nil {
			return nil, fmt.Errorf("parse template %s: %w", name, err)
		}
		v.pages[name] = t
	}
	return v, nil
}

// Render writes page name with status.
func (v *Views) Render(w http.ResponseWriter, status int, name string, data Page) error {
	t, ok := v.pages[name]
	if !ok {
		return fmt.Errorf("unknown page %q", name)
	}

	var buf bytes.Buffer
	if err := t.ExecuteTemplate(&buf, "layout", data); err != nil {
		return fmt.Errorf("render %s: %w", name, err)
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, err := buf.WriteTo(w)
	return err
}
