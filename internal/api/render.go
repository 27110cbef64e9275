package api

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"net/http"
	"path"
	"strings"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/content"
	"NotifyAdmin/internal/csvparser"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/send"
)

//go:embed templates
var templateFiles embed.FS

// templateData is handed to every page.
type templateData struct {
	Lang       string
	ServiceID  string
	TemplateID string
	UploadID   string
	Banner     *banners.Message
	Error      string
	Accept     string

	Preview      *send.Preview
	Step         *send.Step
	OneOff       *send.OneOffPreview
	Job          *models.Job
	Notification *models.Notification
	Page         *content.Page
}

func humanDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format("2006-01-02 15:04 UTC")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

var templateFunctions = template.FuncMap{
	"humanDate": humanDate,
	"plural":    plural,
	"add":       func(a, b int) int { return a + b },
	// CMS pages arrive as sanitised HTML.
	"trusted": func(s string) template.HTML { return template.HTML(s) },
}

// newTemplateCache parses each page together with the base layout and the
// partials.
func newTemplateCache() (map[string]*template.Template, error) {
	cache := map[string]*template.Template{}

	pages, err := fs.Glob(templateFiles, "templates/*.page.tmpl")
	if err != nil {
		return nil, err
	}
	for _, page := range pages {
		name := strings.TrimSuffix(path.Base(page), ".page.tmpl")
		ts, err := template.New(name).Funcs(templateFunctions).ParseFS(templateFiles,
			"templates/base.layout.tmpl",
			"templates/*.partial.tmpl",
			page,
		)
		if err != nil {
			return nil, fmt.Errorf("parse page %s: %w", page, err)
		}
		cache[name] = ts
	}
	return cache, nil
}

func (h *Handler) newTemplateData(r *http.Request) *templateData {
	return &templateData{
		Lang:       h.lang(r),
		ServiceID:  r.PathValue("service_id"),
		TemplateID: r.PathValue("template_id"),
		UploadID:   r.PathValue("upload_id"),
		Accept:     "." + strings.Join(csvparser.Extensions, ",."),
	}
}

func (h *Handler) lang(r *http.Request) string {
	return h.Catalogue.Negotiate(r.Header.Get("Accept-Language"))
}

// withBanner words b for the request's language.
func (h *Handler) withBanner(data *templateData, b *banners.Banner) {
	if b == nil {
		return
	}
	msg := h.Catalogue.Render(b, data.Lang)
	data.Banner = &msg
}

func (h *Handler) render(w http.ResponseWriter, r *http.Request, status int, page string, data *templateData) {
	views := h.views
	if h.Dev {
		fresh, err := newTemplateCache()
		if err != nil {
			h.serverError(w, r, fmt.Errorf("rebuild template cache: %w", err))
			return
		}
		views = fresh
	}
	ts, ok := views[page]
	if !ok {
		h.serverError(w, r, fmt.Errorf("page %s does not exist", page))
		return
	}

	buf := new(bytes.Buffer)
	if err := ts.ExecuteTemplate(buf, "base", data); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	buf.WriteTo(w)
}

// serverError is the last resort. It writes plain text so that it cannot
// fail itself.
func (h *Handler) serverError(w http.ResponseWriter, r *http.Request, err error) {
	h.Log.Error("request failed",
		zap.String("method", r.Method),
		zap.String("uri", r.URL.RequestURI()),
		zap.Error(err),
	)
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}
