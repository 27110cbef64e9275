// Package api serves the admin pages for sending from a template.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"net/http"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/content"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/send"
	"NotifyAdmin/internal/session"
)

// Jobs reads the results of a send back from the backend.
type Jobs interface {
	GetJob(ctx context.Context, serviceID, jobID string) (models.Job, error)
	GetNotification(ctx context.Context, serviceID, notificationID string) (models.Notification, error)
}

type Pages interface {
	Page(ctx context.Context, slug, lang string) (content.Page, error)
}

// Check is one dependency probed by /healthz.
type Check func(ctx context.Context) error

type Handler struct {
	Send      *send.Pipeline
	Jobs      Jobs
	Pages     Pages
	Sessions  *session.Manager
	Catalogue *banners.Catalogue
	Checks    map[string]Check
	Log       *zap.Logger

	MaxUploadBytes int64
	// Dev re-parses templates on every render.
	Dev bool

	views map[string]*template.Template
}

// Routes builds the handler chain. It fails only if the embedded templates
// do not parse.
func (h *Handler) Routes() (http.Handler, error) {
	views, err := newTemplateCache()
	if err != nil {
		return nil, err
	}
	h.views = views
	h.Log = h.Log.Named("api")

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", h.Health)
	mux.HandleFunc("GET /pages/{slug}", h.ContentPage)

	signedIn := http.NewServeMux()
	const tmpl = "/services/{service_id}/templates/{template_id}"
	signedIn.HandleFunc("GET "+tmpl+"/send", h.ChooseUpload)
	signedIn.HandleFunc("POST "+tmpl+"/send", h.Upload)
	signedIn.HandleFunc("GET "+tmpl+"/check/{upload_id}", h.Check)
	signedIn.HandleFunc("POST "+tmpl+"/check/{upload_id}", h.Confirm)
	signedIn.HandleFunc("POST "+tmpl+"/check/{upload_id}/sender", h.ChangeUploadSender)
	signedIn.HandleFunc("GET "+tmpl+"/check/{upload_id}/preview.eml", h.EmailPreview)
	signedIn.HandleFunc("GET "+tmpl+"/one-off", h.StartOneOff)
	signedIn.HandleFunc("GET "+tmpl+"/one-off/step/{step}", h.OneOffStep)
	signedIn.HandleFunc("POST "+tmpl+"/one-off/step/{step}", h.AnswerOneOffStep)
	signedIn.HandleFunc("GET "+tmpl+"/one-off/confirm", h.OneOffConfirm)
	signedIn.HandleFunc("POST "+tmpl+"/one-off/sender", h.ChangeOneOffSender)
	signedIn.HandleFunc("POST "+tmpl+"/one-off/cancel", h.CancelOneOff)
	signedIn.HandleFunc("POST "+tmpl+"/send-notification", h.SendNotification)
	signedIn.HandleFunc("GET /services/{service_id}/jobs/{job_id}", h.Job)
	signedIn.HandleFunc("GET /services/{service_id}/notification/{notification_id}", h.Notification)
	mux.Handle("/services/", h.Sessions.Middleware(h.requireUser(signedIn)))

	var chain http.Handler = mux
	chain = h.logRequest(chain)
	chain = h.recoverPanic(chain)
	return chain, nil
}

// fail renders err as a page. Banners carry their own wording; anything
// else is logged and shown as a server error.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	data := h.newTemplateData(r)
	if b, ok := banners.As(err); ok {
		status := http.StatusBadRequest
		switch b.Kind {
		case banners.BackendUnavailable:
			status = http.StatusServiceUnavailable
			h.Log.Error("backend unavailable", zap.String("uri", r.URL.RequestURI()), zap.Error(err))
		case banners.UploadExpired:
			status = http.StatusNotFound
		}
		h.withBanner(data, b)
		h.render(w, r, status, "error", data)
		return
	}

	switch {
	case errors.Is(err, send.ErrRowNotFound),
		errors.Is(err, notifyapi.ErrNotFound),
		errors.Is(err, content.ErrNotFound):
		data.Error = "Page not found"
		h.render(w, r, http.StatusNotFound, "error", data)
	case errors.Is(err, send.ErrUnknownSender):
		data.Error = "Choose a sender from the list"
		h.render(w, r, http.StatusBadRequest, "error", data)
	default:
		h.serverError(w, r, err)
	}
}

// saveAndRedirect persists the session before sending the browser on.
func (h *Handler) saveAndRedirect(w http.ResponseWriter, r *http.Request, sess *session.Session, url string) {
	if err := h.Sessions.Save(r.Context(), w, sess); err != nil {
		h.fail(w, r, banners.Wrap(err, banners.BackendUnavailable))
		return
	}
	http.Redirect(w, r, url, http.StatusSeeOther)
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.Checks))
	for name, check := range h.Checks {
		if err := check(ctx); err != nil {
			h.Log.Warn("health check failed", zap.String("check", name), zap.Error(err))
			results[name] = "error"
			status = http.StatusServiceUnavailable
			continue
		}
		results[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]any{
		"status": http.StatusText(status),
		"checks": results,
	})
}

func (h *Handler) ContentPage(w http.ResponseWriter, r *http.Request) {
	data := h.newTemplateData(r)
	page, err := h.Pages.Page(r.Context(), r.PathValue("slug"), data.Lang)
	if err != nil {
		if !errors.Is(err, content.ErrNotFound) {
			err = banners.Wrap(err, banners.BackendUnavailable)
		}
		h.fail(w, r, err)
		return
	}
	data.Page = &page
	h.render(w, r, http.StatusOK, "content", data)
}

func (h *Handler) Job(w http.ResponseWriter, r *http.Request) {
	job, err := h.Jobs.GetJob(r.Context(), r.PathValue("service_id"), r.PathValue("job_id"))
	if err != nil {
		h.fail(w, r, backendError(err))
		return
	}
	data := h.newTemplateData(r)
	data.Job = &job
	h.render(w, r, http.StatusOK, "job", data)
}

func (h *Handler) Notification(w http.ResponseWriter, r *http.Request) {
	n, err := h.Jobs.GetNotification(r.Context(), r.PathValue("service_id"), r.PathValue("notification_id"))
	if err != nil {
		h.fail(w, r, backendError(err))
		return
	}
	data := h.newTemplateData(r)
	data.Notification = &n
	h.render(w, r, http.StatusOK, "notification", data)
}

// backendError keeps not-found as is and treats everything else as an
// outage.
func backendError(err error) error {
	if errors.Is(err, notifyapi.ErrNotFound) {
		return err
	}
	return banners.Wrap(err, banners.BackendUnavailable)
}
