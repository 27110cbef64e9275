package api

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/email"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/send"
	"NotifyAdmin/internal/session"
)

const defaultMaxUploadBytes = 10 << 20

// previewFrom is the From line on downloaded email previews.
const previewFrom = "notify@notification.canada.ca"

func templateURL(serviceID, templateID string) string {
	return fmt.Sprintf("/services/%s/templates/%s", serviceID, templateID)
}

func checkURL(serviceID, templateID, uploadID string) string {
	return templateURL(serviceID, templateID) + "/check/" + uploadID
}

// uploadBanner reports whether kind sends the user back to the upload form.
func uploadBanner(kind banners.Kind) bool {
	switch kind {
	case banners.UnsupportedFile, banners.UnreadableFile, banners.AmbiguousDates:
		return true
	}
	return false
}

func (h *Handler) ChooseUpload(w http.ResponseWriter, r *http.Request) {
	h.render(w, r, http.StatusOK, "send", h.newTemplateData(r))
}

func (h *Handler) Upload(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)
	rejectFile := func(b *banners.Banner) {
		h.withBanner(data, b)
		h.render(w, r, http.StatusBadRequest, "send", data)
	}

	limit := h.MaxUploadBytes
	if limit <= 0 {
		limit = defaultMaxUploadBytes
	}
	r.Body = http.MaxBytesReader(w, r.Body, limit)
	if err := r.ParseMultipartForm(limit); err != nil {
		rejectFile(&banners.Banner{Kind: banners.UnreadableFile, Err: err})
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		rejectFile(&banners.Banner{Kind: banners.UnreadableFile, Err: err})
		return
	}
	defer file.Close()
	raw, err := io.ReadAll(file)
	if err != nil {
		rejectFile(&banners.Banner{Kind: banners.UnreadableFile, Filename: header.Filename, Err: err})
		return
	}

	uploadID, err := h.Send.Accept(r.Context(), sess, send.Upload{
		ServiceID:  data.ServiceID,
		TemplateID: data.TemplateID,
		UserID:     sess.UserID(),
		Filename:   header.Filename,
		Data:       raw,
	})
	if err != nil {
		if b, ok := banners.As(err); ok && uploadBanner(b.Kind) {
			rejectFile(b)
			return
		}
		h.fail(w, r, err)
		return
	}
	h.saveAndRedirect(w, r, sess, checkURL(data.ServiceID, data.TemplateID, uploadID))
}

// rowIndex reads ?row_index; zero means none was given.
func rowIndex(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("row_index")
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n == 0 {
		return 0, fmt.Errorf("row_index %q: %w", raw, send.ErrRowNotFound)
	}
	return n, nil
}

func (h *Handler) preview(r *http.Request, row int) (*send.Preview, error) {
	sess := session.FromContext(r.Context())
	return h.Send.Preview(r.Context(), sess, send.PreviewRequest{
		ServiceID:  r.PathValue("service_id"),
		TemplateID: r.PathValue("template_id"),
		UploadID:   r.PathValue("upload_id"),
		UserID:     sess.UserID(),
		RowIndex:   row,
	})
}

func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
	row, err := rowIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pv, err := h.preview(r, row)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data := h.newTemplateData(r)
	data.Preview = pv
	h.withBanner(data, pv.Banner)
	h.render(w, r, http.StatusOK, "check", data)
}

func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)

	version, err := strconv.Atoi(r.PostFormValue("template_version"))
	if err != nil {
		version = -1
	}
	job, err := h.Send.Confirm(r.Context(), sess, send.ConfirmRequest{
		ServiceID:       data.ServiceID,
		TemplateID:      data.TemplateID,
		UploadID:        data.UploadID,
		UserID:          sess.UserID(),
		TemplateVersion: version,
		ScheduledFor:    r.PostFormValue("scheduled_for"),
	})
	if err != nil {
		b, ok := banners.As(err)
		if !ok || b.Kind == banners.BackendUnavailable || b.Kind == banners.UploadExpired {
			h.fail(w, r, err)
			return
		}
		// Back to the preview, led by the reason the send was refused.
		pv, perr := h.preview(r, 0)
		if perr != nil {
			h.fail(w, r, perr)
			return
		}
		data.Preview = pv
		h.withBanner(data, b)
		h.render(w, r, http.StatusBadRequest, "check", data)
		return
	}
	h.saveAndRedirect(w, r, sess, fmt.Sprintf("/services/%s/jobs/%s", data.ServiceID, job.ID))
}

func (h *Handler) ChangeUploadSender(w http.ResponseWriter, r *http.Request) {
	serviceID, templateID, uploadID := r.PathValue("service_id"), r.PathValue("template_id"), r.PathValue("upload_id")
	sess := session.FromContext(r.Context())
	err := h.Send.SetUploadSender(r.Context(), sess, serviceID, templateID, uploadID, r.PostFormValue("sender_id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	http.Redirect(w, r, checkURL(serviceID, templateID, uploadID), http.StatusSeeOther)
}

// EmailPreview downloads one row of an email upload as an .eml file.
func (h *Handler) EmailPreview(w http.ResponseWriter, r *http.Request) {
	row, err := rowIndex(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pv, err := h.preview(r, row)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if pv.Template.Type != models.TemplateTypeEmail || pv.Row == nil {
		h.fail(w, r, fmt.Errorf("email preview of %s template: %w", pv.Template.Type, send.ErrRowNotFound))
		return
	}

	p := email.Preview{
		From:    previewFrom,
		To:      pv.Row.Recipient,
		Message: pv.Message,
		Date:    time.Now(),
	}
	if pv.Sender != nil {
		p.ReplyTo = pv.Sender.Value
	}
	var buf bytes.Buffer
	if err := email.Write(&buf, p); err != nil {
		h.serverError(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "message/rfc822")
	w.Header().Set("Content-Disposition", `attachment; filename="preview.eml"`)
	buf.WriteTo(w)
}
