package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/send"
	"NotifyAdmin/internal/session"
)

func stepURL(serviceID, templateID string, step int) string {
	return fmt.Sprintf("%s/one-off/step/%d", templateURL(serviceID, templateID), step)
}

func confirmURL(serviceID, templateID string) string {
	return templateURL(serviceID, templateID) + "/one-off/confirm"
}

// nextURL is where a resolved step sends the browser.
func nextURL(serviceID, templateID string, step send.Step) string {
	switch step.Action {
	case send.RedirectConfirm:
		return confirmURL(serviceID, templateID)
	case send.RedirectStep:
		return stepURL(serviceID, templateID, 0)
	}
	return stepURL(serviceID, templateID, step.Index)
}

func (h *Handler) StartOneOff(w http.ResponseWriter, r *http.Request) {
	http.Redirect(w, r, stepURL(r.PathValue("service_id"), r.PathValue("template_id"), 0), http.StatusSeeOther)
}

func stepIndex(r *http.Request) int {
	k, err := strconv.Atoi(r.PathValue("step"))
	if err != nil {
		return -1
	}
	return k
}

func (h *Handler) OneOffStep(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)

	step, err := h.Send.OneOffStep(r.Context(), sess, data.ServiceID, data.TemplateID, stepIndex(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if step.Action != send.ShowStep {
		h.saveAndRedirect(w, r, sess, nextURL(data.ServiceID, data.TemplateID, step))
		return
	}
	if err := h.Sessions.Save(r.Context(), w, sess); err != nil {
		h.fail(w, r, banners.Wrap(err, banners.BackendUnavailable))
		return
	}
	data.Step = &step
	h.render(w, r, http.StatusOK, "step", data)
}

func (h *Handler) AnswerOneOffStep(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)

	step, err := h.Send.AnswerStep(r.Context(), sess, data.ServiceID, data.TemplateID, stepIndex(r), r.PostFormValue("placeholder_value"))
	if err != nil {
		b, ok := banners.As(err)
		if !ok || (b.Kind != banners.InvalidRecipient && b.Kind != banners.MissingValue) {
			h.fail(w, r, err)
			return
		}
		data.Step = &step
		h.withBanner(data, b)
		h.render(w, r, http.StatusBadRequest, "step", data)
		return
	}
	h.saveAndRedirect(w, r, sess, nextURL(data.ServiceID, data.TemplateID, step))
}

func (h *Handler) OneOffConfirm(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)

	pv, err := h.Send.OneOffConfirm(r.Context(), sess, data.ServiceID, data.TemplateID, sess.UserID())
	if errors.Is(err, send.ErrIncomplete) {
		h.saveAndRedirect(w, r, sess, stepURL(data.ServiceID, data.TemplateID, 0))
		return
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	data.OneOff = pv
	h.withBanner(data, pv.Banner)
	h.render(w, r, http.StatusOK, "confirm", data)
}

func (h *Handler) ChangeOneOffSender(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	serviceID, templateID := r.PathValue("service_id"), r.PathValue("template_id")
	if err := h.Send.SetOneOffSender(r.Context(), sess, serviceID, templateID, r.PostFormValue("sender_id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.saveAndRedirect(w, r, sess, confirmURL(serviceID, templateID))
}

func (h *Handler) CancelOneOff(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	send.CancelOneOff(sess)
	h.saveAndRedirect(w, r, sess, templateURL(r.PathValue("service_id"), r.PathValue("template_id"))+"/send")
}

func (h *Handler) SendNotification(w http.ResponseWriter, r *http.Request) {
	sess := session.FromContext(r.Context())
	data := h.newTemplateData(r)

	id, err := h.Send.SendOneOff(r.Context(), sess, data.ServiceID, data.TemplateID, sess.UserID())
	if errors.Is(err, send.ErrIncomplete) {
		h.saveAndRedirect(w, r, sess, stepURL(data.ServiceID, data.TemplateID, 0))
		return
	}
	if err != nil {
		b, ok := banners.As(err)
		if !ok || b.Kind == banners.BackendUnavailable {
			h.fail(w, r, err)
			return
		}
		pv, perr := h.Send.OneOffConfirm(r.Context(), sess, data.ServiceID, data.TemplateID, sess.UserID())
		if perr != nil {
			h.fail(w, r, perr)
			return
		}
		data.OneOff = pv
		h.withBanner(data, b)
		h.render(w, r, http.StatusBadRequest, "confirm", data)
		return
	}
	h.saveAndRedirect(w, r, sess, fmt.Sprintf("/services/%s/notification/%s", data.ServiceID, id))
}
