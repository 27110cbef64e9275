package send

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/recipients"
	"NotifyAdmin/internal/session"
	"NotifyAdmin/internal/templates"
)

// Action tells the handler what to do with a one-off step request.
type Action int

const (
	ShowStep Action = iota
	RedirectStep
	RedirectConfirm
)

// Step is one field of the one-off walkthrough.
type Step struct {
	Action   Action
	Index    int
	Total    int
	Field    templates.Field
	Value    string
	Template models.Template
}

// answered counts the fields filled in so far, in order. A later value
// without the earlier ones does not count.
func answered(fields []templates.Field, st session.SendFlowState) int {
	n := 0
	for _, f := range fields {
		if f.Recipient {
			if st.Recipient == "" {
				break
			}
		} else if _, ok := st.Placeholders[f.Name]; !ok {
			break
		}
		n++
	}
	return n
}

// resolve decides where a request for step k lands.
func resolve(t models.Template, st session.SendFlowState, k int) Step {
	fields := templates.Fields(t)
	done := answered(fields, st)
	step := Step{Total: len(fields), Template: t}
	switch {
	case k < 0 || done < k:
		step.Action = RedirectStep
	case k >= len(fields):
		step.Action = RedirectConfirm
	default:
		step.Action = ShowStep
		step.Index = k
		step.Field = fields[k]
		step.Value = fieldValue(fields[k], st)
	}
	return step
}

func fieldValue(f templates.Field, st session.SendFlowState) string {
	if f.Recipient {
		return st.Recipient
	}
	return st.Placeholders[f.Name]
}

// OneOffStep shows step k, or says where to go instead.
func (p *Pipeline) OneOffStep(ctx context.Context, sess *session.Session, serviceID, templateID string, k int) (Step, error) {
	t, err := p.API.GetTemplate(ctx, serviceID, templateID, 0)
	if err != nil {
		return Step{}, unavailable(err)
	}
	session.StartFlow(sess, t.ID)
	return resolve(t, session.Flow(sess), k), nil
}

// AnswerStep stores the value for step k and returns the next step. An
// invalid value returns a banner and leaves the session unchanged.
func (p *Pipeline) AnswerStep(ctx context.Context, sess *session.Session, serviceID, templateID string, k int, value string) (Step, error) {
	t, err := p.API.GetTemplate(ctx, serviceID, templateID, 0)
	if err != nil {
		return Step{}, unavailable(err)
	}
	session.StartFlow(sess, t.ID)
	step := resolve(t, session.Flow(sess), k)
	if step.Action != ShowStep {
		return step, nil
	}

	value = strings.TrimSpace(value)
	f := step.Field
	switch {
	case value == "" && f.Optional:
	case value == "":
		step.Value = value
		return step, &banners.Banner{Kind: banners.MissingValue, Columns: []string{f.Name}}
	case f.Recipient:
		canonical, err := p.canonicalRecipient(ctx, serviceID, t.Type, value)
		if err != nil {
			step.Value = value
			return step, &banners.Banner{Kind: banners.InvalidRecipient, Columns: []string{f.Name}, Recipient: value, Err: err}
		}
		value = canonical
	}

	if f.Recipient {
		session.SetRecipient(sess, value)
	}
	if !f.Recipient || t.Type == models.TemplateTypeLetter {
		session.SetPlaceholder(sess, f.Name, value)
	}
	session.SetStep(sess, k+1)
	return resolve(t, session.Flow(sess), k+1), nil
}

func (p *Pipeline) canonicalRecipient(ctx context.Context, serviceID string, tt models.TemplateType, value string) (string, error) {
	switch tt {
	case models.TemplateTypeEmail:
		return recipients.Email(value)
	case models.TemplateTypeSMS:
		svc, err := p.API.GetService(ctx, serviceID)
		if err != nil {
			return "", unavailable(err)
		}
		return recipients.PhoneForService(value, p.Settings.HomeRegion, svc.HasPermission(models.PermissionInternationalSMS))
	}
	return value, nil
}

// OneOffPreview is the confirm page for a one-off send. Its report is the
// validator's verdict on the answers as a single-row file.
type OneOffPreview struct {
	Template models.Template
	Report   *recipients.Report
	Banner   *banners.Banner
	CanSend  bool
	Values   map[string]string
	Message  templates.Message
	Senders  []models.Sender
	Sender   *models.Sender
}

// ErrIncomplete means the walkthrough has unanswered fields.
var ErrIncomplete = errors.New("one-off answers incomplete")

func (p *Pipeline) OneOffConfirm(ctx context.Context, sess *session.Session, serviceID, templateID, userID string) (*OneOffPreview, error) {
	t, err := p.API.GetTemplate(ctx, serviceID, templateID, 0)
	if err != nil {
		return nil, unavailable(err)
	}
	session.StartFlow(sess, t.ID)
	st := session.Flow(sess)
	fields := templates.Fields(t)
	if answered(fields, st) < len(fields) {
		return nil, ErrIncomplete
	}

	values := make(map[string]string, len(fields))
	header := make([]string, 0, len(fields))
	row := make([]string, 0, len(fields))
	for _, f := range fields {
		v := fieldValue(f, st)
		values[f.Name] = v
		header = append(header, f.Name)
		row = append(row, v)
	}
	text, err := singleRow(header, row)
	if err != nil {
		return nil, err
	}

	snap, err := p.LoadSnapshot(ctx, serviceID, userID, t.Type)
	if err != nil {
		return nil, unavailable(err)
	}
	report, err := recipients.Validate(text, t, snap, recipients.Options{Focus: 1})
	if err != nil {
		return nil, unavailable(err)
	}
	senders, err := p.API.GetSenders(ctx, serviceID, t.Type)
	if err != nil {
		return nil, unavailable(err)
	}

	pv := &OneOffPreview{
		Template: t,
		Report:   report,
		Banner:   banners.FromReport(report),
		Values:   values,
		Message:  templates.RenderMessage(t, values),
		Senders:  senders,
		Sender:   chooseSender(senders, st.SenderID),
	}
	pv.CanSend = pv.Banner == nil
	return pv, nil
}

func singleRow(header, row []string) (string, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	w.UseCRLF = true
	if err := w.WriteAll([][]string{header, row}); err != nil {
		return "", fmt.Errorf("encode one-off row: %w", err)
	}
	return buf.String(), nil
}

// SetOneOffSender records the chosen sender. An empty id goes back to the
// service default.
func (p *Pipeline) SetOneOffSender(ctx context.Context, sess *session.Session, serviceID, templateID, senderID string) error {
	t, err := p.API.GetTemplate(ctx, serviceID, templateID, 0)
	if err != nil {
		return unavailable(err)
	}
	if senderID != "" {
		senders, err := p.API.GetSenders(ctx, serviceID, t.Type)
		if err != nil {
			return unavailable(err)
		}
		if !findSender(senders, senderID) {
			return fmt.Errorf("sender %s: %w", senderID, ErrUnknownSender)
		}
	}
	session.StartFlow(sess, t.ID)
	session.SetSenderID(sess, senderID)
	return nil
}

// SendOneOff submits the answers as a single notification and clears the
// flow once the backend has accepted it.
func (p *Pipeline) SendOneOff(ctx context.Context, sess *session.Session, serviceID, templateID, userID string) (string, error) {
	pv, err := p.OneOffConfirm(ctx, sess, serviceID, templateID, userID)
	if err != nil {
		return "", err
	}
	if !pv.CanSend {
		metrics.SendsRejected.WithLabelValues(string(pv.Banner.Kind)).Inc()
		return "", pv.Banner
	}

	st := session.Flow(sess)
	req := models.OneOffRequest{
		TemplateID:      pv.Template.ID,
		To:              st.Recipient,
		Personalisation: make(map[string]string),
		CreatedBy:       userID,
	}
	if pv.Sender != nil {
		req.SenderID = pv.Sender.ID
	}
	for _, f := range templates.Fields(pv.Template) {
		if f.Recipient && pv.Template.Type != models.TemplateTypeLetter {
			continue
		}
		req.Personalisation[f.Name] = pv.Values[f.Name]
	}

	id, err := p.API.SendNotification(ctx, serviceID, req)
	if err != nil {
		err = rejected(err)
		if b, ok := banners.As(err); ok {
			metrics.SendsRejected.WithLabelValues(string(b.Kind)).Inc()
		}
		p.Log.Info("one-off not sent",
			zap.String("service_id", serviceID),
			zap.String("template_id", templateID),
			zap.Error(err),
		)
		return "", err
	}

	metrics.OneOffSent.WithLabelValues(string(pv.Template.Type)).Inc()
	p.Log.Info("one-off sent",
		zap.String("service_id", serviceID),
		zap.String("notification_id", id),
	)
	session.ClearFlow(sess)
	return id, nil
}

// CancelOneOff abandons the walkthrough.
func CancelOneOff(sess *session.Session) {
	session.ClearFlow(sess)
}
