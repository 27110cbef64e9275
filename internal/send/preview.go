package send

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/recipients"
	"NotifyAdmin/internal/session"
	"NotifyAdmin/internal/templates"
	"NotifyAdmin/internal/uploads"
)

// State is where a bulk send stands.
type State string

const (
	StateChooseTemplate    State = "choose_template"
	StateUploadPending     State = "upload_pending"
	StatePreview           State = "preview"
	StatePreviewWithErrors State = "preview_with_errors"
	StateSubmitting        State = "submitting"
	StateDone              State = "done"
)

var (
	// ErrRowNotFound is returned for a row index outside the file.
	ErrRowNotFound   = errors.New("row not found")
	ErrUnknownSender = errors.New("sender does not belong to the service")
)

type PreviewRequest struct {
	ServiceID  string
	TemplateID string
	UploadID   string
	UserID     string
	// RowIndex is the spreadsheet row to show, counting the header as row 1.
	// Zero shows the first data row.
	RowIndex int
}

// Preview is everything the check page shows.
type Preview struct {
	State    State
	Template models.Template
	Upload   models.UploadMetadata
	Report   *recipients.Report
	// Banner is nil when the upload can be sent.
	Banner  *banners.Banner
	CanSend bool

	RowIndex int
	Row      *recipients.RowView
	Message  templates.Message

	Senders []models.Sender
	Sender  *models.Sender
}

// ownUpload checks that sess staged uploadID. An upload staged by another
// session is reported the same way as one that has expired.
func ownUpload(sess *session.Session, uploadID string) error {
	if sess == nil || uploadID == "" || session.Flow(sess).UploadID != uploadID {
		return banners.Wrap(fmt.Errorf("upload %s is not staged in this session", uploadID), banners.UploadExpired)
	}
	return nil
}

// Preview revalidates a staged upload from scratch. It changes nothing, so
// the same request always gives the same page.
func (p *Pipeline) Preview(ctx context.Context, sess *session.Session, req PreviewRequest) (*Preview, error) {
	if err := ownUpload(sess, req.UploadID); err != nil {
		return nil, err
	}
	text, meta, err := uploads.ReadAll(ctx, p.Uploads, req.ServiceID, req.UploadID)
	if err != nil {
		return nil, unavailable(err)
	}
	if meta.ServiceID != req.ServiceID || meta.TemplateID != req.TemplateID {
		return nil, banners.Wrap(fmt.Errorf("upload %s belongs to another template", req.UploadID), banners.UploadExpired)
	}

	t, err := p.API.GetTemplate(ctx, req.ServiceID, req.TemplateID, meta.TemplateVersion)
	if err != nil {
		return nil, unavailable(err)
	}
	snap, err := p.LoadSnapshot(ctx, req.ServiceID, req.UserID, t.Type)
	if err != nil {
		return nil, unavailable(err)
	}

	rowIndex := req.RowIndex
	if rowIndex == 0 {
		rowIndex = 2
	}
	start := time.Now()
	report, err := recipients.Validate(text, t, snap, recipients.Options{Focus: rowIndex - 1})
	if err != nil {
		return nil, unavailable(err)
	}
	metrics.RecordValidation(report.TotalRows, start)

	if req.RowIndex != 0 && (req.RowIndex < 2 || req.RowIndex > report.TotalRows+1) {
		return nil, fmt.Errorf("row %d of %d: %w", req.RowIndex, report.TotalRows+1, ErrRowNotFound)
	}

	senders, err := p.API.GetSenders(ctx, req.ServiceID, t.Type)
	if err != nil {
		return nil, unavailable(err)
	}

	pv := &Preview{
		Template: t,
		Upload:   meta,
		Report:   report,
		Banner:   banners.FromReport(report),
		RowIndex: rowIndex,
		Senders:  senders,
		Sender:   chooseSender(senders, meta.SenderID),
	}
	pv.CanSend = pv.Banner == nil
	pv.State = StatePreview
	if !pv.CanSend {
		pv.State = StatePreviewWithErrors
	}
	if report.Focus != nil {
		pv.Row = report.Focus
		pv.Message = templates.RenderMessage(t, report.Focus.Personalisation)
	}

	if meta.Valid != report.Valid() {
		// The service's limits or team changed since upload.
		p.Log.Debug("staged validity differs from current",
			zap.String("upload_id", req.UploadID),
			zap.Bool("staged", meta.Valid),
			zap.Bool("current", report.Valid()),
		)
	}
	return pv, nil
}

// chooseSender returns the sender with id, falling back to the default.
func chooseSender(senders []models.Sender, id string) *models.Sender {
	var fallback *models.Sender
	for i := range senders {
		s := &senders[i]
		if id != "" && s.ID == id {
			return s
		}
		if s.IsDefault && fallback == nil {
			fallback = s
		}
	}
	return fallback
}

func findSender(senders []models.Sender, id string) bool {
	for _, s := range senders {
		if s.ID == id {
			return true
		}
	}
	return false
}

// SetUploadSender records the chosen sender against a staged upload.
func (p *Pipeline) SetUploadSender(ctx context.Context, sess *session.Session, serviceID, templateID, uploadID, senderID string) error {
	if err := ownUpload(sess, uploadID); err != nil {
		return err
	}
	meta, err := p.Uploads.Metadata(ctx, serviceID, uploadID)
	if err != nil {
		return unavailable(err)
	}
	if meta.TemplateID != templateID {
		return banners.Wrap(fmt.Errorf("upload %s belongs to another template", uploadID), banners.UploadExpired)
	}
	t, err := p.API.GetTemplate(ctx, serviceID, templateID, meta.TemplateVersion)
	if err != nil {
		return unavailable(err)
	}
	senders, err := p.API.GetSenders(ctx, serviceID, t.Type)
	if err != nil {
		return unavailable(err)
	}
	if !findSender(senders, senderID) {
		return fmt.Errorf("sender %s: %w", senderID, ErrUnknownSender)
	}
	if err := p.Uploads.SetMetadata(ctx, serviceID, uploadID, uploads.Patch{SenderID: &senderID}); err != nil {
		return unavailable(err)
	}
	return nil
}
