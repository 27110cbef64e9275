package send

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/csvparser"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/recipients"
	"NotifyAdmin/internal/session"
)

// Upload is a recipient file as received from the browser.
type Upload struct {
	ServiceID  string
	TemplateID string
	UserID     string
	Filename   string
	Data       []byte
}

// Accept decodes, validates and stages an upload, returning its id. Files
// with row or column errors are still staged so the preview can explain them;
// files that cannot be decoded are not.
func (p *Pipeline) Accept(ctx context.Context, sess *session.Session, in Upload) (string, error) {
	t, err := p.API.GetTemplate(ctx, in.ServiceID, in.TemplateID, 0)
	if err != nil {
		return "", unavailable(err)
	}
	channel := string(t.Type)

	text, err := csvparser.Decode(in.Data, in.Filename)
	if err != nil {
		b := banners.FromDecodeError(err, in.Filename)
		metrics.DecodeFailures.WithLabelValues(string(b.Kind)).Inc()
		metrics.UploadsAccepted.WithLabelValues(channel, "rejected").Inc()
		p.Log.Info("upload rejected",
			zap.String("service_id", in.ServiceID),
			zap.String("filename", in.Filename),
			zap.String("kind", string(b.Kind)),
			zap.Error(err),
		)
		return "", b
	}

	snap, err := p.LoadSnapshot(ctx, in.ServiceID, in.UserID, t.Type)
	if err != nil {
		return "", unavailable(err)
	}

	start := time.Now()
	report, err := recipients.Validate(text, t, snap, recipients.Options{})
	if err != nil {
		return "", banners.Wrap(err, banners.UnreadableFile)
	}
	metrics.RecordValidation(report.TotalRows, start)

	uploadID := p.newID()
	meta := models.UploadMetadata{
		ServiceID:         in.ServiceID,
		TemplateID:        t.ID,
		TemplateVersion:   t.Version,
		NotificationCount: report.TotalRows,
		Valid:             report.Valid(),
		OriginalFileName:  in.Filename,
	}
	if err := p.Uploads.Put(ctx, in.ServiceID, uploadID, text, meta); err != nil {
		metrics.UploadsAccepted.WithLabelValues(channel, "error").Inc()
		return "", banners.Wrap(fmt.Errorf("stage upload: %w", err), banners.BackendUnavailable)
	}

	outcome := "valid"
	if !meta.Valid {
		outcome = "invalid"
	}
	metrics.UploadsAccepted.WithLabelValues(channel, outcome).Inc()
	p.Log.Info("upload staged",
		zap.String("service_id", in.ServiceID),
		zap.String("template_id", t.ID),
		zap.String("upload_id", uploadID),
		zap.Int("rows", report.TotalRows),
		zap.Bool("valid", meta.Valid),
	)

	session.StartFlow(sess, t.ID)
	session.SetUploadID(sess, uploadID)
	return uploadID, nil
}
