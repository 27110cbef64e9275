package send

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/metrics"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/session"
)

type ConfirmRequest struct {
	ServiceID  string
	TemplateID string
	UploadID   string
	UserID     string
	// TemplateVersion is the version the user was shown.
	TemplateVersion int
	// ScheduledFor is an RFC 3339 time, or empty to send now.
	ScheduledFor string
}

// ParseSchedule checks a requested send time. Empty means now; a time
// without a zone is read as UTC.
func ParseSchedule(raw string, now time.Time, horizon time.Duration) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	at, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		// datetime-local inputs send minutes and no zone.
		at, err = time.ParseInLocation("2006-01-02T15:04", raw, time.UTC)
	}
	if err != nil {
		return nil, banners.Wrap(fmt.Errorf("parse scheduled time: %w", err), banners.InvalidSchedule)
	}
	if !at.After(now) {
		return nil, banners.Wrap(fmt.Errorf("scheduled time %s is in the past", raw), banners.InvalidSchedule)
	}
	if horizon > 0 && at.Sub(now) > horizon {
		return nil, banners.Wrap(fmt.Errorf("scheduled time %s is more than %s ahead", raw, horizon), banners.InvalidSchedule)
	}
	at = at.UTC()
	return &at, nil
}

// Confirm revalidates the upload and asks the backend to create the job. Only
// the session that staged the upload may confirm it. The
// send-flow keys are cleared from sess only once the backend has accepted
// the job; on any failure they are left for the user to retry.
func (p *Pipeline) Confirm(ctx context.Context, sess *session.Session, req ConfirmRequest) (models.Job, error) {
	job, err := p.confirm(ctx, sess, req)
	if err != nil {
		if b, ok := banners.As(err); ok {
			metrics.SendsRejected.WithLabelValues(string(b.Kind)).Inc()
		}
		p.Log.Info("job not created",
			zap.String("service_id", req.ServiceID),
			zap.String("upload_id", req.UploadID),
			zap.Error(err),
		)
		return models.Job{}, err
	}

	metrics.JobsCreated.Inc()
	p.Log.Info("job created",
		zap.String("service_id", req.ServiceID),
		zap.String("job_id", job.ID),
		zap.String("upload_id", req.UploadID),
	)
	session.ClearFlow(sess)
	return job, nil
}

func (p *Pipeline) confirm(ctx context.Context, sess *session.Session, req ConfirmRequest) (models.Job, error) {
	scheduled, err := ParseSchedule(req.ScheduledFor, p.now(), p.Settings.MaxScheduleHorizon)
	if err != nil {
		return models.Job{}, err
	}

	pv, err := p.Preview(ctx, sess, PreviewRequest{
		ServiceID:  req.ServiceID,
		TemplateID: req.TemplateID,
		UploadID:   req.UploadID,
		UserID:     req.UserID,
	})
	if err != nil {
		return models.Job{}, err
	}
	if pv.Upload.TemplateVersion != req.TemplateVersion {
		return models.Job{}, banners.Wrap(
			fmt.Errorf("template version %d, upload has %d", req.TemplateVersion, pv.Upload.TemplateVersion),
			banners.TemplateChanged,
		)
	}
	if !pv.CanSend {
		return models.Job{}, pv.Banner
	}

	job, err := p.API.CreateJob(ctx, req.ServiceID, models.CreateJobRequest{
		UploadID:     req.UploadID,
		ScheduledFor: scheduled,
		CreatedBy:    req.UserID,
	})
	if err != nil {
		return models.Job{}, rejected(err)
	}
	return job, nil
}
