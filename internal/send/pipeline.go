// Package send drives a send from upload to job: it stages uploads, builds
// the preview, walks the one-off steps and submits to the backend.
package send

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/config"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/uploads"
)

// Backend is the part of the Notify API a send needs.
type Backend interface {
	GetService(ctx context.Context, serviceID string) (models.Service, error)
	GetTemplate(ctx context.Context, serviceID, templateID string, version int) (models.Template, error)
	GetTodayStats(ctx context.Context, serviceID string) (models.Stats, error)
	GetAnnualStats(ctx context.Context, serviceID string) (models.Stats, error)
	GetUser(ctx context.Context, userID string) (models.User, error)
	GetTeam(ctx context.Context, serviceID string) ([]models.User, error)
	GetSafelist(ctx context.Context, serviceID string) (models.Safelist, error)
	GetSenders(ctx context.Context, serviceID string, tt models.TemplateType) ([]models.Sender, error)
	CreateJob(ctx context.Context, serviceID string, req models.CreateJobRequest) (models.Job, error)
	SendNotification(ctx context.Context, serviceID string, req models.OneOffRequest) (string, error)
}

type Settings struct {
	MaxRows             int
	HomeRegion          string
	AnnualLimitEnforced bool
	BulkSendAllowed     bool
	MaxScheduleHorizon  time.Duration
}

func SettingsFromConfig(cfg *config.Config) Settings {
	return Settings{
		MaxRows:             cfg.CSVMaxRows,
		HomeRegion:          cfg.PhoneHomeRegion,
		AnnualLimitEnforced: cfg.AnnualLimitEnforced,
		BulkSendAllowed:     cfg.BulkSendAllowed,
		MaxScheduleHorizon:  cfg.MaxScheduleHorizon,
	}
}

type Pipeline struct {
	API      Backend
	Uploads  uploads.Store
	Settings Settings
	Log      *zap.Logger

	now   func() time.Time
	newID func() string
}

func New(api Backend, store uploads.Store, settings Settings, log *zap.Logger) *Pipeline {
	return &Pipeline{
		API:      api,
		Uploads:  store,
		Settings: settings,
		Log:      log.Named("send"),
		now:      time.Now,
		newID:    uuid.NewString,
	}
}

// unavailable wraps infrastructure failures. Not-found from the backend
// means the thing the user was looking at has gone.
func unavailable(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := banners.As(err); ok {
		return err
	}
	if errors.Is(err, notifyapi.ErrNotFound) || errors.Is(err, uploads.ErrNotFound) {
		return banners.Wrap(err, banners.UploadExpired)
	}
	return banners.Wrap(err, banners.BackendUnavailable)
}

// rejected maps a refused send to the banner the user sees.
func rejected(err error) error {
	switch notifyapi.PolicyOf(err) {
	case notifyapi.PolicyTrialMode:
		return banners.Wrap(err, banners.TrialModeRestricted)
	case notifyapi.PolicyDailyLimit:
		return banners.Wrap(err, banners.DailyLimitExceeded)
	case notifyapi.PolicyAnnualLimit:
		return banners.Wrap(err, banners.AnnualLimitExceeded)
	case notifyapi.PolicyContentTooLong:
		return banners.Wrap(err, banners.ContentTooLong)
	case notifyapi.PolicyInvalidSchedule:
		return banners.Wrap(err, banners.InvalidSchedule)
	}
	return unavailable(err)
}
