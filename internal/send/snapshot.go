package send

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"NotifyAdmin/internal/models"
)

// LoadSnapshot gathers the service state validation depends on. The backend
// calls run concurrently and the first failure cancels the rest.
func (p *Pipeline) LoadSnapshot(ctx context.Context, serviceID, userID string, tt models.TemplateType) (models.Snapshot, error) {
	var (
		service  models.Service
		today    models.Stats
		annual   models.Stats
		user     models.User
		team     []models.User
		safelist models.Safelist
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		service, err = p.API.GetService(gctx, serviceID)
		return err
	})
	g.Go(func() (err error) {
		today, err = p.API.GetTodayStats(gctx, serviceID)
		return err
	})
	if p.Settings.AnnualLimitEnforced {
		g.Go(func() (err error) {
			annual, err = p.API.GetAnnualStats(gctx, serviceID)
			return err
		})
	}
	if userID != "" {
		g.Go(func() (err error) {
			user, err = p.API.GetUser(gctx, userID)
			return err
		})
	}
	g.Go(func() (err error) {
		team, err = p.API.GetTeam(gctx, serviceID)
		return err
	})
	g.Go(func() (err error) {
		safelist, err = p.API.GetSafelist(gctx, serviceID)
		return err
	})
	if err := g.Wait(); err != nil {
		return models.Snapshot{}, fmt.Errorf("load snapshot for %s: %w", serviceID, err)
	}

	return models.Snapshot{
		ServiceID: serviceID,
		TrialMode: service.Restricted,
		Flags: models.Flags{
			AnnualLimitEnforced: p.Settings.AnnualLimitEnforced,
			BulkSendAllowed:     p.Settings.BulkSendAllowed,
			InternationalSMS:    service.HasPermission(models.PermissionInternationalSMS),
		},
		MaxRows:         p.Settings.MaxRows,
		DailyRemaining:  dailyRemaining(service, today, tt),
		AnnualRemaining: annualRemaining(service, annual, tt),
		HomeRegion:      p.Settings.HomeRegion,
		CurrentUser:     user,
		Team:            team,
		Safelist:        safelist,
	}, nil
}

// Remaining counts are -1 where no limit applies.
func dailyRemaining(s models.Service, today models.Stats, tt models.TemplateType) int {
	var limit int
	switch tt {
	case models.TemplateTypeSMS:
		limit = s.SMSDailyLimit
	case models.TemplateTypeEmail:
		limit = s.MessageLimit
	default:
		return -1
	}
	if limit <= 0 {
		return -1
	}
	return max(0, limit-today[tt].Requested)
}

func annualRemaining(s models.Service, annual models.Stats, tt models.TemplateType) int {
	var limit int
	switch tt {
	case models.TemplateTypeSMS:
		limit = s.SMSAnnualLimit
	case models.TemplateTypeEmail:
		limit = s.EmailAnnualLimit
	default:
		return -1
	}
	if limit <= 0 {
		return -1
	}
	return max(0, limit-annual[tt].Requested)
}
