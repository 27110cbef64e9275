package send

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/session"
	"NotifyAdmin/internal/uploads"
)

var fixedNow = time.Date(2026, 3, 2, 15, 0, 0, 0, time.UTC)

var (
	smsTemplate = models.Template{
		ID: "t-sms", ServiceID: "svc-1", Type: models.TemplateTypeSMS, Version: 3,
		Content: "Hi ((name))",
	}
	emailTemplate = models.Template{
		ID: "t-email", ServiceID: "svc-1", Type: models.TemplateTypeEmail, Version: 2,
		Subject: "Hello ((name))", Content: "Your code is ((code))",
	}
	letterTemplate = models.Template{
		ID: "t-letter", ServiceID: "svc-1", Type: models.TemplateTypeLetter, Version: 1,
		Subject: "Your licence", Content: "It is ready.",
	}
)

type fakeBackend struct {
	mu sync.Mutex

	service   models.Service
	templates map[string]models.Template
	today     models.Stats
	annual    models.Stats
	user      models.User
	team      []models.User
	safelist  models.Safelist
	senders   []models.Sender

	statsErr error
	jobErr   error
	sendErr  error

	jobs []models.CreateJobRequest
	sent []models.OneOffRequest
}

func newFakeBackend() *fakeBackend {
	me := models.User{ID: "u1", Name: "Me", EmailAddress: "me@example.ca", MobileNumber: "+16502532222"}
	return &fakeBackend{
		service: models.Service{
			ID:            "svc-1",
			Name:          "Licensing",
			MessageLimit:  1000,
			SMSDailyLimit: 1000,
			Permissions:   []string{models.PermissionEmail, models.PermissionSMS, models.PermissionLetter},
		},
		templates: map[string]models.Template{
			smsTemplate.ID:    smsTemplate,
			emailTemplate.ID:  emailTemplate,
			letterTemplate.ID: letterTemplate,
		},
		today:  models.Stats{},
		annual: models.Stats{},
		user:   me,
		team:   []models.User{me},
	}
}

func (f *fakeBackend) GetService(context.Context, string) (models.Service, error) {
	return f.service, nil
}

func (f *fakeBackend) GetTemplate(_ context.Context, _, templateID string, version int) (models.Template, error) {
	t, ok := f.templates[templateID]
	if !ok {
		return models.Template{}, &notifyapi.APIError{Status: 404, Message: "No result found"}
	}
	if version != 0 {
		t.Version = version
	}
	return t, nil
}

func (f *fakeBackend) GetTodayStats(context.Context, string) (models.Stats, error) {
	return f.today, f.statsErr
}

func (f *fakeBackend) GetAnnualStats(context.Context, string) (models.Stats, error) {
	return f.annual, f.statsErr
}

func (f *fakeBackend) GetUser(context.Context, string) (models.User, error) {
	return f.user, nil
}

func (f *fakeBackend) GetTeam(context.Context, string) ([]models.User, error) {
	return f.team, nil
}

func (f *fakeBackend) GetSafelist(context.Context, string) (models.Safelist, error) {
	return f.safelist, nil
}

func (f *fakeBackend) GetSenders(context.Context, string, models.TemplateType) ([]models.Sender, error) {
	return f.senders, nil
}

func (f *fakeBackend) CreateJob(_ context.Context, _ string, req models.CreateJobRequest) (models.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.jobErr != nil {
		return models.Job{}, f.jobErr
	}
	f.jobs = append(f.jobs, req)
	return models.Job{ID: fmt.Sprintf("job-%d", len(f.jobs)), Status: models.JobStatusPending}, nil
}

func (f *fakeBackend) SendNotification(_ context.Context, _ string, req models.OneOffRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return "", f.sendErr
	}
	f.sent = append(f.sent, req)
	return fmt.Sprintf("notification-%d", len(f.sent)), nil
}

func newTestPipeline(t *testing.T, api *fakeBackend) *Pipeline {
	t.Helper()
	store, err := uploads.NewLocalStore(t.TempDir(), uploads.DefaultMetadataBudget, zap.NewNop())
	require.NoError(t, err)

	p := New(api, store, Settings{
		MaxRows:            50000,
		HomeRegion:         "CA",
		BulkSendAllowed:    true,
		MaxScheduleHorizon: 96 * time.Hour,
	}, zap.NewNop())
	p.now = func() time.Time { return fixedNow }
	n := 0
	p.newID = func() string {
		n++
		return fmt.Sprintf("upload-%d", n)
	}
	return p
}

func accept(t *testing.T, p *Pipeline, sess *session.Session, templateID, csv string) string {
	t.Helper()
	id, err := p.Accept(context.Background(), sess, Upload{
		ServiceID:  "svc-1",
		TemplateID: templateID,
		UserID:     "u1",
		Filename:   "list.csv",
		Data:       []byte(csv),
	})
	require.NoError(t, err)
	return id
}
