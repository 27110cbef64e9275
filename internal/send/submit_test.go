package send

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/session"
)

func confirmRequest(uploadID string) ConfirmRequest {
	return ConfirmRequest{
		ServiceID:       "svc-1",
		TemplateID:      emailTemplate.ID,
		UploadID:        uploadID,
		UserID:          "u1",
		TemplateVersion: emailTemplate.Version,
	}
}

func assertFlowCleared(t *testing.T, sess *session.Session) {
	t.Helper()
	for _, k := range session.FlowKeys {
		assert.False(t, sess.Has(k), "session still holds %q", k)
	}
}

func TestConfirmCreatesJobAndClearsFlow(t *testing.T) {
	api := newFakeBackend()
	p := newTestPipeline(t, api)
	sess := session.New()
	sess.SetUserID("u1")
	id := accept(t, p, sess, emailTemplate.ID, emailRows(2))
	session.SetSenderID(sess, "s1")
	session.SetStep(sess, 2)

	job, err := p.Confirm(context.Background(), sess, confirmRequest(id))
	require.NoError(t, err)
	assert.Equal(t, "job-1", job.ID)

	require.Len(t, api.jobs, 1)
	assert.Equal(t, id, api.jobs[0].UploadID)
	assert.Equal(t, "u1", api.jobs[0].CreatedBy)
	assert.Nil(t, api.jobs[0].ScheduledFor)

	assertFlowCleared(t, sess)
	assert.Equal(t, "u1", sess.UserID())
}

func TestConfirmSchedulesJob(t *testing.T) {
	api := newFakeBackend()
	p := newTestPipeline(t, api)
	sess := session.New()
	id := accept(t, p, sess, emailTemplate.ID, emailRows(1))

	req := confirmRequest(id)
	req.ScheduledFor = fixedNow.Add(2 * time.Hour).Format(time.RFC3339)
	_, err := p.Confirm(context.Background(), sess, req)
	require.NoError(t, err)

	require.Len(t, api.jobs, 1)
	require.NotNil(t, api.jobs[0].ScheduledFor)
	assert.True(t, api.jobs[0].ScheduledFor.Equal(fixedNow.Add(2*time.Hour)))
}

func TestConfirmFromAnotherSession(t *testing.T) {
	api := newFakeBackend()
	p := newTestPipeline(t, api)
	owner := session.New()
	owner.SetUserID("u1")
	id := accept(t, p, owner, emailTemplate.ID, emailRows(1))

	stranger := session.New()
	stranger.SetUserID("u2")
	req := confirmRequest(id)
	req.UserID = "u2"
	_, err := p.Confirm(context.Background(), stranger, req)
	assert.True(t, banners.Is(err, banners.UploadExpired), "got %v", err)
	assert.Empty(t, api.jobs)

	// A later upload in the same session replaces the staged one.
	next := accept(t, p, owner, emailTemplate.ID, emailRows(1))
	_, err = p.Confirm(context.Background(), owner, confirmRequest(id))
	assert.True(t, banners.Is(err, banners.UploadExpired))
	assert.Empty(t, api.jobs)

	_, err = p.Confirm(context.Background(), owner, confirmRequest(next))
	require.NoError(t, err)
	assert.Len(t, api.jobs, 1)
}

func TestConfirmRefusals(t *testing.T) {
	tests := []struct {
		name  string
		setup func(api *fakeBackend, req *ConfirmRequest)
		csv   string
		want  banners.Kind
	}{
		{
			name:  "template edited since upload",
			setup: func(_ *fakeBackend, req *ConfirmRequest) { req.TemplateVersion = 1 },
			csv:   emailRows(1),
			want:  banners.TemplateChanged,
		},
		{
			name: "upload has errors",
			csv:  "email address,name\na@example.ca,A\n",
			want: banners.MissingColumns,
		},
		{
			name:  "schedule in the past",
			setup: func(_ *fakeBackend, req *ConfirmRequest) { req.ScheduledFor = "2026-03-01T09:00:00Z" },
			csv:   emailRows(1),
			want:  banners.InvalidSchedule,
		},
		{
			name: "backend daily limit",
			setup: func(api *fakeBackend, _ *ConfirmRequest) {
				api.jobErr = &notifyapi.APIError{Status: 429, Code: "too_many_requests", Message: "Exceeded send limits (1000) for today"}
			},
			csv:  emailRows(1),
			want: banners.DailyLimitExceeded,
		},
		{
			name: "backend trial mode",
			setup: func(api *fakeBackend, _ *ConfirmRequest) {
				api.jobErr = &notifyapi.APIError{Status: 400, Message: "Can't send to this recipient when service is in trial mode"}
			},
			csv:  emailRows(1),
			want: banners.TrialModeRestricted,
		},
		{
			name: "backend down",
			setup: func(api *fakeBackend, _ *ConfirmRequest) {
				api.jobErr = &notifyapi.APIError{Status: 503, Message: "unavailable"}
			},
			csv:  emailRows(1),
			want: banners.BackendUnavailable,
		},
		{
			name: "unknown rejection",
			setup: func(api *fakeBackend, _ *ConfirmRequest) {
				api.jobErr = &notifyapi.APIError{Status: 400, Message: "something else"}
			},
			csv:  emailRows(1),
			want: banners.BackendUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := newFakeBackend()
			p := newTestPipeline(t, api)
			sess := session.New()
			id := accept(t, p, sess, emailTemplate.ID, tt.csv)

			req := confirmRequest(id)
			if tt.setup != nil {
				tt.setup(api, &req)
			}
			_, err := p.Confirm(context.Background(), sess, req)
			b, ok := banners.As(err)
			require.True(t, ok, "error %v is not a banner", err)
			assert.Equal(t, tt.want, b.Kind)

			// Staging survives so the user can retry.
			assert.Equal(t, id, session.Flow(sess).UploadID)
			assert.Empty(t, api.jobs)
		})
	}
}

func TestParseSchedule(t *testing.T) {
	horizon := 96 * time.Hour

	at, err := ParseSchedule("", fixedNow, horizon)
	require.NoError(t, err)
	assert.Nil(t, at)

	at, err = ParseSchedule("2026-03-03T10:30:00-05:00", fixedNow, horizon)
	require.NoError(t, err)
	require.NotNil(t, at)
	assert.Equal(t, time.Date(2026, 3, 3, 15, 30, 0, 0, time.UTC), *at)

	at, err = ParseSchedule("2026-03-04T08:15", fixedNow, horizon)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2026, 3, 4, 8, 15, 0, 0, time.UTC), *at)

	for _, raw := range []string{
		"tomorrow",
		"2026-03-02",
		fixedNow.Add(-time.Minute).Format(time.RFC3339),
		fixedNow.Format(time.RFC3339),
		fixedNow.Add(horizon + time.Minute).Format(time.RFC3339),
	} {
		_, err := ParseSchedule(raw, fixedNow, horizon)
		assert.True(t, banners.Is(err, banners.InvalidSchedule), raw)
	}
}
