package send

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NotifyAdmin/internal/banners"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/notifyapi"
	"NotifyAdmin/internal/session"
	"NotifyAdmin/internal/templates"
)

func answer(t *testing.T, p *Pipeline, sess *session.Session, templateID string, k int, value string) Step {
	t.Helper()
	step, err := p.AnswerStep(context.Background(), sess, "svc-1", templateID, k, value)
	require.NoError(t, err)
	return step
}

func TestOneOffHappyPath(t *testing.T) {
	api := newFakeBackend()
	p := newTestPipeline(t, api)
	sess := session.New()
	ctx := context.Background()

	step, err := p.OneOffStep(ctx, sess, "svc-1", emailTemplate.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, ShowStep, step.Action)
	assert.Equal(t, "email address", step.Field.Name)
	assert.Equal(t, 3, step.Total)

	step = answer(t, p, sess, emailTemplate.ID, 0, " test@example.ca ")
	assert.Equal(t, ShowStep, step.Action)
	assert.Equal(t, 1, step.Index)
	assert.Equal(t, "name", step.Field.Name)

	step = answer(t, p, sess, emailTemplate.ID, 1, "Ada")
	assert.Equal(t, "code", step.Field.Name)

	step = answer(t, p, sess, emailTemplate.ID, 2, "4242")
	assert.Equal(t, RedirectConfirm, step.Action)

	pv, err := p.OneOffConfirm(ctx, sess, "svc-1", emailTemplate.ID, "u1")
	require.NoError(t, err)
	assert.True(t, pv.CanSend)
	assert.Equal(t, "Hello Ada", pv.Message.Subject)
	assert.Equal(t, "Your code is 4242", pv.Message.Body)

	id, err := p.SendOneOff(ctx, sess, "svc-1", emailTemplate.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "notification-1", id)

	require.Len(t, api.sent, 1)
	assert.Equal(t, models.OneOffRequest{
		TemplateID:      emailTemplate.ID,
		To:              "test@example.ca",
		Personalisation: map[string]string{"name": "Ada", "code": "4242"},
		CreatedBy:       "u1",
	}, api.sent[0])
	assertFlowCleared(t, sess)
}

// A step can only be reached once every earlier step has a value.
func TestOneOffSkipProtection(t *testing.T) {
	values := []string{"test@example.ca", "Ada", "4242"}
	n := len(templates.Fields(emailTemplate))

	for j := 0; j <= n; j++ {
		p := newTestPipeline(t, newFakeBackend())
		sess := session.New()
		for i := 0; i < j; i++ {
			answer(t, p, sess, emailTemplate.ID, i, values[i])
		}

		for k := 0; k <= n+1; k++ {
			step, err := p.OneOffStep(context.Background(), sess, "svc-1", emailTemplate.ID, k)
			require.NoError(t, err)
			switch {
			case k > j:
				assert.Equal(t, RedirectStep, step.Action, "answered %d, step %d", j, k)
				assert.Zero(t, step.Index)
			case k >= n:
				assert.Equal(t, RedirectConfirm, step.Action, "answered %d, step %d", j, k)
			default:
				assert.Equal(t, ShowStep, step.Action, "answered %d, step %d", j, k)
				assert.Equal(t, k, step.Index)
			}
		}
	}
}

func TestOneOffSkippedAnswerIsNotStored(t *testing.T) {
	p := newTestPipeline(t, newFakeBackend())
	sess := session.New()

	step := answer(t, p, sess, emailTemplate.ID, 2, "4242")
	assert.Equal(t, RedirectStep, step.Action)
	assert.Empty(t, session.Flow(sess).Placeholders)
}

func TestOneOffRejectsBadValues(t *testing.T) {
	p := newTestPipeline(t, newFakeBackend())
	sess := session.New()
	ctx := context.Background()

	_, err := p.AnswerStep(ctx, sess, "svc-1", emailTemplate.ID, 0, "not-an-email")
	assert.True(t, banners.Is(err, banners.InvalidRecipient))
	assert.Empty(t, session.Flow(sess).Recipient)

	answer(t, p, sess, emailTemplate.ID, 0, "test@example.ca")
	step, err := p.AnswerStep(ctx, sess, "svc-1", emailTemplate.ID, 1, "  ")
	assert.True(t, banners.Is(err, banners.MissingValue))
	assert.Equal(t, "name", step.Field.Name)

	_, err = p.OneOffConfirm(ctx, sess, "svc-1", emailTemplate.ID, "u1")
	assert.ErrorIs(t, err, ErrIncomplete)
}

func TestOneOffPhoneIsCanonicalised(t *testing.T) {
	p := newTestPipeline(t, newFakeBackend())
	sess := session.New()

	answer(t, p, sess, smsTemplate.ID, 0, "(650) 253-2222")
	assert.Equal(t, "+16502532222", session.Flow(sess).Recipient)

	_, err := p.AnswerStep(context.Background(), sess, "svc-1", smsTemplate.ID, 0, "+44 7400 123456")
	assert.True(t, banners.Is(err, banners.InvalidRecipient), "international needs permission")
}

func TestOneOffLetterOptionalLines(t *testing.T) {
	api := newFakeBackend()
	p := newTestPipeline(t, api)
	sess := session.New()

	lines := []string{"A Person", "1 Main Street", "", "", "", "", "Ottawa ON K1A 0B1"}
	for i, v := range lines {
		step := answer(t, p, sess, letterTemplate.ID, i, v)
		if i < len(lines)-1 {
			assert.Equal(t, ShowStep, step.Action, "line %d", i+1)
			assert.Equal(t, i+1, step.Index)
		} else {
			assert.Equal(t, RedirectConfirm, step.Action)
		}
	}

	pv, err := p.OneOffConfirm(context.Background(), sess, "svc-1", letterTemplate.ID, "u1")
	require.NoError(t, err)
	assert.True(t, pv.CanSend, "banner: %+v", pv.Banner)

	_, err = p.SendOneOff(context.Background(), sess, "svc-1", letterTemplate.ID, "u1")
	require.NoError(t, err)
	require.Len(t, api.sent, 1)
	assert.Equal(t, "A Person", api.sent[0].To)
	assert.Equal(t, "Ottawa ON K1A 0B1", api.sent[0].Personalisation["postcode"])
	assert.Equal(t, "", api.sent[0].Personalisation["address line 3"])
}

func TestOneOffTrialRecipientBlocked(t *testing.T) {
	api := newFakeBackend()
	api.service.Restricted = true
	p := newTestPipeline(t, api)
	sess := session.New()

	answer(t, p, sess, emailTemplate.ID, 0, "stranger@example.com")
	answer(t, p, sess, emailTemplate.ID, 1, "Ada")
	answer(t, p, sess, emailTemplate.ID, 2, "1")

	_, err := p.SendOneOff(context.Background(), sess, "svc-1", emailTemplate.ID, "u1")
	assert.True(t, banners.Is(err, banners.TrialModeRestricted))
	assert.Empty(t, api.sent)
	assert.Equal(t, "stranger@example.com", session.Flow(sess).Recipient)
}

func TestOneOffSenderAndBackendRejection(t *testing.T) {
	api := newFakeBackend()
	api.senders = []models.Sender{{ID: "s1", Value: "help@example.ca", IsDefault: true}, {ID: "s2", Value: "desk@example.ca"}}
	api.sendErr = &notifyapi.APIError{Status: 400, Code: "content_too_long", Message: "too long"}
	p := newTestPipeline(t, api)
	sess := session.New()
	ctx := context.Background()

	answer(t, p, sess, emailTemplate.ID, 0, "test@example.ca")
	require.NoError(t, p.SetOneOffSender(ctx, sess, "svc-1", emailTemplate.ID, "s2"))
	assert.ErrorIs(t, p.SetOneOffSender(ctx, sess, "svc-1", emailTemplate.ID, "s9"), ErrUnknownSender)
	answer(t, p, sess, emailTemplate.ID, 1, "Ada")
	answer(t, p, sess, emailTemplate.ID, 2, "1")

	pv, err := p.OneOffConfirm(ctx, sess, "svc-1", emailTemplate.ID, "u1")
	require.NoError(t, err)
	assert.Equal(t, "s2", pv.Sender.ID)

	_, err = p.SendOneOff(ctx, sess, "svc-1", emailTemplate.ID, "u1")
	assert.True(t, banners.Is(err, banners.ContentTooLong))
	assert.Equal(t, "s2", session.Flow(sess).SenderID, "flow kept for retry")
}

func TestCancelOneOff(t *testing.T) {
	p := newTestPipeline(t, newFakeBackend())
	sess := session.New()
	answer(t, p, sess, emailTemplate.ID, 0, "test@example.ca")

	CancelOneOff(sess)
	assertFlowCleared(t, sess)
}
