package notifyapi

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"NotifyAdmin/internal/models"
)

type dataEnvelope[T any] struct {
	Data T `json:"data"`
}

func (c *Client) GetService(ctx context.Context, serviceID string) (models.Service, error) {
	var out dataEnvelope[models.Service]
	err := c.call(ctx, http.MethodGet, "service", "/service/"+url.PathEscape(serviceID), nil, &out)
	return out.Data, err
}

// GetTemplate fetches a template. A version of 0 means the latest.
func (c *Client) GetTemplate(ctx context.Context, serviceID, templateID string, version int) (models.Template, error) {
	path := fmt.Sprintf("/service/%s/template/%s", url.PathEscape(serviceID), url.PathEscape(templateID))
	if version > 0 {
		path += fmt.Sprintf("/version/%d", version)
	}
	var out dataEnvelope[models.Template]
	err := c.call(ctx, http.MethodGet, "template", path, nil, &out)
	return out.Data, err
}

// GetTodayStats returns today's per-channel counts.
func (c *Client) GetTodayStats(ctx context.Context, serviceID string) (models.Stats, error) {
	var out dataEnvelope[models.Stats]
	path := fmt.Sprintf("/service/%s/statistics?today_only=True", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodGet, "statistics", path, nil, &out)
	return out.Data, err
}

// GetAnnualStats returns per-channel counts for the current fiscal year.
func (c *Client) GetAnnualStats(ctx context.Context, serviceID string) (models.Stats, error) {
	var out dataEnvelope[models.Stats]
	path := fmt.Sprintf("/service/%s/annual-limit-stats", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodGet, "annual_statistics", path, nil, &out)
	return out.Data, err
}

func (c *Client) GetUser(ctx context.Context, userID string) (models.User, error) {
	var out dataEnvelope[models.User]
	err := c.call(ctx, http.MethodGet, "user", "/user/"+url.PathEscape(userID), nil, &out)
	return out.Data, err
}

// GetTeam lists the service's team members.
func (c *Client) GetTeam(ctx context.Context, serviceID string) ([]models.User, error) {
	var out dataEnvelope[[]models.User]
	path := fmt.Sprintf("/service/%s/users", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodGet, "users", path, nil, &out)
	return out.Data, err
}

func (c *Client) GetSafelist(ctx context.Context, serviceID string) (models.Safelist, error) {
	var out models.Safelist
	path := fmt.Sprintf("/service/%s/safelist", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodGet, "safelist", path, nil, &out)
	return out, err
}

// senderRecord covers reply-to addresses, SMS senders and letter contacts,
// which name their value differently.
type senderRecord struct {
	ID           string `json:"id"`
	EmailAddress string `json:"email_address"`
	SMSSender    string `json:"sms_sender"`
	ContactBlock string `json:"contact_block"`
	IsDefault    bool   `json:"is_default"`
}

func (r senderRecord) sender() models.Sender {
	value := r.EmailAddress
	if value == "" {
		value = r.SMSSender
	}
	if value == "" {
		value = r.ContactBlock
	}
	return models.Sender{ID: r.ID, Value: value, IsDefault: r.IsDefault}
}

var senderPaths = map[models.TemplateType]string{
	models.TemplateTypeEmail:  "email-reply-to",
	models.TemplateTypeSMS:    "sms-sender",
	models.TemplateTypeLetter: "letter-contact",
}

// GetSenders lists the senders a template of type tt may use.
func (c *Client) GetSenders(ctx context.Context, serviceID string, tt models.TemplateType) ([]models.Sender, error) {
	suffix, ok := senderPaths[tt]
	if !ok {
		return nil, fmt.Errorf("no senders for template type %q", tt)
	}
	var records []senderRecord
	path := fmt.Sprintf("/service/%s/%s", url.PathEscape(serviceID), suffix)
	if err := c.call(ctx, http.MethodGet, "senders", path, nil, &records); err != nil {
		return nil, err
	}
	senders := make([]models.Sender, 0, len(records))
	for _, r := range records {
		senders = append(senders, r.sender())
	}
	return senders, nil
}

// CreateJob turns a staged upload into a job.
func (c *Client) CreateJob(ctx context.Context, serviceID string, req models.CreateJobRequest) (models.Job, error) {
	var out dataEnvelope[models.Job]
	path := fmt.Sprintf("/service/%s/job", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodPost, "create_job", path, req, &out)
	return out.Data, err
}

func (c *Client) GetJob(ctx context.Context, serviceID, jobID string) (models.Job, error) {
	var out dataEnvelope[models.Job]
	path := fmt.Sprintf("/service/%s/job/%s", url.PathEscape(serviceID), url.PathEscape(jobID))
	err := c.call(ctx, http.MethodGet, "job", path, nil, &out)
	return out.Data, err
}

// SendNotification sends a single message and returns its id.
func (c *Client) SendNotification(ctx context.Context, serviceID string, req models.OneOffRequest) (string, error) {
	var out struct {
		ID string `json:"id"`
	}
	path := fmt.Sprintf("/service/%s/send-notification", url.PathEscape(serviceID))
	err := c.call(ctx, http.MethodPost, "send_notification", path, req, &out)
	return out.ID, err
}

func (c *Client) GetNotification(ctx context.Context, serviceID, notificationID string) (models.Notification, error) {
	var out models.Notification
	path := fmt.Sprintf("/service/%s/notifications/%s", url.PathEscape(serviceID), url.PathEscape(notificationID))
	err := c.call(ctx, http.MethodGet, "notification", path, nil, &out)
	return out, err
}
