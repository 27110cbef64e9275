package models

import "time"

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusScheduled  JobStatus = "scheduled"
	JobStatusInProgress JobStatus = "in progress"
	JobStatusFinished   JobStatus = "finished"
	JobStatusCancelled  JobStatus = "cancelled"
)

type Job struct {
	ID                string     `json:"id"`
	ServiceID         string     `json:"service"`
	TemplateID        string     `json:"template"`
	TemplateVersion   int        `json:"template_version"`
	OriginalFileName  string     `json:"original_file_name"`
	NotificationCount int        `json:"notification_count"`
	Status            JobStatus  `json:"job_status"`
	ScheduledFor      *time.Time `json:"scheduled_for,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
}

type Notification struct {
	ID         string    `json:"id"`
	To         string    `json:"to"`
	Status     string    `json:"status"`
	TemplateID string    `json:"template_id"`
	CreatedAt  time.Time `json:"created_at"`
}

// OneOffRequest is a single-message send from the one-off flow.
type OneOffRequest struct {
	TemplateID      string            `json:"template_id"`
	To              string            `json:"to"`
	Personalisation map[string]string `json:"personalisation,omitempty"`
	SenderID        string            `json:"sender_id,omitempty"`
	CreatedBy       string            `json:"created_by"`
}

type CreateJobRequest struct {
	UploadID     string     `json:"id"`
	ScheduledFor *time.Time `json:"scheduled_for,omitempty"`
	CreatedBy    string     `json:"created_by,omitempty"`
}
