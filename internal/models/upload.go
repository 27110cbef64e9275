package models

// UploadMetadata is the typed form of the blob metadata stored with an
// upload. Every field is serialised as a string.
type UploadMetadata struct {
	ServiceID         string
	TemplateID        string
	TemplateVersion   int
	NotificationCount int
	Valid             bool
	SenderID          string
	OriginalFileName  string
}
