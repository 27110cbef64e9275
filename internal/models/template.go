package models

type TemplateType string

const (
	TemplateTypeEmail  TemplateType = "email"
	TemplateTypeSMS    TemplateType = "sms"
	TemplateTypeLetter TemplateType = "letter"
)

type Postage string

const (
	PostageFirst  Postage = "first"
	PostageSecond Postage = "second"
)

// Template is read-only for the duration of a send.
type Template struct {
	ID          string       `json:"id"`
	ServiceID   string       `json:"service"`
	Name        string       `json:"name"`
	Type        TemplateType `json:"template_type"`
	Version     int          `json:"version"`
	Content     string       `json:"content"`
	Subject     string       `json:"subject,omitempty"`
	ProcessType string       `json:"process_type,omitempty"`
	Postage     Postage      `json:"postage,omitempty"`
}

// HasSubject reports whether placeholders in the subject line count.
func (t Template) HasSubject() bool {
	return t.Type == TemplateTypeEmail || t.Type == TemplateTypeLetter
}
