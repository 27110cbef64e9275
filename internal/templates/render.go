package templates

import (
	"strings"

	"NotifyAdmin/internal/models"
)

// Message is a template filled in for one recipient.
type Message struct {
	Subject string
	Body    string
}

// Render fills placeholders from values, which are keyed by column header in
// any spelling Key accepts. Placeholders without a value stay visible.
func Render(text string, values map[string]string) string {
	byKey := make(map[string]string, len(values))
	for k, v := range values {
		byKey[Key(k)] = v
	}
	return placeholderPattern.ReplaceAllStringFunc(text, func(marker string) string {
		raw := marker[2 : len(marker)-2]
		name, conditional, isConditional := strings.Cut(raw, conditionalSeparator)
		value, ok := byKey[Key(strings.TrimSpace(name))]
		if !ok {
			return marker
		}
		if isConditional {
			if truthy(value) {
				return conditional
			}
			return ""
		}
		return value
	})
}

func truthy(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "yes", "y", "true", "1":
		return true
	}
	return false
}

// RenderMessage renders subject (where the channel has one) and body.
func RenderMessage(t models.Template, values map[string]string) Message {
	msg := Message{Body: Render(t.Content, values)}
	if t.HasSubject() {
		msg.Subject = Render(t.Subject, values)
	}
	return msg
}
