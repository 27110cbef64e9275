// Package templates derives column schemas from message templates and renders
// preview text for a single row of personalisation.
package templates

import (
	"regexp"
	"strings"

	"NotifyAdmin/internal/models"
)

var placeholderPattern = regexp.MustCompile(`\(\(([^()]+)\)\)`)

const conditionalSeparator = "??"

var (
	emailColumns  = []string{"email address"}
	smsColumns    = []string{"phone number"}
	letterColumns = []string{
		"address line 1",
		"address line 2",
		"address line 3",
		"address line 4",
		"address line 5",
		"address line 6",
		"postcode",
	}
	letterRequired = map[string]bool{
		"addressline1": true,
		"addressline2": true,
		"postcode":     true,
	}
)

// Key normalises a column header or placeholder name so that "Phone Number",
// "phone_number" and "phonenumber" compare equal.
func Key(name string) string {
	var sb strings.Builder
	for _, r := range strings.ToLower(name) {
		switch r {
		case ' ', '_', '-', '\t':
			continue
		}
		sb.WriteRune(r)
	}
	key := sb.String()
	// "address line 7" is the newer name for the final address line.
	if key == "addressline7" {
		return "postcode"
	}
	return key
}

// placeholderName strips the conditional part from ((name??text)).
func placeholderName(raw string) string {
	name, _, _ := strings.Cut(raw, conditionalSeparator)
	return strings.TrimSpace(name)
}

// Placeholders returns the placeholder names used by the template, subject
// first, deduplicated by Key and in order of first appearance.
func Placeholders(t models.Template) []string {
	var sources []string
	if t.HasSubject() {
		sources = append(sources, t.Subject)
	}
	sources = append(sources, t.Content)

	seen := make(map[string]bool)
	var names []string
	for _, src := range sources {
		for _, m := range placeholderPattern.FindAllStringSubmatch(src, -1) {
			name := placeholderName(m[1])
			if name == "" {
				continue
			}
			k := Key(name)
			if seen[k] {
				continue
			}
			seen[k] = true
			names = append(names, name)
		}
	}
	return names
}

// RecipientColumns lists the recipient headers for a channel. For letters
// these are the seven address fields.
func RecipientColumns(tt models.TemplateType) []string {
	switch tt {
	case models.TemplateTypeEmail:
		return emailColumns
	case models.TemplateTypeSMS:
		return smsColumns
	case models.TemplateTypeLetter:
		return letterColumns
	}
	return nil
}

// IsRecipientColumn reports whether header names a recipient field for the channel.
func IsRecipientColumn(tt models.TemplateType, header string) bool {
	k := Key(header)
	for _, c := range RecipientColumns(tt) {
		if Key(c) == k {
			return true
		}
	}
	return false
}

// RequiredColumns is the ordered list of columns every upload must contain:
// the recipient columns first, then the template's own placeholders.
func RequiredColumns(t models.Template) []string {
	var cols []string
	seen := make(map[string]bool)
	for _, c := range RecipientColumns(t.Type) {
		if t.Type == models.TemplateTypeLetter && !letterRequired[Key(c)] {
			continue
		}
		seen[Key(c)] = true
		cols = append(cols, c)
	}
	for _, p := range Placeholders(t) {
		k := Key(p)
		if seen[k] || IsRecipientColumn(t.Type, p) {
			continue
		}
		seen[k] = true
		cols = append(cols, p)
	}
	return cols
}

// OptionalColumns are accepted but may be blank. Only letters have them.
func OptionalColumns(t models.Template) []string {
	if t.Type != models.TemplateTypeLetter {
		return nil
	}
	var cols []string
	for _, c := range letterColumns {
		if !letterRequired[Key(c)] {
			cols = append(cols, c)
		}
	}
	return cols
}

// Field is one step of the one-off walkthrough.
type Field struct {
	Name      string
	Optional  bool
	Recipient bool
}

// Fields orders the one-off steps: recipient first, then placeholders. For
// letters the address block is walked line by line with lines 3 to 6 optional.
func Fields(t models.Template) []Field {
	var fields []Field
	seen := make(map[string]bool)
	switch t.Type {
	case models.TemplateTypeLetter:
		for i, c := range letterColumns {
			seen[Key(c)] = true
			fields = append(fields, Field{
				Name:      c,
				Optional:  !letterRequired[Key(c)],
				Recipient: i == 0,
			})
		}
	default:
		for _, c := range RecipientColumns(t.Type) {
			seen[Key(c)] = true
			fields = append(fields, Field{Name: c, Recipient: true})
		}
	}
	for _, p := range Placeholders(t) {
		k := Key(p)
		if seen[k] {
			continue
		}
		seen[k] = true
		fields = append(fields, Field{Name: p})
	}
	return fields
}
