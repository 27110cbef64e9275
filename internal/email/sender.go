// Package email exports a rendered email preview as a MIME message that
// mail clients can open. Nothing here delivers mail.
package email

import (
	"bytes"
	"fmt"
	"html/template"
	"io"
	"strings"
	"time"

	"gopkg.in/gomail.v2"

	"NotifyAdmin/internal/templates"
)

// Preview describes one rendered message.
type Preview struct {
	From    string
	ReplyTo string
	To      string
	Message templates.Message
	Date    time.Time
}

var htmlBody = template.Must(template.New("body").Parse(
	"<!DOCTYPE html>\n<html><body>\n{{range .}}<p>{{.}}</p>\n{{end}}</body></html>\n",
))

// paragraphs splits a plain-text body on blank lines.
func paragraphs(body string) []string {
	var out []string
	for _, p := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n\n") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Build assembles the message with a plain-text part and an HTML
// alternative.
func Build(p Preview) (*gomail.Message, error) {
	var html bytes.Buffer
	if err := htmlBody.Execute(&html, paragraphs(p.Message.Body)); err != nil {
		return nil, fmt.Errorf("render preview html: %w", err)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", p.From)
	m.SetHeader("To", p.To)
	if p.ReplyTo != "" {
		m.SetHeader("Reply-To", p.ReplyTo)
	}
	m.SetHeader("Subject", p.Message.Subject)
	m.SetDateHeader("Date", p.Date)
	m.SetHeader("X-Unsent", "1")
	m.SetBody("text/plain", p.Message.Body)
	m.AddAlternative("text/html", html.String())
	return m, nil
}

// Write builds the message and writes it in .eml form.
func Write(w io.Writer, p Preview) error {
	m, err := Build(p)
	if err != nil {
		return err
	}
	if _, err := m.WriteTo(w); err != nil {
		return fmt.Errorf("write preview: %w", err)
	}
	return nil
}
