package uploads

import (
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"NotifyAdmin/internal/models"
)

const (
	KeyServiceID         = "service_id"
	KeyTemplateID        = "template_id"
	KeyTemplateVersion   = "template_version"
	KeyNotificationCount = "notification_count"
	KeyValid             = "valid"
	KeySenderID          = "sender_id"
	KeyOriginalFileName  = "original_file_name"
)

// DefaultMetadataBudget is the S3 limit on user-defined metadata.
const DefaultMetadataBudget = 2048

var ErrMetadataTooLarge = errors.New("upload metadata exceeds budget")

// SanitiseFilename keeps printable ASCII and replaces everything else,
// one '?' per code point.
func SanitiseFilename(name string) string {
	var sb strings.Builder
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			sb.WriteByte('?')
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// MetadataSize is the number of bytes the metadata occupies once stored:
// every key plus every value.
func MetadataSize(meta map[string]string) int {
	n := 0
	for k, v := range meta {
		n += len(k) + len(v)
	}
	return n
}

// EncodeMetadata flattens m to string values. The file name is sanitised and
// shortened, keeping its extension where possible, until the result fits
// within budget.
func EncodeMetadata(m models.UploadMetadata, budget int) (map[string]string, error) {
	if budget <= 0 {
		budget = DefaultMetadataBudget
	}
	meta := map[string]string{
		KeyServiceID:         m.ServiceID,
		KeyTemplateID:        m.TemplateID,
		KeyTemplateVersion:   strconv.Itoa(m.TemplateVersion),
		KeyNotificationCount: strconv.Itoa(m.NotificationCount),
		KeyValid:             pythonBool(m.Valid),
	}
	if m.SenderID != "" {
		meta[KeySenderID] = SanitiseFilename(m.SenderID)
	}

	name := SanitiseFilename(m.OriginalFileName)
	meta[KeyOriginalFileName] = ""
	room := budget - MetadataSize(meta)
	if room < 0 {
		return nil, fmt.Errorf("%w: %d bytes without a file name, budget %d", ErrMetadataTooLarge, MetadataSize(meta), budget)
	}
	meta[KeyOriginalFileName] = truncateName(name, room)
	return meta, nil
}

func truncateName(name string, limit int) string {
	if len(name) <= limit {
		return name
	}
	ext := path.Ext(name)
	if len(ext) >= limit {
		return name[:limit]
	}
	return name[:limit-len(ext)] + ext
}

// DecodeMetadata reads the string map back. Unknown keys are ignored and
// missing numbers read as zero.
func DecodeMetadata(meta map[string]string) (models.UploadMetadata, error) {
	m := models.UploadMetadata{
		ServiceID:        meta[KeyServiceID],
		TemplateID:       meta[KeyTemplateID],
		SenderID:         meta[KeySenderID],
		OriginalFileName: meta[KeyOriginalFileName],
		Valid:            meta[KeyValid] == "True",
	}
	var err error
	if m.TemplateVersion, err = atoi(meta, KeyTemplateVersion); err != nil {
		return m, err
	}
	if m.NotificationCount, err = atoi(meta, KeyNotificationCount); err != nil {
		return m, err
	}
	return m, nil
}

func atoi(meta map[string]string, key string) (int, error) {
	v, ok := meta[key]
	if !ok || v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("metadata %s: %w", key, err)
	}
	return n, nil
}

// The backend compares against these exact spellings.
func pythonBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// Patch changes selected metadata fields. Nil fields are left alone.
type Patch struct {
	SenderID          *string
	Valid             *bool
	NotificationCount *int
}

func (p Patch) apply(m models.UploadMetadata) models.UploadMetadata {
	if p.SenderID != nil {
		m.SenderID = *p.SenderID
	}
	if p.Valid != nil {
		m.Valid = *p.Valid
	}
	if p.NotificationCount != nil {
		m.NotificationCount = *p.NotificationCount
	}
	return m
}
