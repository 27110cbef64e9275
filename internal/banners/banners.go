// Package banners is the taxonomy of problems shown to users during a send,
// with the catalogue that words them.
package banners

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"NotifyAdmin/internal/csvparser"
	"NotifyAdmin/internal/recipients"
)

type Kind string

const (
	UnsupportedFile           Kind = "unsupported_file"
	UnreadableFile            Kind = "unreadable_file"
	AmbiguousDates            Kind = "ambiguous_dates"
	MissingColumns            Kind = "missing_columns"
	DuplicateRecipientColumns Kind = "duplicate_recipient_columns"
	ExtraWhitespaceColumn     Kind = "extra_whitespace_column"
	EmptyFile                 Kind = "empty_file"
	RowErrors                 Kind = "row_errors"
	TooManyRows               Kind = "too_many_rows"
	DailyLimitExceeded        Kind = "daily_limit_exceeded"
	AnnualLimitExceeded       Kind = "annual_limit_exceeded"
	BulkSendNotAllowed        Kind = "bulk_send_not_allowed"
	TrialModeRestricted       Kind = "trial_mode_restricted"
	ContentTooLong            Kind = "content_too_long"
	InvalidSchedule           Kind = "invalid_schedule"
	TemplateChanged           Kind = "template_changed"
	UploadExpired             Kind = "upload_expired"
	InvalidRecipient          Kind = "invalid_recipient"
	MissingValue              Kind = "missing_value"
	BackendUnavailable        Kind = "backend_unavailable"
)

// Kinds lists every banner in the catalogue.
var Kinds = []Kind{
	UnsupportedFile, UnreadableFile, AmbiguousDates,
	MissingColumns, DuplicateRecipientColumns, ExtraWhitespaceColumn, EmptyFile,
	RowErrors, TooManyRows, DailyLimitExceeded, AnnualLimitExceeded,
	BulkSendNotAllowed, TrialModeRestricted, ContentTooLong,
	InvalidSchedule, TemplateChanged, UploadExpired,
	InvalidRecipient, MissingValue, BackendUnavailable,
}

// Banner is one user-facing problem. It doubles as an error so that send
// steps can return it and callers can pick it out with As.
type Banner struct {
	Kind      Kind
	Filename  string
	Columns   []string
	Count     int
	Limit     int
	Row       int
	Recipient string
	Err       error
}

func New(kind Kind) *Banner {
	return &Banner{Kind: kind}
}

// Wrap attaches an underlying cause that is logged but never shown.
func Wrap(err error, kind Kind) *Banner {
	return &Banner{Kind: kind, Err: err}
}

func (b *Banner) Error() string {
	if b.Err != nil {
		return fmt.Sprintf("%s: %v", b.Kind, b.Err)
	}
	return string(b.Kind)
}

func (b *Banner) Unwrap() error { return b.Err }

// As finds a Banner in err's chain.
func As(err error) (*Banner, bool) {
	var b *Banner
	if errors.As(err, &b) {
		return b, true
	}
	return nil, false
}

// Is reports whether err carries a banner of the given kind.
func Is(err error, kind Kind) bool {
	b, ok := As(err)
	return ok && b.Kind == kind
}

// FromDecodeError maps a decoder failure to its banner.
func FromDecodeError(err error, filename string) *Banner {
	kind := UnreadableFile
	var de *csvparser.DecodeError
	if errors.As(err, &de) {
		switch de.Kind {
		case csvparser.KindUnsupported:
			kind = UnsupportedFile
		case csvparser.KindAmbiguousDates:
			kind = AmbiguousDates
		}
	}
	return &Banner{Kind: kind, Filename: filename, Err: err}
}

// FromReport picks the one banner that leads the preview page. Header
// problems come first, then limits, then row errors. It returns nil for a
// sendable report.
func FromReport(r *recipients.Report) *Banner {
	if r == nil || r.Valid() {
		return nil
	}
	if r.HasColumnError(recipients.ColumnMissingRecipient) {
		return &Banner{Kind: MissingColumns, Columns: r.MissingColumns()}
	}
	if r.HasColumnError(recipients.ColumnDuplicateRecipient) {
		return &Banner{Kind: DuplicateRecipientColumns, Columns: columnNames(r, recipients.ColumnDuplicateRecipient)}
	}
	if r.HasColumnError(recipients.ColumnMissingPlaceholder) {
		return &Banner{Kind: MissingColumns, Columns: r.MissingColumns()}
	}
	if r.HasColumnError(recipients.ColumnExtraWhitespace) {
		return &Banner{Kind: ExtraWhitespaceColumn, Columns: columnNames(r, recipients.ColumnExtraWhitespace)}
	}
	if r.HasColumnError(recipients.ColumnEmptyFile) {
		return &Banner{Kind: EmptyFile}
	}
	if q, ok := r.Quota(recipients.QuotaMaxRows); ok {
		return &Banner{Kind: TooManyRows, Limit: q.Limit, Count: r.TotalRows}
	}
	if q, ok := r.Quota(recipients.QuotaAnnual); ok {
		return &Banner{Kind: AnnualLimitExceeded, Limit: q.Limit, Count: r.TotalRows}
	}
	if q, ok := r.Quota(recipients.QuotaDaily); ok {
		return &Banner{Kind: DailyLimitExceeded, Limit: q.Limit, Count: r.TotalRows}
	}
	if _, ok := r.Quota(recipients.QuotaBulkNotAllowed); ok {
		return &Banner{Kind: BulkSendNotAllowed, Count: r.TotalRows}
	}
	if _, ok := r.Quota(recipients.QuotaTrialRecipient); ok {
		b := &Banner{Kind: TrialModeRestricted, Count: r.RowErrorCounts[recipients.ErrNotPermittedInTrial]}
		if rows := r.TrialRestricted(); len(rows) > 0 {
			b.Recipient = rows[0].Recipient
			b.Row = rows[0].Index + 1
		}
		return b
	}
	return &Banner{Kind: RowErrors, Count: r.RowsWithErrors, Row: r.FirstErrorRow + 1}
}

func columnNames(r *recipients.Report, kind recipients.ColumnErrorKind) []string {
	var names []string
	for _, e := range r.ColumnErrors {
		if e.Kind == kind {
			names = append(names, e.Name)
		}
	}
	return names
}

// params are the substitutions available to catalogue text.
func (b *Banner) params() []string {
	return []string{
		"{filename}", b.Filename,
		"{columns}", strings.Join(b.Columns, ", "),
		"{count}", strconv.Itoa(b.Count),
		"{limit}", strconv.Itoa(b.Limit),
		"{row}", strconv.Itoa(b.Row),
		"{recipient}", b.Recipient,
	}
}
