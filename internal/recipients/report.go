// Package recipients validates a normalised recipient list against a
// template's columns and a service's sending limits.
package recipients

type ErrorKind string

const (
	ErrMissing                 ErrorKind = "missing"
	ErrInvalidFormat           ErrorKind = "invalid_format"
	ErrNotPermittedInTrial     ErrorKind = "not_permitted_in_trial"
	ErrInternationalNotAllowed ErrorKind = "international_not_allowed"
)

// CellError marks one column of one row as unusable. ColumnIndex is the
// column's position in the header row.
type CellError struct {
	Column      string
	ColumnIndex int
	Kind        ErrorKind
}

// RowView is one data row after canonicalisation.
type RowView struct {
	Index           int
	Recipient       string
	Personalisation map[string]string
	// Cells are the raw values, one per header, for the table view.
	Cells  []string
	Errors []CellError
}

// Cell returns the raw value under header i.
func (r RowView) Cell(i int) string {
	if i < 0 || i >= len(r.Cells) {
		return ""
	}
	return r.Cells[i]
}

// ErrorAt returns the first error recorded against header i, or nil.
func (r RowView) ErrorAt(i int) *CellError {
	for j := range r.Errors {
		if r.Errors[j].ColumnIndex == i {
			return &r.Errors[j]
		}
	}
	return nil
}

func (r RowView) HasErrors() bool { return len(r.Errors) > 0 }

// ErrorFor returns the first error recorded against column, if any.
func (r RowView) ErrorFor(column string) (CellError, bool) {
	for _, e := range r.Errors {
		if e.Column == column {
			return e, true
		}
	}
	return CellError{}, false
}

type ColumnErrorKind string

const (
	ColumnMissingRecipient   ColumnErrorKind = "missing_recipient_column"
	ColumnDuplicateRecipient ColumnErrorKind = "duplicate_recipient_columns"
	ColumnMissingPlaceholder ColumnErrorKind = "missing_placeholder_column"
	ColumnExtraWhitespace    ColumnErrorKind = "extra_whitespace_column"
	ColumnEmptyFile          ColumnErrorKind = "empty_file"
)

// ColumnError is a problem with the header row. Name holds the column
// concerned where there is one.
type ColumnError struct {
	Kind ColumnErrorKind
	Name string
}

type QuotaKind string

const (
	QuotaMaxRows        QuotaKind = "over_max_rows"
	QuotaAnnual         QuotaKind = "over_annual"
	QuotaDaily          QuotaKind = "over_daily_today"
	QuotaBulkNotAllowed QuotaKind = "bulk_send_not_allowed"
	QuotaTrialRecipient QuotaKind = "trial_mode_non_team_recipient"
)

// QuotaViolation records a limit the upload exceeds. Limit is the number of
// rows that would have been allowed.
type QuotaViolation struct {
	Kind  QuotaKind
	Limit int
}

// Report is the outcome of validating one file. Only aggregate counts cover
// every row; Rows and ErrorRows are bounded.
type Report struct {
	Headers []string
	// RecipientColumns are the header indexes that fill the recipient role.
	RecipientColumns []int

	ColumnErrors    []ColumnError
	RowErrorCounts  map[ErrorKind]int
	TotalRows       int
	RowsWithErrors  int
	FirstErrorRow   int
	QuotaViolations []QuotaViolation

	// Rows holds the first rows of the file for display.
	Rows []RowView
	// ErrorRows holds the first rows that have errors.
	ErrorRows []RowView
	// Focus is the row requested through Options.Focus, when it exists.
	Focus *RowView
}

// Valid reports whether the file can be sent as it stands.
func (r *Report) Valid() bool {
	return len(r.ColumnErrors) == 0 && r.RowsWithErrors == 0 && len(r.QuotaViolations) == 0
}

func (r *Report) HasColumnError(kind ColumnErrorKind) bool {
	for _, e := range r.ColumnErrors {
		if e.Kind == kind {
			return true
		}
	}
	return false
}

// MissingColumns lists the names of missing recipient and placeholder columns.
func (r *Report) MissingColumns() []string {
	var names []string
	for _, e := range r.ColumnErrors {
		if e.Kind == ColumnMissingRecipient || e.Kind == ColumnMissingPlaceholder {
			names = append(names, e.Name)
		}
	}
	return names
}

func (r *Report) Quota(kind QuotaKind) (QuotaViolation, bool) {
	for _, q := range r.QuotaViolations {
		if q.Kind == kind {
			return q, true
		}
	}
	return QuotaViolation{}, false
}

// IsRecipientColumn reports whether header index i fills the recipient role.
func (r *Report) IsRecipientColumn(i int) bool {
	for _, c := range r.RecipientColumns {
		if c == i {
			return true
		}
	}
	return false
}

// TrialRestricted returns the error rows whose recipient is outside the team.
func (r *Report) TrialRestricted() []RowView {
	var rows []RowView
	for _, row := range r.ErrorRows {
		for _, e := range row.Errors {
			if e.Kind == ErrNotPermittedInTrial {
				rows = append(rows, row)
				break
			}
		}
	}
	return rows
}
