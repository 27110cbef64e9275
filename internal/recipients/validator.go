package recipients

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"NotifyAdmin/internal/csvparser"
	"NotifyAdmin/internal/models"
	"NotifyAdmin/internal/templates"
)

const (
	// DefaultErrorCap bounds how many rows with errors keep their detail.
	DefaultErrorCap = 20
	// DefaultDisplayRows is how many leading rows are kept for the table view.
	DefaultDisplayRows = 10
)

type Options struct {
	ErrorCap    int
	DisplayRows int
	// Focus asks for the row with this index to be kept in Report.Focus.
	Focus int
}

func (o Options) withDefaults() Options {
	if o.ErrorCap <= 0 {
		o.ErrorCap = DefaultErrorCap
	}
	if o.DisplayRows <= 0 {
		o.DisplayRows = DefaultDisplayRows
	}
	return o
}

// column is a header position resolved against the template.
type column struct {
	index int
	name  string
	key   string
}

type layout struct {
	recipient  []column // every column matching a recipient field
	byKey      map[string]column
	keyOrder   []string
	required   []string
	recipientK string
	width      int
}

// Validate reads csvText once and reports on every row. It does no I/O beyond
// reading the text, so identical inputs give identical reports.
func Validate(csvText string, t models.Template, snap models.Snapshot, opts Options) (*Report, error) {
	return ValidateReader(strings.NewReader(csvText), t, snap, opts)
}

func ValidateReader(r io.Reader, t models.Template, snap models.Snapshot, opts Options) (*Report, error) {
	opts = opts.withDefaults()

	rows, err := csvparser.NewRowReader(r)
	if err != nil {
		return nil, fmt.Errorf("read recipients: %w", err)
	}

	report := &Report{
		Headers:        rows.Header(),
		RowErrorCounts: make(map[ErrorKind]int),
	}
	lay := resolveColumns(report, t)
	trial := newAllowList(snap)

	for {
		row, err := rows.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read recipients: %w", err)
		}
		report.TotalRows++

		// Past the row limit only the count matters.
		if snap.MaxRows > 0 && report.TotalRows > snap.MaxRows {
			continue
		}

		view := checkRow(row, t, snap, lay, trial)
		if view.HasErrors() {
			report.RowsWithErrors++
			if report.FirstErrorRow == 0 {
				report.FirstErrorRow = view.Index
			}
			for _, e := range view.Errors {
				report.RowErrorCounts[e.Kind]++
			}
			if len(report.ErrorRows) < opts.ErrorCap {
				report.ErrorRows = append(report.ErrorRows, view)
			}
		}
		if len(report.Rows) < opts.DisplayRows {
			report.Rows = append(report.Rows, view)
		}
		if opts.Focus == view.Index {
			v := view
			report.Focus = &v
		}
	}

	if report.TotalRows == 0 {
		report.ColumnErrors = append(report.ColumnErrors, ColumnError{Kind: ColumnEmptyFile})
	}
	report.QuotaViolations = quotaViolations(report, snap)
	return report, nil
}

// resolveColumns matches headers to the template and records column errors.
func resolveColumns(report *Report, t models.Template) layout {
	lay := layout{byKey: make(map[string]column), width: len(report.Headers)}
	recipientFields := templates.RecipientColumns(t.Type)
	if len(recipientFields) > 0 {
		lay.recipientK = templates.Key(recipientFields[0])
	}

	seenWhitespace := make(map[string]string)
	recipientSeen := make(map[string]int)
	for i, h := range report.Headers {
		if strings.TrimSpace(h) == "" {
			continue
		}
		k := templates.Key(h)
		col := column{index: i, name: h, key: k}
		if templates.IsRecipientColumn(t.Type, h) {
			lay.recipient = append(lay.recipient, col)
			report.RecipientColumns = append(report.RecipientColumns, i)
			recipientSeen[k]++
		} else {
			folded := strings.ToLower(strings.Join(strings.Fields(h), " "))
			if _, dup := seenWhitespace[folded]; dup {
				report.ColumnErrors = append(report.ColumnErrors, ColumnError{Kind: ColumnExtraWhitespace, Name: h})
			}
			seenWhitespace[folded] = h
		}
		if _, ok := lay.byKey[k]; !ok {
			lay.keyOrder = append(lay.keyOrder, k)
		}
		// Later columns win, matching how the backend reads the file.
		lay.byKey[k] = col
	}

	var missing []ColumnError
	for _, name := range templates.RequiredColumns(t) {
		k := templates.Key(name)
		lay.required = append(lay.required, k)
		if _, ok := lay.byKey[k]; ok {
			continue
		}
		kind := ColumnMissingPlaceholder
		if templates.IsRecipientColumn(t.Type, name) {
			kind = ColumnMissingRecipient
		}
		missing = append(missing, ColumnError{Kind: kind, Name: name})
	}

	var duplicates []ColumnError
	for _, f := range recipientFields {
		if recipientSeen[templates.Key(f)] > 1 {
			duplicates = append(duplicates, ColumnError{Kind: ColumnDuplicateRecipient, Name: f})
		}
	}

	// Recipient problems are listed first so they lead the banner.
	var ordered []ColumnError
	for _, e := range missing {
		if e.Kind == ColumnMissingRecipient {
			ordered = append(ordered, e)
		}
	}
	ordered = append(ordered, duplicates...)
	for _, e := range missing {
		if e.Kind == ColumnMissingPlaceholder {
			ordered = append(ordered, e)
		}
	}
	report.ColumnErrors = append(ordered, report.ColumnErrors...)
	return lay
}

func checkRow(row csvparser.Row, t models.Template, snap models.Snapshot, lay layout, trial allowList) RowView {
	view := RowView{
		Index:           row.Index,
		Personalisation: make(map[string]string, len(lay.keyOrder)),
		Cells:           make([]string, lay.width),
	}
	copy(view.Cells, row.Cells)
	for _, k := range lay.keyOrder {
		col := lay.byKey[k]
		view.Personalisation[displayName(lay, k)] = row.Cell(col.index)
	}

	for _, k := range lay.required {
		col, ok := lay.byKey[k]
		if !ok {
			continue
		}
		if strings.TrimSpace(row.Cell(col.index)) == "" {
			view.Errors = append(view.Errors, CellError{Column: col.name, ColumnIndex: col.index, Kind: ErrMissing})
		}
	}

	recipientCol, ok := lay.byKey[lay.recipientK]
	if !ok {
		return view
	}
	raw := row.Cell(recipientCol.index)
	if strings.TrimSpace(raw) == "" {
		return view
	}

	switch t.Type {
	case models.TemplateTypeEmail:
		email, err := Email(raw)
		if err != nil {
			view.Errors = append(view.Errors, CellError{Column: recipientCol.name, ColumnIndex: recipientCol.index, Kind: ErrInvalidFormat})
			return view
		}
		view.Recipient = email
		if snap.TrialMode && !trial.allows(matchKey(email)) {
			view.Errors = append(view.Errors, CellError{Column: recipientCol.name, ColumnIndex: recipientCol.index, Kind: ErrNotPermittedInTrial})
		}

	case models.TemplateTypeSMS:
		phone, err := PhoneForService(raw, snap.HomeRegion, snap.Flags.InternationalSMS)
		switch {
		case errors.Is(err, ErrInternational):
			view.Recipient = phone
			view.Errors = append(view.Errors, CellError{Column: recipientCol.name, ColumnIndex: recipientCol.index, Kind: ErrInternationalNotAllowed})
			return view
		case err != nil:
			view.Errors = append(view.Errors, CellError{Column: recipientCol.name, ColumnIndex: recipientCol.index, Kind: ErrInvalidFormat})
			return view
		}
		view.Recipient = phone
		if snap.TrialMode && !trial.allows(phone) {
			view.Errors = append(view.Errors, CellError{Column: recipientCol.name, ColumnIndex: recipientCol.index, Kind: ErrNotPermittedInTrial})
		}

	case models.TemplateTypeLetter:
		view.Recipient = strings.TrimSpace(raw)
		checkAddress(&view, row, lay)
	}
	return view
}

// checkAddress wants at least three lines with a postcode on the last one.
func checkAddress(view *RowView, row csvparser.Row, lay layout) {
	var lines []string
	var last column
	for _, f := range templates.RecipientColumns(models.TemplateTypeLetter) {
		col, ok := lay.byKey[templates.Key(f)]
		if !ok {
			continue
		}
		if v := strings.TrimSpace(row.Cell(col.index)); v != "" {
			lines = append(lines, v)
			last = col
		}
	}
	if len(lines) < 3 {
		if !view.HasErrors() {
			first := lay.byKey[lay.recipientK]
			view.Errors = append(view.Errors, CellError{Column: first.name, ColumnIndex: first.index, Kind: ErrInvalidFormat})
		}
		return
	}
	if !Postcode(lines[len(lines)-1]) {
		view.Errors = append(view.Errors, CellError{Column: last.name, ColumnIndex: last.index, Kind: ErrInvalidFormat})
	}
}

// displayName is the first header spelling seen for a key.
func displayName(lay layout, k string) string {
	for _, c := range lay.recipient {
		if c.key == k {
			return c.name
		}
	}
	return lay.byKey[k].name
}

// quotaViolations compares the row count with each limit. A negative
// remaining count means the limit does not apply.
func quotaViolations(report *Report, snap models.Snapshot) []QuotaViolation {
	var out []QuotaViolation
	n := report.TotalRows
	if snap.MaxRows > 0 && n > snap.MaxRows {
		out = append(out, QuotaViolation{Kind: QuotaMaxRows, Limit: snap.MaxRows})
	}
	if snap.Flags.AnnualLimitEnforced && snap.AnnualRemaining >= 0 && n > snap.AnnualRemaining {
		out = append(out, QuotaViolation{Kind: QuotaAnnual, Limit: snap.AnnualRemaining})
	}
	if snap.DailyRemaining >= 0 && n > snap.DailyRemaining {
		out = append(out, QuotaViolation{Kind: QuotaDaily, Limit: snap.DailyRemaining})
	}
	if !snap.Flags.BulkSendAllowed && n > 1 {
		out = append(out, QuotaViolation{Kind: QuotaBulkNotAllowed, Limit: 1})
	}
	if snap.TrialMode && report.RowErrorCounts[ErrNotPermittedInTrial] > 0 {
		out = append(out, QuotaViolation{Kind: QuotaTrialRecipient})
	}
	return out
}

// allowList holds the recipients a trial service may send to.
type allowList map[string]bool

func newAllowList(snap models.Snapshot) allowList {
	list := make(allowList)
	add := func(email, phone string) {
		if email != "" {
			list[matchKey(email)] = true
		}
		if phone != "" {
			if canonical, _, err := Phone(phone, snap.HomeRegion); err == nil {
				list[canonical] = true
			}
		}
	}
	add(snap.CurrentUser.EmailAddress, snap.CurrentUser.MobileNumber)
	for _, u := range snap.Team {
		add(u.EmailAddress, u.MobileNumber)
	}
	for _, e := range snap.Safelist.EmailAddresses {
		add(e, "")
	}
	for _, p := range snap.Safelist.PhoneNumbers {
		add("", p)
	}
	return list
}

func (a allowList) allows(recipient string) bool {
	return a[recipient]
}
