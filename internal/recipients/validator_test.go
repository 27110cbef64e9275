package recipients

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"NotifyAdmin/internal/models"
)

func liveSnapshot() models.Snapshot {
	return models.Snapshot{
		ServiceID:       "svc-1",
		Flags:           models.Flags{BulkSendAllowed: true},
		MaxRows:         50000,
		DailyRemaining:  1000,
		AnnualRemaining: 10000,
		HomeRegion:      "CA",
		CurrentUser:     models.User{ID: "u1", EmailAddress: "me@example.ca", MobileNumber: "+16502532222"},
	}
}

var (
	smsTemplate   = models.Template{ID: "t-sms", Type: models.TemplateTypeSMS, Version: 1, Content: "Hi ((name))"}
	emailTemplate = models.Template{ID: "t-email", Type: models.TemplateTypeEmail, Version: 1, Subject: "Hello", Content: "Body"}
)

func TestMissingPlaceholderColumn(t *testing.T) {
	report, err := Validate("phone number\r\n+16502532222", smsTemplate, liveSnapshot(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []ColumnError{{Kind: ColumnMissingPlaceholder, Name: "name"}}, report.ColumnErrors)
	assert.Equal(t, 1, report.TotalRows)
	assert.Zero(t, report.RowsWithErrors)
	assert.Equal(t, "+16502532222", report.Rows[0].Recipient)
	assert.False(t, report.Valid())
}

func TestOverDailyLimit(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email address")
	for i := 0; i < 10; i++ {
		fmt.Fprintf(&sb, "\r\nperson%d@example.ca", i)
	}
	snap := liveSnapshot()
	snap.DailyRemaining = 5

	report, err := Validate(sb.String(), emailTemplate, snap, Options{})
	require.NoError(t, err)

	assert.Empty(t, report.ColumnErrors)
	assert.Zero(t, report.RowsWithErrors)
	assert.Equal(t, 10, report.TotalRows)
	q, ok := report.Quota(QuotaDaily)
	require.True(t, ok)
	assert.Equal(t, 5, q.Limit)
	assert.False(t, report.Valid())
}

func TestAnnualLimitOnlyWhenEnforced(t *testing.T) {
	snap := liveSnapshot()
	snap.AnnualRemaining = 1
	csv := "email address\r\na@example.ca\r\nb@example.ca"

	report, err := Validate(csv, emailTemplate, snap, Options{})
	require.NoError(t, err)
	assert.True(t, report.Valid())

	snap.Flags.AnnualLimitEnforced = true
	report, err = Validate(csv, emailTemplate, snap, Options{})
	require.NoError(t, err)
	q, ok := report.Quota(QuotaAnnual)
	require.True(t, ok)
	assert.Equal(t, 1, q.Limit)
}

func TestBulkSendNotAllowed(t *testing.T) {
	snap := liveSnapshot()
	snap.Flags.BulkSendAllowed = false

	report, err := Validate("email address\r\na@example.ca", emailTemplate, snap, Options{})
	require.NoError(t, err)
	assert.True(t, report.Valid())

	report, err = Validate("email address\r\na@example.ca\r\nb@example.ca", emailTemplate, snap, Options{})
	require.NoError(t, err)
	_, ok := report.Quota(QuotaBulkNotAllowed)
	assert.True(t, ok)
}

func TestTrialModeRestrictsRecipients(t *testing.T) {
	snap := liveSnapshot()
	snap.TrialMode = true
	snap.Team = []models.User{{ID: "u2", EmailAddress: "Team@Example.ca"}}

	report, err := Validate("email address\r\nteam@example.ca\r\noutsider@example.ca", emailTemplate, snap, Options{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.TotalRows)
	assert.Equal(t, 1, report.RowsWithErrors)
	assert.Equal(t, 2, report.FirstErrorRow)
	restricted := report.TrialRestricted()
	require.Len(t, restricted, 1)
	assert.Equal(t, "outsider@example.ca", restricted[0].Recipient)
	_, ok := report.Quota(QuotaTrialRecipient)
	assert.True(t, ok)
	assert.False(t, report.Valid())
}

func TestTrialModeSafelistAndPhones(t *testing.T) {
	snap := liveSnapshot()
	snap.TrialMode = true
	snap.Safelist = models.Safelist{PhoneNumbers: []string{"650 253 2223"}}

	report, err := Validate("phone number,name\r\n6502532222,a\r\n+1 (650) 253-2223,b", smsTemplate, snap, Options{})
	require.NoError(t, err)
	assert.True(t, report.Valid(), "%+v", report.ErrorRows)
}

func TestTooManyRows(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("phone number,name")
	for i := 0; i < 100001; i++ {
		sb.WriteString("\r\n+16502532222,x")
	}
	snap := liveSnapshot()
	snap.MaxRows = 100000
	snap.DailyRemaining = -1
	snap.AnnualRemaining = -1

	report, err := Validate(sb.String(), smsTemplate, snap, Options{})
	require.NoError(t, err)

	assert.Equal(t, 100001, report.TotalRows)
	q, ok := report.Quota(QuotaMaxRows)
	require.True(t, ok)
	assert.Equal(t, 100000, q.Limit)
	assert.Len(t, report.QuotaViolations, 1)
}

func TestInternationalNumbers(t *testing.T) {
	csv := "phone number,name\r\n+33612345678,a"

	report, err := Validate(csv, smsTemplate, liveSnapshot(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 1, report.RowErrorCounts[ErrInternationalNotAllowed])

	snap := liveSnapshot()
	snap.Flags.InternationalSMS = true
	report, err = Validate(csv, smsTemplate, snap, Options{})
	require.NoError(t, err)
	assert.True(t, report.Valid())
	assert.Equal(t, "+33612345678", report.Rows[0].Recipient)
}

func TestRowErrors(t *testing.T) {
	csv := "email address,name\r\nnot-an-email,a\r\nuser@localhost,b\r\nok@example.ca,\r\n,c"
	tmpl := models.Template{Type: models.TemplateTypeEmail, Subject: "s", Content: "((name))"}

	report, err := Validate(csv, tmpl, liveSnapshot(), Options{})
	require.NoError(t, err)

	assert.Equal(t, 4, report.RowsWithErrors)
	assert.Equal(t, 1, report.FirstErrorRow)
	assert.Equal(t, map[ErrorKind]int{ErrInvalidFormat: 2, ErrMissing: 2}, report.RowErrorCounts)
	e, ok := report.ErrorRows[2].ErrorFor("name")
	require.True(t, ok)
	assert.Equal(t, ErrMissing, e.Kind)
}

func TestDuplicateRecipientColumns(t *testing.T) {
	csv := "phone number,name,Phone_Number\r\n+16502532222,a,not a number"

	report, err := Validate(csv, smsTemplate, liveSnapshot(), Options{})
	require.NoError(t, err)

	assert.Equal(t, []ColumnError{{Kind: ColumnDuplicateRecipient, Name: "phone number"}}, report.ColumnErrors)
	assert.Equal(t, []int{0, 2}, report.RecipientColumns)
	assert.True(t, report.IsRecipientColumn(2))
	// The last matching column is the one used.
	e, ok := report.Rows[0].ErrorFor("Phone_Number")
	require.True(t, ok)
	assert.Equal(t, ErrInvalidFormat, e.Kind)
	assert.Equal(t, "not a number", report.Rows[0].Personalisation["phone number"])

	// Every column keeps its own cell for the table view.
	row := report.Rows[0]
	assert.Equal(t, []string{"+16502532222", "a", "not a number"}, row.Cells)
	assert.Nil(t, row.ErrorAt(0))
	require.NotNil(t, row.ErrorAt(2))
	assert.Equal(t, ErrInvalidFormat, row.ErrorAt(2).Kind)
	assert.Equal(t, "", row.Cell(7))
}

func TestCellsArePaddedToHeader(t *testing.T) {
	csv := "email address,name,code\r\nok@example.ca,Ann"
	tmpl := models.Template{Type: models.TemplateTypeEmail, Subject: "s", Content: "((name)) ((code))"}

	report, err := Validate(csv, tmpl, liveSnapshot(), Options{})
	require.NoError(t, err)

	row := report.Rows[0]
	assert.Equal(t, []string{"ok@example.ca", "Ann", ""}, row.Cells)
	require.NotNil(t, row.ErrorAt(2))
	assert.Equal(t, ErrMissing, row.ErrorAt(2).Kind)
	assert.Equal(t, "code", row.ErrorAt(2).Column)
}

func TestColumnErrorOrder(t *testing.T) {
	tmpl := models.Template{Type: models.TemplateTypeSMS, Content: "((name)) ((day))"}

	report, err := Validate("phone number,phone number,day\r\n+16502532222,+16502532222,x", tmpl, liveSnapshot(), Options{})
	require.NoError(t, err)
	assert.Equal(t, []ColumnError{
		{Kind: ColumnDuplicateRecipient, Name: "phone number"},
		{Kind: ColumnMissingPlaceholder, Name: "name"},
	}, report.ColumnErrors)

	report, err = Validate("name\r\nx", tmpl, liveSnapshot(), Options{})
	require.NoError(t, err)
	assert.Equal(t, ColumnMissingRecipient, report.ColumnErrors[0].Kind)
	assert.Equal(t, []string{"phone number", "day"}, report.MissingColumns())
}

func TestExtraWhitespaceColumn(t *testing.T) {
	report, err := Validate("phone number,name,Name \r\n+16502532222,a,b", smsTemplate, liveSnapshot(), Options{})
	require.NoError(t, err)
	assert.True(t, report.HasColumnError(ColumnExtraWhitespace))
}

func TestEmptyFile(t *testing.T) {
	for _, csv := range []string{"", "phone number,name"} {
		report, err := Validate(csv, smsTemplate, liveSnapshot(), Options{})
		require.NoError(t, err)
		assert.True(t, report.HasColumnError(ColumnEmptyFile))
		assert.False(t, report.Valid())
	}
}

func TestLetterAddresses(t *testing.T) {
	tmpl := models.Template{Type: models.TemplateTypeLetter, Subject: "Re", Content: "Dear ((address line 1))"}
	csv := strings.Join([]string{
		"address line 1,address line 2,address line 3,address_line_7",
		"A Person,1 Street,Ottawa ON,K1A 0B1",
		"B Person,2 Road,Beverly Hills CA,90210",
		"C Person,3 Lane,London,SW1A 1AA",
		"D Person,4 Way,,12",
	}, "\r\n")

	report, err := Validate(csv, tmpl, liveSnapshot(), Options{})
	require.NoError(t, err)

	assert.Empty(t, report.ColumnErrors)
	assert.Equal(t, 1, report.RowsWithErrors)
	assert.Equal(t, 4, report.FirstErrorRow)
	e, ok := report.ErrorRows[0].ErrorFor("address_line_7")
	require.True(t, ok)
	assert.Equal(t, ErrInvalidFormat, e.Kind)
	assert.Equal(t, "A Person", report.Rows[0].Recipient)
}

func TestErrorRowsAreCapped(t *testing.T) {
	var sb strings.Builder
	sb.WriteString("email address")
	for i := 0; i < 30; i++ {
		sb.WriteString("\r\nbad")
	}

	report, err := Validate(sb.String(), emailTemplate, liveSnapshot(), Options{ErrorCap: 5, Focus: 25})
	require.NoError(t, err)

	assert.Equal(t, 30, report.RowsWithErrors)
	assert.Len(t, report.ErrorRows, 5)
	assert.Len(t, report.Rows, DefaultDisplayRows)
	require.NotNil(t, report.Focus)
	assert.Equal(t, 25, report.Focus.Index)
}

func TestValidateIsDeterministic(t *testing.T) {
	csv := "phone number,name,Phone Number,extra\r\n+16502532222,a,+16502532223,x\r\nbad,,,\r\n+33612345678,c,+33612345678,y"
	snap := liveSnapshot()
	snap.TrialMode = true

	first, err := Validate(csv, smsTemplate, snap, Options{})
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := Validate(csv, smsTemplate, snap, Options{})
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}
