package models

const (
	PermissionEmail            = "email"
	PermissionSMS              = "sms"
	PermissionLetter           = "letter"
	PermissionInternationalSMS = "international_sms"
)

type Service struct {
	ID               string   `json:"id"`
	Name             string   `json:"name"`
	Restricted       bool     `json:"restricted"`
	MessageLimit     int      `json:"message_limit"`
	SMSDailyLimit    int      `json:"sms_daily_limit"`
	EmailAnnualLimit int      `json:"email_annual_limit"`
	SMSAnnualLimit   int      `json:"sms_annual_limit"`
	Permissions      []string `json:"permissions"`
}

func (s Service) HasPermission(p string) bool {
	for _, have := range s.Permissions {
		if have == p {
			return true
		}
	}
	return false
}

type User struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	EmailAddress string `json:"email_address"`
	MobileNumber string `json:"mobile_number"`
}

type Safelist struct {
	EmailAddresses []string `json:"email_addresses"`
	PhoneNumbers   []string `json:"phone_numbers"`
}

// ChannelStats is one channel's counters from the statistics endpoints.
type ChannelStats struct {
	Requested int `json:"requested"`
	Delivered int `json:"delivered"`
	Failed    int `json:"failed"`
}

type Stats map[TemplateType]ChannelStats

type Sender struct {
	ID        string `json:"id"`
	Value     string `json:"value"`
	IsDefault bool   `json:"is_default"`
}

// Flags are the feature switches consulted by validation and preview.
type Flags struct {
	AnnualLimitEnforced bool
	BulkSendAllowed     bool
	InternationalSMS    bool
}

// Snapshot is everything the recipient validator needs to know about a
// service at one moment. It is captured once per request.
type Snapshot struct {
	ServiceID       string
	TrialMode       bool
	Flags           Flags
	MaxRows         int
	DailyRemaining  int
	AnnualRemaining int
	HomeRegion      string
	CurrentUser     User
	Team            []User
	Safelist        Safelist
}
