package recipients

import (
	"errors"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/nyaruka/phonenumbers"
)

var (
	ErrInvalidPhone    = errors.New("not a valid phone number")
	ErrInvalidEmail    = errors.New("not a valid email address")
	ErrInternational   = errors.New("international number not allowed")
	ErrInvalidPostcode = errors.New("not a valid postcode")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Phone parses a phone number relative to homeRegion. It returns the E.164
// form and whether the number is outside the home country code.
func Phone(value, homeRegion string) (canonical string, international bool, err error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", false, ErrInvalidPhone
	}
	num, err := phonenumbers.Parse(value, homeRegion)
	if err != nil {
		return "", false, ErrInvalidPhone
	}
	if !phonenumbers.IsValidNumber(num) {
		return "", false, ErrInvalidPhone
	}
	home := phonenumbers.GetCountryCodeForRegion(homeRegion)
	return phonenumbers.Format(num, phonenumbers.E164), int(num.GetCountryCode()) != home, nil
}

// PhoneForService canonicalises and rejects international numbers unless
// the service may send them.
func PhoneForService(value, homeRegion string, internationalAllowed bool) (string, error) {
	canonical, international, err := Phone(value, homeRegion)
	if err != nil {
		return "", err
	}
	if international && !internationalAllowed {
		return canonical, ErrInternational
	}
	return canonical, nil
}

// Email trims and checks the address syntax and that the domain is a fully
// qualified host name.
func Email(value string) (string, error) {
	value = strings.TrimSpace(value)
	if err := validate.Var(value, "required,email"); err != nil {
		return "", ErrInvalidEmail
	}
	at := strings.LastIndexByte(value, '@')
	if err := validate.Var(value[at+1:], "fqdn"); err != nil {
		return "", ErrInvalidEmail
	}
	return value, nil
}

var postcodePattern = regexp.MustCompile(`(?i)(?:^|\s)(` +
	// UK
	`[A-Z]{1,2}[0-9][A-Z0-9]?\s?[0-9][A-Z]{2}` +
	// Canada
	`|[ABCEGHJ-NPRSTVXY][0-9][ABCEGHJ-NPRSTV-Z]\s?[0-9][ABCEGHJ-NPRSTV-Z][0-9]` +
	// United States
	`|[0-9]{5}(?:-[0-9]{4})?` +
	`)$`)

// Postcode reports whether line ends with a recognisable postcode or postal
// code.
func Postcode(line string) bool {
	return postcodePattern.MatchString(strings.TrimSpace(line))
}

// matchKey is how recipients are compared against the team and safelist.
func matchKey(value string) string {
	return strings.ToLower(strings.TrimSpace(value))
}
