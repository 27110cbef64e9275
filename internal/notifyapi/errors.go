package notifyapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrUnavailable = errors.New("notify api unavailable")
)

// Policy is a send restriction the backend reported.
type Policy string

const (
	PolicyNone            Policy = ""
	PolicyTrialMode       Policy = "trial_mode"
	PolicyDailyLimit      Policy = "daily_limit"
	PolicyAnnualLimit     Policy = "annual_limit"
	PolicyContentTooLong  Policy = "content_too_long"
	PolicyInvalidSchedule Policy = "invalid_schedule"
)

// APIError is a non-2xx response from the Notify API.
type APIError struct {
	Status  int
	Code    string
	Message string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("notify api %d %s: %s", e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("notify api %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return ErrNotFound
	case e.Status >= 500:
		return ErrUnavailable
	}
	return nil
}

// Policy classifies a rejection. Structured codes are preferred; older
// endpoints only describe the problem in the message.
func (e *APIError) Policy() Policy {
	switch strings.ToLower(e.Code) {
	case "trial_mode", "trial_mode_restricted", "bad_request_trial_mode":
		return PolicyTrialMode
	case "too_many_requests", "daily_limit_exceeded", "live_service_too_many_requests", "trial_service_too_many_requests":
		return PolicyDailyLimit
	case "annual_limit_exceeded":
		return PolicyAnnualLimit
	case "content_too_long", "message_too_long":
		return PolicyContentTooLong
	case "invalid_schedule":
		return PolicyInvalidSchedule
	}

	msg := strings.ToLower(e.Message)
	switch {
	case strings.Contains(msg, "annual"):
		return PolicyAnnualLimit
	case strings.Contains(msg, "exceeded send limits"), strings.Contains(msg, "daily limit"):
		return PolicyDailyLimit
	case strings.Contains(msg, "trial mode"):
		return PolicyTrialMode
	case strings.Contains(msg, "character count greater than the limit"), strings.Contains(msg, "too long"):
		return PolicyContentTooLong
	case strings.Contains(msg, "scheduled_for"):
		return PolicyInvalidSchedule
	}
	return PolicyNone
}

// PolicyOf finds the policy behind err, if the backend reported one.
func PolicyOf(err error) Policy {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status >= 400 && apiErr.Status < 500 {
		return apiErr.Policy()
	}
	return PolicyNone
}

// errorBody covers the two error shapes the API returns:
// {"result":"error","message":...} and {"errors":[{"error":...,"message":...}]}.
type errorBody struct {
	Code    string          `json:"code"`
	Message json.RawMessage `json:"message"`
	Errors  []struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	} `json:"errors"`
}

func parseError(status int, body []byte) *APIError {
	apiErr := &APIError{Status: status}
	var eb errorBody
	if err := json.Unmarshal(body, &eb); err != nil {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Code = eb.Code
	apiErr.Message = flattenMessage(eb.Message)
	if len(eb.Errors) > 0 {
		if apiErr.Code == "" {
			apiErr.Code = eb.Errors[0].Error
		}
		if apiErr.Message == "" {
			apiErr.Message = eb.Errors[0].Message
		}
	}
	return apiErr
}

// flattenMessage accepts a string or a field -> messages object.
func flattenMessage(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(raw, &s) == nil {
		return s
	}
	var fields map[string][]string
	if json.Unmarshal(raw, &fields) == nil {
		var parts []string
		for k, msgs := range fields {
			parts = append(parts, k+": "+strings.Join(msgs, " "))
		}
		sort.Strings(parts)
		return strings.Join(parts, "; ")
	}
	return string(raw)
}
