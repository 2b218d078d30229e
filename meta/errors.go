package meta

import (
	"errors"
	"fmt"
)

// Platform error codes we care about. Codes 1/2 are the platform's generic
// "temporary issue" codes; 4/17/32/613 are the documented throttling codes;
// 190 is an invalid or expired credential; 200-299 are permission errors.
const (
	CodeUnknown        = 1
	CodeService        = 2
	CodeTooManyCalls   = 4
	CodeUserTooMany    = 17
	CodePageTooMany    = 32
	CodeCustomThrottle = 613
	CodeInvalidToken   = 190
)

// Transient error subcodes observed on lead-retrieval calls
var transientSubcodes = map[int]bool{
	99:      true,
	2446079: true,
}

// APIError is the platform's error envelope attached to a non-2xx response.
type APIError struct {
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
	HTTPStatus int    `json:"-"`
}

func (e *APIError) Error() string {
	if e.Subcode != 0 {
		return fmt.Sprintf("platform error %d/%d (%s): %s", e.Code, e.Subcode, e.Type, e.Message)
	}
	return fmt.Sprintf("platform error %d (%s): %s", e.Code, e.Type, e.Message)
}

// Retryable reports whether the error is worth retrying with backoff
func (e *APIError) Retryable() bool {
	switch e.Code {
	case CodeUnknown, CodeService, CodeTooManyCalls, CodeUserTooMany, CodePageTooMany, CodeCustomThrottle:
		return true
	}
	if transientSubcodes[e.Subcode] {
		return true
	}
	// 5xx without a recognized code is treated as transient
	return e.Code == 0 && e.HTTPStatus >= 500
}

// CredentialError reports whether the error means the access token is bad or
// lacking permission. These are operator-actionable and never retried.
func (e *APIError) CredentialError() bool {
	if e.Code == CodeInvalidToken {
		return true
	}
	return e.Code >= 200 && e.Code <= 299
}

// AsAPIError unwraps err to its *APIError if it carries one
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}
