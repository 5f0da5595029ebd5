package meta

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is an error response from the Graph API.
type APIError struct {
	StatusCode int    `json:"-"`
	Message    string `json:"message"`
	Type       string `json:"type"`
	Code       int    `json:"code"`
	Subcode    int    `json:"error_subcode"`
	TraceID    string `json:"fbtrace_id"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("meta: status %d code %d: %s", e.StatusCode, e.Code, e.Message)
}

// RateLimited reports whether the error is one of the Graph API throttling
// responses: HTTP 429, application/user/page limits (4, 17, 32, 613) or the
// ads-management business use case limits (80000-80014).
func (e *APIError) RateLimited() bool {
	if e.StatusCode == http.StatusTooManyRequests {
		return true
	}
	switch e.Code {
	case 4, 17, 32, 613:
		return true
	}
	return e.Code >= 80000 && e.Code <= 80014
}

// IsRateLimited reports whether err wraps a rate-limit APIError. It is the
// only class of error the client retries.
func IsRateLimited(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.RateLimited()
}
