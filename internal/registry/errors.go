package registry

import (
	"errors"
	"fmt"
	"net/http"
)

// TransientError marks a registry failure that is safe to retry: network
// errors, rate limiting, and server-side 5xx responses.
type TransientError struct {
	Status int
	Err    error
}

func (e *TransientError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("transient registry failure (HTTP %d): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("transient registry failure: %v", e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a retryable registry failure.
func IsTransient(err error) bool {
	var te *TransientError
	return errors.As(err, &te)
}

func classifyStatus(status int) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == http.StatusTooManyRequests || status >= 500:
		return &TransientError{Status: status, Err: errors.New(http.StatusText(status))}
	default:
		return fmt.Errorf("registry returned HTTP %d", status)
	}
}
