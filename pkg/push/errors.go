package push

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrNotConfigured   = errors.New("not configured")
	ErrNoSubscription  = errors.New("push: no subscription")
	ErrInvalidKeys     = errors.New("push: subscription keys missing p256dh or auth")
	ErrCircuitOpen     = errors.New("push: circuit open for push service")
)

// StatusError is returned by providers when the push service answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("push service http %d", e.Code)
	}
	return fmt.Sprintf("push service http %d: %s", e.Code, e.Body)
}

// StatusCode extracts the push service status from err, 0 if none.
func StatusCode(err error) int {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Code
	}
	return 0
}

// IsPermanent reports whether the subscription behind err is gone for good (404/410).
func IsPermanent(err error) bool {
	switch StatusCode(err) {
	case http.StatusNotFound, http.StatusGone:
		return true
	}
	return false
}
