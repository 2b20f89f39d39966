package leneda

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidAuth is returned when the provider rejects the api key or
	// energy id with a 401 or 403.
	ErrInvalidAuth = errors.New("leneda: invalid authentication")

	// ErrNoData is returned by the credential probe when no measurement code
	// returned usable data.
	ErrNoData = errors.New("leneda: no data returned for any measurement code")
)

// APIError is any failure other than an authentication rejection: an
// unexpected HTTP status, a transport error or an undecodable body.
type APIError struct {
	// StatusCode is 0 when no response was received.
	StatusCode int
	Body       string
	Err        error
}

func (e *APIError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("leneda api error (status %d): %v", e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("leneda api returned status %d: %s", e.StatusCode, e.Body)
	default:
		return fmt.Sprintf("leneda api error: %v", e.Err)
	}
}

func (e *APIError) Unwrap() error {
	return e.Err
}

// IsAuth reports whether err is an authentication rejection.
func IsAuth(err error) bool {
	return errors.Is(err, ErrInvalidAuth)
}
