package audiobookshelf

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned when the server rejects a login
	// with HTTP 401.
	ErrInvalidCredentials = errors.New("invalid username or password")

	// ErrInvalidURL is returned when a request URL cannot be built from
	// the configured server URL.
	ErrInvalidURL = errors.New("invalid server URL")
)

// NetworkError wraps a transport-level failure where no HTTP response was
// received.
type NetworkError struct {
	Err error
}

func (e *NetworkError) Error() string { return fmt.Sprintf("network error: %v", e.Err) }
func (e *NetworkError) Unwrap() error { return e.Err }

// DecodingError wraps a failure to parse a 2xx response body.
type DecodingError struct {
	Err error
}

func (e *DecodingError) Error() string {
	return fmt.Sprintf("error parsing server response: %v", e.Err)
}
func (e *DecodingError) Unwrap() error { return e.Err }

// ServerError is a non-2xx HTTP response. Message carries the server's
// error envelope text when one was present.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("server error: %d", e.Status)
}
