// Package kehai provides a Go client for the kehai presence daemon's admin
// API.
package kehai

import "fmt"

// Error represents an error from the kehai API with the HTTP status code and
// the server's error message.
type Error struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("kehai: %s (%d): %s", e.Code, e.StatusCode, e.Message)
}

// IsNotFound returns true if the error is a 404.
func IsNotFound(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.StatusCode == 404
	}
	return false
}

// IsUnauthorized returns true if the error is a 401.
func IsUnauthorized(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.StatusCode == 401
	}
	return false
}

// IsUnavailable returns true if the error is a 503, answered when an
// optional subsystem (history, the backend connection) is disabled.
func IsUnavailable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.StatusCode == 503
	}
	return false
}
