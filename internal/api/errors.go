package api

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a backend response with a non-2xx status. Transport failures are
// not Errors; they carry no status.
type Error struct {
	Status  int
	Message string
}

// Error returns the status and server-provided message.
func (e *Error) Error() string {
	return fmt.Sprintf("api: status %d: %s", e.Status, e.Message)
}

// StatusOf returns the HTTP status carried by err, or 0 for transport and
// other non-API errors.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// IsUnauthorized reports whether err is a 401 response.
func IsUnauthorized(err error) bool {
	return StatusOf(err) == http.StatusUnauthorized
}

// IsNotFound reports whether err is a 404 response.
func IsNotFound(err error) bool {
	return StatusOf(err) == http.StatusNotFound
}
