// Package apierror defines the error taxonomy shared by the provisioning and
// identity clients and maps HTTP responses onto it.
package apierror

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Sentinel errors for common error conditions
var (
	// ErrAuth is returned for rejected credentials or missing authorization.
	ErrAuth = errors.New("authentication failed")

	// ErrConflict is returned when an application, tenant, role or user identifier already exists.
	ErrConflict = errors.New("already exists")

	// ErrNotFound is returned when a referenced tenant or application is not registered.
	ErrNotFound = errors.New("not found")

	// ErrPrecondition is returned when a call is made out of order, e.g. assigning
	// applications before the identity manager.
	ErrPrecondition = errors.New("precondition failed")

	// ErrConfirmationTimeout is returned when a confirmation event did not arrive in time.
	ErrConfirmationTimeout = errors.New("confirmation event not received")
)

// maxBodyBytes bounds how much of an error response body is kept.
const maxBodyBytes = 4096

// Error is a failed API call.
type Error struct {
	Op     string
	Status int
	Body   string
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if kind := e.kind(); kind != nil {
		msg += " (" + kind.Error() + ")"
	}
	return msg
}

// Unwrap returns the sentinel matching the status code, if any.
func (e *Error) Unwrap() error {
	return e.kind()
}

func (e *Error) kind() error {
	switch e.Status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return ErrAuth
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusConflict:
		return ErrConflict
	case http.StatusPreconditionFailed, http.StatusPreconditionRequired:
		return ErrPrecondition
	default:
		return nil
	}
}

// FromResponse returns nil for 2xx responses and an *Error otherwise. The body
// of a failed response is read (bounded) but not closed.
func FromResponse(op string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}

	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))

	return &Error{
		Op:     op,
		Status: resp.StatusCode,
		Body:   strings.TrimSpace(string(body)),
	}
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}
