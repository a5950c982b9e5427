// Package apperr defines the error kinds shared by the tracker services and
// the HTTP layer that maps them onto status codes.
package apperr

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrValidation          = errors.New("validation failed")
	ErrAlreadyClosed       = errors.New("activity already closed")
	ErrRaceLost            = errors.New("concurrent session start")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// ValidationError reports a rejected input field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// Validation returns a ValidationError for field.
func Validation(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// NotFoundError reports a missing resource.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s not found", e.Resource)
	}
	return fmt.Sprintf("%s %q not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// NotFound returns a NotFoundError for the given resource and id.
func NotFound(resource, id string) error {
	return &NotFoundError{Resource: resource, ID: id}
}

// Upstream wraps err as an ErrUpstreamUnavailable failure of the named service.
func Upstream(service string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrUpstreamUnavailable, service, err)
}
