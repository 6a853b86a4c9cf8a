package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// HTTPError defines errors that can be mapped to HTTP status codes.
type HTTPError interface {
	error
	StatusCode() int
}

// Sentinel errors - use with errors.Is()
var (
	ErrNotFound     = errors.New("not found")
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrStorage      = errors.New("storage failure")
	ErrMetadata     = errors.New("metadata failure")
	ErrRender       = errors.New("render failed")
	ErrRateLimited  = errors.New("rate limited")
)

// ValidationReason classifies why input was rejected.
type ValidationReason string

const (
	ReasonInvalid         ValidationReason = "invalid"
	ReasonSizeExceeded    ValidationReason = "size_exceeded"
	ReasonUnauthenticated ValidationReason = "unauthenticated"
)

// ValidationError indicates input rejected before any side effect.
type ValidationError struct {
	Reason  ValidationReason
	Message string
}

func NewValidationError(reason ValidationReason, format string, args ...any) *ValidationError {
	return &ValidationError{Reason: reason, Message: fmt.Sprintf(format, args...)}
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) StatusCode() int {
	switch e.Reason {
	case ReasonSizeExceeded:
		return http.StatusRequestEntityTooLarge
	case ReasonUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusBadRequest
	}
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// StorageError wraps a failed object store operation.
type StorageError struct {
	Op   string // put, get, delete
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %s: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error        { return e.Err }
func (e *StorageError) StatusCode() int      { return http.StatusBadGateway }
func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// MetadataError wraps a failed relational store write.
type MetadataError struct {
	Op  string
	Err error
}

func (e *MetadataError) Error() string {
	return fmt.Sprintf("metadata %s: %v", e.Op, e.Err)
}

func (e *MetadataError) Unwrap() error        { return e.Err }
func (e *MetadataError) StatusCode() int      { return http.StatusInternalServerError }
func (e *MetadataError) Is(target error) bool { return target == ErrMetadata }

// RenderError is the terminal error of a viewer load. Status carries the
// upstream HTTP status when the content fetch itself failed.
type RenderError struct {
	Status  int
	Message string
}

func (e *RenderError) Error() string {
	return e.Message
}

func (e *RenderError) StatusCode() int      { return http.StatusUnprocessableEntity }
func (e *RenderError) Is(target error) bool { return target == ErrRender }

// PermissionError indicates the actor is known but not allowed to act.
type PermissionError struct {
	Action   string
	Resource string
	ID       string
}

func (e *PermissionError) Error() string {
	return fmt.Sprintf("not permitted to %s %s %s", e.Action, e.Resource, e.ID)
}

func (e *PermissionError) StatusCode() int      { return http.StatusForbidden }
func (e *PermissionError) Is(target error) bool { return target == ErrForbidden }
