// Package apperr defines the error kinds shared by the chat services.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind names used in ack frames and logs.
const (
	KindValidation  = "ValidationError"
	KindNotFound    = "NotFoundError"
	KindBlocked     = "BlockedError"
	KindForbidden   = "ForbiddenError"
	KindPersistence = "PersistenceError"
	KindInternal    = "InternalError"
)

// Block reasons carried by BlockedError and the messageBlocked notice.
const (
	ReasonYouBlocked      = "you-blocked-target"
	ReasonBlockedByTarget = "blocked-by-target"
)

// ValidationError indicates a missing or malformed required field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on %s: %s", e.Field, e.Message)
}

// Required is shorthand for a ValidationError on an empty field.
func Required(field string) *ValidationError {
	return &ValidationError{Field: field, Message: "is required"}
}

// NotFoundError indicates the referenced resource does not exist.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Resource, e.ID)
}

// BlockedError indicates delivery was suppressed by a block relation.
type BlockedError struct {
	Reason string
}

func (e *BlockedError) Error() string {
	return "blocked: " + e.Reason
}

// ForbiddenError indicates the caller may not act on the resource.
type ForbiddenError struct{}

func (e *ForbiddenError) Error() string {
	return "forbidden"
}

// PersistenceError wraps a failed storage operation.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persistence error in %s: %v", e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Persistence wraps err as a PersistenceError unless it already carries a
// more specific kind (not found, validation).
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	var nf *NotFoundError
	var ve *ValidationError
	var pe *PersistenceError
	if errors.As(err, &nf) || errors.As(err, &ve) || errors.As(err, &pe) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// KindOf classifies err into one of the Kind constants.
func KindOf(err error) string {
	var (
		ve *ValidationError
		nf *NotFoundError
		be *BlockedError
		fe *ForbiddenError
		pe *PersistenceError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		return KindValidation
	case errors.As(err, &nf):
		return KindNotFound
	case errors.As(err, &be):
		return KindBlocked
	case errors.As(err, &fe):
		return KindForbidden
	case errors.As(err, &pe):
		return KindPersistence
	default:
		return KindInternal
	}
}

// HTTPStatus maps err to the response status used by the REST handlers.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindBlocked, KindForbidden:
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}
