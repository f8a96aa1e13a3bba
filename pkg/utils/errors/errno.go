// Package errors provides the coded error system for DocuChat.
//
// Error Code Format: AABBCCC (7 digits)
//
//	AA  (00-99): Service/Module code - identifies the source component
//	BB  (00-99): Category code - identifies the error category
//	CCC (000-999): Sequence number - specific error within the category
//
// Service Codes (AA):
//
//	00: Common/Base errors
//	10: Vector index
//	11: Document registry
//	20: Chat core (retrieval, orchestration)
//	90: External capabilities (embedding, completion)
//
// Category Codes (BB):
//
//	01: Request/Validation errors (400)
//	04: Resource not found errors (404)
//	05: Conflict errors (409)
//	07: Internal errors (500)
//	10: Network/Upstream errors (502/503)
//	11: Timeout errors (504)
package errors

import (
	"errors"
	"fmt"
)

// Service codes (AA).
const (
	ServiceCommon     = 0
	ServiceIndex      = 10
	ServiceRegistry   = 11
	ServiceChat       = 20
	ServiceCapability = 90
)

// Category codes (BB).
const (
	CategoryRequest  = 1
	CategoryNotFound = 4
	CategoryConflict = 5
	CategoryInternal = 7
	CategoryUpstream = 10
	CategoryTimeout  = 11
)

// MakeCode builds an AABBCCC error code.
func MakeCode(service, category, seq int) int {
	return service*100000 + category*1000 + seq
}

// Errno represents a structured error with code and messages.
type Errno struct {
	// Code is the unique error code.
	Code int `json:"code"`

	// HTTP is the HTTP status code to return.
	HTTP int `json:"-"`

	// Message is the short human-readable message. It is the only text
	// that crosses the service boundary.
	Message string `json:"message"`

	// cause is the underlying error; never serialized.
	cause error
}

// New creates a new Errno.
func New(code, httpStatus int, message string) *Errno {
	return &Errno{
		Code:    code,
		HTTP:    httpStatus,
		Message: message,
	}
}

// Error implements the error interface.
func (e *Errno) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("errno %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("errno %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Errno) Unwrap() error {
	return e.cause
}

// Is matches two Errnos by code, so wrapped copies created with WithCause
// or WithMessage still compare equal to their sentinel.
func (e *Errno) Is(target error) bool {
	var t *Errno
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code
}

// WithCause returns a copy of the Errno carrying the given cause.
func (e *Errno) WithCause(cause error) *Errno {
	return &Errno{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: e.Message,
		cause:   cause,
	}
}

// WithMessage returns a copy of the Errno with a custom message.
func (e *Errno) WithMessage(format string, args ...any) *Errno {
	return &Errno{
		Code:    e.Code,
		HTTP:    e.HTTP,
		Message: fmt.Sprintf(format, args...),
		cause:   e.cause,
	}
}

// FromError extracts an Errno from err, walking the wrap chain. If err is
// not a coded error it is mapped to ErrInternal so no internal detail leaks
// past the boundary.
func FromError(err error) *Errno {
	if err == nil {
		return nil
	}
	var e *Errno
	if errors.As(err, &e) {
		return e
	}
	return ErrInternal.WithCause(err)
}
