package domain

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")
	ErrNotFound     = errors.New("not_found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation")
)

// ValidationError carries per-field messages and unwraps to ErrValidation.
type ValidationError struct {
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s: %s", k, e.Fields[k]))
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func NewValidationError(fields map[string]string) error {
	return &ValidationError{Fields: fields}
}

// Invalid is shorthand for a single-field validation error.
func Invalid(field, message string) error {
	return &ValidationError{Fields: map[string]string{field: message}}
}

// NotFound wraps ErrNotFound with a client-facing message.
func NotFound(message string) error {
	return &MessageError{Kind: ErrNotFound, Message: message}
}

// Forbidden wraps ErrForbidden with a client-facing message.
func Forbidden(message string) error {
	return &MessageError{Kind: ErrForbidden, Message: message}
}

// Conflict wraps ErrConflict with a client-facing message.
func Conflict(message string) error {
	return &MessageError{Kind: ErrConflict, Message: message}
}

// MessageError attaches a message that is safe to show to the caller.
type MessageError struct {
	Kind    error
	Message string
}

func (e *MessageError) Error() string { return e.Message }

func (e *MessageError) Unwrap() error { return e.Kind }

// PublicMessage returns the caller-safe message carried by err, if any.
func PublicMessage(err error) (string, bool) {
	var me *MessageError
	if errors.As(err, &me) && me.Message != "" {
		return me.Message, true
	}
	return "", false
}
