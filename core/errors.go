package core

import (
	"errors"

	pkgerrors "github.com/pkg/errors"
)

// FieldError is used to indicate an error with a specific struct field.
type FieldError struct {
	Field string
	Error string
}

// ValidationError reports missing or malformed input.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{err, flds}
}

func (err ValidationError) Error() string {
	if err.Err == nil {
		if len(err.Fields) > 0 {
			return err.Fields[0].Error
		}
		return ""
	}
	return err.Err.Error()
}

// NotFoundError reports an id that does not resolve to an entity.
type NotFoundError struct {
	Msg string
}

func NewNotFoundError(msg string) error {
	return &NotFoundError{Msg: msg}
}

func (err NotFoundError) Error() string { return err.Msg }

// ForbiddenError reports a role/course/group mismatch against the target.
type ForbiddenError struct {
	Msg string
}

func NewForbiddenError(msg string) error {
	return &ForbiddenError{Msg: msg}
}

func (err ForbiddenError) Error() string { return err.Msg }

// ConflictError reports a state that makes the request impossible, e.g. a duplicate.
type ConflictError struct {
	Msg string
}

func NewConflictError(msg string) error {
	return &ConflictError{Msg: msg}
}

func (err ConflictError) Error() string { return err.Msg }

// RateLimitError reports a repeated request inside its guard window.
type RateLimitError struct {
	Msg string
}

func NewRateLimitError(msg string) error {
	return &RateLimitError{Msg: msg}
}

func (err RateLimitError) Error() string { return err.Msg }

func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

func IsShutdown(err error) bool {
	_, ok := pkgerrors.Cause(err).(*shutdown)
	return ok
}
