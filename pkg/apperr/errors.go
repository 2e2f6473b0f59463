package apperr

import (
	"errors"
	"fmt"
)

// Stable error kinds exposed to API clients.
const (
	KindValidation   = "validation"
	KindNotFound     = "not_found"
	KindConflict     = "conflict"
	KindBusinessRule = "business_rule"
	KindUnauthorized = "unauthorized"
)

// ValidationError indicates malformed caller input (bad code, path, UUID,
// missing required field). Always caller-fixable, never retried.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

// NewValidation creates a ValidationError with a formatted message.
func NewValidation(format string, args ...interface{}) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// NotFoundError indicates an absent node, grant, user or actor.
type NotFoundError struct {
	msg string
}

func (e *NotFoundError) Error() string { return e.msg }

// NewNotFound creates a NotFoundError with a formatted message.
func NewNotFound(format string, args ...interface{}) error {
	return &NotFoundError{msg: fmt.Sprintf(format, args...)}
}

// IsNotFound reports whether err is a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// ConflictError indicates a uniqueness collision: duplicate sibling code,
// duplicate path, duplicate active grant, or revoking an already-inactive
// grant. The caller must pick a different identifier or revoke first.
type ConflictError struct {
	msg string
}

func (e *ConflictError) Error() string { return e.msg }

// NewConflict creates a ConflictError with a formatted message.
func NewConflict(format string, args ...interface{}) error {
	return &ConflictError{msg: fmt.Sprintf(format, args...)}
}

// IsConflict reports whether err is a ConflictError.
func IsConflict(err error) bool {
	var target *ConflictError
	return errors.As(err, &target)
}

// BusinessRuleError indicates a structurally valid request that violates a
// hierarchy rule: circular move, deleting a subtree with children without
// force, restoring under an inactive ancestor. Never downgraded to a warning.
type BusinessRuleError struct {
	msg string
}

func (e *BusinessRuleError) Error() string { return e.msg }

// NewBusinessRule creates a BusinessRuleError with a formatted message.
func NewBusinessRule(format string, args ...interface{}) error {
	return &BusinessRuleError{msg: fmt.Sprintf(format, args...)}
}

// IsBusinessRule reports whether err is a BusinessRuleError.
func IsBusinessRule(err error) bool {
	var target *BusinessRuleError
	return errors.As(err, &target)
}

// UnauthorizedError indicates the acting user lacks a sufficient effective
// role for the operation. Distinct from NotFound: existence is not hidden in
// this system.
type UnauthorizedError struct {
	msg string
}

func (e *UnauthorizedError) Error() string { return e.msg }

// NewUnauthorized creates an UnauthorizedError with a formatted message.
func NewUnauthorized(format string, args ...interface{}) error {
	return &UnauthorizedError{msg: fmt.Sprintf(format, args...)}
}

// IsUnauthorized reports whether err is an UnauthorizedError.
func IsUnauthorized(err error) bool {
	var target *UnauthorizedError
	return errors.As(err, &target)
}

// KindOf returns the stable kind string for a taxonomy error, or "" when the
// error is unclassified (internal).
func KindOf(err error) string {
	switch {
	case IsValidation(err):
		return KindValidation
	case IsNotFound(err):
		return KindNotFound
	case IsConflict(err):
		return KindConflict
	case IsBusinessRule(err):
		return KindBusinessRule
	case IsUnauthorized(err):
		return KindUnauthorized
	default:
		return ""
	}
}
