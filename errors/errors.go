// Package errors provides error handling for texcomp.
//
// This package re-exports github.com/cockroachdb/errors, providing:
//   - Stack traces for debugging
//   - Error wrapping and context
//   - Hints for user-facing messages
//
// Usage:
//
//	// Create new error
//	err := errors.New("something went wrong")
//
//	// Wrap with context
//	if err := registry.Upsert(id, records); err != nil {
//	    return errors.Wrapf(err, "failed to index %s", id)
//	}
//
//	// Check errors
//	if errors.Is(err, errors.ErrNotFound) {
//	    // unit is not registered
//	}
//
// For full documentation see: https://pkg.go.dev/github.com/cockroachdb/errors
package errors

import (
	crdb "github.com/cockroachdb/errors"
)

// Core error creation and wrapping
var (
	New          = crdb.New
	Newf         = crdb.Newf
	Wrap         = crdb.Wrap
	Wrapf        = crdb.Wrapf
	WithStack    = crdb.WithStack
	WithMessage  = crdb.WithMessage
	WithMessagef = crdb.WithMessagef
)

// User-facing messages and details
var (
	WithHint    = crdb.WithHint
	WithHintf   = crdb.WithHintf
	WithDetail  = crdb.WithDetail
	WithDetailf = crdb.WithDetailf
)

// Error inspection
var (
	Is            = crdb.Is
	IsAny         = crdb.IsAny
	As            = crdb.As
	Unwrap        = crdb.Unwrap
	UnwrapAll     = crdb.UnwrapAll
	GetAllHints   = crdb.GetAllHints
	FlattenHints  = crdb.FlattenHints
	GetAllDetails = crdb.GetAllDetails
)

// Assertions
var (
	AssertionFailedf = crdb.AssertionFailedf
)

// Sentinel errors. Wrap these with errors.Wrap() to add context while
// preserving the type for errors.Is(). errors.Is matches on type and message,
// so the messages carry a package prefix.
var (
	// ErrNotFound indicates the requested unit or component does not exist
	ErrNotFound = New("texcomp: not found")

	// ErrInvalidArgument indicates a caller passed an unsupported value (e.g. an unknown symbol kind)
	ErrInvalidArgument = New("texcomp: invalid argument")

	// ErrClosed indicates the registry or service was torn down
	ErrClosed = New("texcomp: service closed")
)

// IsNotFoundError checks if an error is or wraps ErrNotFound
func IsNotFoundError(err error) bool {
	return err != nil && Is(err, ErrNotFound)
}

// IsInvalidArgumentError checks if an error is or wraps ErrInvalidArgument
func IsInvalidArgumentError(err error) bool {
	return err != nil && Is(err, ErrInvalidArgument)
}

// IsClosedError checks if an error is or wraps ErrClosed
func IsClosedError(err error) bool {
	return err != nil && Is(err, ErrClosed)
}

// NewNotFoundError creates a not-found error with a formatted message
func NewNotFoundError(format string, args ...interface{}) error {
	return Wrapf(ErrNotFound, format, args...)
}

// NewInvalidArgumentError creates an invalid-argument error with a formatted message
func NewInvalidArgumentError(format string, args ...interface{}) error {
	return Wrapf(ErrInvalidArgument, format, args...)
}
