// Package errors wraps pkg/errors and adds the error codes used across the
// cluster store. Callers match on a Code with Is rather than on error values.
package errors

import (
	"fmt"

	"github.com/pkg/errors"
)

// Code is an error code which can be used to check against a given error. For
// example, see the Is() method.
type Code string

const (
	ErrUncoded Code = "Uncoded"

	// InvalidPath is an unknown cluster type segment or a key arity the
	// requested operation cannot accept.
	InvalidPath Code = "InvalidPath"
	// InvalidData is a malformed key segment or record.
	InvalidData Code = "InvalidData"
	// NotFound is a resolvable address with no matching row.
	NotFound Code = "NotFound"
	// Conflict is an insert whose full key is already present.
	Conflict Code = "Conflict"
	// IllegalMutation is an update of an append-only cluster type. Never retry.
	IllegalMutation Code = "IllegalMutation"
	// PoolExhausted is a connection acquisition that timed out.
	PoolExhausted Code = "PoolExhausted"
	// ConnectionError is a broken or unreachable backend.
	ConnectionError Code = "ConnectionError"
	// TransactionState is a commit, abort or acquire on a handle in the wrong state.
	TransactionState Code = "TransactionState"
	// Configuration is a missing or inconsistent configuration input.
	Configuration Code = "Configuration"
)

func New(code Code, message string) error {
	return errors.WithStack(codedError{
		Code:    code,
		Message: message,
	})
}

func Newf(code Code, format string, args ...interface{}) error {
	return New(code, fmt.Sprintf(format, args...))
}

func As(err error, target interface{}) bool {
	return errors.As(err, target)
}

func Cause(err error) error {
	return errors.Cause(err)
}

func Errorf(format string, args ...interface{}) error {
	return errors.Errorf(format, args...)
}

// Is is a fork of the Is() method from `pkg/errors` which takes as its target
// an error Code instead of an error.
func Is(err error, target Code) bool {
	match := codedError{
		Code: target,
	}
	return errors.Is(err, match)
}

// CodeOf returns the code carried by err, or ErrUncoded.
func CodeOf(err error) Code {
	var ce codedError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return ErrUncoded
}

// Retryable reports whether err is a transient infrastructure failure. The
// store itself never retries.
func Retryable(err error) bool {
	return Is(err, PoolExhausted) || Is(err, ConnectionError)
}

func Unwrap(err error) error {
	return errors.Unwrap(err)
}

func WithMessage(err error, message string) error {
	return errors.WithMessage(err, message)
}

func WithMessagef(err error, format string, args ...interface{}) error {
	return errors.WithMessagef(err, format, args...)
}

func WithStack(err error) error {
	return errors.WithStack(err)
}

func Wrap(err error, message string) error {
	return errors.Wrap(err, message)
}

func Wrapf(err error, fmt string, args ...interface{}) error {
	return errors.Wrapf(err, fmt, args...)
}

// codedError is the fundamental type used by this package to provide coded
// errors.
type codedError struct {
	Code    Code
	Message string
}

func (ce codedError) Error() string {
	return ce.Message
}

func (ce codedError) Is(err error) bool {
	if e, ok := err.(codedError); ok && ce.Code == e.Code {
		return true
	}
	return false
}
