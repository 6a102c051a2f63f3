package services

import (
	"github.com/pkg/errors"
)

// Error classes callers branch on with errors.Is. Duplicate credits are not
// errors; they come back as AppendResult{Duplicate: true}.
var (
	ErrValidation   = errors.New("validation failed")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrUnavailable  = errors.New("storage unavailable")
)

func validationf(format string, args ...any) error {
	return errors.Wrapf(ErrValidation, format, args...)
}

func notFoundf(format string, args ...any) error {
	return errors.Wrapf(ErrNotFound, format, args...)
}

func conflictf(format string, args ...any) error {
	return errors.Wrapf(ErrConflict, format, args...)
}

// unavailable wraps a storage failure. A nil err stays nil.
func unavailable(err error, op string) error {
	if err == nil {
		return nil
	}
	return errors.WithStack(&storageError{op: op, cause: err})
}

type storageError struct {
	op    string
	cause error
}

func (e *storageError) Error() string { return e.op + ": " + e.cause.Error() }

// Is keeps errors.Is(err, ErrUnavailable) true while Unwrap still exposes
// the driver error.
func (e *storageError) Is(target error) bool { return target == ErrUnavailable }
func (e *storageError) Unwrap() error        { return e.cause }

func isValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}
