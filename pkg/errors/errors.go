// Package errors defines the failure taxonomy shared by the project model
// cache, the artifact indexes and the editing participants.
package errors

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
)

var (
	ErrDocumentBuild      = errors.New("project model build failed")
	ErrSourceUnavailable  = errors.New("remote source unavailable")
	ErrQueryTimeout       = errors.New("query did not finish before the deadline")
	ErrMalformedCandidate = errors.New("declaration is missing coordinate fields")
	ErrLookup             = errors.New("component lookup failed")
	ErrDocumentNotOpen    = errors.New("document is not open")
	ErrInvalidInput       = errors.New("invalid input")
)

// AppError attaches a message to one of the sentinel errors.
type AppError struct {
	Err     error
	Message string
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, message string) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *AppError {
	return &AppError{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Kind maps an error to a stable label for metrics and logs.
func Kind(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrDocumentBuild):
		return "document_build"
	case errors.Is(err, ErrSourceUnavailable):
		return "source_unavailable"
	case errors.Is(err, ErrQueryTimeout), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrMalformedCandidate):
		return "malformed_candidate"
	case errors.Is(err, ErrLookup):
		return "lookup"
	case errors.Is(err, ErrDocumentNotOpen):
		return "not_open"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case IsIO(err):
		return "io"
	default:
		return "internal"
	}
}

// IsIO reports whether err came from the filesystem.
func IsIO(err error) bool {
	var pathErr *fs.PathError
	return errors.As(err, &pathErr) || errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission)
}
