package util

import (
	"fmt"

	"github.com/sorintlab/errors"
)

type ErrorKind int

const (
	ErrBadRequest ErrorKind = iota
	ErrNotExist
	ErrUnavailable
	ErrInternal
)

func (k ErrorKind) String() string {
	switch k {
	case ErrBadRequest:
		return "badRequest"
	case ErrNotExist:
		return "notExist"
	case ErrUnavailable:
		return "unavailable"
	case ErrInternal:
		return "internal"
	}
	return "unknown"
}

type ErrorCode string

const (
	ErrorCodeEmptyFile              ErrorCode = "emptyFile"
	ErrorCodeFileTooLarge           ErrorCode = "fileTooLarge"
	ErrorCodeUnsupportedMedia       ErrorCode = "unsupportedMedia"
	ErrorCodeInvalidJSON            ErrorCode = "invalidJSON"
	ErrorCodeEmptyText              ErrorCode = "emptyText"
	ErrorCodeInvalidRate            ErrorCode = "invalidRate"
	ErrorCodeInvalidURL             ErrorCode = "invalidURL"
	ErrorCodeTaskNotFound           ErrorCode = "taskNotFound"
	ErrorCodeUnsupportedProcessType ErrorCode = "unsupportedProcessType"
	ErrorCodeProviderNotConfigured  ErrorCode = "providerNotConfigured"
	ErrorCodeProviderFailed         ErrorCode = "providerFailed"
	ErrorCodeQueueFull              ErrorCode = "queueFull"
)

// APIError classifies an error for the HTTP layer. Message is what the client
// sees; the wrapped error is only logged.
type APIError struct {
	err     error
	Kind    ErrorKind
	Code    ErrorCode
	Message string
}

type APIErrorOption func(e *APIError)

func WithAPIErrorCode(code ErrorCode) APIErrorOption {
	return func(e *APIError) {
		e.Code = code
	}
}

func WithAPIErrorMsg(format string, args ...interface{}) APIErrorOption {
	return func(e *APIError) {
		e.Message = fmt.Sprintf(format, args...)
	}
}

func NewAPIError(kind ErrorKind, err error, options ...APIErrorOption) error {
	derr := &APIError{err: err, Kind: kind}
	for _, opt := range options {
		opt(derr)
	}
	if derr.Message == "" && err != nil && kind != ErrInternal {
		derr.Message = err.Error()
	}
	return errors.WithStack(derr)
}

func (e *APIError) Error() string {
	if e.err == nil {
		return e.Message
	}
	return e.err.Error()
}

func (e *APIError) Unwrap() error {
	return e.err
}

func AsAPIError(err error) (*APIError, bool) {
	var derr *APIError
	return derr, errors.As(err, &derr)
}

func APIErrorIs(err error, kind ErrorKind) bool {
	if derr, ok := AsAPIError(err); ok && derr.Kind == kind {
		return true
	}
	return false
}

// RemoteError is returned by clients of third party APIs for non-2xx
// responses.
type RemoteError struct {
	StatusCode int
	Message    string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote error (status: %d)", e.StatusCode)
	}
	return fmt.Sprintf("remote error (status: %d): %s", e.StatusCode, e.Message)
}
