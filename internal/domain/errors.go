package domain

import (
	"context"
	"errors"
)

// ErrorKind classifies failures so the UI can show kind-specific messages.
type ErrorKind string

const (
	ErrorKindNetworkFailure   ErrorKind = "network_failure"
	ErrorKindNotFound         ErrorKind = "not_found"
	ErrorKindUnsupported      ErrorKind = "unsupported"
	ErrorKindUnreadable       ErrorKind = "unreadable"
	ErrorKindModelInitFailure ErrorKind = "model_init_failure"
	ErrorKindIO               ErrorKind = "io_error"
	ErrorKindInvalidState     ErrorKind = "invalid_state"
	ErrorKindAlreadyRunning   ErrorKind = "already_running"
	ErrorKindCancelled        ErrorKind = "cancelled"
	ErrorKindInternal         ErrorKind = "internal"
)

// Retryable reports whether re-invoking start with the same input may succeed.
func (k ErrorKind) Retryable() bool {
	return k == ErrorKindNetworkFailure || k == ErrorKindIO
}

// JobError is the structured failure cause stored on a failed job.
type JobError struct {
	Kind   ErrorKind `json:"kind"`
	Stage  string    `json:"stage,omitempty"`
	Detail string    `json:"detail"`
}

// Error is a kinded error value, used for package sentinels.
type Error struct {
	Kind    ErrorKind
	Message string
}

// NewError builds a kinded error.
func NewError(kind ErrorKind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func (e *Error) Error() string {
	return e.Message
}

// ErrorKind returns the classification of e.
func (e *Error) ErrorKind() ErrorKind {
	return e.Kind
}

// KindOf walks the error chain and returns the first classification found.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var kinded interface{ ErrorKind() ErrorKind }
	if errors.As(err, &kinded) {
		return kinded.ErrorKind()
	}
	if errors.Is(err, context.Canceled) {
		return ErrorKindCancelled
	}
	return ErrorKindInternal
}

// UserMessage returns the text shown for a failure of the given kind.
func UserMessage(kind ErrorKind) string {
	switch kind {
	case ErrorKindNetworkFailure:
		return "The download failed because the network is unreachable. Check your connection and try again."
	case ErrorKindNotFound:
		return "The video could not be found. It may be private, removed or region locked."
	case ErrorKindUnsupported:
		return "This input is not supported. Enter a single YouTube video link."
	case ErrorKindUnreadable:
		return "The PDF could not be read. It may be encrypted, corrupted or contain only scanned images."
	case ErrorKindModelInitFailure:
		return "The speech model could not be loaded. YouTube transcription is unavailable until this is fixed."
	case ErrorKindIO:
		return "The file could not be written. Choose another location and export again."
	case ErrorKindInvalidState:
		return "There is no finished result to export yet."
	case ErrorKindAlreadyRunning:
		return "Another job is still running. Wait for it to finish or cancel it."
	case ErrorKindCancelled:
		return "The job was cancelled."
	default:
		return "Something went wrong while processing the request."
	}
}
