package pipeline

import (
	"errors"
	"fmt"

	"dualmind/internal/domain"
)

// StageError wraps a stage failure with its classification.
type StageError struct {
	Stage   string
	Kind    domain.ErrorKind
	Message string
	Err     error
}

func (e *StageError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Stage, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("%s: %v", e.Stage, e.Err)
	}
	return fmt.Sprintf("%s: %s: %v", e.Stage, e.Message, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// ErrorKind returns the classification of e.
func (e *StageError) ErrorKind() domain.ErrorKind {
	return e.Kind
}

// JobError converts e into the structure stored on a failed job.
func (e *StageError) JobError() *domain.JobError {
	detail := e.Message
	if e.Err != nil {
		if detail == "" {
			detail = e.Err.Error()
		} else {
			detail = detail + ": " + e.Err.Error()
		}
	}
	return &domain.JobError{Kind: e.Kind, Stage: e.Stage, Detail: detail}
}

// Fail builds a classified error for a stage to return.
func Fail(kind domain.ErrorKind, message string, err error) error {
	return &StageError{Kind: kind, Message: message, Err: err}
}

// PanicError records a recovered panic from a stage.
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

func wrapStageError(stage string, err error) *StageError {
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		out := *stageErr
		if out.Stage == "" {
			out.Stage = stage
		}
		if out.Kind == "" {
			out.Kind = domain.ErrorKindInternal
		}
		return &out
	}
	return &StageError{Stage: stage, Kind: domain.KindOf(err), Err: err}
}
