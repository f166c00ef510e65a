package workflow

import (
	"fmt"

	"github.com/clinicflow/scheduling-ai/internal/session"
)

// Kind classifies a stage failure for retry accounting.
type Kind string

const (
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindTransport     Kind = "transport"
	KindUnrecoverable Kind = "unrecoverable"
)

// Error is a stage failure. Every kind except KindUnrecoverable counts
// against the stage retry budget; unrecoverable failures escalate at once.
type Error struct {
	Kind  Kind
	Stage session.Stage
	Err   error
}

func (e *Error) Error() string {
	return fmt.Sprintf("workflow: %s failure at %s: %v", e.Kind, e.Stage, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Recoverable reports whether the failure should be retried before escalating.
func (e *Error) Recoverable() bool {
	return e.Kind != KindUnrecoverable
}

func stageErr(kind Kind, stage session.Stage, err error) *Error {
	return &Error{Kind: kind, Stage: stage, Err: err}
}

func validationErr(stage session.Stage, err error) *Error {
	return stageErr(KindValidation, stage, err)
}

func transportErr(stage session.Stage, err error) *Error {
	return stageErr(KindTransport, stage, err)
}
