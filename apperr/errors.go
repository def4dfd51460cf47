// Package apperr provides error classification shared across the
// ingestion and retrieval pipelines. Errors carry a Kind so callers can
// decide between skip-and-continue, retry, and abort without matching on
// message strings.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

// Kind classifies an error for handling purposes.
type Kind int

const (
	// KindArtifact marks a missing or corrupt model/tokenizer artifact.
	// Fatal at startup, never retryable.
	KindArtifact Kind = iota
	// KindDecode marks an unreadable or corrupt image. During batch
	// ingestion the file is skipped and the batch continues.
	KindDecode
	// KindInference marks a forward-pass failure. Non-retryable for that
	// input; subsequent calls are unaffected.
	KindInference
	// KindPersistence marks a transaction or connection failure.
	KindPersistence
	// KindValidation marks rejected caller input (bad limit, nonexistent
	// root path). Surfaced immediately, no partial work attempted.
	KindValidation
)

// String returns the kind's label as used in logs.
func (k Kind) String() string {
	switch k {
	case KindArtifact:
		return "artifact"
	case KindDecode:
		return "decode"
	case KindInference:
		return "inference"
	case KindPersistence:
		return "persistence"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// Error wraps an underlying error with a Kind and an optional retryable
// marker. It supports errors.Is and errors.As through Unwrap.
type Error struct {
	Kind      Kind
	Retryable bool
	Op        string
	Err       error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s error: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s error: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error from a formatted message.
func New(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Wrap classifies an existing error. Returns nil if err is nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// WrapRetryable classifies a transient error that the caller may retry,
// such as a timed-out pool acquisition.
func WrapRetryable(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Retryable: true, Op: op, Err: err}
}

// KindOf reports the Kind of err, or ok=false if err carries none.
func KindOf(err error) (Kind, bool) {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return 0, false
}

// IsKind reports whether err is classified with kind.
func IsKind(err error, kind Kind) bool {
	k, ok := KindOf(err)
	return ok && k == kind
}

// IsRetryable reports whether err is marked retryable. Context deadline
// errors from bounded pool waits count as retryable resource errors.
func IsRetryable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable
	}
	return false
}
