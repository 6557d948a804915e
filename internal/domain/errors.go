package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrWindowClosed is returned when enrollment happens outside [startTime, endTime).
	ErrWindowClosed = errors.New("quiz window closed")
	// ErrUnauthorized indicates a wrong enrollment password.
	ErrUnauthorized = errors.New("invalid quiz password")
	// ErrBanned is returned for operations on, or re-enrollment into, an abandoned attempt.
	ErrBanned = errors.New("attempt banned")
	// ErrInvalidState indicates a write against an attempt that is no longer in progress.
	ErrInvalidState = errors.New("attempt not in progress")
	// ErrInvalidAnswer indicates an answer vector that does not fit the question.
	ErrInvalidAnswer = errors.New("invalid answer")
	// ErrAlreadyTerminal is returned when a transition loses to an earlier finalization.
	ErrAlreadyTerminal = errors.New("attempt already finalized")
	// ErrNotFound is the parent of every lookup miss.
	ErrNotFound = errors.New("not found")
	// ErrForbidden indicates the caller does not own the attempt or lacks the instructor role.
	ErrForbidden = errors.New("forbidden")
	// ErrInvalidSnapshot indicates a question that breaks the snapshot invariants.
	ErrInvalidSnapshot = errors.New("invalid question snapshot")

	ErrQuizNotFound     = fmt.Errorf("quiz %w", ErrNotFound)
	ErrAttemptNotFound  = fmt.Errorf("attempt %w", ErrNotFound)
	ErrQuestionNotFound = fmt.Errorf("question %w", ErrNotFound)
)

// Kind is the caller-facing tag of an error.
type Kind string

const (
	KindWindowClosed    Kind = "WindowClosed"
	KindUnauthorized    Kind = "Unauthorized"
	KindBanned          Kind = "Banned"
	KindInvalidState    Kind = "InvalidState"
	KindInvalidAnswer   Kind = "InvalidAnswer"
	KindAlreadyTerminal Kind = "AlreadyTerminal"
	KindNotFound        Kind = "NotFound"
	KindForbidden       Kind = "Forbidden"
	KindInvalidSnapshot Kind = "InvalidSnapshot"
	// KindInternal covers storage and other infrastructure failures; callers should retry.
	KindInternal Kind = "Internal"
)

var kinds = []struct {
	err  error
	kind Kind
}{
	{ErrWindowClosed, KindWindowClosed},
	{ErrUnauthorized, KindUnauthorized},
	{ErrBanned, KindBanned},
	{ErrInvalidState, KindInvalidState},
	{ErrInvalidAnswer, KindInvalidAnswer},
	{ErrAlreadyTerminal, KindAlreadyTerminal},
	{ErrNotFound, KindNotFound},
	{ErrForbidden, KindForbidden},
	{ErrInvalidSnapshot, KindInvalidSnapshot},
}

// KindOf maps err onto the error taxonomy. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	for _, k := range kinds {
		if errors.Is(err, k.err) {
			return k.kind
		}
	}
	return KindInternal
}

// Terminal reports whether the error means the attempt can no longer be written by the client.
func (k Kind) Terminal() bool {
	switch k {
	case KindBanned, KindWindowClosed, KindInvalidState, KindAlreadyTerminal:
		return true
	}
	return false
}
