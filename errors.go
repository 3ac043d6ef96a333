package ardag

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	// ErrNotFound is the error returned
	// when a Getter tries to access a non-existent ref,
	// and when a ledger scan is exhausted without producing an answer.
	// It is a normal outcome, not a failure.
	ErrNotFound = errors.New("not found")

	// ErrEmptyCommit is the error returned when committing a Stage with nothing staged.
	ErrEmptyCommit = errors.New("nothing to commit")

	// ErrNothingStaged is the error returned by Stage.Undo when there is nothing to undo.
	ErrNothingStaged = errors.New("nothing staged")

	// ErrPublishFailed is the error returned when an archive could not be signed or submitted.
	// The write is not durable.
	ErrPublishFailed = errors.New("publish failed")

	// ErrHistoryUnavailable is the error returned when no query backend could produce
	// even the first page of an owner's history.
	// It is distinct from an empty history,
	// which is not an error.
	ErrHistoryUnavailable = errors.New("history unavailable")

	// ErrHistoryIncomplete is the error returned when some pages of an owner's history
	// were delivered but a later page could not be fetched from any backend.
	ErrHistoryIncomplete = errors.New("history incomplete")

	// ErrPayloadFetch is the error for a ledger entry whose payload could not be fetched.
	ErrPayloadFetch = errors.New("payload fetch failed")

	// ErrDecode is the error for a payload that is not a well-formed archive,
	// or does not match the discovery tags of its entry.
	ErrDecode = errors.New("decode failed")
)

// An error that is one of the sentinels above
// and also carries the underlying cause,
// so errors.Is matches both.
type causeError struct {
	sentinel error
	msg      string
	cause    error
}

func withCause(sentinel, cause error, format string, args ...interface{}) error {
	return &causeError{
		sentinel: sentinel,
		msg:      fmt.Sprintf(format, args...),
		cause:    cause,
	}
}

func (e *causeError) Error() string {
	return fmt.Sprintf("%s: %s: %s", e.msg, e.sentinel, e.cause)
}

func (e *causeError) Is(target error) bool {
	return target == e.sentinel
}

func (e *causeError) Unwrap() error {
	return e.cause
}
