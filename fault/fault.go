// Package fault defines the kinds of error the hierarchy and attribute stores
// surface to their callers. Every error returned by those packages matches
// exactly one kind with errors.Is, and keeps its cause reachable through
// errors.Unwrap.
package fault

import (
	"errors"
	"fmt"
)

// Kind is a class of failure.
type Kind struct{ name string }

func (k *Kind) Error() string { return k.name }

var (
	// ErrNotFound is a referenced parent, layer or owner object that does not
	// exist.
	ErrNotFound = &Kind{"not found"}
	// ErrPrecondition is an operation that needs a persisted key that is absent.
	ErrPrecondition = &Kind{"precondition failed"}
	// ErrCyclic is a parent assignment that would create a cycle.
	ErrCyclic = &Kind{"cyclic dependency"}
	// ErrInvalidOperation is an attempt to mutate an immutable field.
	ErrInvalidOperation = &Kind{"invalid operation"}
	// ErrConcurrentModification is a conflicting concurrent write detected by
	// the backing store.
	ErrConcurrentModification = &Kind{"concurrent modification"}
	// ErrStorage wraps any other failure of the backing store.
	ErrStorage = &Kind{"storage error"}
	// ErrOverflow is an interval fraction that no longer fits in 64 bits.
	ErrOverflow = &Kind{"fraction overflow"}
	// ErrInvalidArgument is a malformed request, such as an empty name or a
	// comparison across two different trees.
	ErrInvalidArgument = &Kind{"invalid argument"}
)

// Error is an error of a given Kind with a message and an optional cause.
type Error struct {
	Kind  *Kind
	Msg   string
	Cause error
}

func (e *Error) Error() string {
	switch {
	case e.Cause != nil && e.Msg != "":
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Msg, e.Cause)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %s", e.Kind, e.Cause)
	case e.Msg != "":
		return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
	}
	return e.Kind.Error()
}

// Is matches the Kind of the error.
func (e *Error) Is(target error) bool { return target == e.Kind }

func (e *Error) Unwrap() error { return e.Cause }

// New creates an error of the given kind.
func New(kind *Kind, format string, a ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...)}
}

// Wrap creates an error of the given kind that wraps a cause.
func Wrap(kind *Kind, cause error, format string, a ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, a...), Cause: cause}
}

// KindOf returns the kind of an error, or nil if it has none.
func KindOf(err error) *Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	var k *Kind
	if errors.As(err, &k) {
		return k
	}
	return nil
}

// conflicts are the transaction conflict errors of the registered backends.
var conflicts []error

// RegisterConflict adds a backend error that should be reported as
// ErrConcurrentModification by Storage. Backends call it from init.
func RegisterConflict(err error) { conflicts = append(conflicts, err) }

// Storage classifies an error from a backing store. Errors that already carry
// a kind are returned unchanged, transaction conflicts become
// ErrConcurrentModification and anything else becomes ErrStorage.
func Storage(err error) error {
	if err == nil {
		return nil
	}
	if KindOf(err) != nil {
		return err
	}
	for _, c := range conflicts {
		if errors.Is(err, c) {
			return &Error{Kind: ErrConcurrentModification, Cause: err}
		}
	}
	return &Error{Kind: ErrStorage, Cause: err}
}
