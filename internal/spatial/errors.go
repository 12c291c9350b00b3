// SPDX-License-Identifier: MIT

package spatial

import (
	"fmt"

	"nimbus/internal/native"
)

// ErrorKind classifies a failure. The first three kinds mirror the native
// status codes one to one; the rest are raised on the Go side.
type ErrorKind int

const (
	KindUnspecified ErrorKind = iota + 1
	KindOutOfMemory
	KindInitialization
	KindShapeMismatch
	KindChannelContract
	KindBakeInProgress
	KindOutOfBounds
	KindBorrowed
)

func (k ErrorKind) String() string {
	switch k {
	case KindUnspecified:
		return "unspecified error"
	case KindOutOfMemory:
		return "out of memory"
	case KindInitialization:
		return "error while initializing an external dependency"
	case KindShapeMismatch:
		return "buffer shape mismatch"
	case KindChannelContract:
		return "invalid number of channels"
	case KindBakeInProgress:
		return "another bake operation is already in progress"
	case KindOutOfBounds:
		return "index out of bounds"
	case KindBorrowed:
		return "buffer is already borrowed"
	default:
		return fmt.Sprintf("ErrorKind(%d)", int(k))
	}
}

// Error is the error type returned by every fallible operation in nimbus.
// Match on kind with errors.Is against the Err* sentinels.
type Error struct {
	Kind ErrorKind
	// Op names the failed operation, e.g. "create hrtf".
	Op string
	// Detail replaces the kind's message when set.
	Detail string
}

func (e *Error) Error() string {
	msg := e.Detail
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op != "" {
		return e.Op + ": " + msg
	}
	return msg
}

// Is reports whether target is an *Error of the same kind.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

var (
	ErrUnspecified     = &Error{Kind: KindUnspecified}
	ErrOutOfMemory     = &Error{Kind: KindOutOfMemory}
	ErrInitialization  = &Error{Kind: KindInitialization}
	ErrShapeMismatch   = &Error{Kind: KindShapeMismatch}
	ErrChannelContract = &Error{Kind: KindChannelContract}
	ErrBakeInProgress  = &Error{Kind: KindBakeInProgress}
	ErrOutOfBounds     = &Error{Kind: KindOutOfBounds}
	ErrBorrowed        = &Error{Kind: KindBorrowed}
)

// Errorf builds an *Error with a formatted detail message.
func Errorf(kind ErrorKind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Detail: fmt.Sprintf(format, args...)}
}

// MapStatus converts a native status. It returns false for success.
// A code outside the four the runtime defines panics: it can only come from
// a library built against a different header.
func MapStatus(s native.Status) (ErrorKind, bool) {
	switch s {
	case native.StatusSuccess:
		return 0, false
	case native.StatusFailure:
		return KindUnspecified, true
	case native.StatusOutOfMemory:
		return KindOutOfMemory, true
	case native.StatusInitialization:
		return KindInitialization, true
	default:
		panic(fmt.Sprintf("spatial: unknown native status %d", int32(s)))
	}
}

// StatusOf is the inverse of MapStatus for the kinds that have a native code.
func StatusOf(k ErrorKind) native.Status {
	switch k {
	case KindUnspecified:
		return native.StatusFailure
	case KindOutOfMemory:
		return native.StatusOutOfMemory
	case KindInitialization:
		return native.StatusInitialization
	default:
		panic(fmt.Sprintf("spatial: %v has no native status", k))
	}
}

// Check returns nil for success and an *Error for op otherwise.
func Check(op string, s native.Status) error {
	kind, failed := MapStatus(s)
	if !failed {
		return nil
	}
	return &Error{Kind: kind, Op: op}
}
