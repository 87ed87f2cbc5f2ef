// Package vcserr defines the tagged-variant error kinds used throughout the
// engine (spec §7). Handlers classify by Kind, never by string matching.
package vcserr

import (
	"fmt"

	"github.com/pkg/errors"
)

type Kind int

const (
	NotFound Kind = iota
	Conflict
	InvalidInput
	InvalidState
	Storage
	Remote
	Integrity
)

func (k Kind) String() string {
	switch k {
	case NotFound:
		return "NotFound"
	case Conflict:
		return "Conflict"
	case InvalidInput:
		return "InvalidInput"
	case InvalidState:
		return "InvalidState"
	case Storage:
		return "Storage"
	case Remote:
		return "Remote"
	case Integrity:
		return "Integrity"
	default:
		return "Unknown"
	}
}

// Error is the engine's canonical error shape: a kind, the operation that
// raised it, and (optionally) a wrapped cause.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an *Error with no wrapped cause.
func New(op string, kind Kind, msg string) *Error {
	return &Error{Op: op, Kind: kind, Err: errors.New(msg)}
}

// Wrap classifies an underlying error (typically from the KV backend) under
// kind, attaching a stack trace via pkg/errors at the storage boundary.
func Wrap(op string, kind Kind, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Kind: kind, Err: errors.WithStack(err)}
}

// KindOf extracts the Kind from err if it is (or wraps) an *Error, defaulting
// to Storage for unclassified errors — the conservative choice, since an
// unclassified error usually means something below the engine misbehaved.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Storage
}

func Is(err error, kind Kind) bool {
	return KindOf(err) == kind
}
