// Package errors provides the structured error system for tangofs with
// error kinds, operation context, and errno mapping for the FUSE boundary.
package errors

import (
	"errors"
	"fmt"
	"syscall"
)

// Kind classifies every failure the core can surface. The filesystem
// adapters translate kinds into errnos; nothing above them inspects
// error strings.
type Kind int

const (
	// KindNotFound means no case-insensitive match at some path segment,
	// or the coordinate has no remote counterpart.
	KindNotFound Kind = iota

	// KindUnsupported means the operation is not defined for the
	// coordinate kind (attribute write, command write, ...).
	KindUnsupported

	// KindRemoteUnavailable means the control-system database could not
	// be reached at the transport level.
	KindRemoteUnavailable

	// KindRemoteRejected means the remote side answered with a
	// well-formed error: device not exportable, property absent,
	// command execution threw.
	KindRemoteRejected

	// KindNameCollision means the remote side reported two sibling names
	// differing only in case, which it guarantees not to do.
	KindNameCollision

	// KindInvalid means the caller supplied a payload the remote type
	// cannot accept.
	KindInvalid

	// KindInternal is everything else.
	KindInternal
)

// String returns the kind's name for logs.
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindUnsupported:
		return "unsupported"
	case KindRemoteUnavailable:
		return "remote_unavailable"
	case KindRemoteRejected:
		return "remote_rejected"
	case KindNameCollision:
		return "name_collision"
	case KindInvalid:
		return "invalid"
	default:
		return "internal"
	}
}

// Error is the structured error carried between the core and the
// filesystem adapters.
type Error struct {
	Kind Kind
	// Op is the failing operation, e.g. "resolve", "readdir",
	// "property.set".
	Op string
	// Path is the coordinate or path the operation targeted.
	Path string
	// Cause is the wrapped lower-level error, if any.
	Cause error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Path != "" && e.Cause != nil:
		return fmt.Sprintf("%s %s: %s: %v", e.Op, e.Path, e.Kind, e.Cause)
	case e.Op != "" && e.Path != "":
		return fmt.Sprintf("%s %s: %s", e.Op, e.Path, e.Kind)
	case e.Cause != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	default:
		return e.Kind.String()
	}
}

// Unwrap returns the underlying cause for errors.Is/As chains.
func (e *Error) Unwrap() error { return e.Cause }

// Is matches two *Error values by kind so callers can write
// errors.Is(err, &Error{Kind: KindNotFound}).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// E builds an error. The variadic arguments are matched by type:
// Kind, string (first is Op, second is Path), and error (Cause).
func E(args ...interface{}) *Error {
	e := &Error{Kind: KindInternal}
	seen := 0
	for _, arg := range args {
		switch a := arg.(type) {
		case Kind:
			e.Kind = a
		case string:
			if seen == 0 {
				e.Op = a
			} else {
				e.Path = a
			}
			seen++
		case *Error:
			e.Cause = a
			if e.Kind == KindInternal {
				e.Kind = a.Kind
			}
		case error:
			e.Cause = a
		}
	}
	return e
}

// NotFound reports whether err is a KindNotFound error.
func NotFound(err error) bool { return KindOf(err) == KindNotFound }

// Unsupported reports whether err is a KindUnsupported error.
func Unsupported(err error) bool { return KindOf(err) == KindUnsupported }

// KindOf extracts the kind from an error chain, KindInternal when the
// chain carries no *Error.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Errno maps an error chain onto the errno the kernel boundary reports.
func Errno(err error) syscall.Errno {
	if err == nil {
		return 0
	}
	switch KindOf(err) {
	case KindNotFound:
		return syscall.ENOENT
	case KindUnsupported:
		return syscall.EPERM
	case KindInvalid:
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
