// Package errs defines the error taxonomy shared by every core package:
// Catalog, Blob Layer, Storage Engine, SigV4 Authenticator, and Dispatcher
// all return *Error instead of a bare error, so the HTTP front-end has one
// place to map a failure to a status code.
package errs

import "fmt"

// Kind is one of the error taxonomy entries from the error handling design.
type Kind int

const (
	// KindMalformedAuth: Authorization header absent or does not match the SigV4 grammar.
	KindMalformedAuth Kind = iota
	// KindAuthFailed: signature mismatch.
	KindAuthFailed
	// KindNotFound: bucket/object/file missing.
	KindNotFound
	// KindConflict: duplicate user id, duplicate bucket name.
	KindConflict
	// KindIO: filesystem failure.
	KindIO
	// KindBackend: KV store failure.
	KindBackend
)

func (k Kind) String() string {
	switch k {
	case KindMalformedAuth:
		return "MalformedAuth"
	case KindAuthFailed:
		return "AuthFailed"
	case KindNotFound:
		return "NotFound"
	case KindConflict:
		return "Conflict"
	case KindIO:
		return "IO"
	case KindBackend:
		return "Backend"
	default:
		return "Unknown"
	}
}

// Error is the structured error every core operation returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// New builds an *Error with no underlying cause.
func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

// Wrap builds an *Error carrying an underlying cause.
func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

// KindOf returns the Kind carried by err, or KindIO if err is not an *Error
// (an unexpected failure is treated as an IO-class failure rather than
// silently succeeding).
func KindOf(err error) Kind {
	var e *Error
	if ok := asError(err, &e); ok {
		return e.Kind
	}
	return KindIO
}

func asError(err error, target **Error) bool {
	for err != nil {
		if e, ok := err.(*Error); ok {
			*target = e
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}
