// Package errs classifies engine errors into a closed set of kinds.
// Transport layers assign the kind at the point where the underlying
// cause is still visible; callers branch on KindOf instead of matching
// message text.
package errs

import (
	"errors"
	"fmt"
)

// Kind is the category of a classified error.
type Kind int

const (
	Unknown    Kind = iota
	Auth            // credentials rejected (login, client certificate)
	Connection      // dial failure, timeout, or mid-operation loss
	NotFound        // remote path or document does not exist
	Permission      // remote side refused access
	Decode          // response payload could not be decoded
	Config          // missing or invalid local configuration
	Partial         // finished, but some items failed
)

func (k Kind) String() string {
	switch k {
	case Auth:
		return "auth"
	case Connection:
		return "connection"
	case NotFound:
		return "not_found"
	case Permission:
		return "permission"
	case Decode:
		return "decode"
	case Config:
		return "config"
	case Partial:
		return "partial"
	default:
		return "unknown"
	}
}

// Error carries a kind, a message, and an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

func (e *Error) Unwrap() error { return e.Err }

// New returns a classified error with the given message.
func New(kind Kind, msg string) error {
	return &Error{Kind: kind, Msg: msg}
}

// Newf returns a classified error with a formatted message.
func Newf(kind Kind, format string, args ...any) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under the given kind and message.
// Returns nil when err is nil.
func Wrap(kind Kind, msg string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// KindOf returns the kind of the outermost classified error in err's
// chain, or Unknown when none is present.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return Unknown
}

// Is reports whether err carries the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return kind == Unknown && err != nil
}
