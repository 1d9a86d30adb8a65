// Package errs defines the error taxonomy shared across the runtime's
// subsystems. Every error a consumer can observe from the public surface
// carries a Kind so callers can branch on retryability without parsing
// strings, the same spirit as the teacher's ErrInvalidToken and
// ErrTransportClosed sentinels, generalized to carry retryability.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure the way spec section 7 tabulates them.
type Kind int

const (
	KindUnknown Kind = iota
	KindConnection
	KindTimeout
	KindProtocol
	KindQueueFull
	KindEncryption
	KindCompression
	KindState
	KindAuthentication
	KindMessageSize
)

func (k Kind) String() string {
	switch k {
	case KindConnection:
		return "Connection"
	case KindTimeout:
		return "Timeout"
	case KindProtocol:
		return "Protocol"
	case KindQueueFull:
		return "QueueFull"
	case KindEncryption:
		return "Encryption"
	case KindCompression:
		return "Compression"
	case KindState:
		return "State"
	case KindAuthentication:
		return "Authentication"
	case KindMessageSize:
		return "MessageSize"
	default:
		return "Unknown"
	}
}

// retryable holds the default retryability per kind from spec section 7.
var retryable = map[Kind]bool{
	KindConnection:     true,
	KindTimeout:        true,
	KindProtocol:       false,
	KindQueueFull:      false,
	KindEncryption:     false,
	KindCompression:    false,
	KindState:          false,
	KindAuthentication: false,
	KindMessageSize:    false,
}

// Error is the concrete error type returned across the public surface.
// It wraps an optional underlying cause so errors.Is/errors.As keep working.
type Error struct {
	Kind      Kind
	Op        string // operation that failed, e.g. "connect", "send"
	Retryable bool
	Err       error // underlying cause, may be nil
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Kind)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds an Error with the default retryability for kind.
func New(kind Kind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Retryable: retryable[kind], Err: cause}
}

// Is lets errors.Is(err, errs.KindTimeout) work by matching on Kind via a
// sentinel wrapper — callers compare with errs.Of(kind) instead, since Kind
// is not itself an error. Of returns a comparable marker error for that.
type kindMarker Kind

func (k kindMarker) Error() string { return Kind(k).String() }

// Of returns a sentinel value usable with errors.Is to test an Error's Kind:
//
//	if errors.Is(err, errs.Of(errs.KindTimeout)) { ... }
func Of(kind Kind) error { return kindMarker(kind) }

// Is implements the errors.Is contract: an *Error matches errs.Of(k) when
// its Kind equals k.
func (e *Error) Is(target error) bool {
	m, ok := target.(kindMarker)
	if !ok {
		return false
	}
	return Kind(m) == e.Kind
}

// IsRetryable reports whether err (or a wrapped *Error within it) is
// retryable. Non-*Error errors are treated as not retryable.
func IsRetryable(err error) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Retryable
	}
	return false
}
