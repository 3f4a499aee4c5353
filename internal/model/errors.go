// SPDX-License-Identifier: MIT

package model

import (
	"errors"
	"fmt"
)

// Kind is a compact, typed error classification.
// Keep these stable: metrics and retry policy depend on them.
type Kind string

const (
	KindUnknown       Kind = ""
	KindValidation    Kind = "validation"
	KindNotFound      Kind = "not_found"
	KindConflict      Kind = "conflict"
	KindQuotaDenied   Kind = "quota_denied"
	KindRetryableIO   Kind = "retryable_io"
	KindFatalExternal Kind = "fatal_external"
	KindInvariant     Kind = "invariant_violation"
)

// Error is the tagged error type crossing component boundaries.
type Error struct {
	Kind   Kind
	Reason string
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// E constructs a tagged error.
func E(kind Kind, reason string, err error) *Error {
	return &Error{Kind: kind, Reason: reason, Err: err}
}

func Validation(reason string) *Error            { return E(KindValidation, reason, nil) }
func NotFound(reason string) *Error              { return E(KindNotFound, reason, nil) }
func Conflict(reason string) *Error              { return E(KindConflict, reason, nil) }
func QuotaDenied(reason string) *Error           { return E(KindQuotaDenied, reason, nil) }
func RetryableIO(reason string, err error) *Error { return E(KindRetryableIO, reason, err) }
func FatalExternal(reason string, err error) *Error {
	return E(KindFatalExternal, reason, err)
}
func Invariant(reason string) *Error { return E(KindInvariant, reason, nil) }

// KindOf classifies an arbitrary error. Untagged errors report KindUnknown so
// callers must decide their own default.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// IsKind reports whether err carries the given classification.
func IsKind(err error, kind Kind) bool {
	return KindOf(err) == kind
}
