package domain

import (
	"errors"
	"fmt"
)

// ErrorKind classifies the expected failure modes of a fit.
type ErrorKind string

const (
	KindNotFound       ErrorKind = "not_found"
	KindNoOverlap      ErrorKind = "no_overlap"
	KindSingularDesign ErrorKind = "singular_design"
	KindInvalidWindow  ErrorKind = "invalid_window"
	KindInvalidInput   ErrorKind = "invalid_input"
	// KindInternal marks anything that is not one of the expected outcomes above.
	KindInternal ErrorKind = "internal"
)

// Error is the typed outcome returned by the store and the estimators.
type Error struct {
	Kind       ErrorKind
	Instrument string
	Msg        string
	Err        error
}

func (e *Error) Error() string {
	msg := string(e.Kind)
	if e.Msg != "" {
		msg = e.Msg
	}
	if e.Instrument != "" {
		msg = fmt.Sprintf("%s: %s", e.Instrument, msg)
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrNotFound) works
// regardless of instrument or message.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Kind == e.Kind
}

// Sentinels for errors.Is matching.
var (
	ErrNotFound       = &Error{Kind: KindNotFound}
	ErrNoOverlap      = &Error{Kind: KindNoOverlap}
	ErrSingularDesign = &Error{Kind: KindSingularDesign}
	ErrInvalidWindow  = &Error{Kind: KindInvalidWindow}
	ErrInvalidInput   = &Error{Kind: KindInvalidInput}
)

// NewError builds a typed error.
func NewError(kind ErrorKind, instrument, format string, args ...interface{}) *Error {
	return &Error{
		Kind:       kind,
		Instrument: instrument,
		Msg:        fmt.Sprintf(format, args...),
	}
}

// KindOf returns the kind of a typed error, KindInternal for any other non-nil error,
// and the empty kind for nil.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsExpected reports whether err is one of the "no result" outcomes a caller
// should render as missing data rather than treat as a failure.
func IsExpected(err error) bool {
	switch KindOf(err) {
	case KindNotFound, KindNoOverlap, KindSingularDesign, KindInvalidWindow, KindInvalidInput:
		return true
	}
	return false
}
