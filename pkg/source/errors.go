package source

import (
	"errors"
	"fmt"
)

// Sentinel errors for addressing failures.
var (
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidRange    = errors.New("invalid range")
	ErrNoColumns       = errors.New("no columns selected")
)

// Kind classifies structural source failures.
type Kind int

// Failure kinds.
const (
	KindIO Kind = iota + 1
	KindSchemaDetection
	KindBatch
	KindSource
)

func (k Kind) String() string {
	switch k {
	case KindIO:
		return "io"
	case KindSchemaDetection:
		return "schema detection"
	case KindBatch:
		return "batch"
	case KindSource:
		return "source"
	default:
		return "unknown"
	}
}

// Error is a structural failure of a source: a missing file, an unreadable
// header, a backend error. Per-cell problems never produce an Error.
type Error struct {
	Kind   Kind
	Source string
	Msg    string
	Err    error
}

func (e *Error) Error() string {
	s := fmt.Sprintf("%s error", e.Kind)
	if e.Source != "" {
		s += " in " + e.Source
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// NewError builds an Error of the given kind.
func NewError(kind Kind, source, msg string, err error) *Error {
	return &Error{Kind: kind, Source: source, Msg: msg, Err: err}
}

// IsKind reports whether err is, or wraps, an Error of kind k.
func IsKind(err error, k Kind) bool {
	var se *Error
	return errors.As(err, &se) && se.Kind == k
}
