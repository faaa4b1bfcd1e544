package conversion

import (
	"errors"
	"fmt"
)

// Kind classifies why a conversion failed. The controller treats every kind
// the same way; the distinction is kept for logs and tests.
type Kind int

const (
	KindResourceUnavailable Kind = iota + 1
	KindTransfer
	KindCodec
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindResourceUnavailable:
		return "resource unavailable"
	case KindTransfer:
		return "transfer error"
	case KindCodec:
		return "codec error"
	case KindCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// Error is returned for every failed conversion.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

func newError(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of a conversion error, or 0 if err is not one.
func KindOf(err error) Kind {
	var convErr *Error
	if errors.As(err, &convErr) {
		return convErr.Kind
	}
	return 0
}

// IsCancelled reports whether err came from a user-requested cancellation.
func IsCancelled(err error) bool {
	return KindOf(err) == KindCancelled
}
