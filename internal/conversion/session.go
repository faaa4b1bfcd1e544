package conversion

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"image-converter/internal/model"
)

// ErrUnknownLength is reported when the input's byte length is zero or
// could not be determined.
var ErrUnknownLength = errors.New("input length is unknown or zero")

// Provider opens the resources behind handles.
type Provider interface {
	// OpenInput returns a readable stream and its exact total length.
	OpenInput(h model.Handle) (io.ReadCloser, int64, error)
	// OpenOutput returns a writable stream for the converted image.
	OpenOutput(h model.Handle) (io.WriteCloser, error)
}

// Aborter is implemented by outputs that can discard what was written
// instead of committing it.
type Aborter interface {
	Abort() error
}

// Session is one live conversion. It is owned by a single goroutine for its
// whole life; only Transferred and the close methods are safe to call from
// elsewhere.
type Session struct {
	ID string

	input  io.ReadCloser
	length int64
	output io.WriteCloser

	transferred atomic.Int64

	closeOnce sync.Once
	closed    atomic.Bool
}

// NewSession wraps already opened streams.
func NewSession(input io.ReadCloser, length int64, output io.WriteCloser) *Session {
	return &Session{
		ID:     uuid.NewString(),
		input:  input,
		length: length,
		output: output,
	}
}

// Open opens both resources through p. The input is opened first; a missing
// or zero length fails before any byte is read and before the output is
// touched. Whatever was opened is closed again on failure.
func Open(p Provider, input, output model.Handle) (*Session, error) {
	if input.IsZero() || output.IsZero() {
		return nil, newError(KindResourceUnavailable, "open", errors.New("resource handles are unset"))
	}

	in, length, err := p.OpenInput(input)
	if err != nil {
		return nil, newError(KindResourceUnavailable, "open input", fmt.Errorf("%s: %w", input, err))
	}
	if in == nil {
		return nil, newError(KindResourceUnavailable, "open input", fmt.Errorf("%s: provider returned no stream", input))
	}
	if length <= 0 {
		_ = in.Close()
		return nil, newError(KindResourceUnavailable, "open input", fmt.Errorf("%s: %w", input, ErrUnknownLength))
	}

	out, err := p.OpenOutput(output)
	if err == nil && out == nil {
		err = fmt.Errorf("provider returned no stream")
	}
	if err != nil {
		_ = in.Close()
		return nil, newError(KindResourceUnavailable, "open output", fmt.Errorf("%s: %w", output, err))
	}

	return NewSession(in, length, out), nil
}

// Transferred is the number of input bytes read so far.
func (s *Session) Transferred() int64 {
	return s.transferred.Load()
}

// Close releases both streams and commits the output. Only the first call
// of Close or Abort has any effect; later calls return nil.
func (s *Session) Close() error {
	return s.release(true)
}

// Abort releases both streams, discarding the output when it supports it.
func (s *Session) Abort() error {
	return s.release(false)
}

func (s *Session) release(commit bool) error {
	var err error
	s.closeOnce.Do(func() {
		var errs []error
		if s.input != nil {
			if cerr := s.input.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close input: %w", cerr))
			}
		}
		if s.output != nil {
			if a, ok := s.output.(Aborter); ok && !commit {
				if cerr := a.Abort(); cerr != nil {
					errs = append(errs, fmt.Errorf("abort output: %w", cerr))
				}
			} else if cerr := s.output.Close(); cerr != nil {
				errs = append(errs, fmt.Errorf("close output: %w", cerr))
			}
		}
		s.closed.Store(true)
		err = errors.Join(errs...)
	})
	return err
}
