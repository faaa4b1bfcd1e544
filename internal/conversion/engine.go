package conversion

import (
	"context"
	"errors"
	"fmt"
	"image"
	"io"
	"time"

	"github.com/dustin/go-humanize"

	"image-converter/internal/logging"
	"image-converter/internal/model"
)

// DefaultChunkSize is the number of bytes read between progress reports.
const DefaultChunkSize = 1000

// maxPrealloc caps the buffer reserved up front from the declared length.
const maxPrealloc = 64 << 20

// Codec turns the complete input bytes into an image and the image into PNG.
type Codec interface {
	Decode(data []byte) (image.Image, error)
	Encode(img image.Image) ([]byte, error)
}

// Verifier is implemented by codecs that can check an encoded result
// against its source image.
type Verifier interface {
	Verify(src image.Image, encoded []byte) error
}

// ProgressFunc receives the read percentage after every chunk.
type ProgressFunc func(percent int)

// Options configures an Engine.
type Options struct {
	ChunkSize  int
	ChunkDelay time.Duration
	Codec      Codec
	Verify     bool
	Logger     *logging.Logger
}

// Engine runs the read, decode, encode and write pipeline for one session
// at a time per call. An Engine holds no per-session state and may be shared.
type Engine struct {
	chunkSize int
	delay     time.Duration
	codec     Codec
	verify    bool
	logger    *logging.Logger
}

// New creates an Engine.
func New(opts Options) *Engine {
	chunkSize := opts.ChunkSize
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	delay := opts.ChunkDelay
	if delay < 0 {
		delay = 0
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Engine{
		chunkSize: chunkSize,
		delay:     delay,
		codec:     opts.Codec,
		verify:    opts.Verify,
		logger:    logger,
	}
}

// Launch opens the resources and converts them on a background goroutine.
// See Run for the event contract.
func (e *Engine) Launch(ctx context.Context, p Provider, input, output model.Handle) <-chan Event {
	return e.stream(ctx, func() (*Session, error) {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindCancelled, "open", err)
		}
		return Open(p, input, output)
	})
}

// Run converts an opened session on a background goroutine. The returned
// channel yields Progress events followed by exactly one Success or Failure
// and is then closed. The caller must drain it. Cancelling ctx stops the
// pipeline at the next chunk boundary with a Cancelled failure.
func (e *Engine) Run(ctx context.Context, s *Session) <-chan Event {
	return e.stream(ctx, func() (*Session, error) { return s, nil })
}

func (e *Engine) stream(ctx context.Context, open func() (*Session, error)) <-chan Event {
	events := make(chan Event)
	go func() {
		defer close(events)

		s, err := open()
		if err != nil {
			e.logFailure(e.logger, err)
			events <- Failure(err)
			return
		}

		err = e.Convert(ctx, s, func(percent int) {
			events <- Progress(percent)
		})
		if err != nil {
			events <- Failure(err)
			return
		}
		events <- Success()
	}()
	return events
}

// Convert runs the pipeline synchronously, calling progress after every
// chunk. The session is released exactly once before Convert returns,
// whatever the outcome; on failure the output is aborted.
func (e *Engine) Convert(ctx context.Context, s *Session, progress ProgressFunc) (err error) {
	logger := e.logger.With("session", s.ID)
	started := time.Now()
	committed := false
	defer func() {
		if !committed {
			if aerr := s.Abort(); aerr != nil {
				logger.Errorf("release streams after failure: %v", aerr)
			}
		}
		if err != nil {
			e.logFailure(logger, err)
		}
	}()

	if s.length <= 0 {
		return newError(KindResourceUnavailable, "validate input", ErrUnknownLength)
	}
	if e.codec == nil {
		return newError(KindCodec, "decode", errors.New("no codec configured"))
	}

	logger.Debugf("Converting %s of declared input in %d-byte chunks", humanize.Bytes(uint64(s.length)), e.chunkSize)

	data, err := e.readAll(ctx, s, progress)
	if err != nil {
		return err
	}

	img, err := e.codec.Decode(data)
	if err != nil {
		return newError(KindCodec, "decode", err)
	}
	if img == nil {
		return newError(KindCodec, "decode", errors.New("no image produced"))
	}

	encoded, err := e.codec.Encode(img)
	if err != nil {
		return newError(KindCodec, "encode", err)
	}

	if e.verify {
		v, ok := e.codec.(Verifier)
		if !ok {
			return newError(KindCodec, "verify", errors.New("codec cannot verify output"))
		}
		if err := v.Verify(img, encoded); err != nil {
			return newError(KindCodec, "verify", err)
		}
	}

	if err := writeAll(s.output, encoded); err != nil {
		return newError(KindCodec, "write output", err)
	}

	committed = true
	if err := s.Close(); err != nil {
		return newError(KindTransfer, "close", err)
	}

	elapsed := time.Since(started)
	logger.Infof(
		"Converted %s into %s of PNG in %s (%s)",
		humanize.Bytes(uint64(s.Transferred())),
		humanize.Bytes(uint64(len(encoded))),
		elapsed.Round(time.Millisecond),
		formatRate(s.Transferred(), elapsed),
	)
	return nil
}

// readAll pulls the input one chunk at a time into memory. A read that
// returns no bytes and no error is taken as the end of the data.
func (e *Engine) readAll(ctx context.Context, s *Session, progress ProgressFunc) ([]byte, error) {
	chunk := make([]byte, e.chunkSize)
	data := make([]byte, 0, min(s.length, maxPrealloc))

	for {
		if err := ctx.Err(); err != nil {
			return nil, newError(KindCancelled, "read input", err)
		}

		n, readErr := s.input.Read(chunk)
		if n > 0 {
			data = append(data, chunk[:n]...)
			total := s.transferred.Add(int64(n))
			if progress != nil {
				progress(percentOf(total, s.length))
			}
			if err := e.pause(ctx); err != nil {
				return nil, err
			}
		}

		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				break
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, newError(KindCancelled, "read input", ctxErr)
			}
			return nil, newError(KindTransfer, "read input", readErr)
		}
		if n == 0 {
			break
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, newError(KindCancelled, "read input", err)
	}
	return data, nil
}

func (e *Engine) pause(ctx context.Context) error {
	if e.delay <= 0 {
		return nil
	}
	timer := time.NewTimer(e.delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return newError(KindCancelled, "read input", ctx.Err())
	case <-timer.C:
		return nil
	}
}

func (e *Engine) logFailure(logger *logging.Logger, err error) {
	if IsCancelled(err) {
		logger.Infof("Conversion cancelled")
		return
	}
	logger.Warnf("Conversion failed (%s): %v", KindOf(err), err)
}

func percentOf(done, total int64) int {
	return int(done * 100 / total)
}

func writeAll(dst io.Writer, data []byte) error {
	for len(data) > 0 {
		n, err := dst.Write(data)
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
		data = data[n:]
	}
	return nil
}

func formatRate(bytes int64, duration time.Duration) string {
	if duration <= 0 {
		return "n/a"
	}
	bytesPerSecond := uint64(float64(bytes) / duration.Seconds())
	return fmt.Sprintf("%s/s", humanize.Bytes(bytesPerSecond))
}
