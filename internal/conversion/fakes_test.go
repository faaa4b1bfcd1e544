package conversion

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"io"
	"sync"
	"sync/atomic"

	"image-converter/internal/model"
)

// trackingReader counts reads and closes of an in-memory input.
type trackingReader struct {
	r      io.Reader
	reads  atomic.Int32
	closes atomic.Int32
}

func newTrackingReader(data []byte) *trackingReader {
	return &trackingReader{r: bytes.NewReader(data)}
}

func (t *trackingReader) Read(p []byte) (int, error) {
	t.reads.Add(1)
	return t.r.Read(p)
}

func (t *trackingReader) Close() error {
	t.closes.Add(1)
	return nil
}

// trackingWriter records what was written and how the stream was released.
type trackingWriter struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	writeErr error
	closeErr error
	closes   atomic.Int32
	aborts   atomic.Int32
}

func (t *trackingWriter) Write(p []byte) (int, error) {
	if t.writeErr != nil {
		return 0, t.writeErr
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.buf.Write(p)
}

func (t *trackingWriter) Close() error {
	t.closes.Add(1)
	return t.closeErr
}

func (t *trackingWriter) Abort() error {
	t.aborts.Add(1)
	return nil
}

func (t *trackingWriter) released() int32 {
	return t.closes.Load() + t.aborts.Load()
}

func (t *trackingWriter) bytes() []byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]byte(nil), t.buf.Bytes()...)
}

// gatedReader serves one chunk per read and blocks the read after the
// allowed number of chunks until ctx is done.
type gatedReader struct {
	ctx     context.Context
	chunk   int
	allowed int
	served  int
	closes  atomic.Int32
}

func (g *gatedReader) Read(p []byte) (int, error) {
	if g.served >= g.allowed {
		<-g.ctx.Done()
		return 0, g.ctx.Err()
	}
	g.served++
	n := min(len(p), g.chunk)
	for i := 0; i < n; i++ {
		p[i] = 'x'
	}
	return n, nil
}

func (g *gatedReader) Close() error {
	g.closes.Add(1)
	return nil
}

// zeroReadReader returns data once and then reports zero bytes without an
// error, forever.
type zeroReadReader struct {
	data  []byte
	done  bool
	reads int
}

func (z *zeroReadReader) Read(p []byte) (int, error) {
	z.reads++
	if z.done {
		return 0, nil
	}
	z.done = true
	return copy(p, z.data), nil
}

func (z *zeroReadReader) Close() error { return nil }

// failingReader returns an error after the first chunk.
type failingReader struct {
	calls int
	err   error
}

func (f *failingReader) Read(p []byte) (int, error) {
	f.calls++
	if f.calls == 1 {
		return len(p), nil
	}
	return 0, f.err
}

func (f *failingReader) Close() error { return nil }

// fakeCodec records the buffer it decoded and returns a fixed encoding.
type fakeCodec struct {
	mu        sync.Mutex
	decoded   []byte
	decodeErr error
	encodeErr error
	nilImage  bool
	output    []byte
}

func (f *fakeCodec) Decode(data []byte) (image.Image, error) {
	f.mu.Lock()
	f.decoded = append([]byte(nil), data...)
	f.mu.Unlock()
	if f.decodeErr != nil {
		return nil, f.decodeErr
	}
	if len(data) == 0 {
		return nil, errors.New("empty buffer")
	}
	if f.nilImage {
		return nil, nil
	}
	img := image.NewRGBA(image.Rect(0, 0, 1, 1))
	img.Set(0, 0, color.White)
	return img, nil
}

func (f *fakeCodec) Encode(image.Image) ([]byte, error) {
	if f.encodeErr != nil {
		return nil, f.encodeErr
	}
	if f.output != nil {
		return f.output, nil
	}
	return []byte("png-bytes"), nil
}

func (f *fakeCodec) decodedLen() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.decoded)
}

// verifyingCodec adds a Verify result to fakeCodec.
type verifyingCodec struct {
	fakeCodec
	verifyErr error
	verified  atomic.Int32
}

func (v *verifyingCodec) Verify(image.Image, []byte) error {
	v.verified.Add(1)
	return v.verifyErr
}

// fakeProvider serves prepared streams and counts open calls.
type fakeProvider struct {
	input     io.ReadCloser
	length    int64
	inputErr  error
	output    io.WriteCloser
	outputErr error

	inputOpens  atomic.Int32
	outputOpens atomic.Int32
}

func (f *fakeProvider) OpenInput(model.Handle) (io.ReadCloser, int64, error) {
	f.inputOpens.Add(1)
	if f.inputErr != nil {
		return nil, 0, f.inputErr
	}
	return f.input, f.length, nil
}

func (f *fakeProvider) OpenOutput(model.Handle) (io.WriteCloser, error) {
	f.outputOpens.Add(1)
	if f.outputErr != nil {
		return nil, f.outputErr
	}
	return f.output, nil
}

func collect(events <-chan Event) []Event {
	var out []Event
	for ev := range events {
		out = append(out, ev)
	}
	return out
}

func progressValues(events []Event) []int {
	var out []int
	for _, ev := range events {
		if ev.Type == EventProgress {
			out = append(out, ev.Percent)
		}
	}
	return out
}
