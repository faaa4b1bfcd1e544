package conversion

import (
	"errors"
	"fmt"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type plainWriter struct {
	closes int
}

func (p *plainWriter) Write(b []byte) (int, error) { return len(b), nil }
func (p *plainWriter) Close() error {
	p.closes++
	return nil
}

func TestSessionReleasesStreamsOnce(t *testing.T) {
	in := newTrackingReader([]byte("abc"))
	out := &trackingWriter{}
	s := NewSession(in, 3, out)

	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
	require.NoError(t, s.Abort())

	assert.True(t, s.closed.Load())
	assert.EqualValues(t, 1, in.closes.Load())
	assert.EqualValues(t, 1, out.closes.Load())
	assert.EqualValues(t, 0, out.aborts.Load())
}

func TestSessionAbortPrefersAborter(t *testing.T) {
	out := &trackingWriter{}
	s := NewSession(newTrackingReader(nil), 1, out)

	require.NoError(t, s.Abort())
	require.NoError(t, s.Close())

	assert.EqualValues(t, 1, out.aborts.Load())
	assert.EqualValues(t, 0, out.closes.Load())
}

func TestSessionAbortFallsBackToClose(t *testing.T) {
	out := &plainWriter{}
	s := NewSession(io.NopCloser(nil), 1, out)

	require.NoError(t, s.Abort())
	assert.Equal(t, 1, out.closes)
}

func TestSessionJoinsCloseErrors(t *testing.T) {
	closeErr := errors.New("flush failed")
	s := NewSession(newTrackingReader(nil), 1, &trackingWriter{closeErr: closeErr})

	err := s.Close()
	require.Error(t, err)
	assert.ErrorIs(t, err, closeErr)
	assert.NoError(t, s.Close())
}

func TestSessionIDsAreUnique(t *testing.T) {
	a := NewSession(nil, 1, nil)
	b := NewSession(nil, 1, nil)
	assert.NotEmpty(t, a.ID)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestErrorFormattingAndKinds(t *testing.T) {
	inner := errors.New("boom")
	err := fmt.Errorf("wrapped: %w", newError(KindTransfer, "read input", inner))

	assert.Equal(t, KindTransfer, KindOf(err))
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "read input: transfer error: boom")
	assert.False(t, IsCancelled(err))
	assert.Equal(t, Kind(0), KindOf(inner))
	assert.Equal(t, "op: cancelled", (&Error{Kind: KindCancelled, Op: "op"}).Error())
}
