package resample

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sms-engine/internal/format"
	"sms-engine/internal/stream"
)

// constStream emits a fixed value on every channel of every frame, for a
// fixed number of frames, then signals EOF — enough to exercise rate and
// channel conversion without decoding anything real.
type constStream struct {
	fmt    format.Format
	value  float32
	frames int64
	pos    int64
}

func (s *constStream) Format() format.Format { return s.fmt }

func (s *constStream) Read(buf []float32) (int, error) {
	ch := s.fmt.Channels()
	framesWanted := len(buf) / ch
	n := 0
	for ; n < framesWanted && s.pos < s.frames; n++ {
		for c := 0; c < ch; c++ {
			buf[n*ch+c] = s.value
		}
		s.pos++
	}
	if n < framesWanted {
		return n * ch, io.EOF
	}
	return n * ch, nil
}

func (s *constStream) Seek(frame int64) (int64, error) {
	s.pos = frame
	return frame, nil
}

func (s *constStream) Clone() (stream.Stream, bool) { return nil, false }

func (s *constStream) EstimateLen() (int64, bool) { return s.frames, true }

func (s *constStream) Close() error { return nil }

func TestConverter_PassthroughWhenFormatsMatch(t *testing.T) {
	fmtA := format.Format{SampleRate: 48000, Layout: format.Stereo}
	src := &constStream{fmt: fmtA, value: 0.5, frames: 10}
	got := NewConverter(src, fmtA)
	_, isConverter := got.(*Converter)
	assert.False(t, isConverter, "identical formats must not be wrapped")
}

func TestConverter_MonoToStereoDuplicates(t *testing.T) {
	src := &constStream{fmt: format.Format{SampleRate: 48000, Layout: format.Mono}, value: 0.25, frames: 100}
	dstFmt := format.Format{SampleRate: 48000, Layout: format.Stereo}
	c := NewConverter(src, dstFmt)

	buf := make([]float32, 4) // 2 frames x 2 channels
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	for _, v := range buf {
		assert.InDelta(t, 0.25, v, 1e-6)
	}
}

func TestConverter_StereoToMonoAverages(t *testing.T) {
	src := &constStream{fmt: format.Format{SampleRate: 48000, Layout: format.Stereo}, value: 1.0, frames: 100}
	dstFmt := format.Format{SampleRate: 48000, Layout: format.Mono}
	c := NewConverter(src, dstFmt)

	buf := make([]float32, 4)
	n, err := c.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 4, n)
	for _, v := range buf {
		assert.InDelta(t, 1.0, v, 1e-6)
	}
}

func TestConverter_DownsampleProducesFewerFrames(t *testing.T) {
	src := &constStream{fmt: format.Format{SampleRate: 48000, Layout: format.Mono}, value: 0.1, frames: 48000}
	dstFmt := format.Format{SampleRate: 24000, Layout: format.Mono}
	c := NewConverter(src, dstFmt)

	buf := make([]float32, 24000)
	n, err := c.Read(buf)
	require.NoError(t, err)
	assert.InDelta(t, 24000, n, 2)
}

func TestConverter_EOFPropagatesOnceSourceExhausted(t *testing.T) {
	src := &constStream{fmt: format.Format{SampleRate: 48000, Layout: format.Mono}, value: 1, frames: 4}
	c := NewConverter(src, format.Format{SampleRate: 48000, Layout: format.Mono})

	buf := make([]float32, 2)
	_, err := c.Read(buf)
	require.NoError(t, err)
	_, err = c.Read(buf)
	require.NoError(t, err)
	_, err = c.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
}
