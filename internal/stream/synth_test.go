package stream

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sms-engine/internal/format"
)

func testFormat() format.Format {
	return format.Format{SampleRate: 48000, Layout: format.Mono, Sample: format.F32}
}

func TestTone_EndsAtDeclaredLength(t *testing.T) {
	s := NewTone(440, testFormat(), 10)
	buf := make([]float32, 20)
	n, err := s.Read(buf)
	assert.ErrorIs(t, err, io.EOF)
	assert.Equal(t, 10, n)
}

func TestTone_UnboundedNeverEOFs(t *testing.T) {
	s := NewTone(440, testFormat(), 0)
	buf := make([]float32, 100)
	n, err := s.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
}

func TestSilence_IsAllZero(t *testing.T) {
	s := NewSilence(testFormat(), 16)
	buf := make([]float32, 16)
	n, err := s.Read(buf)
	require.NoError(t, err)
	require.Equal(t, 16, n)
	for _, v := range buf {
		assert.Equal(t, float32(0), v)
	}
}

func TestTone_SeekRepositions(t *testing.T) {
	s := NewTone(440, testFormat(), 1000)
	got, err := s.Seek(500)
	require.NoError(t, err)
	assert.Equal(t, int64(500), got)

	est, ok := s.EstimateLen()
	require.True(t, ok)
	assert.Equal(t, int64(1000), est)
}

func TestTone_CloneIsIndependent(t *testing.T) {
	s := NewTone(440, testFormat(), 1000)
	_, _ = s.Seek(900)

	clone, ok := s.Clone()
	require.True(t, ok)

	buf := make([]float32, 200)
	_, err := clone.Read(buf)
	assert.ErrorIs(t, err, io.EOF, "clone should keep the original's seeked position (900), so only 100 of the 200 requested frames remain")
}
