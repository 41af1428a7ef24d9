package delegate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sms-engine/internal/format"
)

func testFormat() format.Format {
	return format.Format{SampleRate: 48000, Layout: format.Stereo, Sample: format.F32}
}

func TestSynthFallback_OpenAlwaysSucceeds(t *testing.T) {
	d := NewSynthFallback(testFormat(), nil)
	s, err := d.Open("kick")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, testFormat(), s.Format())
}

func TestSynthFallback_NameContainingSilenceIsSilent(t *testing.T) {
	d := NewSynthFallback(testFormat(), nil)
	s, err := d.Open("room_silence")
	require.NoError(t, err)

	buf := make([]float32, 8)
	_, _ = s.Read(buf)
	for _, v := range buf {
		assert.Equal(t, float32(0), v)
	}
}

func TestSynthFallback_SameNameProducesSameFrequency(t *testing.T) {
	d := NewSynthFallback(testFormat(), nil)
	a, _ := d.Open("kick")
	b, _ := d.Open("kick")

	bufA := make([]float32, 16)
	bufB := make([]float32, 16)
	a.Read(bufA)
	b.Read(bufB)
	assert.Equal(t, bufA, bufB)
}

func TestRateLimited_DropsWarningsOverBurst(t *testing.T) {
	var received int
	inner := NewSynthFallback(testFormat(), func(string) { received++ })
	rl := NewRateLimited(inner, 0, 1)

	rl.Warning("first")
	rl.Warning("second")
	rl.Warning("third")

	assert.Equal(t, 1, received)
	assert.Equal(t, uint64(2), rl.DroppedCount())
}

func TestRateLimited_PassesOpenThrough(t *testing.T) {
	inner := NewSynthFallback(testFormat(), nil)
	rl := NewRateLimited(inner, 5, 5)

	s, err := rl.Open("kick")
	require.NoError(t, err)
	assert.NotNil(t, s)
}

func TestFileDelegate_OpenMissingFileReturnsError(t *testing.T) {
	d := NewFileDelegate(t.TempDir(), nil)
	_, err := d.Open("does-not-exist.ogg")
	assert.Error(t, err)
}
