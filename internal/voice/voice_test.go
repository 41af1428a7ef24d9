package voice

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sms-engine/internal/format"
	"sms-engine/internal/mixbus"
	"sms-engine/internal/stream"
)

func testFormat() format.Format {
	return format.Format{SampleRate: 48000, Layout: format.Stereo, Sample: format.F32}
}

func TestPool_RenderBlockMixesActiveVoice(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	v := &Voice{BusName: mixbus.MainBusName, Stream: stream.NewTone(440, testFormat(), 0), Gain: 1}
	pool.Activate(v)

	out := make([]float32, 64*2)
	pool.RenderBlock(0, 64, out)

	nonZero := false
	for _, s := range out {
		if s != 0 {
			nonZero = true
			break
		}
	}
	assert.True(t, nonZero)
	assert.Equal(t, 1, pool.Live())
}

func TestPool_RenderBlockReapsFinishedVoiceAndCallsOnDone(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	var doneVoice *Voice
	var doneFrame int64
	pool.OnDone = func(v *Voice, atFrame int64) {
		doneVoice = v
		doneFrame = atFrame
	}

	v := &Voice{
		BusName: mixbus.MainBusName, Stream: stream.NewSilence(testFormat(), 32),
		FlowName: "intro", Token: 7,
	}
	pool.Activate(v)

	out := make([]float32, 64*2)
	pool.RenderBlock(0, 64, out)

	require.NotNil(t, doneVoice)
	assert.Equal(t, int64(7), doneVoice.Token)
	assert.Equal(t, int64(64), doneFrame)
	assert.Equal(t, 0, pool.Live())
}

func TestPool_KillFlowReapsOnNextBlockWithoutOnDone(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	called := false
	pool.OnDone = func(v *Voice, atFrame int64) { called = true }

	v := &Voice{BusName: mixbus.MainBusName, Stream: stream.NewTone(220, testFormat(), 0), FlowName: "loop", Gain: 1}
	pool.Activate(v)

	pool.KillFlow("loop")
	assert.True(t, v.Done())

	out := make([]float32, 64*2)
	pool.RenderBlock(0, 64, out)

	assert.Equal(t, 0, pool.Live())
	assert.False(t, called, "a killed voice must not trigger OnDone")
}

func TestPool_RenderBlockAddsToExistingBufferContentsInsteadOfOverwriting(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	v := &Voice{BusName: mixbus.MainBusName, Stream: stream.NewSilence(testFormat(), 0), Gain: 1}
	pool.Activate(v)

	const sentinel = float32(0.25)
	out := make([]float32, 64*2)
	for i := range out {
		out[i] = sentinel
	}

	pool.RenderBlock(0, 64, out)

	for _, s := range out {
		assert.Equal(t, sentinel, s, "RenderBlock must add to out, not overwrite a caller-supplied buffer")
	}
}

func TestVoice_EffectiveGainRampsUpOverFadeIn(t *testing.T) {
	v := &Voice{Gain: 1, StartDeadline: 100, FadeInFrames: 50}

	assert.Equal(t, 0.0, v.effectiveGain(0))
	assert.Equal(t, 0.0, v.effectiveGain(100))
	assert.InDelta(t, 0.5, v.effectiveGain(125), 1e-9)
	assert.Equal(t, 1.0, v.effectiveGain(150))
	assert.Equal(t, 1.0, v.effectiveGain(500))
}

func TestVoice_EffectiveGainRampsDownOverFadeOutWindow(t *testing.T) {
	v := &Voice{Gain: 1, FadeOutFrames: 100, FadeOutAtFrame: 1000}

	assert.Equal(t, 1.0, v.effectiveGain(999))
	assert.Equal(t, 1.0, v.effectiveGain(1000))
	assert.InDelta(t, 0.5, v.effectiveGain(1050), 1e-9)
	assert.Equal(t, 0.0, v.effectiveGain(1100))
	assert.Equal(t, 0.0, v.effectiveGain(2000))
}

// constStream emits a fixed value on every channel of every frame, so a
// fade envelope's effect on mixed output can be checked without a sine
// wave's own value changing from frame to frame confounding the math.
type constStream struct {
	fmt   format.Format
	value float32
}

func (s constStream) Format() format.Format        { return s.fmt }
func (s constStream) Seek(int64) (int64, error)    { return 0, stream.ErrSeekUnsupported }
func (s constStream) Clone() (stream.Stream, bool) { return s, true }
func (s constStream) EstimateLen() (int64, bool)   { return 0, false }
func (s constStream) Close() error                 { return nil }

func (s constStream) Read(buf []float32) (int, error) {
	for i := range buf {
		buf[i] = s.value
	}
	return len(buf), nil
}

func TestPool_RenderBlockAppliesFadeInEnvelopeToMixedSamples(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	v := &Voice{
		BusName: mixbus.MainBusName, Stream: constStream{fmt: testFormat(), value: 1},
		Gain: 1, FadeInFrames: 64,
	}
	pool.Activate(v)

	out := make([]float32, 8*2)
	pool.RenderBlock(0, 8, out)

	// Frame 0's gain is 0/64; frame 7's is 7/64 — the ramp must be visible
	// in the mixed output, not just in effectiveGain in isolation.
	assert.Equal(t, float32(0), out[0])
	assert.InDelta(t, float64(7)/64, out[14], 1e-6)
}

func TestPool_VoiceWaitsForStartDeadline(t *testing.T) {
	buses := mixbus.NewTree(48000)
	pool := New(buses, testFormat().Channels())

	v := &Voice{BusName: mixbus.MainBusName, Stream: stream.NewTone(440, testFormat(), 0), Gain: 1, StartDeadline: 1000}
	pool.Activate(v)

	out := make([]float32, 64*2)
	pool.RenderBlock(0, 64, out)

	for _, s := range out {
		assert.Equal(t, float32(0), s)
	}
	assert.Equal(t, 1, pool.Live())
}
