// Package voice implements the voice pool and per-block mixer from
// spec.md §4.5/§4.6: each Voice is one scheduled playback of a decoded
// stream on a bus, and Pool.RenderBlock sums every live voice into its
// bus's accumulator, then propagates bus accumulators bottom-up through
// the mix-bus tree into the caller's output buffer.
//
// Grounded on streaming.AudioMixer.GenerateFrame: the accumulate-into-a-
// preallocated-buffer-then-reap-dead-entries-in-place shape is carried
// over directly, generalized from one flat buffer to per-bus buffers
// routed through mixbus.Tree.
package voice

import (
	"sms-engine/internal/mixbus"
	"sms-engine/internal/stream"
)

// Voice is one scheduled playback of soundName's decoded stream on a bus.
// Voices are owned by the scheduler until the mixer consumes them (spec.md
// §3 glossary); the mixer only ever reads Stream and reports when it's
// exhausted via Done.
type Voice struct {
	SoundName     string
	BusName       string
	Stream        stream.Stream
	Gain          float64
	StartDeadline int64 // absolute mix-cursor frame this voice may begin at

	// FlowName and Token identify which scheduler flow/pendingLeaf this
	// voice realizes, so Pool.OnDone can report completion back to
	// internal/scheduler without the voice package importing it.
	FlowName string
	Token    int64

	// FadeInFrames ramps Gain from 0 up to Gain over the voice's first
	// FadeInFrames frames starting at StartDeadline. FadeOutFrames, if
	// nonzero, ramps Gain down to 0 over FadeOutFrames frames ending at
	// FadeOutAtFrame+FadeOutFrames — set by internal/scheduler so a
	// Sequence item fades out while the next item (already playing at its
	// own StartDeadline) fades in, per spec.md §4.5.
	FadeInFrames   int64
	FadeOutFrames  int64
	FadeOutAtFrame int64

	position int64 // frames already consumed from Stream
	done     bool
}

// Done reports whether this voice has finished and can be dropped from the
// pool.
func (v *Voice) Done() bool { return v.done }

// effectiveGain returns Gain scaled by whatever fade-in/fade-out envelope
// applies at the given absolute mix-cursor frame.
func (v *Voice) effectiveGain(frame int64) float64 {
	g := v.Gain

	if v.FadeInFrames > 0 {
		since := frame - v.StartDeadline
		if since < v.FadeInFrames {
			if since < 0 {
				since = 0
			}
			g *= float64(since) / float64(v.FadeInFrames)
		}
	}

	if v.FadeOutFrames > 0 {
		since := frame - v.FadeOutAtFrame
		switch {
		case since >= v.FadeOutFrames:
			g = 0
		case since >= 0:
			g *= 1 - float64(since)/float64(v.FadeOutFrames)
		}
	}

	return g
}

// Pool holds every currently scheduled voice and the per-bus accumulator
// buffers used to render one block at a time. Accumulators are allocated
// on a bus's first use and reused across blocks, but RenderBlock is not
// allocation-free: its call to mixbus.Tree.PostOrder builds a new map and
// slice every block.
type Pool struct {
	buses    *mixbus.Tree
	channels int

	voices []*Voice
	accum  map[string][]float32
	scratch []float32 // reused per-voice read buffer, resized only when blockFrames changes

	// OnDone, if set, is called synchronously from RenderBlock the instant
	// a voice is reaped, with the absolute frame it finished at. Used by
	// internal/engine to advance the owning flow's scheduler continuation.
	OnDone func(v *Voice, atFrame int64)
}

// New creates a voice pool that renders through buses.
func New(buses *mixbus.Tree, channels int) *Pool {
	return &Pool{
		buses:    buses,
		channels: channels,
		accum:    make(map[string][]float32),
	}
}

// Activate adds v to the pool. v.StartDeadline may be in the future; it
// simply won't produce samples until the mix cursor reaches it.
func (p *Pool) Activate(v *Voice) {
	p.voices = append(p.voices, v)
}

// Live reports the number of voices still in the pool (finished voices are
// reaped during RenderBlock).
func (p *Pool) Live() int { return len(p.voices) }

// KillFlow marks every voice belonging to flowName as finished in-place;
// the next RenderBlock reaps them without reading another frame. Used when
// a flow is killed outright (spec.md's kill_flow family), as opposed to
// letting it finish naturally.
func (p *Pool) KillFlow(flowName string) {
	for _, v := range p.voices {
		if v.FlowName == flowName {
			v.done = true
		}
	}
}

func (p *Pool) accumulatorFor(busName string, blockFrames int) []float32 {
	buf, ok := p.accum[busName]
	want := blockFrames * p.channels
	if !ok || len(buf) != want {
		buf = make([]float32, want)
		p.accum[busName] = buf
	}
	return buf
}
