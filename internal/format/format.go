// Package format declares the speaker layouts and sample formats from
// spec.md §6, shared by every package that needs to talk about audio
// shape without depending on the decode/mix machinery itself.
package format

// SpeakerLayout enumerates the channel orders spec.md §6 defines.
type SpeakerLayout int

const (
	Mono SpeakerLayout = iota
	Stereo
	Headphones
	Quadraphonic
	Surround51
	Surround71
)

// Channels returns the channel count for a layout.
func (l SpeakerLayout) Channels() int {
	switch l {
	case Mono:
		return 1
	case Stereo, Headphones:
		return 2
	case Quadraphonic:
		return 4
	case Surround51:
		return 6
	case Surround71:
		return 8
	default:
		return 2
	}
}

// String names the layout for logging.
func (l SpeakerLayout) String() string {
	switch l {
	case Mono:
		return "mono"
	case Stereo:
		return "stereo"
	case Headphones:
		return "headphones"
	case Quadraphonic:
		return "quad"
	case Surround51:
		return "5.1"
	case Surround71:
		return "7.1"
	default:
		return "unknown"
	}
}

// SampleFormat enumerates the on-disk/decoder sample encodings spec.md §6
// lists for stream output. The engine's own output is always f32
// interleaved, regardless of what a given Stream decodes from.
type SampleFormat int

const (
	U8 SampleFormat = iota // zero = 128
	U16                    // zero = 32768
	S8
	S16
	F32 // already in [-1, +1]
)

// Format is the declared shape of a decoded stream: rate, layout, and the
// sample format it was opened as (only meaningful to the decoder backend;
// by the time samples reach the mixer they have been converted to f32).
type Format struct {
	SampleRate int
	Layout     SpeakerLayout
	Sample     SampleFormat
}

// Channels is a convenience accessor.
func (f Format) Channels() int { return f.Layout.Channels() }
