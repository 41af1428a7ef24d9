// Package stream defines the FormattedSoundStream capability object from
// spec.md §4.8/§9: a pluggable decoder exposed as a Go interface (per the
// design note "in a native port, an interface/trait value") rather than a
// struct of function pointers.
package stream

import (
	"errors"

	"sms-engine/internal/format"
)

// ErrSeekUnsupported is the sentinel spec.md §4.8(b) calls for: seeking is
// not supported by this stream and the caller must reopen instead.
var ErrSeekUnsupported = errors.New("stream: seek unsupported, reopen instead")

// ErrLateSeek names the late-seek protocol violation (spec.md §7(c)): a
// loop seeking backward past a point the stream has already committed to
// emitting. No Stream in this package returns it, and the engine never
// seeks a stream to loop it (a Loop node opens a new voice instead).
var ErrLateSeek = errors.New("stream: late seek during loop is a protocol violation")

// Stream is one opened, decoding sound source in the sample rate, channel
// layout, and sample format its Format reports. A decoder's Stream may
// differ from the engine's format; the engine passes every stream through
// internal/resample.NewConverter, which wraps a mismatched one in a
// Converter (itself a Stream), so the mixer always reads engine-native f32
// frames.
type Stream interface {
	// Format reports the rate/layout/sample format this stream decodes to.
	Format() format.Format

	// Read fills buf with up to len(buf) interleaved samples and returns
	// how many were written. n < len(buf) signals end-of-stream (spec.md
	// §4.8(a): "a short read signals end-of-stream").
	Read(buf []float32) (n int, err error)

	// Seek attempts to reposition to frame. On success it returns the
	// exact resulting frame, which is <= frame. A stream that cannot seek
	// returns ErrSeekUnsupported, telling the caller to reopen instead
	// (spec.md §4.8(b)).
	Seek(frame int64) (int64, error)

	// Clone returns an independent stream over the same source positioned
	// identically, for sharing one sound across concurrent voices. ok is
	// false when cloning isn't supported, in which case the engine must
	// reopen via the SoundDelegate for additional concurrent voices
	// (spec.md §4.8(c)).
	Clone() (s Stream, ok bool)

	// EstimateLen returns an advisory total frame count. It is consulted
	// only before any Read/Seek call (spec.md §4.8(d)); ok is false when
	// the underlying source can't estimate its length.
	EstimateLen() (frames int64, ok bool)

	// Close releases any resources held by the stream.
	Close() error
}
