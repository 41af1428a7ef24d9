package stream

import (
	"io"
	"math"

	"sms-engine/internal/format"
)

// toneStream is a synthesized sine tone generated sample-by-sample rather
// than precomputed into a slice, so it can serve as an infinite or
// finite-length test fixture without allocating per block. Grounded on the
// teacher's streaming.GenerateTone, generalized from a one-shot []int16
// buffer to a streamed Stream.
type toneStream struct {
	fmt       format.Format
	freq      float64
	pos       int64
	lenFrames int64 // <= 0 means unbounded
}

// NewTone returns a Stream producing a sine wave at freq Hz in fmt. If
// lengthFrames is positive, the stream ends after that many frames;
// otherwise it runs forever (useful for ambient test beds).
func NewTone(freq float64, fmt format.Format, lengthFrames int64) Stream {
	return &toneStream{fmt: fmt, freq: freq, lenFrames: lengthFrames}
}

// NewSilence returns a Stream of pure zero frames, used by the engine as
// the fallback when a sound fails to open (spec.md §4.9: a
// failed open must not fall silent in a way that looks like a bug — the
// engine substitutes an explicit silence stream and reports the failure
// through a warning instead).
func NewSilence(fmt format.Format, lengthFrames int64) Stream {
	return &toneStream{fmt: fmt, freq: 0, lenFrames: lengthFrames}
}

func (s *toneStream) Format() format.Format { return s.fmt }

func (s *toneStream) Read(buf []float32) (int, error) {
	ch := s.fmt.Channels()
	framesWanted := len(buf) / ch

	n := 0
	for ; n < framesWanted; n++ {
		if s.lenFrames > 0 && s.pos >= s.lenFrames {
			break
		}
		var v float32
		if s.freq > 0 {
			t := float64(s.pos) / float64(s.fmt.SampleRate)
			v = float32(math.Sin(2 * math.Pi * s.freq * t))
		}
		for c := 0; c < ch; c++ {
			buf[n*ch+c] = v
		}
		s.pos++
	}

	if n < framesWanted {
		for i := n * ch; i < len(buf); i++ {
			buf[i] = 0
		}
		return n * ch, io.EOF
	}
	return n * ch, nil
}

func (s *toneStream) Seek(frame int64) (int64, error) {
	s.pos = frame
	return frame, nil
}

func (s *toneStream) Clone() (Stream, bool) {
	return &toneStream{fmt: s.fmt, freq: s.freq, pos: s.pos, lenFrames: s.lenFrames}, true
}

func (s *toneStream) EstimateLen() (int64, bool) {
	if s.lenFrames <= 0 {
		return 0, false
	}
	return s.lenFrames, true
}

func (s *toneStream) Close() error { return nil }
