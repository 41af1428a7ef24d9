// Package resample converts a stream.Stream from its declared sample rate
// and channel layout to the engine's native ones. No library in the
// retrieval pack models channel mapping across the full layout set spec.md
// §6 defines (beep.Resample only ever moves samples between two stereo
// rates) — see DESIGN.md's standard-library justification for this
// package.
package resample

import (
	"io"

	"sms-engine/internal/format"
	"sms-engine/internal/stream"
)

// errEOF mirrors the "short read signals end-of-stream" contract
// stream.Stream documents: Read returns io.EOF once the wrapped source is
// exhausted and every cached frame has drained.
var errEOF = io.EOF

// Converter wraps a stream.Stream, presenting it in a different Format via
// linear-interpolation resampling plus a simple channel mapper. It
// satisfies stream.Stream itself, so it composes transparently with the
// rest of the decode pipeline.
type Converter struct {
	src    stream.Stream
	srcFmt format.Format
	dst    format.Format

	ratio   float64 // srcRate / dstRate
	framePos float64 // fractional position into the source, in source frames

	prev, cur []float32 // one cached source frame each, length srcFmt.Channels()
	srcFrame  []float32 // scratch read buffer, one source frame
	interp    []float32 // scratch interpolated-frame buffer, reused across Read calls
	eof       bool
}

// NewConverter returns src wrapped to appear in dst's rate/layout. If src
// is already in dst's format, src is returned unchanged.
func NewConverter(src stream.Stream, dst format.Format) stream.Stream {
	srcFmt := src.Format()
	if srcFmt.SampleRate == dst.SampleRate && srcFmt.Layout == dst.Layout {
		return src
	}

	srcCh := srcFmt.Channels()
	c := &Converter{
		src:      src,
		srcFmt:   srcFmt,
		dst:      dst,
		ratio:    float64(srcFmt.SampleRate) / float64(dst.SampleRate),
		prev:     make([]float32, srcCh),
		cur:      make([]float32, srcCh),
		srcFrame: make([]float32, srcCh),
		interp:   make([]float32, srcCh),
	}
	c.fillInitial()
	return c
}

func (c *Converter) fillInitial() {
	n, _ := c.src.Read(c.cur)
	if n < len(c.cur) {
		c.eof = true
	}
	copy(c.prev, c.cur)
}

func (c *Converter) Format() format.Format { return c.dst }

func (c *Converter) advanceSource() {
	copy(c.prev, c.cur)
	if c.eof {
		for i := range c.cur {
			c.cur[i] = 0
		}
		return
	}
	n, err := c.src.Read(c.srcFrame)
	if n < len(c.srcFrame) || err != nil {
		c.eof = true
	}
	copy(c.cur, c.srcFrame)
}

// Read produces dst-format frames by linearly interpolating between cached
// source frames and mapping channels, advancing the fractional source
// position by ratio per output frame.
func (c *Converter) Read(buf []float32) (int, error) {
	dstCh := c.dst.Channels()
	framesWanted := len(buf) / dstCh

	written := 0
	for ; written < framesWanted; written++ {
		if c.framePos >= 1 {
			whole := int(c.framePos)
			for i := 0; i < whole; i++ {
				c.advanceSource()
			}
			c.framePos -= float64(whole)
		}

		if c.eof && allZero(c.cur) && allZero(c.prev) {
			break
		}

		interpolate(c.interp, c.prev, c.cur, c.framePos)
		mapChannels(c.interp, buf[written*dstCh:written*dstCh+dstCh])

		c.framePos += c.ratio
	}

	n := written * dstCh
	if written < framesWanted {
		for i := n; i < len(buf); i++ {
			buf[i] = 0
		}
		return n, errEOF
	}
	return n, nil
}

func allZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// interpolate writes into dst (reused across calls; never allocated here —
// the realtime mixer path must not allocate per frame).
func interpolate(dst, prev, cur []float32, t float64) {
	for i := range dst {
		dst[i] = prev[i] + float32(t)*(cur[i]-prev[i])
	}
}

// mapChannels performs a minimal, deterministic channel-count conversion.
// Downmixing to mono averages every source channel; any other downmix
// keeps the source's first dst channels (for stereo, the front pair) and
// drops the rest without mixing them in. Upmixing duplicates a mono source
// into every channel, or copies the source's channels into the first dst
// channels and leaves extras (e.g. LFE, surrounds) silent rather than
// synthesizing content the source never had.
func mapChannels(src, dst []float32) {
	switch {
	case len(src) == len(dst):
		copy(dst, src)

	case len(src) == 1: // mono source: duplicate into every dst channel
		for i := range dst {
			dst[i] = src[0]
		}

	case len(dst) == 1: // downmix to mono: average all source channels
		var sum float32
		for _, s := range src {
			sum += s
		}
		dst[0] = sum / float32(len(src))

	case len(src) == 2 && len(dst) > 2: // stereo source into multichannel bed
		dst[0] = src[0]
		dst[1] = src[1]
		for i := 2; i < len(dst); i++ {
			dst[i] = 0
		}

	case len(src) > 2 && len(dst) == 2: // multichannel source down to stereo
		dst[0] = src[0]
		dst[1] = src[1]

	default:
		n := len(src)
		if len(dst) < n {
			n = len(dst)
		}
		copy(dst[:n], src[:n])
		for i := n; i < len(dst); i++ {
			dst[i] = 0
		}
	}
}

func (c *Converter) Seek(frame int64) (int64, error) {
	srcFrame := int64(float64(frame) * c.ratio)
	got, err := c.src.Seek(srcFrame)
	if err != nil {
		return 0, err
	}
	c.framePos = 0
	c.eof = false
	c.fillInitial()
	return int64(float64(got) / c.ratio), nil
}

func (c *Converter) Clone() (stream.Stream, bool) {
	clone, ok := c.src.Clone()
	if !ok {
		return nil, false
	}
	return NewConverter(clone, c.dst), true
}

func (c *Converter) EstimateLen() (int64, bool) {
	n, ok := c.src.EstimateLen()
	if !ok {
		return 0, false
	}
	return int64(float64(n) / c.ratio), true
}

func (c *Converter) Close() error { return c.src.Close() }
