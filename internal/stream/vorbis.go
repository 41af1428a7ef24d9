package stream

import (
	"io"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/vorbis"

	"sms-engine/internal/format"
)

// vorbisStream adapts a beep-decoded OGG Vorbis file to Stream. Grounded on
// the teacher's streaming.MusicPlayer.load/ReadSamples: open via
// vorbis.Decode, keep the underlying beep.StreamSeekCloser for Seek/Clone,
// and hand back interleaved float32 instead of MusicPlayer's int16 (the
// engine's native sample format is f32 throughout).
type vorbisStream struct {
	rc       io.ReadCloser
	streamer beep.StreamSeekCloser
	fmt      format.Format

	beepBuf [][2]float64 // scratch, sized to the caller's last Read request
}

// OpenVorbis decodes an OGG Vorbis stream from rc. rc is owned by the
// returned Stream and closed with it.
func OpenVorbis(rc io.ReadCloser) (Stream, error) {
	streamer, beepFmt, err := vorbis.Decode(rc)
	if err != nil {
		rc.Close()
		return nil, err
	}

	layout := format.Stereo
	if beepFmt.NumChannels == 1 {
		layout = format.Mono
	}

	return &vorbisStream{
		rc:       rc,
		streamer: streamer,
		fmt: format.Format{
			SampleRate: int(beepFmt.SampleRate),
			Layout:     layout,
			Sample:     format.F32,
		},
	}, nil
}

func (v *vorbisStream) Format() format.Format { return v.fmt }

func (v *vorbisStream) Read(buf []float32) (int, error) {
	ch := v.fmt.Channels()
	framesWanted := len(buf) / ch
	if framesWanted == 0 {
		return 0, nil
	}

	if cap(v.beepBuf) < framesWanted {
		v.beepBuf = make([][2]float64, framesWanted)
	}
	work := v.beepBuf[:framesWanted]

	n, ok := v.streamer.Stream(work)
	for i := 0; i < n; i++ {
		if ch == 1 {
			buf[i] = float32((work[i][0] + work[i][1]) / 2)
		} else {
			buf[i*2] = float32(work[i][0])
			buf[i*2+1] = float32(work[i][1])
		}
	}

	if !ok || n < framesWanted {
		return n * ch, io.EOF
	}
	return n * ch, nil
}

func (v *vorbisStream) Seek(frame int64) (int64, error) {
	if err := v.streamer.Seek(int(frame)); err != nil {
		return 0, ErrSeekUnsupported
	}
	return frame, nil
}

// Clone is unsupported: beep's StreamSeekCloser holds the open file handle
// and decode state, neither of which can be duplicated without reopening
// the source (spec.md §4.8(c) tells callers to reopen via the delegate in
// that case).
func (v *vorbisStream) Clone() (Stream, bool) { return nil, false }

func (v *vorbisStream) EstimateLen() (int64, bool) {
	n := v.streamer.Len()
	if n <= 0 {
		return 0, false
	}
	return int64(n), true
}

func (v *vorbisStream) Close() error {
	return v.streamer.Close()
}
