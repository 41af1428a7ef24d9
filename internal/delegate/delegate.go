// Package delegate implements the SoundDelegate adapter from spec.md §6/§9:
// "opens named sound files, routes warnings", shared (refcounted, in Go
// terms simply passed around as an interface value with GC managing
// lifetime) across the engine and loader workers, and safe to call from any
// loader worker concurrently.
package delegate

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/time/rate"

	"sms-engine/internal/format"
	"sms-engine/internal/stream"
)

// Delegate is the seam spec.md §6 declares: open(name) -> stream | null,
// warning(msg). There is no explicit free() callback — a Go Delegate's
// resources are reclaimed by the garbage collector and by each Stream's own
// Close, so the third SoundDelegate callback has no Go analog.
type Delegate interface {
	// Open resolves name to a newly opened Stream. Returning an error is
	// the Go equivalent of the C interface's "open returns null": the
	// engine substitutes silence and reports the failure via Warning
	// instead of failing the caller (spec.md §7(b)).
	Open(name string) (stream.Stream, error)

	// Warning routes an engine-internal problem report to the host
	// application. Must be safe to call concurrently from any loader
	// worker (spec.md §6).
	Warning(msg string)
}

// FileDelegate opens sound files named by the soundtrack relative to a base
// directory, decoding OGG Vorbis via internal/stream.OpenVorbis. Grounded on
// the teacher's asset-path conventions in cmd/server/main.go
// (MUSIC_PATH-relative file resolution).
type FileDelegate struct {
	baseDir  string
	onWarn   func(string)
}

// NewFileDelegate returns a Delegate rooted at baseDir. onWarn receives
// every warning passed to Warning (FileDelegate applies no rate limiting of
// its own; wrap it in RateLimited for that); pass nil to discard them.
func NewFileDelegate(baseDir string, onWarn func(string)) *FileDelegate {
	if onWarn == nil {
		onWarn = func(string) {}
	}
	return &FileDelegate{baseDir: baseDir, onWarn: onWarn}
}

func (d *FileDelegate) Open(name string) (stream.Stream, error) {
	// A leading "/" or ".." component would escape baseDir; soundtrack
	// names are untrusted input from whatever produced the Soundtrack, so
	// resolve strictly under baseDir the way a file-serving handler would.
	clean := filepath.Clean("/" + name)
	path := filepath.Join(d.baseDir, clean)

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("delegate: open %q: %w", name, err)
	}

	s, err := stream.OpenVorbis(f)
	if err != nil {
		return nil, fmt.Errorf("delegate: decode %q: %w", name, err)
	}
	return s, nil
}

func (d *FileDelegate) Warning(msg string) { d.onWarn(msg) }

// RateLimited wraps a Delegate, throttling Warning calls with
// golang.org/x/time/rate the way the teacher's internal/api.RateLimitConfig
// throttles per-IP HTTP requests (SPEC_FULL.md §5) — repurposed here to cap
// warning-handler frequency so a pathological run of decode failures can't
// become a realtime-path bottleneck. Open is passed through unchanged: only
// warnings are hot-path-adjacent (every failed voice emits one).
type RateLimited struct {
	inner   Delegate
	limiter *rate.Limiter

	mu       sync.Mutex
	dropped  uint64
}

// NewRateLimited wraps inner with a token-bucket limiter allowing
// perSecond warnings sustained, bursting up to burst.
func NewRateLimited(inner Delegate, perSecond float64, burst int) *RateLimited {
	return &RateLimited{inner: inner, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (r *RateLimited) Open(name string) (stream.Stream, error) { return r.inner.Open(name) }

// Warning checks the limiter with the non-blocking Allow (never Wait), so
// this can be called from the audio thread without risking a stall —
// spec.md §4.6's "warning path must not block either".
func (r *RateLimited) Warning(msg string) {
	if r.limiter.Allow() {
		r.inner.Warning(msg)
		return
	}
	r.mu.Lock()
	r.dropped++
	r.mu.Unlock()
}

// DroppedCount reports how many warnings were suppressed by rate limiting,
// for diagnostics.
func (r *RateLimited) DroppedCount() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}

// SynthFallback is a test/demo Delegate that never touches the filesystem:
// every sound name opens as a deterministic synthesized tone (or silence
// for names containing "silence"), so examples and tests can exercise the
// full engine without shipping audio assets. Grounded on the teacher's
// MusicPlayer fallback-to-silence-on-load-failure behavior, generalized
// into an always-succeeds Delegate.
type SynthFallback struct {
	fmt    format.Format
	onWarn func(string)
}

// NewSynthFallback returns a Delegate that synthesizes every requested
// sound in fmt instead of opening a file.
func NewSynthFallback(fmt format.Format, onWarn func(string)) *SynthFallback {
	if onWarn == nil {
		onWarn = func(string) {}
	}
	return &SynthFallback{fmt: fmt, onWarn: onWarn}
}

func (d *SynthFallback) Open(name string) (stream.Stream, error) {
	if strings.Contains(name, "silence") {
		return stream.NewSilence(d.fmt, 0), nil
	}
	freq := 220.0 + float64(fnvHash(name)%880)
	return stream.NewTone(freq, d.fmt, 0), nil
}

func (d *SynthFallback) Warning(msg string) { d.onWarn(msg) }

func fnvHash(s string) uint32 {
	const prime = 16777619
	h := uint32(2166136261)
	for i := 0; i < len(s); i++ {
		h ^= uint32(s[i])
		h *= prime
	}
	return h
}
