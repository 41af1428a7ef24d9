// Package config is the single source of truth for engine construction
// parameters, following the teacher's config.Load()/XFromEnv() pattern:
// a Default* for each concern plus an env-overlay variant, composed into
// one Load() result.
package config

import (
	"os"
	"strconv"
	"time"

	"sms-engine/internal/format"
)

// EngineConfig holds the immutable parameters spec.md §4.9 says construction
// takes: {SoundDelegate, speaker_layout, sample_rate, num_threads,
// background_loading}. The SoundDelegate itself is supplied separately to
// internal/engine.New (it is a behavioral dependency, not a value), but
// everything else lives here.
type EngineConfig struct {
	SampleRate int
	Layout     format.SpeakerLayout

	// NumThreads is the loader worker-pool size. 0 means "heuristic on
	// hardware concurrency", matching spec.md §4.7's default.
	NumThreads int

	// BackgroundLoading selects realtime mode (decode ahead of the horizon
	// on worker goroutines) vs. batch mode (TurnHandle decodes synchronously
	// and never returns early), per spec.md §4.7/§4.9.
	BackgroundLoading bool

	// QueueCapacity sizes the command ring buffer (internal/queue), rounded
	// up to a power of two.
	QueueCapacity int

	// ScheduleHorizon is how far ahead of the mix cursor the scheduler must
	// keep voices ready, per spec.md §4.5 ("Horizon" in the GLOSSARY). It
	// must be at least the longest expected decoder preroll time.
	ScheduleHorizon time.Duration

	// WarningsPerSecond / WarningBurst rate-limit SoundDelegate.Warning
	// calls reachable from the mixer hot path (SPEC_FULL.md §5), so a
	// pathological run of decode failures can't itself become a bottleneck.
	WarningsPerSecond float64
	WarningBurst      int

	// Seed seeds every flow's deterministic PRNG (combined with the flow
	// name), per spec.md §4.5 and the determinism property in §8.
	Seed uint64
}

// DefaultEngine returns production-safe defaults: stereo 48kHz, realtime
// background loading, an 8192-command queue, and a 500ms schedule horizon.
func DefaultEngine() EngineConfig {
	return EngineConfig{
		SampleRate:        48000,
		Layout:            format.Stereo,
		NumThreads:        0,
		BackgroundLoading: true,
		QueueCapacity:     8192,
		ScheduleHorizon:   500 * time.Millisecond,
		WarningsPerSecond: 5,
		WarningBurst:      10,
		Seed:              1,
	}
}

// EngineFromEnv overlays DefaultEngine with SMS_*-prefixed environment
// variables, the same override shape as the teacher's *FromEnv functions.
func EngineFromEnv() EngineConfig {
	cfg := DefaultEngine()

	if sr := getEnvInt("SMS_SAMPLE_RATE", 0); sr > 0 {
		cfg.SampleRate = sr
	}
	if l := os.Getenv("SMS_SPEAKER_LAYOUT"); l != "" {
		cfg.Layout = parseLayout(l, cfg.Layout)
	}
	if nt := getEnvInt("SMS_NUM_THREADS", -1); nt >= 0 {
		cfg.NumThreads = nt
	}
	if os.Getenv("SMS_BACKGROUND_LOADING") == "false" {
		cfg.BackgroundLoading = false
	}
	if qc := getEnvInt("SMS_QUEUE_CAPACITY", 0); qc > 0 {
		cfg.QueueCapacity = qc
	}
	if hz := getEnvFloat("SMS_SCHEDULE_HORIZON_MS", -1); hz >= 0 {
		cfg.ScheduleHorizon = time.Duration(hz) * time.Millisecond
	}
	if wps := getEnvFloat("SMS_WARNINGS_PER_SECOND", -1); wps >= 0 {
		cfg.WarningsPerSecond = wps
	}
	if wb := getEnvInt("SMS_WARNING_BURST", 0); wb > 0 {
		cfg.WarningBurst = wb
	}
	if seed := getEnvInt("SMS_SEED", -1); seed >= 0 {
		cfg.Seed = uint64(seed)
	}

	return cfg
}

func parseLayout(name string, fallback format.SpeakerLayout) format.SpeakerLayout {
	switch name {
	case "mono":
		return format.Mono
	case "stereo":
		return format.Stereo
	case "headphones":
		return format.Headphones
	case "quad", "quadraphonic":
		return format.Quadraphonic
	case "5.1", "surround51":
		return format.Surround51
	case "7.1", "surround71":
		return format.Surround71
	default:
		return fallback
	}
}

// ServerConfig holds cmd/smsdemo's HTTP control-plane settings, grounded on
// the teacher's ServerConfig/ServerFromEnv pair.
type ServerConfig struct {
	Port int
}

// DefaultServer returns cmd/smsdemo's default listen port.
func DefaultServer() ServerConfig {
	return ServerConfig{Port: 7070}
}

// ServerFromEnv overlays DefaultServer with PORT.
func ServerFromEnv() ServerConfig {
	cfg := DefaultServer()
	if p := getEnvInt("PORT", 0); p > 0 {
		cfg.Port = p
	}
	return cfg
}

// AppConfig is cmd/smsdemo's complete configuration.
type AppConfig struct {
	Engine EngineConfig
	Server ServerConfig
}

// Load returns the complete application configuration with environment
// overrides applied, the teacher's single Load() entry point.
func Load() AppConfig {
	return AppConfig{
		Engine: EngineFromEnv(),
		Server: ServerFromEnv(),
	}
}

func getEnvInt(key string, defaultVal int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return defaultVal
}
