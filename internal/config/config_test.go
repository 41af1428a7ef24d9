package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"sms-engine/internal/format"
)

func TestDefaultEngine(t *testing.T) {
	cfg := DefaultEngine()
	assert.Equal(t, 48000, cfg.SampleRate)
	assert.Equal(t, format.Stereo, cfg.Layout)
	assert.True(t, cfg.BackgroundLoading)
	assert.Equal(t, 500*time.Millisecond, cfg.ScheduleHorizon)
}

func TestEngineFromEnv_OverridesDefaults(t *testing.T) {
	for k, v := range map[string]string{
		"SMS_SAMPLE_RATE":          "44100",
		"SMS_SPEAKER_LAYOUT":       "mono",
		"SMS_NUM_THREADS":         "4",
		"SMS_BACKGROUND_LOADING":  "false",
		"SMS_QUEUE_CAPACITY":      "1024",
		"SMS_SCHEDULE_HORIZON_MS": "250",
		"SMS_WARNINGS_PER_SECOND": "2.5",
		"SMS_WARNING_BURST":       "3",
		"SMS_SEED":                "99",
	} {
		t.Setenv(k, v)
	}

	cfg := EngineFromEnv()
	assert.Equal(t, 44100, cfg.SampleRate)
	assert.Equal(t, format.Mono, cfg.Layout)
	assert.Equal(t, 4, cfg.NumThreads)
	assert.False(t, cfg.BackgroundLoading)
	assert.Equal(t, 1024, cfg.QueueCapacity)
	assert.Equal(t, 250*time.Millisecond, cfg.ScheduleHorizon)
	assert.Equal(t, 2.5, cfg.WarningsPerSecond)
	assert.Equal(t, 3, cfg.WarningBurst)
	assert.Equal(t, uint64(99), cfg.Seed)
}

func TestEngineFromEnv_LeavesDefaultsWhenUnset(t *testing.T) {
	os.Unsetenv("SMS_SAMPLE_RATE")
	cfg := EngineFromEnv()
	assert.Equal(t, DefaultEngine().SampleRate, cfg.SampleRate)
}

func TestServerFromEnv_DefaultsToSevenOhSevenOh(t *testing.T) {
	os.Unsetenv("PORT")
	cfg := ServerFromEnv()
	assert.Equal(t, 7070, cfg.Port)
}

func TestServerFromEnv_OverridesPort(t *testing.T) {
	t.Setenv("PORT", "9090")
	cfg := ServerFromEnv()
	assert.Equal(t, 9090, cfg.Port)
}

func TestParseLayout_UnknownFallsBackToGiven(t *testing.T) {
	assert.Equal(t, format.Stereo, parseLayout("bogus", format.Stereo))
	assert.Equal(t, format.Surround51, parseLayout("5.1", format.Stereo))
}
