// Command smsdemo drives the engine against the system's real audio clock
// and exposes the command surface over HTTP/WebSocket, per SPEC_FULL.md
// §6. Grounded on the teacher's cmd/server/main.go for env loading and
// shutdown-signal shape, inverted from the teacher's self-ticking
// game.Engine.Start() into a ticker loop that calls engine.TurnHandle
// explicitly, since spec.md §4.9 makes the audio thread the caller, not
// something the Engine itself spins up.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"sms-engine/internal/config"
	"sms-engine/internal/delegate"
	"sms-engine/internal/engine"
	"sms-engine/internal/format"
	"sms-engine/internal/httpapi"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("smsdemo: no .env file found, using environment variables only")
	}

	cfg := config.Load()

	reg := prometheus.NewRegistry()

	del := buildDelegate(cfg.Engine)

	eng := engine.New(cfg.Engine, del, reg)
	defer eng.Stop()

	commander := eng.NewCommander()

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Sink:        commander,
		Precache:    eng,
		Registry:    reg,
		RateLimiter: httpapi.NewIPRateLimiter(httpapi.DefaultRateLimitConfig),
	})

	srv := &http.Server{
		Addr:    ":" + strconv.Itoa(cfg.Server.Port),
		Handler: router,
	}

	stop := make(chan struct{})
	go runAudioLoop(eng, cfg.Engine.SampleRate, cfg.Engine.Layout.Channels(), stop)

	go func() {
		log.Printf("smsdemo: control plane listening on %s", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("smsdemo: server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("smsdemo: shutting down")
	close(stop)

	ctx, cancel := context.WithTimeout(context.Background(), httpapi.ShutdownTimeout)
	defer cancel()
	srv.Shutdown(ctx)
}

// buildDelegate picks the demo's SoundDelegate: a real file-backed one
// rooted at SMS_ASSET_DIR if set, otherwise the deterministic synth
// fallback so the demo runs with zero audio assets checked in.
func buildDelegate(ecfg config.EngineConfig) delegate.Delegate {
	warn := func(msg string) { log.Printf("smsdemo: warning: %s", msg) }

	var base delegate.Delegate
	if dir := os.Getenv("SMS_ASSET_DIR"); dir != "" {
		base = delegate.NewFileDelegate(dir, warn)
	} else {
		fmtFor := format.Format{SampleRate: ecfg.SampleRate, Layout: ecfg.Layout, Sample: format.F32}
		base = delegate.NewSynthFallback(fmtFor, warn)
	}
	return delegate.NewRateLimited(base, ecfg.WarningsPerSecond, ecfg.WarningBurst)
}

// runAudioLoop stands in for a real audio callback: a ticker firing once
// per block, calling TurnHandle with a throwaway buffer. A production
// embedding would instead call TurnHandle from inside the host audio
// library's own callback (e.g. a cgo binding to PortAudio/CoreAudio),
// never from a goroutine ticker — this loop exists only so the demo has
// somewhere to drive the engine from.
func runAudioLoop(eng *engine.Engine, sampleRate, channels int, stop <-chan struct{}) {
	const blockFrames = 512

	out := make([]float32, blockFrames*channels)
	period := time.Second * time.Duration(blockFrames) / time.Duration(sampleRate)
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			if err := eng.TurnHandle(out); err != nil {
				log.Printf("smsdemo: TurnHandle error: %v", err)
			}
		}
	}
}
