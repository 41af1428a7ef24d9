package httpapi

import (
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"sms-engine/internal/loader"
	"sms-engine/internal/soundtrack"
)

// PrecacheQuerier resolves QueryPrecacheState for the /precache/{name}
// status endpoint — the engine itself, or a stub in tests.
type PrecacheQuerier interface {
	QueryPrecacheState(flowName string) loader.PrecacheState
}

// RouterConfig carries everything NewRouter needs to build the control
// plane, following the teacher's RouterConfig dependency-injection shape
// (router.go) so the router stays constructible in tests without a live
// engine goroutine.
type RouterConfig struct {
	Sink      Sink
	Precache  PrecacheQuerier
	Registry  prometheus.Gatherer

	// Parser turns an uploaded soundtrack body into a *soundtrack.Soundtrack
	// for POST /soundtrack. Defaults to soundtrack.NopParser{} when nil,
	// since the real source grammar is outside this engine's scope.
	Parser soundtrack.Parser

	// RateLimiter is optional; nil disables per-IP limiting (tests mostly
	// want this off).
	RateLimiter *IPRateLimiter

	CORSOrigins []string
}

// NewRouter builds the HTTP handler for cmd/smsdemo. Pure: no goroutines,
// no listeners, safe for httptest.NewServer — matching the teacher's
// NewRouter contract verbatim.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	if cfg.RateLimiter != nil {
		r.Use(cfg.RateLimiter.Middleware)
	}

	origins := cfg.CORSOrigins
	if origins == nil {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	hub := NewCommandStreamHub(cfg.Sink)
	r.Route("/commands", func(r chi.Router) {
		r.Post("/{verb}", handlePostCommand(cfg.Sink))
		r.Get("/stream", hub.HandleWS)
	})

	r.Get("/precache/{name}", handlePrecacheQuery(cfg.Precache))

	parser := cfg.Parser
	if parser == nil {
		parser = soundtrack.NopParser{}
	}
	r.Post("/soundtrack", handleReplaceSoundtrack(cfg.Sink, parser))

	if cfg.Registry != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}

func handlePostCommand(sink Sink) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		verb := chi.URLParam(req, "verb")

		req.Body = http.MaxBytesReader(w, req.Body, 1<<16)
		body, err := io.ReadAll(req.Body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, "body too large or unreadable")
			return
		}

		cmd, err := buildCommand(verb, body)
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}

		sink.Enqueue(cmd)
		w.WriteHeader(http.StatusAccepted)
	}
}

func handlePrecacheQuery(pq PrecacheQuerier) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		name := chi.URLParam(req, "name")
		state := pq.QueryPrecacheState(name)

		label := map[loader.PrecacheState]string{
			loader.PrecacheIdle:    "idle",
			loader.PrecacheLoading: "loading",
			loader.PrecacheReady:   "ready",
		}[state]

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"flow":"` + name + `","state":"` + label + `"}`))
	}
}

// ShutdownTimeout bounds how long cmd/smsdemo waits for in-flight requests
// to finish during graceful shutdown.
const ShutdownTimeout = 5 * time.Second
