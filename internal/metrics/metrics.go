// Package metrics exposes Prometheus counters/gauges/histograms over the
// mixer, loader pool, and command queue. It is read-only with respect to
// engine behavior — nothing in internal/engine branches on a metric value
// — grounded on the teacher's internal/api/observability.go metrics set,
// retargeted from game/stream/HTTP concerns to the audio pipeline.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles every gauge/counter/histogram the engine updates. A nil
// *Metrics is valid and every method on it is a no-op, so callers that
// don't want Prometheus wiring (most tests) can simply leave it unset.
type Metrics struct {
	blockDuration   prometheus.Histogram
	blockFrames     prometheus.Histogram
	voicesActive    prometheus.Gauge
	busesActive     prometheus.Gauge
	flowsActive     prometheus.Gauge
	queueDepth      prometheus.Gauge
	voicesDropped   prometheus.Counter
	warningsEmitted prometheus.Counter
	loaderTasksDone *prometheus.CounterVec
	precacheState   *prometheus.GaugeVec
}

// New registers a fresh metrics set against reg via promauto.With(reg),
// the promauto idiom the teacher's observability.go uses at package scope.
// Unlike the teacher, this is a constructor taking its own Registerer
// rather than package globals on the default registry, so more than one
// Engine in a process (e.g. in tests, each with its own registry) doesn't
// panic on duplicate registration.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		blockDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sms_block_duration_seconds",
			Help:    "Wall-clock time spent in one TurnHandle call.",
			Buckets: []float64{0.0005, 0.001, 0.002, 0.005, 0.01, 0.02, 0.05},
		}),
		blockFrames: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "sms_block_frames",
			Help:    "Sample frames rendered per TurnHandle call.",
			Buckets: []float64{64, 128, 256, 512, 1024, 2048, 4096},
		}),
		voicesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sms_voices_active",
			Help: "Voices currently live in the voice pool.",
		}),
		busesActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sms_mix_buses_active",
			Help: "Mix buses currently live in the tree.",
		}),
		flowsActive: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sms_flows_active",
			Help: "Flows currently live in the scheduler.",
		}),
		queueDepth: factory.NewGauge(prometheus.GaugeOpts{
			Name: "sms_command_queue_depth",
			Help: "Commands resident in the ring buffer at last drain.",
		}),
		voicesDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "sms_voices_dropped_total",
			Help: "Voices dropped due to pool exhaustion.",
		}),
		warningsEmitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "sms_warnings_emitted_total",
			Help: "Warnings passed to the SoundDelegate (post rate-limit).",
		}),
		loaderTasksDone: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "sms_loader_tasks_total",
			Help: "Completed loader tasks by outcome.",
		}, []string{"outcome"}), // "ok", "error", "missed_deadline"
		precacheState: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "sms_precache_state",
			Help: "Precache state per flow (0=idle, 1=loading, 2=ready).",
		}, []string{"flow"}),
	}
}

func (m *Metrics) ObserveBlock(d time.Duration, frames int) {
	if m == nil {
		return
	}
	m.blockDuration.Observe(d.Seconds())
	m.blockFrames.Observe(float64(frames))
}

func (m *Metrics) SetVoicesActive(n int) {
	if m == nil {
		return
	}
	m.voicesActive.Set(float64(n))
}

func (m *Metrics) SetBusesActive(n int) {
	if m == nil {
		return
	}
	m.busesActive.Set(float64(n))
}

func (m *Metrics) SetFlowsActive(n int) {
	if m == nil {
		return
	}
	m.flowsActive.Set(float64(n))
}

func (m *Metrics) SetQueueDepth(n int) {
	if m == nil {
		return
	}
	m.queueDepth.Set(float64(n))
}

func (m *Metrics) IncVoicesDropped() {
	if m == nil {
		return
	}
	m.voicesDropped.Inc()
}

func (m *Metrics) IncWarningsEmitted() {
	if m == nil {
		return
	}
	m.warningsEmitted.Inc()
}

func (m *Metrics) IncLoaderTask(outcome string) {
	if m == nil {
		return
	}
	m.loaderTasksDone.WithLabelValues(outcome).Inc()
}

func (m *Metrics) SetPrecacheState(flow string, state int) {
	if m == nil {
		return
	}
	m.precacheState.WithLabelValues(flow).Set(float64(state))
}
