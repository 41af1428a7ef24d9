// Package engine implements the top-level Engine lifecycle and TurnHandle
// render loop from spec.md §4.9: the caller-driven per-block entry point
// that drains commands, advances the scheduler and mix-bus tree, and mixes
// the next block of audio.
//
// Grounded on the teacher's game.Engine construction/mutex-discipline
// shape, but inverted from a self-driven ticker goroutine to a
// caller-driven TurnHandle call — SPEC_FULL.md §4.9 calls this out as the
// one place the teacher's control-flow shape is deliberately not kept,
// since a pull-based audio callback has no analog to "start a ticker
// goroutine and return immediately".
package engine

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"sms-engine/internal/config"
	"sms-engine/internal/delegate"
	"sms-engine/internal/flowcontrol"
	"sms-engine/internal/format"
	"sms-engine/internal/loader"
	"sms-engine/internal/metrics"
	"sms-engine/internal/mixbus"
	"sms-engine/internal/queue"
	"sms-engine/internal/resample"
	"sms-engine/internal/scheduler"
	"sms-engine/internal/soundtrack"
	"sms-engine/internal/stream"
	"sms-engine/internal/voice"
)

// voiceMeta is the bookkeeping an in-flight async load needs once it
// completes: where it belongs and at what gain, since loader.Task itself
// only knows how to fetch bytes.
type voiceMeta struct {
	flowName      string
	busName       string
	gain          float64
	deadlineFrame int64
	token         int64

	fadeInFrames   int64
	fadeOutFrames  int64
	fadeOutAtFrame int64
}

// Engine is the audio-generation-thread owner of every mutable piece of
// engine state: the scheduler, mix-bus tree, voice pool, and precache
// registry. Every field except the command ring buffer, the delegate and
// the precache registry (read by QueryPrecacheState from any goroutine; it
// locks internally) is touched only from calls to TurnHandle — spec.md
// §5's "audio thread discipline".
type Engine struct {
	cfg      config.EngineConfig
	delegate delegate.Delegate
	format   format.Format

	ring *queue.RingBuffer

	soundtrack *soundtrack.Soundtrack
	controls   *flowcontrol.Table
	buses      *mixbus.Tree
	voices     *voice.Pool
	sched      *scheduler.Scheduler

	pool     *loader.Pool
	precache *loader.Registry

	metrics *metrics.Metrics

	clock         int64
	horizonFrames int64

	pendingLoads map[int64]*loader.Task
	pendingMeta  map[int64]voiceMeta

	scratchCmds []queue.Command
}

// New constructs an Engine per spec.md §4.9: SoundDelegate, speaker
// layout, sample rate, thread count, and background-loading flag, all
// supplied via cfg/del and immutable thereafter. reg may be nil to skip
// Prometheus registration (as most tests do).
func New(cfg config.EngineConfig, del delegate.Delegate, reg prometheus.Registerer) *Engine {
	fmt_ := format.Format{SampleRate: cfg.SampleRate, Layout: cfg.Layout, Sample: format.F32}

	buses := mixbus.NewTree(cfg.SampleRate)
	voices := voice.New(buses, fmt_.Channels())
	controls := flowcontrol.NewTable()
	sched := scheduler.New(controls, cfg.Seed)

	pool := loader.New(cfg.NumThreads, del)
	pool.Start()
	precache := loader.NewRegistry(pool)

	horizonFrames := int64(cfg.ScheduleHorizon.Seconds() * float64(cfg.SampleRate))
	if horizonFrames < 1 {
		horizonFrames = 1
	}

	e := &Engine{
		cfg:           cfg,
		delegate:      del,
		format:        fmt_,
		ring:          queue.NewRingBuffer(cfg.QueueCapacity),
		soundtrack:    soundtrack.New(),
		controls:      controls,
		buses:         buses,
		voices:        voices,
		sched:         sched,
		pool:          pool,
		precache:      precache,
		horizonFrames: horizonFrames,
		pendingLoads:  make(map[int64]*loader.Task),
		pendingMeta:   make(map[int64]voiceMeta),
	}
	if reg != nil {
		e.metrics = metrics.New(reg)
	}
	voices.OnDone = e.handleVoiceDone
	return e
}

// NewCommander returns a cheap handle sharing this Engine's command queue,
// for non-audio-thread producers (spec.md §4.1).
func (e *Engine) NewCommander() queue.Commander { return queue.NewCommander(e.ring) }

// Enqueue lets the Engine itself satisfy queue.Sink, so code generic over
// Engine/Commander/Transaction can target the Engine directly too.
func (e *Engine) Enqueue(cmd queue.Command) { e.ring.TryEnqueue(cmd) }

// ClockFrames returns the count of sample frames mixed since construction.
func (e *Engine) ClockFrames() int64 { return e.clock }

// QueryPrecacheState resolves spec.md §9's open question, implemented per
// SPEC_FULL.md §9.
func (e *Engine) QueryPrecacheState(flowName string) loader.PrecacheState {
	return e.precache.QueryState(flowName)
}

// Stop releases the loader pool's workers: queued tasks that no worker has
// started are cancelled with loader.ErrPoolStopped, and tasks already
// running finish first (spec.md §4.9: "Destruction stops workers, releases
// streams").
func (e *Engine) Stop() {
	e.pool.Stop()
}

// TurnHandle mixes one audio block into out and advances the clock, per
// spec.md §4.9: out_len must be a multiple of the channel count.
func (e *Engine) TurnHandle(out []float32) error {
	start := time.Now()
	ch := e.format.Channels()
	if len(out)%ch != 0 {
		return fmt.Errorf("engine: out length %d is not a multiple of channel count %d", len(out), ch)
	}
	blockFrames := int64(len(out) / ch)

	e.scratchCmds = e.ring.Drain(e.scratchCmds[:0])
	e.metrics.SetQueueDepth(len(e.scratchCmds))
	for _, cmd := range e.scratchCmds {
		e.apply(cmd)
	}

	e.buses.AdvanceBlock(blockFrames)

	for _, name := range e.sched.AdvanceEnvelopes(blockFrames) {
		e.killFlowVoices(name)
	}

	for _, req := range e.sched.Advance(e.clock, blockFrames, e.horizonFrames) {
		e.dispatchVoiceRequest(req)
	}

	e.pollPendingLoads()

	e.voices.RenderBlock(e.clock, int(blockFrames), out)
	e.clock += blockFrames

	e.metrics.ObserveBlock(time.Since(start), int(blockFrames))
	e.metrics.SetVoicesActive(e.voices.Live())
	e.metrics.SetFlowsActive(len(e.sched.LiveFlowNames()))
	e.metrics.SetBusesActive(len(e.buses.PostOrder()))
	return nil
}

// apply mutates engine state for one Command, per spec.md §6's command
// surface. A KindBatch command (a committed Transaction) applies its whole
// slice contiguously with nothing interleaved, satisfying invariant (iv).
func (e *Engine) apply(cmd queue.Command) {
	switch cmd.Kind {
	case queue.KindBatch:
		for _, sub := range cmd.BatchedCmds {
			e.apply(sub)
		}

	case queue.KindReplaceSoundtrack:
		e.soundtrack = cmd.Soundtrack
		e.sched.ReplaceSoundtrack(cmd.Soundtrack)

	case queue.KindPrecache:
		e.precache.Precache(cmd.Name, e.reachableSounds(cmd.Name), int(e.horizonFrames))
	case queue.KindUnprecache:
		e.precache.Unprecache(cmd.Name)
	case queue.KindUnprecacheAll:
		e.precache.UnprecacheAll()

	case queue.KindControlSetNumber:
		e.controls.SetNumber(cmd.Name, cmd.Number)
	case queue.KindControlSetString:
		e.controls.SetString(cmd.Name, cmd.Text)
	case queue.KindControlClear:
		e.controls.Clear(cmd.Name)
	case queue.KindControlClearPrefixed:
		e.controls.ClearPrefixed(cmd.Name)
	case queue.KindControlClearAll:
		e.controls.ClearAll()

	case queue.KindBusFadeTo:
		e.buses.FadeTo(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve)
	case queue.KindBusFadePrefixedTo:
		e.buses.FadePrefixedTo(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve)
	case queue.KindBusFadeAllTo:
		e.buses.FadeAllTo(cmd.Volume, cmd.Length, cmd.Curve)
	case queue.KindBusFadeAllExceptMainTo:
		e.buses.FadeAllExceptMainTo(cmd.Volume, cmd.Length, cmd.Curve)
	case queue.KindBusFadeOut:
		e.buses.FadeOut(cmd.Name, cmd.Length, cmd.Curve)
	case queue.KindBusFadePrefixedOut:
		e.buses.FadePrefixedOut(cmd.Name, cmd.Length, cmd.Curve)
	case queue.KindBusFadeAllOut:
		e.buses.FadeAllOut(cmd.Length, cmd.Curve)
	case queue.KindBusFadeAllExceptMainOut:
		e.buses.FadeAllExceptMainOut(cmd.Length, cmd.Curve)
	case queue.KindBusKill:
		e.buses.Kill(cmd.Name)
	case queue.KindBusKillPrefixed:
		e.buses.KillPrefixed(cmd.Name)
	case queue.KindBusKillAll:
		e.buses.KillAll()
	case queue.KindBusKillAllExceptMain:
		e.buses.KillAllExceptMain()

	case queue.KindFlowStart:
		if !e.sched.Start(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve, e.cfg.SampleRate, e.clock) {
			// Already live: spec.md §4.5 "degenerate to fade_flow_to".
			e.sched.FadeTo(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve, e.cfg.SampleRate)
		}
	case queue.KindFlowFadeTo:
		e.sched.FadeTo(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowFadePrefixedTo:
		e.sched.FadePrefixedTo(cmd.Name, cmd.Volume, cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowFadeAllTo:
		e.sched.FadeAllTo(cmd.Volume, cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowFadeOut:
		e.sched.FadeOut(cmd.Name, cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowFadePrefixedOut:
		e.sched.FadePrefixedOut(cmd.Name, cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowFadeAllOut:
		e.sched.FadeAllOut(cmd.Length, cmd.Curve, e.cfg.SampleRate)
	case queue.KindFlowKill:
		e.killFlowVoices(cmd.Name)
		e.sched.Kill(cmd.Name)
	case queue.KindFlowKillPrefixed:
		for _, name := range e.sched.LiveFlowNames() {
			if hasPrefix(name, cmd.Name) {
				e.killFlowVoices(name)
			}
		}
		e.sched.KillPrefixed(cmd.Name)
	case queue.KindFlowKillAll:
		for _, name := range e.sched.LiveFlowNames() {
			e.killFlowVoices(name)
		}
		e.sched.KillAll()
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// reachableSounds returns every sound name a flow's soundtrack definition
// could plausibly need, a conservative over-approximation used to drive
// precache (spec.md §4.7: "submits load tasks for every sound reachable
// from the flow's current schedule horizon"). Rather than walking the live
// interpreter state (which may not have unfolded that far yet), precache
// statically walks the node graph from the flow's root.
func (e *Engine) reachableSounds(flowName string) []string {
	fl, ok := e.soundtrack.Flows[flowName]
	if !ok {
		return nil
	}
	seen := map[string]bool{}
	var sounds []string
	var visit func(nodeName string, depth int)
	visit = func(nodeName string, depth int) {
		if depth > 64 || seen["node:"+nodeName] {
			return
		}
		seen["node:"+nodeName] = true
		node, ok := e.soundtrack.Nodes[nodeName]
		if !ok {
			return
		}
		switch node.Kind {
		case soundtrack.NodeSound:
			if !seen["sound:"+node.SoundName] {
				seen["sound:"+node.SoundName] = true
				sounds = append(sounds, node.SoundName)
			}
		case soundtrack.NodeSequence:
			for _, item := range e.soundtrack.Sequences[node.SequenceName].Items {
				if !seen["sound:"+item.SoundName] {
					seen["sound:"+item.SoundName] = true
					sounds = append(sounds, item.SoundName)
				}
			}
		case soundtrack.NodeRandom, soundtrack.NodeParallel:
			for _, c := range node.Children {
				visit(c, depth+1)
			}
		case soundtrack.NodeWeighted:
			for _, c := range node.WeightedChildren {
				visit(c.NodeName, depth+1)
			}
		case soundtrack.NodeConditional:
			visit(node.Condition.Then, depth+1)
			visit(node.Condition.Else, depth+1)
		case soundtrack.NodeLoop:
			visit(node.LoopChild, depth+1)
		}
	}
	visit(fl.RootNode, 0)
	return sounds
}

// dispatchVoiceRequest realizes one scheduler.VoiceRequest as an activated
// Voice, either synchronously (batch mode) or via the loader pool
// (realtime mode), per spec.md §4.7/§4.9.
func (e *Engine) dispatchVoiceRequest(req scheduler.VoiceRequest) {
	file, bus, gain := e.resolveSound(req)

	if !e.cfg.BackgroundLoading {
		s, err := e.delegate.Open(file)
		if err != nil {
			e.warn(fmt.Sprintf("open %q failed: %v", file, err))
			s = stream.NewSilence(e.format, 0)
		}
		e.activateVoice(req.Token, req.FlowName, bus, gain, req.DeadlineFrame, req.FadeInFrames, req.FadeOutFrames, req.FadeOutAtFrame, s)
		return
	}

	task := &loader.Task{
		SoundName:     file,
		DeadlineFrame: req.DeadlineFrame,
		PrerollFrames: int(e.horizonFrames),
		TargetFormat:  e.format,
		Done:          make(chan loader.Result, 1),
	}
	e.pool.Submit(task)
	e.pendingLoads[req.Token] = task
	e.pendingMeta[req.Token] = voiceMeta{
		flowName: req.FlowName, busName: bus, gain: gain, deadlineFrame: req.DeadlineFrame, token: req.Token,
		fadeInFrames: req.FadeInFrames, fadeOutFrames: req.FadeOutFrames, fadeOutAtFrame: req.FadeOutAtFrame,
	}
}

func (e *Engine) resolveSound(req scheduler.VoiceRequest) (file, bus string, gain float64) {
	file = req.SoundName
	bus = req.BusName
	gain = req.Gain
	if desc, ok := e.soundtrack.Sounds[req.SoundName]; ok {
		file = desc.File
		if desc.DefaultBus != "" && req.BusName == "" {
			bus = desc.DefaultBus
		}
		if desc.Gain != 0 {
			gain *= desc.Gain
		}
	}
	if bus == "" {
		bus = mixbus.MainBusName
	}
	return file, bus, gain
}

// pollPendingLoads drains completed async loader tasks without blocking,
// activating their voices or substituting silence on failure.
func (e *Engine) pollPendingLoads() {
	for token, task := range e.pendingLoads {
		select {
		case res := <-task.Done:
			meta := e.pendingMeta[token]
			delete(e.pendingLoads, token)
			delete(e.pendingMeta, token)

			s := res.Stream
			if res.Err != nil || s == nil {
				if res.Err != nil {
					e.warn(fmt.Sprintf("load failed: %v", res.Err))
				}
				s = stream.NewSilence(e.format, 0)
				e.metrics.IncLoaderTask("error")
			} else if meta.deadlineFrame < e.clock {
				e.metrics.IncLoaderTask("missed_deadline")
			} else {
				e.metrics.IncLoaderTask("ok")
			}
			e.activateVoice(token, meta.flowName, meta.busName, meta.gain, meta.deadlineFrame, meta.fadeInFrames, meta.fadeOutFrames, meta.fadeOutAtFrame, s)
		default:
		}
	}
}

func (e *Engine) activateVoice(token int64, flowName, bus string, gain float64, deadline, fadeInFrames, fadeOutFrames, fadeOutAtFrame int64, s stream.Stream) {
	converted := resample.NewConverter(s, e.format)
	v := &voice.Voice{
		SoundName:      "",
		BusName:        bus,
		Stream:         converted,
		Gain:           gain,
		StartDeadline:  deadline,
		FlowName:       flowName,
		Token:          token,
		FadeInFrames:   fadeInFrames,
		FadeOutFrames:  fadeOutFrames,
		FadeOutAtFrame: fadeOutAtFrame,
	}
	if _, ok := e.buses.Get(bus); !ok {
		e.buses.FadeTo(bus, 1, 0, queue.CurveLinear)
	}
	e.voices.Activate(v)
}

// handleVoiceDone is voice.Pool's completion callback: it tells the
// scheduler to advance that flow's continuation (Sequence/Parallel join,
// Loop repeat, or flow completion).
func (e *Engine) handleVoiceDone(v *voice.Voice, atFrame int64) {
	e.sched.Complete(v.Token, atFrame)
}

// killFlowVoices marks every voice belonging to flowName as finished
// in-place, without touching the scheduler's own bookkeeping (the caller
// is responsible for also calling Scheduler.Kill/removeFlow).
func (e *Engine) killFlowVoices(flowName string) {
	e.voices.KillFlow(flowName)
}

func (e *Engine) warn(msg string) {
	e.delegate.Warning(msg)
	e.metrics.IncWarningsEmitted()
}
