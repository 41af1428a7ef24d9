// Package scheduler interprets a soundtrack's flow graph — the Scheduler /
// Flow runtime from spec.md §4.5. Each live flow owns an explicit frame
// stack (spec.md §9: "implement as an explicit frame stack per flow rather
// than host coroutines, to keep the scheduler advanceable block-by-block"),
// walked incrementally once per audio block rather than recursively all at
// once.
//
// Grounded on the teacher's game.Engine fixed-tick loop shape (seeded
// math/rand, one mutation pass per tick) generalized from a single global
// tick to one push-based Advance(currentFrame, blockFrames, horizonFrames)
// call per audio block that walks every live flow.
package scheduler

import (
	"hash/fnv"
	"math/rand/v2"
	"strconv"
	"strings"
	"time"

	"sms-engine/internal/flowcontrol"
	"sms-engine/internal/mixbus"
	"sms-engine/internal/queue"
	"sms-engine/internal/soundtrack"
)

// State is a live flow's lifecycle stage, per spec.md §3's Flow instance
// definition.
type State int

const (
	Starting State = iota
	Running
	Fading
	Stopped
)

// maxUnfoldDepth bounds the synchronous Random/Weighted/Conditional chase
// through enterNode, so a soundtrack with a node that references itself
// can't blow the goroutine stack; deeper than this is treated as a dead
// end: the flow is marked Stopped, and no warning is emitted.
const maxUnfoldDepth = 64

// frameKind tags which continuation a frame represents.
type frameKind int

const (
	kSequence frameKind = iota
	kLoop
	kParallel
)

// frame is one continuation in a flow's explicit stack: what to do next
// once the leaf(s) beneath it finish.
type frame struct {
	kind   frameKind
	parent *frame

	// kSequence and kParallel are both joins: every item/child is entered
	// up front (a Sequence's items at their own Offset-derived deadlines,
	// not one at a time on completion, so FadeIn/FadeOut overlap windows
	// between consecutive items are possible), and the frame resolves to
	// its parent once pending reaches 0.
	pending int

	// kLoop
	loopChild string
	remaining int // <0 = infinite
}

// pendingLeaf is one Sound node the interpreter has resolved down to,
// awaiting either emission (once it crosses the schedule horizon) or
// completion (once its voice finishes playing).
type pendingLeaf struct {
	token    int64
	flow     *FlowInstance
	soundKey string // sound name
	gain     float64
	deadline int64
	cont     *frame
	emitted  bool

	// fadeInFrames/fadeOutFrames/fadeOutAtFrame carry a Sequence item's
	// overlap envelope through to the Voice the engine activates for this
	// leaf (zero for any leaf that isn't a Sequence item).
	fadeInFrames   int64
	fadeOutFrames  int64
	fadeOutAtFrame int64
}

// FlowInstance is a live interpretation of one flow, per spec.md §3.
type FlowInstance struct {
	Name string
	Bus  string
	State
	Precached bool

	rng *rand.Rand

	pending []*pendingLeaf

	envGain     float64
	envTarget   float64
	envCurve    queue.Curve
	envTotal    int64
	envElapsed  int64
	envStopping bool // fade_flow_out armed: kill once envelope reaches target
}

// EnvelopeGain is the flow's current per-flow envelope value (spec.md
// §4.5: "affect the per-flow envelope, not the underlying buses"). Voice
// output is not scaled by it: start_flow's fade-in and fade_flow_to change
// only this value, not what the flow's voices sound like, and a fade-out's
// envelope only times the flow's teardown (AdvanceEnvelopes).
func (fi *FlowInstance) EnvelopeGain() float64 { return fi.envGain }

// VoiceRequest is one Sound leaf ready to be realized as a Voice: the
// engine owns opening/resampling the stream and activating it in the voice
// pool, this package only decides *what* and *when*.
type VoiceRequest struct {
	Token         int64
	FlowName      string
	SoundName     string
	BusName       string
	Gain          float64
	DeadlineFrame int64

	// FadeInFrames/FadeOutFrames/FadeOutAtFrame describe a Sequence item's
	// overlap envelope (spec.md §4.5); zero FadeOutFrames means no ramp —
	// the voice simply stops when its stream ends.
	FadeInFrames   int64
	FadeOutFrames  int64
	FadeOutAtFrame int64
}

// Scheduler owns every live FlowInstance and interprets the current
// Soundtrack's node graph against a FlowControl table.
type Scheduler struct {
	st       *soundtrack.Soundtrack
	controls *flowcontrol.Table
	seed     uint64

	flows  map[string]*FlowInstance
	active map[int64]*pendingLeaf
	nextID int64
}

// New creates a Scheduler over an initially empty soundtrack. Call
// ReplaceSoundtrack before starting any flow.
func New(controls *flowcontrol.Table, seed uint64) *Scheduler {
	return &Scheduler{
		st:       soundtrack.New(),
		controls: controls,
		seed:     seed,
		flows:    make(map[string]*FlowInstance),
		active:   make(map[int64]*pendingLeaf),
	}
}

// ReplaceSoundtrack swaps in st. Already-live flows keep running against
// whatever nodes happened to be live; newly entered nodes resolve against
// st, matching spec.md §4.2's "ownership of the new soundtrack value
// transfers to the engine" — the old value is simply dropped.
func (s *Scheduler) ReplaceSoundtrack(st *soundtrack.Soundtrack) {
	if st == nil {
		st = soundtrack.New()
	}
	s.st = st
}

// Soundtrack returns the live soundtrack (for copy_live_soundtrack-style
// snapshotting — callers must Clone() before handing it outside the audio
// thread, per spec.md invariant (v)).
func (s *Scheduler) Soundtrack() *soundtrack.Soundtrack { return s.st }

// IsLive reports whether name currently has a FlowInstance (started and not
// yet fully torn down).
func (s *Scheduler) IsLive(name string) bool {
	_, ok := s.flows[name]
	return ok
}

// LiveFlowNames returns every currently live flow name.
func (s *Scheduler) LiveFlowNames() []string {
	names := make([]string, 0, len(s.flows))
	for n := range s.flows {
		names = append(names, n)
	}
	return names
}

func samplesFor(sampleRate int, d time.Duration) int64 {
	n := int64(d.Seconds() * float64(sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

// Start instantiates name at its default bus and root node, arming a
// 0->vol per-flow envelope, per spec.md §4.5. Returns false if name is
// already live (callers must degenerate to FadeTo in that case, exactly as
// spec.md describes) or if name isn't a known flow.
func (s *Scheduler) Start(name string, vol float64, length time.Duration, curve queue.Curve, sampleRate int, atFrame int64) bool {
	if s.IsLive(name) {
		return false
	}
	fl, ok := s.st.Flows[name]
	if !ok {
		return false
	}

	bus := fl.DefaultBus
	if bus == "" {
		bus = mixbus.MainBusName
	}

	fi := &FlowInstance{
		Name:      name,
		Bus:       bus,
		State:     Starting,
		rng:       rand.New(rand.NewPCG(s.seed, fnv64(name))),
		envTarget: vol,
		envCurve:  curve,
		envTotal:  samplesFor(sampleRate, length),
	}
	if length <= 0 {
		fi.envGain = vol
		fi.envElapsed = fi.envTotal
	}
	s.flows[name] = fi
	s.enterNode(fi, fl.RootNode, nil, atFrame, 0)
	return true
}

func fnv64(s string) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s))
	return h.Sum64()
}

// FadeTo re-arms a live flow's envelope toward vol. No-op on an unknown or
// not-yet-live flow name (callers should Start instead).
func (s *Scheduler) FadeTo(name string, vol float64, length time.Duration, curve queue.Curve, sampleRate int) {
	fi, ok := s.flows[name]
	if !ok {
		return
	}
	s.armEnvelope(fi, vol, length, curve, sampleRate, false)
}

// FadePrefixedTo fades every live flow whose name begins with prefix.
func (s *Scheduler) FadePrefixedTo(prefix string, vol float64, length time.Duration, curve queue.Curve, sampleRate int) {
	for name, fi := range s.flows {
		if strings.HasPrefix(name, prefix) {
			s.armEnvelope(fi, vol, length, curve, sampleRate, false)
		}
	}
}

// FadeAllTo fades every live flow.
func (s *Scheduler) FadeAllTo(vol float64, length time.Duration, curve queue.Curve, sampleRate int) {
	for _, fi := range s.flows {
		s.armEnvelope(fi, vol, length, curve, sampleRate, false)
	}
}

// FadeOut fades name to 0 and arms teardown on completion.
func (s *Scheduler) FadeOut(name string, length time.Duration, curve queue.Curve, sampleRate int) {
	fi, ok := s.flows[name]
	if !ok {
		return
	}
	s.armEnvelope(fi, 0, length, curve, sampleRate, true)
}

func (s *Scheduler) FadePrefixedOut(prefix string, length time.Duration, curve queue.Curve, sampleRate int) {
	for name, fi := range s.flows {
		if strings.HasPrefix(name, prefix) {
			s.armEnvelope(fi, 0, length, curve, sampleRate, true)
		}
	}
}

func (s *Scheduler) FadeAllOut(length time.Duration, curve queue.Curve, sampleRate int) {
	for _, fi := range s.flows {
		s.armEnvelope(fi, 0, length, curve, sampleRate, true)
	}
}

func (s *Scheduler) armEnvelope(fi *FlowInstance, target float64, length time.Duration, curve queue.Curve, sampleRate int, stopping bool) {
	fi.envGain = fi.EnvelopeGain()
	fi.envTarget = target
	fi.envCurve = curve
	fi.envTotal = samplesFor(sampleRate, length)
	fi.envElapsed = 0
	fi.envStopping = stopping
	fi.State = Fading
	if length <= 0 {
		fi.envGain = target
		fi.envElapsed = fi.envTotal
	}
}

// Kill tears a flow down immediately, releasing every pending leaf. The
// caller is responsible for stopping the flow's already-activated voices
// (the scheduler only tracks leaves it hasn't yet turned into a Voice, or
// has but doesn't own the Voice itself).
func (s *Scheduler) Kill(name string) {
	s.removeFlow(name)
}

func (s *Scheduler) KillPrefixed(prefix string) {
	for name := range s.flows {
		if strings.HasPrefix(name, prefix) {
			s.removeFlow(name)
		}
	}
}

func (s *Scheduler) KillAll() {
	for name := range s.flows {
		s.removeFlow(name)
	}
}

func (s *Scheduler) removeFlow(name string) {
	fi, ok := s.flows[name]
	if !ok {
		return
	}
	for _, leaf := range fi.pending {
		delete(s.active, leaf.token)
	}
	delete(s.flows, name)
}

// AdvanceEnvelopes steps every live flow's per-flow volume envelope forward
// by blockFrames, returning the names of flows whose fade-out just
// completed (the engine must kill those flows' active voices and remove
// them from the scheduler).
func (s *Scheduler) AdvanceEnvelopes(blockFrames int64) []string {
	var stopped []string
	for name, fi := range s.flows {
		if fi.envTotal > 0 && fi.envElapsed < fi.envTotal {
			fi.envElapsed += blockFrames
			if fi.envElapsed >= fi.envTotal {
				fi.envElapsed = fi.envTotal
				fi.envGain = fi.envTarget
			} else {
				frac := float64(fi.envElapsed) / float64(fi.envTotal)
				fi.envGain = mixbus.ApplyCurve(fi.envCurve, fi.envGain, fi.envTarget, frac)
			}
		}
		done := fi.envTotal == 0 || fi.envElapsed >= fi.envTotal
		if done && fi.envStopping {
			stopped = append(stopped, name)
			s.removeFlow(name)
			continue
		}
		if done && fi.State == Starting {
			fi.State = Running
		}
	}
	return stopped
}

// Advance walks every live flow's pending leaves, emitting a VoiceRequest
// for each one whose deadline has crossed the schedule horizon
// (currentFrame+blockFrames+horizonFrames), per spec.md §4.5: "a voice's
// decoding is requested the moment it crosses the horizon, not when it
// starts playing."
func (s *Scheduler) Advance(currentFrame, blockFrames, horizonFrames int64) []VoiceRequest {
	var out []VoiceRequest
	limit := currentFrame + blockFrames + horizonFrames

	for _, fi := range s.flows {
		for _, leaf := range fi.pending {
			if leaf.emitted {
				continue
			}
			if leaf.deadline > limit {
				continue
			}
			leaf.emitted = true
			s.nextID++
			leaf.token = s.nextID
			s.active[leaf.token] = leaf

			out = append(out, VoiceRequest{
				Token:          leaf.token,
				FlowName:       fi.Name,
				SoundName:      leaf.soundKey,
				BusName:        fi.Bus,
				Gain:           leaf.gain,
				DeadlineFrame:  leaf.deadline,
				FadeInFrames:   leaf.fadeInFrames,
				FadeOutFrames:  leaf.fadeOutFrames,
				FadeOutAtFrame: leaf.fadeOutAtFrame,
			})
		}
	}
	return out
}

// Complete reports that the voice created for token has finished playing,
// advancing that leaf's continuation (joining a Sequence or Parallel, a Loop
// repeat, or flow completion). atFrame is the mix-cursor frame the voice
// ended at, used as the start point for whatever comes next (a Loop
// repeat's re-entry). Returns the owning flow's name and true if that flow
// just finished its whole graph (the engine has nothing left to do for it).
func (s *Scheduler) Complete(token int64, atFrame int64) (flowName string, finished bool) {
	leaf, ok := s.active[token]
	if !ok {
		return "", false
	}
	delete(s.active, token)
	fi := leaf.flow
	removePendingLeaf(fi, leaf)

	before := fi.State
	s.finishContinuation(fi, leaf.cont, atFrame, 0)
	if fi.State == Stopped {
		s.removeFlow(fi.Name)
		return fi.Name, true
	}
	_ = before
	return fi.Name, false
}

func removePendingLeaf(fi *FlowInstance, leaf *pendingLeaf) {
	for i, l := range fi.pending {
		if l == leaf {
			fi.pending = append(fi.pending[:i], fi.pending[i+1:]...)
			return
		}
	}
}

// finishContinuation implements what happens after one leaf under cont
// completes: join a Sequence or Parallel (both resolve to their parent once
// every item/child has completed), repeat or exit a Loop, or — when cont is
// nil, meaning the leaf was the flow's sole remaining activity — mark the
// flow Stopped.
func (s *Scheduler) finishContinuation(fi *FlowInstance, cont *frame, atFrame int64, depth int) {
	if depth > maxUnfoldDepth {
		fi.State = Stopped
		return
	}
	if cont == nil {
		if len(fi.pending) == 0 {
			fi.State = Stopped
		}
		return
	}

	switch cont.kind {
	case kSequence:
		cont.pending--
		if cont.pending <= 0 {
			s.finishContinuation(fi, cont.parent, atFrame, depth+1)
		}

	case kLoop:
		if cont.remaining > 0 {
			cont.remaining--
		}
		if cont.remaining != 0 {
			s.enterNode(fi, cont.loopChild, cont, atFrame, depth+1)
			return
		}
		s.finishContinuation(fi, cont.parent, atFrame, depth+1)

	case kParallel:
		cont.pending--
		if cont.pending <= 0 {
			s.finishContinuation(fi, cont.parent, atFrame, depth+1)
		}
	}
}

// enterNode resolves nodeName down to its next Sound leaf (or leaves, for
// Parallel), recursing synchronously through the structural node kinds
// (Random/Weighted/Conditional/Sequence-head/Loop-head/Parallel-fanout) —
// only Sound leaves ever sit on a flow's pending list waiting on the
// horizon or on voice completion.
func (s *Scheduler) enterNode(fi *FlowInstance, nodeName string, cont *frame, atFrame int64, depth int) {
	if depth > maxUnfoldDepth {
		s.finishContinuation(fi, cont, atFrame, depth)
		return
	}

	node, ok := s.st.Nodes[nodeName]
	if !ok {
		s.finishContinuation(fi, cont, atFrame, depth)
		return
	}

	switch node.Kind {
	case soundtrack.NodeSound:
		fi.pending = append(fi.pending, &pendingLeaf{
			flow: fi, soundKey: node.SoundName, gain: 1, deadline: atFrame, cont: cont,
		})

	case soundtrack.NodeSequence:
		seq, ok := s.st.Sequences[node.SequenceName]
		if !ok || len(seq.Items) == 0 {
			s.finishContinuation(fi, cont, atFrame, depth)
			return
		}
		// Every item is entered now, at its own Offset-derived deadline,
		// rather than one at a time as the previous item completes — that
		// one-at-a-time shape left no way for FadeIn/FadeOut to overlap
		// consecutive items, since item N+1 never started until item N's
		// voice had already fully finished.
		f := &frame{kind: kSequence, parent: cont, pending: len(seq.Items)}
		for i, item := range seq.Items {
			var fadeOutAt int64
			if item.FadeOut > 0 && i+1 < len(seq.Items) {
				fadeOutAt = atFrame + seq.Items[i+1].Offset - item.FadeOut
			} else {
				// The last item has no next item to overlap, so no fade-out.
				item.FadeOut = 0
			}
			s.enterSequenceItem(fi, f, atFrame, item, fadeOutAt)
		}

	case soundtrack.NodeRandom:
		if len(node.Children) == 0 {
			s.finishContinuation(fi, cont, atFrame, depth)
			return
		}
		pick := node.Children[fi.rng.IntN(len(node.Children))]
		s.enterNode(fi, pick, cont, atFrame, depth+1)

	case soundtrack.NodeWeighted:
		pick := weightedPick(fi.rng, node.WeightedChildren)
		if pick == "" {
			s.finishContinuation(fi, cont, atFrame, depth)
			return
		}
		s.enterNode(fi, pick, cont, atFrame, depth+1)

	case soundtrack.NodeConditional:
		branch := s.evalCondition(node.Condition)
		if branch == "" {
			s.finishContinuation(fi, cont, atFrame, depth)
			return
		}
		s.enterNode(fi, branch, cont, atFrame, depth+1)

	case soundtrack.NodeParallel:
		if len(node.Children) == 0 {
			s.finishContinuation(fi, cont, atFrame, depth)
			return
		}
		f := &frame{kind: kParallel, parent: cont, pending: len(node.Children)}
		for _, child := range node.Children {
			s.enterNode(fi, child, f, atFrame, depth+1)
		}

	case soundtrack.NodeLoop:
		f := &frame{kind: kLoop, parent: cont, loopChild: node.LoopChild, remaining: node.LoopCount}
		if node.LoopCount <= 0 {
			f.remaining = -1
		}
		s.enterNode(fi, node.LoopChild, f, atFrame, depth+1)
	}
}

func (s *Scheduler) enterSequenceItem(fi *FlowInstance, f *frame, startFrame int64, item soundtrack.SequenceItem, fadeOutAtFrame int64) {
	deadline := startFrame + item.Offset
	gain := item.Gain
	if gain == 0 {
		gain = 1
	}
	fi.pending = append(fi.pending, &pendingLeaf{
		flow: fi, soundKey: item.SoundName, gain: gain, deadline: deadline, cont: f,
		fadeInFrames: item.FadeIn, fadeOutFrames: item.FadeOut, fadeOutAtFrame: fadeOutAtFrame,
	})
}

func weightedPick(rng *rand.Rand, children []soundtrack.WeightedChild) string {
	var total float64
	for _, c := range children {
		total += c.Weight
	}
	if total <= 0 {
		return ""
	}
	r := rng.Float64() * total
	for _, c := range children {
		r -= c.Weight
		if r <= 0 {
			return c.NodeName
		}
	}
	return children[len(children)-1].NodeName
}

// evalCondition resolves a Condition against the live FlowControl table,
// returning Then or Else.
func (s *Scheduler) evalCondition(c soundtrack.Condition) string {
	v := s.controls.Get(c.Control)

	var match bool
	if v.Kind == flowcontrol.KindString {
		switch c.Operator {
		case "!=":
			match = v.Text != c.Value
		default: // "=="
			match = v.Text == c.Value
		}
	} else {
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			match = false
		} else {
			switch c.Operator {
			case "!=":
				match = v.Number != want
			case "<":
				match = v.Number < want
			case "<=":
				match = v.Number <= want
			case ">":
				match = v.Number > want
			case ">=":
				match = v.Number >= want
			default: // "=="
				match = v.Number == want
			}
		}
	}

	if match {
		return c.Then
	}
	return c.Else
}
