// Package mixbus implements the hierarchical gain-node tree described in
// spec.md §3/§4.4: a tree of named buses rooted at "main", each with its
// own fade envelope, composed by multiplying ancestor gains.
//
// Grounded on the teacher's internal/streaming.AudioMixer.GenerateFrame
// accumulate-then-scale shape, generalized from one flat mix buffer to a
// tree of buses with independent fades.
package mixbus

import (
	"strings"
	"time"

	"sms-engine/internal/queue"
)

// MainBusName is the one bus guaranteed to always exist (spec.md
// invariant (i)).
const MainBusName = "main"

// Bus is one node in the gain tree. Voices hold only the bus Name (a weak
// reference, per spec.md §9) and look it up fresh every block; a Bus
// pointer is never retained past one block by anything outside this
// package.
type Bus struct {
	Name     string
	Parent   *Bus
	Children []*Bus

	ownGain float64 // current gain of this bus alone, before ancestor composition

	fadeStart    float64
	fadeTarget   float64
	fadeCurve    queue.Curve
	fadeTotal    int64 // sample frames
	fadeElapsed  int64
	pendingKill  bool // fade_out: remove once the fade completes
	killNow      bool // kill: remove at the end of this block
}

// OwnGain returns this bus's own gain, not composed with ancestors.
func (b *Bus) OwnGain() float64 { return b.ownGain }

// EffectiveGain returns this bus's gain composed with every ancestor's
// gain, per spec.md §4.4 ("effective gain as product of ancestor gains").
func (b *Bus) EffectiveGain() float64 {
	g := b.ownGain
	for p := b.Parent; p != nil; p = p.Parent {
		g *= p.ownGain
	}
	return g
}

// Tree owns every live bus, keyed by name.
type Tree struct {
	sampleRate int
	buses      map[string]*Bus
	main       *Bus
}

// NewTree creates a tree containing only "main" at unity gain.
func NewTree(sampleRate int) *Tree {
	main := &Bus{Name: MainBusName, ownGain: 1}
	return &Tree{
		sampleRate: sampleRate,
		buses:      map[string]*Bus{MainBusName: main},
		main:       main,
	}
}

// Get returns the live bus named name, if any — the "weak reference"
// lookup spec.md §9 calls for.
func (t *Tree) Get(name string) (*Bus, bool) {
	b, ok := t.buses[name]
	return b, ok
}

// getOrCreate returns the bus named name, creating it as a direct child of
// main (at gain 0, per spec.md §4.4: "fade_to... creates the bus if
// absent") if it doesn't already exist.
func (t *Tree) getOrCreate(name string) *Bus {
	if b, ok := t.buses[name]; ok {
		return b
	}
	b := &Bus{Name: name, Parent: t.main, ownGain: 0}
	t.main.Children = append(t.main.Children, b)
	t.buses[name] = b
	return b
}

func (t *Tree) samplesFor(d time.Duration) int64 {
	n := int64(d.Seconds() * float64(t.sampleRate))
	if n < 1 {
		n = 1
	}
	return n
}

// FadeTo arms a fade from the bus's current own gain to target over
// length, along curve, creating the bus if it didn't exist.
func (t *Tree) FadeTo(name string, target float64, length time.Duration, curve queue.Curve) {
	b := t.getOrCreate(name)
	t.armFade(b, target, length, curve, false)
}

func (t *Tree) armFade(b *Bus, target float64, length time.Duration, curve queue.Curve, andRemove bool) {
	b.fadeStart = b.ownGain
	b.fadeTarget = target
	b.fadeCurve = curve
	b.fadeTotal = t.samplesFor(length)
	b.fadeElapsed = 0
	b.pendingKill = andRemove
	if length <= 0 {
		b.ownGain = target
		b.fadeElapsed = b.fadeTotal
	}
}

// FadeOut is FadeTo(name, 0, ...) plus scheduling removal once the fade
// completes (spec.md §4.4).
func (t *Tree) FadeOut(name string, length time.Duration, curve queue.Curve) {
	b := t.getOrCreate(name)
	t.armFade(b, 0, length, curve, true)
}

// Kill removes name immediately: the current block already sees zero
// gain, and the bus is dropped from the live set at the end of this block
// (spec.md §4.4: "kill(name) removes the bus immediately").
func (t *Tree) Kill(name string) {
	b, ok := t.buses[name]
	if !ok {
		return
	}
	b.ownGain = 0
	b.fadeTotal = 0
	b.fadeElapsed = 0
	b.killNow = true
}

// liveNames returns every currently live bus name, optionally filtered.
func (t *Tree) liveNames(filter func(name string) bool) []string {
	names := make([]string, 0, len(t.buses))
	for name := range t.buses {
		if filter == nil || filter(name) {
			names = append(names, name)
		}
	}
	return names
}

func hasPrefix(prefix string) func(string) bool {
	return func(name string) bool { return strings.HasPrefix(name, prefix) }
}

func notMain(name string) bool { return name != MainBusName }

// FadePrefixedTo fades every currently live bus whose name strictly
// begins with prefix. Per SPEC_FULL.md §4.4, an empty prefix matches every
// name, main included.
func (t *Tree) FadePrefixedTo(prefix string, target float64, length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(hasPrefix(prefix)) {
		t.armFade(t.buses[name], target, length, curve, false)
	}
}

// FadeAllTo fades every currently live bus, main included.
func (t *Tree) FadeAllTo(target float64, length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(nil) {
		t.armFade(t.buses[name], target, length, curve, false)
	}
}

// FadeAllExceptMainTo fades every currently live bus except main.
func (t *Tree) FadeAllExceptMainTo(target float64, length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(notMain) {
		t.armFade(t.buses[name], target, length, curve, false)
	}
}

func (t *Tree) FadePrefixedOut(prefix string, length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(hasPrefix(prefix)) {
		t.armFade(t.buses[name], 0, length, curve, true)
	}
}

func (t *Tree) FadeAllOut(length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(nil) {
		t.armFade(t.buses[name], 0, length, curve, true)
	}
}

func (t *Tree) FadeAllExceptMainOut(length time.Duration, curve queue.Curve) {
	for _, name := range t.liveNames(notMain) {
		t.armFade(t.buses[name], 0, length, curve, true)
	}
}

func (t *Tree) KillPrefixed(prefix string) {
	for _, name := range t.liveNames(hasPrefix(prefix)) {
		t.Kill(name)
	}
}

func (t *Tree) KillAll() {
	for _, name := range t.liveNames(nil) {
		t.Kill(name)
	}
}

func (t *Tree) KillAllExceptMain() {
	for _, name := range t.liveNames(notMain) {
		t.Kill(name)
	}
}

// AdvanceBlock steps every live bus's fade forward by blockFrames sample
// frames, then removes any bus whose fade-out has completed or that was
// killed this block. Call once per audio block, after commands for the
// block have been applied and before voices read EffectiveGain.
func (t *Tree) AdvanceBlock(blockFrames int64) {
	var toRemove []string

	for name, b := range t.buses {
		if b.fadeTotal > 0 && b.fadeElapsed < b.fadeTotal {
			b.fadeElapsed += blockFrames
			if b.fadeElapsed >= b.fadeTotal {
				b.fadeElapsed = b.fadeTotal
				b.ownGain = b.fadeTarget
			} else {
				frac := float64(b.fadeElapsed) / float64(b.fadeTotal)
				b.ownGain = apply(b.fadeCurve, b.fadeStart, b.fadeTarget, frac)
			}
		}

		fadeDone := b.fadeTotal == 0 || b.fadeElapsed >= b.fadeTotal
		if name != MainBusName && ((b.pendingKill && fadeDone) || b.killNow) {
			toRemove = append(toRemove, name)
		}
	}

	for _, name := range toRemove {
		t.remove(name)
	}
}

func (t *Tree) remove(name string) {
	b, ok := t.buses[name]
	if !ok {
		return
	}
	delete(t.buses, name)
	if b.Parent != nil {
		siblings := b.Parent.Children
		for i, c := range siblings {
			if c == b {
				b.Parent.Children = append(siblings[:i], siblings[i+1:]...)
				break
			}
		}
	}
}

// PostOrder returns every live bus with children appearing before their
// parent, so voice-pool accumulation can sum child buses into parents
// before each bus's own gain is applied (spec.md §4.6: "propagate each
// bus's accumulator up through parent gains").
func (t *Tree) PostOrder() []*Bus {
	visited := make(map[*Bus]bool, len(t.buses))
	order := make([]*Bus, 0, len(t.buses))

	var visit func(b *Bus)
	visit = func(b *Bus) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, c := range b.Children {
			visit(c)
		}
		order = append(order, b)
	}

	for _, b := range t.buses {
		visit(b)
	}
	return order
}

// Main returns the root bus.
func (t *Tree) Main() *Bus { return t.main }
