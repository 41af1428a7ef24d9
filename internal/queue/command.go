package queue

import (
	"time"

	"sms-engine/internal/soundtrack"
)

// Kind identifies which variant of Command is populated. Command is a
// single tagged record rather than a family of functions, per the design
// note in spec.md §9 ("prefer a variant type over parallel function
// families").
type Kind int

const (
	KindReplaceSoundtrack Kind = iota
	KindPrecache
	KindUnprecache
	KindUnprecacheAll

	KindControlSetNumber
	KindControlSetString
	KindControlClear
	KindControlClearPrefixed
	KindControlClearAll

	KindBusFadeTo
	KindBusFadePrefixedTo
	KindBusFadeAllTo
	KindBusFadeAllExceptMainTo
	KindBusFadeOut
	KindBusFadePrefixedOut
	KindBusFadeAllOut
	KindBusFadeAllExceptMainOut
	KindBusKill
	KindBusKillPrefixed
	KindBusKillAll
	KindBusKillAllExceptMain

	KindFlowStart
	KindFlowFadeTo
	KindFlowFadePrefixedTo
	KindFlowFadeAllTo
	KindFlowFadeOut
	KindFlowFadePrefixedOut
	KindFlowFadeAllOut
	KindFlowKill
	KindFlowKillPrefixed
	KindFlowKillAll

	// KindBatch carries the contents of a committed Transaction: the whole
	// slice is applied contiguously, with no other producer's command
	// interleaved, satisfying spec.md §4.1's atomicity requirement.
	KindBatch
)

// Curve identifies a fade envelope shape, per spec.md §6.
type Curve int

const (
	CurveExponential Curve = iota
	CurveLogarithmic
	CurveLinear
)

// Command is one entry in the producer-to-audio-thread queue. Exactly one
// group of fields is meaningful, selected by Kind; unused fields are zero.
// Names are plain Go strings — spec.md allows embedded NUL bytes, which a
// Go string carries without difficulty (unlike a C string).
type Command struct {
	Kind Kind

	Name   string // bus/flow/control name, or prefix for *Prefixed variants
	Number float64
	Text   string

	Volume float64
	Length time.Duration
	Curve  Curve

	Soundtrack  *soundtrack.Soundtrack
	QueueHint   int
	BatchedCmds []Command // populated only when Kind == KindBatch
}
