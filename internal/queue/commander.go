package queue

import (
	"time"

	"sms-engine/internal/soundtrack"
)

// Sink is anything that can accept a single Command. Engine, Commander,
// and Transaction all satisfy it, giving every command family identical
// Engine/Commander/Transaction semantics from one implementation (spec.md
// §6's "every command has Engine/Commander/Transaction variants").
type Sink interface {
	Enqueue(cmd Command)
}

// Commander is a cheap, cloneable handle sharing one underlying
// RingBuffer, so non-audio-thread producers can enqueue commands without
// holding the Engine itself (spec.md §4.1).
type Commander struct {
	ring *RingBuffer
}

// NewCommander wraps ring in a Commander. Engine constructs the first one;
// callers obtain additional handles via Engine.NewCommander.
func NewCommander(ring *RingBuffer) Commander {
	return Commander{ring: ring}
}

func (c Commander) Enqueue(cmd Command) { c.ring.TryEnqueue(cmd) }

// BeginTransaction starts a Transaction sharing this Commander's queue.
func (c Commander) BeginTransaction(hint int) *Transaction {
	return &Transaction{ring: c.ring, buf: make([]Command, 0, hint)}
}

// Transaction accumulates commands into a private buffer and, on Commit,
// pushes them as one KindBatch entry so the audio thread applies them
// contiguously with nothing from another producer interleaved — spec.md
// §4.1's atomicity guarantee and invariant (iv).
type Transaction struct {
	ring *RingBuffer
	buf  []Command
	done bool
}

func (t *Transaction) Enqueue(cmd Command) {
	if t.done {
		return
	}
	t.buf = append(t.buf, cmd)
}

// Commit publishes every accumulated command as a single atomic batch.
// Committing (or aborting) twice is a no-op.
func (t *Transaction) Commit() {
	if t.done {
		return
	}
	t.done = true
	if len(t.buf) == 0 {
		return
	}
	t.ring.TryEnqueue(Command{Kind: KindBatch, BatchedCmds: t.buf})
}

// Abort discards the buffer without ever enqueueing anything.
func (t *Transaction) Abort() {
	t.done = true
	t.buf = nil
}

// --- convenience constructors, shared by Engine/Commander/Transaction callers ---

func ReplaceSoundtrack(st *soundtrack.Soundtrack) Command {
	return Command{Kind: KindReplaceSoundtrack, Soundtrack: st}
}

func Precache(name string) Command      { return Command{Kind: KindPrecache, Name: name} }
func Unprecache(name string) Command    { return Command{Kind: KindUnprecache, Name: name} }
func UnprecacheAll() Command            { return Command{Kind: KindUnprecacheAll} }

func ControlSetNumber(name string, v float64) Command {
	return Command{Kind: KindControlSetNumber, Name: name, Number: v}
}

func ControlSetString(name, v string) Command {
	return Command{Kind: KindControlSetString, Name: name, Text: v}
}

func ControlClear(name string) Command         { return Command{Kind: KindControlClear, Name: name} }
func ControlClearPrefixed(prefix string) Command {
	return Command{Kind: KindControlClearPrefixed, Name: prefix}
}
func ControlClearAll() Command { return Command{Kind: KindControlClearAll} }

func BusFadeTo(name string, volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeTo, Name: name, Volume: volume, Length: length, Curve: curve}
}

func BusFadePrefixedTo(prefix string, volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadePrefixedTo, Name: prefix, Volume: volume, Length: length, Curve: curve}
}

func BusFadeAllTo(volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeAllTo, Volume: volume, Length: length, Curve: curve}
}

func BusFadeAllExceptMainTo(volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeAllExceptMainTo, Volume: volume, Length: length, Curve: curve}
}

func BusFadeOut(name string, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeOut, Name: name, Length: length, Curve: curve}
}

func BusFadePrefixedOut(prefix string, length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadePrefixedOut, Name: prefix, Length: length, Curve: curve}
}

func BusFadeAllOut(length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeAllOut, Length: length, Curve: curve}
}

func BusFadeAllExceptMainOut(length time.Duration, curve Curve) Command {
	return Command{Kind: KindBusFadeAllExceptMainOut, Length: length, Curve: curve}
}

func BusKill(name string) Command             { return Command{Kind: KindBusKill, Name: name} }
func BusKillPrefixed(prefix string) Command   { return Command{Kind: KindBusKillPrefixed, Name: prefix} }
func BusKillAll() Command                     { return Command{Kind: KindBusKillAll} }
func BusKillAllExceptMain() Command           { return Command{Kind: KindBusKillAllExceptMain} }

func FlowStart(name string, volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowStart, Name: name, Volume: volume, Length: length, Curve: curve}
}

func FlowFadeTo(name string, volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadeTo, Name: name, Volume: volume, Length: length, Curve: curve}
}

func FlowFadePrefixedTo(prefix string, volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadePrefixedTo, Name: prefix, Volume: volume, Length: length, Curve: curve}
}

func FlowFadeAllTo(volume float64, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadeAllTo, Volume: volume, Length: length, Curve: curve}
}

func FlowFadeOut(name string, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadeOut, Name: name, Length: length, Curve: curve}
}

func FlowFadePrefixedOut(prefix string, length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadePrefixedOut, Name: prefix, Length: length, Curve: curve}
}

func FlowFadeAllOut(length time.Duration, curve Curve) Command {
	return Command{Kind: KindFlowFadeAllOut, Length: length, Curve: curve}
}

func FlowKill(name string) Command           { return Command{Kind: KindFlowKill, Name: name} }
func FlowKillPrefixed(prefix string) Command { return Command{Kind: KindFlowKillPrefixed, Name: prefix} }
func FlowKillAll() Command                   { return Command{Kind: KindFlowKillAll} }
