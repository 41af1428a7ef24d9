// Package flowcontrol holds the FlowControl table: named scalar/string
// variables the scheduler reads to pick branches (spec.md §3, §4.3).
package flowcontrol

import "strings"

// Kind tags which of Number/Text a Value holds.
type Kind int

const (
	KindNumber Kind = iota
	KindString
)

// Value is a FlowControl entry: either a float64 or a string, never both.
type Value struct {
	Kind   Kind
	Number float64
	Text   string
}

// Truthy reports whether the value is non-neutral; it returns false for a
// neutral/falsey value. Numbers are falsey at exactly zero; strings are
// falsey when empty. The zero Value, which is what an unset control reads
// as, is therefore falsey (spec.md §3: "reading an unset control yields
// an implementation-chosen neutral (falsey) value").
func (v Value) Truthy() bool {
	if v.Kind == KindString {
		return v.Text != ""
	}
	return v.Number != 0
}

// Table is the mutable control-variable store. It is written only by
// commands applied on the audio thread and read only by the scheduler on
// the audio thread (spec.md §4.3: "no further synchronization is required
// inside the table"), so Table carries no locking of its own.
type Table struct {
	values map[string]Value
}

// NewTable returns an empty control table.
func NewTable() *Table {
	return &Table{values: make(map[string]Value)}
}

// SetNumber sets name to a floating value.
func (t *Table) SetNumber(name string, v float64) {
	t.values[name] = Value{Kind: KindNumber, Number: v}
}

// SetString sets name to a string value.
func (t *Table) SetString(name, v string) {
	t.values[name] = Value{Kind: KindString, Text: v}
}

// Clear removes exactly one named control.
func (t *Table) Clear(name string) {
	delete(t.values, name)
}

// ClearPrefixed removes every control whose name strictly begins with
// prefix. An empty prefix matches every name (see SPEC_FULL.md §4.4's
// resolution of the equivalent mix-bus open question).
func (t *Table) ClearPrefixed(prefix string) {
	for name := range t.values {
		if strings.HasPrefix(name, prefix) {
			delete(t.values, name)
		}
	}
}

// ClearAll removes every control.
func (t *Table) ClearAll() {
	t.values = make(map[string]Value)
}

// Get returns the value for name, or the zero-valued neutral Value
// (Kind: KindNumber, Number: 0 — falsey) if name is unset.
func (t *Table) Get(name string) Value {
	if v, ok := t.values[name]; ok {
		return v
	}
	return Value{}
}

// Len returns the number of currently set controls, primarily for tests.
func (t *Table) Len() int {
	return len(t.values)
}
