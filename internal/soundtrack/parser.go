package soundtrack

import "errors"

// ErrMalformed is returned by a Parser when the source text cannot be
// parsed. Per spec.md §4.2, parsing is all-or-nothing: on this error
// ParseInto must leave its destination byte-identical to its prior state.
var ErrMalformed = errors.New("soundtrack: malformed source")

// Parser turns soundtrack source text into a Soundtrack value. The actual
// text grammar is external to this engine (spec.md §1 scopes it out); this
// interface is the seam the engine depends on.
type Parser interface {
	// ParseNew parses text into a brand new Soundtrack.
	ParseNew(text []byte) (*Soundtrack, error)

	// ParseInto merges the result of parsing text into dst using Merge's
	// replace-by-name rule. On error, dst must be left unchanged.
	ParseInto(dst *Soundtrack, text []byte) error
}

// NopParser is a trivial Parser used by tests and by cmd/smsdemo when no
// real soundtrack-source grammar is wired in: any non-empty text is
// accepted as a single flow named by the text itself, rooted at a node of
// the same name playing a sound of the same name on "main". Empty text is
// treated as malformed, giving callers an easy way to exercise the parse
// error path end to end.
type NopParser struct{}

func (NopParser) ParseNew(text []byte) (*Soundtrack, error) {
	st := New()
	if err := (NopParser{}).ParseInto(st, text); err != nil {
		return nil, err
	}
	return st, nil
}

func (NopParser) ParseInto(dst *Soundtrack, text []byte) error {
	name := string(text)
	if name == "" {
		return ErrMalformed
	}

	staged := New()
	staged.Sounds[name] = SoundDescriptor{File: name, DefaultBus: "main"}
	staged.Nodes[name] = Node{Kind: NodeSound, SoundName: name}
	staged.Flows[name] = Flow{RootNode: name, DefaultBus: "main"}

	dst.Merge(staged)
	return nil
}
