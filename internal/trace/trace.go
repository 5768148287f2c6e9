// Package trace builds the canonical record of what a run produced: one
// event per test carrying its outcome and the digest of every output
// stream. Timings, run ids and paths are left out, so a live run and a
// replay of its archive yield the same bytes and the same hash.
package trace

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
)

// RunTrace is the canonical record of one run of a suite.
//
// Events are ordered by Canonicalize, never by completion order, so
// concurrency does not leak into the encoding.
type RunTrace struct {
	Suite  string
	Events []Event
}

// EventKind discriminates Event. The string values are part of the
// canonical bytes; do not rename.
type EventKind string

const (
	EventTestPassed   EventKind = "TestPassed"
	EventTestFailed   EventKind = "TestFailed"
	EventTestTimedOut EventKind = "TestTimedOut"
)

// Event is the outcome of one test.
type Event struct {
	Kind EventKind

	// Test is the test name. Required.
	Test string

	// ExitCode is omitted from the encoding when zero.
	ExitCode int

	// Outputs lists "<stream>=<ref>" entries; empty streams are written as
	// "<stream>=empty".
	Outputs []string
}

// Validate checks basic invariants and returns a descriptive error.
func (t *RunTrace) Validate() error {
	if t == nil {
		return errors.New("trace is nil")
	}
	seen := make(map[string]struct{}, len(t.Events))
	for i, e := range t.Events {
		if kindOrder(e.Kind) == 0 {
			return fmt.Errorf("events[%d]: unknown kind %q", i, e.Kind)
		}
		if e.Test == "" {
			return fmt.Errorf("events[%d].test is required", i)
		}
		if _, dup := seen[e.Test]; dup {
			return fmt.Errorf("events[%d]: duplicate test %q", i, e.Test)
		}
		seen[e.Test] = struct{}{}
		for j, o := range e.Outputs {
			if o == "" {
				return fmt.Errorf("events[%d].outputs[%d] is empty", i, j)
			}
		}
	}
	return nil
}

// Canonicalize sorts outputs within each event and events by test name.
// Empty output lists are normalized to nil.
func (t *RunTrace) Canonicalize() {
	if t == nil {
		return
	}
	for i := range t.Events {
		if len(t.Events[i].Outputs) == 0 {
			t.Events[i].Outputs = nil
			continue
		}
		outs := make([]string, len(t.Events[i].Outputs))
		copy(outs, t.Events[i].Outputs)
		sort.Strings(outs)
		t.Events[i].Outputs = outs
	}
	sort.SliceStable(t.Events, func(i, j int) bool {
		a, b := t.Events[i], t.Events[j]
		if a.Test != b.Test {
			return a.Test < b.Test
		}
		return kindOrder(a.Kind) < kindOrder(b.Kind)
	})
}

func kindOrder(k EventKind) int {
	switch k {
	case EventTestPassed:
		return 10
	case EventTestFailed:
		return 20
	case EventTestTimedOut:
		return 30
	default:
		return 0
	}
}

// CanonicalJSON returns the canonical encoding of a canonicalized copy of t.
func (t RunTrace) CanonicalJSON() ([]byte, error) {
	c := RunTrace{Suite: t.Suite, Events: make([]Event, len(t.Events))}
	copy(c.Events, t.Events)
	c.Canonicalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(&c)
}

// Hash returns the sha256 hex digest of the canonical encoding.
func (t RunTrace) Hash() (string, error) {
	b, err := t.CanonicalJSON()
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// MarshalJSON fixes field order. It does not sort; see CanonicalJSON.
func (t RunTrace) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"suite":`)
	sb, _ := json.Marshal(t.Suite)
	buf.Write(sb)
	buf.WriteString(`,"events":[`)
	for i := range t.Events {
		if i > 0 {
			buf.WriteByte(',')
		}
		eb, err := json.Marshal(t.Events[i])
		if err != nil {
			return nil, err
		}
		buf.Write(eb)
	}
	buf.WriteString("]}")
	return buf.Bytes(), nil
}

// MarshalJSON fixes field order and omits empty optional fields.
func (e Event) MarshalJSON() ([]byte, error) {
	if e.Kind == "" {
		return nil, errors.New("kind is required")
	}
	var buf bytes.Buffer
	buf.WriteString(`{"kind":`)
	kb, _ := json.Marshal(string(e.Kind))
	buf.Write(kb)

	buf.WriteString(`,"test":`)
	tb, _ := json.Marshal(e.Test)
	buf.Write(tb)

	if e.ExitCode != 0 {
		fmt.Fprintf(&buf, `,"exitCode":%d`, e.ExitCode)
	}

	if len(e.Outputs) > 0 {
		buf.WriteString(`,"outputs":`)
		ob, _ := json.Marshal(e.Outputs)
		buf.Write(ob)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
