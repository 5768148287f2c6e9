package trace

import (
	"fmt"
	"sync"

	"testweaver/internal/outputspec"
	"testweaver/internal/record"
	"testweaver/internal/result"
)

// Sink receives events as tests finish.
//
// Record must not panic and does not return errors; callers may treat it
// as a no-op.
type Sink interface {
	Record(event Event)
}

// NopSink discards all events.
type NopSink struct{}

func (NopSink) Record(Event) {}

// SafeRecord records an event, swallowing panics from a buggy sink.
func SafeRecord(s Sink, event Event) {
	if s == nil {
		return
	}
	defer func() {
		_ = recover()
	}()
	s.Record(event)
}

// Recorder is a concurrency-safe in-memory collector.
//
// Ordering is computed after collection, so the arrival order of events
// does not matter.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder { return &Recorder{} }

func (r *Recorder) Record(event Event) {
	if r == nil {
		return
	}
	defer func() {
		_ = recover()
	}()

	r.mu.Lock()
	r.events = append(r.events, event)
	r.mu.Unlock()
}

// Snapshot returns a point-in-time copy of all recorded events.
func (r *Recorder) Snapshot() []Event {
	if r == nil {
		return nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Trace builds a canonical RunTrace from the recorded events.
func (r *Recorder) Trace(suite string) RunTrace {
	tr := RunTrace{Suite: suite, Events: r.Snapshot()}
	tr.Canonicalize()
	return tr
}

// EventFor describes one result. Digests are computed from the content, so
// a live result and its archived counterpart describe identically. It
// fails when an output cannot be read.
func EventFor[S outputspec.Spec[C], C outputspec.ChildOutput](r result.TestResult[S, C]) (Event, error) {
	e := Event{Test: r.Name, ExitCode: r.ExitCode}
	switch r.Status {
	case result.StatusPass:
		e.Kind = EventTestPassed
	case result.StatusTimeout:
		e.Kind = EventTestTimedOut
	default:
		e.Kind = EventTestFailed
	}
	for _, s := range r.Output.Streams() {
		raw, err := s.Output.Bytes()
		if err != nil {
			return Event{}, fmt.Errorf("trace: test %q %s: %w", r.Name, s.Name, err)
		}
		ref := record.RefOf(raw)
		if ref.IsZero() {
			e.Outputs = append(e.Outputs, s.Name+"=empty")
			continue
		}
		e.Outputs = append(e.Outputs, s.Name+"="+ref.String())
	}
	return e, nil
}

// FromResults builds the trace of a finished run.
func FromResults[S outputspec.Spec[C], C outputspec.ChildOutput](suite string, results []result.TestResult[S, C]) (RunTrace, error) {
	rec := NewRecorder()
	for _, r := range results {
		e, err := EventFor(r)
		if err != nil {
			return RunTrace{}, err
		}
		SafeRecord(rec, e)
	}
	return rec.Trace(suite), nil
}
