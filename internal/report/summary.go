// Package report renders, serializes and compares test results. Every
// function is written once over outputspec.Spec and serves live runs and
// replayed archives alike.
package report

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"testweaver/internal/outputspec"
	"testweaver/internal/result"
	"testweaver/internal/testoutput"
)

// Counts tallies results by status.
type Counts struct {
	Passed   int
	Failed   int
	TimedOut int
}

// Total returns the number of results counted.
func (c Counts) Total() int { return c.Passed + c.Failed + c.TimedOut }

// OK reports whether every test passed.
func (c Counts) OK() bool { return c.Failed == 0 && c.TimedOut == 0 }

// Tally counts results by status.
func Tally[S outputspec.Spec[C], C outputspec.ChildOutput](results []result.TestResult[S, C]) Counts {
	var c Counts
	for _, r := range results {
		switch r.Status {
		case result.StatusPass:
			c.Passed++
		case result.StatusTimeout:
			c.TimedOut++
		default:
			c.Failed++
		}
	}
	return c
}

// SummaryOptions controls terminal rendering.
type SummaryOptions struct {
	// ShowPassingOutput prints output for passing tests too.
	ShowPassingOutput bool
	// HideDurations omits timings, for reproducible output.
	HideDurations bool
}

// RenderedText is the printable form of one stream.
type RenderedText struct {
	Text string
	// Note explains degraded text (lossy decode, unavailable output).
	Note string
	// Unavailable is set when the output could not be retrieved at all.
	Unavailable bool
}

// RenderStream decodes out for display. Invalid UTF-8 is shown lossily with
// a note; unresolvable output is reported, never shown as empty.
func RenderStream[C outputspec.ChildOutput](out C) RenderedText {
	text, err := out.Text()
	if err == nil {
		return RenderedText{Text: text}
	}
	var decErr *testoutput.DecodeError
	if errors.As(err, &decErr) {
		raw, rawErr := out.Bytes()
		if rawErr == nil {
			return RenderedText{
				Text: testoutput.Lossy(raw),
				Note: fmt.Sprintf("not valid UTF-8 (first invalid byte at offset %d); shown with replacement characters", decErr.Offset),
			}
		}
		err = rawErr
	}
	return RenderedText{Note: fmt.Sprintf("output unavailable: %v", err), Unavailable: true}
}

// WriteSummary renders results for a terminal and returns the tally.
func WriteSummary[S outputspec.Spec[C], C outputspec.ChildOutput](w io.Writer, results []result.TestResult[S, C], opts SummaryOptions) (Counts, error) {
	ew := &errWriter{w: w}
	mode := outputspec.ModeName[S, C]()

	for _, r := range results {
		label := strings.ToUpper(string(r.Status))
		if opts.HideDurations {
			ew.printf("%-7s %s\n", label, r.Name)
		} else {
			ew.printf("%-7s %s (%s)\n", label, r.Name, formatDuration(r.Duration))
		}
		if r.Passed() && !opts.ShowPassingOutput {
			continue
		}
		if !r.Passed() && r.Status != result.StatusTimeout {
			ew.printf("  exit code: %d\n", r.ExitCode)
		}
		for _, s := range r.Output.Streams() {
			if s.Output.IsEmpty() {
				continue
			}
			rendered := RenderStream(s.Output)
			ew.printf("  --- %s (%d bytes) ---\n", s.Name, s.Output.Len())
			if rendered.Note != "" {
				ew.printf("  [%s]\n", rendered.Note)
			}
			if rendered.Unavailable {
				continue
			}
			for _, line := range strings.SplitAfter(rendered.Text, "\n") {
				if line == "" {
					continue
				}
				ew.printf("  %s", line)
				if !strings.HasSuffix(line, "\n") {
					ew.printf("\n")
				}
			}
		}
	}

	counts := Tally(results)
	ew.printf("\n%d tests (%s): %d passed, %d failed, %d timed out\n",
		counts.Total(), mode, counts.Passed, counts.Failed, counts.TimedOut)
	return counts, ew.err
}

// formatDuration shows d at the millisecond precision archives keep.
func formatDuration(d time.Duration) string {
	return d.Truncate(time.Millisecond).String()
}

// errWriter keeps the first write error and drops later writes.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
