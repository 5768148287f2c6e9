package report

import (
	"bytes"
	"fmt"
	"io"
	"sort"

	"github.com/pmezard/go-difflib/difflib"

	"testweaver/internal/outputspec"
	"testweaver/internal/result"
)

// StreamOutcome classifies one stream of a comparison.
type StreamOutcome string

const (
	StreamEqual       StreamOutcome = "equal"
	StreamDiffers     StreamOutcome = "differs"
	StreamUnavailable StreamOutcome = "unavailable"
)

// StreamDiff is the comparison of one named stream.
type StreamDiff struct {
	Stream  string
	Outcome StreamOutcome
	// Diff is a unified diff for text streams that differ. It is empty for
	// binary differences.
	Diff string
	// Err explains an unavailable stream.
	Err error
}

// Comparison is the result of comparing two results for the same test.
type Comparison struct {
	Name         string
	StatusA      result.Status
	StatusB      result.Status
	ExitCodeA    int
	ExitCodeB    int
	KindMismatch bool
	Streams      []StreamDiff
}

// Equal reports whether both results are indistinguishable.
func (c Comparison) Equal() bool {
	if c.StatusA != c.StatusB || c.ExitCodeA != c.ExitCodeB || c.KindMismatch {
		return false
	}
	for _, s := range c.Streams {
		if s.Outcome != StreamEqual {
			return false
		}
	}
	return true
}

// Compare compares two results that may come from different modes, for
// example a live run against a recorded baseline.
func Compare[SA outputspec.Spec[CA], CA outputspec.ChildOutput, SB outputspec.Spec[CB], CB outputspec.ChildOutput](
	a result.TestResult[SA, CA], b result.TestResult[SB, CB],
) Comparison {
	c := Comparison{
		Name:      a.Name,
		StatusA:   a.Status,
		StatusB:   b.Status,
		ExitCodeA: a.ExitCode,
		ExitCodeB: b.ExitCode,
	}
	if a.Output.Kind != b.Output.Kind {
		c.KindMismatch = true
		return c
	}
	streamsA, streamsB := a.Output.Streams(), b.Output.Streams()
	for i := range streamsA {
		c.Streams = append(c.Streams, compareStream(streamsA[i].Name, streamsA[i].Output, streamsB[i].Output))
	}
	return c
}

func compareStream[CA outputspec.ChildOutput, CB outputspec.ChildOutput](name string, a CA, b CB) StreamDiff {
	d := StreamDiff{Stream: name}
	rawA, err := a.Bytes()
	if err != nil {
		d.Outcome, d.Err = StreamUnavailable, fmt.Errorf("first: %w", err)
		return d
	}
	rawB, err := b.Bytes()
	if err != nil {
		d.Outcome, d.Err = StreamUnavailable, fmt.Errorf("second: %w", err)
		return d
	}
	if bytes.Equal(rawA, rawB) {
		d.Outcome = StreamEqual
		return d
	}
	d.Outcome = StreamDiffers

	textA, errA := a.Text()
	textB, errB := b.Text()
	if errA != nil || errB != nil {
		return d
	}
	diff, err := difflib.GetUnifiedDiffString(difflib.UnifiedDiff{
		A:        difflib.SplitLines(textA),
		B:        difflib.SplitLines(textB),
		FromFile: "a/" + name,
		ToFile:   "b/" + name,
		Context:  2,
	})
	if err == nil {
		d.Diff = diff
	}
	return d
}

// RunComparison pairs up two runs by test name.
type RunComparison struct {
	Compared []Comparison
	OnlyA    []string
	OnlyB    []string
}

// Equal reports whether both runs hold the same tests with equal results.
func (r RunComparison) Equal() bool {
	if len(r.OnlyA) > 0 || len(r.OnlyB) > 0 {
		return false
	}
	for _, c := range r.Compared {
		if !c.Equal() {
			return false
		}
	}
	return true
}

// CompareRuns compares two runs test by test. Tests are matched by name
// and reported in the first run's order.
func CompareRuns[SA outputspec.Spec[CA], CA outputspec.ChildOutput, SB outputspec.Spec[CB], CB outputspec.ChildOutput](
	a []result.TestResult[SA, CA], b []result.TestResult[SB, CB],
) RunComparison {
	byName := make(map[string]result.TestResult[SB, CB], len(b))
	for _, r := range b {
		byName[r.Name] = r
	}
	var rc RunComparison
	seen := make(map[string]struct{}, len(a))
	for _, ra := range a {
		seen[ra.Name] = struct{}{}
		rb, ok := byName[ra.Name]
		if !ok {
			rc.OnlyA = append(rc.OnlyA, ra.Name)
			continue
		}
		rc.Compared = append(rc.Compared, Compare(ra, rb))
	}
	for _, rb := range b {
		if _, ok := seen[rb.Name]; !ok {
			rc.OnlyB = append(rc.OnlyB, rb.Name)
		}
	}
	sort.Strings(rc.OnlyB)
	return rc
}

// WriteComparison renders a run comparison and returns whether the runs
// were equal.
func WriteComparison(w io.Writer, rc RunComparison, labelA, labelB string) (bool, error) {
	ew := &errWriter{w: w}
	for _, name := range rc.OnlyA {
		ew.printf("only in %s: %s\n", labelA, name)
	}
	for _, name := range rc.OnlyB {
		ew.printf("only in %s: %s\n", labelB, name)
	}
	for _, c := range rc.Compared {
		if c.Equal() {
			continue
		}
		ew.printf("%s:\n", c.Name)
		if c.StatusA != c.StatusB || c.ExitCodeA != c.ExitCodeB {
			ew.printf("  status: %s (exit %d) vs %s (exit %d)\n", c.StatusA, c.ExitCodeA, c.StatusB, c.ExitCodeB)
		}
		if c.KindMismatch {
			ew.printf("  output captured differently (split vs combined)\n")
		}
		for _, s := range c.Streams {
			switch s.Outcome {
			case StreamUnavailable:
				ew.printf("  %s: unavailable: %v\n", s.Stream, s.Err)
			case StreamDiffers:
				if s.Diff == "" {
					ew.printf("  %s: binary content differs\n", s.Stream)
				} else {
					ew.printf("%s", s.Diff)
				}
			}
		}
	}
	equal := rc.Equal()
	if equal {
		ew.printf("%s and %s are identical (%d tests)\n", labelA, labelB, len(rc.Compared))
	}
	return equal, ew.err
}
