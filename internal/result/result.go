// Package result defines per-test result records that are generic over the
// output mode, so the same record type carries live and replayed output.
package result

import (
	"time"

	"testweaver/internal/outputspec"
	"testweaver/internal/record"
	"testweaver/internal/testoutput"
)

// Status is the outcome of one test execution.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusTimeout Status = "timeout"
)

// StatusFor derives the status from an exit code.
func StatusFor(exitCode int, timedOut bool) Status {
	switch {
	case timedOut:
		return StatusTimeout
	case exitCode == 0:
		return StatusPass
	default:
		return StatusFail
	}
}

// OutputKind says how a test's output streams were captured.
type OutputKind string

const (
	// KindSplit keeps stdout and stderr apart.
	KindSplit OutputKind = "split"
	// KindCombined interleaves both streams into one.
	KindCombined OutputKind = "combined"
)

// Stream names used by renderers.
const (
	StreamStdout   = "stdout"
	StreamStderr   = "stderr"
	StreamCombined = "output"
)

// ExecutionOutput holds the child output of one test execution.
type ExecutionOutput[C outputspec.ChildOutput] struct {
	Kind OutputKind

	// Stdout and Stderr are set for KindSplit.
	Stdout C
	Stderr C

	// Combined is set for KindCombined.
	Combined C
}

// Split builds a split output.
func Split[C outputspec.ChildOutput](stdout, stderr C) ExecutionOutput[C] {
	return ExecutionOutput[C]{Kind: KindSplit, Stdout: stdout, Stderr: stderr}
}

// Combined builds a combined output.
func Combined[C outputspec.ChildOutput](out C) ExecutionOutput[C] {
	return ExecutionOutput[C]{Kind: KindCombined, Combined: out}
}

// NamedStream is one output stream and its display name.
type NamedStream[C outputspec.ChildOutput] struct {
	Name   string
	Output C
}

// Streams lists the streams present for the output kind, in display order.
func (o ExecutionOutput[C]) Streams() []NamedStream[C] {
	if o.Kind == KindCombined {
		return []NamedStream[C]{{Name: StreamCombined, Output: o.Combined}}
	}
	return []NamedStream[C]{
		{Name: StreamStdout, Output: o.Stdout},
		{Name: StreamStderr, Output: o.Stderr},
	}
}

// TestResult is the record of one test execution, parameterized over the
// output mode S and its bound child output type C.
type TestResult[S outputspec.Spec[C], C outputspec.ChildOutput] struct {
	Name     string
	ExitCode int
	Status   Status
	Duration time.Duration
	Output   ExecutionOutput[C]
}

// Mode returns the name of the result's output mode.
func (r TestResult[S, C]) Mode() string {
	return outputspec.ModeName[S, C]()
}

// Passed reports whether the test passed.
func (r TestResult[S, C]) Passed() bool {
	return r.Status == StatusPass
}

// Live is a result produced by running a test process.
type Live = TestResult[outputspec.Live, *testoutput.Child]

// Recorded is a result replayed from an archive.
type Recorded = TestResult[outputspec.Recorded, record.Output]
