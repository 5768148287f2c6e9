// Package outputspec selects how test output is represented.
//
// There are exactly two modes:
//
//   - Live: output held in memory while a test process runs, as a
//     *testoutput.Child.
//   - Recorded: output stored in an archive and replayed later, as a
//     record.Output.
//
// Generic code takes a mode and its child output type together,
//
//	func Render[S outputspec.Spec[C], C outputspec.ChildOutput](...)
//
// and the Spec constraint only admits the pairs bound below. Instantiating
// Live with record.Output, or any type other than Live and Recorded as a
// mode, fails to compile. Further facets are added as further methods on
// the mode types, without touching callers that only use ChildOutput.
package outputspec

import (
	"testweaver/internal/record"
	"testweaver/internal/testoutput"
)

// ChildOutput is the capability set every output representation provides
// for one stream of one test execution.
type ChildOutput interface {
	// Bytes returns the raw content. Recorded output may fail to resolve.
	Bytes() ([]byte, error)
	// Text returns the content as UTF-8, or an error wrapping
	// testoutput.ErrInvalidUTF8. It never substitutes replacement text.
	Text() (string, error)
	// Len returns the content length in bytes.
	Len() int
	// IsEmpty reports whether the stream produced no output.
	IsEmpty() bool
}

// Spec is the mode selector. Its type set is closed to Live and Recorded,
// and childOutput pins each mode to exactly one representation.
type Spec[C ChildOutput] interface {
	Live | Recorded
	Name() string
	childOutput(C)
}

// Live is the mode for tests executing right now.
type Live struct{}

// Name returns "live".
func (Live) Name() string { return "live" }

func (Live) childOutput(*testoutput.Child) {}

// Recorded is the mode for runs replayed from an archive.
type Recorded struct{}

// Name returns "recorded".
func (Recorded) Name() string { return "recorded" }

func (Recorded) childOutput(record.Output) {}

// ModeName returns the name of mode S.
func ModeName[S Spec[C], C ChildOutput]() string {
	var s S
	return s.Name()
}

var (
	_ ChildOutput = (*testoutput.Child)(nil)
	_ ChildOutput = record.Output{}
)
