package record

import (
	"fmt"

	"testweaver/internal/testoutput"
)

// Output is a single recorded output stream: a Ref plus a non-owning handle
// on the archive that can resolve it. Outputs are read-only views and may
// share a Ref with any number of other outputs.
type Output struct {
	ref  Ref
	size int
	res  Resolver
}

// NewOutput binds ref to the archive res. size is the content length noted
// when the output was recorded.
func NewOutput(ref Ref, size int, res Resolver) Output {
	return Output{ref: ref, size: size, res: res}
}

// Ref returns the content reference.
func (o Output) Ref() Ref { return o.ref }

// Bytes resolves the output against its archive.
func (o Output) Bytes() ([]byte, error) {
	if o.ref.IsZero() {
		return []byte{}, nil
	}
	if o.res == nil {
		return nil, notFound(o.ref, fmt.Errorf("output is not bound to an archive"))
	}
	return o.res.Get(o.ref)
}

// Text resolves the output and decodes it exactly like live output is
// decoded. Resolution failures are returned as they are, never as an empty
// string.
func (o Output) Text() (string, error) {
	data, err := o.Bytes()
	if err != nil {
		return "", err
	}
	return testoutput.Decode(data)
}

// Len returns the recorded content length.
func (o Output) Len() int { return o.size }

// IsEmpty reports whether the recorded output was empty.
func (o Output) IsEmpty() bool { return o.ref.IsZero() }
