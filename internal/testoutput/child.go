// Package testoutput holds output captured from a running test process.
//
// A Child is written by exactly one producer while the process runs (the
// exec package's copy goroutine for one stream, or for both streams when
// they share a writer) and becomes read-only once Freeze is called.
// There is no internal lock: consumers must not read a Child until the
// producer has handed it over.
package testoutput

import (
	"sync"
)

// Child is the in-memory output of a single stream of one test execution.
//
// Text is decoded lazily on first request and cached; every later call
// returns exactly the same string or error.
type Child struct {
	buf    []byte
	frozen bool

	once sync.Once
	text string
	err  error
}

// New returns an empty, writable Child.
func New() *Child {
	return &Child{}
}

// FromBytes returns a frozen Child holding a copy of data.
func FromBytes(data []byte) *Child {
	c := &Child{frozen: true}
	if len(data) > 0 {
		c.buf = make([]byte, len(data))
		copy(c.buf, data)
	}
	return c
}

// Write appends p to the buffer. It fails with ErrFrozen once the capture
// window has been closed.
func (c *Child) Write(p []byte) (int, error) {
	if c == nil {
		return 0, ErrFrozen
	}
	if c.frozen {
		return 0, ErrFrozen
	}
	c.buf = append(c.buf, p...)
	return len(p), nil
}

// Freeze ends the capture window. It is idempotent.
func (c *Child) Freeze() {
	if c == nil {
		return
	}
	c.frozen = true
}

// Frozen reports whether the capture window has been closed.
func (c *Child) Frozen() bool {
	return c == nil || c.frozen
}

// Bytes returns the raw captured bytes. It never fails; the error is part of
// the shared output contract. The returned slice must not be modified.
func (c *Child) Bytes() ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	return c.buf, nil
}

// Text returns the output decoded as UTF-8. Invalid input yields a
// *DecodeError rather than replacement characters.
//
// Before Freeze the result is computed on every call and not cached, since
// the producer may still append.
func (c *Child) Text() (string, error) {
	if c == nil {
		return "", nil
	}
	if !c.frozen {
		return Decode(c.buf)
	}
	c.once.Do(func() {
		c.text, c.err = Decode(c.buf)
	})
	return c.text, c.err
}

// Len returns the number of captured bytes.
func (c *Child) Len() int {
	if c == nil {
		return 0
	}
	return len(c.buf)
}

// IsEmpty reports whether nothing was captured.
func (c *Child) IsEmpty() bool {
	return c.Len() == 0
}
