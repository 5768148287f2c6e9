package testoutput

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

var (
	// ErrInvalidUTF8 is matched by every *DecodeError.
	ErrInvalidUTF8 = errors.New("output is not valid UTF-8")

	// ErrFrozen is returned by writes after the capture window closed.
	ErrFrozen = errors.New("output is frozen")
)

// DecodeError reports the first invalid byte sequence in an output stream.
type DecodeError struct {
	// Offset is the byte offset of the first invalid sequence.
	Offset int
	// Size is the total length of the undecodable output.
	Size int
}

func (e *DecodeError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: invalid byte at offset %d of %d", ErrInvalidUTF8.Error(), e.Offset, e.Size)
}

func (e *DecodeError) Unwrap() error { return ErrInvalidUTF8 }

// Decode converts data to a string, failing on the first invalid UTF-8
// sequence. Both representations decode through here so that the same
// bytes always produce the same outcome.
func Decode(data []byte) (string, error) {
	if utf8.Valid(data) {
		return string(data), nil
	}
	offset := 0
	for offset < len(data) {
		r, size := utf8.DecodeRune(data[offset:])
		if r == utf8.RuneError && size <= 1 {
			break
		}
		offset += size
	}
	return "", &DecodeError{Offset: offset, Size: len(data)}
}

// Lossy converts data to a string, replacing invalid sequences with U+FFFD.
// Renderers call it explicitly after Text reported a *DecodeError.
func Lossy(data []byte) string {
	return strings.ToValidUTF8(string(data), "�")
}
