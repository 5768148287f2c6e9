// Package record stores captured test output by content and resolves it
// again when an archived run is replayed.
//
// Content is keyed by its sha256 digest (a Ref). Stores are append-only for
// content: putting the same bytes twice yields the same Ref and never
// rewrites the existing entry.
package record

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
)

const refPrefix = "sha256:"

// Ref is a content-addressed reference, "sha256:" followed by 64 lowercase
// hex digits. The zero Ref stands for empty output and is never stored.
type Ref string

// RefOf computes the Ref for data. Empty data yields the zero Ref.
func RefOf(data []byte) Ref {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return Ref(refPrefix + hex.EncodeToString(sum[:]))
}

// ParseRef validates s and returns it as a Ref. The empty string is the
// zero Ref.
func ParseRef(s string) (Ref, error) {
	if s == "" {
		return "", nil
	}
	digest, ok := strings.CutPrefix(s, refPrefix)
	if !ok {
		return "", fmt.Errorf("invalid ref %q: missing %q prefix", s, refPrefix)
	}
	if len(digest) != sha256.Size*2 {
		return "", fmt.Errorf("invalid ref %q: digest must be %d hex characters", s, sha256.Size*2)
	}
	for _, ch := range digest {
		if (ch < '0' || ch > '9') && (ch < 'a' || ch > 'f') {
			return "", fmt.Errorf("invalid ref %q: digest is not lowercase hex", s)
		}
	}
	return Ref(s), nil
}

// IsZero reports whether r refers to empty output.
func (r Ref) IsZero() bool { return r == "" }

// Hex returns the digest without the algorithm prefix.
func (r Ref) Hex() string {
	return strings.TrimPrefix(string(r), refPrefix)
}

func (r Ref) String() string { return string(r) }

// matches reports whether data hashes to r.
func (r Ref) matches(data []byte) bool {
	return RefOf(data) == r
}
