package record

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means the archive has no entry for a Ref: it was never
	// written, was deleted, or the archive index is stale.
	ErrNotFound = errors.New("archive entry not found")

	// ErrCorrupt means an entry exists but cannot be read back as the
	// content its Ref names.
	ErrCorrupt = errors.New("archive entry corrupt")

	// ErrClosed is returned by operations on a closed archive.
	ErrClosed = errors.New("archive closed")
)

// ResolveError reports a Ref that could not be resolved. Kind is ErrNotFound
// or ErrCorrupt; errors.Is matches on it.
type ResolveError struct {
	Ref   Ref
	Kind  error
	Cause error
}

func (e *ResolveError) Error() string {
	if e == nil {
		return ""
	}
	if e.Cause == nil {
		return fmt.Sprintf("resolving %s: %s", e.Ref, e.Kind.Error())
	}
	return fmt.Sprintf("resolving %s: %s: %v", e.Ref, e.Kind.Error(), e.Cause)
}

func (e *ResolveError) Unwrap() error { return e.Kind }

func notFound(ref Ref, cause error) error {
	return &ResolveError{Ref: ref, Kind: ErrNotFound, Cause: cause}
}

func corrupt(ref Ref, cause error) error {
	return &ResolveError{Ref: ref, Kind: ErrCorrupt, Cause: cause}
}

// IsUnresolvable reports whether err means a Ref could not be resolved.
func IsUnresolvable(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, ErrCorrupt)
}
