package record

// Resolver is the read half of an archive.
//
// Get returns the content stored under ref, or a *ResolveError. It must
// never return empty bytes for a non-zero ref it cannot resolve.
type Resolver interface {
	Get(ref Ref) ([]byte, error)
}

// Writer is the write half of an archive. Put stores data and returns its
// Ref; storing identical data again returns the same Ref.
type Writer interface {
	Put(data []byte) (Ref, error)
}

// Store is a readable and writable content-addressed archive.
type Store interface {
	Resolver
	Writer

	// Has checks if an entry exists for ref.
	Has(ref Ref) (bool, error)

	// Delete removes the entry for ref. Deleting a missing entry is not an
	// error. Outputs still holding ref become unresolvable.
	Delete(ref Ref) error
}

// resolveZero handles the zero Ref shared by every store.
func resolveZero(ref Ref) ([]byte, bool) {
	if ref.IsZero() {
		return []byte{}, true
	}
	return nil, false
}
