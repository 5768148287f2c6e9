package record

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	dirObjects = "objects"
	dirMeta    = "meta"
)

// DirStore implements Store on the filesystem.
//
// Structure:
//
//	{Root}/
//	  objects/
//	    {hex[0:2]}/
//	      {hex}.blob
//	  meta/
//	    {name}
//
// Several runs may share one DirStore; identical output across runs is
// stored once.
//
// Entries are written to a temp file and renamed into place, so concurrent
// writers of the same content race harmlessly and readers never observe a
// partial blob.
type DirStore struct {
	// Root is the archive directory.
	Root string
}

// NewDirStore creates a filesystem-backed store rooted at root.
func NewDirStore(root string) *DirStore {
	return &DirStore{Root: root}
}

// Has checks if an entry exists for ref.
func (s *DirStore) Has(ref Ref) (bool, error) {
	if ref.IsZero() {
		return true, nil
	}
	_, err := os.Stat(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("checking archive entry: %w", err)
	}
	return true, nil
}

// Get reads the entry for ref and verifies its digest.
func (s *DirStore) Get(ref Ref) ([]byte, error) {
	if data, ok := resolveZero(ref); ok {
		return data, nil
	}
	data, err := os.ReadFile(s.blobPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, notFound(ref, nil)
		}
		return nil, corrupt(ref, err)
	}
	if !ref.matches(data) {
		return nil, corrupt(ref, fmt.Errorf("content digest mismatch"))
	}
	return data, nil
}

// Put stores data unless an entry for its digest already exists.
func (s *DirStore) Put(data []byte) (Ref, error) {
	ref := RefOf(data)
	if ref.IsZero() {
		return ref, nil
	}

	exists, err := s.Has(ref)
	if err != nil {
		return "", err
	}
	if exists {
		return ref, nil
	}

	path := s.blobPath(ref)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("creating archive directory: %w", err)
	}
	if err := writeFileAtomic(path, data, 0644); err != nil {
		return "", fmt.Errorf("writing archive entry: %w", err)
	}
	return ref, nil
}

// WriteMeta atomically writes a metadata file under meta/, replacing any
// previous version.
func (s *DirStore) WriteMeta(name string, data []byte) error {
	if name == "" || strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid metadata name %q", name)
	}
	dir := filepath.Join(s.Root, dirMeta)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("creating metadata directory: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(dir, name), data, 0644); err != nil {
		return fmt.Errorf("writing archive metadata %q: %w", name, err)
	}
	return nil
}

// ReadMeta returns the metadata file name, or an error wrapping
// ErrNotFound.
func (s *DirStore) ReadMeta(name string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.Root, dirMeta, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("archive metadata %q: %w", name, ErrNotFound)
		}
		return nil, fmt.Errorf("archive metadata %q: %w: %v", name, ErrCorrupt, err)
	}
	return data, nil
}

// Delete removes the entry for ref.
func (s *DirStore) Delete(ref Ref) error {
	if ref.IsZero() {
		return nil
	}
	if err := os.Remove(s.blobPath(ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing archive entry: %w", err)
	}
	return nil
}

// blobPath returns the file path for an entry. The first 2 hex characters
// are used as a prefix directory to avoid having too many entries in a
// single directory.
func (s *DirStore) blobPath(ref Ref) string {
	hexStr := ref.Hex()
	if len(hexStr) < 2 {
		return filepath.Join(s.Root, dirObjects, hexStr+".blob")
	}
	return filepath.Join(s.Root, dirObjects, hexStr[:2], hexStr+".blob")
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tmp, err := os.CreateTemp(dir, base+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	_ = tmp.Sync() // best-effort durability
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
