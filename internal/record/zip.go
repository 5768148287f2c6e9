package record

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
)

const (
	zipOutputDir = "out/"
	zipMetaDir   = "meta/"
)

// ZipWriter writes a single-file archive. Output entries live under out/
// named by digest; metadata files live under meta/.
//
// The archive is assembled in a temp file next to the destination and only
// renamed into place by Close, so an interrupted run never leaves a
// truncated archive at the canonical path.
type ZipWriter struct {
	path string

	mu     sync.Mutex
	file   *os.File
	zw     *zip.Writer
	seen   map[Ref]struct{}
	closed bool
}

// CreateZip starts a new archive that will be committed to path.
func CreateZip(path string) (*ZipWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("creating archive directory: %w", err)
	}
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return nil, fmt.Errorf("creating archive: %w", err)
	}
	return &ZipWriter{
		path: path,
		file: f,
		zw:   zip.NewWriter(f),
		seen: make(map[Ref]struct{}),
	}, nil
}

// Put stores data under out/ unless an entry with the same digest was
// already written to this archive.
func (w *ZipWriter) Put(data []byte) (Ref, error) {
	ref := RefOf(data)
	if ref.IsZero() {
		return ref, nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return "", ErrClosed
	}
	if _, ok := w.seen[ref]; ok {
		return ref, nil
	}
	if err := w.writeEntry(zipOutputDir+ref.Hex(), data); err != nil {
		return "", fmt.Errorf("writing archive entry %s: %w", ref, err)
	}
	w.seen[ref] = struct{}{}
	return ref, nil
}

// WriteMeta stores a metadata file under meta/.
func (w *ZipWriter) WriteMeta(name string, data []byte) error {
	if name == "" || strings.Contains(name, "/") {
		return fmt.Errorf("invalid metadata name %q", name)
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	if err := w.writeEntry(zipMetaDir+name, data); err != nil {
		return fmt.Errorf("writing archive metadata %q: %w", name, err)
	}
	return nil
}

func (w *ZipWriter) writeEntry(name string, data []byte) error {
	fw, err := w.zw.CreateHeader(&zip.FileHeader{Name: name, Method: zip.Deflate})
	if err != nil {
		return err
	}
	_, err = fw.Write(data)
	return err
}

// Close finalizes the archive and commits it to its destination path.
func (w *ZipWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrClosed
	}
	w.closed = true

	tmpName := w.file.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if err := w.zw.Close(); err != nil {
		_ = w.file.Close()
		return fmt.Errorf("finalizing archive: %w", err)
	}
	_ = w.file.Sync() // best-effort durability
	if err := w.file.Close(); err != nil {
		return fmt.Errorf("closing archive: %w", err)
	}
	if err := os.Rename(tmpName, w.path); err != nil {
		return fmt.Errorf("committing archive: %w", err)
	}
	committed = true
	return nil
}

// Abort discards the archive without committing it.
func (w *ZipWriter) Abort() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	w.closed = true
	_ = w.file.Close()
	return os.Remove(w.file.Name())
}

// ZipReader resolves refs against an archive written by ZipWriter.
// It is read-only and safe for concurrent use.
type ZipReader struct {
	rc      *zip.ReadCloser
	outputs map[Ref]*zip.File
	meta    map[string]*zip.File
	closed  atomic.Bool
}

// OpenZip opens the archive at path and indexes its entries.
func OpenZip(p string) (*ZipReader, error) {
	rc, err := zip.OpenReader(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("opening archive %q: %w", p, ErrNotFound)
		}
		return nil, fmt.Errorf("opening archive %q: %w: %v", p, ErrCorrupt, err)
	}
	r := &ZipReader{
		rc:      rc,
		outputs: make(map[Ref]*zip.File),
		meta:    make(map[string]*zip.File),
	}
	for _, f := range rc.File {
		switch {
		case strings.HasPrefix(f.Name, zipOutputDir):
			ref, err := ParseRef(refPrefix + strings.TrimPrefix(f.Name, zipOutputDir))
			if err != nil {
				_ = rc.Close()
				return nil, fmt.Errorf("indexing archive %q: %w: %v", p, ErrCorrupt, err)
			}
			r.outputs[ref] = f
		case strings.HasPrefix(f.Name, zipMetaDir):
			r.meta[path.Base(f.Name)] = f
		}
	}
	return r, nil
}

// Has checks if the archive index has an entry for ref.
func (r *ZipReader) Has(ref Ref) (bool, error) {
	if ref.IsZero() {
		return true, nil
	}
	_, ok := r.outputs[ref]
	return ok, nil
}

// Get reads and verifies the entry for ref.
func (r *ZipReader) Get(ref Ref) ([]byte, error) {
	if data, ok := resolveZero(ref); ok {
		return data, nil
	}
	if r.closed.Load() {
		return nil, notFound(ref, ErrClosed)
	}
	f, ok := r.outputs[ref]
	if !ok {
		return nil, notFound(ref, nil)
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, corrupt(ref, err)
	}
	if !ref.matches(data) {
		return nil, corrupt(ref, fmt.Errorf("content digest mismatch"))
	}
	return data, nil
}

// ReadMeta returns the metadata file name, or an error wrapping
// ErrNotFound.
func (r *ZipReader) ReadMeta(name string) ([]byte, error) {
	if r.closed.Load() {
		return nil, ErrClosed
	}
	f, ok := r.meta[name]
	if !ok {
		return nil, fmt.Errorf("archive metadata %q: %w", name, ErrNotFound)
	}
	data, err := readZipFile(f)
	if err != nil {
		return nil, fmt.Errorf("archive metadata %q: %w: %v", name, ErrCorrupt, err)
	}
	return data, nil
}

// Close releases the underlying file. Later lookups fail as unresolvable.
func (r *ZipReader) Close() error {
	if r.closed.Swap(true) {
		return nil
	}
	return r.rc.Close()
}

func readZipFile(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}
