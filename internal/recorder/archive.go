package recorder

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"testweaver/internal/logger"
	"testweaver/internal/record"
	"testweaver/internal/result"
)

// Archive kinds.
const (
	KindZip = "zip"
	KindDir = "dir"
)

type metaReader interface {
	record.Resolver
	ReadMeta(name string) ([]byte, error)
}

// Archive is an opened archived run.
type Archive struct {
	Path     string
	Manifest *Manifest

	reader metaReader
	close  func() error
}

// NewRunInfo returns RunInfo with a fresh run id.
func NewRunInfo(suiteName string) RunInfo {
	return RunInfo{RunID: uuid.NewString(), Suite: suiteName, CreatedAt: time.Now()}
}

// Save records results into a new archive at path. A zip archive replaces
// any previous file; a dir archive adds its content to the existing object
// store and replaces the manifest.
func Save(ctx context.Context, kind, path string, info RunInfo, results []result.Live) (*Manifest, error) {
	switch kind {
	case KindZip:
		return saveZip(ctx, path, info, results)
	case KindDir:
		return saveDir(ctx, path, info, results)
	default:
		return nil, fmt.Errorf("unknown archive kind %q", kind)
	}
}

func saveZip(ctx context.Context, path string, info RunInfo, results []result.Live) (*Manifest, error) {
	w, err := record.CreateZip(path)
	if err != nil {
		return nil, err
	}
	m, err := Record(ctx, w, info, results)
	if err != nil {
		_ = w.Abort()
		return nil, err
	}
	data, err := m.Encode()
	if err != nil {
		_ = w.Abort()
		return nil, err
	}
	if err := w.WriteMeta(ManifestName, data); err != nil {
		_ = w.Abort()
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	logger.Infof("recorded %d tests into %s (run %s)", len(m.Tests), path, m.RunID)
	return m, nil
}

func saveDir(ctx context.Context, path string, info RunInfo, results []result.Live) (*Manifest, error) {
	s := record.NewDirStore(path)
	m, err := Record(ctx, s, info, results)
	if err != nil {
		return nil, err
	}
	data, err := m.Encode()
	if err != nil {
		return nil, err
	}
	// The manifest goes last so a failed run never points at missing blobs.
	if err := s.WriteMeta(ManifestName, data); err != nil {
		return nil, err
	}
	logger.Infof("recorded %d tests into %s (run %s)", len(m.Tests), path, m.RunID)
	return m, nil
}

// Open opens the archive at path. Directories are dir archives; anything
// else is read as a zip archive.
func Open(path string) (*Archive, error) {
	fi, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("opening archive %q: %w", path, record.ErrNotFound)
		}
		return nil, fmt.Errorf("opening archive %q: %w", path, err)
	}

	a := &Archive{Path: path}
	if fi.IsDir() {
		a.reader = record.NewDirStore(path)
		a.close = func() error { return nil }
	} else {
		zr, err := record.OpenZip(path)
		if err != nil {
			return nil, err
		}
		a.reader = zr
		a.close = zr.Close
	}

	data, err := a.reader.ReadMeta(ManifestName)
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("opening archive %q: %w", path, err)
	}
	m, err := DecodeManifest(data)
	if err != nil {
		_ = a.close()
		return nil, fmt.Errorf("opening archive %q: %w", path, err)
	}
	a.Manifest = m
	logger.Debugf("opened archive %s: run %s with %d tests", path, m.RunID, len(m.Tests))
	return a, nil
}

// Resolver returns the archive's read handle.
func (a *Archive) Resolver() record.Resolver { return a.reader }

// Results returns the archived results bound to this archive. They stay
// resolvable until Close.
func (a *Archive) Results() []result.Recorded {
	return Bind(a.Manifest, a.reader)
}

// Close releases the archive.
func (a *Archive) Close() error {
	if a == nil || a.close == nil {
		return nil
	}
	return a.close()
}
