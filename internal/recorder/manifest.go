// Package recorder persists live test results into a content-addressed
// archive and loads them back as recorded results.
package recorder

import (
	"encoding/json"
	"fmt"
	"time"

	"testweaver/internal/record"
	"testweaver/internal/result"
)

// ManifestVersion is the manifest format written by this package.
const ManifestVersion = 1

// ManifestName is the metadata file holding the manifest.
const ManifestName = "manifest.json"

// Manifest describes one archived run. Output content lives in the archive
// under the refs listed here.
type Manifest struct {
	Version   int         `json:"version"`
	RunID     string      `json:"run_id"`
	Suite     string      `json:"suite,omitempty"`
	CreatedAt time.Time   `json:"created_at"`
	Tests     []TestEntry `json:"tests"`
}

// TestEntry is the archived form of one test result.
type TestEntry struct {
	Name       string            `json:"name"`
	ExitCode   int               `json:"exit_code"`
	Status     result.Status     `json:"status"`
	DurationMS int64             `json:"duration_ms"`
	Kind       result.OutputKind `json:"kind"`
	Stdout     *OutputEntry      `json:"stdout,omitempty"`
	Stderr     *OutputEntry      `json:"stderr,omitempty"`
	Combined   *OutputEntry      `json:"combined,omitempty"`
}

// OutputEntry locates one output stream in the archive.
type OutputEntry struct {
	Ref  record.Ref `json:"ref,omitempty"`
	Size int        `json:"size"`
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshaling manifest: %w", err)
	}
	return data, nil
}

// DecodeManifest parses and validates a manifest.
func DecodeManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("parsing manifest: %w", err)
	}
	if m.Version != ManifestVersion {
		return nil, fmt.Errorf("unsupported manifest version %d (expected %d)", m.Version, ManifestVersion)
	}
	seen := make(map[string]struct{}, len(m.Tests))
	for i, entry := range m.Tests {
		if err := entry.validate(); err != nil {
			return nil, fmt.Errorf("manifest test %d: %w", i, err)
		}
		if _, dup := seen[entry.Name]; dup {
			return nil, fmt.Errorf("manifest test %d: test %q: duplicate name", i, entry.Name)
		}
		seen[entry.Name] = struct{}{}
	}
	return &m, nil
}

func (e TestEntry) validate() error {
	if e.Name == "" {
		return fmt.Errorf("name is required")
	}
	var streams []*OutputEntry
	switch e.Kind {
	case result.KindSplit:
		if e.Stdout == nil || e.Stderr == nil {
			return fmt.Errorf("test %q: split output needs stdout and stderr", e.Name)
		}
		streams = []*OutputEntry{e.Stdout, e.Stderr}
	case result.KindCombined:
		if e.Combined == nil {
			return fmt.Errorf("test %q: combined output missing", e.Name)
		}
		streams = []*OutputEntry{e.Combined}
	default:
		return fmt.Errorf("test %q: unknown output kind %q", e.Name, e.Kind)
	}
	for _, s := range streams {
		if _, err := record.ParseRef(string(s.Ref)); err != nil {
			return fmt.Errorf("test %q: %w", e.Name, err)
		}
		if s.Ref.IsZero() != (s.Size == 0) {
			return fmt.Errorf("test %q: ref %q does not agree with size %d", e.Name, s.Ref, s.Size)
		}
	}
	return nil
}
