package recorder

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"testweaver/internal/record"
	"testweaver/internal/result"
	"testweaver/internal/testoutput"
)

// RunInfo identifies the run being archived.
type RunInfo struct {
	RunID     string
	Suite     string
	CreatedAt time.Time
}

// Record stores every output stream of results through w and returns the
// manifest describing them. Results are left untouched; callers may drop
// them afterwards to release the live buffers.
func Record(ctx context.Context, w record.Writer, info RunInfo, results []result.Live) (*Manifest, error) {
	if w == nil {
		return nil, fmt.Errorf("recording: no archive writer")
	}
	seen := make(map[string]struct{}, len(results))
	for _, res := range results {
		if _, dup := seen[res.Name]; dup {
			return nil, fmt.Errorf("recording: test %q: duplicate name", res.Name)
		}
		seen[res.Name] = struct{}{}
	}
	m := &Manifest{
		Version:   ManifestVersion,
		RunID:     info.RunID,
		Suite:     info.Suite,
		CreatedAt: info.CreatedAt.UTC(),
		Tests:     make([]TestEntry, len(results)),
	}

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(runtime.NumCPU())
	for i, res := range results {
		i, res := i, res
		group.Go(func() error {
			entry, err := recordOne(gctx, w, res)
			if err != nil {
				return fmt.Errorf("recording test %q: %w", res.Name, err)
			}
			m.Tests[i] = entry
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return m, nil
}

func recordOne(ctx context.Context, w record.Writer, res result.Live) (TestEntry, error) {
	entry := TestEntry{
		Name:       res.Name,
		ExitCode:   res.ExitCode,
		Status:     res.Status,
		DurationMS: res.Duration.Milliseconds(),
		Kind:       res.Output.Kind,
	}
	put := func(c *testoutput.Child) (*OutputEntry, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !c.Frozen() {
			return nil, fmt.Errorf("output is still being captured")
		}
		data, _ := c.Bytes()
		ref, err := w.Put(data)
		if err != nil {
			return nil, err
		}
		return &OutputEntry{Ref: ref, Size: len(data)}, nil
	}

	var err error
	switch res.Output.Kind {
	case result.KindSplit:
		if entry.Stdout, err = put(res.Output.Stdout); err != nil {
			return entry, fmt.Errorf("stdout: %w", err)
		}
		if entry.Stderr, err = put(res.Output.Stderr); err != nil {
			return entry, fmt.Errorf("stderr: %w", err)
		}
	case result.KindCombined:
		if entry.Combined, err = put(res.Output.Combined); err != nil {
			return entry, fmt.Errorf("output: %w", err)
		}
	default:
		return entry, fmt.Errorf("unknown output kind %q", res.Output.Kind)
	}
	return entry, nil
}

// Bind turns manifest entries into recorded results resolving against res.
// Nothing is read from the archive until a consumer asks for output.
func Bind(m *Manifest, res record.Resolver) []result.Recorded {
	if m == nil {
		return nil
	}
	out := make([]result.Recorded, len(m.Tests))
	for i, entry := range m.Tests {
		bind := func(e *OutputEntry) record.Output {
			if e == nil {
				return record.NewOutput("", 0, res)
			}
			return record.NewOutput(e.Ref, e.Size, res)
		}
		var output result.ExecutionOutput[record.Output]
		if entry.Kind == result.KindCombined {
			output = result.Combined(bind(entry.Combined))
		} else {
			output = result.Split(bind(entry.Stdout), bind(entry.Stderr))
		}
		out[i] = result.Recorded{
			Name:     entry.Name,
			ExitCode: entry.ExitCode,
			Status:   entry.Status,
			Duration: time.Duration(entry.DurationMS) * time.Millisecond,
			Output:   output,
		}
	}
	return out
}
