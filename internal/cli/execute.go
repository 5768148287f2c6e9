package cli

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"testweaver/internal/capture"
	"testweaver/internal/config"
	"testweaver/internal/logger"
	"testweaver/internal/outputspec"
	"testweaver/internal/recorder"
	"testweaver/internal/report"
	"testweaver/internal/result"
	"testweaver/internal/suite"
	"testweaver/internal/trace"
)

type CLIResult struct {
	ExitCode int
	Counts   report.Counts
	// Equal is false when a requested comparison found differences.
	Equal bool
}

// Execute runs a canonical invocation and writes reports to stdout.
func Execute(ctx context.Context, inv CLIInvocation) (CLIResult, error) {
	return ExecuteWithOutput(ctx, inv, os.Stdout)
}

// ExecuteWithOutput runs a canonical invocation, writing the summary and any
// comparison to out. Test failures and differences map to ExitTestFailure;
// errors carry their own exit code.
func ExecuteWithOutput(ctx context.Context, inv CLIInvocation, out io.Writer) (CLIResult, error) {
	res := CLIResult{ExitCode: ExitInternalError}

	cfg, err := config.Load(inv.ConfigPath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	if inv.Jobs > 0 {
		cfg.Jobs = inv.Jobs
	}
	logger.SetLevel(cfg.LogLevel)

	switch inv.Command {
	case CommandRun:
		return executeRun(ctx, inv, cfg, out)
	case CommandReplay:
		return executeReplay(inv, out)
	default:
		res.ExitCode = ExitInvalidInvocation
		return res, fmt.Errorf("unknown command %q", inv.Command)
	}
}

func executeRun(ctx context.Context, inv CLIInvocation, cfg *config.Config, out io.Writer) (CLIResult, error) {
	res := CLIResult{ExitCode: ExitInternalError, Equal: true}

	s, err := suite.Load(inv.SuitePath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}

	// The baseline is opened before the run so that an archive saved to the
	// same path does not replace it first.
	var baseline *recorder.Archive
	if inv.BaselinePath != "" {
		baseline, err = recorder.Open(inv.BaselinePath)
		if err != nil {
			res.ExitCode = ExitConfigError
			return res, fmt.Errorf("baseline: %w", err)
		}
		defer baseline.Close()
	}

	var sink trace.Sink = trace.NopSink{}
	var traceRec *trace.Recorder
	if inv.TracePath != "" {
		traceRec = trace.NewRecorder()
		sink = traceRec
	}

	runner := capture.NewRunner(capture.NewExecutor(inv.WorkDir, cfg.Timeout), cfg.Jobs)
	runner.OnResult = func(r result.Live) {
		logger.Infof("finished %s: %s in %s", r.Name, r.Status, r.Duration)
		e, err := trace.EventFor(r)
		if err != nil {
			logger.Warnf("%v", err)
			return
		}
		trace.SafeRecord(sink, e)
	}
	logger.Infof("running %d tests from %s with %d jobs", len(s.Tests), inv.SuitePath, cfg.Jobs)
	results, err := runner.Run(ctx, s.Tests)
	if err != nil {
		return res, err
	}

	res.Counts, err = report.WriteSummary(out, results, summaryOptions(inv))
	if err != nil {
		return res, err
	}

	if _, err := recorder.Save(ctx, cfg.Store, inv.ArchivePath, recorder.NewRunInfo(s.Name), results); err != nil {
		return res, fmt.Errorf("saving archive: %w", err)
	}
	if inv.JUnitPath != "" {
		if err := writeJUnitFile(inv.JUnitPath, results, suiteName(s.Name, inv.SuitePath)); err != nil {
			return res, err
		}
	}
	if traceRec != nil {
		if err := writeTraceFile(inv.TracePath, traceRec.Trace(s.Name)); err != nil {
			return res, err
		}
	}
	if baseline != nil {
		rc := report.CompareRuns(results, baseline.Results())
		res.Equal, err = report.WriteComparison(out, rc, "run", "baseline")
		if err != nil {
			return res, err
		}
	}
	res.ExitCode = exitFor(res)
	return res, nil
}

func executeReplay(inv CLIInvocation, out io.Writer) (CLIResult, error) {
	res := CLIResult{ExitCode: ExitInternalError, Equal: true}

	a, err := recorder.Open(inv.ArchivePath)
	if err != nil {
		res.ExitCode = ExitConfigError
		return res, err
	}
	defer a.Close()
	results := a.Results()

	res.Counts, err = report.WriteSummary(out, results, summaryOptions(inv))
	if err != nil {
		return res, err
	}
	if inv.JUnitPath != "" {
		if err := writeJUnitFile(inv.JUnitPath, results, suiteName(a.Manifest.Suite, inv.ArchivePath)); err != nil {
			return res, err
		}
	}
	if inv.TracePath != "" {
		tr, err := trace.FromResults(a.Manifest.Suite, results)
		if err != nil {
			return res, err
		}
		if err := writeTraceFile(inv.TracePath, tr); err != nil {
			return res, err
		}
	}
	if inv.DiffPath != "" {
		other, err := recorder.Open(inv.DiffPath)
		if err != nil {
			res.ExitCode = ExitConfigError
			return res, fmt.Errorf("diff: %w", err)
		}
		defer other.Close()
		rc := report.CompareRuns(results, other.Results())
		res.Equal, err = report.WriteComparison(out, rc, inv.ArchivePath, inv.DiffPath)
		if err != nil {
			return res, err
		}
	}
	res.ExitCode = exitFor(res)
	return res, nil
}

func exitFor(res CLIResult) int {
	if !res.Counts.OK() || !res.Equal {
		return ExitTestFailure
	}
	return ExitSuccess
}

func summaryOptions(inv CLIInvocation) report.SummaryOptions {
	return report.SummaryOptions{ShowPassingOutput: inv.ShowPassing, HideDurations: inv.HideDurations}
}

func suiteName(name, path string) string {
	if name != "" {
		return name
	}
	return filepath.Base(path)
}

// writeJUnitFile renders the report fully before touching path, so a report
// that fails halfway leaves no partial file.
func writeJUnitFile[S outputspec.Spec[C], C outputspec.ChildOutput](path string, results []result.TestResult[S, C], name string) error {
	var buf bytes.Buffer
	if err := report.WriteJUnit(&buf, results, report.JUnitOptions{SuiteName: name}); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("junit: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("junit: %w", err)
	}
	return nil
}

func writeTraceFile(path string, tr trace.RunTrace) error {
	data, err := tr.CanonicalJSON()
	if err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("trace: %w", err)
	}
	logger.Debugf("wrote trace %s", path)
	return nil
}
