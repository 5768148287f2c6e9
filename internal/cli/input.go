package cli

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
)

const (
	ExitSuccess           = 0
	ExitTestFailure       = 1
	ExitInvalidInvocation = 2
	ExitConfigError       = 3
	ExitInternalError     = 4
)

type Command string

const (
	CommandRun    Command = "run"
	CommandReplay Command = "replay"
)

const usage = `usage:
  testweaver run    --workdir DIR --suite FILE --archive PATH [--config FILE] [--jobs N]
                    [--junit FILE] [--trace FILE] [--baseline PATH] [--show-passing] [--no-durations]
  testweaver replay --workdir DIR --archive PATH [--config FILE] [--junit FILE]
                    [--trace FILE] [--diff PATH] [--show-passing] [--no-durations]`

// CLIInvocation is the canonicalized description of one command.
//
// All relative paths are resolved against WorkDir, which must be absolute.
// Tests started by run also execute in WorkDir.
type CLIInvocation struct {
	Command     Command
	WorkDir     string
	SuitePath   string
	ArchivePath string
	ConfigPath  string
	JUnitPath   string
	TracePath   string

	// BaselinePath is an archive the live run is compared against (run only).
	BaselinePath string
	// DiffPath is an archive the replayed run is compared against (replay only).
	DiffPath string

	// Jobs overrides the configured concurrency when positive.
	Jobs int

	ShowPassing   bool
	HideDurations bool
}

type InvocationError struct {
	ExitCode int
	Message  string
}

func (e *InvocationError) Error() string {
	if e == nil {
		return ""
	}
	return e.Message
}

func invalidInvocationf(format string, args ...any) error {
	return &InvocationError{ExitCode: ExitInvalidInvocation, Message: fmt.Sprintf(format, args...)}
}

// ParseInvocation parses a subcommand and its flags into a CLIInvocation.
//
// Environment variables and the process CWD are never consulted here;
// configuration overrides are applied later by config.Load.
func ParseInvocation(args []string) (CLIInvocation, error) {
	if len(args) == 0 {
		return CLIInvocation{}, invalidInvocationf("missing command\n%s", usage)
	}
	cmd := Command(args[0])
	switch cmd {
	case CommandRun, CommandReplay:
	case "help", "-h", "--help":
		return CLIInvocation{}, invalidInvocationf("%s", usage)
	default:
		return CLIInvocation{}, invalidInvocationf("unknown command %q\n%s", args[0], usage)
	}

	fs := flag.NewFlagSet("testweaver "+string(cmd), flag.ContinueOnError)
	fs.SetOutput(io.Discard) // parsing errors are returned, not printed

	var inv CLIInvocation
	inv.Command = cmd
	fs.StringVar(&inv.WorkDir, "workdir", "", "Absolute working directory. Required.")
	fs.StringVar(&inv.ArchivePath, "archive", "", "Archive path. Required.")
	fs.StringVar(&inv.ConfigPath, "config", "", "Config file (optional).")
	fs.StringVar(&inv.JUnitPath, "junit", "", "JUnit XML output path (optional).")
	fs.StringVar(&inv.TracePath, "trace", "", "Canonical run trace output path (optional).")
	fs.BoolVar(&inv.ShowPassing, "show-passing", false, "Print output of passing tests.")
	fs.BoolVar(&inv.HideDurations, "no-durations", false, "Omit durations from the summary.")
	if cmd == CommandRun {
		fs.StringVar(&inv.SuitePath, "suite", "", "Suite file. Required.")
		fs.StringVar(&inv.BaselinePath, "baseline", "", "Archive to compare the run against (optional).")
		fs.IntVar(&inv.Jobs, "jobs", 0, "Concurrent tests; 0 uses the configured value.")
	} else {
		fs.StringVar(&inv.DiffPath, "diff", "", "Archive to compare against (optional).")
	}

	if err := fs.Parse(args[1:]); err != nil {
		return CLIInvocation{}, invalidInvocationf("%v", err)
	}
	if fs.NArg() != 0 {
		return CLIInvocation{}, invalidInvocationf("unexpected positional arguments: %q", strings.Join(fs.Args(), " "))
	}

	if strings.TrimSpace(inv.WorkDir) == "" {
		return CLIInvocation{}, invalidInvocationf("--workdir is required")
	}
	inv.WorkDir = filepath.Clean(inv.WorkDir)
	if !filepath.IsAbs(inv.WorkDir) {
		return CLIInvocation{}, invalidInvocationf("--workdir must be an absolute path (got %q)", inv.WorkDir)
	}
	if inv.Jobs < 0 {
		return CLIInvocation{}, invalidInvocationf("--jobs must not be negative (got %d)", inv.Jobs)
	}
	if inv.ArchivePath == "" {
		return CLIInvocation{}, invalidInvocationf("--archive is required")
	}
	if cmd == CommandRun && inv.SuitePath == "" {
		return CLIInvocation{}, invalidInvocationf("--suite is required")
	}

	var err error
	for _, p := range []*string{&inv.ArchivePath, &inv.SuitePath} {
		if *p == "" {
			continue
		}
		if *p, err = resolveUnderWorkDir(inv.WorkDir, *p); err != nil {
			return CLIInvocation{}, err
		}
	}
	for _, p := range []*string{&inv.ConfigPath, &inv.JUnitPath, &inv.TracePath, &inv.BaselinePath, &inv.DiffPath} {
		if strings.TrimSpace(*p) == "" {
			*p = ""
			continue
		}
		if *p, err = resolveUnderWorkDir(inv.WorkDir, *p); err != nil {
			return CLIInvocation{}, err
		}
	}
	return inv, nil
}

func resolveUnderWorkDir(workDir, p string) (string, error) {
	if strings.TrimSpace(p) == "" {
		return "", invalidInvocationf("path must not be empty")
	}
	clean := filepath.Clean(p)
	if clean == "." {
		return "", invalidInvocationf("path must not be '.'")
	}
	if filepath.IsAbs(clean) {
		return clean, nil
	}
	return filepath.Clean(filepath.Join(workDir, clean)), nil
}

// ExitCode extracts a semantic exit code from an error.
// If the error is not a known invocation error, it returns ExitInternalError.
func ExitCode(err error) int {
	var invErr *InvocationError
	if errors.As(err, &invErr) && invErr != nil {
		if invErr.ExitCode != 0 {
			return invErr.ExitCode
		}
		return ExitInvalidInvocation
	}
	if err == nil {
		return ExitSuccess
	}
	return ExitInternalError
}
