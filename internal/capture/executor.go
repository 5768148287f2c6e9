// Package capture runs test processes and captures their output live.
package capture

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"testweaver/internal/logger"
	"testweaver/internal/result"
	"testweaver/internal/suite"
	"testweaver/internal/testoutput"
)

// Executor runs one test case in an isolated environment.
//
// Only variables declared in the test's Env are visible to the command.
// The environment starts empty; host variables (HOME, PATH, ...) are not
// passed through.
type Executor struct {
	// WorkingDir is the directory where tests are executed.
	WorkingDir string

	// DefaultTimeout applies to tests that declare none. Zero disables it.
	DefaultTimeout time.Duration

	// WaitDelay bounds how long output is still collected after the test's
	// shell has exited or been killed. A background process that escaped
	// the process group (setsid, daemons) may hold the pipes open; once the
	// delay passes the pipes are closed and the test is reported with the
	// output captured so far.
	WaitDelay time.Duration

	// now is replaced in tests.
	now func() time.Time
}

// NewExecutor creates a new Executor with the given working directory.
func NewExecutor(workingDir string, defaultTimeout time.Duration) *Executor {
	return &Executor{
		WorkingDir:     workingDir,
		DefaultTimeout: defaultTimeout,
		WaitDelay:      DefaultWaitDelay,
		now:            time.Now,
	}
}

// DefaultWaitDelay is the WaitDelay used by NewExecutor.
const DefaultWaitDelay = 2 * time.Second

// Execute runs tc and returns its live result.
//
// Each stream is captured into its own testoutput.Child (or one shared
// Child when tc.Combined is set); the exec package copies each pipe on a
// single goroutine, so every Child has exactly one producer. Both are
// frozen before Execute returns.
//
// A test that exceeds its timeout is killed together with its process
// group and reported with StatusTimeout. Cancellation of ctx itself is an
// error.
func (e *Executor) Execute(ctx context.Context, tc suite.TestCase) (result.Live, error) {
	if tc.Run == "" {
		return result.Live{}, fmt.Errorf("test %q: run command is empty", tc.Name)
	}

	timeout := tc.Timeout
	if timeout == 0 {
		timeout = e.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	cmd := exec.Command("sh", "-c", tc.Run)
	cmd.Dir = e.WorkingDir
	cmd.Env = buildIsolatedEnv(tc.Env)
	// Own process group so the whole tree can be killed on timeout.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.WaitDelay = e.WaitDelay

	var output result.ExecutionOutput[*testoutput.Child]
	if tc.Combined {
		combined := testoutput.New()
		cmd.Stdout = combined
		cmd.Stderr = combined
		output = result.Combined(combined)
	} else {
		stdout, stderr := testoutput.New(), testoutput.New()
		cmd.Stdout = stdout
		cmd.Stderr = stderr
		output = result.Split(stdout, stderr)
	}

	now := e.now
	if now == nil {
		now = time.Now
	}
	start := now()
	if err := cmd.Start(); err != nil {
		return result.Live{}, fmt.Errorf("test %q: failed to start command: %w", tc.Name, err)
	}
	log := logger.With("test", tc.Name, "pid", cmd.Process.Pid)
	log.Debug("test started")

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	var waitErr error
	timedOut := false
	select {
	case <-runCtx.Done():
		killGroup(cmd.Process.Pid)
		waitErr = <-done
		if ctx.Err() != nil {
			freeze(output)
			return result.Live{}, fmt.Errorf("test %q: execution cancelled: %w", tc.Name, ctx.Err())
		}
		timedOut = true
		log.Warn("test timed out", "timeout", timeout)
	case waitErr = <-done:
	}
	elapsed := now().Sub(start)
	freeze(output)

	if errors.Is(waitErr, exec.ErrWaitDelay) {
		log.Warn("output pipes held open after exit; closed", "wait_delay", e.WaitDelay)
		waitErr = nil
	}

	exitCode := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return result.Live{}, fmt.Errorf("test %q: failed to execute command: %w", tc.Name, waitErr)
		}
		exitCode = exitErr.ExitCode()
	}

	res := result.Live{
		Name:     tc.Name,
		ExitCode: exitCode,
		Status:   result.StatusFor(exitCode, timedOut),
		Duration: elapsed,
		Output:   output,
	}
	log.Debug("test finished", "status", res.Status, "exit_code", exitCode, "duration", elapsed)
	return res, nil
}

// killGroup sends SIGKILL to the process group led by pid.
func killGroup(pid int) {
	if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		logger.Warnf("killing process group %d: %v", pid, err)
	}
}

// freeze closes the capture window; after this the outputs are read-only.
func freeze(out result.ExecutionOutput[*testoutput.Child]) {
	for _, s := range out.Streams() {
		s.Output.Freeze()
	}
}

// buildIsolatedEnv constructs an isolated environment from the declared
// variables. It returns an empty, non-nil slice when none are declared so
// that exec does not fall back to the host environment.
func buildIsolatedEnv(env map[string]string) []string {
	vars := make([]string, 0, len(env))
	for key, value := range env {
		vars = append(vars, fmt.Sprintf("%s=%s", key, value))
	}
	return vars
}
