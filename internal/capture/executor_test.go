package capture

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"testweaver/internal/result"
	"testweaver/internal/suite"
	"testweaver/internal/testoutput"
)

func newTestExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(t.TempDir(), 10*time.Second)
}

func TestExecute_CapturesStdout(t *testing.T) {
	e := newTestExecutor(t)
	res, err := e.Execute(context.Background(), suite.TestCase{Name: "hello", Run: `printf 'hello\n'`})
	require.NoError(t, err)

	assert.Equal(t, result.StatusPass, res.Status)
	assert.Equal(t, result.KindSplit, res.Output.Kind)
	text, err := res.Output.Stdout.Text()
	require.NoError(t, err)
	assert.Equal(t, "hello\n", text)
	assert.True(t, res.Output.Stderr.IsEmpty())
	assert.True(t, res.Output.Stdout.Frozen())
}

func TestExecute_InvalidUTF8(t *testing.T) {
	e := newTestExecutor(t)
	res, err := e.Execute(context.Background(), suite.TestCase{Name: "bytes", Run: `printf 'a\377b'`})
	require.NoError(t, err)

	_, err = res.Output.Stdout.Text()
	assert.True(t, errors.Is(err, testoutput.ErrInvalidUTF8))
	raw, err := res.Output.Stdout.Bytes()
	require.NoError(t, err)
	assert.Equal(t, []byte{'a', 0xFF, 'b'}, raw)
}

func TestExecute_SplitAndCombined(t *testing.T) {
	e := newTestExecutor(t)
	run := `printf out; printf err >&2; exit 3`

	split, err := e.Execute(context.Background(), suite.TestCase{Name: "split", Run: run})
	require.NoError(t, err)
	assert.Equal(t, 3, split.ExitCode)
	assert.Equal(t, result.StatusFail, split.Status)
	stderr, _ := split.Output.Stderr.Text()
	assert.Equal(t, "err", stderr)

	combined, err := e.Execute(context.Background(), suite.TestCase{Name: "combined", Run: run, Combined: true})
	require.NoError(t, err)
	assert.Equal(t, result.KindCombined, combined.Output.Kind)
	text, _ := combined.Output.Combined.Text()
	assert.Equal(t, "outerr", text)
}

func TestExecute_EnvironmentIsolation(t *testing.T) {
	t.Setenv("TESTWEAVER_SECRET", "leaked")
	e := newTestExecutor(t)

	res, err := e.Execute(context.Background(), suite.TestCase{
		Name: "env",
		Run:  `printf '%s|%s' "$TESTWEAVER_SECRET" "$DECLARED"`,
		Env:  map[string]string{"DECLARED": "yes"},
	})
	require.NoError(t, err)
	text, _ := res.Output.Stdout.Text()
	assert.Equal(t, "|yes", text)
}

func TestExecute_WorkingDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/marker.txt", []byte("here"), 0644))
	e := NewExecutor(dir, time.Second*10)

	res, err := e.Execute(context.Background(), suite.TestCase{Name: "cwd", Run: "cat marker.txt"})
	require.NoError(t, err)
	text, _ := res.Output.Stdout.Text()
	assert.Equal(t, "here", text)
}

func TestExecute_Timeout(t *testing.T) {
	e := newTestExecutor(t)
	start := time.Now()
	res, err := e.Execute(context.Background(), suite.TestCase{
		Name:    "slow",
		Run:     `printf partial; sleep 30`,
		Timeout: 200 * time.Millisecond,
	})
	require.NoError(t, err)
	assert.Less(t, time.Since(start), 10*time.Second)
	assert.Equal(t, result.StatusTimeout, res.Status)
	text, _ := res.Output.Stdout.Text()
	assert.Equal(t, "partial", text)
}

func TestExecute_DetachedChildDoesNotBlock(t *testing.T) {
	if _, err := exec.LookPath("setsid"); err != nil {
		t.Skip("setsid not available")
	}
	e := newTestExecutor(t)
	e.WaitDelay = 300 * time.Millisecond

	cases := map[string]struct {
		timeout time.Duration
		want    result.Status
	}{
		"timed out": {timeout: 500 * time.Millisecond, want: result.StatusTimeout},
		"exited":    {want: result.StatusPass},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			run := `setsid sleep 5 & echo hi`
			if tc.timeout > 0 {
				run += `; sleep 20`
			}
			start := time.Now()
			res, err := e.Execute(context.Background(), suite.TestCase{Name: "detached", Run: run, Timeout: tc.timeout})
			require.NoError(t, err)
			assert.Less(t, time.Since(start), 4*time.Second)
			assert.Equal(t, tc.want, res.Status)
			text, err := res.Output.Stdout.Text()
			require.NoError(t, err)
			assert.Equal(t, "hi\n", text)
		})
	}
}

func TestExecute_Cancelled(t *testing.T) {
	e := newTestExecutor(t)
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()
	_, err := e.Execute(ctx, suite.TestCase{Name: "cancel", Run: "sleep 30"})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecute_EmptyRun(t *testing.T) {
	e := newTestExecutor(t)
	_, err := e.Execute(context.Background(), suite.TestCase{Name: "empty"})
	assert.Error(t, err)
}

func TestBuildIsolatedEnv_EmptyIsNotNil(t *testing.T) {
	env := buildIsolatedEnv(nil)
	assert.NotNil(t, env)
	assert.Empty(t, env)
}

type fakeExecutor struct {
	mu      sync.Mutex
	active  int
	peak    int
	failFor string
	started []string
}

func (f *fakeExecutor) Execute(ctx context.Context, tc suite.TestCase) (result.Live, error) {
	f.mu.Lock()
	f.started = append(f.started, tc.Name)
	f.active++
	if f.active > f.peak {
		f.peak = f.active
	}
	f.mu.Unlock()
	defer func() {
		f.mu.Lock()
		f.active--
		f.mu.Unlock()
	}()

	if tc.Name == f.failFor {
		return result.Live{}, errors.New("spawn failed")
	}
	time.Sleep(10 * time.Millisecond)
	out := testoutput.FromBytes([]byte(tc.Name))
	return result.Live{Name: tc.Name, Status: result.StatusPass, Output: result.Combined(out)}, nil
}

func TestRunner_OrderAndLimit(t *testing.T) {
	fake := &fakeExecutor{}
	r := NewRunner(fake, 2)
	var seen []string
	r.OnResult = func(res result.Live) { seen = append(seen, res.Name) }

	tests := []suite.TestCase{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}, {Name: "e"}}
	results, err := r.Run(context.Background(), tests)
	require.NoError(t, err)
	require.Len(t, results, len(tests))
	for i, tc := range tests {
		assert.Equal(t, tc.Name, results[i].Name)
	}
	assert.LessOrEqual(t, fake.peak, 2)
	assert.Len(t, seen, len(tests))
}

func TestRunner_ExecutionErrorStopsRun(t *testing.T) {
	r := NewRunner(&fakeExecutor{failFor: "b"}, 1)
	_, err := r.Run(context.Background(), []suite.TestCase{{Name: "a"}, {Name: "b"}, {Name: "c"}})
	assert.Error(t, err)
}

func TestRunner_NoTestStartsAfterError(t *testing.T) {
	fake := &fakeExecutor{failFor: "a"}
	r := NewRunner(fake, 1)
	_, err := r.Run(context.Background(), []suite.TestCase{{Name: "a"}, {Name: "b"}, {Name: "c"}, {Name: "d"}})
	require.Error(t, err)
	assert.Equal(t, []string{"a"}, fake.started)
}

func TestRunner_CancelledContextStartsNothing(t *testing.T) {
	fake := &fakeExecutor{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := NewRunner(fake, 2).Run(ctx, []suite.TestCase{{Name: "a"}, {Name: "b"}})
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, fake.started)
}
