package capture

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"testweaver/internal/logger"
	"testweaver/internal/result"
	"testweaver/internal/suite"
)

// TestExecutor is the part of Executor the Runner depends on.
type TestExecutor interface {
	Execute(ctx context.Context, tc suite.TestCase) (result.Live, error)
}

// Runner executes a suite with a bounded number of concurrent tests.
type Runner struct {
	Executor TestExecutor
	Jobs     int

	// OnResult, when set, is called as each test finishes. Calls are
	// serialized.
	OnResult func(result.Live)
}

// NewRunner creates a Runner around exec running at most jobs tests at once.
func NewRunner(exec TestExecutor, jobs int) *Runner {
	return &Runner{Executor: exec, Jobs: jobs}
}

// Run executes every test and returns results in suite order. The first
// execution error cancels the remaining tests; a failing test is a result,
// not an error.
func (r *Runner) Run(ctx context.Context, tests []suite.TestCase) ([]result.Live, error) {
	if r == nil || r.Executor == nil {
		return nil, fmt.Errorf("runner has no executor")
	}
	jobs := r.Jobs
	if jobs < 1 {
		jobs = 1
	}

	results := make([]result.Live, len(tests))
	notify := make(chan result.Live)
	notifyDone := make(chan struct{})
	go func() {
		defer close(notifyDone)
		for res := range notify {
			if r.OnResult != nil {
				r.OnResult(res)
			}
		}
	}()

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(jobs)
	for i, tc := range tests {
		if gctx.Err() != nil {
			break
		}
		i, tc := i, tc
		group.Go(func() error {
			// Tests queued behind the limit may start after cancellation.
			if err := gctx.Err(); err != nil {
				return err
			}
			res, err := r.Executor.Execute(gctx, tc)
			if err != nil {
				return err
			}
			results[i] = res
			notify <- res
			return nil
		})
	}
	err := group.Wait()
	close(notify)
	<-notifyDone
	if err == nil {
		err = ctx.Err()
	}
	if err != nil {
		return nil, err
	}

	logger.Infof("executed %d tests with %d jobs", len(tests), jobs)
	return results, nil
}
