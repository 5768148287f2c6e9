package cli

import (
	"context"
	"io"
	"os"
)

// Run parses args (excluding argv[0]) and executes the command, writing
// reports to stdout. It returns the semantic exit code plus any error.
func Run(ctx context.Context, args []string) (CLIResult, error) {
	return RunWithOutput(ctx, args, os.Stdout)
}

// RunWithOutput is Run with reports written to out, for black-box tests.
func RunWithOutput(ctx context.Context, args []string, out io.Writer) (CLIResult, error) {
	inv, err := ParseInvocation(args)
	if err != nil {
		return CLIResult{ExitCode: ExitCode(err)}, err
	}
	return ExecuteWithOutput(ctx, inv, out)
}
