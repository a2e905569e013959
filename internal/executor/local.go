package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"time"
)

// LocalExecutor runs steps as shell commands on the controller machine,
// inheriting the process environment.
type LocalExecutor struct {
	shell string
}

func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{shell: "sh"}
}

func (e *LocalExecutor) Run(
	ctx context.Context,
	script, dir string,
	timeout time.Duration,
) (Result, error) {
	// The timeout context is deliberately not derived from ctx: cancellation
	// is honored between steps, so a started step always runs to completion
	// or until its own timeout.
	tctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	cmd := exec.CommandContext(tctx, e.shell, "-c", script)
	cmd.Dir = dir
	buf := new(bytes.Buffer)
	cmd.Stdout = buf
	cmd.Stderr = buf

	err := cmd.Run()
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return Result{ExitCode: -1, Output: buf.String()}, &TimeoutError{
			Script:  script,
			Seconds: int(timeout.Seconds()),
		}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return Result{ExitCode: exitErr.ExitCode(), Output: buf.String()}, nil
		}
		return Result{ExitCode: -1, Output: buf.String()}, err
	}
	return Result{ExitCode: 0, Output: buf.String()}, nil
}
