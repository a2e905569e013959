package executor

import (
	"context"
	"time"
)

// Result carries the exit code and the combined stdout/stderr of one step.
type Result struct {
	ExitCode int
	Output   string
}

// Executor runs a single opaque step command inside a working directory.
// A nonzero exit code is reported through Result, not as an error; errors are
// reserved for infrastructure failures (timeout, broken transport).
type Executor interface {
	Run(ctx context.Context, script, dir string, timeout time.Duration) (Result, error)
}
