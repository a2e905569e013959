// Package engine drives a parsed pipeline script against a synced workspace:
// stages run in declared order, a failed stage skips everything after it,
// and post steps run exactly once no matter how the stages resolved.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/okarhu/pipewatch/internal/executor"
	"github.com/okarhu/pipewatch/internal/pipeline"
	"github.com/okarhu/pipewatch/internal/workspace"
)

// PostStageName is the synthetic stage that records post-step results.
const PostStageName = "post"

type Engine struct {
	executor           executor.Executor
	defaultStepTimeout time.Duration
	output             func(string)
}

func New(exec executor.Executor, defaultStepTimeout time.Duration) *Engine {
	return &Engine{
		executor:           exec,
		defaultStepTimeout: defaultStepTimeout,
		output:             func(string) {},
	}
}

// WithOutput attaches a sink that receives output as the run produces it.
func (e *Engine) WithOutput(sink func(string)) *Engine {
	e.output = sink
	return e
}

// Execute runs the pipeline script inside the workspace and returns the
// finished Run. A DefinitionError is returned before any stage work; every
// other failure mode is recorded in the Run itself.
func (e *Engine) Execute(
	ctx context.Context,
	ps *pipeline.Script,
	ws *workspace.Workspace,
) (*Run, error) {
	if err := pipeline.Validate(ps); err != nil {
		return nil, err
	}

	run := &Run{
		Commit:    ws.Commit,
		StartedOn: time.Now().UTC(),
		Stages:    make([]StageResult, len(ps.Stages)),
	}
	for i, stage := range ps.Stages {
		run.Stages[i] = StageResult{Stage: stage.Stage, Status: StagePending}
	}

	var failed, cancelled bool
	for i, stage := range ps.Stages {
		sr := &run.Stages[i]
		if failed || cancelled {
			sr.Status = StageSkipped
			continue
		}
		if ctx.Err() != nil {
			cancelled = true
			sr.Status = StageSkipped
			continue
		}
		e.runStage(ctx, stage, ws.Path, sr, &cancelled)
		if sr.Status == StageFailed {
			failed = true
		}
	}

	// Post steps run unconditionally, once, after stage iteration resolves.
	// Their failures are recorded but never alter the outcome below.
	if len(ps.Post) > 0 {
		post := StageResult{Stage: PostStageName, Status: StageRunning}
		e.runSteps(context.WithoutCancel(ctx), ps.Post, ws.Path, &post, nil)
		if post.Status == StageRunning {
			post.Status = StagePassed
		}
		run.Stages = append(run.Stages, post)
	}

	switch {
	case cancelled:
		run.Outcome = OutcomeCancelled
	case failed:
		run.Outcome = OutcomeFailed
	default:
		run.Outcome = OutcomePassed
	}
	run.EndedOn = time.Now().UTC()
	return run, nil
}

func (e *Engine) runStage(
	ctx context.Context,
	stage pipeline.Stage,
	dir string,
	sr *StageResult,
	cancelled *bool,
) {
	sr.Status = StageRunning
	e.emit(sr, fmt.Sprintf("Executing pipeline stage '%s'\n", stage.Stage))
	e.runSteps(ctx, stage.Steps, dir, sr, cancelled)
	if sr.Status == StageRunning {
		sr.Status = StagePassed
	}
}

// runSteps executes steps in order inside dir, stopping at the first step
// with a nonzero exit code or infrastructure error. When cancelled is
// non-nil, a context cancellation between steps stops the stage without
// failing it.
func (e *Engine) runSteps(
	ctx context.Context,
	steps []pipeline.Step,
	dir string,
	sr *StageResult,
	cancelled *bool,
) {
	for _, step := range steps {
		if cancelled != nil && ctx.Err() != nil {
			*cancelled = true
			sr.Status = StageSkipped
			e.emit(sr, "run cancelled, remaining steps skipped\n")
			return
		}

		e.emit(sr, fmt.Sprintf("  |  Executing pipeline step '%s'\n", step.Step))
		timeout := e.defaultStepTimeout
		if step.TimeoutSeconds > 0 {
			timeout = time.Duration(step.TimeoutSeconds) * time.Second
		}

		res, err := e.executor.Run(ctx, step.Script, dir, timeout)
		e.emit(sr, res.Output)
		sr.ExitCode = res.ExitCode
		if err != nil {
			var timeoutErr *executor.TimeoutError
			if errors.As(err, &timeoutErr) {
				e.emit(sr, timeoutErr.Error()+"\n")
			} else {
				e.emit(sr, fmt.Sprintf("err executing step: %+v\n", err))
			}
			sr.Status = StageFailed
			return
		}
		if res.ExitCode != 0 {
			slog.Debug("step failed", "stage", sr.Stage, "step", step.Step, "exit_code", res.ExitCode)
			sr.Status = StageFailed
			return
		}
	}
}

func (e *Engine) emit(sr *StageResult, out string) {
	sr.Output += out
	e.output(out)
}
