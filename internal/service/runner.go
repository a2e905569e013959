// Package service ties the pieces of a pipeline run together: parse the
// script, sync the workspace, execute the stages, persist the results and
// collect artifacts. The RunQueue feeds a Runner from a bounded channel in
// watch mode; the CLI calls Process directly for one-shot runs.
package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/okarhu/pipewatch/internal/engine"
	"github.com/okarhu/pipewatch/internal/executor"
	"github.com/okarhu/pipewatch/internal/metrics"
	"github.com/okarhu/pipewatch/internal/pipeline"
	"github.com/okarhu/pipewatch/internal/store"
	"github.com/okarhu/pipewatch/internal/util"
	"github.com/okarhu/pipewatch/internal/workspace"
)

// WorkspaceSyncer materializes a repository ref into a local directory and
// hands out the per-repository mutex guarding it.
type WorkspaceSyncer interface {
	Sync(repository, ref string) (*workspace.Workspace, error)
	Lock(repository string) *sync.Mutex
}

// RunRequest is one run to process: the persisted run row plus the local
// pipeline script that describes it.
type RunRequest struct {
	Run          *store.Run
	PipelinePath string
}

type Runner struct {
	runStore    store.RunStore
	workspaces  WorkspaceSyncer
	executor    executor.Executor
	collector   ArtifactCollector
	stepTimeout time.Duration
	output      func(string)
}

func NewRunner(
	runStore store.RunStore,
	workspaces WorkspaceSyncer,
	exec executor.Executor,
	stepTimeout time.Duration,
) *Runner {
	return &Runner{
		runStore:    runStore,
		workspaces:  workspaces,
		executor:    exec,
		stepTimeout: stepTimeout,
	}
}

// WithCollector attaches an artifact collector. Without one, declared
// artifacts are ignored.
func (r *Runner) WithCollector(c ArtifactCollector) *Runner {
	r.collector = c
	return r
}

// WithOutput attaches a sink that receives run output as it is produced,
// in addition to the database.
func (r *Runner) WithOutput(sink func(string)) *Runner {
	r.output = sink
	return r
}

// Process executes one run end to end. The pipeline script is parsed before
// any workspace work, so a malformed script never syncs a repository. The
// run row is updated to running with the synced commit, then to its terminal
// status with stage results, output and artifacts.
func (r *Runner) Process(ctx context.Context, req *RunRequest) (*engine.Run, error) {
	ps, err := pipeline.Load(req.PipelinePath)
	if err != nil {
		return nil, err
	}

	run := req.Run
	mu := r.workspaces.Lock(run.Repository)
	mu.Lock()
	defer mu.Unlock()

	ws, err := r.workspaces.Sync(run.Repository, run.Ref)
	if err != nil {
		return nil, err
	}

	startedOn := time.Now().UTC()
	if err := r.runStore.UpdateRunStartedOn(
		context.Background(),
		run.RunID,
		ws.Commit,
		store.StatusRunning,
		&startedOn,
	); err != nil {
		return nil, err
	}

	eng := engine.New(r.executor, r.stepTimeout).WithOutput(func(out string) {
		if err := r.runStore.AppendRunOutput(context.Background(), run.RunID, out); err != nil {
			slog.Warn("err appending run output", "run_id", run.RunID, "error", err)
		}
		if r.output != nil {
			r.output(out)
		}
	})
	result, err := eng.Execute(ctx, ps, ws)
	if err != nil {
		return nil, err
	}

	results := make([]store.StageResult, 0, len(result.Stages))
	for _, sr := range result.Stages {
		if sr.Status == engine.StageFailed && sr.Stage != engine.PostStageName {
			metrics.StageFailuresTotal.Inc()
		}
		results = append(results, store.StageResult{
			Stage:    sr.Stage,
			Status:   stageStatus(sr.Status),
			ExitCode: int64(sr.ExitCode),
			Output:   util.AsPtr(sr.Output),
		})
	}
	if err := r.runStore.InsertStageResults(
		context.Background(), run.RunID, results,
	); err != nil {
		return nil, err
	}

	var artifacts *string
	if r.collector != nil {
		artifacts, err = r.collector.Collect(ps, ws, run.RunID)
		if err != nil {
			slog.Warn("err collecting artifacts", "run_id", run.RunID, "error", err)
			artifacts = nil
		}
	}

	endedOn := time.Now().UTC()
	if err := r.runStore.UpdateRunEndedOn(
		context.Background(),
		run.RunID,
		runStatus(result.Outcome),
		artifacts,
		&endedOn,
	); err != nil {
		return nil, err
	}

	metrics.RunsTotal.WithLabelValues(string(result.Outcome)).Inc()
	return result, nil
}

func runStatus(outcome engine.Outcome) store.RunStatus {
	switch outcome {
	case engine.OutcomePassed:
		return store.StatusPassed
	case engine.OutcomeCancelled:
		return store.StatusCancelled
	default:
		return store.StatusFailed
	}
}

func stageStatus(status engine.StageStatus) store.StageStatus {
	switch status {
	case engine.StagePassed:
		return store.StagePassed
	case engine.StageFailed:
		return store.StageFailed
	case engine.StageSkipped:
		return store.StageSkipped
	case engine.StageRunning:
		return store.StageRunning
	default:
		return store.StagePending
	}
}
