package service

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/okarhu/pipewatch/internal/store"
)

func NewRunQueue(runner *Runner, maxRuns int64) *RunQueue {
	return &RunQueue{
		runner:       runner,
		queue:        make(chan *RunRequest, maxRuns),
		done:         make(chan struct{}),
		cancelRunMap: NewCancelMap[int64](),
	}
}

// RunQueue serializes run processing behind a bounded channel. Enqueue never
// blocks: a full queue rejects the run so the watch loop keeps polling.
type RunQueue struct {
	runner *Runner

	queue        chan *RunRequest
	done         chan struct{}
	cancelRunMap *CancelMap[int64]

	mu sync.Mutex
}

func (rq *RunQueue) CancelRun(runID int64) {
	rq.cancelRunMap.Call(runID)
}

func (rq *RunQueue) Enqueue(req *RunRequest) error {
	select {
	case rq.queue <- req:
		return nil
	default:
		return NewErrRunQueueFull()
	}
}

func (rq *RunQueue) Run() {
	for {
		select {
		case req := <-rq.queue:
			ctx, cancel := context.WithCancel(context.Background())
			rq.cancelRunMap.AddCancel(req.Run.RunID, cancel)

			if result, err := rq.runner.Process(ctx, req); err != nil {
				endedOn := time.Now().UTC()
				if sqlErr := rq.runner.runStore.UpdateRunEndedOn(
					context.Background(),
					req.Run.RunID,
					store.StatusFailed,
					nil,
					&endedOn,
				); sqlErr != nil {
					slog.Error("err updating run status to failed",
						"run_id", req.Run.RunID, "error", sqlErr)
				}
				slog.Error("err processing run", "run_id", req.Run.RunID, "error", err)
			} else {
				slog.Info("run finished",
					"run_id", req.Run.RunID,
					"repository", req.Run.Repository,
					"outcome", result.Outcome,
				)
			}

			cancel()
			rq.cancelRunMap.RemoveCancel(req.Run.RunID)
		case <-rq.done:
			close(rq.queue)
			return
		}
	}
}

func (rq *RunQueue) Shutdown() {
	rq.mu.Lock()
	defer rq.mu.Unlock()
	select {
	case <-rq.done:
	default:
		close(rq.done)
	}
}
