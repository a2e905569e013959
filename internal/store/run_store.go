package store

import (
	"context"
	"time"
)

type RunStore interface {
	CreateRun(context.Context, string, string) (*Run, error)
	ReadRunByID(context.Context, int64) (*Run, error)
	UpdateRunStartedOn(context.Context, int64, string, RunStatus, *time.Time) error
	UpdateRunEndedOn(context.Context, int64, RunStatus, *string, *time.Time) error
	AppendRunOutput(context.Context, int64, string) error
	InsertStageResults(context.Context, int64, []StageResult) error
	ListRunStageResults(context.Context, int64) ([]StageResult, error)
	ListRepositoryRuns(context.Context, string, int64) ([]Run, error)
	DeleteRun(context.Context, int64) error
}
