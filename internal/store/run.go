package store

import (
	"time"
)

type RunStatus string

const (
	StatusQueued    RunStatus = "queued"
	StatusRunning   RunStatus = "running"
	StatusCancelled RunStatus = "cancelled"
	StatusFailed    RunStatus = "failed"
	StatusPassed    RunStatus = "passed"
)

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

type Run struct {
	RunID      int64 `param:"run_id"`
	Repository string
	Ref        string
	CommitID   *string
	Status     RunStatus
	Output     *string
	Artifacts  *string
	CreatedOn  time.Time
	StartedOn  *time.Time
	EndedOn    *time.Time
}

type StageResult struct {
	StageResultID int64
	ResultRunID   int64
	Position      int64
	Stage         string
	Status        StageStatus
	ExitCode      int64
	Output        *string
}
