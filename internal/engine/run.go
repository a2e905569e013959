package engine

import "time"

type Outcome string

const (
	OutcomePassed    Outcome = "passed"
	OutcomeFailed    Outcome = "failed"
	OutcomeCancelled Outcome = "cancelled"
)

type StageStatus string

const (
	StagePending StageStatus = "pending"
	StageRunning StageStatus = "running"
	StagePassed  StageStatus = "passed"
	StageFailed  StageStatus = "failed"
	StageSkipped StageStatus = "skipped"
)

// StageResult records one stage's terminal state. Output concatenates every
// attempted step's combined output in execution order.
type StageResult struct {
	Stage    string
	Status   StageStatus
	ExitCode int
	Output   string
}

// Run is one pipeline execution against a workspace snapshot. It is owned by
// the engine that produced it and immutable once returned.
type Run struct {
	Commit    string
	StartedOn time.Time
	EndedOn   time.Time
	Outcome   Outcome
	Stages    []StageResult
}

// Output concatenates all stage output in execution order.
func (r *Run) Output() string {
	var out string
	for _, sr := range r.Stages {
		out += sr.Output
	}
	return out
}
