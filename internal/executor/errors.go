package executor

import "fmt"

// TimeoutError marks a step that exceeded its timeout. It is treated as a
// step failure: the stage halts, the run continues its failure path.
type TimeoutError struct {
	Script  string
	Seconds int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf(
		"step execution timed out in %d seconds, script: '%s'",
		e.Seconds,
		e.Script,
	)
}

type RunCancelError struct {
	Message string
}

func (rce RunCancelError) Error() string {
	return rce.Message
}
