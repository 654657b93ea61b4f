package runtime

import (
	"time"
)

type Outcome string

const (
	OutcomePassed  Outcome = "passed"
	OutcomeFailed  Outcome = "failed"
	OutcomeSkipped Outcome = "skipped"
)

// StepOutcome records what happened to one step.
type StepOutcome struct {
	StepID      string        `json:"step_id"`
	Function    string        `json:"function"`
	Description string        `json:"description,omitempty"`
	Outcome     Outcome       `json:"outcome"`
	Resource    string        `json:"resource,omitempty"`
	Duration    time.Duration `json:"duration_ns"`
	Error       string        `json:"error,omitempty"`
}

// Report summarizes a finished execution.
type Report struct {
	FlowID      string        `json:"flow_id"`
	ExecutionID string        `json:"execution_id"`
	Description string        `json:"description,omitempty"`
	State       State         `json:"state"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration_ns"`
	Steps       []StepOutcome `json:"steps"`
	Failure     *FlowError    `json:"failure,omitempty"`
}

func (r Report) Passed() bool {
	return r.State == StateCompleted
}

// Report snapshots the execution. Steps after a failure are absent.
func (e *Execution) Report() Report {
	r := Report{
		ExecutionID: e.ID,
		State:       e.State,
		StartedAt:   e.StartedAt,
		FinishedAt:  e.FinishedAt,
		Steps:       append([]StepOutcome(nil), e.Steps...),
		Failure:     e.Failure,
	}
	if e.Flow != nil {
		r.FlowID = e.Flow.ID
		r.Description = e.Flow.Description
	}
	if !e.FinishedAt.IsZero() {
		r.Duration = e.FinishedAt.Sub(e.StartedAt)
	}
	return r
}
