package pipeline

import (
	"fmt"
	"time"
)

// State is the lifecycle state of a stage or of a whole pipeline run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateSkipped   State = "skipped" // never ran because an earlier stage failed
)

func allowed(from, to State) bool {
	switch from {
	case StatePending:
		// pending -> failed is a stage rejected before the run started.
		return to == StateRunning || to == StateSkipped || to == StateFailed
	case StateRunning:
		return to == StateSucceeded || to == StateFailed
	default:
		return false
	}
}

// StageReport records what one stage did during a run.
type StageReport struct {
	Name        string        `json:"name"`
	State       State         `json:"state"`
	Inputs      int           `json:"inputs"`
	Copied      int           `json:"copied"`
	Invocations int           `json:"invocations"`
	Duration    time.Duration `json:"duration"`
	Err         error         `json:"-"`
}

func (r *StageReport) transition(to State) error {
	if !allowed(r.State, to) {
		return fmt.Errorf("stage %s: invalid transition %s -> %s", r.Name, r.State, to)
	}
	r.State = to
	return nil
}

// Result is the all-or-nothing outcome of one pipeline run.
type Result struct {
	RunID       string        `json:"run_id"`
	Pipeline    string        `json:"pipeline"`
	WorkDir     string        `json:"work_dir"`
	State       State         `json:"state"`
	FailedStage string        `json:"failed_stage,omitempty"`
	Err         error         `json:"-"`
	Stages      []StageReport `json:"stages"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
}

// Succeeded reports whether every stage succeeded.
func (r *Result) Succeeded() bool {
	return r.State == StateSucceeded
}

// Stage returns the report for the named stage, or nil.
func (r *Result) Stage(name string) *StageReport {
	for i := range r.Stages {
		if r.Stages[i].Name == name {
			return &r.Stages[i]
		}
	}
	return nil
}

// Transition is emitted to observers each time a stage changes state.
type Transition struct {
	RunID    string
	Pipeline string
	Stage    string
	Index    int
	From     State
	To       State
	Err      error
	At       time.Time
}

// Observer is notified of every stage transition, in order.
type Observer interface {
	StageTransition(t Transition)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(t Transition)

func (f ObserverFunc) StageTransition(t Transition) { f(t) }
