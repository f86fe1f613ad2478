package snowwhite

import (
	"time"

	"github.com/google/uuid"
)

// Action is the operation requested of the workers.
type Action string

const (
	ActionQuiet Action = "quiet"
	ActionWake  Action = "wake"
	ActionStop  Action = "stop"
)

// Done describes the workers once the action has succeeded everywhere.
func (a Action) Done() string {
	switch a {
	case ActionQuiet:
		return "quiet"
	case ActionWake:
		return "awake"
	case ActionStop:
		return "stopped"
	default:
		return string(a)
	}
}

// InstanceTarget is an instance to command, annotated with the environment it
// was discovered in.
type InstanceTarget struct {
	InstanceID  string `json:"instance_id"`
	Environment string `json:"environment"`
}

// CommandRequest is the single remote-execution request submitted per run.
type CommandRequest struct {
	DocumentName string
	InstanceIDs  []string
}

// OutcomeState is the per-instance classification maintained by the Tracker.
type OutcomeState int

const (
	OutcomePending OutcomeState = iota
	OutcomeSuccess
	OutcomeFailed
)

func (s OutcomeState) String() string {
	switch s {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailed:
		return "failed"
	default:
		return "pending"
	}
}

// Terminal reports whether the state can no longer change.
func (s OutcomeState) Terminal() bool {
	return s == OutcomeSuccess || s == OutcomeFailed
}

// Outcome is Pending, Success, or Failed(Code).
type Outcome struct {
	State OutcomeState
	// Code is the response code reported with a failure; zero otherwise.
	Code int
}

// Response codes the worker documents exit with.
const (
	CodeNotQuieted   = 1
	CodeStillRunning = 2
	CodeUnknown      = -1
)

// RunResult aggregates the outcome of every tracked instance.
type RunResult struct {
	CommandID   string
	Targets     []InstanceTarget
	Outcomes    map[string]Outcome
	AnyFailed   bool
	Rounds      int
	// Interrupted is set when tracking stopped on cancellation rather than
	// on completion or an exhausted budget.
	Interrupted bool
}

// pendingResult is the result of a submitted command nobody has polled yet.
func pendingResult(commandID string, targets []InstanceTarget) RunResult {
	res := RunResult{
		CommandID: commandID,
		Targets:   targets,
		Outcomes:  make(map[string]Outcome, len(targets)),
	}
	for _, t := range targets {
		res.Outcomes[t.InstanceID] = Outcome{State: OutcomePending}
	}
	return res
}

// Succeeded returns the targets that reported success, in target order.
func (r RunResult) Succeeded() []InstanceTarget { return r.bucket(OutcomeSuccess) }

// Failed returns the targets that reported a failure status, in target order.
func (r RunResult) Failed() []InstanceTarget { return r.bucket(OutcomeFailed) }

// Pending returns the targets that never reached a terminal status.
func (r RunResult) Pending() []InstanceTarget { return r.bucket(OutcomePending) }

func (r RunResult) bucket(state OutcomeState) []InstanceTarget {
	var out []InstanceTarget
	for _, t := range r.Targets {
		if r.Outcomes[t.InstanceID].State == state {
			out = append(out, t)
		}
	}
	return out
}

// Actor identifies who launched the run. Both fields may be empty.
type Actor struct {
	User    string `json:"user,omitempty"`
	SlackID string `json:"slack_id,omitempty"`
}

// Report is everything known about a finished run.
type Report struct {
	RunID       uuid.UUID
	Action      Action
	Application string
	Region      string
	Pattern     string
	Actor       Actor
	Result      RunResult
	StartedAt   time.Time
	FinishedAt  time.Time
}
