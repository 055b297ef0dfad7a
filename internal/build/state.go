package build

import (
	"time"

	"atom/internal/report"
)

// Status is the run state of a target.
//
// Transitions: NotRun -> PendingRun -> {Succeeded, Failed, Interrupted}, or
// NotRun -> Skipped when a dependency did not succeed. Interrupted means the
// run was cancelled while the target was executing. Terminal states never
// change within a run.
type Status int

const (
	NotRun Status = iota
	PendingRun
	Succeeded
	Failed
	Skipped
	Interrupted
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case NotRun:
		return report.OutcomeNotRun
	case PendingRun:
		return "PendingRun"
	case Succeeded:
		return "Succeeded"
	case Failed:
		return "Failed"
	case Skipped:
		return "Skipped"
	case Interrupted:
		return "Interrupted"
	default:
		return "Unknown"
	}
}

// IsTerminal reports whether s is a state the target cannot leave.
func (s Status) IsTerminal() bool {
	return s == Succeeded || s == Failed || s == Skipped || s == Interrupted
}

// TargetState is the per-run state of one target.
type TargetState struct {
	Name        string
	Status      Status
	RunDuration time.Duration
	// Err is the failure cause for Failed, the upstream reason for Skipped,
	// or the error the task returned when Interrupted.
	Err error
}

// Result is the outcome of one [Executor.Execute] call.
type Result struct {
	RunID string

	// Plan is the execution order that was attempted.
	Plan []string

	// States holds one entry per graph target, keyed by name.
	States map[string]*TargetState

	// Cancelled is set when the context was cancelled before the plan finished.
	Cancelled bool

	order []string
}

// State returns the state of name, or nil for unknown targets.
func (r *Result) State(name string) *TargetState {
	return r.States[name]
}

// Status returns the status of name. Unknown targets report NotRun.
func (r *Result) Status(name string) Status {
	if s, ok := r.States[name]; ok {
		return s.Status
	}
	return NotRun
}

// Failed reports whether any target failed.
func (r *Result) Failed() bool {
	for _, s := range r.States {
		if s.Status == Failed {
			return true
		}
	}
	return false
}

// ExitCode is 1 when any target failed or the run was cancelled, else 0.
func (r *Result) ExitCode() int {
	if r.Failed() || r.Cancelled {
		return 1
	}
	return 0
}

// Ordered returns the states with planned targets first, in plan order,
// followed by the remaining targets in registration order.
func (r *Result) Ordered() []TargetState {
	out := make([]TargetState, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, *r.States[name])
	}
	return out
}

// Summary converts the result into report rows.
func (r *Result) Summary(headless bool) report.Summary {
	sum := report.Summary{RunID: r.RunID, Headless: headless}
	for _, s := range r.Ordered() {
		row := report.Row{Target: s.Name, Outcome: s.Status.String(), Duration: s.RunDuration}
		if (s.Status == Failed || s.Status == Interrupted) && s.Err != nil {
			row.Detail = s.Err.Error()
		}
		sum.Rows = append(sum.Rows, row)
	}
	return sum
}
