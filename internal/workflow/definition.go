// Package workflow projects the target graph onto CI workflows.
//
// A workflow [Definition] groups targets into jobs. The [Generator] turns it
// into a provider-neutral [Model]: job dependencies are the target edges
// coarsened to job boundaries, artifacts and variables that cross a job
// boundary become upload/download steps and job outputs, and secret params
// become job environment. Provider writers (see the github and devops
// subpackages) render the model to YAML.
//
// Key types:
//   - [Definition], [JobDefinition] - what the build author declares
//   - [Generator] - validates a definition against a [build.Graph]
//   - [Model], [Job], [Step] - the projected job graph
//   - [Writer] - renders a model for one CI provider
package workflow

import (
	"errors"
	"fmt"

	"github.com/robfig/cron/v3"
)

// Sentinel errors for workflow definitions.
var (
	// ErrInvalidWorkflow indicates a malformed definition (missing names,
	// empty jobs, unknown targets).
	ErrInvalidWorkflow = errors.New("invalid workflow")

	// ErrTargetInMultipleJobs indicates a target listed by more than one job.
	ErrTargetInMultipleJobs = errors.New("target assigned to multiple jobs")

	// ErrJobCycle indicates that grouping targets into jobs produced a cycle
	// between jobs even though the target graph itself is acyclic.
	ErrJobCycle = errors.New("cyclic job dependency")

	// ErrInvalidTrigger indicates a trigger that cannot be rendered.
	ErrInvalidTrigger = errors.New("invalid trigger")
)

// Definition declares one CI workflow.
type Definition struct {
	Name     string
	Triggers []Trigger
	Jobs     []JobDefinition

	// Options apply to every job unless the job overrides them.
	Options Options

	// Providers restricts generation to the named providers ("github",
	// "devops"). Empty means every registered provider.
	Providers []string
}

// JobDefinition groups targets that run on the same CI agent.
type JobDefinition struct {
	Name    string
	Targets []string
	Matrix  []MatrixDimension
	Options Options
}

// MatrixDimension is one named axis of a job matrix.
type MatrixDimension struct {
	Name   string
	Values []string
}

// Options configure provider-specific job settings.
type Options struct {
	// RunsOn lists GitHub runner labels.
	RunsOn []string

	// Pool is the Azure DevOps vmImage.
	Pool string

	// Permissions are GitHub token permissions, scope to access level.
	Permissions map[string]string

	// Entrypoint is the command that invokes the build in generated steps.
	Entrypoint string
}

// Merge returns o with every field set in override replacing it.
func (o Options) Merge(override Options) Options {
	if len(override.RunsOn) > 0 {
		o.RunsOn = override.RunsOn
	}
	if override.Pool != "" {
		o.Pool = override.Pool
	}
	if len(override.Permissions) > 0 {
		o.Permissions = override.Permissions
	}
	if override.Entrypoint != "" {
		o.Entrypoint = override.Entrypoint
	}
	return o
}

// TriggerKind identifies a trigger type.
type TriggerKind string

const (
	TriggerManual      TriggerKind = "manual"
	TriggerPush        TriggerKind = "push"
	TriggerPullRequest TriggerKind = "pull_request"
	TriggerSchedule    TriggerKind = "schedule"
)

// Trigger starts a workflow.
type Trigger interface {
	Kind() TriggerKind
	Validate() error
}

// ManualTrigger allows running the workflow on demand. Inputs name params
// that become dispatch inputs.
type ManualTrigger struct {
	Inputs []string
}

// Kind implements [Trigger].
func (ManualTrigger) Kind() TriggerKind { return TriggerManual }

// Validate implements [Trigger].
func (ManualTrigger) Validate() error { return nil }

// PushTrigger runs the workflow on pushes matching the filters.
type PushTrigger struct {
	Branches []string
	Tags     []string
	Paths    []string
}

// Kind implements [Trigger].
func (PushTrigger) Kind() TriggerKind { return TriggerPush }

// Validate implements [Trigger].
func (PushTrigger) Validate() error { return nil }

// PullRequestTrigger runs the workflow for pull requests into Branches.
type PullRequestTrigger struct {
	Branches []string
}

// Kind implements [Trigger].
func (PullRequestTrigger) Kind() TriggerKind { return TriggerPullRequest }

// Validate implements [Trigger].
func (PullRequestTrigger) Validate() error { return nil }

// ScheduleTrigger runs the workflow on a five-field cron schedule.
type ScheduleTrigger struct {
	Cron string
}

// Kind implements [Trigger].
func (ScheduleTrigger) Kind() TriggerKind { return TriggerSchedule }

// Validate checks the expression with the standard cron parser.
func (s ScheduleTrigger) Validate() error {
	if _, err := cron.ParseStandard(s.Cron); err != nil {
		return fmt.Errorf("%w: schedule %q: %v", ErrInvalidTrigger, s.Cron, err)
	}
	return nil
}

// validate checks names and triggers. Target membership is checked by the
// generator, which has the graph.
func (d Definition) validate() error {
	if d.Name == "" {
		return fmt.Errorf("%w: workflow name is required", ErrInvalidWorkflow)
	}
	if len(d.Jobs) == 0 {
		return fmt.Errorf("%w: workflow %q has no jobs", ErrInvalidWorkflow, d.Name)
	}
	kinds := make(map[TriggerKind]bool)
	for _, t := range d.Triggers {
		if t == nil {
			return fmt.Errorf("%w: workflow %q has a nil trigger", ErrInvalidTrigger, d.Name)
		}
		// Several schedules are allowed, one of every other kind.
		if kinds[t.Kind()] && t.Kind() != TriggerSchedule {
			return fmt.Errorf("%w: workflow %q declares %s twice", ErrInvalidTrigger, d.Name, t.Kind())
		}
		kinds[t.Kind()] = true
		if err := t.Validate(); err != nil {
			return fmt.Errorf("workflow %q: %w", d.Name, err)
		}
	}

	jobs := make(map[string]bool, len(d.Jobs))
	for _, j := range d.Jobs {
		if j.Name == "" {
			return fmt.Errorf("%w: workflow %q has a job without a name", ErrInvalidWorkflow, d.Name)
		}
		if jobs[j.Name] {
			return fmt.Errorf("%w: workflow %q declares job %q twice", ErrInvalidWorkflow, d.Name, j.Name)
		}
		jobs[j.Name] = true
		if len(j.Targets) == 0 {
			return fmt.Errorf("%w: job %q has no targets", ErrInvalidWorkflow, j.Name)
		}
		for _, m := range j.Matrix {
			if m.Name == "" || len(m.Values) == 0 {
				return fmt.Errorf("%w: job %q has an empty matrix dimension", ErrInvalidWorkflow, j.Name)
			}
		}
	}
	return nil
}
