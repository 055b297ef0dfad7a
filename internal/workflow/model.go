package workflow

import (
	"fmt"
	"slices"
	"strings"
)

// StepKind distinguishes the steps of a generated job.
type StepKind int

const (
	// StepCommand runs one target through the build entrypoint.
	StepCommand StepKind = iota
	// StepDownload fetches an artifact produced in another job.
	StepDownload
	// StepUpload publishes an artifact consumed in another job.
	StepUpload
)

// Step is one step of a [Job].
type Step struct {
	Kind StepKind

	// Target is the target run by a command step, or the producer of the
	// artifact for upload and download steps.
	Target string

	// ID identifies a command step for output wiring.
	ID string

	Artifact string

	// Implicit marks a command step for a dependency that no job of the
	// workflow lists, pulled into this job so it runs before its dependent.
	Implicit bool

	// Variables are outputs of earlier steps in the same job mapped into the
	// environment of this command step.
	Variables []StepVariable
}

// StepVariable maps an output of an earlier step of the same job into a
// command step's environment.
type StepVariable struct {
	StepID   string
	Variable string
	EnvName  string
}

// Output is a job-level output exposing a variable written by a step.
type Output struct {
	Name     string
	StepID   string
	Variable string
}

// VariableInput maps an output of another job into this job's environment.
type VariableInput struct {
	Job      string
	StepID   string
	Variable string
	EnvName  string
}

// SecretEnv injects a secret param from the provider's secret store.
type SecretEnv struct {
	Param   string
	EnvName string
}

// Input is a param exposed as a manual dispatch input.
type Input struct {
	Name        string
	Arg         string
	EnvName     string
	Description string
	Default     string
}

// Job is a projected CI job.
type Job struct {
	Name string

	// Needs are the names of jobs that must complete first, in declaration
	// order. It is the transitive closure of the job graph.
	Needs []string

	Matrix    []MatrixDimension
	Options   Options
	Steps     []Step
	Outputs   []Output
	Variables []VariableInput
	Secrets   []SecretEnv
}

// ID returns the provider-safe job identifier.
func (j *Job) ID() string {
	return Identifier(j.Name)
}

// Targets returns the targets run by the job's command steps in order.
func (j *Job) Targets() []string {
	var names []string
	for _, s := range j.Steps {
		if s.Kind == StepCommand {
			names = append(names, s.Target)
		}
	}
	return names
}

// Command returns the shell command for a command step.
func (j *Job) Command(s Step) string {
	return fmt.Sprintf("%s %s --skip-deps --headless", j.Options.Entrypoint, s.Target)
}

// Model is a workflow projected onto jobs, ready for a provider writer.
type Model struct {
	Name         string
	Triggers     []Trigger
	Inputs       []Input
	Options      Options
	Jobs         []*Job
	ArtifactsDir string
	Providers    []string
}

// Job returns the job with the given name.
func (m *Model) Job(name string) (*Job, bool) {
	for _, j := range m.Jobs {
		if j.Name == name {
			return j, true
		}
	}
	return nil, false
}

// Wants reports whether the model should be rendered for provider.
func (m *Model) Wants(provider string) bool {
	return len(m.Providers) == 0 || slices.Contains(m.Providers, provider)
}

// Trigger returns the first trigger of the given kind.
func (m *Model) Trigger(kind TriggerKind) (Trigger, bool) {
	for _, t := range m.Triggers {
		if t.Kind() == kind {
			return t, true
		}
	}
	return nil, false
}

// ArtifactPath returns the local staging path of an artifact.
func (m *Model) ArtifactPath(artifact string) string {
	if m.ArtifactsDir == "" {
		return artifact
	}
	return strings.TrimSuffix(m.ArtifactsDir, "/") + "/" + artifact
}

// Identifier converts a name into an identifier accepted by both providers
// for job and step ids: letters, digits and '_', not starting with a digit.
func Identifier(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	id := b.String()
	if id == "" || (id[0] >= '0' && id[0] <= '9') {
		id = "_" + id
	}
	return id
}
