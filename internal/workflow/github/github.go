// Package github renders workflow models as GitHub Actions workflow files.
//
// Job dependencies become needs, cross-job variables travel through job
// outputs, same-job variables through step outputs, and cross-job artifacts through the upload-artifact and
// download-artifact actions.
package github

import (
	"fmt"
	"path"
	"sort"

	"gopkg.in/yaml.v3"

	"atom/internal/param"
	"atom/internal/workflow"
)

// Provider is the provider name used in workflow definitions.
const Provider = "github"

const (
	checkoutAction = "actions/checkout@v4"
	uploadAction   = "actions/upload-artifact@v4"
	downloadAction = "actions/download-artifact@v4"
	defaultRunner  = "ubuntu-latest"
	header         = "Generated by atom. Do not edit; run atom --gen to update."
)

// Writer implements [workflow.Writer] for GitHub Actions.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that places files in dir, usually
// .github/workflows.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir}
}

// Provider implements [workflow.Writer].
func (w *Writer) Provider() string {
	return Provider
}

// Path implements [workflow.Writer].
func (w *Writer) Path(m *workflow.Model) string {
	return path.Join(w.dir, m.Name+".yml")
}

// Render implements [workflow.Writer].
func (w *Writer) Render(m *workflow.Model) ([]byte, error) {
	doc := workflow.NewMapping().
		Set("name", m.Name).
		Set("on", triggers(m))

	env := workflow.NewMapping()
	for _, in := range m.Inputs {
		env.Set(in.EnvName, fmt.Sprintf("${{ inputs.%s }}", in.Arg))
	}
	doc.Set("env", env)

	jobs := workflow.NewMapping()
	for _, j := range m.Jobs {
		jobs.Set(j.ID(), job(m, j))
	}
	doc.Set("jobs", jobs)

	return workflow.Marshal(header, doc)
}

func triggers(m *workflow.Model) *yaml.Node {
	on := workflow.NewMapping()
	var schedules []*workflow.Mapping

	for _, t := range m.Triggers {
		switch t := t.(type) {
		case workflow.ManualTrigger:
			inputs := workflow.NewMapping()
			for _, in := range m.Inputs {
				inputs.Set(in.Arg, workflow.NewMapping().
					Set("description", in.Description).
					Set("required", false).
					Set("type", "string").
					Set("default", in.Default))
			}
			on.Set("workflow_dispatch", orEmpty(workflow.NewMapping().Set("inputs", inputs)))
		case workflow.PushTrigger:
			on.Set("push", orEmpty(workflow.NewMapping().
				Set("branches", t.Branches).
				Set("tags", t.Tags).
				Set("paths", t.Paths)))
		case workflow.PullRequestTrigger:
			on.Set("pull_request", orEmpty(workflow.NewMapping().Set("branches", t.Branches)))
		case workflow.ScheduleTrigger:
			schedules = append(schedules, workflow.NewMapping().Set("cron", t.Cron))
		}
	}
	on.Set("schedule", schedules)

	// A workflow with no triggers can still be started by hand.
	if on.Len() == 0 {
		on.Set("workflow_dispatch", orEmpty(workflow.NewMapping()))
	}
	return on.Node()
}

func job(m *workflow.Model, j *workflow.Job) *workflow.Mapping {
	jm := workflow.NewMapping()
	if j.ID() != j.Name {
		jm.Set("name", j.Name)
	}

	var needs []string
	for _, n := range j.Needs {
		needs = append(needs, workflow.Identifier(n))
	}
	jm.Set("needs", needs)
	jm.Set("runs-on", runsOn(j.Options.RunsOn))
	jm.Set("permissions", permissions(j.Options.Permissions))

	if len(j.Matrix) > 0 {
		matrix := workflow.NewMapping()
		for _, d := range j.Matrix {
			matrix.Set(d.Name, d.Values)
		}
		jm.Set("strategy", workflow.NewMapping().Set("matrix", matrix))
	}

	outputs := workflow.NewMapping()
	for _, o := range j.Outputs {
		outputs.Set(o.Name, fmt.Sprintf("${{ steps.%s.outputs.%s }}", o.StepID, o.Variable))
	}
	jm.Set("outputs", outputs)

	env := workflow.NewMapping()
	for _, d := range j.Matrix {
		env.Set(param.EnvName(d.Name), fmt.Sprintf("${{ matrix.%s }}", d.Name))
	}
	for _, v := range j.Variables {
		env.Set(v.EnvName, fmt.Sprintf("${{ needs.%s.outputs.%s }}", workflow.Identifier(v.Job), v.Variable))
	}
	for _, s := range j.Secrets {
		env.Set(s.EnvName, fmt.Sprintf("${{ secrets.%s }}", s.EnvName))
	}
	jm.Set("env", env)

	steps := []*workflow.Mapping{
		workflow.NewMapping().Set("name", "Checkout").Set("uses", checkoutAction),
	}
	for _, s := range j.Steps {
		steps = append(steps, step(m, j, s))
	}
	jm.Set("steps", steps)
	return jm
}

func step(m *workflow.Model, j *workflow.Job, s workflow.Step) *workflow.Mapping {
	switch s.Kind {
	case workflow.StepDownload:
		return workflow.NewMapping().
			Set("name", "Download "+s.Artifact).
			Set("uses", downloadAction).
			Set("with", workflow.NewMapping().
				Set("name", s.Artifact).
				Set("path", m.ArtifactPath(s.Artifact)))
	case workflow.StepUpload:
		return workflow.NewMapping().
			Set("name", "Upload "+s.Artifact).
			Set("uses", uploadAction).
			Set("with", workflow.NewMapping().
				Set("name", s.Artifact).
				Set("path", m.ArtifactPath(s.Artifact)))
	default:
		env := workflow.NewMapping()
		for _, v := range s.Variables {
			env.Set(v.EnvName, fmt.Sprintf("${{ steps.%s.outputs.%s }}", v.StepID, v.Variable))
		}
		return workflow.NewMapping().
			Set("name", s.Target).
			Set("id", s.ID).
			Set("env", env).
			Set("run", j.Command(s))
	}
}

// runsOn renders a single label as a scalar and several as a list.
func runsOn(labels []string) any {
	switch len(labels) {
	case 0:
		return defaultRunner
	case 1:
		return labels[0]
	default:
		return labels
	}
}

func permissions(p map[string]string) *workflow.Mapping {
	scopes := make([]string, 0, len(p))
	for scope := range p {
		scopes = append(scopes, scope)
	}
	sort.Strings(scopes)

	out := workflow.NewMapping()
	for _, scope := range scopes {
		out.Set(scope, p[scope])
	}
	return out
}

func orEmpty(m *workflow.Mapping) *yaml.Node {
	if m.Len() == 0 {
		return &yaml.Node{Kind: yaml.MappingNode, Style: yaml.FlowStyle}
	}
	return m.Node()
}
