// Package devops renders workflow models as Azure DevOps pipeline files.
//
// Job dependencies become dependsOn, cross-job variables are read from
// output variables of the producing job, same-job variables from output
// variables of the producing step, and artifacts travel as pipeline
// artifacts.
package devops

import (
	"fmt"
	"path"
	"strings"

	"gopkg.in/yaml.v3"

	"atom/internal/param"
	"atom/internal/workflow"
)

// Provider is the provider name used in workflow definitions.
const Provider = "devops"

const (
	defaultPool  = "ubuntu-latest"
	workspaceDir = "$(System.DefaultWorkingDirectory)"
	header       = "Generated by atom. Do not edit; run atom --gen to update."
)

// Writer implements [workflow.Writer] for Azure DevOps.
type Writer struct {
	dir string
}

// NewWriter creates a Writer that places files in dir, usually
// .devops/workflows.
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
	doc := workflow.NewMapping()
	doc.Set("trigger", push(m))
	doc.Set("pr", pullRequest(m))

	var schedules []*workflow.Mapping
	for _, t := range m.Triggers {
		if s, ok := t.(workflow.ScheduleTrigger); ok {
			schedules = append(schedules, workflow.NewMapping().
				Set("cron", s.Cron).
				Set("displayName", m.Name+" schedule").
				Set("always", true))
		}
	}
	doc.Set("schedules", schedules)

	var params, vars []*workflow.Mapping
	for _, in := range m.Inputs {
		p := workflow.NewMapping().
			Set("name", in.Arg).
			Set("displayName", displayName(in)).
			Set("type", "string")
		// Parameters without a default are required at queue time.
		p.Node().Content = append(p.Node().Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: "default"},
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: in.Default, Style: quotedIfEmpty(in.Default)})
		params = append(params, p)
		vars = append(vars, workflow.NewMapping().
			Set("name", in.EnvName).
			Set("value", fmt.Sprintf("${{ parameters.%s }}", in.Arg)))
	}
	doc.Set("parameters", params)
	doc.Set("variables", vars)

	var jobs []*workflow.Mapping
	for _, j := range m.Jobs {
		jobs = append(jobs, job(m, j))
	}
	doc.Set("jobs", jobs)

	return workflow.Marshal(header, doc)
}

func push(m *workflow.Model) any {
	t, ok := m.Trigger(workflow.TriggerPush)
	if !ok {
		return "none"
	}
	p := t.(workflow.PushTrigger)
	out := workflow.NewMapping().
		Set("branches", include(p.Branches)).
		Set("tags", include(p.Tags)).
		Set("paths", include(p.Paths))
	if out.Len() == 0 {
		return []string{"*"}
	}
	return out
}

func pullRequest(m *workflow.Model) any {
	t, ok := m.Trigger(workflow.TriggerPullRequest)
	if !ok {
		return "none"
	}
	pr := t.(workflow.PullRequestTrigger)
	if len(pr.Branches) == 0 {
		return []string{"*"}
	}
	return workflow.NewMapping().Set("branches", include(pr.Branches))
}

func include(values []string) *workflow.Mapping {
	return workflow.NewMapping().Set("include", values)
}

func job(m *workflow.Model, j *workflow.Job) *workflow.Mapping {
	jm := workflow.NewMapping().
		Set("job", j.ID()).
		Set("displayName", j.Name)

	var deps []string
	for _, n := range j.Needs {
		deps = append(deps, workflow.Identifier(n))
	}
	jm.Set("dependsOn", deps)

	pool := j.Options.Pool
	if pool == "" {
		pool = defaultPool
	}
	jm.Set("pool", workflow.NewMapping().Set("vmImage", pool))

	if len(j.Matrix) > 0 {
		jm.Set("strategy", workflow.NewMapping().Set("matrix", matrix(j.Matrix)))
	}

	var vars []*workflow.Mapping
	for _, v := range j.Variables {
		vars = append(vars, workflow.NewMapping().
			Set("name", v.EnvName).
			Set("value", fmt.Sprintf("$[ dependencies.%s.outputs['%s.%s'] ]", workflow.Identifier(v.Job), v.StepID, v.Variable)))
	}
	jm.Set("variables", vars)

	steps := []*workflow.Mapping{workflow.NewMapping().Set("checkout", "self")}
	for _, s := range j.Steps {
		switch s.Kind {
		case workflow.StepDownload:
			steps = append(steps, workflow.NewMapping().
				Set("task", "DownloadPipelineArtifact@2").
				Set("displayName", "Download "+s.Artifact).
				Set("inputs", workflow.NewMapping().
					Set("artifact", s.Artifact).
					Set("path", workspaceDir+"/"+m.ArtifactPath(s.Artifact))))
		case workflow.StepUpload:
			steps = append(steps, workflow.NewMapping().
				Set("task", "PublishPipelineArtifact@1").
				Set("displayName", "Upload "+s.Artifact).
				Set("inputs", workflow.NewMapping().
					Set("targetPath", workspaceDir+"/"+m.ArtifactPath(s.Artifact)).
					Set("artifact", s.Artifact)))
		default:
			steps = append(steps, workflow.NewMapping().
				Set("script", j.Command(s)).
				Set("name", s.ID).
				Set("displayName", s.Target).
				Set("env", stepEnv(j, s)))
		}
	}
	jm.Set("steps", steps)
	return jm
}

// stepEnv maps secrets and same-job step outputs into a script step. Secret
// variables are not exposed to scripts unless mapped explicitly.
func stepEnv(j *workflow.Job, s workflow.Step) *workflow.Mapping {
	env := workflow.NewMapping()
	for _, sec := range j.Secrets {
		env.Set(sec.EnvName, fmt.Sprintf("$(%s)", sec.EnvName))
	}
	for _, v := range s.Variables {
		env.Set(v.EnvName, fmt.Sprintf("$(%s.%s)", v.StepID, v.Variable))
	}
	return env
}

// matrix expands the dimensions into one named leg per combination, since
// Azure DevOps has no cross-product matrix syntax.
func matrix(dims []workflow.MatrixDimension) *workflow.Mapping {
	legs := [][]string{nil}
	for _, d := range dims {
		var next [][]string
		for _, l := range legs {
			for _, v := range d.Values {
				next = append(next, append(append([]string(nil), l...), v))
			}
		}
		legs = next
	}

	out := workflow.NewMapping()
	for _, l := range legs {
		vars := workflow.NewMapping()
		for i, d := range dims {
			vars.Set(param.EnvName(d.Name), l[i])
		}
		out.Set(workflow.Identifier(strings.Join(l, "_")), vars)
	}
	return out
}

func displayName(in workflow.Input) string {
	if in.Description != "" {
		return in.Description
	}
	return in.Arg
}

func quotedIfEmpty(v string) yaml.Style {
	if v == "" {
		return yaml.DoubleQuotedStyle
	}
	return 0
}
