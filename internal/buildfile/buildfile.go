// Package buildfile loads declarative build definitions from HCL.
//
// An atom.hcl file declares params, targets whose tasks are shell commands,
// and CI workflows:
//
//	param "build-version" {
//	  description = "Version to stamp"
//	  default     = "0.1.0"
//	}
//
//	target "Pack" {
//	  depends_on         = ["Compile"]
//	  requires           = ["build-version"]
//	  produces_artifacts = ["packages"]
//	  run                = ["dotnet pack -o \"$ATOM_ARTIFACTS_DIR/packages\""]
//	}
//
//	workflow "ci" {
//	  trigger "push" { branches = ["main"] }
//	  job "pack" { targets = ["Pack"] }
//	}
//
// Key types:
//   - [File] is the decoded build file
//   - [Runtime] supplies the collaborators shell tasks run with
package buildfile

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"atom/internal/param"
	"atom/internal/target"
	"atom/internal/workflow"
)

// ErrInvalidBuildFile indicates a build file that parsed but holds values
// that cannot be used.
var ErrInvalidBuildFile = errors.New("invalid build file")

// fileRoot decodes every top-level block of a build file.
type fileRoot struct {
	Params    []*paramBlock    `hcl:"param,block"`
	Targets   []*targetBlock   `hcl:"target,block"`
	Workflows []*workflowBlock `hcl:"workflow,block"`
}

type paramBlock struct {
	Name        string   `hcl:"name,label"`
	Arg         string   `hcl:"arg,optional"`
	Description string   `hcl:"description,optional"`
	Default     string   `hcl:"default,optional"`
	Secret      bool     `hcl:"secret,optional"`
	Sources     []string `hcl:"sources,optional"`
}

type consumesBlock struct {
	Target    string   `hcl:"target,label"`
	Artifacts []string `hcl:"artifacts,optional"`
	Variables []string `hcl:"variables,optional"`
}

type targetBlock struct {
	Name              string           `hcl:"name,label"`
	Description       string           `hcl:"description,optional"`
	Hidden            bool             `hcl:"hidden,optional"`
	DependsOn         []string         `hcl:"depends_on,optional"`
	Requires          []string         `hcl:"requires,optional"`
	ProducesArtifacts []string         `hcl:"produces_artifacts,optional"`
	ProducesVariables []string         `hcl:"produces_variables,optional"`
	Consumes          []*consumesBlock `hcl:"consumes,block"`
	Run               []string         `hcl:"run,optional"`
	Dir               string           `hcl:"dir,optional"`
	Retries           int              `hcl:"retries,optional"`
	RetryDelay        string           `hcl:"retry_delay,optional"`
}

type triggerBlock struct {
	Kind     string   `hcl:"kind,label"`
	Branches []string `hcl:"branches,optional"`
	Tags     []string `hcl:"tags,optional"`
	Paths    []string `hcl:"paths,optional"`
	Cron     string   `hcl:"cron,optional"`
	Inputs   []string `hcl:"inputs,optional"`
}

type matrixBlock struct {
	Name   string   `hcl:"name,label"`
	Values []string `hcl:"values"`
}

type jobBlock struct {
	Name        string            `hcl:"name,label"`
	Targets     []string          `hcl:"targets"`
	Matrix      []*matrixBlock    `hcl:"matrix,block"`
	RunsOn      []string          `hcl:"runs_on,optional"`
	Pool        string            `hcl:"pool,optional"`
	Permissions map[string]string `hcl:"permissions,optional"`
	Entrypoint  string            `hcl:"entrypoint,optional"`
}

type workflowBlock struct {
	Name        string            `hcl:"name,label"`
	Providers   []string          `hcl:"providers,optional"`
	Triggers    []*triggerBlock   `hcl:"trigger,block"`
	Jobs        []*jobBlock       `hcl:"job,block"`
	RunsOn      []string          `hcl:"runs_on,optional"`
	Pool        string            `hcl:"pool,optional"`
	Permissions map[string]string `hcl:"permissions,optional"`
	Entrypoint  string            `hcl:"entrypoint,optional"`
}

// Target is a target declared in a build file.
type Target struct {
	Name              string
	Description       string
	Hidden            bool
	DependsOn         []string
	Requires          []string
	ProducesArtifacts []string
	ProducesVariables []string
	ConsumedArtifacts []target.ArtifactRef
	ConsumedVariables []target.VariableRef

	// Run holds shell commands executed in order.
	Run []string

	// Dir is the working directory for Run, relative to the build file.
	Dir string

	// Retries is the number of extra attempts per command.
	Retries    int
	RetryDelay time.Duration
}

// File is a decoded build file.
type File struct {
	Path      string
	Params    []param.Definition
	Targets   []Target
	Workflows []workflow.Definition
}

// Load reads and decodes the build file at path.
func Load(path string) (*File, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read build file: %w", err)
	}
	return Parse(src, path)
}

// Parse decodes build file source. filename is used in diagnostics.
func Parse(src []byte, filename string) (*File, error) {
	parser := hclparse.NewParser()
	hclFile, diags := parser.ParseHCL(src, filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse build file %s: %w", filename, diags)
	}

	var root fileRoot
	diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode build file %s: %w", filename, diags)
	}

	f := &File{Path: filename}
	for _, p := range root.Params {
		def, err := translateParam(p)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		f.Params = append(f.Params, def)
	}
	for _, t := range root.Targets {
		tgt, err := translateTarget(t)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		f.Targets = append(f.Targets, tgt)
	}
	for _, w := range root.Workflows {
		def, err := translateWorkflow(w)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", filename, err)
		}
		f.Workflows = append(f.Workflows, def)
	}
	return f, nil
}

var sourceNames = map[string]param.Source{
	"cli":     param.SourceCommandLine,
	"env":     param.SourceEnvironmentVariable,
	"secret":  param.SourceSecret,
	"default": param.SourceDefault,
}

func translateParam(p *paramBlock) (param.Definition, error) {
	def := param.Definition{
		Name:         p.Name,
		ArgName:      p.Arg,
		Description:  p.Description,
		DefaultValue: p.Default,
		IsSecret:     p.Secret,
	}
	for _, s := range p.Sources {
		src, ok := sourceNames[s]
		if !ok {
			return def, fmt.Errorf("%w: param %q: unknown source %q (want cli, env, secret or default)", ErrInvalidBuildFile, p.Name, s)
		}
		def.Sources |= src
	}
	return def, nil
}

func translateTarget(t *targetBlock) (Target, error) {
	tgt := Target{
		Name:              t.Name,
		Description:       t.Description,
		Hidden:            t.Hidden,
		DependsOn:         t.DependsOn,
		Requires:          t.Requires,
		ProducesArtifacts: t.ProducesArtifacts,
		ProducesVariables: t.ProducesVariables,
		Run:               t.Run,
		Dir:               t.Dir,
		Retries:           t.Retries,
	}
	if t.Retries < 0 {
		return tgt, fmt.Errorf("%w: target %q: retries must not be negative", ErrInvalidBuildFile, t.Name)
	}
	if t.RetryDelay != "" {
		d, err := time.ParseDuration(t.RetryDelay)
		if err != nil {
			return tgt, fmt.Errorf("%w: target %q: retry_delay: %v", ErrInvalidBuildFile, t.Name, err)
		}
		tgt.RetryDelay = d
	}
	for _, c := range t.Consumes {
		for _, a := range c.Artifacts {
			tgt.ConsumedArtifacts = append(tgt.ConsumedArtifacts, target.ArtifactRef{Target: c.Target, Name: a})
		}
		for _, v := range c.Variables {
			tgt.ConsumedVariables = append(tgt.ConsumedVariables, target.VariableRef{Target: c.Target, Name: v})
		}
	}
	return tgt, nil
}

func translateWorkflow(w *workflowBlock) (workflow.Definition, error) {
	def := workflow.Definition{
		Name:      w.Name,
		Providers: w.Providers,
		Options: workflow.Options{
			RunsOn:      w.RunsOn,
			Pool:        w.Pool,
			Permissions: w.Permissions,
			Entrypoint:  w.Entrypoint,
		},
	}
	for _, t := range w.Triggers {
		trigger, err := translateTrigger(t)
		if err != nil {
			return def, fmt.Errorf("workflow %q: %w", w.Name, err)
		}
		def.Triggers = append(def.Triggers, trigger)
	}
	for _, j := range w.Jobs {
		job := workflow.JobDefinition{
			Name:    j.Name,
			Targets: j.Targets,
			Options: workflow.Options{
				RunsOn:      j.RunsOn,
				Pool:        j.Pool,
				Permissions: j.Permissions,
				Entrypoint:  j.Entrypoint,
			},
		}
		for _, m := range j.Matrix {
			job.Matrix = append(job.Matrix, workflow.MatrixDimension{Name: m.Name, Values: m.Values})
		}
		def.Jobs = append(def.Jobs, job)
	}
	return def, nil
}

func translateTrigger(t *triggerBlock) (workflow.Trigger, error) {
	switch workflow.TriggerKind(t.Kind) {
	case workflow.TriggerManual:
		return workflow.ManualTrigger{Inputs: t.Inputs}, nil
	case workflow.TriggerPush:
		return workflow.PushTrigger{Branches: t.Branches, Tags: t.Tags, Paths: t.Paths}, nil
	case workflow.TriggerPullRequest:
		return workflow.PullRequestTrigger{Branches: t.Branches}, nil
	case workflow.TriggerSchedule:
		return workflow.ScheduleTrigger{Cron: t.Cron}, nil
	default:
		return nil, fmt.Errorf("%w: unknown trigger %q (want manual, push, pull_request or schedule)", ErrInvalidBuildFile, t.Kind)
	}
}
