package buildfile

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"atom/internal/build"
	"atom/internal/mask"
	"atom/internal/param"
	"atom/internal/process"
	"atom/internal/target"
	"atom/internal/workflow"
)

const sample = `
param "build-version" {
  description = "Version to stamp"
  default     = "0.1.0"
}

param "nuget-api-key" {
  arg     = "nuget-key"
  secret  = true
  sources = ["env", "secret"]
}

target "Compile" {
  description = "Builds the solution"
  run         = ["make build"]
}

target "Pack" {
  depends_on         = ["Compile"]
  requires           = ["build-version"]
  produces_artifacts = ["packages"]
  produces_variables = ["package-version"]
  run                = ["make pack"]
  dir                = "src"
  retries            = 2
  retry_delay        = "10ms"
}

target "Publish" {
  hidden   = true
  requires = ["nuget-api-key"]
  consumes "Pack" {
    artifacts = ["packages"]
    variables = ["package-version"]
  }
  run = ["make publish"]
}

workflow "ci" {
  providers = ["github"]
  runs_on   = ["ubuntu-latest"]
  permissions = {
    contents = "read"
  }

  trigger "push" {
    branches = ["main"]
    tags     = ["v*"]
  }
  trigger "pull_request" {}
  trigger "schedule" { cron = "0 3 * * *" }
  trigger "manual" { inputs = ["build-version"] }

  job "pack" {
    targets = ["Pack"]
    matrix "os" {
      values = ["linux", "windows"]
    }
  }

  job "publish" {
    targets    = ["Publish"]
    pool       = "windows-latest"
    entrypoint = "./atom.sh"
  }
}
`

func TestParse(t *testing.T) {
	f, err := Parse([]byte(sample), "atom.hcl")
	require.NoError(t, err)

	require.Len(t, f.Params, 2)
	assert.Equal(t, param.Definition{Name: "build-version", Description: "Version to stamp", DefaultValue: "0.1.0"}, f.Params[0])
	assert.Equal(t, "nuget-key", f.Params[1].Arg())
	assert.True(t, f.Params[1].IsSecret)
	assert.Equal(t, param.SourceEnvironmentVariable|param.SourceSecret, f.Params[1].Sources)

	require.Len(t, f.Targets, 3)
	pack := f.Targets[1]
	assert.Equal(t, "Pack", pack.Name)
	assert.Equal(t, []string{"Compile"}, pack.DependsOn)
	assert.Equal(t, []string{"packages"}, pack.ProducesArtifacts)
	assert.Equal(t, []string{"make pack"}, pack.Run)
	assert.Equal(t, 2, pack.Retries)
	assert.Equal(t, 10*time.Millisecond, pack.RetryDelay)

	publish := f.Targets[2]
	assert.True(t, publish.Hidden)
	assert.Equal(t, []target.ArtifactRef{{Target: "Pack", Name: "packages"}}, publish.ConsumedArtifacts)
	assert.Equal(t, []target.VariableRef{{Target: "Pack", Name: "package-version"}}, publish.ConsumedVariables)

	require.Len(t, f.Workflows, 1)
	wf := f.Workflows[0]
	assert.Equal(t, "ci", wf.Name)
	assert.Equal(t, []string{"github"}, wf.Providers)
	assert.Equal(t, map[string]string{"contents": "read"}, wf.Options.Permissions)
	assert.Equal(t, []workflow.Trigger{
		workflow.PushTrigger{Branches: []string{"main"}, Tags: []string{"v*"}},
		workflow.PullRequestTrigger{},
		workflow.ScheduleTrigger{Cron: "0 3 * * *"},
		workflow.ManualTrigger{Inputs: []string{"build-version"}},
	}, wf.Triggers)

	require.Len(t, wf.Jobs, 2)
	assert.Equal(t, []workflow.MatrixDimension{{Name: "os", Values: []string{"linux", "windows"}}}, wf.Jobs[0].Matrix)
	assert.Equal(t, "windows-latest", wf.Jobs[1].Options.Pool)
	assert.Equal(t, "./atom.sh", wf.Jobs[1].Options.Entrypoint)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		src     string
		wantErr error
		wantMsg string
	}{
		{name: "syntax", src: `target "A" {`, wantMsg: "failed to parse build file"},
		{name: "unknown attribute", src: `target "A" { colour = "red" }`, wantMsg: "failed to decode build file"},
		{name: "unknown block", src: `stage "A" {}`, wantMsg: "failed to decode build file"},
		{name: "bad source", src: `param "p" { sources = ["vault"] }`, wantErr: ErrInvalidBuildFile},
		{name: "bad delay", src: `target "A" { retry_delay = "soon" }`, wantErr: ErrInvalidBuildFile},
		{name: "negative retries", src: `target "A" { retries = -1 }`, wantErr: ErrInvalidBuildFile},
		{name: "bad trigger", src: `workflow "ci" { trigger "tag" {} }`, wantErr: ErrInvalidBuildFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "atom.hcl")
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
			if tt.wantMsg != "" {
				assert.Contains(t, err.Error(), tt.wantMsg)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "atom.hcl")
	require.NoError(t, os.WriteFile(path, []byte(sample), 0644))

	f, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, f.Path)
	assert.Len(t, f.Targets, 3)

	_, err = Load(filepath.Join(t.TempDir(), "missing.hcl"))
	assert.ErrorContains(t, err, "failed to read build file")
}

// variablesRunner writes variables into ATOM_VARIABLES_FILE and records
// every command, like a shell script appending to the file would.
type variablesRunner struct {
	mu        sync.Mutex
	variables map[string]string
	exitCodes map[string]int
	commands  []process.Command
}

func (r *variablesRunner) Run(ctx context.Context, cmd process.Command, handler process.LineHandler) (int, error) {
	r.mu.Lock()
	r.commands = append(r.commands, cmd)
	r.mu.Unlock()

	script := cmd.Args[len(cmd.Args)-1]
	if handler != nil {
		handler(process.Stdout, "running "+script)
	}
	if vars, ok := r.variables[script]; ok {
		path := lookup(cmd.Env, EnvVariablesFile)
		if err := os.WriteFile(path, []byte(vars), 0644); err != nil {
			return 1, err
		}
	}
	return r.exitCodes[script], nil
}

func lookup(env []string, key string) string {
	value := ""
	for _, kv := range env {
		if k, v, ok := strings.Cut(kv, "="); ok && k == key {
			value = v
		}
	}
	return value
}

type fixture struct {
	runner    *variablesRunner
	params    *param.Service
	artifacts *build.ArtifactStore
	variables *build.VariableStore
	graph     *build.Graph
}

func newFixture(t *testing.T, src string, runner *variablesRunner) *fixture {
	t.Helper()
	f, err := Parse([]byte(src), filepath.Join(t.TempDir(), "atom.hcl"))
	require.NoError(t, err)

	params := param.NewService(mask.New())
	params.SetEnvLookup(func(string) (string, bool) { return "", false })
	variables := build.NewVariableStore(func(name, value string) error {
		params.SetVariable(name, value)
		return nil
	})
	fx := &fixture{
		runner:    runner,
		params:    params,
		artifacts: build.NewArtifactStore(t.TempDir()),
		variables: variables,
	}

	def := build.NewDefinition()
	require.NoError(t, f.Register(def, &Runtime{
		Runner:    runner,
		Params:    params,
		Artifacts: fx.artifacts,
		Variables: variables,
	}))
	require.NoError(t, params.Register(def.Params()...))

	fx.graph, err = build.NewGraph(def)
	require.NoError(t, err)
	return fx
}

func (fx *fixture) execute(t *testing.T, names ...string) *build.Result {
	t.Helper()
	exec := build.NewExecutor(fx.graph, fx.params)
	exec.SetVariableStore(fx.variables)
	res, err := exec.Execute(context.Background(), names)
	require.NoError(t, err)
	return res
}

func TestRegister_RunsCommandsWithParamEnvironment(t *testing.T) {
	runner := &variablesRunner{}
	fx := newFixture(t, `
param "configuration" { default = "Release" }
param "token" {
  secret  = true
  default = "s3cret"
}
target "Compile" {
  requires = ["configuration"]
  run      = ["make restore", "make build"]
  dir      = "src"
}
`, runner)

	res := fx.execute(t, "Compile")
	assert.Equal(t, build.Succeeded, res.Status("Compile"))

	require.Len(t, runner.commands, 2)
	assert.Equal(t, "make restore", runner.commands[0].Args[len(runner.commands[0].Args)-1])
	cmd := runner.commands[1]
	assert.Equal(t, "src", filepath.Base(cmd.Dir))
	assert.Equal(t, "Release", lookup(cmd.Env, "CONFIGURATION"))
	assert.Equal(t, "Compile", lookup(cmd.Env, EnvTarget))
	assert.NotEmpty(t, lookup(cmd.Env, EnvArtifactsDir))
	assert.Empty(t, lookup(cmd.Env, "TOKEN"), "secrets are only passed to targets requiring them")
}

func TestRegister_NonZeroExitFailsTarget(t *testing.T) {
	runner := &variablesRunner{exitCodes: map[string]int{"make test": 2}}
	fx := newFixture(t, `
target "Test" { run = ["make test", "make report"] }
target "Deploy" {
  depends_on = ["Test"]
  run        = ["make deploy"]
}
`, runner)

	res := fx.execute(t, "Deploy")
	assert.Equal(t, build.Failed, res.Status("Test"))
	assert.Equal(t, build.Skipped, res.Status("Deploy"))

	var stepErr *build.StepFailedError
	require.True(t, errors.As(res.State("Test").Err, &stepErr))
	assert.Contains(t, stepErr.Message, `"make test" exited with code 2`)
	assert.Len(t, runner.commands, 1, "later commands and dependents do not run")
}

func TestRegister_RetriesCommand(t *testing.T) {
	runner := &variablesRunner{exitCodes: map[string]int{"flaky": 1}}
	fx := newFixture(t, `
target "Flaky" {
  run     = ["flaky"]
  retries = 2
}
`, runner)

	res := fx.execute(t, "Flaky")
	assert.Equal(t, build.Failed, res.Status("Flaky"))
	assert.Len(t, runner.commands, 3)
}

func TestRegister_VariablesFileProducesVariables(t *testing.T) {
	runner := &variablesRunner{variables: map[string]string{
		"make version": "# comment\npackage-version=1.2.3\n\n",
	}}
	fx := newFixture(t, `
target "Version" {
  produces_variables = ["package-version"]
  run                = ["make version"]
}
target "Publish" {
  consumes "Version" { variables = ["package-version"] }
  run = ["make publish"]
}
`, runner)

	res := fx.execute(t, "Publish")
	assert.Equal(t, build.Succeeded, res.Status("Version"))
	assert.Equal(t, build.Succeeded, res.Status("Publish"))

	v, ok := fx.variables.Get("package-version")
	require.True(t, ok)
	assert.Equal(t, "1.2.3", v)

	require.Len(t, runner.commands, 2)
	assert.Equal(t, "1.2.3", lookup(runner.commands[1].Env, "PACKAGE_VERSION"))
}

func TestRegister_MalformedVariablesFile(t *testing.T) {
	runner := &variablesRunner{variables: map[string]string{"make version": "no equals sign\n"}}
	fx := newFixture(t, `target "Version" { run = ["make version"] }`, runner)

	res := fx.execute(t, "Version")
	assert.Equal(t, build.Failed, res.Status("Version"))
	assert.ErrorContains(t, res.State("Version").Err, "expected name=value")
}

func TestRegister_DuplicateTarget(t *testing.T) {
	f, err := Parse([]byte(`
target "A" {}
target "A" {}
`), "atom.hcl")
	require.NoError(t, err)

	err = f.Register(build.NewDefinition(), &Runtime{Runner: &process.MockRunner{}})
	assert.ErrorIs(t, err, build.ErrDuplicateTarget)
}
