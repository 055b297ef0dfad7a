package devops

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"atom/internal/build"
	"atom/internal/param"
	"atom/internal/target"
	"atom/internal/workflow"
)

func releaseModel(t *testing.T, triggers ...workflow.Trigger) *workflow.Model {
	t.Helper()
	def := build.NewDefinition().
		MustAddTarget("Compile", func(d *target.Definition) *target.Definition { return d }).
		MustAddTarget("Pack", func(d *target.Definition) *target.Definition {
			return d.DependsOn("Compile").ProducesArtifact("packages").ProducesVariable("build-version")
		}).
		MustAddTarget("Publish", func(d *target.Definition) *target.Definition {
			return d.ConsumesArtifact("Pack", "packages").
				ConsumesVariable("Pack", "build-version").
				RequiresParam("nuget-api-key")
		})
	g, err := build.NewGraph(def)
	require.NoError(t, err)

	gen := workflow.NewGenerator(g, []param.Definition{
		{Name: "nuget-api-key", IsSecret: true},
		{Name: "configuration"},
	})
	gen.SetArtifactsDir(".atom/artifacts")

	m, err := gen.Generate(workflow.Definition{
		Name:     "release",
		Triggers: triggers,
		Options:  workflow.Options{Pool: "windows-latest"},
		Jobs: []workflow.JobDefinition{
			{Name: "pack", Targets: []string{"Pack"}, Matrix: []workflow.MatrixDimension{
				{Name: "os", Values: []string{"linux", "windows"}},
				{Name: "configuration", Values: []string{"Debug", "Release"}},
			}},
			{Name: "publish", Targets: []string{"Publish"}},
		},
	})
	require.NoError(t, err)
	return m
}

func render(t *testing.T, m *workflow.Model) map[string]any {
	t.Helper()
	data, err := NewWriter(".devops/workflows").Render(m)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, yaml.Unmarshal(data, &doc))
	return doc
}

func field(t *testing.T, v any, keys ...string) any {
	t.Helper()
	for _, k := range keys {
		m, ok := v.(map[string]any)
		require.True(t, ok, "expected mapping at %q", k)
		v = m[k]
	}
	return v
}

func jobs(t *testing.T, doc map[string]any) map[string]any {
	t.Helper()
	out := make(map[string]any)
	for _, j := range doc["jobs"].([]any) {
		out[field(t, j, "job").(string)] = j
	}
	return out
}

func TestWriter_Path(t *testing.T) {
	w := NewWriter(".devops/workflows")
	assert.Equal(t, "devops", w.Provider())
	assert.Equal(t, ".devops/workflows/release.yml", w.Path(&workflow.Model{Name: "release"}))
}

func TestWriter_Render_NoTriggers(t *testing.T) {
	doc := render(t, releaseModel(t))

	assert.Equal(t, "none", doc["trigger"])
	assert.Equal(t, "none", doc["pr"])
	assert.NotContains(t, doc, "schedules")
}

func TestWriter_Render_Triggers(t *testing.T) {
	doc := render(t, releaseModel(t,
		workflow.PushTrigger{Branches: []string{"main"}},
		workflow.PullRequestTrigger{},
		workflow.ScheduleTrigger{Cron: "0 3 * * *"},
		workflow.ManualTrigger{Inputs: []string{"configuration"}},
	))

	assert.Equal(t, []any{"main"}, field(t, doc, "trigger", "branches", "include"))
	assert.Equal(t, []any{"*"}, doc["pr"])

	schedules := doc["schedules"].([]any)
	require.Len(t, schedules, 1)
	assert.Equal(t, "0 3 * * *", field(t, schedules[0], "cron"))

	params := doc["parameters"].([]any)
	require.Len(t, params, 1)
	assert.Equal(t, "configuration", field(t, params[0], "name"))
	assert.Equal(t, "", field(t, params[0], "default"))

	vars := doc["variables"].([]any)
	require.Len(t, vars, 1)
	assert.Equal(t, "${{ parameters.configuration }}", field(t, vars[0], "value"))
}

func TestWriter_Render_Jobs(t *testing.T) {
	byID := jobs(t, render(t, releaseModel(t)))

	pack := byID["pack"]
	assert.Nil(t, field(t, pack, "dependsOn"))
	assert.Equal(t, "windows-latest", field(t, pack, "pool", "vmImage"))

	matrix := field(t, pack, "strategy", "matrix").(map[string]any)
	assert.Len(t, matrix, 4)
	assert.Equal(t, map[string]any{"OS": "windows", "CONFIGURATION": "Debug"}, matrix["windows_Debug"])

	steps := field(t, pack, "steps").([]any)
	require.Len(t, steps, 4)
	assert.Equal(t, "self", field(t, steps[0], "checkout"))
	assert.Equal(t, "atom Pack --skip-deps --headless", field(t, steps[2], "script"))
	assert.Equal(t, "Pack", field(t, steps[2], "name"))
	assert.Equal(t, "PublishPipelineArtifact@1", field(t, steps[3], "task"))
	assert.Equal(t, "packages", field(t, steps[3], "inputs", "artifact"))

	publish := byID["publish"]
	assert.Equal(t, []any{"pack"}, field(t, publish, "dependsOn"))

	vars := field(t, publish, "variables").([]any)
	require.Len(t, vars, 1)
	assert.Equal(t, "BUILD_VERSION", field(t, vars[0], "name"))
	assert.Equal(t, "$[ dependencies.pack.outputs['Pack.build-version'] ]", field(t, vars[0], "value"))

	steps = field(t, publish, "steps").([]any)
	require.Len(t, steps, 3)
	assert.Equal(t, "DownloadPipelineArtifact@2", field(t, steps[1], "task"))
	assert.Equal(t, "$(System.DefaultWorkingDirectory)/.atom/artifacts/packages", field(t, steps[1], "inputs", "path"))
	assert.Equal(t, "$(NUGET_API_KEY)", field(t, steps[2], "env", "NUGET_API_KEY"))
}

func TestWriter_Render_SameJobVariableAsStepEnv(t *testing.T) {
	def := build.NewDefinition().
		MustAddTarget("Pack", func(d *target.Definition) *target.Definition {
			return d.ProducesVariable("build-version")
		}).
		MustAddTarget("Publish", func(d *target.Definition) *target.Definition {
			return d.ConsumesVariable("Pack", "build-version").RequiresParam("nuget-api-key")
		})
	g, err := build.NewGraph(def)
	require.NoError(t, err)
	gen := workflow.NewGenerator(g, []param.Definition{{Name: "nuget-api-key", IsSecret: true}})
	m, err := gen.Generate(workflow.Definition{
		Name: "release",
		Jobs: []workflow.JobDefinition{{Name: "release", Targets: []string{"Pack", "Publish"}}},
	})
	require.NoError(t, err)

	release := jobs(t, render(t, m))["release"]
	assert.Nil(t, field(t, release, "variables"))

	steps := field(t, release, "steps").([]any)
	require.Len(t, steps, 3)
	assert.Equal(t, "Pack", field(t, steps[1], "name"))
	assert.Nil(t, field(t, steps[1], "env", "BUILD_VERSION"))
	assert.Equal(t, "Publish", field(t, steps[2], "name"))
	assert.Equal(t, "$(Pack.build-version)", field(t, steps[2], "env", "BUILD_VERSION"))
	assert.Equal(t, "$(NUGET_API_KEY)", field(t, steps[2], "env", "NUGET_API_KEY"))
}
