package cli

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"atom/internal/build"
	"atom/internal/config"
	"atom/internal/process"
	"atom/internal/target"
)

// MockTaskRecorder builds tasks that record their execution order.
type MockTaskRecorder struct {
	mu sync.Mutex
	// Ran records the target of every executed task, in order.
	Ran []string
	// FailOn maps a target name to the error its task returns.
	FailOn map[string]error
}

func (m *MockTaskRecorder) Task(name string) target.Task {
	return func(ctx context.Context) error {
		m.mu.Lock()
		m.Ran = append(m.Ran, name)
		m.mu.Unlock()
		return m.FailOn[name]
	}
}

// testApp bundles an App with the buffers and fakes it was built with.
type testApp struct {
	*App
	Dir    string
	Stdout *bytes.Buffer
	Stderr *bytes.Buffer
	Runner *process.MockRunner
}

// newTestApp creates an App rooted in a temporary directory. env replaces
// the process environment.
func newTestApp(t *testing.T, env map[string]string) *testApp {
	t.Helper()

	dir := t.TempDir()
	cfg := config.DefaultConfig()
	cfg.BuildFile = filepath.Join(dir, "atom.hcl")
	cfg.ArtifactsDir = filepath.Join(dir, ".atom", "artifacts")
	cfg.Secrets.File = ""
	cfg.Workflows.GitHubDir = filepath.Join(dir, ".github", "workflows")
	cfg.Workflows.DevOpsDir = filepath.Join(dir, ".devops", "workflows")

	stdout := &bytes.Buffer{}
	stderr := &bytes.Buffer{}
	runner := &process.MockRunner{}

	app, err := NewApp(cfg, Options{
		Stdout: stdout,
		Stderr: stderr,
		LookupEnv: func(key string) (string, bool) {
			v, ok := env[key]
			return v, ok
		},
		Runner: runner,
	})
	require.NoError(t, err)
	t.Cleanup(app.Close)

	return &testApp{App: app, Dir: dir, Stdout: stdout, Stderr: stderr, Runner: runner}
}

// registerPipeline adds Setup <- Build <- Test <- Deploy plus an unrelated
// hidden target.
func registerPipeline(def *build.Definition, rec *MockTaskRecorder) {
	def.MustAddTarget("Setup", func(d *target.Definition) *target.Definition {
		return d.DescribedAs("Restores tools").Executes(rec.Task("Setup"))
	}).
		MustAddTarget("Build", func(d *target.Definition) *target.Definition {
			return d.DescribedAs("Compiles").DependsOn("Setup").Executes(rec.Task("Build"))
		}).
		MustAddTarget("Test", func(d *target.Definition) *target.Definition {
			return d.DescribedAs("Runs tests").DependsOn("Build").Executes(rec.Task("Test"))
		}).
		MustAddTarget("Deploy", func(d *target.Definition) *target.Definition {
			return d.DependsOn("Test").Executes(rec.Task("Deploy"))
		}).
		MustAddTarget("Internal", func(d *target.Definition) *target.Definition {
			return d.IsHidden().Executes(rec.Task("Internal"))
		})
}

// writeBuildFile writes content as the app's build file.
func writeBuildFile(t *testing.T, app *testApp, content string) {
	t.Helper()
	err := os.WriteFile(app.Config.BuildFile, []byte(content), 0644)
	require.NoError(t, err)
}
