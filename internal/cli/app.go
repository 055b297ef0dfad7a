// Package cli implements the atom command line.
//
// The root command takes target names as positional arguments and one
// --<flag> per registered parameter:
//
//	atom Pack --build-version 1.2.3
//	atom --gen
//	atom --list
//
// Key types:
//   - [App] holds the run's collaborators, built once by [NewApp]
//   - [ExitError] carries exit codes out of cobra RunE functions
//   - [ExecuteResult] is what [RunWithConfig] returns to main
package cli

import (
	"errors"
	"fmt"
	"io"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"atom/internal/build"
	"atom/internal/buildfile"
	"atom/internal/ci"
	"atom/internal/config"
	"atom/internal/logging"
	"atom/internal/mask"
	"atom/internal/output"
	"atom/internal/param"
	"atom/internal/process"
	"atom/internal/report"
	"atom/internal/workflow"
	"atom/internal/workflow/devops"
	"atom/internal/workflow/github"
)

// Options overrides the process-level collaborators of [NewApp].
// Zero fields fall back to the real process.
type Options struct {
	Stdout    io.Writer
	Stderr    io.Writer
	LookupEnv func(string) (string, bool)
	Runner    process.Runner
}

// App holds the collaborators of one CLI run.
//
// Targets and workflows are registered on Definition and Workflows before
// the root command is built, either from Go code or through
// [App.LoadBuildFile].
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Printer *output.Printer

	Masker    *mask.Masker
	Params    *param.Service
	Reports   *report.Service
	Artifacts *build.ArtifactStore
	Variables *build.VariableStore
	CI        *ci.Environment
	Runner    process.Runner

	Definition *build.Definition
	Workflows  []workflow.Definition

	// Writers render generated workflows, one per CI provider.
	Writers []workflow.Writer
}

// NewApp wires the collaborators described by cfg.
func NewApp(cfg *config.Config, opts Options) (*App, error) {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.LookupEnv == nil {
		opts.LookupEnv = os.LookupEnv
	}
	if opts.Runner == nil {
		opts.Runner = process.NewExecRunner()
	}

	masker := mask.New()
	reports := report.NewService(masker)

	logger, err := logging.New(logging.Options{
		Level:  cfg.Log.Level,
		File:   cfg.Log.File,
		Output: opts.Stderr,
		Masker: masker,
		Cores:  []zapcore.Core{reports.Core()},
	})
	if err != nil {
		return nil, err
	}

	env := ci.NewEnvironment(ci.Detect(opts.LookupEnv), opts.LookupEnv, opts.Stdout)

	params := param.NewService(masker)
	params.SetEnvLookup(opts.LookupEnv)
	params.AddSecretProvider(param.NewFileSecretProvider(cfg.Secrets.File))

	variables := build.NewVariableStore(
		func(name, value string) error {
			params.SetVariable(name, value)
			return nil
		},
		env.PublishVariable,
	)

	return &App{
		Config:     cfg,
		Logger:     logger,
		Printer:    output.NewPrinterWithWriter(opts.Stdout),
		Masker:     masker,
		Params:     params,
		Reports:    reports,
		Artifacts:  build.NewArtifactStore(cfg.ArtifactsDir),
		Variables:  variables,
		CI:         env,
		Runner:     opts.Runner,
		Definition: build.NewDefinition(),
		Writers: []workflow.Writer{
			github.NewWriter(cfg.Workflows.GitHubDir),
			devops.NewWriter(cfg.Workflows.DevOpsDir),
		},
	}, nil
}

// LoadBuildFile registers the params, targets and workflows declared in the
// build file at path. A missing file registers nothing.
func (app *App) LoadBuildFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		app.Logger.Debug("no build file", zap.String("path", path))
		return nil
	}

	f, err := buildfile.Load(path)
	if err != nil {
		return err
	}
	rt := &buildfile.Runtime{
		Runner:    app.Runner,
		Params:    app.Params,
		Artifacts: app.Artifacts,
		Variables: app.Variables,
	}
	if err := f.Register(app.Definition, rt); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	app.Workflows = append(app.Workflows, f.Workflows...)
	return nil
}

// Close flushes the logger.
func (app *App) Close() {
	_ = app.Logger.Sync()
}

// headless reports whether the run should behave as an unattended CI run.
func (app *App) headless(flag bool) bool {
	return flag || app.CI.Host.IsCI()
}
