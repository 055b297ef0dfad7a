package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"atom/internal/config"
)

// ExecuteResult is the outcome of a CLI invocation.
type ExecuteResult struct {
	ExitCode int
	Err      error
}

// Run executes the root command with args and maps the outcome to an exit
// code. Errors other than [ExitError] are printed and exit with 1.
func (app *App) Run(ctx context.Context, args []string) ExecuteResult {
	rootCmd := NewRootCommand(app)
	rootCmd.SetOut(app.Printer.Writer())
	rootCmd.SetErr(app.Printer.Writer())
	rootCmd.SetArgs(args)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		if code, ok := IsExitError(err); ok {
			return ExecuteResult{ExitCode: code, Err: err}
		}
		app.Printer.Error(err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return ExecuteResult{}
}

// RunWithConfig builds an [App] from cfg, loads the configured build file and
// runs args against it.
func RunWithConfig(ctx context.Context, cfg *config.Config, args []string) ExecuteResult {
	app, err := NewApp(cfg, Options{})
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	defer app.Close()

	if err := app.LoadBuildFile(cfg.BuildFile); err != nil {
		app.Printer.Error(err)
		return ExecuteResult{ExitCode: 1, Err: err}
	}
	return app.Run(ctx, args)
}

// Execute is the entry point of the atom binary. It loads configuration,
// runs the command line and exits the process with the resulting code.
// SIGINT and SIGTERM cancel the run; targets not yet started stay NotRun.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	cfg, err := config.NewLoader().Load()
	if err != nil {
		stop()
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	result := RunWithConfig(ctx, cfg, os.Args[1:])
	stop()
	os.Exit(result.ExitCode)
}
