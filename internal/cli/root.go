package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"atom/internal/build"
	"atom/internal/logging"
	"atom/internal/output"
	"atom/internal/param"
	"atom/internal/workflow"
)

type rootOptions struct {
	headless bool
	gen      bool
	skipDeps bool
	list     bool
}

// NewRootCommand builds the root command for app. Every param registered on
// app.Definition gets a string flag named after its ArgName.
func NewRootCommand(app *App) *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "atom [target...] [--<param> value...]",
		Short: "Build orchestration: run targets locally, generate CI workflows",
		Long: `Run build targets in dependency order, or generate CI workflow files
from the same target graph.

Examples:
  atom Test
  atom Pack --build-version 1.2.3
  atom --gen
  atom --list`,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.Flags().BoolVar(&opts.headless, "headless", false, "Run unattended: omit NotRun rows and fail --gen on stale files")
	cmd.Flags().BoolVar(&opts.gen, "gen", false, "Generate workflow files instead of running targets")
	cmd.Flags().BoolVar(&opts.skipDeps, "skip-deps", false, "Run only the named targets, assuming dependencies already ran")
	cmd.Flags().BoolVar(&opts.list, "list", false, "List available targets")

	collisions := addParamFlags(cmd.Flags(), app.Definition.Params())

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if len(collisions) > 0 {
			return fmt.Errorf("param flags collide with built-in flags: --%s", strings.Join(collisions, ", --"))
		}
		if !opts.gen && !opts.list && len(args) == 0 {
			return cmd.Help()
		}

		if err := app.registerParams(); err != nil {
			return err
		}
		app.Params.SetArgs(changedParamFlags(cmd.Flags(), app.Definition.Params()))

		graph, err := build.NewGraph(app.Definition)
		if err != nil {
			return err
		}

		ctx := logging.WithLogger(cmd.Context(), app.Logger)
		switch {
		case opts.list:
			app.listTargets(graph)
			return nil
		case opts.gen:
			return app.generate(graph, app.headless(opts.headless))
		default:
			return app.execute(ctx, graph, args, opts)
		}
	}

	return cmd
}

// registerParams adds params of the definition not yet known to the param
// service.
func (app *App) registerParams() error {
	for _, d := range app.Definition.Params() {
		if _, ok := app.Params.Definition(d.Name); ok {
			continue
		}
		if err := app.Params.Register(d); err != nil {
			return err
		}
	}
	return nil
}

// addParamFlags registers one flag per param and returns the flag names
// already taken by built-in flags.
func addParamFlags(fs *pflag.FlagSet, defs []param.Definition) []string {
	var collisions []string
	for _, d := range defs {
		if fs.Lookup(d.Arg()) != nil {
			collisions = append(collisions, d.Arg())
			continue
		}
		usage := d.Description
		if d.IsSecret {
			usage += " (secret)"
		}
		fs.String(d.Arg(), "", strings.TrimSpace(usage))
	}
	return collisions
}

// changedParamFlags returns the values of param flags given on the command
// line, keyed by flag name.
func changedParamFlags(fs *pflag.FlagSet, defs []param.Definition) map[string]string {
	args := make(map[string]string)
	for _, d := range defs {
		if f := fs.Lookup(d.Arg()); f != nil && f.Changed {
			args[d.Arg()] = f.Value.String()
		}
	}
	return args
}

func (app *App) listTargets(graph *build.Graph) {
	var targets []output.TargetInfo
	for _, n := range graph.Nodes() {
		if n.Target.Hidden {
			continue
		}
		targets = append(targets, output.TargetInfo{
			Name:         n.Name(),
			Description:  n.Target.Description,
			Dependencies: graph.DependencyNames(n.Name()),
			Params:       n.Target.Requirements,
		})
	}
	app.Printer.Targets(targets)
}

func (app *App) execute(ctx context.Context, graph *build.Graph, targets []string, opts *rootOptions) error {
	headless := app.headless(opts.headless)

	executor := build.NewExecutor(graph, app.Params)
	executor.SetArtifactStore(app.Artifacts)
	executor.SetVariableStore(app.Variables)
	executor.SetReportService(app.Reports)
	executor.SetSkipDependencies(opts.skipDeps)
	executor.SetProgressCallback(app.Printer.TargetStarted)

	res, err := executor.Execute(ctx, targets)
	if res == nil {
		return err
	}

	sum := res.Summary(headless)
	if rerr := app.Reports.RenderConsole(app.Printer.Writer(), sum); rerr != nil {
		app.Logger.Warn("failed to render report", zap.Error(rerr))
	}
	if app.CI.Host.IsCI() {
		var sb strings.Builder
		if werr := app.Reports.WriteMarkdown(&sb, sum); werr == nil {
			werr = app.CI.WriteSummary(sb.String())
			if werr != nil {
				app.Logger.Warn("failed to publish job summary", zap.Error(werr))
			}
		}
	}

	if err != nil {
		app.Printer.Error(err)
	}
	if code := res.ExitCode(); code != 0 {
		return NewExitError(code)
	}
	return nil
}

func (app *App) generate(graph *build.Graph, headless bool) error {
	if len(app.Workflows) == 0 {
		app.Printer.Warning("no workflows declared")
		return nil
	}

	gen := workflow.NewGenerator(graph, app.Definition.Params())
	gen.SetDefaults(workflow.Options{Entrypoint: app.Config.Workflows.Entrypoint})
	gen.SetArtifactsDir(app.Config.ArtifactsDir)

	models := make([]*workflow.Model, 0, len(app.Workflows))
	for _, def := range app.Workflows {
		m, err := gen.Generate(def)
		if err != nil {
			return fmt.Errorf("workflow %q: %w", def.Name, err)
		}
		models = append(models, m)
	}

	results, err := workflow.WriteAll(".", models, app.Writers)
	changes := make([]output.FileChange, 0, len(results))
	for _, r := range results {
		changes = append(changes, output.FileChange{Path: r.Path, Changed: r.Changed})
	}
	app.Printer.Generated(changes)
	if err != nil {
		return err
	}

	if headless && workflow.AnyChanged(results) {
		app.Printer.Warning("workflow files were out of date; commit the regenerated files")
		return NewExitError(1)
	}
	return nil
}
