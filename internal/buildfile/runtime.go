package buildfile

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"atom/internal/build"
	"atom/internal/logging"
	"atom/internal/param"
	"atom/internal/process"
	"atom/internal/target"
)

// Environment variables passed to every shell task.
const (
	EnvArtifactsDir  = "ATOM_ARTIFACTS_DIR"
	EnvVariablesFile = "ATOM_VARIABLES_FILE"
	EnvTarget        = "ATOM_TARGET"
)

// Runtime supplies what shell tasks need when they run.
type Runtime struct {
	Runner    process.Runner
	Params    *param.Service
	Artifacts *build.ArtifactStore
	Variables *build.VariableStore

	// Dir is the directory relative target dirs resolve against. Empty
	// means the directory of the build file.
	Dir string
}

// Register adds the file's params and targets to def. Each run command
// becomes one task executed through rt.
func (f *File) Register(def *build.Definition, rt *Runtime) error {
	if err := def.AddParam(f.Params...); err != nil {
		return err
	}

	base := rt.Dir
	if base == "" && f.Path != "" {
		base = filepath.Dir(f.Path)
	}

	for _, t := range f.Targets {
		dir := t.Dir
		if dir != "" && !filepath.IsAbs(dir) {
			dir = filepath.Join(base, dir)
		} else if dir == "" {
			dir = base
		}

		err := def.AddTarget(t.Name, func(d *target.Definition) *target.Definition {
			d.DescribedAs(t.Description).
				DependsOn(t.DependsOn...).
				RequiresParam(t.Requires...).
				ProducesArtifact(t.ProducesArtifacts...).
				ProducesVariable(t.ProducesVariables...)
			if t.Hidden {
				d.IsHidden()
			}
			for _, ref := range t.ConsumedArtifacts {
				d.ConsumesArtifact(ref.Target, ref.Name)
			}
			for _, ref := range t.ConsumedVariables {
				d.ConsumesVariable(ref.Target, ref.Name)
			}
			for _, script := range t.Run {
				task := rt.shellTask(t, script, dir)
				if t.Retries > 0 {
					task = build.WithRetry(task, t.Retries+1, t.RetryDelay)
				}
				d.Executes(task)
			}
			return d
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (rt *Runtime) shellTask(t Target, script, dir string) target.Task {
	return func(ctx context.Context) error {
		logger := logging.FromContext(ctx)

		varsFile, err := os.CreateTemp("", "atom-vars-*")
		if err != nil {
			return fmt.Errorf("failed to create variables file: %w", err)
		}
		varsPath := varsFile.Name()
		varsFile.Close()
		defer os.Remove(varsPath)

		cmd := process.Shell(script)
		cmd.Dir = dir
		cmd.Env = append(rt.environment(ctx, t), EnvVariablesFile+"="+varsPath, EnvTarget+"="+t.Name)

		logger.Debug("running command", zap.String("command", script))
		code, err := rt.Runner.Run(ctx, cmd, func(stream process.Stream, line string) {
			if stream == process.Stderr {
				logger.Info(line, zap.String("stream", "stderr"))
				return
			}
			logger.Info(line)
		})
		if err != nil {
			return fmt.Errorf("failed to run %q: %w", script, err)
		}
		if code != 0 {
			return build.NewStepFailedError(fmt.Sprintf("command %q exited with code %d", script, code))
		}

		return rt.collectVariables(ctx, varsPath)
	}
}

// environment returns resolved params as KEY=VALUE pairs. Secret params are
// only passed to targets that require them.
func (rt *Runtime) environment(ctx context.Context, t Target) []string {
	var env []string
	if rt.Artifacts != nil {
		root, err := filepath.Abs(rt.Artifacts.Root())
		if err != nil {
			root = rt.Artifacts.Root()
		}
		env = append(env, EnvArtifactsDir+"="+root)
	}
	if rt.Variables != nil {
		for _, name := range rt.Variables.Names() {
			v, _ := rt.Variables.Get(name)
			env = append(env, param.EnvName(name)+"="+v)
		}
	}
	if rt.Params == nil {
		return env
	}

	required := make(map[string]bool, len(t.Requires))
	for _, r := range t.Requires {
		required[r] = true
	}
	for _, d := range rt.Params.Definitions() {
		if d.IsSecret && !required[d.Name] {
			continue
		}
		if v, ok := rt.Params.Resolve(ctx, d); ok {
			env = append(env, d.EnvName()+"="+v)
		}
	}
	return env
}

// collectVariables reads name=value lines written by the command and
// records them as produced variables.
func (rt *Runtime) collectVariables(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to read variables file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNo := 1; scanner.Scan(); lineNo++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name, value, ok := strings.Cut(line, "=")
		if !ok || strings.TrimSpace(name) == "" {
			return build.NewStepFailedError(fmt.Sprintf("variables file line %d: expected name=value", lineNo))
		}
		if rt.Variables == nil {
			continue
		}
		if err := rt.Variables.Write(ctx, strings.TrimSpace(name), value); err != nil {
			return err
		}
	}
	return scanner.Err()
}
