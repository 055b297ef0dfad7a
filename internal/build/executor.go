package build

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"atom/internal/logging"
	"atom/internal/param"
	"atom/internal/report"
)

// ParamResolver resolves parameter values. [param.Service] implements it.
type ParamResolver interface {
	Definition(name string) (param.Definition, bool)
	Resolve(ctx context.Context, d param.Definition) (string, bool)
}

// ProgressCallback is invoked before each target starts.
//
// index is 1-based within the plan, total is the plan length.
type ProgressCallback func(index, total int, target string)

// Executor runs targets of a [Graph].
//
// Targets run sequentially in plan order, each at most once per call to
// [Executor.Execute]. A target whose dependency failed or was skipped is
// marked Skipped without running its tasks. Collaborators are injected:
// params resolve required parameters, the optional [ArtifactStore] and
// [VariableStore] enforce the output contract, and the optional
// [report.Service] receives structured failure data.
type Executor struct {
	graph     *Graph
	params    ParamResolver
	artifacts *ArtifactStore
	variables *VariableStore
	reports   *report.Service
	progress  ProgressCallback
	skipDeps  bool
	newRunID  func() string
}

// NewExecutor creates an Executor for graph.
func NewExecutor(graph *Graph, params ParamResolver) *Executor {
	return &Executor{
		graph:    graph,
		params:   params,
		newRunID: uuid.NewString,
	}
}

// SetArtifactStore enables artifact staging and verification.
func (e *Executor) SetArtifactStore(s *ArtifactStore) {
	e.artifacts = s
}

// SetVariableStore enables produced-variable verification.
func (e *Executor) SetVariableStore(s *VariableStore) {
	e.variables = s
}

// SetReportService routes structured failure data to s.
func (e *Executor) SetReportService(s *report.Service) {
	e.reports = s
}

// SetProgressCallback configures an optional per-target progress callback.
func (e *Executor) SetProgressCallback(cb ProgressCallback) {
	e.progress = cb
}

// SetSkipDependencies runs only the requested targets, assuming their
// dependencies already ran elsewhere (for example in an earlier CI job).
func (e *Executor) SetSkipDependencies(skip bool) {
	e.skipDeps = skip
}

// Plan returns the order Execute would use for names.
func (e *Executor) Plan(names []string) ([]string, error) {
	return e.graph.Plan(names, e.skipDeps)
}

// Execute plans and runs the requested targets.
//
// The returned error is non-nil only for configuration errors (unknown
// target, missing required parameter), in which case no target ran and the
// result is nil, or for cancellation, in which case the result holds the
// states reached so far, a target cut off mid-run is Interrupted and targets
// that never started remain NotRun.
// Task failures are recorded in the result, never returned.
func (e *Executor) Execute(ctx context.Context, names []string) (*Result, error) {
	plan, err := e.Plan(names)
	if err != nil {
		return nil, err
	}
	if err := e.validateParams(ctx, plan); err != nil {
		return nil, err
	}

	res := e.newResult(plan)
	logger := logging.FromContext(ctx).With(zap.String("run_id", res.RunID))
	ctx = logging.WithLogger(ctx, logger)

	logger.Info("executing build", zap.Strings("plan", plan))

	for i, name := range plan {
		if ctx.Err() != nil {
			res.Cancelled = true
			logger.Warn("build cancelled", zap.Int("remaining", len(plan)-i))
			return res, ctx.Err()
		}

		state := res.States[name]
		node, _ := e.graph.Node(name)

		if upstream := e.failedDependency(res, node); upstream != "" {
			state.Status = Skipped
			state.Err = fmt.Errorf("skipped due to upstream failure of %s", upstream)
			logger.Info("skipping target", zap.String("target", name), zap.String("upstream", upstream))
			continue
		}

		state.Status = PendingRun
		if e.progress != nil {
			e.progress(i+1, len(plan), name)
		}

		start := time.Now()
		runErr := e.runTarget(ctx, node, res)
		state.RunDuration = time.Since(start)

		if runErr != nil && ctx.Err() != nil {
			state.Status = Interrupted
			state.Err = runErr
			res.Cancelled = true
			logger.Warn("target interrupted", zap.String("target", name), zap.Duration("duration", state.RunDuration))
			return res, ctx.Err()
		}
		if runErr != nil {
			state.Status = Failed
			state.Err = runErr
			e.recordFailure(ctx, name, runErr)
			continue
		}
		state.Status = Succeeded
		logger.Info("target succeeded", zap.String("target", name), zap.Duration("duration", state.RunDuration))
	}

	if ctx.Err() != nil {
		res.Cancelled = true
		return res, ctx.Err()
	}
	return res, nil
}

func (e *Executor) newResult(plan []string) *Result {
	res := &Result{
		RunID:  e.newRunID(),
		Plan:   plan,
		States: make(map[string]*TargetState, e.graph.Len()),
	}
	for _, name := range plan {
		res.States[name] = &TargetState{Name: name, Status: NotRun}
		res.order = append(res.order, name)
	}
	for _, name := range e.graph.Names() {
		if _, ok := res.States[name]; !ok {
			res.States[name] = &TargetState{Name: name, Status: NotRun}
			res.order = append(res.order, name)
		}
	}
	return res
}

// validateParams checks that every required param of every planned target
// resolves before anything runs.
func (e *Executor) validateParams(ctx context.Context, plan []string) error {
	var errs []error
	for _, name := range plan {
		node, _ := e.graph.Node(name)
		for _, req := range node.Target.Requirements {
			def, ok := e.params.Definition(req)
			if !ok {
				errs = append(errs, fmt.Errorf("target %s: %w: %s", name, param.ErrUnknownParam, req))
				continue
			}
			if _, found := e.params.Resolve(ctx, def); !found {
				errs = append(errs, fmt.Errorf("target %s: %w: %s (--%s or %s)", name, ErrMissingParam, req, def.Arg(), def.EnvName()))
			}
		}
	}
	return errors.Join(errs...)
}

// failedDependency returns the first dependency of node, direct or
// transitive, that failed or was skipped in this run. Targets outside the
// plan are NotRun and are walked through, so with skipDeps a failure still
// reaches planned targets further down the chain.
func (e *Executor) failedDependency(res *Result, node *Node) string {
	seen := make(map[int]bool)
	queue := append([]int(nil), node.Dependencies...)
	for len(queue) > 0 {
		idx := queue[0]
		queue = queue[1:]
		if seen[idx] {
			continue
		}
		seen[idx] = true

		dep := e.graph.At(idx)
		switch res.Status(dep.Name()) {
		case Failed, Skipped:
			return dep.Name()
		}
		queue = append(queue, dep.Dependencies...)
	}
	return ""
}

func (e *Executor) runTarget(ctx context.Context, node *Node, res *Result) error {
	t := node.Target
	logger := logging.FromContext(ctx).Named(t.Name)
	ctx = logging.WithLogger(ctx, logger)

	if e.artifacts != nil {
		for _, ref := range t.ConsumedArtifacts {
			if !e.artifacts.Exists(ref.Name) {
				return NewStepFailedError(fmt.Sprintf("consumed artifact %s from %s not found in %s", ref.Name, ref.Target, e.artifacts.Dir(ref.Name)))
			}
		}
		for _, name := range t.ProducedArtifacts {
			if _, err := e.artifacts.Prepare(name); err != nil {
				return err
			}
		}
	}

	if e.variables != nil {
		for _, ref := range t.ConsumedVariables {
			if !e.plannedHere(res, ref.Target) {
				continue
			}
			if _, ok := e.variables.Get(ref.Name); !ok {
				return NewStepFailedError(fmt.Sprintf("consumed variable %s from %s was not written", ref.Name, ref.Target))
			}
		}
	}

	for _, task := range t.Tasks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := runTask(ctx, task); err != nil {
			return err
		}
	}

	if e.artifacts != nil {
		for _, name := range t.ProducedArtifacts {
			if !e.artifacts.Exists(name) {
				return NewStepFailedError(fmt.Sprintf("artifact %s was not produced in %s", name, e.artifacts.Dir(name)))
			}
		}
	}
	if e.variables != nil {
		for _, name := range t.ProducedVariables {
			if _, ok := e.variables.Get(name); !ok {
				return NewStepFailedError(fmt.Sprintf("variable %s was not written", name))
			}
		}
	}
	return nil
}

// plannedHere reports whether name ran earlier in this invocation.
func (e *Executor) plannedHere(res *Result, name string) bool {
	for _, p := range res.Plan {
		if p == name {
			return true
		}
	}
	return false
}

func runTask(ctx context.Context, task func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &PanicError{Value: r, Stack: debug.Stack()}
		}
	}()
	return task(ctx)
}

func (e *Executor) recordFailure(ctx context.Context, name string, err error) {
	logger := logging.FromContext(ctx)

	data, expected := reportData(err)
	if data != nil && e.reports != nil {
		e.reports.Add(data)
	}

	var panicErr *PanicError
	switch {
	case expected:
		logger.Error("target failed", zap.String("target", name), zap.String("reason", err.Error()))
	case errors.As(err, &panicErr):
		logger.Error("target failed", zap.String("target", name), zap.Error(err),
			zap.ByteString("stacktrace", panicErr.Stack))
	default:
		logger.Error("target failed", zap.String("target", name), zap.Error(err),
			zap.StackSkip("stacktrace", 1))
	}
}
