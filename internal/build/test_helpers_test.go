package build

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"atom/internal/mask"
	"atom/internal/param"
	"atom/internal/target"
)

// taskRecorder records the order in which targets' tasks ran.
type taskRecorder struct {
	mu   sync.Mutex
	runs []string
}

func (r *taskRecorder) task(name string) target.Task {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, name)
		return nil
	}
}

func (r *taskRecorder) failing(name string, err error) target.Task {
	return func(ctx context.Context) error {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.runs = append(r.runs, name)
		return err
	}
}

func (r *taskRecorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, v := range r.runs {
		if v == name {
			n++
		}
	}
	return n
}

func newParams(t *testing.T, defs ...param.Definition) *param.Service {
	t.Helper()
	s := param.NewService(mask.New())
	s.SetEnvLookup(func(string) (string, bool) { return "", false })
	require.NoError(t, s.Register(defs...))
	return s
}

func mustGraph(t *testing.T, def *Definition) *Graph {
	t.Helper()
	g, err := NewGraph(def)
	require.NoError(t, err)
	return g
}

// pipeline registers Setup <- Build <- Test <- Deploy.
func pipeline(rec *taskRecorder, testTask target.Task) *Definition {
	if testTask == nil {
		testTask = rec.task("Test")
	}
	return NewDefinition().
		MustAddTarget("Setup", func(d *target.Definition) *target.Definition {
			return d.Executes(rec.task("Setup"))
		}).
		MustAddTarget("Build", func(d *target.Definition) *target.Definition {
			return d.DependsOn("Setup").Executes(rec.task("Build"))
		}).
		MustAddTarget("Test", func(d *target.Definition) *target.Definition {
			return d.DependsOn("Build").Executes(testTask)
		}).
		MustAddTarget("Deploy", func(d *target.Definition) *target.Definition {
			return d.DependsOn("Test").Executes(rec.task("Deploy"))
		})
}

// diamond registers A <- {B, C} <- D.
func diamond(rec *taskRecorder, dTask target.Task) *Definition {
	if dTask == nil {
		dTask = rec.task("D")
	}
	return NewDefinition().
		MustAddTarget("A", func(d *target.Definition) *target.Definition {
			return d.DependsOn("B", "C").Executes(rec.task("A"))
		}).
		MustAddTarget("B", func(d *target.Definition) *target.Definition {
			return d.DependsOn("D").Executes(rec.task("B"))
		}).
		MustAddTarget("C", func(d *target.Definition) *target.Definition {
			return d.DependsOn("D").Executes(rec.task("C"))
		}).
		MustAddTarget("D", func(d *target.Definition) *target.Definition {
			return d.Executes(dTask)
		})
}
