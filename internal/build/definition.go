// Package build turns a registry of target declarations into a validated
// dependency graph and executes it.
//
// Key types:
//   - [Definition] is the explicit registry of target factories and params
//   - [Graph] is the arena of materialized targets, linked by index in both
//     directions (dependencies and dependents)
//   - [Executor] runs a plan sequentially, at most once per target, and
//     propagates failure to dependents as Skipped
//   - [Result] holds the per-target [TargetState]s and the run exit code
//
// Configuration errors ([ErrMissingDependency], [ErrCyclicDependency],
// [ErrMissingParam], ...) abort before any target runs. Task failures never
// escape [Executor.Execute]; they are recorded in the [Result].
package build

import (
	"fmt"

	"atom/internal/param"
	"atom/internal/target"
)

// Definition is an ordered registry of targets and parameters.
// Registration order is the tie-break order for planning.
type Definition struct {
	factories map[string]target.Factory
	order     []string

	params     []param.Definition
	paramNames map[string]bool
}

// NewDefinition creates an empty registry.
func NewDefinition() *Definition {
	return &Definition{
		factories:  make(map[string]target.Factory),
		paramNames: make(map[string]bool),
	}
}

// AddTarget registers a target factory under name.
func (d *Definition) AddTarget(name string, factory target.Factory) error {
	if name == "" {
		return fmt.Errorf("target name must not be empty")
	}
	if factory == nil {
		return fmt.Errorf("target %q: factory must not be nil", name)
	}
	if _, ok := d.factories[name]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateTarget, name)
	}
	d.factories[name] = factory
	d.order = append(d.order, name)
	return nil
}

// MustAddTarget is like [Definition.AddTarget] but panics on error.
func (d *Definition) MustAddTarget(name string, factory target.Factory) *Definition {
	if err := d.AddTarget(name, factory); err != nil {
		panic(err)
	}
	return d
}

// AddParam registers parameter definitions.
func (d *Definition) AddParam(defs ...param.Definition) error {
	for _, p := range defs {
		if d.paramNames[p.Name] {
			return fmt.Errorf("%w: %s", param.ErrDuplicateParam, p.Name)
		}
		d.paramNames[p.Name] = true
		d.params = append(d.params, p)
	}
	return nil
}

// TargetNames returns registered target names in registration order.
func (d *Definition) TargetNames() []string {
	return append([]string(nil), d.order...)
}

// Params returns registered params in registration order.
func (d *Definition) Params() []param.Definition {
	return append([]param.Definition(nil), d.params...)
}
