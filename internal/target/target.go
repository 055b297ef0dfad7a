// Package target declares named units of build work.
//
// A [Definition] is built fluently inside a [Factory]:
//
//	func(t *target.Definition) *target.Definition {
//	    return t.
//	        DescribedAs("Packs the library").
//	        DependsOn("Compile").
//	        RequiresParam("build-version").
//	        ProducesArtifact("packages").
//	        Executes(pack)
//	}
//
// Definitions are plain data. Graph construction and execution live in the
// build package.
package target

import "context"

// Task is one executable step of a target. Tasks run sequentially in
// declaration order; returning an error fails the target.
type Task func(ctx context.Context) error

// Factory populates a fresh Definition seeded with the target name.
type Factory func(*Definition) *Definition

// ArtifactRef names an artifact produced by a target.
type ArtifactRef struct {
	Target string
	Name   string
}

// VariableRef names a variable produced by a target.
type VariableRef struct {
	Target string
	Name   string
}

// Definition is the declarative description of a target.
type Definition struct {
	Name        string
	Description string
	Hidden      bool

	// Dependencies are target names that must complete first, in declaration order.
	Dependencies []string

	// Requirements are param names that must resolve before the target runs.
	Requirements []string

	ProducedArtifacts []string
	ConsumedArtifacts []ArtifactRef
	ProducedVariables []string
	ConsumedVariables []VariableRef

	Tasks []Task
}

// New returns an empty Definition for name.
func New(name string) *Definition {
	return &Definition{Name: name}
}

// DescribedAs sets the help text.
func (d *Definition) DescribedAs(description string) *Definition {
	d.Description = description
	return d
}

// IsHidden hides the target from --list and help output.
func (d *Definition) IsHidden() *Definition {
	d.Hidden = true
	return d
}

// DependsOn appends dependencies, ignoring duplicates.
func (d *Definition) DependsOn(targets ...string) *Definition {
	d.Dependencies = appendUnique(d.Dependencies, targets...)
	return d
}

// RequiresParam appends required params, ignoring duplicates.
func (d *Definition) RequiresParam(params ...string) *Definition {
	d.Requirements = appendUnique(d.Requirements, params...)
	return d
}

// ProducesArtifact declares artifacts staged by this target.
func (d *Definition) ProducesArtifact(names ...string) *Definition {
	d.ProducedArtifacts = appendUnique(d.ProducedArtifacts, names...)
	return d
}

// ConsumesArtifact declares artifacts produced by target that this target reads.
func (d *Definition) ConsumesArtifact(target string, names ...string) *Definition {
	for _, name := range names {
		ref := ArtifactRef{Target: target, Name: name}
		if !containsRef(d.ConsumedArtifacts, ref) {
			d.ConsumedArtifacts = append(d.ConsumedArtifacts, ref)
		}
	}
	return d
}

// ProducesVariable declares variables written by this target.
func (d *Definition) ProducesVariable(names ...string) *Definition {
	d.ProducedVariables = appendUnique(d.ProducedVariables, names...)
	return d
}

// ConsumesVariable declares variables produced by target that this target reads.
func (d *Definition) ConsumesVariable(target string, names ...string) *Definition {
	for _, name := range names {
		ref := VariableRef{Target: target, Name: name}
		if !containsRef(d.ConsumedVariables, ref) {
			d.ConsumedVariables = append(d.ConsumedVariables, ref)
		}
	}
	return d
}

// Executes appends tasks.
func (d *Definition) Executes(tasks ...Task) *Definition {
	for _, t := range tasks {
		if t != nil {
			d.Tasks = append(d.Tasks, t)
		}
	}
	return d
}

// Produces reports whether d declares artifact name.
func (d *Definition) Produces(artifact string) bool {
	return contains(d.ProducedArtifacts, artifact)
}

// ProducesVar reports whether d declares variable name.
func (d *Definition) ProducesVar(variable string) bool {
	return contains(d.ProducedVariables, variable)
}

func appendUnique(list []string, items ...string) []string {
	for _, item := range items {
		if item != "" && !contains(list, item) {
			list = append(list, item)
		}
	}
	return list
}

func contains(list []string, item string) bool {
	for _, v := range list {
		if v == item {
			return true
		}
	}
	return false
}

func containsRef[T comparable](list []T, ref T) bool {
	for _, v := range list {
		if v == ref {
			return true
		}
	}
	return false
}
