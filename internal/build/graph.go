package build

import (
	"fmt"
	"strings"

	"atom/internal/target"
)

// Node is a target materialized into the graph. Edges are indices into the
// owning [Graph], so nodes never reference each other directly.
type Node struct {
	Index  int
	Target *target.Definition

	// Dependencies are the nodes that must complete first: declared
	// dependencies in declaration order, then producers of consumed outputs.
	Dependencies []int

	// Dependents are the nodes that list this node as a dependency.
	Dependents []int
}

// Name returns the target name.
func (n *Node) Name() string {
	return n.Target.Name
}

// Graph is the validated, acyclic target graph.
type Graph struct {
	nodes []*Node
	index map[string]int
}

// NewGraph materializes every target registered in def and links them.
//
// Construction runs in passes: create one node per target by invoking its
// factory, resolve dependency names (declared and implicit) to indices,
// populate dependents, then reject cycles. Any unresolvable name fails
// immediately with the offending target and dependency.
func NewGraph(def *Definition) (*Graph, error) {
	g := &Graph{index: make(map[string]int, len(def.order))}

	for _, name := range def.order {
		d := def.factories[name](target.New(name))
		if d == nil {
			return nil, fmt.Errorf("target %q: factory returned nil", name)
		}
		d.Name = name
		g.index[name] = len(g.nodes)
		g.nodes = append(g.nodes, &Node{Index: len(g.nodes), Target: d})
	}

	if err := g.linkDependencies(); err != nil {
		return nil, err
	}
	g.linkDependents()

	if err := g.detectCycles(); err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) linkDependencies() error {
	artifacts := make(map[string]string)
	variables := make(map[string]string)
	for _, n := range g.nodes {
		for _, a := range n.Target.ProducedArtifacts {
			if other, ok := artifacts[a]; ok {
				return fmt.Errorf("%w: artifact %s (targets %s and %s)", ErrDuplicateProducer, a, other, n.Name())
			}
			artifacts[a] = n.Name()
		}
		for _, v := range n.Target.ProducedVariables {
			if other, ok := variables[v]; ok {
				return fmt.Errorf("%w: variable %s (targets %s and %s)", ErrDuplicateProducer, v, other, n.Name())
			}
			variables[v] = n.Name()
		}
	}

	for _, n := range g.nodes {
		seen := make(map[int]bool)
		add := func(dep string) error {
			idx, ok := g.index[dep]
			if !ok {
				return fmt.Errorf("%w: target %q depends on %q, which does not exist", ErrMissingDependency, n.Name(), dep)
			}
			if idx == n.Index {
				return fmt.Errorf("%w: %s -> %s", ErrCyclicDependency, dep, dep)
			}
			if !seen[idx] {
				seen[idx] = true
				n.Dependencies = append(n.Dependencies, idx)
			}
			return nil
		}

		for _, dep := range n.Target.Dependencies {
			if err := add(dep); err != nil {
				return err
			}
		}

		for _, ref := range n.Target.ConsumedArtifacts {
			if err := add(ref.Target); err != nil {
				return err
			}
			if !g.nodes[g.index[ref.Target]].Target.Produces(ref.Name) {
				return fmt.Errorf("%w: target %q consumes artifact %q from %q", ErrUndeclaredOutput, n.Name(), ref.Name, ref.Target)
			}
		}

		for _, ref := range n.Target.ConsumedVariables {
			if err := add(ref.Target); err != nil {
				return err
			}
			if !g.nodes[g.index[ref.Target]].Target.ProducesVar(ref.Name) {
				return fmt.Errorf("%w: target %q consumes variable %q from %q", ErrUndeclaredOutput, n.Name(), ref.Name, ref.Target)
			}
		}
	}
	return nil
}

func (g *Graph) linkDependents() {
	for _, n := range g.nodes {
		for _, dep := range n.Dependencies {
			g.nodes[dep].Dependents = append(g.nodes[dep].Dependents, n.Index)
		}
	}
}

// detectCycles runs a three-colour depth-first search over dependency edges
// and reports the first cycle found as a path of target names.
func (g *Graph) detectCycles() error {
	const (
		white = iota
		grey
		black
	)
	color := make([]int, len(g.nodes))
	var stack []int

	var visit func(i int) error
	visit = func(i int) error {
		color[i] = grey
		stack = append(stack, i)

		for _, dep := range g.nodes[i].Dependencies {
			switch color[dep] {
			case grey:
				return fmt.Errorf("%w: %s", ErrCyclicDependency, g.cyclePath(stack, dep))
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[i] = black
		return nil
	}

	for i := range g.nodes {
		if color[i] == white {
			if err := visit(i); err != nil {
				return err
			}
		}
	}
	return nil
}

func (g *Graph) cyclePath(stack []int, start int) string {
	var names []string
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] == start {
			for _, idx := range stack[i:] {
				names = append(names, g.nodes[idx].Name())
			}
			break
		}
	}
	names = append(names, g.nodes[start].Name())
	return strings.Join(names, " -> ")
}

// Len returns the number of targets.
func (g *Graph) Len() int {
	return len(g.nodes)
}

// Nodes returns all nodes in registration order.
func (g *Graph) Nodes() []*Node {
	return append([]*Node(nil), g.nodes...)
}

// Node looks up a node by target name.
func (g *Graph) Node(name string) (*Node, bool) {
	i, ok := g.index[name]
	if !ok {
		return nil, false
	}
	return g.nodes[i], true
}

// At returns the node at index i.
func (g *Graph) At(i int) *Node {
	return g.nodes[i]
}

// Names returns all target names in registration order.
func (g *Graph) Names() []string {
	names := make([]string, len(g.nodes))
	for i, n := range g.nodes {
		names[i] = n.Name()
	}
	return names
}

// DependencyNames returns the direct dependencies of name.
func (g *Graph) DependencyNames(name string) []string {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	return g.namesOf(n.Dependencies)
}

// DependentNames returns the direct dependents of name.
func (g *Graph) DependentNames(name string) []string {
	n, ok := g.Node(name)
	if !ok {
		return nil
	}
	return g.namesOf(n.Dependents)
}

// TransitiveDependents returns every target that depends on name, directly
// or indirectly, in breadth-first order.
func (g *Graph) TransitiveDependents(name string) []string {
	start, ok := g.Node(name)
	if !ok {
		return nil
	}
	visited := map[int]bool{start.Index: true}
	queue := append([]int(nil), start.Dependents...)
	var out []string
	for len(queue) > 0 {
		i := queue[0]
		queue = queue[1:]
		if visited[i] {
			continue
		}
		visited[i] = true
		out = append(out, g.nodes[i].Name())
		queue = append(queue, g.nodes[i].Dependents...)
	}
	return out
}

func (g *Graph) namesOf(indices []int) []string {
	names := make([]string, len(indices))
	for i, idx := range indices {
		names[i] = g.nodes[idx].Name()
	}
	return names
}
