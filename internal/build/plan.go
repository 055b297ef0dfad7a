package build

import "fmt"

// Plan returns the execution order for the requested targets.
//
// The result is the transitive dependency closure of requested, ordered so
// that every dependency precedes its dependents. Independent targets keep
// the order in which a depth-first walk discovers them: requested order
// first, then declared dependency order. With skipDeps only the requested
// targets are returned, still in dependency order relative to each other.
func (g *Graph) Plan(requested []string, skipDeps bool) ([]string, error) {
	if len(requested) == 0 {
		return nil, fmt.Errorf("%w: no targets requested", ErrUnknownTarget)
	}

	roots := make([]int, 0, len(requested))
	for _, name := range requested {
		n, ok := g.Node(name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownTarget, name)
		}
		roots = append(roots, n.Index)
	}

	visited := make([]bool, len(g.nodes))
	order := make([]int, 0, len(g.nodes))

	var visit func(i int)
	visit = func(i int) {
		if visited[i] {
			return
		}
		visited[i] = true
		for _, dep := range g.nodes[i].Dependencies {
			visit(dep)
		}
		order = append(order, i)
	}
	for _, r := range roots {
		visit(r)
	}

	if skipDeps {
		wanted := make(map[int]bool, len(roots))
		for _, r := range roots {
			wanted[r] = true
		}
		filtered := order[:0]
		for _, i := range order {
			if wanted[i] {
				filtered = append(filtered, i)
			}
		}
		order = filtered
	}

	return g.namesOf(order), nil
}
