package workflow

import (
	"fmt"
	"strings"

	"atom/internal/build"
	"atom/internal/param"
)

// Generator projects workflow definitions onto a target graph.
type Generator struct {
	graph        *build.Graph
	params       map[string]param.Definition
	defaults     Options
	artifactsDir string
}

// NewGenerator creates a Generator for the given graph and params.
func NewGenerator(graph *build.Graph, params []param.Definition) *Generator {
	byName := make(map[string]param.Definition, len(params))
	for _, p := range params {
		byName[p.Name] = p
	}
	return &Generator{
		graph:    graph,
		params:   byName,
		defaults: Options{Entrypoint: "atom"},
	}
}

// SetDefaults sets the options every workflow starts from.
func (g *Generator) SetDefaults(o Options) {
	g.defaults = g.defaults.Merge(o)
}

// SetArtifactsDir sets the directory artifacts are staged in.
func (g *Generator) SetArtifactsDir(dir string) {
	g.artifactsDir = dir
}

// projection is the working state of one Generate call.
type projection struct {
	def     Definition
	owner   map[int]int
	members []map[int]bool
	// implicit marks members that no job lists.
	implicit []map[int]bool
	// edges are direct job dependencies: edges[a][b] means a needs b.
	edges []map[int]bool
}

// Generate validates def against the graph and projects it onto jobs.
//
// Every target of a job is expanded through its dependencies. A dependency
// owned by another job becomes a job edge; one owned by no job is pulled into
// the dependent's job as an implicit step. The resulting job graph must be
// acyclic; needs are its transitive closure.
func (g *Generator) Generate(def Definition) (*Model, error) {
	if err := def.validate(); err != nil {
		return nil, err
	}

	p := &projection{def: def, owner: make(map[int]int)}
	if err := g.assignOwners(p); err != nil {
		return nil, err
	}
	g.expandJobs(p)
	if err := detectJobCycles(def, p.edges); err != nil {
		return nil, err
	}

	options := g.defaults.Merge(def.Options)
	m := &Model{
		Name:         def.Name,
		Triggers:     def.Triggers,
		Options:      options,
		ArtifactsDir: g.artifactsDir,
		Providers:    def.Providers,
	}

	inputs, err := g.inputs(def)
	if err != nil {
		return nil, err
	}
	m.Inputs = inputs

	for ji, jd := range def.Jobs {
		job := &Job{
			Name:    jd.Name,
			Needs:   needs(def, p.edges, ji),
			Matrix:  jd.Matrix,
			Options: options.Merge(jd.Options),
		}
		steps, err := g.steps(p, ji)
		if err != nil {
			return nil, err
		}
		job.Steps = steps
		job.Secrets = g.secrets(p, ji)
		m.Jobs = append(m.Jobs, job)
	}
	g.wireVariables(p, m)

	return m, nil
}

func (g *Generator) assignOwners(p *projection) error {
	for ji, jd := range p.def.Jobs {
		for _, name := range jd.Targets {
			n, ok := g.graph.Node(name)
			if !ok {
				return fmt.Errorf("%w: job %q lists unknown target %q", ErrInvalidWorkflow, jd.Name, name)
			}
			if prev, ok := p.owner[n.Index]; ok && prev != ji {
				return fmt.Errorf("%w: %s is in jobs %q and %q", ErrTargetInMultipleJobs, name, p.def.Jobs[prev].Name, jd.Name)
			}
			p.owner[n.Index] = ji
		}
	}
	return nil
}

func (g *Generator) expandJobs(p *projection) {
	jobs := len(p.def.Jobs)
	p.members = make([]map[int]bool, jobs)
	p.implicit = make([]map[int]bool, jobs)
	p.edges = make([]map[int]bool, jobs)

	for ji, jd := range p.def.Jobs {
		members := make(map[int]bool)
		implicit := make(map[int]bool)
		edges := make(map[int]bool)

		var visit func(i int)
		visit = func(i int) {
			if members[i] {
				return
			}
			members[i] = true
			for _, dep := range g.graph.At(i).Dependencies {
				k, owned := p.owner[dep]
				switch {
				case owned && k != ji:
					edges[k] = true
				case !owned:
					implicit[dep] = true
					visit(dep)
				default:
					visit(dep)
				}
			}
		}
		for _, name := range jd.Targets {
			n, _ := g.graph.Node(name)
			visit(n.Index)
		}

		p.members[ji] = members
		p.implicit[ji] = implicit
		p.edges[ji] = edges
	}
}

// detectJobCycles runs a three-colour depth-first search over job edges.
func detectJobCycles(def Definition, edges []map[int]bool) error {
	const (
		white = iota
		grey
		black
	)
	colour := make([]int, len(def.Jobs))
	var stack []int

	var visit func(j int) error
	visit = func(j int) error {
		colour[j] = grey
		stack = append(stack, j)
		for k := range def.Jobs {
			if !edges[j][k] {
				continue
			}
			switch colour[k] {
			case grey:
				path := []string{}
				for i := len(stack) - 1; i >= 0; i-- {
					path = append([]string{def.Jobs[stack[i]].Name}, path...)
					if stack[i] == k {
						break
					}
				}
				path = append(path, def.Jobs[k].Name)
				return fmt.Errorf("%w: %s", ErrJobCycle, strings.Join(path, " -> "))
			case white:
				if err := visit(k); err != nil {
					return err
				}
			}
		}
		stack = stack[:len(stack)-1]
		colour[j] = black
		return nil
	}

	for j := range def.Jobs {
		if colour[j] == white {
			if err := visit(j); err != nil {
				return err
			}
		}
	}
	return nil
}

// needs returns every job reachable from job ji, in declaration order.
func needs(def Definition, edges []map[int]bool, ji int) []string {
	reached := make([]bool, len(def.Jobs))
	queue := []int{ji}
	for len(queue) > 0 {
		j := queue[0]
		queue = queue[1:]
		for k := range def.Jobs {
			if edges[j][k] && !reached[k] {
				reached[k] = true
				queue = append(queue, k)
			}
		}
	}

	var names []string
	for k, ok := range reached {
		if ok && k != ji {
			names = append(names, def.Jobs[k].Name)
		}
	}
	return names
}

func (g *Generator) steps(p *projection, ji int) ([]Step, error) {
	order, err := g.graph.Plan(p.def.Jobs[ji].Targets, false)
	if err != nil {
		return nil, err
	}

	members := p.members[ji]
	downloaded := make(map[string]bool)
	var steps []Step

	for _, name := range order {
		n, _ := g.graph.Node(name)
		if !members[n.Index] {
			continue
		}

		for _, ref := range n.Target.ConsumedArtifacts {
			producer, _ := g.graph.Node(ref.Target)
			if members[producer.Index] || downloaded[ref.Name] {
				continue
			}
			downloaded[ref.Name] = true
			steps = append(steps, Step{Kind: StepDownload, Target: ref.Target, Artifact: ref.Name})
		}

		steps = append(steps, Step{
			Kind:     StepCommand,
			Target:   name,
			ID:       Identifier(name),
			Implicit: p.implicit[ji][n.Index],
		})

		if p.owner[n.Index] != ji || p.implicit[ji][n.Index] {
			continue
		}
		for _, a := range n.Target.ProducedArtifacts {
			if g.consumedOutside(p, n.Index, a) {
				steps = append(steps, Step{Kind: StepUpload, Target: name, Artifact: a})
			}
		}
	}
	return steps, nil
}

// consumedOutside reports whether a job that does not run producer consumes
// its artifact.
func (g *Generator) consumedOutside(p *projection, producer int, artifact string) bool {
	name := g.graph.At(producer).Name()
	for jj := range p.def.Jobs {
		if p.members[jj][producer] {
			continue
		}
		for c := range p.members[jj] {
			for _, ref := range g.graph.At(c).Target.ConsumedArtifacts {
				if ref.Target == name && ref.Name == artifact {
					return true
				}
			}
		}
	}
	return false
}

// wireVariables connects every consumed variable to its producer. Within a
// job the consuming step reads the producing step's output directly; across
// jobs the producer's job exposes it as a job output and the consumer's job
// maps it into its environment.
func (g *Generator) wireVariables(p *projection, m *Model) {
	for jj, consumer := range m.Jobs {
		seen := make(map[string]bool)
		for si := range consumer.Steps {
			step := &consumer.Steps[si]
			if step.Kind != StepCommand {
				continue
			}
			n, _ := g.graph.Node(step.Target)
			for _, ref := range n.Target.ConsumedVariables {
				producer, _ := g.graph.Node(ref.Target)
				stepID := Identifier(ref.Target)
				if p.members[jj][producer.Index] {
					step.Variables = append(step.Variables, StepVariable{
						StepID:   stepID,
						Variable: ref.Name,
						EnvName:  g.envName(ref.Name),
					})
					continue
				}

				owner := m.Jobs[p.owner[producer.Index]]
				addOutput(owner, Output{Name: ref.Name, StepID: stepID, Variable: ref.Name})

				key := owner.Name + "/" + ref.Name
				if seen[key] {
					continue
				}
				seen[key] = true
				consumer.Variables = append(consumer.Variables, VariableInput{
					Job:      owner.Name,
					StepID:   stepID,
					Variable: ref.Name,
					EnvName:  g.envName(ref.Name),
				})
			}
		}
	}
}

func addOutput(j *Job, o Output) {
	for _, existing := range j.Outputs {
		if existing.Name == o.Name {
			return
		}
	}
	j.Outputs = append(j.Outputs, o)
}

// envName maps a variable to the environment name its param reads, so a
// consumer in another job resolves it like any environment value.
func (g *Generator) envName(variable string) string {
	if d, ok := g.params[variable]; ok {
		return d.EnvName()
	}
	return param.EnvName(variable)
}

func (g *Generator) secrets(p *projection, ji int) []SecretEnv {
	var out []SecretEnv
	seen := make(map[string]bool)
	order, _ := g.graph.Plan(p.def.Jobs[ji].Targets, false)
	for _, name := range order {
		n, _ := g.graph.Node(name)
		if !p.members[ji][n.Index] {
			continue
		}
		for _, req := range n.Target.Requirements {
			d, ok := g.params[req]
			if !ok || !d.IsSecret || seen[d.Name] {
				continue
			}
			seen[d.Name] = true
			out = append(out, SecretEnv{Param: d.Name, EnvName: d.EnvName()})
		}
	}
	return out
}

func (g *Generator) inputs(def Definition) ([]Input, error) {
	var out []Input
	for _, t := range def.Triggers {
		manual, ok := t.(ManualTrigger)
		if !ok {
			continue
		}
		for _, name := range manual.Inputs {
			d, ok := g.params[name]
			if !ok {
				return nil, fmt.Errorf("%w: manual input %q is not a param", ErrInvalidTrigger, name)
			}
			if d.IsSecret {
				return nil, fmt.Errorf("%w: secret param %q cannot be a manual input", ErrInvalidTrigger, name)
			}
			out = append(out, Input{
				Name:        d.Name,
				Arg:         d.Arg(),
				EnvName:     d.EnvName(),
				Description: d.Description,
				Default:     d.DefaultValue,
			})
		}
	}
	return out, nil
}
