// Package graph implements spec.md §4.4's ProjectGraph: a DAG over Projects
// with a synthetic root, built in discovery/build/link phases, enforcing
// the constraint checks (project-type relationships, tag relationships)
// and exposing the query API spec.md names.
//
// Adapted from the teacher's internal/context (three-phase workspace
// assembly: discover package.json files, build PackageInfos, then link the
// TopologicalGraph) and internal/graph.CompleteGraph, both built on
// github.com/pyr-sh/dag's AcyclicGraph.
package graph

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
	"github.com/pyr-sh/dag"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
)

// RootNode is the synthetic vertex every project without a root-scoped
// dependency is anchored under, matching the teacher's core.ROOT_NODE_NAME
// convention.
const RootNode = "__root__"

// CycleError reports a dependency cycle detected while linking the graph.
type CycleError struct {
	Cycles [][]string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("dependency cycle(s) detected: %v", e.Cycles)
}

// ConstraintError reports a project-type or tag relationship violation,
// spec.md §4.4.
type ConstraintError struct {
	From, To identifier.ID
	Reason   string
}

func (e *ConstraintError) Error() string {
	return fmt.Sprintf("dependency %s -> %s violates constraint: %s", e.From, e.To, e.Reason)
}

// TypeRelationshipRule forbids a project of type From from depending on a
// project of type To. An empty From/To matches any type.
type TypeRelationshipRule struct {
	From project.ProjectType
	To   project.ProjectType
}

// TagRelationshipRule requires that any project carrying tag From may only
// depend on projects carrying tag To.
type TagRelationshipRule struct {
	From identifier.ID
	To   identifier.ID
}

// Constraints bundles the two constraint-check families spec.md §4.4 names.
type Constraints struct {
	TypeRules []TypeRelationshipRule
	TagRules  []TagRelationshipRule
}

// ProjectGraph is a DAG of Projects rooted at a synthetic node, built in
// discovery -> build -> link phases.
type ProjectGraph struct {
	graph    dag.AcyclicGraph
	projects map[identifier.ID]*project.Project
	aliases  map[string]identifier.ID
}

// Builder assembles a ProjectGraph across its three phases.
type Builder struct {
	constraints Constraints
	discovered  []string // project sources found during discovery
	projects    map[identifier.ID]*project.Project
}

// NewBuilder constructs an empty Builder.
func NewBuilder(constraints Constraints) *Builder {
	return &Builder{
		constraints: constraints,
		projects:    make(map[identifier.ID]*project.Project),
	}
}

// Discover records a project source path found during the discovery phase.
// Discovery itself (walking the workspace for project config files) is
// left to the caller, matching spec.md §4.4's description of discovery as
// "filesystem enumeration, not a fixed algorithm."
func (b *Builder) Discover(source string) {
	b.discovered = append(b.discovered, source)
}

// Discovered returns every source recorded by Discover, in the order
// recorded.
func (b *Builder) Discovered() []string {
	return b.discovered
}

// AddProject records a built Project for the link phase.
func (b *Builder) AddProject(p *project.Project) error {
	if _, exists := b.projects[p.ID]; exists {
		return errors.Errorf("duplicate project id %q", p.ID)
	}
	b.projects[p.ID] = p
	return nil
}

// Link builds the DAG from every project added via AddProject, validates
// acyclicity, and enforces the configured constraints.
func (b *Builder) Link() (*ProjectGraph, error) {
	g := &ProjectGraph{
		projects: b.projects,
		aliases:  make(map[string]identifier.ID),
	}
	g.graph.Add(RootNode)

	for id, p := range b.projects {
		g.graph.Add(id)
		if p.Alias != "" {
			g.aliases[p.Alias] = id
		}
	}

	for id, p := range b.projects {
		hasRootDep := false
		for _, dep := range p.Dependencies {
			if _, ok := b.projects[dep.ID]; !ok {
				return nil, errors.Errorf("project %q depends on unknown project %q", id, dep.ID)
			}
			g.graph.Connect(dag.BasicEdge(id, dep.ID))
			if dep.Scope == project.ScopeRoot {
				hasRootDep = true
			}
			if err := checkConstraints(b.constraints, p, b.projects[dep.ID]); err != nil {
				return nil, err
			}
		}
		if !hasRootDep {
			g.graph.Connect(dag.BasicEdge(id, RootNode))
		}
	}

	if cycles := g.graph.Cycles(); len(cycles) > 0 {
		var rendered [][]string
		for _, cycle := range cycles {
			var names []string
			for _, v := range cycle {
				names = append(names, fmt.Sprintf("%v", v))
			}
			rendered = append(rendered, names)
		}
		return nil, &CycleError{Cycles: rendered}
	}

	return g, nil
}

func checkConstraints(c Constraints, from, to *project.Project) error {
	for _, rule := range c.TypeRules {
		fromMatches := rule.From == "" || rule.From == from.Type
		toMatches := rule.To == "" || rule.To == to.Type
		if fromMatches && toMatches {
			return &ConstraintError{From: from.ID, To: to.ID, Reason: fmt.Sprintf("type %s may not depend on type %s", from.Type, to.Type)}
		}
	}
	for _, rule := range c.TagRules {
		if _, hasFrom := from.Tags[rule.From]; !hasFrom {
			continue
		}
		if _, hasTo := to.Tags[rule.To]; !hasTo {
			return &ConstraintError{From: from.ID, To: to.ID, Reason: fmt.Sprintf("projects tagged %s may only depend on projects tagged %s", rule.From, rule.To)}
		}
	}
	return nil
}

// NotFoundError is returned by the graph's load operations for an unknown
// project id, alias, or path.
type NotFoundError struct {
	Query string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no project matches %q", e.Query)
}

// Load resolves id (an explicit id or an alias) to its Project.
func (g *ProjectGraph) Load(idOrAlias string) (*project.Project, error) {
	if p, ok := g.projects[identifier.ID(idOrAlias)]; ok {
		return p, nil
	}
	if canon, ok := g.aliases[idOrAlias]; ok {
		return g.projects[canon], nil
	}
	return nil, &NotFoundError{Query: idOrAlias}
}

// LoadFromPath resolves a project by its workspace-relative source path.
func (g *ProjectGraph) LoadFromPath(source string) (*project.Project, error) {
	for _, p := range g.projects {
		if p.Source == source {
			return p, nil
		}
	}
	return nil, &NotFoundError{Query: source}
}

// LoadAll returns every project in the graph, sorted by id for deterministic
// iteration.
func (g *ProjectGraph) LoadAll() []*project.Project {
	out := make([]*project.Project, 0, len(g.projects))
	for _, p := range g.projects {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// LoadByTag returns every project carrying tag, sorted by id.
func (g *ProjectGraph) LoadByTag(tag identifier.ID) []*project.Project {
	var out []*project.Project
	for _, p := range g.projects {
		if _, ok := p.Tags[tag]; ok {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetDependenciesOf returns the direct dependency ids of id.
func (g *ProjectGraph) GetDependenciesOf(id identifier.ID) ([]identifier.ID, error) {
	p, ok := g.projects[id]
	if !ok {
		return nil, &NotFoundError{Query: string(id)}
	}
	out := make([]identifier.ID, 0, len(p.Dependencies))
	for _, d := range p.Dependencies {
		out = append(out, d.ID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// GetDependentsOf returns every project id that directly depends on id.
func (g *ProjectGraph) GetDependentsOf(id identifier.ID) ([]identifier.ID, error) {
	if _, ok := g.projects[id]; !ok {
		return nil, &NotFoundError{Query: string(id)}
	}
	var out []identifier.ID
	for pid, p := range g.projects {
		for _, d := range p.Dependencies {
			if d.ID == id {
				out = append(out, pid)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// TransitiveDependenciesOf returns every project reachable by following
// dependency edges from id, not including id itself.
func (g *ProjectGraph) TransitiveDependenciesOf(id identifier.ID) ([]identifier.ID, error) {
	if _, ok := g.projects[id]; !ok {
		return nil, &NotFoundError{Query: string(id)}
	}
	seen := make(map[identifier.ID]struct{})
	var visit func(identifier.ID)
	visit = func(cur identifier.ID) {
		p, ok := g.projects[cur]
		if !ok {
			return
		}
		for _, d := range p.Dependencies {
			if _, ok := seen[d.ID]; ok {
				continue
			}
			seen[d.ID] = struct{}{}
			visit(d.ID)
		}
	}
	visit(id)
	out := make([]identifier.ID, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// DAG exposes the underlying acyclic graph for components (affected
// tracker, action graph) that need to walk it directly.
func (g *ProjectGraph) DAG() *dag.AcyclicGraph {
	return &g.graph
}
