// Package plan implements the scope-resolution and ActionGraph expansion
// step between a built ProjectGraph and a runnable ActionPipeline: turning
// a set of requested Targets (possibly carrying the relative "~"/"^"/
// "#tag"/":" scopes from spec.md §3) into a fully expanded action.Graph
// with per-project setup/install/sync nodes wired ahead of each project's
// RunTask nodes.
//
// Grounded on the teacher's internal/plan (package scope expansion ahead
// of a run) and internal/scope (--scope/--since pattern resolution),
// generalized from turbo's single implicit-package scope to spec.md §3's
// five scope kinds.
package plan

import (
	"sort"

	"github.com/pkg/errors"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/target"
)

// ResolveScope expands a Target's scope, relative to the project that owns
// the reference (relevant for "~" and "^"), into the concrete project ids
// it selects.
func ResolveScope(g *graph.ProjectGraph, owner identifier.ID, s target.Scope) ([]identifier.ID, error) {
	switch s.Kind {
	case target.ScopeExplicit:
		if _, err := g.Load(string(s.Value)); err != nil {
			return nil, err
		}
		return []identifier.ID{s.Value}, nil
	case target.ScopeSelf:
		return []identifier.ID{owner}, nil
	case target.ScopeParent:
		return g.GetDependenciesOf(owner)
	case target.ScopeTag:
		var ids []identifier.ID
		for _, p := range g.LoadByTag(s.Value) {
			ids = append(ids, p.ID)
		}
		return ids, nil
	case target.ScopeAll:
		var ids []identifier.ID
		for _, p := range g.LoadAll() {
			ids = append(ids, p.ID)
		}
		return ids, nil
	default:
		return nil, errors.Errorf("unknown scope kind %v", s.Kind)
	}
}

// Builder expands requested top-level Targets into a complete action.Graph.
type Builder struct {
	ProjectGraph *graph.ProjectGraph

	graph      *action.Graph
	projectSet map[identifier.ID]struct{} // projects with setup/install/sync nodes already added
	taskSet    map[string]struct{}        // "<projectID>/<taskID>" already added
}

// NewBuilder constructs a Builder over an already-linked ProjectGraph.
func NewBuilder(pg *graph.ProjectGraph) *Builder {
	return &Builder{
		ProjectGraph: pg,
		graph:        action.New(),
		projectSet:   make(map[identifier.ID]struct{}),
		taskSet:      make(map[string]struct{}),
	}
}

// Build expands requested (each a top-level Target per
// target.ValidateTopLevel) into the full action.Graph: every selected
// project's setup_toolchain/install_deps/sync_project chain, every
// selected task's run_task node, and every edge implied by task.Deps
// (recursively expanding each dependency's own scope).
func (b *Builder) Build(requested []target.Target) (*action.Graph, error) {
	for _, t := range requested {
		if err := target.ValidateTopLevel(t, t.String()); err != nil {
			return nil, err
		}
		ids, err := ResolveScope(b.ProjectGraph, "", t.Scope)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			if err := b.addTask(id, t.Task); err != nil {
				return nil, err
			}
		}
	}
	if err := b.graph.Validate(); err != nil {
		return nil, err
	}
	return b.graph, nil
}

// addProjectChain ensures id's setup_toolchain/install_deps/sync_project
// nodes exist (idempotent), returning the sync_project node's label —
// every RunTask node for this project connects from there.
func (b *Builder) addProjectChain(id identifier.ID) string {
	syncLabel := (action.Node{Kind: action.SyncProject, ProjectID: id}).Label()
	if _, ok := b.projectSet[id]; ok {
		return syncLabel
	}
	b.projectSet[id] = struct{}{}

	setup := b.graph.AddNode(action.Node{Kind: action.SetupToolchain, ProjectID: id})
	install := b.graph.AddNode(action.Node{Kind: action.InstallDeps, ProjectID: id})
	sync := b.graph.AddNode(action.Node{Kind: action.SyncProject, ProjectID: id})

	b.graph.Connect(install, setup)
	b.graph.Connect(sync, install)
	b.graph.AnchorToRoot(setup)

	return sync
}

func (b *Builder) addTask(projectID identifier.ID, taskID identifier.ID) error {
	key := string(projectID) + "/" + string(taskID)
	if _, ok := b.taskSet[key]; ok {
		return nil
	}
	b.taskSet[key] = struct{}{}

	p, err := b.ProjectGraph.Load(string(projectID))
	if err != nil {
		return err
	}
	task, ok := p.Tasks[taskID]
	if !ok {
		return errors.Errorf("project %q has no task %q", projectID, taskID)
	}

	sync := b.addProjectChain(projectID)

	taskNode := action.Node{Kind: action.RunTask, ProjectID: projectID, Target: task.Target}
	label := b.graph.AddNode(taskNode)
	b.graph.Connect(label, sync)

	for _, dep := range task.Deps {
		ids, err := ResolveScope(b.ProjectGraph, projectID, dep.Scope)
		if err != nil {
			return err
		}
		for _, depProjectID := range ids {
			if err := b.addTask(depProjectID, dep.Task); err != nil {
				return err
			}
			depNode := action.Node{Kind: action.RunTask, ProjectID: depProjectID, Target: dep.WithProject(depProjectID)}
			b.graph.Connect(label, depNode.Label())
		}
	}

	return nil
}

// Requested sorts and dedups a raw []string of "<scope>:<task>" target
// expressions into parsed Targets, for cmd/moonshot's CLI argument
// handling.
func Requested(raw []string) ([]target.Target, error) {
	seen := make(map[string]struct{})
	var out []target.Target
	for _, r := range raw {
		t, err := target.Parse(r)
		if err != nil {
			return nil, err
		}
		key := t.String()
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}
