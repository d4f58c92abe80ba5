package plan

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/target"
)

func proj(id string, deps ...project.Dependency) *project.Project {
	return &project.Project{
		ID:           identifier.MustNew(id),
		Tags:         map[identifier.ID]struct{}{},
		Dependencies: deps,
		Tasks:        map[identifier.ID]*project.Task{},
		FileGroups:   map[identifier.ID]project.FileGroupRef{},
	}
}

func withTask(p *project.Project, name string, deps ...target.Target) *project.Project {
	p.Tasks[identifier.MustNew(name)] = &project.Task{
		ID:        identifier.MustNew(name),
		ProjectID: p.ID,
		Target:    target.Target{Scope: target.Scope{Kind: target.ScopeExplicit, Value: p.ID}, Task: identifier.MustNew(name)},
		Deps:      deps,
		Options:   project.DefaultTaskOptions(),
	}
	return p
}

func selfDep(task string) target.Target {
	return target.Target{Scope: target.Scope{Kind: target.ScopeSelf}, Task: identifier.MustNew(task)}
}

func parentDep(task string) target.Target {
	return target.Target{Scope: target.Scope{Kind: target.ScopeParent}, Task: identifier.MustNew(task)}
}

func explicitDep(id, task string) target.Target {
	return target.Target{Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew(id)}, Task: identifier.MustNew(task)}
}

func buildGraph(t *testing.T, projects ...*project.Project) *graph.ProjectGraph {
	t.Helper()
	b := graph.NewBuilder(graph.Constraints{})
	for _, p := range projects {
		require.NoError(t, b.AddProject(p))
	}
	g, err := b.Link()
	require.NoError(t, err)
	return g
}

func TestResolveScopeKinds(t *testing.T) {
	web := proj("web", project.Dependency{ID: identifier.MustNew("ui"), Scope: project.ScopeProduction})
	ui := proj("ui")
	ui.Tags = map[identifier.ID]struct{}{identifier.MustNew("frontend"): {}}
	g := buildGraph(t, web, ui)

	ids, err := ResolveScope(g, "", target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew("web")})
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("web")}, ids)

	ids, err = ResolveScope(g, identifier.MustNew("ui"), target.Scope{Kind: target.ScopeSelf})
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("ui")}, ids)

	ids, err = ResolveScope(g, identifier.MustNew("web"), target.Scope{Kind: target.ScopeParent})
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("ui")}, ids)

	ids, err = ResolveScope(g, "", target.Scope{Kind: target.ScopeTag, Value: identifier.MustNew("frontend")})
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("ui")}, ids)

	ids, err = ResolveScope(g, "", target.Scope{Kind: target.ScopeAll})
	require.NoError(t, err)
	assert.Len(t, ids, 2)
}

func TestResolveScopeUnknownProjectErrors(t *testing.T) {
	g := buildGraph(t, proj("web"))
	_, err := ResolveScope(g, "", target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew("missing")})
	assert.Error(t, err)
}

func TestBuilderExpandsTaskChainAndProjectChain(t *testing.T) {
	ui := withTask(proj("ui"), "build")
	web := withTask(proj("web", project.Dependency{ID: identifier.MustNew("ui"), Scope: project.ScopeProduction}), "build", parentDep("build"))
	g := buildGraph(t, web, ui)

	requested, err := Requested([]string{"web:build"})
	require.NoError(t, err)

	ag, err := NewBuilder(g).Build(requested)
	require.NoError(t, err)

	order, err := ag.TopologicalOrder()
	require.NoError(t, err)
	assert.NotEmpty(t, order)

	// Every project in the expansion gets its setup/install/sync chain.
	for _, id := range []string{"web", "ui"} {
		for _, kind := range []string{"setup_toolchain", "install_deps", "sync_project"} {
			found := false
			for _, label := range order {
				if n, ok := ag.Node(label); ok && n.ProjectID == identifier.MustNew(id) && n.Kind.String() == kind {
					found = true
				}
			}
			assert.True(t, found, "expected %s node for project %s", kind, id)
		}
	}
}

func TestBuilderRejectsTopLevelRelativeScope(t *testing.T) {
	g := buildGraph(t, withTask(proj("web"), "build"))
	requested := []target.Target{{Scope: target.Scope{Kind: target.ScopeSelf}, Task: identifier.MustNew("build")}}

	_, err := NewBuilder(g).Build(requested)
	assert.Error(t, err)
	var topErr *target.TopLevelError
	assert.ErrorAs(t, err, &topErr)
}

func TestBuilderFollowsExplicitCrossProjectDep(t *testing.T) {
	ui := withTask(proj("ui"), "build")
	web := withTask(proj("web"), "build", explicitDep("ui", "build"))
	g := buildGraph(t, web, ui)

	requested, err := Requested([]string{"web:build"})
	require.NoError(t, err)
	ag, err := NewBuilder(g).Build(requested)
	require.NoError(t, err)

	webBuild := action.Node{Kind: action.RunTask, Target: explicitDep("web", "build")}.Label()
	uiBuild := action.Node{Kind: action.RunTask, Target: explicitDep("ui", "build")}.Label()

	deps := ag.DependenciesOf(webBuild)
	assert.Contains(t, deps, uiBuild)
}

func TestRequestedDedupsAndSorts(t *testing.T) {
	out, err := Requested([]string{"web:build", "ui:build", "web:build"})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, "ui:build", out[0].String())
	assert.Equal(t, "web:build", out[1].String())
}
