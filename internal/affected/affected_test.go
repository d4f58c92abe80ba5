package affected

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/graph"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
)

func proj(id, source string, deps ...project.Dependency) *project.Project {
	return &project.Project{
		ID:           identifier.MustNew(id),
		Source:       source,
		Tags:         map[identifier.ID]struct{}{},
		Dependencies: deps,
		Tasks:        map[identifier.ID]*project.Task{},
		FileGroups:   map[identifier.ID]project.FileGroupRef{},
	}
}

func dep(id string) project.Dependency {
	return project.Dependency{ID: identifier.MustNew(id), Scope: project.ScopeProduction}
}

func buildGraph(t *testing.T) *graph.ProjectGraph {
	t.Helper()
	b := graph.NewBuilder(graph.Constraints{})
	require.NoError(t, b.AddProject(proj("web", "apps/web", dep("ui"))))
	require.NoError(t, b.AddProject(proj("ui", "packages/ui")))
	g, err := b.Link()
	require.NoError(t, err)
	return g
}

func TestDirectlyAffected(t *testing.T) {
	g := buildGraph(t)
	tr := NewTracker(g, "/repo")

	direct := tr.DirectlyAffected([]string{"packages/ui/src/button.go"})
	_, ok := direct[identifier.MustNew("ui")]
	assert.True(t, ok)
	_, ok = direct[identifier.MustNew("web")]
	assert.False(t, ok)
}

func TestExpandToDependents(t *testing.T) {
	g := buildGraph(t)
	tr := NewTracker(g, "/repo")

	direct := tr.DirectlyAffected([]string{"packages/ui/src/button.go"})
	expanded, err := tr.Expand(direct, Dependents)
	require.NoError(t, err)

	_, ok := expanded[identifier.MustNew("web")]
	assert.True(t, ok, "web depends on ui and should be pulled in as a dependent")
}
