package graph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
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

func dep(id string) project.Dependency {
	return project.Dependency{ID: identifier.MustNew(id), Scope: project.ScopeProduction}
}

func TestLinkBuildsDependencyEdges(t *testing.T) {
	b := NewBuilder(Constraints{})
	require.NoError(t, b.AddProject(proj("web", dep("ui"))))
	require.NoError(t, b.AddProject(proj("ui")))

	g, err := b.Link()
	require.NoError(t, err)

	deps, err := g.GetDependenciesOf(identifier.MustNew("web"))
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("ui")}, deps)

	dependents, err := g.GetDependentsOf(identifier.MustNew("ui"))
	require.NoError(t, err)
	assert.Equal(t, []identifier.ID{identifier.MustNew("web")}, dependents)
}

func TestLinkDetectsCycle(t *testing.T) {
	b := NewBuilder(Constraints{})
	require.NoError(t, b.AddProject(proj("a", dep("b"))))
	require.NoError(t, b.AddProject(proj("b", dep("a"))))

	_, err := b.Link()
	assert.Error(t, err)
	var cycleErr *CycleError
	assert.ErrorAs(t, err, &cycleErr)
}

func TestLinkEnforcesTypeConstraint(t *testing.T) {
	constraints := Constraints{
		TypeRules: []TypeRelationshipRule{
			{From: project.TypeLibrary, To: project.TypeApplication},
		},
	}
	b := NewBuilder(constraints)
	lib := proj("lib", dep("app"))
	lib.Type = project.TypeLibrary
	app := proj("app")
	app.Type = project.TypeApplication
	require.NoError(t, b.AddProject(lib))
	require.NoError(t, b.AddProject(app))

	_, err := b.Link()
	assert.Error(t, err)
}

func TestLoadByAlias(t *testing.T) {
	b := NewBuilder(Constraints{})
	p := proj("web")
	p.Alias = "frontend"
	require.NoError(t, b.AddProject(p))

	g, err := b.Link()
	require.NoError(t, err)

	found, err := g.Load("frontend")
	require.NoError(t, err)
	assert.Equal(t, identifier.MustNew("web"), found.ID)
}
