package action

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/target"
)

func runTaskNode(project, task string) Node {
	return Node{
		Kind:      RunTask,
		ProjectID: identifier.MustNew(project),
		Target: target.Target{
			Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew(project)},
			Task:  identifier.MustNew(task),
		},
	}
}

func TestBatchesOrdersByDependency(t *testing.T) {
	g := New()
	uiBuild := g.AddNode(runTaskNode("ui", "build"))
	webBuild := g.AddNode(runTaskNode("web", "build"))
	g.Connect(webBuild, uiBuild)
	g.AnchorToRoot(uiBuild)

	batches, err := g.Batches()
	require.NoError(t, err)
	require.Len(t, batches, 2)
	assert.Equal(t, []string{uiBuild}, batches[0])
	assert.Equal(t, []string{webBuild}, batches[1])
}

func TestValidateDetectsCycle(t *testing.T) {
	g := New()
	a := g.AddNode(runTaskNode("a", "build"))
	b := g.AddNode(runTaskNode("b", "build"))
	g.Connect(a, b)
	g.Connect(b, a)

	err := g.Validate()
	assert.Error(t, err)
}

func TestRenderDOTIncludesEdges(t *testing.T) {
	g := New()
	ui := g.AddNode(runTaskNode("ui", "build"))
	web := g.AddNode(runTaskNode("web", "build"))
	g.Connect(web, ui)
	g.AnchorToRoot(ui)

	dot := g.RenderDOT()
	assert.Contains(t, dot, "digraph")
	assert.Contains(t, dot, web+"\" -> \""+ui)
}
