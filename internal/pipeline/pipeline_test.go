package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/env"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/runner"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/taskhash"
	"github.com/moonshot/moonshot/internal/vcs"
)

type fakeVcs struct{}

func (fakeVcs) Enabled() bool                               { return false }
func (fakeVcs) TouchedSince(string, string) (vcs.TouchedFiles, error) {
	return vcs.TouchedFiles{}, nil
}
func (fakeVcs) Fingerprint(string) (string, bool, error) { return "", false, nil }

func runTaskNode(projectID, taskID string) action.Node {
	return action.Node{
		Kind:      action.RunTask,
		ProjectID: identifier.MustNew(projectID),
		Target: target.Target{
			Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew(projectID)},
			Task:  identifier.MustNew(taskID),
		},
	}
}

func taskFor(projectID, taskID, cmd string, args []string) (*project.Project, *project.Task) {
	root := "."
	p := &project.Project{ID: identifier.MustNew(projectID), Root: root}
	tg := target.Target{
		Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew(projectID)},
		Task:  identifier.MustNew(taskID),
	}
	t := &project.Task{
		ID:      identifier.MustNew(taskID),
		Command: cmd,
		Args:    args,
		Target:  tg,
		Options: project.TaskOptions{Cache: false},
	}
	return p, t
}

func TestPipelineRunsInDependencyOrder(t *testing.T) {
	g := action.New()
	uiBuild := g.AddNode(runTaskNode("ui", "build"))
	webBuild := g.AddNode(runTaskNode("web", "build"))
	g.Connect(webBuild, uiBuild)
	g.AnchorToRoot(uiBuild)

	uiProj, uiTask := taskFor("ui", "build", "sh", []string{"-c", "exit 0"})
	webProj, webTask := taskFor("web", "build", "sh", []string{"-c", "exit 0"})
	webTask.Deps = []target.Target{uiTask.Target}

	lookup := func(tg target.Target) (*project.Project, *project.Task, bool) {
		switch tg.Scope.Value {
		case identifier.MustNew("ui"):
			return uiProj, uiTask, true
		case identifier.MustNew("web"):
			return webProj, webTask, true
		}
		return nil, nil, false
	}

	deps := runner.Deps{
		Shared:      runner.NewSharedState(),
		HashTracker: taskhash.NewTracker(fakeVcs{}),
		GlobalHash:  "g",
		EnvSnapshot: env.Map{},
	}

	p := New(g, Handlers{Lookup: lookup, RunnerDeps: deps}, Options{})
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Completed, result.Status)
	assert.Equal(t, runner.Archived, result.Nodes[uiBuild].State)
	assert.Equal(t, runner.Archived, result.Nodes[webBuild].State)
}

func TestPipelineFailFastTerminatesEarly(t *testing.T) {
	g := action.New()
	a := g.AddNode(runTaskNode("a", "build"))
	b := g.AddNode(runTaskNode("b", "build"))
	g.Connect(b, a)
	g.AnchorToRoot(a)

	aProj, aTask := taskFor("a", "build", "sh", []string{"-c", "exit 1"})
	bProj, bTask := taskFor("b", "build", "sh", []string{"-c", "exit 0"})
	bTask.Deps = []target.Target{aTask.Target}

	lookup := func(tg target.Target) (*project.Project, *project.Task, bool) {
		switch tg.Scope.Value {
		case identifier.MustNew("a"):
			return aProj, aTask, true
		case identifier.MustNew("b"):
			return bProj, bTask, true
		}
		return nil, nil, false
	}

	deps := runner.Deps{
		Shared:      runner.NewSharedState(),
		HashTracker: taskhash.NewTracker(fakeVcs{}),
		GlobalHash:  "g",
		EnvSnapshot: env.Map{},
	}

	p := New(g, Handlers{Lookup: lookup, RunnerDeps: deps}, Options{FailFast: true})
	result, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Terminated, result.Status)
	assert.Equal(t, runner.Failed, result.Nodes[a].State)
	_, scheduled := result.Nodes[b]
	assert.False(t, scheduled)
}
