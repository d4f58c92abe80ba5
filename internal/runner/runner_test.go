package runner

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/action"
	"github.com/moonshot/moonshot/internal/cacheengine"
	"github.com/moonshot/moonshot/internal/env"
	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
	"github.com/moonshot/moonshot/internal/target"
	"github.com/moonshot/moonshot/internal/taskhash"
	"github.com/moonshot/moonshot/internal/vcs"
)

type fakeVcs struct{ enabled bool }

func (f fakeVcs) Enabled() bool { return f.enabled }
func (f fakeVcs) TouchedSince(string, string) (vcs.TouchedFiles, error) {
	return vcs.TouchedFiles{}, nil
}
func (f fakeVcs) Fingerprint(string) (string, bool, error) {
	return "", false, nil
}

func buildTask(id string, cmd string, args []string) *project.Task {
	return &project.Task{
		ID:      identifier.MustNew(id),
		Command: cmd,
		Args:    args,
		Target: target.Target{
			Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew("web")},
			Task:  identifier.MustNew(id),
		},
		Options: project.TaskOptions{Cache: false},
	}
}

func baseDeps(t *testing.T) Deps {
	t.Helper()
	return Deps{
		Shared:        NewSharedState(),
		HashTracker:   taskhash.NewTracker(fakeVcs{enabled: true}),
		GlobalHash:    "global",
		EnvSnapshot:   env.Map{},
		WorkspaceRoot: t.TempDir(),
	}
}

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

func TestRunExecutesOnCacheMiss(t *testing.T) {
	root := t.TempDir()
	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	task := buildTask("build", "sh", []string{"-c", "exit 0"})

	r := New(p, task, runTaskNode("web", "build"), baseDeps(t))
	ts, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Archived, ts.State)
	assert.Equal(t, 0, ts.ExitCode)
	assert.NotEmpty(t, ts.Hash)
}

func TestRunSkipsWhenDependencyFailed(t *testing.T) {
	root := t.TempDir()
	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	depTarget := target.Target{
		Scope: target.Scope{Kind: target.ScopeExplicit, Value: identifier.MustNew("ui")},
		Task:  identifier.MustNew("build"),
	}
	task := buildTask("build", "sh", []string{"-c", "exit 0"})
	task.Deps = []target.Target{depTarget}

	deps := baseDeps(t)
	deps.Shared.Set(depTarget, TerminalState{State: Failed})

	r := New(p, task, runTaskNode("web", "build"), deps)
	ts, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Skipped, ts.State)
}

func TestRunFailsOnNonzeroExit(t *testing.T) {
	root := t.TempDir()
	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	task := buildTask("build", "sh", []string{"-c", "exit 3"})

	r := New(p, task, runTaskNode("web", "build"), baseDeps(t))
	ts, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, ts.State)
	assert.Equal(t, 3, ts.ExitCode)
}

func TestRunAllowFailureConvertsToPass(t *testing.T) {
	root := t.TempDir()
	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	task := buildTask("build", "sh", []string{"-c", "exit 1"})
	task.Options.AllowFailure = true

	r := New(p, task, runTaskNode("web", "build"), baseDeps(t))
	ts, err := r.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Archived, ts.State)
	assert.Equal(t, 1, ts.ExitCode)
}

func TestRunCachesThenHydratesOnSecondRun(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "dist"), 0o755))

	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	task := buildTask("build", "sh", []string{"-c", "echo built > dist/out.txt"})
	task.Options.Cache = true
	task.Outputs = []project.OutputPath{{Kind: project.OutputProjectGlob, Path: "dist/**"}}

	deps := baseDeps(t)
	deps.CacheEngine = cacheengine.NewEngine(t.TempDir())

	r1 := New(p, task, runTaskNode("web", "build"), deps)
	ts1, err := r1.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Archived, ts1.State)
	require.NotEmpty(t, ts1.Hash)
	assert.True(t, deps.CacheEngine.Has(ts1.Hash))

	require.NoError(t, os.RemoveAll(filepath.Join(root, "dist")))

	deps2 := deps
	deps2.Shared = NewSharedState()
	r2 := New(p, task, runTaskNode("web", "build"), deps2)
	ts2, err := r2.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Archived, ts2.State)
	assert.Equal(t, ts1.Hash, ts2.Hash)

	data, err := os.ReadFile(filepath.Join(root, "dist", "out.txt"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "built")
}

func TestRunRespectsTimeout(t *testing.T) {
	root := t.TempDir()
	p := &project.Project{ID: identifier.MustNew("web"), Root: root}
	task := buildTask("build", "sh", []string{"-c", "sleep 5"})
	task.Options.TimeoutSeconds = 1

	deps := baseDeps(t)
	r := New(p, task, runTaskNode("web", "build"), deps)

	start := time.Now()
	ts, err := r.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, Failed, ts.State)
	assert.Less(t, time.Since(start), 8*time.Second)
}
