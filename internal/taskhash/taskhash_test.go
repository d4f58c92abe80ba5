package taskhash

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/identifier"
	"github.com/moonshot/moonshot/internal/project"
)

func TestFingerprintFallsBackToSize(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	fp, err := Fingerprint(nil, dir, "a.txt")
	require.NoError(t, err)
	assert.Equal(t, "size:5", fp)
}

func TestHashTaskIsDeterministic(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	p := &project.Project{ID: identifier.MustNew("web"), Root: dir}
	task := &project.Task{
		ID:      identifier.MustNew("build"),
		Command: "build.sh",
		Args:    []string{"--flag"},
	}

	tr1 := NewTracker(nil)
	h1, err := tr1.HashTask(p, task, []string{"a.txt"}, nil, "global", "")
	require.NoError(t, err)

	tr2 := NewTracker(nil)
	h2, err := tr2.HashTask(p, task, []string{"a.txt"}, nil, "global", "")
	require.NoError(t, err)

	assert.Equal(t, h1, h2)
	assert.Len(t, h1, 64) // sha256 hex digest
}

func TestHashTaskChangesWithGlobalHash(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello"), 0o644))

	p := &project.Project{ID: identifier.MustNew("web"), Root: dir}
	task := &project.Task{ID: identifier.MustNew("build"), Command: "build.sh"}

	tr := NewTracker(nil)
	h1, err := tr.HashTask(p, task, []string{"a.txt"}, nil, "global-a", "")
	require.NoError(t, err)
	h2, err := tr.HashTask(p, task, []string{"a.txt"}, nil, "global-b", "")
	require.NoError(t, err)

	assert.NotEqual(t, h1, h2)
}
