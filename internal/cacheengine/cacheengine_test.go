package cacheengine

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutThenFetchRoundtrips(t *testing.T) {
	cacheRoot := t.TempDir()
	projectRoot := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(projectRoot, "dist"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, "dist", "out.txt"), []byte("built"), 0o644))

	e := NewEngine(cacheRoot)
	entry, err := e.Put("abc123", projectRoot, []string{"dist/out.txt"}, 5*time.Second, "")
	require.NoError(t, err)
	assert.Equal(t, "abc123", entry.Hash)
	assert.True(t, e.Has("abc123"))

	restoreRoot := t.TempDir()
	fetched, restored, err := e.Fetch("abc123", restoreRoot)
	require.NoError(t, err)
	assert.Equal(t, "abc123", fetched.Hash)
	assert.Contains(t, restored, "dist/out.txt")

	data, err := os.ReadFile(filepath.Join(restoreRoot, "dist", "out.txt"))
	require.NoError(t, err)
	assert.Equal(t, "built", string(data))
}

func TestCleanRemovesEntry(t *testing.T) {
	cacheRoot := t.TempDir()
	projectRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(projectRoot, "out"), []byte("x"), 0o644))

	e := NewEngine(cacheRoot)
	_, err := e.Put("h1", projectRoot, []string{"out"}, 0, "")
	require.NoError(t, err)
	require.NoError(t, e.Clean("h1"))
	assert.False(t, e.Has("h1"))
}
