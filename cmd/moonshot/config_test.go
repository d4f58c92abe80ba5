package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestLoadWorkspaceDecodesPatternsAndInherited(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, workspaceFileName), `{
		"workspaces": ["apps/*", "packages/*"],
		"tasks": {
			"build": {"command": "build"}
		}
	}`)

	patterns, inherited, err := loadWorkspace(root)
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/*", "packages/*"}, patterns)
	require.Contains(t, inherited.Tasks, "build")
	assert.Equal(t, "build", inherited.Tasks["build"].Command)
}

func TestLoadWorkspaceMissingFileIsEmpty(t *testing.T) {
	root := t.TempDir()
	patterns, inherited, err := loadWorkspace(root)
	require.NoError(t, err)
	assert.Empty(t, patterns)
	assert.Empty(t, inherited.Tasks)
}

func TestDiscoverProjectsFindsOnlyMarkedDirectories(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "apps", "web", projectFileName), `{"id": "web"}`)
	writeFile(t, filepath.Join(root, "apps", "empty", "placeholder.txt"), "")
	writeFile(t, filepath.Join(root, "packages", "ui", projectFileName), `{"id": "ui"}`)

	sources, err := discoverProjects(root, []string{"apps/*", "packages/*"})
	require.NoError(t, err)
	assert.Equal(t, []string{"apps/web", "packages/ui"}, sources)
}

func TestLoadProjectConfigDecodesLocalShape(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "apps", "web", projectFileName), `{
		"id": "web",
		"type": "application",
		"tags": ["frontend"],
		"dependencies": [{"id": "ui", "scope": "production"}]
	}`)

	cfg, err := loadProjectConfig(root, "apps/web")
	require.NoError(t, err)
	assert.Equal(t, "web", cfg.ID)
	assert.Equal(t, "application", cfg.Type)
	assert.Equal(t, []string{"frontend"}, cfg.Tags)
	require.Len(t, cfg.Dependencies, 1)
	assert.Equal(t, "ui", cfg.Dependencies[0].ID)
}
