package project

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/moonshot/moonshot/internal/turbopath"
)

func boolPtr(b bool) *bool { return &b }

func TestDetectLanguage(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "unknown", DetectLanguage(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))
	assert.Equal(t, "go", DetectLanguage(dir))
}

func TestBuilderBuild_MergesInheritedAndLocalTasks(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(turbopath.AbsolutePath(dir))

	inherited := InheritedConfig{
		Tasks: map[string]InheritedTaskConfig{
			"build": {TaskConfig: TaskConfig{
				Command: "build.sh",
				Args:    []string{"--base"},
				Outputs: []string{"dist/**"},
			}},
		},
	}
	local := LocalProjectConfig{
		ID:   "web",
		Type: "application",
		Tasks: map[string]TaskConfig{
			"build": {
				Args: []string{"--local"},
			},
			"lint": {
				Command: "eslint .",
			},
		},
	}

	p, err := b.Build("apps/web", local, inherited)
	require.NoError(t, err)

	buildTask := p.Tasks["build"]
	require.NotNil(t, buildTask)
	assert.Equal(t, "build.sh", buildTask.Command)
	assert.Equal(t, []string{"--base", "--local"}, buildTask.Args)
	assert.Equal(t, TaskBuild, buildTask.Type)

	lintTask := p.Tasks["lint"]
	require.NotNil(t, lintTask)
	assert.Equal(t, TaskRun, lintTask.Type)
}

func TestBuilderBuild_RejectsEscapingOutput(t *testing.T) {
	dir := t.TempDir()
	b := NewBuilder(turbopath.AbsolutePath(dir))

	local := LocalProjectConfig{
		ID: "web",
		Tasks: map[string]TaskConfig{
			"build": {
				Command: "x",
				Outputs: []string{"../escape/dist"},
			},
		},
	}

	_, err := b.Build("apps/web", local, InheritedConfig{})
	assert.Error(t, err)
}

func TestMergeStrategies(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, mergeStrings([]string{"a"}, []string{"b"}, MergeAppend))
	assert.Equal(t, []string{"b", "a"}, mergeStrings([]string{"a"}, []string{"b"}, MergePrepend))
	assert.Equal(t, []string{"b"}, mergeStrings([]string{"a"}, []string{"b"}, MergeReplace))
	assert.Equal(t, []string{"a"}, mergeStrings([]string{"a"}, []string{"b"}, MergePreserve))
}

func TestInferTaskType(t *testing.T) {
	assert.Equal(t, TaskTest, inferTaskType(&Task{ID: "test"}))
	assert.Equal(t, TaskBuild, inferTaskType(&Task{ID: "build"}))
	assert.Equal(t, TaskBuild, inferTaskType(&Task{ID: "compile", Outputs: []OutputPath{{Path: "out"}}}))
	assert.Equal(t, TaskRun, inferTaskType(&Task{ID: "dev"}))
}
