package platform

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectGo(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "go.mod"), []byte("module x\n"), 0o644))

	p, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, "go", p.Slug)
}

func TestDetectFallsBackToSystem(t *testing.T) {
	dir := t.TempDir()

	p, err := Detect(dir)
	require.NoError(t, err)
	assert.Equal(t, "system", p.Slug)
}

func TestParseToolchainVersion(t *testing.T) {
	v, err := ParseToolchainVersion("npm@8.5.0")
	require.NoError(t, err)
	assert.Equal(t, int64(8), v.Major())
}

func TestWrapCommand(t *testing.T) {
	cmd, args := goPlatform.WrapCommand("build", []string{"-v"})
	assert.Equal(t, "go", cmd)
	assert.Equal(t, []string{"run", "build", "-v"}, args)
}
