package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlltrace/windlltrace/internal/resolve"
)

func makeWindowsRoot(t *testing.T, root string) {
	t.Helper()
	sysDir := filepath.Join(root, "Windows", "System32")
	require.NoError(t, os.MkdirAll(sysDir, 0o755))
}

func TestFromRootReturnsNilForNonWindowsDirectory(t *testing.T) {
	dir := t.TempDir()
	sys, err := resolve.FromRoot(dir)
	require.NoError(t, err)
	assert.Nil(t, sys, "a directory without Windows\\System32 is not a valid root")
}

func TestFromRootBuildsSystemFromValidRoot(t *testing.T) {
	root := t.TempDir()
	makeWindowsRoot(t, root)

	sys, err := resolve.FromRoot(root)
	require.NoError(t, err)
	require.NotNil(t, sys)
	assert.Equal(t, filepath.Join(root, "Windows"), sys.WinDir)
	assert.Equal(t, filepath.Join(root, "Windows", "System32"), sys.SysDir)
	assert.Nil(t, sys.APISet, "no apisetschema.dll present, so the map stays nil rather than erroring")
}

func TestFindRootAboveWalksAncestors(t *testing.T) {
	root := t.TempDir()
	makeWindowsRoot(t, root)

	nested := filepath.Join(root, "Program Files", "App")
	require.NoError(t, os.MkdirAll(nested, 0o755))
	target := filepath.Join(nested, "app.exe")

	sys, err := resolve.FindRootAbove(target)
	require.NoError(t, err)
	require.NotNil(t, sys)
	assert.Equal(t, filepath.Join(root, "Windows"), sys.WinDir)
}

func TestFindRootAboveReturnsNilWhenNoneFound(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "a", "b", "app.exe")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o755))

	sys, err := resolve.FindRootAbove(target)
	require.NoError(t, err)
	assert.Nil(t, sys)
}
