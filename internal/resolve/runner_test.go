package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlltrace/windlltrace/internal/resolve"
	"github.com/windlltrace/windlltrace/internal/winpe/testpe"
)

func writePE(t *testing.T, path string, opts testpe.Options) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, testpe.Build(opts), 0o644))
}

// S1: a simple chain, app.exe -> foo.dll -> bar.dll, all resolved from the
// executable's own directory (no system layout involved).
func TestRunResolvesSimpleChain(t *testing.T) {
	appDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{Imports: []testpe.Import{{DLL: "foo.dll", Names: []string{"DoWork"}}}})
	writePE(t, filepath.Join(appDir, "foo.dll"), testpe.Options{
		DLLName: "foo.dll",
		Exports: []string{"DoWork"},
		Imports: []testpe.Import{{DLL: "bar.dll", Names: []string{"Helper"}}},
	})
	writePE(t, filepath.Join(appDir, "bar.dll"), testpe.Options{DLLName: "bar.dll", Exports: []string{"Helper"}})

	q := &resolve.Query{TargetExe: appExe, AppDir: appDir, WorkingDir: appDir}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	for _, name := range []string{"app.exe", "foo.dll", "bar.dll"} {
		mod, ok := graph.Get(name)
		require.True(t, ok, name)
		assert.True(t, mod.Found, name)
	}

	root, err := graph.Root()
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "app.exe", root.Name)

	fooMod, _ := graph.Get("foo.dll")
	assert.Equal(t, 1, fooMod.DepthFirstAppearance)
	barMod, _ := graph.Get("bar.dll")
	assert.Equal(t, 2, barMod.DepthFirstAppearance)
}

// S2: a dependency that cannot be found anywhere in the lookup path is
// recorded as Found == false rather than aborting the traversal.
func TestRunRecordsUnresolvedDependency(t *testing.T) {
	appDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{Imports: []testpe.Import{{DLL: "missing.dll", Names: []string{"X"}}}})

	q := &resolve.Query{TargetExe: appExe, AppDir: appDir, WorkingDir: appDir}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	mod, ok := graph.Get("missing.dll")
	require.True(t, ok)
	assert.False(t, mod.Found)
	assert.Nil(t, mod.Details)
}

// One DLL imported twice under names that differ only by case is
// deduplicated to a single graph node, matching the loader's own
// case-insensitive module table.
func TestRunDeduplicatesCaseInsensitiveNames(t *testing.T) {
	appDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{Imports: []testpe.Import{
		{DLL: "Foo.dll", Names: []string{"A"}},
		{DLL: "FOO.DLL", Names: []string{"A"}},
	}})
	writePE(t, filepath.Join(appDir, "Foo.dll"), testpe.Options{DLLName: "Foo.dll", Exports: []string{"A"}})

	q := &resolve.Query{TargetExe: appExe, AppDir: appDir, WorkingDir: appDir}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)
	assert.Equal(t, 2, graph.Len(), "app.exe + one deduplicated dependency node")
}

// S4: MaxDepth stops the traversal from descending past the configured
// depth, though the capped-depth module itself is still recorded as found.
func TestRunRespectsMaxDepth(t *testing.T) {
	appDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{Imports: []testpe.Import{{DLL: "foo.dll", Names: []string{"DoWork"}}}})
	writePE(t, filepath.Join(appDir, "foo.dll"), testpe.Options{
		DLLName: "foo.dll", Exports: []string{"DoWork"},
		Imports: []testpe.Import{{DLL: "bar.dll", Names: []string{"Helper"}}},
	})
	writePE(t, filepath.Join(appDir, "bar.dll"), testpe.Options{DLLName: "bar.dll", Exports: []string{"Helper"}})

	depth := 0
	q := &resolve.Query{TargetExe: appExe, AppDir: appDir, WorkingDir: appDir, MaxDepth: &depth}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	assert.True(t, graph.Contains("app.exe"))
	assert.False(t, graph.Contains("foo.dll"), "depth-1 dependency should not be recorded past MaxDepth 0")
}

// S3: a query in a different case than the on-disk file name still resolves
// (via the case-insensitive filesystem cache), and the root record's Name
// reflects the on-disk case, not the queried case.
func TestRunCanonicalizesRootNameToOnDiskCase(t *testing.T) {
	appDir := t.TempDir()
	actualExe := filepath.Join(appDir, "DepRunTest.exe")
	writePE(t, actualExe, testpe.Options{})

	queriedExe := filepath.Join(appDir, "DEPRUNTEST.EXE")
	q := &resolve.Query{TargetExe: queriedExe, AppDir: appDir, WorkingDir: appDir}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	root, err := graph.Root()
	require.NoError(t, err)
	require.NotNil(t, root)
	assert.Equal(t, "DepRunTest.exe", root.Name)
}

// Invariant 10: a system (not api-set) module's dependencies are not
// extracted when -skip-system pruning is enabled, and its dependency is
// never enqueued.
func TestRunPrunesSystemDependenciesWhenSkipSystemDLLsSet(t *testing.T) {
	appDir := t.TempDir()
	sysDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{Imports: []testpe.Import{{DLL: "sysdll.dll", Names: []string{"X"}}}})
	writePE(t, filepath.Join(sysDir, "sysdll.dll"), testpe.Options{
		DLLName: "sysdll.dll", Exports: []string{"X"},
		Imports: []testpe.Import{{DLL: "deeper.dll", Names: []string{"Y"}}},
	})

	q := &resolve.Query{
		TargetExe: appExe, AppDir: appDir, WorkingDir: appDir,
		SkipSystemDLLs: true,
		System:         &resolve.System{SysDir: sysDir, WinDir: sysDir},
	}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	mod, ok := graph.Get("sysdll.dll")
	require.True(t, ok)
	require.True(t, mod.Found)
	assert.True(t, mod.Details.IsSystem)
	assert.Nil(t, mod.Details.Dependencies)
	assert.False(t, graph.Contains("deeper.dll"), "pruned system module's dependency should not be enqueued")
}

// S5: an import satisfied through the API-Set virtual namespace resolves to
// its redirected host DLL instead of hitting the filesystem for the virtual
// name itself.
func TestRunResolvesThroughAPISetRedirection(t *testing.T) {
	appDir := t.TempDir()
	appExe := filepath.Join(appDir, "app.exe")
	writePE(t, appExe, testpe.Options{
		Imports: []testpe.Import{{DLL: "api-ms-win-core-file-l1-1-0.dll", Names: []string{"CreateFileW"}}},
	})
	writePE(t, filepath.Join(appDir, "kernelbase.dll"), testpe.Options{DLLName: "kernelbase.dll", Exports: []string{"CreateFileW"}})

	q := &resolve.Query{
		TargetExe: appExe, AppDir: appDir, WorkingDir: appDir,
		System: &resolve.System{
			SysDir: appDir, // so the /downlevel cosmetic path still lands near a real dir
			APISet: map[string][]string{"api-ms-win-core-file-l1-1-0": {"kernelbase.dll"}},
		},
	}
	lp := resolve.NewLookupPath(q)

	graph, err := resolve.Run(q, lp)
	require.NoError(t, err)

	mod, ok := graph.Get("api-ms-win-core-file-l1-1-0.dll")
	require.True(t, ok)
	require.True(t, mod.Found)
	assert.True(t, mod.Details.IsAPISet)
	assert.Equal(t, []string{"kernelbase.dll"}, mod.Details.Dependencies)
}
