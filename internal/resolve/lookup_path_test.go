package resolve_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/windlltrace/windlltrace/internal/resolve"
)

func boolPtr(b bool) *bool { return &b }

func TestNewLookupPathSafeSearchOrdering(t *testing.T) {
	q := &resolve.Query{
		System: &resolve.System{
			WinDir: `C:\Windows`,
			SysDir: `C:\Windows\System32`,
			Path:   []string{`C:\extra`},
		},
		AppDir:     `C:\App`,
		WorkingDir: `C:\cwd`,
	}
	lp := resolve.NewLookupPath(q)

	var kinds []resolve.EntryKind
	for _, e := range lp.Entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []resolve.EntryKind{
		resolve.EntryExecutableDir,
		resolve.EntrySystemDir,
		resolve.EntryWindowsDir,
		resolve.EntryWorkingDir,
		resolve.EntrySystemPath,
	}, kinds, "safe search mode keeps WorkingDir after WindowsDir")
}

func TestNewLookupPathUnsafeSearchMovesWorkingDirEarlier(t *testing.T) {
	q := &resolve.Query{
		System: &resolve.System{
			WinDir:              `C:\Windows`,
			SysDir:              `C:\Windows\System32`,
			SafeDLLSearchModeOn: boolPtr(false),
		},
		AppDir:     `C:\App`,
		WorkingDir: `C:\cwd`,
	}
	lp := resolve.NewLookupPath(q)

	var kinds []resolve.EntryKind
	for _, e := range lp.Entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []resolve.EntryKind{
		resolve.EntryExecutableDir,
		resolve.EntryWorkingDir,
		resolve.EntrySystemDir,
		resolve.EntryWindowsDir,
	}, kinds, "unsafe search mode puts WorkingDir right after ExecutableDir")
}

func TestNewLookupPathKnownDLLsAndAPISetComeFirst(t *testing.T) {
	q := &resolve.Query{
		System: &resolve.System{
			WinDir:    `C:\Windows`,
			SysDir:    `C:\Windows\System32`,
			KnownDLLs: map[string]string{"ntdll.dll": `C:\Windows\System32\ntdll.dll`},
			APISet:    map[string][]string{"api-ms-win-core-file-l1-1-0": {"kernelbase.dll"}},
		},
		AppDir:     `C:\App`,
		WorkingDir: `C:\cwd`,
	}
	lp := resolve.NewLookupPath(q)
	require.True(t, len(lp.Entries) >= 2)
	assert.Equal(t, resolve.EntryKnownDLLs, lp.Entries[0].Kind)
	assert.Equal(t, resolve.EntryAPISet, lp.Entries[1].Kind)
}

func TestNewLookupPathWithoutSystemIsMinimal(t *testing.T) {
	q := &resolve.Query{AppDir: `C:\App`, WorkingDir: `C:\cwd`, UserPath: []string{`C:\user`}}
	lp := resolve.NewLookupPath(q)

	var kinds []resolve.EntryKind
	for _, e := range lp.Entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []resolve.EntryKind{
		resolve.EntryExecutableDir,
		resolve.EntryWorkingDir,
		resolve.EntryUserPath,
	}, kinds)
}

func TestSearchDLLKnownDLLsShortCircuitsBeforeDirectories(t *testing.T) {
	dir := t.TempDir()
	decoy := filepath.Join(dir, "ntdll.dll")
	require.NoError(t, os.WriteFile(decoy, []byte("decoy"), 0o644))

	q := &resolve.Query{
		System: &resolve.System{
			WinDir:    filepath.Join(dir, "Windows"),
			SysDir:    filepath.Join(dir, "Windows", "System32"),
			KnownDLLs: map[string]string{"ntdll.dll": `C:\Windows\System32\ntdll.dll`},
		},
		AppDir:     dir,
		WorkingDir: dir,
	}
	lp := resolve.NewLookupPath(q)

	result, err := lp.SearchDLL("NTDLL.DLL")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, resolve.EntryKnownDLLs, result.Location.Kind)
	assert.Equal(t, `C:\Windows\System32\ntdll.dll`, result.FullPath)
}

func TestSearchDLLAPISetRedirectIsCaseAndExtensionInsensitive(t *testing.T) {
	q := &resolve.Query{
		System: &resolve.System{
			SysDir: `C:\Windows\System32`,
			APISet: map[string][]string{"api-ms-win-core-file-l1-1-0": {"kernelbase.dll"}},
		},
	}
	lp := resolve.NewLookupPath(q)

	result, err := lp.SearchDLL("API-MS-WIN-CORE-FILE-L1-1-0.DLL")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, resolve.EntryAPISet, result.Location.Kind)
	assert.Contains(t, result.FullPath, "downlevel")
}

func TestSearchDLLFallsThroughDirectoriesCaseInsensitively(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "Foo.dll"), []byte("x"), 0o644))

	q := &resolve.Query{AppDir: dir, WorkingDir: t.TempDir()}
	lp := resolve.NewLookupPath(q)

	result, err := lp.SearchDLL("foo.dll")
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Equal(t, filepath.Join(dir, "Foo.dll"), result.FullPath)
}

func TestSearchDLLReturnsNilWhenNotFoundAnywhere(t *testing.T) {
	q := &resolve.Query{AppDir: t.TempDir(), WorkingDir: t.TempDir()}
	lp := resolve.NewLookupPath(q)

	result, err := lp.SearchDLL("missing.dll")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestFromDWPParsesKnownTokensAndSkipsComments(t *testing.T) {
	dir := t.TempDir()
	dwp := filepath.Join(dir, "test.dwp")
	content := ":; this is a comment\nKnownDLLs\nAppDir\nSxS\nUserDir C:\\extra\n"
	require.NoError(t, os.WriteFile(dwp, []byte(content), 0o644))

	q := &resolve.Query{AppDir: `C:\App`}
	lp, err := resolve.FromDWP(dwp, q)
	require.NoError(t, err)

	var kinds []resolve.EntryKind
	for _, e := range lp.Entries {
		kinds = append(kinds, e.Kind)
	}
	assert.Equal(t, []resolve.EntryKind{
		resolve.EntryKnownDLLs,
		resolve.EntryExecutableDir,
		resolve.EntryUserPath,
	}, kinds)
	assert.Equal(t, `C:\extra`, lp.Entries[2].Path)
}

func TestFromDWPRejectsUnknownToken(t *testing.T) {
	dir := t.TempDir()
	dwp := filepath.Join(dir, "test.dwp")
	require.NoError(t, os.WriteFile(dwp, []byte("NotARealToken\n"), 0o644))

	_, err := resolve.FromDWP(dwp, &resolve.Query{})
	assert.Error(t, err)
}
