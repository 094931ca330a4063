package resolve

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/windlltrace/windlltrace/internal/apiset"
	"github.com/windlltrace/windlltrace/internal/winpe"
)

// System describes a Windows installation: the directories the loader
// consults, its PATH, safe-search policy, the KnownDLLs table, and the
// API-Set map. Grounded on original_source/src/system.rs's WindowsSystem.
type System struct {
	WinDir  string
	SysDir  string
	// SafeDLLSearchModeOn is nil when unknown; the lookup path treats a nil
	// value as true, matching the Windows default since XP SP2.
	SafeDLLSearchModeOn *bool
	// KnownDLLs maps a lowercased DLL name to its full path under SysDir.
	// Nil when not populated (non-Windows hosts, or a filesystem-root
	// system that lacks a live registry to enumerate).
	KnownDLLs map[string]string
	// APISet maps a lowercased, ".dll"-stripped virtual name to its
	// ordered host DLL list. Nil when apisetschema.dll could not be read.
	APISet apiset.Map
	// Path is the system PATH, already split and canonicalized. Nil when
	// unavailable (anything but the live Windows host).
	Path []string
}

// FromRoot builds a System from a candidate Windows partition root (i.e. a
// path that should contain a Windows\System32 directory). It returns
// (nil, nil) when rootPath does not look like a Windows installation, not
// an error — an invalid candidate is an expected outcome when probing
// ancestors via FindRootAbove.
func FromRoot(rootPath string) (*System, error) {
	winDir := filepath.Join(rootPath, "Windows")
	sysDir := filepath.Join(winDir, "System32")
	info, err := os.Stat(sysDir)
	if err != nil || !info.IsDir() {
		return nil, nil
	}

	sys := &System{WinDir: winDir, SysDir: sysDir}
	sys.APISet = readAPISetSchema(sysDir)
	return sys, nil
}

// FindRootAbove walks the ancestors of exePath, returning the first one
// that validates as a Windows installation root via FromRoot.
func FindRootAbove(exePath string) (*System, error) {
	dir := filepath.Dir(exePath)
	for {
		sys, err := FromRoot(dir)
		if err != nil {
			return nil, err
		}
		if sys != nil {
			return sys, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return nil, nil
		}
		dir = parent
	}
}

// readAPISetSchema attempts to parse sysDir/apisetschema.dll, returning nil
// (not an error) on any failure — a malformed or missing schema simply
// leaves the system descriptor without an API-Set map, per §4.3/§4.4.
func readAPISetSchema(sysDir string) apiset.Map {
	path := filepath.Join(sysDir, "apisetschema.dll")
	r, err := winpe.Open(path)
	if err != nil {
		return nil
	}
	defer r.Close()

	raw, ok, err := r.SectionBytes(".apiset")
	if err != nil || !ok {
		return nil
	}
	m, err := apiset.Parse(raw)
	if err != nil {
		fmt.Fprintf(os.Stderr, "resolve: failed to parse apiset schema at %s: %v\n", path, err)
		return nil
	}
	return m
}
