//go:build windows

package resolve

import (
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/windows"
)

// Current collects information about the live Windows host: system and
// Windows directories via the Win32 API, PATH from the environment, the
// API-Set schema, and the KnownDLLs table. Grounded on
// original_source/src/system.rs's WindowsSystem::current.
func Current() (*System, error) {
	sysDir, err := getSystemDirectory()
	if err != nil {
		return nil, newError(KindScan, "Current", err)
	}
	winDir, err := getWindowsDirectory()
	if err != nil {
		return nil, newError(KindScan, "Current", err)
	}

	sys := &System{WinDir: winDir, SysDir: sysDir}
	sys.APISet = readAPISetSchema(sysDir)

	if pathEnv, ok := os.LookupEnv("PATH"); ok {
		var dirs []string
		for _, p := range strings.Split(pathEnv, ";") {
			if abs, err := filepath.Abs(p); err == nil {
				dirs = append(dirs, abs)
			}
		}
		sys.Path = dirs
	}

	if names, err := enumerateKnownDLLs(); err == nil {
		entries := make(map[string]string, len(names))
		for _, n := range names {
			entries[normalize(n)] = filepath.Join(sysDir, n)
		}
		sys.KnownDLLs = entries
	}

	return sys, nil
}

func getSystemDirectory() (string, error) {
	return getWin32Directory(windows.GetSystemDirectory)
}

func getWindowsDirectory() (string, error) {
	return getWin32Directory(windows.GetWindowsDirectory)
}

// getWin32Directory calls one of golang.org/x/sys/windows' no-argument
// directory getters (which size their own buffer and already return a Go
// string) once and cleans the returned path.
func getWin32Directory(fn func() (string, error)) (string, error) {
	dir, err := fn()
	if err != nil {
		return "", err
	}
	return filepath.Clean(dir), nil
}
