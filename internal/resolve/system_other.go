//go:build !windows

package resolve

import "fmt"

// Current is only meaningful on a live Windows host, where the system and
// Windows directories, PATH, and KnownDLLs table can be read through the
// Win32 API. On other hosts, FromRoot (against a mounted partition) or
// FindRootAbove is the supported path to a System descriptor.
func Current() (*System, error) {
	return nil, newError(KindScan, "Current", fmt.Errorf("not running on Windows; use FromRoot or FindRootAbove"))
}
