package resolve

import (
	"fmt"
	"path/filepath"
)

// Query is the complete specification of a search task: the target file,
// where to look, and which optional behaviors to enable. Grounded on
// original_source/src/query.rs's LookupQuery.
type Query struct {
	// System describes the Windows installation to resolve against. Nil
	// when none could be deduced (non-Windows host with no mounted
	// partition found).
	System *System
	// UserPath is additional executable search path set by the caller.
	UserPath []string
	// TargetExe is the path to the target executable or DLL.
	TargetExe string
	// AppDir is the parent directory of TargetExe.
	AppDir string
	// WorkingDir is the working directory as it should appear in the
	// search path.
	WorkingDir string
	// MaxDepth caps recursion; nil means unbounded.
	MaxDepth *int
	// SkipSystemDLLs, when true, stops the resolver from reading the
	// dependencies of modules found in a system directory.
	SkipSystemDLLs bool
	// ExtractSymbols, when true, requests import/export table extraction
	// (and therefore the cross-module symbol check) for every module.
	ExtractSymbols bool
}

// DeduceFromExecutableLocation builds a Query with sensible defaults: the
// working directory is set to the executable's own directory, and the
// system descriptor is taken from the live host on Windows or from the
// first Windows installation found among targetExe's ancestors otherwise.
func DeduceFromExecutableLocation(targetExe string) (*Query, error) {
	absTarget, err := filepath.Abs(targetExe)
	if err != nil {
		return nil, newError(KindContextDeduction, "DeduceFromExecutableLocation", err)
	}
	appDir := filepath.Dir(absTarget)
	if appDir == "" || appDir == "." {
		return nil, newError(KindContextDeduction, "DeduceFromExecutableLocation",
			fmt.Errorf("could not determine application directory for %q", targetExe))
	}

	sys, err := deduceSystem(absTarget)
	if err != nil {
		return nil, err
	}

	return &Query{
		System:         sys,
		TargetExe:      absTarget,
		AppDir:         appDir,
		WorkingDir:     appDir,
		SkipSystemDLLs: false,
		ExtractSymbols: false,
	}, nil
}

// deduceSystem tries Current() first (meaningful only on Windows) and
// falls back to walking the target's ancestors for a mounted installation.
// Neither source succeeding is not itself an error — a nil System simply
// produces a minimal lookup path (ExecutableDir/WorkingDir/UserPath only).
func deduceSystem(absTarget string) (*System, error) {
	if sys, err := Current(); err == nil {
		return sys, nil
	}
	sys, err := FindRootAbove(absTarget)
	if err != nil {
		return nil, err
	}
	return sys, nil
}
