// Package resolve implements the Windows DLL load-time resolution algorithm:
// lookup-path construction, the breadth-first dependency traversal, and the
// resulting module graph with its cross-module symbol check.
package resolve

import "strings"

// normalize lowercases a module name for use as a graph or table key, the
// one place case-insensitivity is implemented, per the loader's own
// case-insensitive file-name semantics.
func normalize(name string) string {
	return strings.ToLower(name)
}

// Module describes one DLL or EXE mentioned while resolving a dependency
// tree. Grounded on original_source/src/executable.rs's Executable.
type Module struct {
	// Name is the module name as it appears in the import table (or as the
	// resolver's canonical name once the PE export directory was read).
	Name string
	// DepthFirstAppearance is the smallest BFS depth at which this module
	// was enqueued. Monotone: once set, it never increases.
	DepthFirstAppearance int
	// Found reports whether the lookup path located a file for this name.
	Found bool
	// Details is present iff Found is true.
	Details *ModuleDetails
}

// ModuleDetails holds metadata extracted for a module that was found.
type ModuleDetails struct {
	// IsAPISet reports this module resolved through the API-Set virtual
	// namespace rather than a file lookup.
	IsAPISet bool
	// IsSystem reports the module resolved through a system lookup-path
	// entry: KnownDLLs, ApiSet, SystemDir or WindowsDir.
	IsSystem bool
	// IsKnownDLL reports the module resolved through the KnownDLLs table.
	IsKnownDLL bool
	// FullPath is the canonical on-disk path (or, for API-Set modules, the
	// cosmetic physical location under SystemDir\downlevel).
	FullPath string
	// Dependencies is the ordered list of DLL names this module imports.
	// Nil when dependencies were deliberately not extracted (system
	// subtree pruning) or could not be read.
	Dependencies []string
	// Symbols is present only when symbol extraction was requested and
	// succeeded.
	Symbols *ModuleSymbols
}

// ModuleSymbols holds a module's export set and its per-exporter import set.
type ModuleSymbols struct {
	Exported map[string]struct{}
	Imported map[string]map[string]struct{}
}

// CheckReport is the output of Graph.Check: unresolved dependencies and
// unsatisfied symbol imports discovered across the whole graph.
type CheckReport struct {
	// NotFoundLibraries maps an importer name to the set of its
	// dependency names that were never resolved.
	NotFoundLibraries map[string]map[string]struct{}
	// NotFoundSymbols maps importer -> exporter -> set of symbol names the
	// importer references but the exporter does not export.
	NotFoundSymbols map[string]map[string]map[string]struct{}
}

func newCheckReport() *CheckReport {
	return &CheckReport{
		NotFoundLibraries: make(map[string]map[string]struct{}),
		NotFoundSymbols:   make(map[string]map[string]map[string]struct{}),
	}
}

func (r *CheckReport) extend(other *CheckReport) {
	for importer, missing := range other.NotFoundLibraries {
		dst := r.NotFoundLibraries[importer]
		if dst == nil {
			dst = make(map[string]struct{})
			r.NotFoundLibraries[importer] = dst
		}
		for name := range missing {
			dst[name] = struct{}{}
		}
	}
	for importer, byExporter := range other.NotFoundSymbols {
		dst := r.NotFoundSymbols[importer]
		if dst == nil {
			dst = make(map[string]map[string]struct{})
			r.NotFoundSymbols[importer] = dst
		}
		for exporter, symbols := range byExporter {
			dstSyms := dst[exporter]
			if dstSyms == nil {
				dstSyms = make(map[string]struct{})
				dst[exporter] = dstSyms
			}
			for s := range symbols {
				dstSyms[s] = struct{}{}
			}
		}
	}
}

// Empty reports whether the report carries no findings.
func (r *CheckReport) Empty() bool {
	return len(r.NotFoundLibraries) == 0 && len(r.NotFoundSymbols) == 0
}
