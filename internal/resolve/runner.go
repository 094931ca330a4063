package resolve

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/windlltrace/windlltrace/internal/winpe"
)

// job is one pending (name, depth) work item. Grounded on
// original_source/src/runner.rs's Job / Runner.
type job struct {
	name  string
	depth int
}

// Run performs the breadth-first dependency traversal described in §4.8:
// a LIFO work stack seeded with the target's file name at depth 0, each
// popped name looked up via lookupPath, opened with the PE reader, and its
// own dependencies pushed for later processing. It takes no
// context.Context — the traversal is single-threaded and synchronous with
// no suspension points to cancel, matching the concurrency model's
// explicit "none" cancellation policy.
func Run(q *Query, lookupPath *LookupPath) (*Graph, error) {
	filename := filepath.Base(q.TargetExe)
	if filename == "" || filename == "." {
		return nil, newError(KindScan, "Run", fmt.Errorf("could not determine file name for %q", q.TargetExe))
	}

	graph := NewGraph()
	stack := []job{{name: filename, depth: 0}}
	enqueued := map[string]bool{normalize(filename): true}

	maxDepth := -1
	if q.MaxDepth != nil {
		maxDepth = *q.MaxDepth
	}

	for len(stack) > 0 {
		j := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if maxDepth >= 0 && j.depth > maxDepth {
			continue
		}
		if graph.Contains(j.name) {
			continue
		}

		result, err := lookupPath.SearchDLL(j.name)
		if err != nil {
			fmt.Fprintf(os.Stderr, "resolve: search_dll(%s): %v\n", j.name, err)
			result = nil
		}

		if result == nil {
			graph.Insert(Module{Name: j.name, DepthFirstAppearance: j.depth, Found: false})
			continue
		}

		mod, deps := resolveModule(j.name, j.depth, result, q)
		graph.Insert(mod)

		for _, dep := range deps {
			key := normalize(dep)
			if enqueued[key] || graph.Contains(dep) {
				continue
			}
			enqueued[key] = true
			stack = append(stack, job{name: dep, depth: j.depth + 1})
		}
	}

	return graph, nil
}

// resolveModule opens the file found at result.FullPath and builds the
// Module record for it, along with the dependency names to enqueue next.
func resolveModule(queriedName string, depth int, result *LookupResult, q *Query) (Module, []string) {
	isSystem := result.Location.IsSystem()
	isAPISet := result.Location.Kind == EntryAPISet
	isKnownDLL := result.Location.Kind == EntryKnownDLLs

	canonicalName := filepath.Base(result.FullPath)
	var dependencies []string
	var symbols *ModuleSymbols

	reader, readerErr := winpe.Open(result.FullPath)
	if readerErr == nil {
		defer reader.Close()
		if name, err := reader.DLLName(); err == nil && name != "" {
			canonicalName = name
		}
	}

	switch {
	case isAPISet:
		base := strings.TrimSuffix(normalize(canonicalName), ".dll")
		dependencies = result.Location.APISetMap[base]
	case isSystem && q.SkipSystemDLLs:
		dependencies = nil
	default:
		if readerErr == nil {
			if deps, err := reader.Dependencies(); err == nil {
				dependencies = deps
			} else {
				fmt.Fprintf(os.Stderr, "resolve: reading dependencies of %s: %v\n", result.FullPath, err)
			}
		} else {
			fmt.Fprintf(os.Stderr, "resolve: opening %s: %v\n", result.FullPath, readerErr)
		}
	}

	if q.ExtractSymbols && !isAPISet && readerErr == nil {
		exported, expErr := reader.Exports()
		imported, impErr := reader.Imports()
		if expErr == nil && impErr == nil {
			symbols = &ModuleSymbols{Exported: exported, Imported: imported}
		} else {
			fmt.Fprintf(os.Stderr, "resolve: reading symbols of %s: expErr=%v impErr=%v\n", result.FullPath, expErr, impErr)
		}
	}

	return Module{
		Name:                 canonicalName,
		DepthFirstAppearance: depth,
		Found:                true,
		Details: &ModuleDetails{
			IsAPISet:     isAPISet,
			IsSystem:     isSystem,
			IsKnownDLL:   isKnownDLL,
			FullPath:     result.FullPath,
			Dependencies: dependencies,
			Symbols:      symbols,
		},
	}, dependencies
}
