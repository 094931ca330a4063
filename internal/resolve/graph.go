package resolve

import (
	"fmt"
	"os"
	"sort"
)

// Graph is the indexed set of modules discovered by a resolver run,
// grounded on original_source/src/executable.rs's Executables. It is keyed
// by lowercased module name and owned exclusively by the Runner during a
// run; callers should treat it as read-only afterward.
type Graph struct {
	index map[string]*Module
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]*Module)}
}

// Insert adds m if no record exists yet for its (lowercased) name. A
// collision — two different files claiming the same name — is a warning,
// not a fatal error; the earlier record is kept intact, mirroring
// Runner::register_finding in the original implementation.
func (g *Graph) Insert(m Module) {
	key := normalize(m.Name)
	if existing, ok := g.index[key]; ok {
		fmt.Fprintf(os.Stderr, "resolve: two modules found with the same name %q (keeping %v, discarding %v)\n",
			m.Name, describePath(existing), describePath(&m))
		return
	}
	g.index[key] = &m
}

func describePath(m *Module) string {
	if m.Details != nil {
		return m.Details.FullPath
	}
	return m.Name
}

// Get returns the module record for name, case-insensitively.
func (g *Graph) Get(name string) (*Module, bool) {
	m, ok := g.index[normalize(name)]
	return m, ok
}

// Contains reports whether name has a record, case-insensitively.
func (g *Graph) Contains(name string) bool {
	_, ok := g.index[normalize(name)]
	return ok
}

// Len returns the number of module records.
func (g *Graph) Len() int { return len(g.index) }

// Root returns the unique module with DepthFirstAppearance == 0. It is an
// error for a non-empty graph to have zero or more than one such node.
func (g *Graph) Root() (*Module, error) {
	if len(g.index) == 0 {
		return nil, nil
	}
	var roots []*Module
	for _, m := range g.index {
		if m.DepthFirstAppearance == 0 {
			roots = append(roots, m)
		}
	}
	switch len(roots) {
	case 0:
		return nil, newError(KindScan, "Graph.Root", fmt.Errorf("the module graph has no root"))
	case 1:
		return roots[0], nil
	default:
		names := make([]string, len(roots))
		for i, r := range roots {
			names[i] = r.Name
		}
		return nil, newError(KindScan, "Graph.Root", fmt.Errorf("the module graph has multiple roots: %v", names))
	}
}

// SortedByFirstAppearance returns every record, stable-sorted ascending by
// DepthFirstAppearance.
func (g *Graph) SortedByFirstAppearance() []*Module {
	out := make([]*Module, 0, len(g.index))
	for _, m := range g.index {
		out = append(out, m)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DepthFirstAppearance < out[j].DepthFirstAppearance
	})
	return out
}

// FilterOnlyNotFound returns the subgraph containing every not-found module
// together with every ancestor on the path to the root, computed by a DFS
// over dependency lists retaining nodes with at least one missing
// descendant (including themselves).
func (g *Graph) FilterOnlyNotFound() *Graph {
	out := NewGraph()
	root, err := g.Root()
	if err != nil || root == nil {
		// Nothing to anchor a traversal on; fall back to a flat scan.
		for _, m := range g.index {
			if !m.Found {
				out.index[normalize(m.Name)] = m
			}
		}
		return out
	}

	hasMissingDescendant := make(map[string]bool)
	visiting := make(map[string]bool)
	var visit func(name string) bool
	visit = func(name string) bool {
		key := normalize(name)
		if v, ok := hasMissingDescendant[key]; ok {
			return v
		}
		if visiting[key] {
			return false // cycle guard
		}
		visiting[key] = true
		defer delete(visiting, key)

		m, ok := g.index[key]
		if !ok {
			return false
		}
		result := !m.Found
		if m.Details != nil {
			for _, dep := range m.Details.Dependencies {
				if visit(dep) {
					result = true
				}
			}
		}
		hasMissingDescendant[key] = result
		return result
	}

	if visit(root.Name) {
		for key := range hasMissingDescendant {
			if hasMissingDescendant[key] {
				if m, ok := g.index[key]; ok {
					out.index[key] = m
				}
			}
		}
	}
	return out
}

// Check validates the graph: for each non-api-set, non-system module with
// loaded symbol tables, for every imported exporter, verify the exporter
// was resolved and, if it is not a system module and carries symbols, that
// every imported symbol appears in its export set. Symbols imported by ordinal (OrdinalSentinel)
// are always accepted.
func (g *Graph) Check(extractSymbols bool) (*CheckReport, error) {
	report := newCheckReport()
	if !extractSymbols {
		return report, nil
	}
	for name := range g.index {
		r, err := g.checkImports(name)
		if err != nil {
			continue
		}
		report.extend(r)
	}
	return report, nil
}

func (g *Graph) checkImports(name string) (*CheckReport, error) {
	report := newCheckReport()
	m, ok := g.Get(name)
	if !ok {
		return report, newError(KindScan, "Graph.checkImports", fmt.Errorf("could not find module %q", name))
	}
	if m.Details == nil || m.Details.IsAPISet || m.Details.IsSystem {
		return report, nil
	}
	if m.Details.Symbols == nil {
		return report, nil
	}

	for dllName := range m.Details.Symbols.Imported {
		dep, ok := g.Get(dllName)
		if !ok || !dep.Found {
			missing := report.NotFoundLibraries[m.Name]
			if missing == nil {
				missing = make(map[string]struct{})
				report.NotFoundLibraries[m.Name] = missing
			}
			missing[dllName] = struct{}{}
			continue
		}
		if dep.Details != nil && dep.Details.IsSystem {
			continue
		}
		r := g.checkSymbols(m.Name, dllName)
		report.extend(r)
	}
	return report, nil
}

func (g *Graph) checkSymbols(importer, exporter string) *CheckReport {
	report := newCheckReport()
	imp, ok := g.Get(importer)
	if !ok || imp.Details == nil || imp.Details.Symbols == nil {
		return report
	}
	importedFromThisDep, ok := imp.Details.Symbols.Imported[exporter]
	if !ok {
		return report
	}
	exp, ok := g.Get(exporter)
	if !ok || exp.Details == nil || exp.Details.Symbols == nil {
		return report
	}

	var missing map[string]struct{}
	for symbol := range importedFromThisDep {
		if symbol == "" {
			continue // imported by ordinal; always accepted
		}
		if _, exported := exp.Details.Symbols.Exported[symbol]; !exported {
			if missing == nil {
				missing = make(map[string]struct{})
			}
			missing[symbol] = struct{}{}
		}
	}
	if len(missing) > 0 {
		report.NotFoundSymbols[importer] = map[string]map[string]struct{}{exporter: missing}
	}
	return report
}
