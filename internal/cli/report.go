// Package cli formats resolve.Graph results for terminal, JSON, and
// symbol-check output.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/fatih/color"
	"github.com/ianlancetaylor/demangle"

	"github.com/windlltrace/windlltrace/internal/resolve"
)

// Reporter formats and prints a resolved dependency graph.
type Reporter struct {
	graph      *resolve.Graph
	errorsOnly bool
}

// NewReporter creates a new reporter for the given graph.
func NewReporter(graph *resolve.Graph) *Reporter {
	return &Reporter{graph: graph}
}

// SetErrorsOnly restricts the tree rendering to modules whose subtrees
// contain a missing dependency.
func (r *Reporter) SetErrorsOnly(errorsOnly bool) {
	r.errorsOnly = errorsOnly
}

// PrintTree writes the primary depth-indented tree rendering to w: each line
// `<name> => <directory or sentinel> [Known DLL]?`, with ` [API Set]`
// appended for modules resolved through the API-Set namespace.
func (r *Reporter) PrintTree(w io.Writer) error {
	cyan := color.New(color.FgCyan, color.Bold)
	cyan.Fprintln(w, "\n╔════════════════════════════════════════╗")
	cyan.Fprintln(w, "║          windlltrace dependency tree     ║")
	cyan.Fprintln(w, "╚════════════════════════════════════════╝")

	g := r.graph
	if r.errorsOnly {
		g = g.FilterOnlyNotFound()
	}

	root, err := g.Root()
	if err != nil {
		return err
	}
	if root == nil {
		fmt.Fprintln(w, "  (empty graph)")
		return nil
	}

	printModuleTree(w, g, root, 0, map[string]bool{}, r.errorsOnly)
	return nil
}

func printModuleTree(w io.Writer, g *resolve.Graph, m *resolve.Module, depth int, visiting map[string]bool, errorsOnly bool) {
	indent := strings.Repeat("  ", depth)
	name := strings.ToLower(m.Name)

	green := color.New(color.FgGreen)
	red := color.New(color.FgRed, color.Bold)
	gray := color.New(color.FgHiBlack)

	if !m.Found {
		red.Fprintf(w, "%s%s => (not found)\n", indent, m.Name)
		return
	}

	location := "(unknown location)"
	if m.Details.FullPath != "" {
		location = filepath.Dir(m.Details.FullPath)
	}
	suffix := ""
	if m.Details.IsKnownDLL {
		suffix = " [Known DLL]"
	}
	if m.Details.IsAPISet {
		suffix += " [API Set]"
	}

	green.Fprintf(w, "%s%s", indent, m.Name)
	fmt.Fprintf(w, " => %s", location)
	gray.Fprintf(w, "%s\n", suffix)

	if visiting[name] {
		gray.Fprintf(w, "%s  (cycle, not expanded further)\n", indent)
		return
	}
	visiting[name] = true
	defer delete(visiting, name)

	for _, dep := range m.Details.Dependencies {
		child, ok := g.Get(dep)
		if !ok {
			if errorsOnly {
				// Filtered out of the errors-only subgraph because it (and
				// its descendants) resolved cleanly; omit rather than
				// reporting a false gap.
				continue
			}
			red.Fprintf(w, "%s  %s => (not enqueued)\n", indent, dep)
			continue
		}
		printModuleTree(w, g, child, depth+1, visiting, errorsOnly)
	}
}

// jsonModule is the stable shape of one module record in -json output.
type jsonModule struct {
	Name                 string   `json:"name"`
	DepthFirstAppearance int      `json:"depth_first_appearance"`
	Found                bool     `json:"found"`
	IsSystem             bool     `json:"is_system,omitempty"`
	IsAPISet             bool     `json:"is_api_set,omitempty"`
	IsKnownDLL           bool     `json:"is_known_dll,omitempty"`
	FullPath             string   `json:"full_path,omitempty"`
	Dependencies         []string `json:"dependencies,omitempty"`
}

// WriteJSON serializes every module in the graph, ordered by first
// appearance, to w.
func (r *Reporter) WriteJSON(w io.Writer) error {
	sorted := r.graph.SortedByFirstAppearance()
	out := make([]jsonModule, 0, len(sorted))
	for _, m := range sorted {
		jm := jsonModule{
			Name:                 m.Name,
			DepthFirstAppearance: m.DepthFirstAppearance,
			Found:                m.Found,
		}
		if m.Details != nil {
			jm.IsSystem = m.Details.IsSystem
			jm.IsAPISet = m.Details.IsAPISet
			jm.IsKnownDLL = m.Details.IsKnownDLL
			jm.FullPath = m.Details.FullPath
			jm.Dependencies = m.Details.Dependencies
		}
		out = append(out, jm)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

// PrintSymbolCheck writes the tertiary missing-library / missing-symbol
// report produced by resolve.Graph.Check, demangling symbol names when they
// parse as Itanium C++ or Rust mangled names. MSVC-mangled names are not
// demangled and are printed as they appear in the import table.
func PrintSymbolCheck(w io.Writer, report *resolve.CheckReport) {
	yellow := color.New(color.FgYellow, color.Bold)
	red := color.New(color.FgRed)
	green := color.New(color.FgGreen)

	if report.Empty() {
		green.Fprintln(w, "\nNo missing libraries or symbols found.")
		return
	}

	yellow.Fprintln(w, "\n== Missing libraries ==")
	for _, importer := range sortedKeys(report.NotFoundLibraries) {
		missing := sortedSet(report.NotFoundLibraries[importer])
		red.Fprintf(w, "  %s -> %s\n", importer, strings.Join(missing, ", "))
	}

	yellow.Fprintln(w, "\n== Missing symbols ==")
	for _, importer := range sortedKeys(report.NotFoundSymbols) {
		byExporter := report.NotFoundSymbols[importer]
		for _, exporter := range sortedKeys(byExporter) {
			symbols := sortedSet(byExporter[exporter])
			for i, s := range symbols {
				symbols[i] = demangleSymbol(s)
			}
			red.Fprintf(w, "  %s -> %s -> %s\n", importer, exporter, strings.Join(symbols, ", "))
		}
	}
}

func demangleSymbol(name string) string {
	d, err := demangle.ToString(name, demangle.NoParams)
	if err != nil {
		return name
	}
	return d
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedSet(m map[string]struct{}) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
