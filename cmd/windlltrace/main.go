// Package main provides the windlltrace CLI tool.
package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"flag"

	"github.com/fatih/color"

	"github.com/windlltrace/windlltrace/internal/cli"
	"github.com/windlltrace/windlltrace/internal/resolve"
)

var (
	workingDir   = flag.String("working-dir", "", "working directory used by the WorkingDir search step (default: the target's own directory)")
	userPath     = flag.String("user-path", "", "semicolon-separated list of additional search directories")
	maxDepth     = flag.Int("max-depth", -1, "maximum recursion depth (default: unbounded)")
	checkSymbols = flag.Bool("check-symbols", false, "extract import/export tables and report unresolved symbols")
	skipSystem   = flag.Bool("skip-system", false, "do not descend into dependencies of system-directory modules")
	errorsOnly   = flag.Bool("errors-only", false, "restrict the tree rendering to subtrees containing a missing dependency")
	jsonOut      = flag.Bool("json", false, "also emit the resolved graph as JSON, ordered by first appearance")
	rootPath     = flag.String("root", "", "path to a mounted Windows partition root (non-Windows hosts only)")
	dwpPath      = flag.String("dwp", "", "Dependency Walker .dwp search-path file")
)

func main() {
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage()
		os.Exit(1)
	}

	target := flag.Arg(0)
	if err := run(target); err != nil {
		red := color.New(color.FgRed, color.Bold)
		_, _ = red.Fprintf(os.Stderr, "\nerror: %v\n\n", err)
		os.Exit(1)
	}
}

func run(target string) error {
	query, err := buildQuery(target)
	if err != nil {
		return err
	}

	lookupPath, err := buildLookupPath(query)
	if err != nil {
		return err
	}

	graph, err := resolve.Run(query, lookupPath)
	if err != nil {
		return err
	}

	reporter := cli.NewReporter(graph)
	reporter.SetErrorsOnly(*errorsOnly)
	if err := reporter.PrintTree(os.Stdout); err != nil {
		return err
	}

	if *jsonOut {
		fmt.Println()
		if err := reporter.WriteJSON(os.Stdout); err != nil {
			return fmt.Errorf("writing json output: %w", err)
		}
	}

	if *checkSymbols {
		report, err := graph.Check(true)
		if err != nil {
			return fmt.Errorf("checking symbols: %w", err)
		}
		cli.PrintSymbolCheck(os.Stdout, report)
	}

	return nil
}

func buildQuery(target string) (*resolve.Query, error) {
	query, err := resolve.DeduceFromExecutableLocation(target)
	if err != nil {
		return nil, err
	}

	if *rootPath != "" {
		sys, err := resolve.FromRoot(*rootPath)
		if err != nil {
			return nil, err
		}
		query.System = sys
	}

	if *workingDir != "" {
		abs, err := filepath.Abs(*workingDir)
		if err != nil {
			return nil, fmt.Errorf("resolving working directory: %w", err)
		}
		query.WorkingDir = abs
	}

	if *userPath != "" {
		for _, p := range strings.Split(*userPath, ";") {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			if _, statErr := os.Stat(p); statErr != nil {
				_, _ = fmt.Fprintf(os.Stderr, "windlltrace: skipping user-path entry %q: %v\n", p, statErr)
				continue
			}
			query.UserPath = append(query.UserPath, p)
		}
	}

	if *maxDepth >= 0 {
		d := *maxDepth
		query.MaxDepth = &d
	}

	query.SkipSystemDLLs = *skipSystem
	query.ExtractSymbols = *checkSymbols

	return query, nil
}

func buildLookupPath(query *resolve.Query) (*resolve.LookupPath, error) {
	if *dwpPath != "" {
		return resolve.FromDWP(*dwpPath, query)
	}
	return resolve.NewLookupPath(query), nil
}

func printUsage() {
	cyan := color.New(color.FgCyan, color.Bold)
	_, _ = cyan.Println("\nwindlltrace - Windows DLL load-time dependency resolver")

	fmt.Println("\nUsage:")
	fmt.Println("  windlltrace [options] <target.exe|target.dll>")
	fmt.Println("\nOptions:")
	fmt.Println("  -working-dir <dir>    working directory for the WorkingDir search step")
	fmt.Println("  -user-path <dirs>     semicolon-separated additional search directories")
	fmt.Println("  -max-depth <n>        maximum recursion depth (default: unbounded)")
	fmt.Println("  -check-symbols        report unresolved imported symbols")
	fmt.Println("  -skip-system          do not descend into system-directory dependencies")
	fmt.Println("  -errors-only          restrict the tree to subtrees with missing entries")
	fmt.Println("  -json                 also emit the resolved graph as JSON")
	fmt.Println("  -root <dir>           mounted Windows partition root (non-Windows hosts)")
	fmt.Println("  -dwp <file>           Dependency Walker .dwp search-path file")

	fmt.Println("\nExamples:")
	fmt.Println("  windlltrace C:\\Windows\\System32\\notepad.exe")
	fmt.Println("  windlltrace -check-symbols -json program.exe")
	fmt.Println("  windlltrace -root /mnt/winpart program.exe")
	fmt.Println()
}
