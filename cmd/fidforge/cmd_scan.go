package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/ochairo/fidforge/internal/domain-adapters/gateways"
	gw "github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	"github.com/ochairo/fidforge/internal/domain/services"
)

func runScan(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	common := registerCommonFlags(fs)
	var (
		showMembers = fs.Bool("members", false, "List every member file of each unit")
		showPlan    = fs.Bool("plan", false, "Show staging tools and analyzer commands per unit")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fidforge scan [options]

List the library units fidforge would analyze. Nothing is written and no
process is started.

Examples:
  fidforge scan --sdk r09=/sdk/katana_r09
  fidforge scan --config fidforge.yml --members --plan

Options:
`)
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitConfigError
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n\n", fs.Args())
		fs.Usage()
		return exitConfigError
	}

	cfg, err := common.loadConfig()
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}

	logger, err := common.logger(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	executor := gateways.NewProcessExecutor()
	planner := gateways.NewHeadlessAnalyzer(executor, gateways.NewUnitStager(executor, logger), logger)
	scanner := services.NewCatalogScanner(gateways.NewMemberInspector(), logger)
	executable := cfg.AnalyzerExecutable(os.Getenv)
	if executable == "" {
		executable = "analyzeHeadless"
	}

	total := 0
	for _, sdk := range cfg.Sdks {
		units, report, err := scanner.ScanAll(ctx, sdk, cfg.Convention, cfg.Processor)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: SDK %s: %v\n", sdk.Version, err)
			return exitCodeFor(err)
		}

		fmt.Printf("📚 SDK %s (%s): %d unit(s)\n", sdk.Version, sdk.Path, len(units))
		for _, unit := range units {
			fmt.Printf("  %-24s %3d member(s)  %s\n", unit.Name, len(unit.Members), strings.Join(unit.Compilers(), ","))
			if *showMembers {
				for _, m := range unit.Members {
					fmt.Printf("    %-12s %-4s %-16s %s\n", m.Kind, m.Compiler, m.Variant, m.RelPath)
				}
			}
			if *showPlan {
				config := gw.AnalyzerConfig{
					Executable: executable,
					Sdk:        sdk,
					OutputDir:  filepath.Join(cfg.OutputDir, sdk.Version),
					WorkDir:    cfg.EffectiveWorkDir(),
					Timeout:    cfg.Timeout(),
					Tools:      cfg.Tools,
					ExtraArgs:  cfg.Analyzer.ExtraArgs,
				}
				for _, line := range planner.Plan(unit, config) {
					fmt.Printf("    %s\n", line)
				}
			}
		}
		for _, w := range report.Warnings {
			fmt.Printf("  ⚠️  %s\n", w)
		}
		fmt.Printf("  📦 %s\n\n", services.ArtifactPath(cfg.OutputDir, sdk.Version))
		total += len(units)
	}

	fmt.Printf("Total: %d unit(s) in %d SDK(s)\n", total, len(cfg.Sdks))
	if total == 0 {
		return exitFailure
	}
	return exitOK
}

// unitCountLabel counts the .fidb entries of a bundle listing
func unitCountLabel(names []string) string {
	n := 0
	for _, name := range names {
		if strings.HasSuffix(name, services.UnitDatabaseExt) {
			n++
		}
	}
	return fmt.Sprintf("%d unit database(s)", n)
}

