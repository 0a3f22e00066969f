// Package main provides the fidforge CLI for building Ghidra FID databases.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/ochairo/fidforge/internal/domain-adapters/gateways"
	orchestrators "github.com/ochairo/fidforge/internal/domain-orchestrators"
	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	gw "github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	"github.com/ochairo/fidforge/internal/domain/services"
	s3 "github.com/ochairo/fidforge/internal/external-adapters/minio"
)

// BuildReport is the machine-readable outcome written by --json-output
type BuildReport struct {
	Success         bool         `json:"success"`
	DryRun          bool         `json:"dry_run"`
	ManifestPath    string       `json:"manifest_path,omitempty"`
	Sdks            []SdkOutcome `json:"sdks"`
	DurationSeconds float64      `json:"duration_seconds"`
}

// SdkOutcome summarizes one SDK in a BuildReport
type SdkOutcome struct {
	Version       string   `json:"version"`
	Succeeded     []string `json:"succeeded"`
	Failed        []string `json:"failed"`
	ArtifactPath  string   `json:"artifact_path,omitempty"`
	ArtifactBytes int64    `json:"artifact_bytes,omitempty"`
	SignaturePath string   `json:"signature_path,omitempty"`
	PublishedURLs []string `json:"published_urls,omitempty"`
	ManifestPath  string   `json:"manifest_path,omitempty"`
	Plan          []string `json:"plan,omitempty"`
	Error         string   `json:"error,omitempty"`
}

func runBuild(ctx context.Context, args []string) int {
	fs := flag.NewFlagSet("build", flag.ExitOnError)
	common := registerCommonFlags(fs)
	var (
		concurrency = fs.Int("concurrency", 0, "Maximum analyzer jobs running at once (default: 1)")
		timeout     = fs.Int("timeout", 0, "Timeout per unit in minutes (default: 120)")
		force       = fs.Bool("force", false, "Overwrite existing artifacts")
		dryRun      = fs.Bool("dry-run", false, "Print what would run without creating files or starting processes")
		keepWork    = fs.Bool("keep-work", false, "Keep per-job analyzer projects for debugging")
		jsonOutput  = fs.String("json-output", "", "Optional JSON file for detailed report")
		quiet       = fs.Bool("quiet", false, "Quiet mode - minimal output")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fidforge build [options]

Run Ghidra's headless analyzer over every library unit of each SDK and
bundle the resulting FID databases into <output-dir>/<version>.fidb.tar.gz.

Examples:
  fidforge build --config fidforge.yml
  fidforge build --sdk r09=/sdk/katana_r09 --ghidra /opt/ghidra
  fidforge build --sdk r09=/sdk/r09 --sdk r10=/sdk/r10 --concurrency 2 --force
  fidforge build --config fidforge.yml --dry-run

Exit status is 0 when every SDK produced an artifact, 1 when any did not,
and 2 on configuration errors.

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
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}
	if *concurrency != 0 {
		cfg.Concurrency = *concurrency
	}
	if *timeout != 0 {
		cfg.Analyzer.TimeoutMinutes = *timeout
	}
	cfg.Force = cfg.Force || *force
	cfg.DryRun = *dryRun
	cfg.Analyzer.KeepWork = cfg.Analyzer.KeepWork || *keepWork

	logger, err := common.logger(*quiet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	orch, err := newBuildOrchestrator(ctx, cfg, logger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitCodeFor(err)
	}

	if !*quiet {
		if cfg.DryRun {
			fmt.Printf("🔎 Dry run for %d SDK(s)\n\n", len(cfg.Sdks))
		} else {
			fmt.Printf("🔨 Building FID databases for %d SDK(s) into %s\n\n", len(cfg.Sdks), cfg.OutputDir)
		}
	}

	result, err := orch.Build(ctx)
	if result != nil && len(result.Sdks) > 0 {
		fmt.Print(result.Summary())
	}
	if result != nil {
		printArtifactSizes(result, *quiet)
		if *jsonOutput != "" {
			if werr := writeBuildReport(*jsonOutput, result); werr != nil {
				fmt.Fprintf(os.Stderr, "Warning: failed to write JSON report: %v\n", werr)
			} else if !*quiet {
				fmt.Printf("📄 Report written to %s\n", *jsonOutput)
			}
		}
	}

	switch {
	case err != nil && entities.IsConfigurationError(err):
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitConfigError
	case err != nil:
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	case !result.Success():
		fmt.Fprintf(os.Stderr, "\n❌ Not every SDK produced an artifact\n")
		return exitFailure
	}
	if !*quiet && !cfg.DryRun {
		fmt.Printf("\n✅ All SDKs built successfully (%s)\n", result.FinishedAt.Sub(result.StartedAt).Round(time.Second))
	}
	return exitOK
}

// newBuildOrchestrator wires the scanner, analyzer, aggregator and the
// optional signer and publisher for cfg
func newBuildOrchestrator(ctx context.Context, cfg *entities.BuildConfig, logger interfaces.Logger) (*orchestrators.FidbOrchestrator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !cfg.DryRun {
		if err := cfg.ValidateAnalyzer(os.Getenv); err != nil {
			return nil, err
		}
	}

	executor := gateways.NewProcessExecutor()
	analyzer := gateways.NewHeadlessAnalyzer(executor, gateways.NewUnitStager(executor, logger), logger)
	scanner := services.NewCatalogScanner(gateways.NewMemberInspector(), logger)
	aggregator := services.NewDatabaseAggregator(gateways.NewPackager(), gateways.NewChecksumVerifier(), logger)

	config := orchestrators.FidbOrchestratorConfig{
		Build:      cfg,
		Executable: cfg.AnalyzerExecutable(os.Getenv),
		Planner:    analyzer,
	}

	if cfg.Signing.Enabled() && !cfg.DryRun {
		var passphrase []byte
		if cfg.Signing.PassphraseEnv != "" {
			passphrase = []byte(os.Getenv(cfg.Signing.PassphraseEnv))
		}
		signer, err := gateways.NewGPGSigner(cfg.Signing.KeyFile, passphrase)
		if err != nil {
			return nil, &entities.ConfigurationError{Field: "signing.key_file", Reason: "cannot load signing key", Err: err}
		}
		logger.Info("signing artifacts", interfaces.F("fingerprint", signer.Fingerprint()))
		config.Signer = signer
	}

	if cfg.Publish.Enabled() && !cfg.DryRun {
		publisher, err := newPublisher(ctx, cfg.Publish)
		if err != nil {
			return nil, err
		}
		config.Publisher = publisher
	}

	return orchestrators.NewFidbOrchestrator(scanner, analyzer, aggregator, logger, config), nil
}

func newPublisher(ctx context.Context, settings entities.PublishSettings) (gw.ArtifactPublisher, error) {
	accessKey := os.Getenv(settings.AccessKeyEnv)
	secretKey := os.Getenv(settings.SecretKeyEnv)
	if accessKey == "" || secretKey == "" {
		return nil, &entities.ConfigurationError{
			Field:  "publish",
			Reason: fmt.Sprintf("credentials missing: set %s and %s", settings.AccessKeyEnv, settings.SecretKeyEnv),
		}
	}
	publisher, err := s3.NewPublisher(ctx, settings.Endpoint, settings.Region, settings.Bucket, accessKey, secretKey, settings.UseSSL)
	if err != nil {
		return nil, &entities.ConfigurationError{Field: "publish.endpoint", Reason: "cannot reach bucket", Err: err}
	}
	return publisher, nil
}

func printArtifactSizes(result *orchestrators.RunResult, quiet bool) {
	if quiet || result.DryRun {
		return
	}
	for _, s := range result.Sdks {
		if s.Artifact == nil {
			continue
		}
		if info, err := os.Stat(s.Artifact.Path); err == nil {
			fmt.Printf("📏 %s: %s, %d unit(s)\n", s.Sdk.Version, humanize.Bytes(uint64(info.Size())), len(s.Artifact.Units))
		}
	}
}

func writeBuildReport(path string, result *orchestrators.RunResult) error {
	report := BuildReport{
		Success:         result.Success(),
		DryRun:          result.DryRun,
		ManifestPath:    result.ManifestPath,
		Sdks:            make([]SdkOutcome, 0, len(result.Sdks)),
		DurationSeconds: result.FinishedAt.Sub(result.StartedAt).Seconds(),
	}
	for _, s := range result.Sdks {
		outcome := SdkOutcome{
			Version:      s.Sdk.Version,
			Succeeded:    []string{},
			Failed:       []string{},
			ManifestPath: s.ManifestPath,
			Plan:         s.Plan,
		}
		for _, j := range s.Succeeded() {
			outcome.Succeeded = append(outcome.Succeeded, j.UnitName())
		}
		for _, j := range s.Failed() {
			outcome.Failed = append(outcome.Failed, j.UnitName())
		}
		if s.Artifact != nil {
			outcome.ArtifactPath = s.Artifact.Path
			outcome.SignaturePath = s.Artifact.SignaturePath
			outcome.PublishedURLs = s.Artifact.PublishedURLs
			if info, err := os.Stat(s.Artifact.Path); err == nil {
				outcome.ArtifactBytes = info.Size()
			}
		}
		if s.Error != nil {
			outcome.Error = s.Error.Error()
		}
		report.Sdks = append(report.Sdks, outcome)
	}

	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}
	return os.WriteFile(path, append(data, '\n'), 0600)
}
