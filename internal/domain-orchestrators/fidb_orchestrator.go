// Package orchestrators coordinates complex workflows across multiple domain services.
package orchestrators

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	svc "github.com/ochairo/fidforge/internal/domain/interfaces/services"
	"github.com/ochairo/fidforge/internal/domain/services"
)

// RunManifestName is written below the output directory after every build
const RunManifestName = "fidforge-run.json"

// FidbOrchestratorConfig holds the optional collaborators and resolved
// settings of an orchestrator
type FidbOrchestratorConfig struct {
	Build      *entities.BuildConfig
	Executable string // resolved analyzeHeadless path

	Planner   gateways.AnalysisPlanner   // used by dry runs
	Signer    gateways.ArtifactSigner    // nil disables signing
	Publisher gateways.ArtifactPublisher // nil disables publishing
}

// FidbOrchestrator runs scan, analysis and aggregation for every SDK root
// of a BuildConfig. It is the only component that schedules jobs.
type FidbOrchestrator struct {
	scanner    svc.CatalogScanner
	analyzer   gateways.Analyzer
	aggregator svc.Aggregator
	logger     interfaces.Logger
	config     FidbOrchestratorConfig
	newID      func() string
	now        func() time.Time
}

// NewFidbOrchestrator creates a new orchestrator
func NewFidbOrchestrator(
	scanner svc.CatalogScanner,
	analyzer gateways.Analyzer,
	aggregator svc.Aggregator,
	logger interfaces.Logger,
	config FidbOrchestratorConfig,
) *FidbOrchestrator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	if config.Build == nil {
		config.Build = entities.DefaultBuildConfig()
	}
	return &FidbOrchestrator{
		scanner:    scanner,
		analyzer:   analyzer,
		aggregator: aggregator,
		logger:     logger,
		config:     config,
		newID:      uuid.NewString,
		now:        time.Now,
	}
}

// SdkResult is the outcome of processing one SDK root
type SdkResult struct {
	Sdk          entities.SdkRoot
	Jobs         []*entities.AnalysisJob // scan order
	Artifact     *entities.FidDatabaseArtifact
	Manifest     *entities.Manifest
	ManifestPath string
	Warnings     []string
	Plan         []string // dry runs only
	Duration     time.Duration
	Error        error
}

// Succeeded returns the succeeded jobs in scan order
func (r *SdkResult) Succeeded() []*entities.AnalysisJob {
	return r.filter(entities.JobSucceeded)
}

// Failed returns the failed jobs in scan order
func (r *SdkResult) Failed() []*entities.AnalysisJob {
	return r.filter(entities.JobFailed)
}

func (r *SdkResult) filter(status entities.JobStatus) []*entities.AnalysisJob {
	var out []*entities.AnalysisJob
	for _, j := range r.Jobs {
		if j.Status == status {
			out = append(out, j)
		}
	}
	return out
}

// Success reports whether the SDK produced an artifact without errors
func (r *SdkResult) Success() bool {
	return r.Artifact != nil && r.Error == nil
}

// RunResult is the outcome of a Build call
type RunResult struct {
	StartedAt    time.Time
	FinishedAt   time.Time
	Sdks         []*SdkResult
	ManifestPath string
	DryRun       bool
}

// Success reports whether every SDK produced an artifact. A dry run
// succeeds when no SDK reported an error.
func (r *RunResult) Success() bool {
	for _, s := range r.Sdks {
		if r.DryRun {
			if s.Error != nil {
				return false
			}
			continue
		}
		if !s.Success() {
			return false
		}
	}
	return true
}

// scanned pairs an SDK with its validated, not yet consumed scan
type scanned struct {
	sdk    entities.SdkRoot
	seq    iter.Seq2[*entities.LibraryUnit, error]
	report *svc.ScanReport
	err    error // precondition failure, reported per SDK
}

// Build processes every configured SDK in order. Configuration errors from
// any SDK abort the run before a single analyzer process starts. A
// cancelled context stops dispatch, waits for in-flight jobs and returns
// the context error together with the partial result.
func (o *FidbOrchestrator) Build(ctx context.Context) (*RunResult, error) {
	cfg := o.config.Build
	result := &RunResult{StartedAt: o.now(), DryRun: cfg.DryRun}

	if err := cfg.Validate(); err != nil {
		return result, err
	}
	if cfg.Concurrency > 1 {
		o.logger.Warn("running analyzer jobs in parallel; each job holds a full Ghidra project on disk",
			interfaces.F("concurrency", cfg.Concurrency))
	}

	// Validate every SDK up front so configuration errors surface before
	// any job is dispatched
	work := make([]scanned, 0, len(cfg.Sdks))
	for _, sdk := range cfg.Sdks {
		item := scanned{sdk: sdk}
		item.err = o.aggregator.CheckPrecondition(o.aggregateConfig(sdk, nil))
		if item.err != nil && !errors.As(item.err, new(*entities.ArtifactExistsError)) {
			return result, item.err
		}

		seq, report, err := o.scanner.Scan(ctx, sdk, cfg.Convention, cfg.Processor)
		if err != nil {
			return result, fmt.Errorf("SDK %s: %w", sdk.Version, err)
		}
		item.seq, item.report = seq, report
		work = append(work, item)
	}

	var runErr error
	for _, item := range work {
		if err := ctx.Err(); err != nil {
			runErr = err
			break
		}

		var sdkResult *SdkResult
		if cfg.DryRun {
			sdkResult = o.planSdk(ctx, item)
		} else {
			sdkResult = o.buildSdk(ctx, item)
		}
		result.Sdks = append(result.Sdks, sdkResult)

		if errors.Is(sdkResult.Error, context.Canceled) || errors.Is(sdkResult.Error, context.DeadlineExceeded) {
			runErr = sdkResult.Error
			break
		}
	}

	result.FinishedAt = o.now()
	if !cfg.DryRun {
		result.ManifestPath = filepath.Join(cfg.OutputDir, RunManifestName)
		if err := services.WriteJSONFile(result.ManifestPath, runManifest(result)); err != nil {
			o.logger.Error("failed to write run manifest", interfaces.F("error", err))
			result.ManifestPath = ""
		}
	}
	return result, runErr
}

func (o *FidbOrchestrator) buildSdk(ctx context.Context, item scanned) *SdkResult {
	start := o.now()
	res := &SdkResult{Sdk: item.sdk}
	defer func() { res.Duration = o.now().Sub(start) }()

	if item.err != nil {
		// Artifact already present; nothing is dispatched
		res.Error = item.err
		o.logger.Error("skipping SDK", interfaces.F("sdk", item.sdk.Version), interfaces.F("error", item.err))
		return res
	}

	cfg := o.config.Build
	analyzerConfig := gateways.AnalyzerConfig{
		Executable: o.config.Executable,
		Sdk:        item.sdk,
		OutputDir:  filepath.Join(cfg.OutputDir, item.sdk.Version),
		WorkDir:    cfg.EffectiveWorkDir(),
		Timeout:    cfg.Timeout(),
		KeepWork:   cfg.Analyzer.KeepWork,
		Tools:      cfg.Tools,
		ExtraArgs:  cfg.Analyzer.ExtraArgs,
	}

	o.logger.Info("processing SDK", interfaces.F("sdk", item.sdk.Version), interfaces.F("root", item.sdk.Path))

	var (
		mu   sync.Mutex
		jobs []*entities.AnalysisJob
		g    errgroup.Group
	)
	g.SetLimit(cfg.Concurrency)

	var scanErr error
	for unit, err := range item.seq {
		if err != nil {
			scanErr = err
			break
		}

		// Reserve the slot in scan order before the job runs
		mu.Lock()
		idx := len(jobs)
		jobs = append(jobs, nil)
		mu.Unlock()

		if ctx.Err() != nil {
			job := entities.NewAnalysisJob(o.newID(), unit)
			_ = job.Fail(o.now(), -1, fmt.Errorf("not started: %w", ctx.Err()))
			mu.Lock()
			jobs[idx] = job
			mu.Unlock()
			break
		}

		o.logger.Info("dispatching unit", interfaces.F("sdk", item.sdk.Version), interfaces.F("unit", unit.Name), interfaces.F("index", idx+1))
		g.Go(func() error {
			job := o.analyzer.Analyze(ctx, unit, analyzerConfig)
			mu.Lock()
			jobs[idx] = job
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	res.Jobs = jobs
	res.Warnings = reportWarnings(item.report)

	if err := ctx.Err(); err != nil {
		res.Error = err
		return res
	}
	if scanErr != nil {
		res.Error = fmt.Errorf("scan of SDK %s failed: %w", item.sdk.Version, scanErr)
		return res
	}

	artifact, manifest, err := o.aggregator.Aggregate(ctx, jobs, o.aggregateConfig(item.sdk, res.Warnings))
	res.Manifest = manifest
	if manifest != nil {
		res.ManifestPath = services.ManifestPath(cfg.OutputDir, item.sdk.Version)
	}
	if err != nil {
		res.Error = err
		return res
	}
	res.Artifact = artifact

	if o.config.Signer != nil {
		sigPath, err := o.config.Signer.SignFile(ctx, artifact.Path)
		if err != nil {
			res.Error = fmt.Errorf("failed to sign artifact: %w", err)
			return res
		}
		artifact.SignaturePath = sigPath
	}

	if o.config.Publisher != nil {
		if err := o.publish(ctx, res); err != nil {
			res.Error = err
			return res
		}
	}
	return res
}

// planSdk drains the scan and records what a real build would run
func (o *FidbOrchestrator) planSdk(_ context.Context, item scanned) *SdkResult {
	start := o.now()
	res := &SdkResult{Sdk: item.sdk}
	defer func() { res.Duration = o.now().Sub(start) }()

	cfg := o.config.Build
	analyzerConfig := gateways.AnalyzerConfig{
		Executable: o.config.Executable,
		Sdk:        item.sdk,
		OutputDir:  filepath.Join(cfg.OutputDir, item.sdk.Version),
		WorkDir:    cfg.EffectiveWorkDir(),
		Timeout:    cfg.Timeout(),
		Tools:      cfg.Tools,
		ExtraArgs:  cfg.Analyzer.ExtraArgs,
	}

	if item.err != nil {
		res.Plan = append(res.Plan, "precondition: "+item.err.Error())
	}
	for unit, err := range item.seq {
		if err != nil {
			res.Error = err
			break
		}
		res.Plan = append(res.Plan, fmt.Sprintf("unit %s (%d members)", unit.Name, len(unit.Members)))
		if o.config.Planner != nil {
			for _, line := range o.config.Planner.Plan(unit, analyzerConfig) {
				res.Plan = append(res.Plan, "  "+line)
			}
		}
	}
	res.Plan = append(res.Plan, "artifact: "+services.ArtifactPath(cfg.OutputDir, item.sdk.Version))
	res.Warnings = reportWarnings(item.report)
	return res
}

func (o *FidbOrchestrator) publish(ctx context.Context, res *SdkResult) error {
	prefix := strings.Trim(o.config.Build.Publish.Prefix, "/")
	files := []string{res.Artifact.Path, res.Artifact.ChecksumPath, res.Artifact.SignaturePath, res.ManifestPath}
	for _, f := range files {
		if f == "" {
			continue
		}
		key := path.Join(prefix, res.Sdk.Version, filepath.Base(f))
		url, err := o.config.Publisher.Publish(ctx, f, key)
		if err != nil {
			return fmt.Errorf("failed to publish %s: %w", filepath.Base(f), err)
		}
		res.Artifact.PublishedURLs = append(res.Artifact.PublishedURLs, url)
		o.logger.Info("published", interfaces.F("sdk", res.Sdk.Version), interfaces.F("url", url))
	}
	return nil
}

func (o *FidbOrchestrator) aggregateConfig(sdk entities.SdkRoot, warnings []string) svc.AggregateConfig {
	return svc.AggregateConfig{
		OutputDir: o.config.Build.OutputDir,
		Force:     o.config.Build.Force,
		Sdk:       sdk,
		Profile:   o.config.Build.Processor,
		Warnings:  warnings,
	}
}

func reportWarnings(report *svc.ScanReport) []string {
	if report == nil {
		return nil
	}
	out := make([]string, 0, len(report.Warnings))
	for _, w := range report.Warnings {
		out = append(out, w.Error())
	}
	return out
}

func runManifest(r *RunResult) *entities.RunManifest {
	m := &entities.RunManifest{
		StartedAt:  r.StartedAt.UTC(),
		FinishedAt: r.FinishedAt.UTC(),
		Sdks:       make([]entities.SdkReport, 0, len(r.Sdks)),
	}
	for _, s := range r.Sdks {
		report := entities.SdkReport{
			Version:         s.Sdk.Version,
			Succeeded:       []string{},
			Failed:          []entities.ManifestFailure{},
			ManifestPath:    s.ManifestPath,
			DurationSeconds: s.Duration.Seconds(),
		}
		for _, j := range s.Succeeded() {
			report.Succeeded = append(report.Succeeded, j.UnitName())
		}
		for _, j := range s.Failed() {
			f := entities.ManifestFailure{Name: j.UnitName(), JobID: j.ID, ExitCode: j.ExitCode, LogPath: j.LogPath}
			if j.Failure != nil {
				f.Reason = j.Failure.Error()
			}
			report.Failed = append(report.Failed, f)
		}
		if s.Artifact != nil {
			report.ArtifactPath = s.Artifact.Path
		}
		if s.Error != nil {
			report.Error = s.Error.Error()
		}
		m.Sdks = append(m.Sdks, report)
	}
	return m
}

// Summary renders the end-of-run report: per SDK the succeeded and failed
// units, then the artifact path or the reason none was produced
func (r *RunResult) Summary() string {
	var b strings.Builder
	for _, s := range r.Sdks {
		fmt.Fprintf(&b, "SDK %s\n", s.Sdk.Version)
		if r.DryRun {
			for _, line := range s.Plan {
				fmt.Fprintf(&b, "  %s\n", line)
			}
		} else {
			succeeded, failed := s.Succeeded(), s.Failed()
			fmt.Fprintf(&b, "  ✅ Succeeded: %d\n", len(succeeded))
			for _, j := range succeeded {
				fmt.Fprintf(&b, "    ✓ %s (%s)\n", j.UnitName(), j.Duration().Round(time.Second))
			}
			fmt.Fprintf(&b, "  ❌ Failed: %d\n", len(failed))
			for _, j := range failed {
				fmt.Fprintf(&b, "    ✗ %s (exit %d)", j.UnitName(), j.ExitCode)
				if j.Failure != nil {
					fmt.Fprintf(&b, " - %v", j.Failure)
				}
				b.WriteString("\n")
			}
		}
		for _, w := range s.Warnings {
			fmt.Fprintf(&b, "  ⚠️  %s\n", w)
		}
		switch {
		case s.Artifact != nil:
			fmt.Fprintf(&b, "  📦 Artifact: %s\n", s.Artifact.Path)
			if s.Artifact.SignaturePath != "" {
				fmt.Fprintf(&b, "  🔏 Signature: %s\n", s.Artifact.SignaturePath)
			}
			for _, u := range s.Artifact.PublishedURLs {
				fmt.Fprintf(&b, "  ☁️  %s\n", u)
			}
		case s.Error != nil:
			fmt.Fprintf(&b, "  💥 No artifact: %v\n", s.Error)
		}
		if s.Artifact != nil && s.Error != nil {
			fmt.Fprintf(&b, "  💥 %v\n", s.Error)
		}
	}
	return b.String()
}
