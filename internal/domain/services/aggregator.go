package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	svc "github.com/ochairo/fidforge/internal/domain/interfaces/services"
)

// Artifact naming below the output directory
const (
	ArtifactExt      = ".fidb.tar.gz"
	ManifestExt      = ".manifest.json"
	BundleManifest   = "manifest.json"
	UnitDatabaseExt  = ".fidb"
	logExcerptLength = 2000
)

// ArtifactPath returns where the aggregate for version is written
func ArtifactPath(outputDir, version string) string {
	return filepath.Join(outputDir, version+ArtifactExt)
}

// ManifestPath returns where the manifest for version is written
func ManifestPath(outputDir, version string) string {
	return filepath.Join(outputDir, version+ManifestExt)
}

// DatabaseAggregator bundles the per-unit databases of one SDK version into
// a single artifact and records the outcome in a manifest
type DatabaseAggregator struct {
	packager  gateways.BundlePackager
	checksums gateways.Checksummer
	logger    interfaces.Logger
	now       func() time.Time
}

// NewDatabaseAggregator creates an aggregator
func NewDatabaseAggregator(packager gateways.BundlePackager, checksums gateways.Checksummer, logger interfaces.Logger) *DatabaseAggregator {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &DatabaseAggregator{
		packager:  packager,
		checksums: checksums,
		logger:    logger,
		now:       time.Now,
	}
}

// CheckPrecondition fails with ArtifactExistsError when the artifact for
// config.Sdk is already present and overwriting was not requested
func (a *DatabaseAggregator) CheckPrecondition(config svc.AggregateConfig) error {
	if config.Force {
		return nil
	}
	path := ArtifactPath(config.OutputDir, config.Sdk.Version)
	if _, err := os.Stat(path); err == nil {
		return &entities.ArtifactExistsError{Path: path}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to check artifact %s: %w", path, err)
	}
	return nil
}

// Aggregate merges terminal jobs into <out>/<version>.fidb.tar.gz. Every
// job must be Succeeded or Failed. The manifest is written even when no
// unit succeeded; in that case no artifact is produced, an existing one is
// left untouched and NoSuccessfulUnitsError is returned.
func (a *DatabaseAggregator) Aggregate(
	ctx context.Context,
	jobs []*entities.AnalysisJob,
	config svc.AggregateConfig,
) (*entities.FidDatabaseArtifact, *entities.Manifest, error) {
	succeeded, failed, err := partitionJobs(jobs, config.Sdk.Version)
	if err != nil {
		return nil, nil, err
	}
	if err := a.CheckPrecondition(config); err != nil {
		return nil, nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}

	createdAt := a.now().UTC().Truncate(time.Second)
	manifest := &entities.Manifest{
		SdkVersion:     config.Sdk.Version,
		SdkRoot:        config.Sdk.Path,
		LanguageID:     config.Profile.LanguageID(),
		BaseAddress:    config.Profile.BaseAddressHex(),
		SucceededUnits: make([]entities.ManifestUnit, 0, len(succeeded)),
		FailedUnits:    make([]entities.ManifestFailure, 0, len(failed)),
		Warnings:       config.Warnings,
		CreatedAt:      createdAt,
	}
	for _, job := range succeeded {
		manifest.SucceededUnits = append(manifest.SucceededUnits, entities.ManifestUnit{
			Name:   job.UnitName(),
			JobID:  job.ID,
			Output: job.UnitName() + UnitDatabaseExt,
		})
	}
	failedNames := make([]string, 0, len(failed))
	for _, job := range failed {
		manifest.FailedUnits = append(manifest.FailedUnits, failureEntry(job))
		failedNames = append(failedNames, job.UnitName())
	}

	manifestPath := ManifestPath(config.OutputDir, config.Sdk.Version)

	if len(succeeded) == 0 {
		if previous := ArtifactPath(config.OutputDir, config.Sdk.Version); fileExists(previous) {
			manifest.PreviousArtifactKept = previous
		}
		if err := WriteJSONFile(manifestPath, manifest); err != nil {
			return nil, nil, err
		}
		a.logger.Error("no successful units, artifact not written",
			interfaces.F("sdk", config.Sdk.Version),
			interfaces.F("failed", len(failed)))
		return nil, manifest, &entities.NoSuccessfulUnitsError{SdkVersion: config.Sdk.Version, FailedUnits: failedNames}
	}

	inner, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}

	entries := make([]gateways.BundleEntry, 0, len(succeeded)+1)
	for _, job := range succeeded {
		entries = append(entries, gateways.BundleEntry{Name: job.UnitName() + UnitDatabaseExt, Path: job.OutputPath})
	}
	entries = append(entries, gateways.BundleEntry{Name: BundleManifest, Data: append(inner, '\n')})

	artifactPath := ArtifactPath(config.OutputDir, config.Sdk.Version)
	if err := a.packager.WriteBundle(ctx, artifactPath, entries, createdAt); err != nil {
		return nil, nil, fmt.Errorf("failed to write artifact for SDK %s: %w", config.Sdk.Version, err)
	}

	sum, checksumPath, err := a.checksums.WriteChecksumFile(artifactPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to checksum artifact: %w", err)
	}

	manifest.ArtifactPath = artifactPath
	manifest.ArtifactSHA256 = sum
	if err := WriteJSONFile(manifestPath, manifest); err != nil {
		return nil, nil, err
	}

	artifact := &entities.FidDatabaseArtifact{
		SdkVersion:   config.Sdk.Version,
		Path:         artifactPath,
		ChecksumPath: checksumPath,
		CreatedAt:    createdAt,
	}
	for _, job := range succeeded {
		artifact.JobIDs = append(artifact.JobIDs, job.ID)
		artifact.Units = append(artifact.Units, job.UnitName())
	}

	a.logger.Info("artifact written",
		interfaces.F("sdk", config.Sdk.Version),
		interfaces.F("path", artifactPath),
		interfaces.F("units", len(succeeded)),
		interfaces.F("failed", len(failed)))

	return artifact, manifest, nil
}

// partitionJobs splits jobs by outcome, each half sorted by unit name
func partitionJobs(jobs []*entities.AnalysisJob, version string) (succeeded, failed []*entities.AnalysisJob, err error) {
	seen := make(map[string]bool)
	for _, job := range jobs {
		if job == nil || job.Unit == nil {
			return nil, nil, errors.New("job without unit passed to aggregation")
		}
		if !job.Status.IsTerminal() {
			return nil, nil, fmt.Errorf("job %s for unit %s is %s, not terminal", job.ID, job.UnitName(), job.Status)
		}
		if version != "" && job.Unit.SdkVersion != version {
			return nil, nil, fmt.Errorf("job %s belongs to SDK %s, not %s", job.ID, job.Unit.SdkVersion, version)
		}
		if seen[job.UnitName()] {
			return nil, nil, fmt.Errorf("unit %s appears in more than one job", job.UnitName())
		}
		seen[job.UnitName()] = true

		if job.Status == entities.JobSucceeded {
			if job.OutputPath == "" {
				return nil, nil, fmt.Errorf("succeeded job %s has no output", job.ID)
			}
			succeeded = append(succeeded, job)
		} else {
			failed = append(failed, job)
		}
	}

	byName := func(list []*entities.AnalysisJob) {
		sort.Slice(list, func(i, j int) bool { return list[i].UnitName() < list[j].UnitName() })
	}
	byName(succeeded)
	byName(failed)
	return succeeded, failed, nil
}

func failureEntry(job *entities.AnalysisJob) entities.ManifestFailure {
	entry := entities.ManifestFailure{
		Name:     job.UnitName(),
		JobID:    job.ID,
		ExitCode: job.ExitCode,
		LogPath:  job.LogPath,
	}
	if job.Failure != nil {
		entry.Reason = job.Failure.Error()
	}
	excerpt := job.LogExcerpt
	if len(excerpt) > logExcerptLength {
		excerpt = excerpt[len(excerpt)-logExcerptLength:]
	}
	entry.LogExcerpt = excerpt
	return entry
}

// WriteJSONFile writes v as indented JSON through a temporary file in the
// same directory and renames it over path
func WriteJSONFile(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(filepath.Dir(path), 0750); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", filepath.Base(path), err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	//nolint:gosec // G302: manifests are published next to the artifact
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return err
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("failed to move %s into place: %w", filepath.Base(path), err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
