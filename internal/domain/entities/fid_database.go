package entities

import "time"

// FidDatabaseArtifact is the aggregated output for one SDK version
type FidDatabaseArtifact struct {
	SdkVersion    string
	Path          string
	ChecksumPath  string
	SignaturePath string
	PublishedURLs []string
	JobIDs        []string
	Units         []string
	CreatedAt     time.Time
}

// ManifestUnit is a succeeded unit entry in a manifest
type ManifestUnit struct {
	Name   string `json:"name"`
	JobID  string `json:"job_id"`
	Output string `json:"output"`
}

// ManifestFailure is a failed unit entry in a manifest
type ManifestFailure struct {
	Name       string `json:"name"`
	JobID      string `json:"job_id"`
	ExitCode   int    `json:"exit_code"`
	Reason     string `json:"reason,omitempty"`
	LogPath    string `json:"log_path,omitempty"`
	LogExcerpt string `json:"log_excerpt,omitempty"`
}

// Manifest records the outcome of aggregating one SDK version
type Manifest struct {
	SdkVersion     string            `json:"sdk_version"`
	SdkRoot        string            `json:"sdk_root"`
	LanguageID     string            `json:"language_id"`
	BaseAddress    string            `json:"base_address"`
	SucceededUnits []ManifestUnit    `json:"succeeded_units"`
	FailedUnits    []ManifestFailure `json:"failed_units"`
	Warnings       []string          `json:"warnings,omitempty"`
	ArtifactPath   string            `json:"artifact_path,omitempty"`
	ArtifactSHA256 string            `json:"artifact_sha256,omitempty"`
	// PreviousArtifactKept names an artifact from an earlier run that was
	// left in place because this run produced none
	PreviousArtifactKept string    `json:"previous_artifact_kept,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

// RunManifest records every SDK processed in one run
type RunManifest struct {
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Sdks       []SdkReport `json:"sdks"`
}

// SdkReport is the per-SDK summary inside a RunManifest
type SdkReport struct {
	Version         string            `json:"version"`
	Succeeded       []string          `json:"succeeded"`
	Failed          []ManifestFailure `json:"failed"`
	ArtifactPath    string            `json:"artifact_path,omitempty"`
	ManifestPath    string            `json:"manifest_path,omitempty"`
	Error           string            `json:"error,omitempty"`
	DurationSeconds float64           `json:"duration_seconds"`
}
