// Package services defines interfaces for domain service contracts.
package services

import (
	"context"
	"iter"

	"github.com/ochairo/fidforge/internal/domain/entities"
)

// ScanReport collects the non-fatal findings of one scan
type ScanReport struct {
	Warnings []*entities.UnitDiscoveryWarning
}

// CatalogScanner discovers library units below an SDK root
type CatalogScanner interface {
	Scan(ctx context.Context, root entities.SdkRoot, convention entities.Convention, profile entities.ProcessorProfile) (iter.Seq2[*entities.LibraryUnit, error], *ScanReport, error)
}

// AggregateConfig controls where and how an SDK artifact is written
type AggregateConfig struct {
	OutputDir string
	Force     bool
	Sdk       entities.SdkRoot
	Profile   entities.ProcessorProfile
	Warnings  []string
}

// Aggregator merges terminal jobs into one artifact per SDK version
type Aggregator interface {
	CheckPrecondition(config AggregateConfig) error
	Aggregate(ctx context.Context, jobs []*entities.AnalysisJob, config AggregateConfig) (*entities.FidDatabaseArtifact, *entities.Manifest, error)
}
