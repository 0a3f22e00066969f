// Package gateways defines interfaces for external tool and storage adapters.
package gateways

import (
	"context"
	"time"

	"github.com/ochairo/fidforge/internal/domain/entities"
)

// AnalyzerConfig is everything one analyzer invocation needs
type AnalyzerConfig struct {
	Executable string
	Sdk        entities.SdkRoot
	OutputDir  string // per-SDK output directory, e.g. <out>/<version>
	WorkDir    string // scratch root for job directories
	Timeout    time.Duration
	KeepWork   bool
	Tools      entities.ToolSettings
	ExtraArgs  []string
}

// Analyzer runs the external analyzer against a single library unit. It
// always returns a job in a terminal state; failures are recorded on the
// job, never returned.
type Analyzer interface {
	Analyze(ctx context.Context, unit *entities.LibraryUnit, config AnalyzerConfig) *entities.AnalysisJob
}

// AnalysisPlanner describes what Analyze would do for a unit without
// touching disk or starting processes
type AnalysisPlanner interface {
	Plan(unit *entities.LibraryUnit, config AnalyzerConfig) []string
}
