package entities

import (
	"errors"
	"fmt"
	"strings"
)

// ConfigurationError reports bad paths, a missing folder convention, or
// invalid settings. It is fatal and raised before any work starts.
type ConfigurationError struct {
	Field  string
	Reason string
	Err    error
}

func (e *ConfigurationError) Error() string {
	msg := "configuration error"
	if e.Field != "" {
		msg += " (" + e.Field + ")"
	}
	msg += ": " + e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// UnitDiscoveryWarning describes a folder or file the scanner skipped
type UnitDiscoveryWarning struct {
	Path   string
	Reason string
}

func (w *UnitDiscoveryWarning) Error() string {
	return fmt.Sprintf("skipped %s: %s", w.Path, w.Reason)
}

// AnalyzerInvocationFailure records why a single analyzer job failed
type AnalyzerInvocationFailure struct {
	Unit     string
	Stage    string // "stage", "analyze", "generate", "collect"
	ExitCode int
	TimedOut bool
	Err      error
}

func (e *AnalyzerInvocationFailure) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "analyzer failed for unit %s during %s", e.Unit, e.Stage)
	if e.TimedOut {
		b.WriteString(" (timeout)")
	} else if e.ExitCode != 0 {
		fmt.Fprintf(&b, " (exit %d)", e.ExitCode)
	}
	if e.Err != nil {
		b.WriteString(": " + e.Err.Error())
	}
	return b.String()
}

func (e *AnalyzerInvocationFailure) Unwrap() error { return e.Err }

// ArtifactExistsError is returned when an artifact is already present and
// overwriting was not requested
type ArtifactExistsError struct {
	Path string
}

func (e *ArtifactExistsError) Error() string {
	return fmt.Sprintf("artifact already exists: %s (use --force to overwrite)", e.Path)
}

// NoSuccessfulUnitsError is returned by aggregation when every unit failed
type NoSuccessfulUnitsError struct {
	SdkVersion  string
	FailedUnits []string
}

func (e *NoSuccessfulUnitsError) Error() string {
	if len(e.FailedUnits) == 0 {
		return fmt.Sprintf("no units were analyzed for SDK %s", e.SdkVersion)
	}
	return fmt.Sprintf("no successful units for SDK %s (failed: %s)", e.SdkVersion, strings.Join(e.FailedUnits, ", "))
}

// IsConfigurationError reports whether err is or wraps a ConfigurationError
func IsConfigurationError(err error) bool {
	var ce *ConfigurationError
	return errors.As(err, &ce)
}
