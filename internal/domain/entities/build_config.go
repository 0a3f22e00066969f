package entities

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

// BuildConfig holds everything one fidforge run needs. It is passed
// explicitly to every component; nothing reads process-wide state.
type BuildConfig struct {
	Sdks        []SdkRoot
	Analyzer    AnalyzerSettings
	Processor   ProcessorProfile
	Convention  Convention
	Tools       ToolSettings
	OutputDir   string
	WorkDir     string
	Concurrency int
	Force       bool
	DryRun      bool
	Signing     SigningSettings
	Publish     PublishSettings
}

// AnalyzerSettings configures the headless analyzer
type AnalyzerSettings struct {
	Executable     string // full path to analyzeHeadless; wins over GhidraHome
	GhidraHome     string
	TimeoutMinutes int
	KeepWork       bool
	ExtraArgs      []string // appended to the analysis pass
}

// ToolPath locates an SDK helper tool
type ToolPath struct {
	Path          string
	RelativeToSDK bool
}

// Resolve returns the tool's absolute path for the given SDK root
func (t ToolPath) Resolve(sdkRoot string) string {
	if t.Path == "" {
		return ""
	}
	p := filepath.FromSlash(t.Path)
	if t.RelativeToSDK && !filepath.IsAbs(p) {
		return filepath.Join(sdkRoot, p)
	}
	return p
}

// ToolSettings lists the archive tools used while staging members
type ToolSettings struct {
	Ar       ToolPath
	Libsplit ToolPath
	Elfcnv   ToolPath
}

// SigningSettings configures detached OpenPGP signatures for artifacts
type SigningSettings struct {
	KeyFile       string
	PassphraseEnv string
}

// Enabled reports whether artifacts should be signed
func (s SigningSettings) Enabled() bool { return s.KeyFile != "" }

// PublishSettings configures upload to an S3-compatible bucket
type PublishSettings struct {
	Endpoint     string
	Bucket       string
	Region       string
	Prefix       string
	AccessKeyEnv string
	SecretKeyEnv string
	UseSSL       bool
}

// Enabled reports whether artifacts should be published
func (p PublishSettings) Enabled() bool { return p.Endpoint != "" && p.Bucket != "" }

// Defaults for BuildConfig
const (
	DefaultTimeoutMinutes = 120
	DefaultConcurrency    = 1
	DefaultOutputDir      = "fidb"
)

// DefaultToolSettings mirrors where the Katana SDK ships its tools
func DefaultToolSettings() ToolSettings {
	return ToolSettings{
		Ar:       ToolPath{Path: "Utl/Dev/Gnu/Bin/ar.exe", RelativeToSDK: true},
		Libsplit: ToolPath{Path: "Utl/Dev/Hitachi/libsplit.exe", RelativeToSDK: true},
		Elfcnv:   ToolPath{Path: "Utl/Dev/Hitachi/elfcnv.exe", RelativeToSDK: true},
	}
}

// DefaultBuildConfig returns a config with every default filled in
func DefaultBuildConfig() *BuildConfig {
	return &BuildConfig{
		Analyzer: AnalyzerSettings{
			TimeoutMinutes: DefaultTimeoutMinutes,
		},
		Processor:   DefaultProcessorProfile(),
		Convention:  DefaultConvention(),
		Tools:       DefaultToolSettings(),
		OutputDir:   DefaultOutputDir,
		Concurrency: DefaultConcurrency,
	}
}

// Timeout returns the per-job analyzer timeout
func (c *BuildConfig) Timeout() time.Duration {
	if c.Analyzer.TimeoutMinutes <= 0 {
		return DefaultTimeoutMinutes * time.Minute
	}
	return time.Duration(c.Analyzer.TimeoutMinutes) * time.Minute
}

// EffectiveWorkDir returns the scratch directory for analyzer projects
func (c *BuildConfig) EffectiveWorkDir() string {
	if c.WorkDir != "" {
		return c.WorkDir
	}
	return filepath.Join(c.OutputDir, ".work")
}

// AnalyzerExecutable resolves the analyzeHeadless launcher, falling back to
// $GHIDRA_HOME/support/analyzeHeadless(.bat)
func (c *BuildConfig) AnalyzerExecutable(getenv func(string) string) string {
	if c.Analyzer.Executable != "" {
		return c.Analyzer.Executable
	}
	home := c.Analyzer.GhidraHome
	if home == "" && getenv != nil {
		home = getenv("GHIDRA_HOME")
	}
	if home == "" {
		return ""
	}
	name := "analyzeHeadless"
	if runtime.GOOS == "windows" {
		name += ".bat"
	}
	return filepath.Join(home, "support", name)
}

// Validate checks the config before any work is dispatched
func (c *BuildConfig) Validate() error {
	if len(c.Sdks) == 0 {
		return &ConfigurationError{Field: "sdks", Reason: "no SDK roots configured"}
	}
	seen := make(map[string]bool)
	for _, sdk := range c.Sdks {
		if err := sdk.Validate(); err != nil {
			return err
		}
		key := strings.ToLower(sdk.Version)
		if seen[key] {
			return &ConfigurationError{Field: "sdks", Reason: fmt.Sprintf("SDK version %s listed twice", sdk.Version)}
		}
		seen[key] = true
	}
	if err := c.Processor.Validate(); err != nil {
		return err
	}
	if err := c.Convention.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.OutputDir) == "" {
		return &ConfigurationError{Field: "output_dir", Reason: "output directory is empty"}
	}
	if c.Concurrency < 1 {
		return &ConfigurationError{Field: "concurrency", Reason: fmt.Sprintf("concurrency must be at least 1, got %d", c.Concurrency)}
	}
	if c.Signing.Enabled() {
		if _, err := os.Stat(c.Signing.KeyFile); err != nil {
			return &ConfigurationError{Field: "signing.key_file", Reason: "signing key not readable", Err: err}
		}
	}
	return nil
}

// ValidateAnalyzer checks that the analyzer launcher exists. Dry runs skip it.
func (c *BuildConfig) ValidateAnalyzer(getenv func(string) string) error {
	exe := c.AnalyzerExecutable(getenv)
	if exe == "" {
		return &ConfigurationError{Field: "analyzer.executable", Reason: "set analyzer.executable, analyzer.ghidra_home or GHIDRA_HOME"}
	}
	info, err := os.Stat(exe)
	if err != nil {
		return &ConfigurationError{Field: "analyzer.executable", Reason: "analyzer not found at " + exe, Err: err}
	}
	if info.IsDir() {
		return &ConfigurationError{Field: "analyzer.executable", Reason: exe + " is a directory"}
	}
	return nil
}
