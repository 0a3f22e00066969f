package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	"github.com/ochairo/fidforge/internal/external-adapters/yaml"
)

// sdkFlags collects repeatable --sdk version=path values
type sdkFlags []entities.SdkRoot

func (s *sdkFlags) String() string {
	parts := make([]string, len(*s))
	for i, sdk := range *s {
		parts[i] = sdk.Version + "=" + sdk.Path
	}
	return strings.Join(parts, ",")
}

func (s *sdkFlags) Set(value string) error {
	version, root, ok := strings.Cut(value, "=")
	if !ok || strings.TrimSpace(version) == "" || strings.TrimSpace(root) == "" {
		return fmt.Errorf("expected version=path, got %q", value)
	}
	*s = append(*s, entities.SdkRoot{Version: strings.TrimSpace(version), Path: strings.TrimSpace(root)})
	return nil
}

// commonFlags are shared by build and scan
type commonFlags struct {
	config    *string
	sdks      sdkFlags
	ghidra    *string
	outputDir *string
	workDir   *string
	logLevel  *string
}

func registerCommonFlags(fs *flag.FlagSet) *commonFlags {
	c := &commonFlags{
		config:    fs.String("config", "", "Path to fidforge YAML config"),
		ghidra:    fs.String("ghidra", "", "Ghidra installation directory (overrides GHIDRA_HOME)"),
		outputDir: fs.String("output-dir", "", "Output directory for FID databases (default: fidb)"),
		workDir:   fs.String("work-dir", "", "Scratch directory for analyzer projects (default: <output-dir>/.work)"),
		logLevel:  fs.String("log-level", "info", "Log level: debug, info, warn, error"),
	}
	fs.Var(&c.sdks, "sdk", "SDK root as version=path (repeatable, replaces config sdks)")
	return c
}

// loadConfig reads the config file when given and applies flag overrides
func (c *commonFlags) loadConfig() (*entities.BuildConfig, error) {
	cfg := entities.DefaultBuildConfig()
	if *c.config != "" {
		parsed, err := yaml.NewConfigParser().ParseFile(*c.config)
		if err != nil {
			return nil, err
		}
		cfg = parsed
	}

	if len(c.sdks) > 0 {
		cfg.Sdks = append([]entities.SdkRoot(nil), c.sdks...)
	}
	if *c.ghidra != "" {
		cfg.Analyzer.GhidraHome = *c.ghidra
		cfg.Analyzer.Executable = ""
	}
	if *c.outputDir != "" {
		cfg.OutputDir = *c.outputDir
	}
	if *c.workDir != "" {
		cfg.WorkDir = *c.workDir
	}
	return cfg, nil
}

func (c *commonFlags) logger(quiet bool) (interfaces.Logger, error) {
	level, err := interfaces.ParseLevel(*c.logLevel)
	if err != nil {
		return nil, &entities.ConfigurationError{Field: "log-level", Reason: err.Error()}
	}
	if quiet && level < interfaces.LevelWarn {
		level = interfaces.LevelWarn
	}
	return interfaces.NewStdoutLogger(os.Stderr, level), nil
}

// parseArgs parses fs from args, accepting flags after positional
// arguments too, and returns the positional arguments in order
func parseArgs(fs *flag.FlagSet, args []string) ([]string, error) {
	var positional []string
	for {
		if err := fs.Parse(args); err != nil {
			return nil, err
		}
		if fs.NArg() == 0 {
			return positional, nil
		}
		positional = append(positional, fs.Arg(0))
		args = fs.Args()[1:]
	}
}

// exitCodeFor maps an error that prevented dispatch to a process exit code
func exitCodeFor(err error) int {
	if entities.IsConfigurationError(err) {
		return exitConfigError
	}
	return exitFailure
}
