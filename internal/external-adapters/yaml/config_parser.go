// Package yaml provides YAML-based configuration parsing.
package yaml

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/ochairo/fidforge/internal/domain/entities"
)

//go:embed default_convention.yml
var defaultConventionYAML []byte

// yamlConfig represents the raw YAML structure of fidforge.yml
type yamlConfig struct {
	Sdks           []yamlSdk       `yaml:"sdks"`
	Analyzer       yamlAnalyzer    `yaml:"analyzer"`
	Processor      yamlProcessor   `yaml:"processor"`
	Convention     *yamlConvention `yaml:"convention"`
	ConventionFile string          `yaml:"convention_file"`
	Tools          yamlTools       `yaml:"tools"`
	OutputDir      string          `yaml:"output_dir"`
	WorkDir        string          `yaml:"work_dir"`
	Concurrency    *int            `yaml:"concurrency"`
	Force          bool            `yaml:"force"`
	Signing        yamlSigning     `yaml:"signing"`
	Publish        yamlPublish     `yaml:"publish"`
}

type yamlSdk struct {
	Version string `yaml:"version"`
	Path    string `yaml:"path"`
}

type yamlAnalyzer struct {
	Executable     string   `yaml:"executable"`
	GhidraHome     string   `yaml:"ghidra_home"`
	TimeoutMinutes *int     `yaml:"timeout_minutes"`
	KeepWork       bool     `yaml:"keep_work"`
	ExtraArgs      []string `yaml:"extra_args"`
}

type yamlProcessor struct {
	Architecture string `yaml:"architecture"`
	Endianness   string `yaml:"endianness"`
	Bits         *int   `yaml:"bits"`
	Variant      string `yaml:"variant"`
	BaseAddress  string `yaml:"base_address"`
}

type yamlConvention struct {
	LibraryRoot string   `yaml:"library_root"`
	Patterns    []string `yaml:"patterns"`
	Extensions  []string `yaml:"extensions"`
	IgnoreDirs  []string `yaml:"ignore_dirs"`
	IgnoreFiles []string `yaml:"ignore_files"`
}

type yamlTools struct {
	Ar       string `yaml:"ar"`
	Libsplit string `yaml:"libsplit"`
	Elfcnv   string `yaml:"elfcnv"`
}

type yamlSigning struct {
	KeyFile       string `yaml:"key_file"`
	PassphraseEnv string `yaml:"passphrase_env"`
}

type yamlPublish struct {
	Endpoint     string `yaml:"endpoint"`
	Bucket       string `yaml:"bucket"`
	Region       string `yaml:"region"`
	Prefix       string `yaml:"prefix"`
	AccessKeyEnv string `yaml:"access_key_env"`
	SecretKeyEnv string `yaml:"secret_key_env"`
	UseSSL       *bool  `yaml:"use_ssl"`
}

// ConfigParser parses fidforge YAML configuration files
type ConfigParser struct{}

// NewConfigParser creates a new YAML parser
func NewConfigParser() *ConfigParser {
	return &ConfigParser{}
}

// ParseFile parses a config file. Relative paths inside it (SDK roots,
// output and work dirs, convention and key files) are resolved against
// the file's directory.
func (p *ConfigParser) ParseFile(filePath string) (*entities.BuildConfig, error) {
	//nolint:gosec // G304: filePath is the config file named by the operator
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, &entities.ConfigurationError{Field: "config", Reason: "failed to read " + filePath, Err: err}
	}

	return p.parse(data, filepath.Dir(filePath))
}

// Parse parses YAML bytes into a BuildConfig with every default filled in.
// Relative paths are kept as written.
func (p *ConfigParser) Parse(data []byte) (*entities.BuildConfig, error) {
	return p.parse(data, "")
}

func (p *ConfigParser) parse(data []byte, baseDir string) (*entities.BuildConfig, error) {
	var raw yamlConfig
	if err := decodeStrict(data, &raw); err != nil {
		return nil, &entities.ConfigurationError{Field: "config", Reason: "failed to parse YAML", Err: err}
	}

	cfg := entities.DefaultBuildConfig()
	convention, err := DefaultConvention()
	if err != nil {
		return nil, err
	}
	cfg.Convention = convention

	for _, s := range raw.Sdks {
		cfg.Sdks = append(cfg.Sdks, entities.SdkRoot{Version: s.Version, Path: resolve(baseDir, s.Path)})
	}

	cfg.Analyzer.Executable = resolve(baseDir, raw.Analyzer.Executable)
	cfg.Analyzer.GhidraHome = resolve(baseDir, raw.Analyzer.GhidraHome)
	if raw.Analyzer.TimeoutMinutes != nil {
		if *raw.Analyzer.TimeoutMinutes <= 0 {
			return nil, &entities.ConfigurationError{Field: "analyzer.timeout_minutes", Reason: "timeout must be positive"}
		}
		cfg.Analyzer.TimeoutMinutes = *raw.Analyzer.TimeoutMinutes
	}
	cfg.Analyzer.KeepWork = raw.Analyzer.KeepWork
	cfg.Analyzer.ExtraArgs = raw.Analyzer.ExtraArgs

	if err := applyProcessor(&cfg.Processor, raw.Processor); err != nil {
		return nil, err
	}

	if raw.ConventionFile != "" {
		c, err := ParseConventionFile(resolve(baseDir, raw.ConventionFile))
		if err != nil {
			return nil, err
		}
		cfg.Convention = c
	}
	if raw.Convention != nil {
		applyConvention(&cfg.Convention, *raw.Convention)
	}

	applyTool(&cfg.Tools.Ar, raw.Tools.Ar)
	applyTool(&cfg.Tools.Libsplit, raw.Tools.Libsplit)
	applyTool(&cfg.Tools.Elfcnv, raw.Tools.Elfcnv)

	if raw.OutputDir != "" {
		cfg.OutputDir = resolve(baseDir, raw.OutputDir)
	}
	cfg.WorkDir = resolve(baseDir, raw.WorkDir)
	if raw.Concurrency != nil {
		cfg.Concurrency = *raw.Concurrency
	}
	cfg.Force = raw.Force

	cfg.Signing = entities.SigningSettings{
		KeyFile:       resolve(baseDir, raw.Signing.KeyFile),
		PassphraseEnv: raw.Signing.PassphraseEnv,
	}
	cfg.Publish = entities.PublishSettings{
		Endpoint:     raw.Publish.Endpoint,
		Bucket:       raw.Publish.Bucket,
		Region:       raw.Publish.Region,
		Prefix:       strings.Trim(raw.Publish.Prefix, "/"),
		AccessKeyEnv: withDefault(raw.Publish.AccessKeyEnv, "FIDFORGE_S3_ACCESS_KEY"),
		SecretKeyEnv: withDefault(raw.Publish.SecretKeyEnv, "FIDFORGE_S3_SECRET_KEY"),
		UseSSL:       raw.Publish.UseSSL == nil || *raw.Publish.UseSSL,
	}

	return cfg, nil
}

// DefaultConvention returns the embedded SDK folder convention
func DefaultConvention() (entities.Convention, error) {
	return parseConvention(defaultConventionYAML, entities.DefaultConvention())
}

// ParseConventionFile reads a standalone convention file. Keys it omits
// keep their built-in defaults.
func ParseConventionFile(filePath string) (entities.Convention, error) {
	//nolint:gosec // G304: filePath is the convention file named in the config
	data, err := os.ReadFile(filePath)
	if err != nil {
		return entities.Convention{}, &entities.ConfigurationError{Field: "convention_file", Reason: "failed to read " + filePath, Err: err}
	}
	base, err := DefaultConvention()
	if err != nil {
		return entities.Convention{}, err
	}
	return parseConvention(data, base)
}

func parseConvention(data []byte, base entities.Convention) (entities.Convention, error) {
	var raw yamlConvention
	if err := decodeStrict(data, &raw); err != nil {
		return entities.Convention{}, &entities.ConfigurationError{Field: "convention", Reason: "failed to parse YAML", Err: err}
	}
	applyConvention(&base, raw)
	return base, nil
}

func applyConvention(c *entities.Convention, raw yamlConvention) {
	if raw.LibraryRoot != "" {
		c.LibraryRoot = raw.LibraryRoot
	}
	if raw.Patterns != nil {
		c.Patterns = raw.Patterns
	}
	if raw.Extensions != nil {
		exts := make([]string, 0, len(raw.Extensions))
		for _, e := range raw.Extensions {
			e = strings.ToLower(strings.TrimSpace(e))
			if e == "" {
				continue
			}
			if !strings.HasPrefix(e, ".") {
				e = "." + e
			}
			exts = append(exts, e)
		}
		c.Extensions = exts
	}
	if raw.IgnoreDirs != nil {
		c.IgnoreDirs = raw.IgnoreDirs
	}
	if raw.IgnoreFiles != nil {
		c.IgnoreFiles = raw.IgnoreFiles
	}
}

func applyProcessor(p *entities.ProcessorProfile, raw yamlProcessor) error {
	if raw.Architecture != "" {
		p.Architecture = raw.Architecture
	}
	if raw.Endianness != "" {
		p.Endianness = strings.ToUpper(raw.Endianness)
	}
	if raw.Bits != nil {
		p.Bits = *raw.Bits
	}
	if raw.Variant != "" {
		p.Variant = raw.Variant
	}
	if raw.BaseAddress != "" {
		addr, err := strconv.ParseUint(strings.ReplaceAll(raw.BaseAddress, "_", ""), 0, 64)
		if err != nil {
			return &entities.ConfigurationError{Field: "processor.base_address", Reason: fmt.Sprintf("invalid address %q", raw.BaseAddress), Err: err}
		}
		p.BaseAddress = addr
	}
	return nil
}

// applyTool overrides a tool location. A bare name found on PATH is used
// from there. Other relative paths stay relative to each SDK root;
// absolute paths are used as is.
func applyTool(t *entities.ToolPath, value string) {
	if value == "" {
		return
	}
	if !strings.ContainsAny(value, `/\`) {
		if found, err := exec.LookPath(value); err == nil {
			*t = entities.ToolPath{Path: found}
			return
		}
	}
	*t = entities.ToolPath{Path: value, RelativeToSDK: !filepath.IsAbs(value)}
}

func decodeStrict(data []byte, out any) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(out); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

func resolve(baseDir, p string) string {
	if p == "" || baseDir == "" || filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(baseDir, p)
}

func withDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
