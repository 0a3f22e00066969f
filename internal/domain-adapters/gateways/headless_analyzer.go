package gateways

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
)

// Ghidra scripts driven by the two headless passes
const (
	PrescriptFunctionID   = "FunctionIDHeadlessPrescript.java"
	PostscriptFunctionID  = "FunctionIDHeadlessPostscript.java"
	ScriptCreateEmptyFidb = "CreateEmptyFidDatabase.java"
	ScriptCreateLibraries = "CreateMultipleLibraries.java"
	PropertiesFile        = "CreateMultipleLibraries.properties"
	UnitDatabaseExt       = ".fidb"
)

// HeadlessAnalyzer drives Ghidra's analyzeHeadless once per library unit:
// an analysis pass that imports the staged members and a generation pass
// that populates a fresh FID database from them.
type HeadlessAnalyzer struct {
	executor *ProcessExecutor
	stager   *UnitStager
	logger   interfaces.Logger
	newID    func() string
	now      func() time.Time
}

// NewHeadlessAnalyzer creates a new headless analyzer driver
func NewHeadlessAnalyzer(executor *ProcessExecutor, stager *UnitStager, logger interfaces.Logger) *HeadlessAnalyzer {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &HeadlessAnalyzer{
		executor: executor,
		stager:   stager,
		logger:   logger,
		newID:    uuid.NewString,
		now:      time.Now,
	}
}

var (
	_ gateways.Analyzer        = (*HeadlessAnalyzer)(nil)
	_ gateways.AnalysisPlanner = (*HeadlessAnalyzer)(nil)
)

// JobLayout holds the paths used by one job
type JobLayout struct {
	JobDir     string
	ProjectDir string
	ImportDir  string
	ScratchDB  string
	ScratchLog string
	OutputDB   string
	OutputLog  string
}

// Layout computes the paths for a job without creating anything
func Layout(unit *entities.LibraryUnit, jobID string, config gateways.AnalyzerConfig) JobLayout {
	short := jobID
	if len(short) > 8 {
		short = short[:8]
	}
	jobDir := filepath.Join(config.WorkDir, unit.SdkVersion, unit.Name+"-"+short)
	return JobLayout{
		JobDir:     jobDir,
		ProjectDir: filepath.Join(jobDir, "ghidraproj"),
		ImportDir:  filepath.Join(jobDir, "import"),
		ScratchDB:  filepath.Join(jobDir, unit.Name+UnitDatabaseExt),
		ScratchLog: filepath.Join(jobDir, "fidforge.log"),
		OutputDB:   filepath.Join(config.OutputDir, "units", unit.Name+UnitDatabaseExt),
		OutputLog:  filepath.Join(config.OutputDir, "logs", unit.Name+".log"),
	}
}

// AnalysisArgs builds the argument list of the import/analysis pass
func AnalysisArgs(layout JobLayout, projectName string, compilers []string, profile entities.ProcessorProfile, extra []string) []string {
	args := []string{layout.ProjectDir, projectName}
	for _, c := range compilers {
		args = append(args, "-import", filepath.Join(layout.ImportDir, c))
	}
	args = append(args,
		"-recursive",
		"-processor", profile.LanguageID(),
		"-loader", "ElfLoader",
		"-loader-imagebase", profile.BaseAddressHex(),
		"-preScript", PrescriptFunctionID,
		"-postScript", PostscriptFunctionID,
		"-scriptlog", filepath.Join(layout.JobDir, "script.log"),
		"-log", filepath.Join(layout.JobDir, "analyze.log"),
	)
	return append(args, extra...)
}

// GenerationArgs builds the argument list of the database generation pass
func GenerationArgs(layout JobLayout, projectName string) []string {
	return []string{
		layout.ProjectDir, projectName,
		"-noanalysis",
		"-propertiesPath", layout.JobDir,
		"-preScript", ScriptCreateEmptyFidb, filepath.Base(layout.ScratchDB),
		"-preScript", PrescriptFunctionID,
		"-preScript", ScriptCreateLibraries,
		"-log", filepath.Join(layout.JobDir, "generation.log"),
	}
}

// PropertiesContent renders the answers CreateMultipleLibraries.java asks for
func PropertiesContent(databaseName, compiler string, profile entities.ProcessorProfile) string {
	return fmt.Sprintf(`Duplicate Results File OK = duplicates.txt
Do Duplication Detection Do you want to detect duplicates = true
Choose destination FidDB Please choose the destination FidDB for population = %s
Select root folder containing all libraries (at a depth of 3): = /%s
Common symbols file (optional): OK = common_symbols.txt
Enter LanguageID To Process Language ID: = %s
`, databaseName, compiler, profile.LanguageID())
}

// Analyze stages, analyzes and generates the database for one unit. The
// result is always terminal; the unit database only replaces the previous
// one after every pass succeeded.
func (a *HeadlessAnalyzer) Analyze(ctx context.Context, unit *entities.LibraryUnit, config gateways.AnalyzerConfig) *entities.AnalysisJob {
	job := entities.NewAnalysisJob(a.newID(), unit)
	_ = job.Start(a.now())

	layout := Layout(unit, job.ID, config)
	fail := func(stage string, exitCode int, timedOut bool, err error, excerpt string) *entities.AnalysisJob {
		job.LogExcerpt = excerpt
		_ = job.Fail(a.now(), exitCode, &entities.AnalyzerInvocationFailure{
			Unit:     unit.Name,
			Stage:    stage,
			ExitCode: exitCode,
			TimedOut: timedOut,
			Err:      err,
		})
		a.logger.Error("unit failed", interfaces.F("unit", unit.Name), interfaces.F("stage", stage), interfaces.F("exit", exitCode))
		return job
	}

	if err := os.MkdirAll(layout.ImportDir, 0750); err != nil {
		return fail("stage", -1, false, err, "")
	}
	if !config.KeepWork {
		defer func() {
			if err := os.RemoveAll(layout.JobDir); err != nil {
				a.logger.Warn("failed to remove job directory", interfaces.F("dir", layout.JobDir), interfaces.F("error", err))
			}
		}()
	}

	//nolint:gosec // G304: log path is inside the job directory
	logFile, err := os.Create(layout.ScratchLog)
	if err != nil {
		return fail("stage", -1, false, err, "")
	}
	defer func() {
		_ = logFile.Close()
		if err := moveIntoPlace(layout.ScratchLog, layout.OutputLog); err != nil {
			a.logger.Warn("failed to publish job log", interfaces.F("unit", unit.Name), interfaces.F("error", err))
			return
		}
		job.LogPath = layout.OutputLog
	}()

	a.logger.Info("staging unit", interfaces.F("unit", unit.Name), interfaces.F("members", len(unit.Members)))
	stageTools := ResolveStageTools(config.Tools, config.Sdk.Path)
	staged, err := a.stager.Stage(ctx, unit, stageTools, layout.ImportDir)
	for _, w := range stagedWarnings(staged) {
		fmt.Fprintf(logFile, "[WARN] %s\n", w)
	}
	if err != nil {
		return fail("stage", -1, false, err, "")
	}
	if staged.Files == 0 {
		return fail("stage", -1, false, errors.New("no member could be staged"), strings.Join(staged.Warnings, "\n"))
	}

	compiler := staged.PrimaryCompiler()
	if len(staged.Compilers) > 1 {
		a.logger.Warn("unit mixes compilers, populating from the largest",
			interfaces.F("unit", unit.Name), interfaces.F("compilers", strings.Join(staged.Compilers, ",")), interfaces.F("using", compiler))
	}

	deadline := time.Now().Add(config.Timeout)
	pass := func(name string, args []string) *ExecuteResult {
		fmt.Fprintf(logFile, "== %s: %s\n", name, CommandLine(config.Executable, args))
		remaining := time.Until(deadline)
		if config.Timeout <= 0 {
			remaining = 0
		} else if remaining <= 0 {
			remaining = time.Millisecond
		}
		return a.executor.Execute(ctx, CommandConfig{
			Name:        config.Executable,
			Args:        args,
			WorkingDir:  layout.JobDir,
			Timeout:     remaining,
			Description: name,
			Output:      logFile,
		})
	}

	a.logger.Info("running analysis pass", interfaces.F("unit", unit.Name))
	res := pass("analyze", AnalysisArgs(layout, unit.Name, staged.Compilers, unit.Profile, config.ExtraArgs))
	if !res.Success {
		return fail("analyze", res.ExitCode, res.TimedOut, res.Error, res.Tail)
	}

	if err := writeGenerationInputs(layout, compiler, unit.Profile); err != nil {
		return fail("generate", -1, false, err, "")
	}

	a.logger.Info("running generation pass", interfaces.F("unit", unit.Name))
	res = pass("generate", GenerationArgs(layout, unit.Name))
	if !res.Success {
		return fail("generate", res.ExitCode, res.TimedOut, res.Error, res.Tail)
	}

	info, err := os.Stat(layout.ScratchDB)
	if err != nil || info.Size() == 0 {
		if err == nil {
			err = errors.New("analyzer produced an empty database")
		}
		return fail("collect", 0, false, err, res.Tail)
	}

	if err := moveIntoPlace(layout.ScratchDB, layout.OutputDB); err != nil {
		return fail("collect", 0, false, err, res.Tail)
	}

	job.LogExcerpt = res.Tail
	_ = job.Succeed(a.now(), layout.OutputDB)
	a.logger.Info("unit succeeded", interfaces.F("unit", unit.Name), interfaces.F("output", layout.OutputDB), interfaces.F("duration", job.Duration().Round(time.Second)))
	return job
}

// Plan lists the staging steps and both analyzer command lines for unit.
// Paths use a placeholder job id.
func (a *HeadlessAnalyzer) Plan(unit *entities.LibraryUnit, config gateways.AnalyzerConfig) []string {
	layout := Layout(unit, "dry-run", config)
	tools := ResolveStageTools(config.Tools, config.Sdk.Path)

	lines := a.stager.Plan(unit, tools)
	compilers := unit.Compilers()
	sort.Strings(compilers)
	lines = append(lines,
		"analyze: "+CommandLine(config.Executable, AnalysisArgs(layout, unit.Name, compilers, unit.Profile, config.ExtraArgs)),
		"generate: "+CommandLine(config.Executable, GenerationArgs(layout, unit.Name)),
		"output: "+layout.OutputDB,
	)
	return lines
}

func stagedWarnings(r *StageResult) []string {
	if r == nil {
		return nil
	}
	return r.Warnings
}

func writeGenerationInputs(layout JobLayout, compiler string, profile entities.ProcessorProfile) error {
	props := PropertiesContent(filepath.Base(layout.ScratchDB), compiler, profile)
	if err := os.WriteFile(filepath.Join(layout.JobDir, PropertiesFile), []byte(props), 0600); err != nil {
		return fmt.Errorf("failed to write properties: %w", err)
	}
	for _, name := range []string{"duplicates.txt", "common_symbols.txt"} {
		if err := os.WriteFile(filepath.Join(layout.JobDir, name), nil, 0600); err != nil {
			return fmt.Errorf("failed to create %s: %w", name, err)
		}
	}
	return nil
}

// moveIntoPlace atomically replaces dst with src. Across file systems it
// copies into a temporary file next to dst first, so dst is never partial.
func moveIntoPlace(src, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0750); err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Dir(dst), err)
	}
	if err := os.Rename(src, dst); err == nil {
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(dst), "."+filepath.Base(dst)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = os.Remove(tmpPath)
		}
	}()

	//nolint:gosec // G304: src is a job output
	in, err := os.Open(src)
	if err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	if _, err := io.Copy(tmp, in); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpPath, dst); err != nil {
		return fmt.Errorf("failed to move %s into place: %w", dst, err)
	}
	committed = true
	_ = os.Remove(src)
	return nil
}
