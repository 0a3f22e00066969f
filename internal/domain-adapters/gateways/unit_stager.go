package gateways

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
)

// StageTools holds resolved paths of the SDK archive tools. An empty path
// means the tool is unavailable.
type StageTools struct {
	Ar       string
	Libsplit string
	Elfcnv   string
}

// ResolveStageTools resolves tool paths against the SDK root and drops the
// ones that do not exist
func ResolveStageTools(settings entities.ToolSettings, sdkRoot string) StageTools {
	resolve := func(t entities.ToolPath) string {
		p := t.Resolve(sdkRoot)
		if p == "" {
			return ""
		}
		if _, err := os.Stat(p); err != nil {
			return ""
		}
		return p
	}
	return StageTools{
		Ar:       resolve(settings.Ar),
		Libsplit: resolve(settings.Libsplit),
		Elfcnv:   resolve(settings.Elfcnv),
	}
}

// UnitStager lays out a unit's members in the folder structure Ghidra's
// CreateMultipleLibraries script expects:
// <compiler>/<library>/<variant>/<sdk version>/<files>
type UnitStager struct {
	executor *ProcessExecutor
	logger   interfaces.Logger
	timeout  time.Duration
}

// NewUnitStager creates a stager using executor for archive tools
func NewUnitStager(executor *ProcessExecutor, logger interfaces.Logger) *UnitStager {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &UnitStager{executor: executor, logger: logger, timeout: 5 * time.Minute}
}

// StageResult summarizes a staging pass
type StageResult struct {
	Files       int
	PerCompiler map[string]int
	Compilers   []string // sorted
	Warnings    []string
}

// PrimaryCompiler returns the compiler with the most staged files, ties
// broken by name
func (r *StageResult) PrimaryCompiler() string {
	best := ""
	for _, c := range r.Compilers {
		if best == "" || r.PerCompiler[c] > r.PerCompiler[best] {
			best = c
		}
	}
	return best
}

// Stage copies or extracts every member of unit below importDir
func (s *UnitStager) Stage(ctx context.Context, unit *entities.LibraryUnit, tools StageTools, importDir string) (*StageResult, error) {
	result := &StageResult{PerCompiler: make(map[string]int)}

	for _, m := range unit.Members {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		dst := filepath.Join(importDir, m.Compiler, filepath.Base(m.Path), m.Variant, unit.SdkVersion)
		if err := os.MkdirAll(dst, 0750); err != nil {
			return result, fmt.Errorf("failed to create staging directory: %w", err)
		}

		var n int
		var err error
		switch m.Kind {
		case entities.MemberArchive:
			n, err = s.extractArchive(ctx, m, tools, dst, result)
		case entities.MemberSHCLibrary:
			n, err = s.splitLibrary(ctx, m, tools, dst, result)
		default:
			n, err = s.copyMember(m, dst, result)
		}
		if err != nil {
			s.warn(result, fmt.Sprintf("%s: %v", m.RelPath, err))
			continue
		}

		if n == 0 {
			continue
		}
		if result.PerCompiler[m.Compiler] == 0 {
			result.Compilers = append(result.Compilers, m.Compiler)
		}
		result.PerCompiler[m.Compiler] += n
		result.Files += n
	}

	sort.Strings(result.Compilers)
	return result, nil
}

// Plan describes how each member would be staged without touching disk
func (s *UnitStager) Plan(unit *entities.LibraryUnit, tools StageTools) []string {
	lines := make([]string, 0, len(unit.Members))
	for _, m := range unit.Members {
		dst := filepath.ToSlash(filepath.Join(m.Compiler, filepath.Base(m.Path), m.Variant, unit.SdkVersion))
		tool := "copy"
		missing := ""
		switch m.Kind {
		case entities.MemberArchive:
			tool = "ar"
			if tools.Ar == "" {
				missing = " (ar MISSING)"
			}
		case entities.MemberSHCLibrary:
			tool = "libsplit+elfcnv"
			if tools.Libsplit == "" || tools.Elfcnv == "" {
				missing = " (libsplit/elfcnv MISSING)"
			}
		}
		lines = append(lines, fmt.Sprintf("%s: %s -> %s%s", tool, m.RelPath, dst, missing))
	}
	return lines
}

func (s *UnitStager) copyMember(m entities.UnitMember, dst string, result *StageResult) (int, error) {
	target := filepath.Join(dst, filepath.Base(m.Path))
	if _, err := os.Stat(target); err == nil {
		s.warn(result, fmt.Sprintf("destination already exists: %s", target))
		return 0, nil
	}
	if err := copyFile(m.Path, target); err != nil {
		return 0, err
	}
	return 1, nil
}

func (s *UnitStager) extractArchive(ctx context.Context, m entities.UnitMember, tools StageTools, dst string, result *StageResult) (int, error) {
	if tools.Ar == "" {
		return 0, fmt.Errorf("ar not found, cannot extract %s", filepath.Base(m.Path))
	}

	return s.inScratch(dst, m, result, func(tmp, name string) error {
		if err := s.run(ctx, tools.Ar, []string{"xo", name}, tmp); err != nil {
			return err
		}
		return fixExtracted(tmp)
	})
}

func (s *UnitStager) splitLibrary(ctx context.Context, m entities.UnitMember, tools StageTools, dst string, result *StageResult) (int, error) {
	if tools.Libsplit == "" || tools.Elfcnv == "" {
		return 0, fmt.Errorf("libsplit/elfcnv not found, cannot process %s", filepath.Base(m.Path))
	}

	return s.inScratch(dst, m, result, func(tmp, name string) error {
		if err := s.run(ctx, tools.Libsplit, []string{name}, tmp); err != nil {
			return err
		}
		entries, err := os.ReadDir(tmp)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.IsDir() || !strings.EqualFold(filepath.Ext(e.Name()), ".obj") {
				continue
			}
			elfName := strings.TrimSuffix(e.Name(), filepath.Ext(e.Name())) + ".elf"
			if err := s.run(ctx, tools.Elfcnv, []string{e.Name(), elfName}, tmp); err != nil {
				s.warn(result, fmt.Sprintf("elfcnv failed for %s: %v", e.Name(), err))
				continue
			}
			if err := os.Remove(filepath.Join(tmp, e.Name())); err != nil {
				return err
			}
		}
		return nil
	})
}

// inScratch copies the member into a scratch directory, runs fn there,
// drops the archive copy and moves whatever fn produced into dst
func (s *UnitStager) inScratch(dst string, m entities.UnitMember, result *StageResult, fn func(tmp, name string) error) (int, error) {
	tmp, err := os.MkdirTemp(filepath.Dir(dst), ".extract-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create scratch directory: %w", err)
	}
	//nolint:errcheck // Best-effort cleanup of scratch directory
	defer os.RemoveAll(tmp)

	name := filepath.Base(m.Path)
	if err := copyFile(m.Path, filepath.Join(tmp, name)); err != nil {
		return 0, err
	}
	if err := fn(tmp, name); err != nil {
		return 0, err
	}
	if err := os.Remove(filepath.Join(tmp, name)); err != nil && !os.IsNotExist(err) {
		return 0, err
	}

	return s.moveAll(tmp, dst, result)
}

func (s *UnitStager) moveAll(src, dst string, result *StageResult) (int, error) {
	entries, err := os.ReadDir(src)
	if err != nil {
		return 0, err
	}

	moved := 0
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		target := filepath.Join(dst, e.Name())
		if _, err := os.Stat(target); err == nil {
			s.warn(result, fmt.Sprintf("extraction destination already exists: %s", target))
			continue
		}
		if err := os.Rename(filepath.Join(src, e.Name()), target); err != nil {
			return moved, fmt.Errorf("failed to move %s: %w", e.Name(), err)
		}
		moved++
	}
	return moved, nil
}

func (s *UnitStager) run(ctx context.Context, tool string, args []string, dir string) error {
	res := s.executor.Execute(ctx, CommandConfig{
		Name:        tool,
		Args:        args,
		WorkingDir:  dir,
		Timeout:     s.timeout,
		Description: filepath.Base(tool),
		TailLines:   10,
	})
	if !res.Success {
		return fmt.Errorf("%s failed (exit %d): %w\n%s", filepath.Base(tool), res.ExitCode, res.Error, res.Tail)
	}
	return nil
}

func (s *UnitStager) warn(result *StageResult, msg string) {
	result.Warnings = append(result.Warnings, msg)
	s.logger.Warn("stage: "+msg)
}

// fixExtracted makes extracted members writable and gives ELF objects with
// a wrong or missing extension a .elf suffix
func fixExtracted(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		p := filepath.Join(dir, e.Name())
		if err := os.Chmod(p, 0600); err != nil {
			return err
		}
		if strings.EqualFold(filepath.Ext(e.Name()), ".elf") || !hasELFMagic(p) {
			continue
		}
		renamed := strings.TrimSuffix(p, filepath.Ext(p)) + ".elf"
		if err := os.Rename(p, renamed); err != nil {
			return err
		}
	}
	return nil
}

func hasELFMagic(path string) bool {
	//nolint:gosec // G304: path is inside the job scratch directory
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	magic := make([]byte, len(elfMagic))
	if _, err := io.ReadFull(f, magic); err != nil {
		return false
	}
	return bytes.Equal(magic, elfMagic)
}

func copyFile(src, dst string) error {
	//nolint:gosec // G304: src is an SDK member found by the scanner
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", src, err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer in.Close()

	//nolint:gosec // G304: dst is inside the job directory
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", dst, err)
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return fmt.Errorf("failed to copy %s: %w", src, err)
	}
	return out.Close()
}
