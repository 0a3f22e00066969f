// Package services implements the domain services behind a fidforge run.
package services

import (
	"context"
	"fmt"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	svc "github.com/ochairo/fidforge/internal/domain/interfaces/services"
)

// Folder tokens that identify the compiler regardless of file extension
var (
	gccFolderTokens = []string{"gnu", "sh-elf"}
	shcFolderTokens = []string{"codewarrior", "mwerks", "mw"}
)

// Variant folder tokens, most specific first
var variantTokens = []string{"m4-single-only", "m4-single", "mnomacsave", "m4", "ml"}

// CatalogScanner discovers library units below an SDK root
type CatalogScanner struct {
	inspector gateways.MemberInspector
	logger    interfaces.Logger
}

// NewCatalogScanner creates a scanner. A nil logger discards warnings
// (they are still collected in the scan report).
func NewCatalogScanner(inspector gateways.MemberInspector, logger interfaces.Logger) *CatalogScanner {
	if logger == nil {
		logger = &interfaces.NoOpLogger{}
	}
	return &CatalogScanner{inspector: inspector, logger: logger}
}

// Scan validates root against the convention and returns a lazy sequence of
// units in lexicographic folder order. Member files are walked as the
// sequence is consumed; skipped folders and members are appended to the
// returned report while iterating.
func (s *CatalogScanner) Scan(
	ctx context.Context,
	root entities.SdkRoot,
	convention entities.Convention,
	profile entities.ProcessorProfile,
) (iter.Seq2[*entities.LibraryUnit, error], *svc.ScanReport, error) {
	if err := root.Validate(); err != nil {
		return nil, nil, err
	}
	if err := convention.Validate(); err != nil {
		return nil, nil, err
	}

	info, err := os.Stat(root.Path)
	if err != nil {
		return nil, nil, &entities.ConfigurationError{Field: "sdk.path", Reason: "SDK root not found: " + root.Path, Err: err}
	}
	if !info.IsDir() {
		return nil, nil, &entities.ConfigurationError{Field: "sdk.path", Reason: "SDK root is not a directory: " + root.Path}
	}

	libRoot := filepath.Join(root.Path, filepath.FromSlash(convention.LibraryRoot))
	entries, err := os.ReadDir(libRoot)
	if err != nil {
		return nil, nil, &entities.ConfigurationError{
			Field:  "convention.library_root",
			Reason: fmt.Sprintf("expected library folder %q not found in %s", convention.LibraryRoot, root.Path),
			Err:    err,
		}
	}

	folders := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			folders = append(folders, e.Name())
		}
	}
	if len(folders) == 0 {
		return nil, nil, &entities.ConfigurationError{
			Field:  "convention.library_root",
			Reason: fmt.Sprintf("no library subfolders below %s", libRoot),
		}
	}
	sort.Strings(folders)

	report := &svc.ScanReport{}
	seq := func(yield func(*entities.LibraryUnit, error) bool) {
		seen := make(map[string]string)
		for _, name := range folders {
			if err := ctx.Err(); err != nil {
				yield(nil, err)
				return
			}

			folder := filepath.Join(libRoot, name)
			if !convention.Recognizes(name) {
				s.warn(report, folder, "folder does not match the library naming convention")
				continue
			}

			key := strings.ToLower(name)
			if prev, dup := seen[key]; dup {
				s.warn(report, folder, fmt.Sprintf("unit name collides with %s", prev))
				continue
			}
			seen[key] = name

			members, err := s.collectMembers(ctx, folder, convention, profile, report)
			if err != nil {
				yield(nil, err)
				return
			}
			if len(members) == 0 {
				s.warn(report, folder, "no object or library files found")
				continue
			}

			unit := &entities.LibraryUnit{
				Name:       name,
				SdkVersion: root.Version,
				Folder:     folder,
				Members:    members,
				Profile:    profile,
			}
			if !yield(unit, nil) {
				return
			}
		}
	}

	return seq, report, nil
}

// ScanAll drains a scan into a slice
func (s *CatalogScanner) ScanAll(
	ctx context.Context,
	root entities.SdkRoot,
	convention entities.Convention,
	profile entities.ProcessorProfile,
) ([]*entities.LibraryUnit, *svc.ScanReport, error) {
	seq, report, err := s.Scan(ctx, root, convention, profile)
	if err != nil {
		return nil, nil, err
	}

	var units []*entities.LibraryUnit
	for unit, err := range seq {
		if err != nil {
			return nil, report, err
		}
		units = append(units, unit)
	}
	return units, report, nil
}

func (s *CatalogScanner) collectMembers(
	ctx context.Context,
	folder string,
	convention entities.Convention,
	profile entities.ProcessorProfile,
	report *svc.ScanReport,
) ([]entities.UnitMember, error) {
	var members []entities.UnitMember

	err := filepath.WalkDir(folder, func(p string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			s.warn(report, p, fmt.Sprintf("unreadable: %v", walkErr))
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}

		if d.IsDir() {
			if p != folder && convention.IsIgnoredDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}

		if !d.Type().IsRegular() || !convention.HasExtension(d.Name()) {
			return nil
		}
		if convention.IsIgnoredFile(d.Name()) {
			return nil
		}

		rel, err := filepath.Rel(folder, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		info, err := s.inspector.Inspect(p, profile)
		if err != nil {
			s.warn(report, p, err.Error())
			return nil
		}
		for _, w := range info.Warnings {
			s.warn(report, p, w)
		}

		members = append(members, classifyMember(p, rel, info))
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.Slice(members, func(i, j int) bool { return members[i].RelPath < members[j].RelPath })
	return members, nil
}

func (s *CatalogScanner) warn(report *svc.ScanReport, p, reason string) {
	w := &entities.UnitDiscoveryWarning{Path: p, Reason: reason}
	report.Warnings = append(report.Warnings, w)
	s.logger.Warn("scan: skipped", interfaces.F("path", p), interfaces.F("reason", reason))
}

// classifyMember decides compiler, staging kind and variant for one file.
// Some SHC .obj files are really ELF, so folder names win over magic, and
// the extension is the last resort.
func classifyMember(absPath, relPath string, info *gateways.MemberInfo) entities.UnitMember {
	parts := strings.Split(strings.ToLower(relPath), "/")
	name := parts[len(parts)-1]
	ext := path.Ext(name)

	archive := info.IsArchive || strings.HasSuffix(name, ".a") || strings.HasSuffix(name, ".elf.lib")

	var compiler string
	switch {
	case anyToken(parts, gccFolderTokens):
		compiler = entities.CompilerGCC
	case anyToken(parts, shcFolderTokens):
		compiler = entities.CompilerSHC
	case archive || ext == ".o" || ext == ".elf":
		compiler = entities.CompilerGCC
	default:
		compiler = entities.CompilerSHC
	}

	kind := entities.MemberObject
	switch {
	case archive:
		kind = entities.MemberArchive
	case ext == ".lib":
		kind = entities.MemberSHCLibrary
	}

	variant := entities.DefaultVariant
	for _, tok := range variantTokens {
		if anyToken(parts[:len(parts)-1], []string{tok}) {
			variant = tok
			break
		}
	}

	return entities.UnitMember{
		Path:     absPath,
		RelPath:  relPath,
		Kind:     kind,
		Compiler: compiler,
		Variant:  variant,
	}
}

func anyToken(parts, tokens []string) bool {
	for _, p := range parts {
		for _, t := range tokens {
			if p == t {
				return true
			}
		}
	}
	return false
}
