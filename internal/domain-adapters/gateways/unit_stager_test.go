package gateways

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/ochairo/fidforge/internal/domain/entities"
)

func writeTool(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	//nolint:gosec // G306: test executable needs 0700 permissions
	if err := os.WriteFile(p, []byte("#!/bin/sh\n"+body+"\n"), 0700); err != nil {
		t.Fatalf("failed to write %s: %v", name, err)
	}
	return p
}

func listFiles(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("ReadDir(%s) error = %v", dir, err)
	}
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names
}

func member(t *testing.T, dir, rel string, kind entities.MemberKind, compiler, variant string) entities.UnitMember {
	t.Helper()
	p := filepath.Join(dir, filepath.FromSlash(rel))
	if err := os.MkdirAll(filepath.Dir(p), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(p, []byte("payload"), 0600); err != nil {
		t.Fatal(err)
	}
	return entities.UnitMember{Path: p, RelPath: rel, Kind: kind, Compiler: compiler, Variant: variant}
}

func TestUnitStager_StageArchiveAndObjects(t *testing.T) {
	sdk := t.TempDir()
	tools := t.TempDir()
	importDir := filepath.Join(t.TempDir(), "import")

	ar := writeTool(t, tools, "ar", `printf '\177ELF' > strlen.o; printf 'text' > notes.txt`)

	unit := &entities.LibraryUnit{
		Name:       "libc",
		SdkVersion: "r10",
		Members: []entities.UnitMember{
			member(t, sdk, "gnu/libc.a", entities.MemberArchive, entities.CompilerGCC, "m4-single-only"),
			member(t, sdk, "crt0.o", entities.MemberObject, entities.CompilerGCC, "default"),
			member(t, sdk, "shc/startup.obj", entities.MemberObject, entities.CompilerSHC, "default"),
		},
	}

	stager := NewUnitStager(NewProcessExecutor(), nil)
	result, err := stager.Stage(context.Background(), unit, StageTools{Ar: ar}, importDir)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}

	if result.Files != 4 {
		t.Errorf("Files = %d, want 4", result.Files)
	}
	if got := strings.Join(result.Compilers, ","); got != "gcc,shc" {
		t.Errorf("Compilers = %s, want gcc,shc", got)
	}
	if result.PrimaryCompiler() != entities.CompilerGCC {
		t.Errorf("PrimaryCompiler() = %s, want gcc", result.PrimaryCompiler())
	}

	extracted := listFiles(t, filepath.Join(importDir, "gcc", "libc.a", "m4-single-only", "r10"))
	if strings.Join(extracted, ",") != "notes.txt,strlen.elf" {
		t.Errorf("extracted = %v, want ELF renamed and archive copy removed", extracted)
	}
	if _, err := os.Stat(filepath.Join(importDir, "shc", "startup.obj", "default", "r10", "startup.obj")); err != nil {
		t.Errorf("copied object missing: %v", err)
	}
}

func TestUnitStager_SplitsSHCLibraries(t *testing.T) {
	sdk := t.TempDir()
	tools := t.TempDir()
	importDir := filepath.Join(t.TempDir(), "import")

	libsplit := writeTool(t, tools, "libsplit", `printf 'a' > a.obj; printf 'b' > b.obj`)
	elfcnv := writeTool(t, tools, "elfcnv", `cp "$1" "$2"`)

	unit := &entities.LibraryUnit{
		Name:       "shc",
		SdkVersion: "r11",
		Members:    []entities.UnitMember{member(t, sdk, "shc.lib", entities.MemberSHCLibrary, entities.CompilerSHC, "default")},
	}

	result, err := NewUnitStager(NewProcessExecutor(), nil).Stage(context.Background(), unit, StageTools{Libsplit: libsplit, Elfcnv: elfcnv}, importDir)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if result.Files != 2 {
		t.Errorf("Files = %d, want 2", result.Files)
	}

	files := listFiles(t, filepath.Join(importDir, "shc", "shc.lib", "default", "r11"))
	if strings.Join(files, ",") != "a.elf,b.elf" {
		t.Errorf("files = %v, want converted ELF objects only", files)
	}
}

func TestUnitStager_MissingToolWarns(t *testing.T) {
	sdk := t.TempDir()
	importDir := filepath.Join(t.TempDir(), "import")

	unit := &entities.LibraryUnit{
		Name:       "libm",
		SdkVersion: "r09",
		Members:    []entities.UnitMember{member(t, sdk, "libm.a", entities.MemberArchive, entities.CompilerGCC, "default")},
	}

	result, err := NewUnitStager(NewProcessExecutor(), nil).Stage(context.Background(), unit, StageTools{}, importDir)
	if err != nil {
		t.Fatalf("Stage() error = %v", err)
	}
	if result.Files != 0 {
		t.Errorf("Files = %d, want 0", result.Files)
	}
	if len(result.Warnings) != 1 || !strings.Contains(result.Warnings[0], "ar not found") {
		t.Errorf("Warnings = %v, want missing ar", result.Warnings)
	}
}

func TestUnitStager_Plan(t *testing.T) {
	unit := &entities.LibraryUnit{
		Name:       "libc",
		SdkVersion: "r09",
		Members: []entities.UnitMember{
			{Path: "/sdk/libc/libc.a", RelPath: "libc.a", Kind: entities.MemberArchive, Compiler: "gcc", Variant: "default"},
			{Path: "/sdk/libc/crt0.o", RelPath: "crt0.o", Kind: entities.MemberObject, Compiler: "gcc", Variant: "ml"},
		},
	}

	lines := NewUnitStager(NewProcessExecutor(), nil).Plan(unit, StageTools{})
	want := []string{
		"ar: libc.a -> gcc/libc.a/default/r09 (ar MISSING)",
		"copy: crt0.o -> gcc/crt0.o/ml/r09",
	}
	if strings.Join(lines, "\n") != strings.Join(want, "\n") {
		t.Errorf("Plan() = %v, want %v", lines, want)
	}
}

func TestResolveStageTools(t *testing.T) {
	sdk := t.TempDir()
	arPath := filepath.Join(sdk, "Utl", "Dev", "Gnu", "Bin", "ar.exe")
	if err := os.MkdirAll(filepath.Dir(arPath), 0750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(arPath, nil, 0600); err != nil {
		t.Fatal(err)
	}

	tools := ResolveStageTools(entities.DefaultToolSettings(), sdk)
	if tools.Ar != arPath {
		t.Errorf("Ar = %q, want %q", tools.Ar, arPath)
	}
	if tools.Libsplit != "" || tools.Elfcnv != "" {
		t.Errorf("missing tools should resolve to empty paths, got %+v", tools)
	}
}
