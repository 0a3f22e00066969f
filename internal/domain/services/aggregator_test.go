package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
	svc "github.com/ochairo/fidforge/internal/domain/interfaces/services"
)

// mockPackager records the entries it was asked to bundle
type mockPackager struct {
	dest    string
	entries []gateways.BundleEntry
	modTime time.Time
	err     error
}

func (m *mockPackager) WriteBundle(_ context.Context, dest string, entries []gateways.BundleEntry, modTime time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.dest = dest
	m.entries = entries
	m.modTime = modTime
	return os.WriteFile(dest, []byte("bundle"), 0600)
}

type mockChecksummer struct{}

func (mockChecksummer) WriteChecksumFile(path string) (string, string, error) {
	sidecar := path + ".sha256"
	return "abc123", sidecar, os.WriteFile(sidecar, []byte("abc123  "+filepath.Base(path)+"\n"), 0600)
}

func (mockChecksummer) VerifyChecksumFile(string) (string, error) { return "abc123", nil }

var fixedNow = time.Date(2024, 5, 1, 10, 30, 0, 0, time.UTC)

func newTestAggregator(p *mockPackager) *DatabaseAggregator {
	a := NewDatabaseAggregator(p, mockChecksummer{}, nil)
	a.now = func() time.Time { return fixedNow }
	return a
}

func succeededJob(t *testing.T, dir, version, name string) *entities.AnalysisJob {
	t.Helper()
	out := filepath.Join(dir, name+".fidb")
	if err := os.WriteFile(out, []byte("FIDB"), 0600); err != nil {
		t.Fatal(err)
	}
	job := entities.NewAnalysisJob("job-"+name, &entities.LibraryUnit{Name: name, SdkVersion: version})
	_ = job.Start(fixedNow)
	_ = job.Succeed(fixedNow, out)
	return job
}

func failedJob(version, name string, exitCode int) *entities.AnalysisJob {
	job := entities.NewAnalysisJob("job-"+name, &entities.LibraryUnit{Name: name, SdkVersion: version})
	_ = job.Start(fixedNow)
	_ = job.Fail(fixedNow, exitCode, fmt.Errorf("analyzer exited %d", exitCode))
	job.LogExcerpt = "ERROR: bad object"
	job.LogPath = "/out/R09/logs/" + name + ".log"
	return job
}

func aggregateConfig(out string) svc.AggregateConfig {
	return svc.AggregateConfig{
		OutputDir: out,
		Sdk:       entities.SdkRoot{Version: "R09", Path: "/sdk/r09"},
		Profile:   entities.DefaultProcessorProfile(),
	}
}

func readManifest(t *testing.T, path string) *entities.Manifest {
	t.Helper()
	//nolint:gosec // G304: test file
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("manifest not written: %v", err)
	}
	var m entities.Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("manifest is not valid JSON: %v", err)
	}
	return &m
}

func TestArtifactPath(t *testing.T) {
	if got := ArtifactPath("fidb", "R09"); got != filepath.Join("fidb", "R09.fidb.tar.gz") {
		t.Errorf("ArtifactPath() = %s", got)
	}
	if ArtifactPath("fidb", "R09") != ArtifactPath("fidb", "R09") {
		t.Error("ArtifactPath() is not deterministic")
	}
	if got := ManifestPath("fidb", "R10"); got != filepath.Join("fidb", "R10.manifest.json") {
		t.Errorf("ManifestPath() = %s", got)
	}
}

func TestAggregate_AllSucceeded(t *testing.T) {
	out := t.TempDir()
	units := t.TempDir()
	p := &mockPackager{}

	jobs := []*entities.AnalysisJob{
		succeededJob(t, units, "R09", "libB"),
		succeededJob(t, units, "R09", "libA"),
	}

	artifact, manifest, err := newTestAggregator(p).Aggregate(context.Background(), jobs, aggregateConfig(out))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}

	wantPath := filepath.Join(out, "R09.fidb.tar.gz")
	if artifact.Path != wantPath || p.dest != wantPath {
		t.Errorf("artifact path = %s (bundle %s), want %s", artifact.Path, p.dest, wantPath)
	}
	if strings.Join(artifact.Units, ",") != "libA,libB" {
		t.Errorf("Units = %v, want [libA libB]", artifact.Units)
	}
	if strings.Join(artifact.JobIDs, ",") != "job-libA,job-libB" {
		t.Errorf("JobIDs = %v", artifact.JobIDs)
	}
	if !artifact.CreatedAt.Equal(fixedNow) || !p.modTime.Equal(fixedNow) {
		t.Errorf("CreatedAt = %v, modTime = %v, want %v", artifact.CreatedAt, p.modTime, fixedNow)
	}
	if artifact.ChecksumPath != wantPath+".sha256" {
		t.Errorf("ChecksumPath = %s", artifact.ChecksumPath)
	}

	var names []string
	for _, e := range p.entries {
		names = append(names, e.Name)
	}
	if strings.Join(names, ",") != "libA.fidb,libB.fidb,manifest.json" {
		t.Errorf("bundle entries = %v", names)
	}

	if len(manifest.FailedUnits) != 0 || len(manifest.SucceededUnits) != 2 {
		t.Errorf("manifest = %+v", manifest)
	}
	onDisk := readManifest(t, filepath.Join(out, "R09.manifest.json"))
	if onDisk.ArtifactPath != wantPath || onDisk.ArtifactSHA256 != "abc123" {
		t.Errorf("manifest artifact = %s %s", onDisk.ArtifactPath, onDisk.ArtifactSHA256)
	}
	if onDisk.LanguageID != "SuperH4:LE:32:default" || onDisk.BaseAddress != "0x8c010000" {
		t.Errorf("manifest profile = %s %s", onDisk.LanguageID, onDisk.BaseAddress)
	}
}

func TestAggregate_PartialFailure(t *testing.T) {
	out := t.TempDir()
	units := t.TempDir()
	p := &mockPackager{}

	jobs := []*entities.AnalysisJob{
		succeededJob(t, units, "R09", "libA"),
		failedJob("R09", "libB", 3),
	}

	artifact, _, err := newTestAggregator(p).Aggregate(context.Background(), jobs, aggregateConfig(out))
	if err != nil {
		t.Fatalf("Aggregate() error = %v", err)
	}
	if strings.Join(artifact.Units, ",") != "libA" {
		t.Errorf("Units = %v, want only libA", artifact.Units)
	}
	if len(p.entries) != 2 || p.entries[0].Name != "libA.fidb" {
		t.Errorf("bundle entries = %+v", p.entries)
	}

	m := readManifest(t, filepath.Join(out, "R09.manifest.json"))
	if len(m.FailedUnits) != 1 {
		t.Fatalf("FailedUnits = %+v", m.FailedUnits)
	}
	f := m.FailedUnits[0]
	if f.Name != "libB" || f.ExitCode != 3 || f.LogExcerpt != "ERROR: bad object" || !strings.Contains(f.Reason, "exited 3") {
		t.Errorf("failure entry = %+v", f)
	}
}

func TestAggregate_NoSuccessfulUnits(t *testing.T) {
	out := t.TempDir()
	existing := filepath.Join(out, "R09.fidb.tar.gz")
	if err := os.WriteFile(existing, []byte("previous"), 0600); err != nil {
		t.Fatal(err)
	}
	p := &mockPackager{}

	cfg := aggregateConfig(out)
	cfg.Force = true
	jobs := []*entities.AnalysisJob{failedJob("R09", "libA", 1), failedJob("R09", "libB", -1)}

	artifact, manifest, err := newTestAggregator(p).Aggregate(context.Background(), jobs, cfg)

	var nsu *entities.NoSuccessfulUnitsError
	if !errors.As(err, &nsu) {
		t.Fatalf("Aggregate() error = %v, want NoSuccessfulUnitsError", err)
	}
	if strings.Join(nsu.FailedUnits, ",") != "libA,libB" {
		t.Errorf("FailedUnits = %v", nsu.FailedUnits)
	}
	if artifact != nil {
		t.Errorf("artifact = %+v, want nil", artifact)
	}
	if p.dest != "" {
		t.Error("packager was called with no successful units")
	}
	if manifest == nil || len(manifest.FailedUnits) != 2 {
		t.Errorf("manifest = %+v", manifest)
	}
	written := readManifest(t, filepath.Join(out, "R09.manifest.json"))
	if written.ArtifactPath != "" {
		t.Errorf("ArtifactPath = %s, want empty", written.ArtifactPath)
	}
	if written.PreviousArtifactKept != existing {
		t.Errorf("PreviousArtifactKept = %q, want %s", written.PreviousArtifactKept, existing)
	}

	data, _ := os.ReadFile(existing)
	if string(data) != "previous" {
		t.Error("existing artifact was modified")
	}
}

func TestAggregate_NoSuccessfulUnits_NoPreviousArtifact(t *testing.T) {
	out := t.TempDir()
	jobs := []*entities.AnalysisJob{failedJob("R09", "libA", 1)}

	_, _, err := newTestAggregator(&mockPackager{}).Aggregate(context.Background(), jobs, aggregateConfig(out))
	if err == nil {
		t.Fatal("expected NoSuccessfulUnitsError")
	}
	if m := readManifest(t, filepath.Join(out, "R09.manifest.json")); m.PreviousArtifactKept != "" {
		t.Errorf("PreviousArtifactKept = %q, want empty", m.PreviousArtifactKept)
	}
}

func TestAggregate_ArtifactExists(t *testing.T) {
	out := t.TempDir()
	units := t.TempDir()
	if err := os.WriteFile(filepath.Join(out, "R09.fidb.tar.gz"), []byte("previous"), 0600); err != nil {
		t.Fatal(err)
	}

	a := newTestAggregator(&mockPackager{})
	cfg := aggregateConfig(out)

	var exists *entities.ArtifactExistsError
	if err := a.CheckPrecondition(cfg); !errors.As(err, &exists) {
		t.Fatalf("CheckPrecondition() error = %v, want ArtifactExistsError", err)
	}

	_, _, err := a.Aggregate(context.Background(), []*entities.AnalysisJob{succeededJob(t, units, "R09", "libA")}, cfg)
	if !errors.As(err, &exists) {
		t.Fatalf("Aggregate() error = %v, want ArtifactExistsError", err)
	}
	if _, err := os.Stat(filepath.Join(out, "R09.manifest.json")); !os.IsNotExist(err) {
		t.Error("manifest written although the artifact exists")
	}

	cfg.Force = true
	if err := a.CheckPrecondition(cfg); err != nil {
		t.Errorf("CheckPrecondition() with force error = %v", err)
	}
	if _, _, err := a.Aggregate(context.Background(), []*entities.AnalysisJob{succeededJob(t, units, "R09", "libA")}, cfg); err != nil {
		t.Errorf("Aggregate() with force error = %v", err)
	}
}

func TestAggregate_RejectsInvalidJobs(t *testing.T) {
	units := t.TempDir()

	running := entities.NewAnalysisJob("job-run", &entities.LibraryUnit{Name: "libA", SdkVersion: "R09"})
	_ = running.Start(fixedNow)

	tests := []struct {
		name string
		jobs []*entities.AnalysisJob
		want string
	}{
		{
			name: "pending job",
			jobs: []*entities.AnalysisJob{entities.NewAnalysisJob("job-p", &entities.LibraryUnit{Name: "libA", SdkVersion: "R09"})},
			want: "not terminal",
		},
		{
			name: "running job",
			jobs: []*entities.AnalysisJob{running},
			want: "not terminal",
		},
		{
			name: "other SDK",
			jobs: []*entities.AnalysisJob{failedJob("R10", "libA", 1)},
			want: "belongs to SDK R10",
		},
		{
			name: "duplicate unit",
			jobs: []*entities.AnalysisJob{succeededJob(t, units, "R09", "libA"), failedJob("R09", "libA", 1)},
			want: "more than one job",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := t.TempDir()
			p := &mockPackager{}
			_, _, err := newTestAggregator(p).Aggregate(context.Background(), tt.jobs, aggregateConfig(out))
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Aggregate() error = %v, want %q", err, tt.want)
			}
			if p.dest != "" {
				t.Error("packager called for invalid input")
			}
		})
	}
}

func TestAggregate_PackagerFailure(t *testing.T) {
	out := t.TempDir()
	units := t.TempDir()
	p := &mockPackager{err: errors.New("disk full")}

	_, _, err := newTestAggregator(p).Aggregate(context.Background(), []*entities.AnalysisJob{succeededJob(t, units, "R09", "libA")}, aggregateConfig(out))
	if err == nil || !strings.Contains(err.Error(), "disk full") {
		t.Fatalf("Aggregate() error = %v, want disk full", err)
	}
	if _, err := os.Stat(filepath.Join(out, "R09.fidb.tar.gz.sha256")); !os.IsNotExist(err) {
		t.Error("checksum written for a failed bundle")
	}
}

func TestWriteJSONFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "run.json")
	if err := WriteJSONFile(path, map[string]int{"units": 2}); err != nil {
		t.Fatalf("WriteJSONFile() error = %v", err)
	}
	data, _ := os.ReadFile(path)
	if string(data) != "{\n  \"units\": 2\n}\n" {
		t.Errorf("content = %q", data)
	}
	leftovers, _ := filepath.Glob(filepath.Join(filepath.Dir(path), ".run.json.*"))
	if len(leftovers) != 0 {
		t.Errorf("temporary files left behind: %v", leftovers)
	}
}
