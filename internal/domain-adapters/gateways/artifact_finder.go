package gateways

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ochairo/fidforge/internal/external-adapters/gpg"
)

// ArtifactSet groups an artifact with the sidecar files found next to it.
// Missing sidecars are left empty.
type ArtifactSet struct {
	Version   string
	Artifact  string
	Checksum  string
	Signature string
	Manifest  string
}

// ArtifactFinder locates FID database artifacts in an output directory
type ArtifactFinder struct {
	artifactExt string
	manifestExt string
}

// NewArtifactFinder creates a finder for artifacts named
// <version><artifactExt> with manifests named <version><manifestExt>
func NewArtifactFinder(artifactExt, manifestExt string) *ArtifactFinder {
	return &ArtifactFinder{artifactExt: artifactExt, manifestExt: manifestExt}
}

// Find returns every artifact directly below outputDir, sorted by version
func (f *ArtifactFinder) Find(outputDir string) ([]ArtifactSet, error) {
	if _, err := os.Stat(outputDir); os.IsNotExist(err) {
		return nil, fmt.Errorf("output directory does not exist: %s", outputDir)
	}

	matches, err := filepath.Glob(filepath.Join(outputDir, "*"+f.artifactExt))
	if err != nil {
		return nil, fmt.Errorf("failed to glob artifacts: %w", err)
	}
	sort.Strings(matches)

	sets := make([]ArtifactSet, 0, len(matches))
	for _, artifact := range matches {
		version := strings.TrimSuffix(filepath.Base(artifact), f.artifactExt)
		set := ArtifactSet{Version: version, Artifact: artifact}
		if existsFile(artifact + ChecksumExt) {
			set.Checksum = artifact + ChecksumExt
		}
		if existsFile(artifact + gpg.SignatureExt) {
			set.Signature = artifact + gpg.SignatureExt
		}
		if m := filepath.Join(outputDir, version+f.manifestExt); existsFile(m) {
			set.Manifest = m
		}
		sets = append(sets, set)
	}
	return sets, nil
}

func existsFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
