package gateways

import (
	"context"
	"time"
)

// BundleEntry is one file placed into an aggregated artifact
type BundleEntry struct {
	Name string // name inside the bundle
	Path string // local source path
	Data []byte // used instead of Path when non-nil
}

// BundlePackager writes entries into a single artifact file at dest
type BundlePackager interface {
	WriteBundle(ctx context.Context, dest string, entries []BundleEntry, modTime time.Time) error
}

// Checksummer writes and checks <file>.sha256 sidecars
type Checksummer interface {
	WriteChecksumFile(path string) (sum, sidecar string, err error)
	VerifyChecksumFile(path string) (string, error)
}

// ArtifactSigner produces a detached signature next to a file
type ArtifactSigner interface {
	SignFile(ctx context.Context, path string) (string, error)
}

// ArtifactPublisher uploads a local file under key and returns its URL
type ArtifactPublisher interface {
	Publish(ctx context.Context, localPath, key string) (string, error)
}
