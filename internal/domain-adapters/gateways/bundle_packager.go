package gateways

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
)

// Packager writes aggregated FID database bundles as gzipped tarballs
type Packager struct{}

// NewPackager creates a new packager
func NewPackager() *Packager {
	return &Packager{}
}

// WriteBundle writes entries sorted by name into a tar.gz at dest. Every
// header carries modTime and zero ownership so the same inputs always
// produce the same bytes. The archive is written to a temporary file in the
// destination directory and renamed into place.
func (p *Packager) WriteBundle(ctx context.Context, dest string, entries []gateways.BundleEntry, modTime time.Time) error {
	sorted := make([]gateways.BundleEntry, len(entries))
	copy(sorted, entries)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	for i := 1; i < len(sorted); i++ {
		if sorted[i].Name == sorted[i-1].Name {
			return fmt.Errorf("duplicate bundle entry: %s", sorted[i].Name)
		}
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0750); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(dest), "."+filepath.Base(dest)+".*")
	if err != nil {
		return fmt.Errorf("failed to create temporary bundle: %w", err)
	}
	tmpPath := tmp.Name()
	committed := false
	defer func() {
		if !committed {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	gzipWriter := gzip.NewWriter(tmp)
	gzipWriter.ModTime = modTime.UTC()
	tarWriter := tar.NewWriter(gzipWriter)

	for _, e := range sorted {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := writeBundleEntry(tarWriter, e, modTime); err != nil {
			return err
		}
	}

	if err := tarWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish tar stream: %w", err)
	}
	if err := gzipWriter.Close(); err != nil {
		return fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync bundle: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close bundle: %w", err)
	}
	//nolint:gosec // G302: published artifacts are world readable
	if err := os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("failed to set bundle permissions: %w", err)
	}
	if err := os.Rename(tmpPath, dest); err != nil {
		return fmt.Errorf("failed to move bundle into place: %w", err)
	}
	committed = true
	return nil
}

func writeBundleEntry(tw *tar.Writer, e gateways.BundleEntry, modTime time.Time) error {
	var (
		src  io.Reader
		size int64
	)
	if e.Data != nil {
		size = int64(len(e.Data))
	} else {
		//nolint:gosec // G304: path is a unit output produced by this run
		f, err := os.Open(e.Path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", e.Path, err)
		}
		//nolint:errcheck // Defer close on read-only file
		defer f.Close()

		info, err := f.Stat()
		if err != nil {
			return fmt.Errorf("failed to stat %s: %w", e.Path, err)
		}
		if !info.Mode().IsRegular() {
			return fmt.Errorf("%s is not a regular file", e.Path)
		}
		src = f
		size = info.Size()
	}

	header := &tar.Header{
		Typeflag: tar.TypeReg,
		Name:     e.Name,
		Size:     size,
		Mode:     0644,
		ModTime:  modTime.UTC().Truncate(time.Second),
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("failed to write tar header: %w", err)
	}

	if e.Data != nil {
		if _, err := tw.Write(e.Data); err != nil {
			return fmt.Errorf("failed to write %s to tar: %w", e.Name, err)
		}
		return nil
	}
	if _, err := io.Copy(tw, src); err != nil {
		return fmt.Errorf("failed to write %s to tar: %w", e.Name, err)
	}
	return nil
}

// ListBundle returns the entry names of a bundle in archive order
func (p *Packager) ListBundle(path string) ([]string, error) {
	//nolint:gosec // G304: path is a bundle chosen by the operator
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open bundle: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	gzipReader, err := gzip.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read gzip stream: %w", err)
	}
	//nolint:errcheck // Defer close
	defer gzipReader.Close()

	var names []string
	tr := tar.NewReader(gzipReader)
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read tar entry: %w", err)
		}
		names = append(names, header.Name)
	}
	return names, nil
}
