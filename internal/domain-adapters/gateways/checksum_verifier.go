package gateways

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// ChecksumExt is appended to an artifact path to form its sidecar
const ChecksumExt = ".sha256"

// checksumVerifier writes and checks sha256sum-style sidecar files
type checksumVerifier struct{}

// NewChecksumVerifier creates a new checksum verifier
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewChecksumVerifier() *checksumVerifier {
	return &checksumVerifier{}
}

// CalculateChecksum calculates the SHA256 checksum of a file
func (v *checksumVerifier) CalculateChecksum(filePath string) (string, error) {
	//nolint:gosec // G304: File path is an artifact produced or named by the operator
	f, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("failed to hash file: %w", err)
	}

	return hex.EncodeToString(h.Sum(nil)), nil
}

// WriteChecksumFile writes "<sum>  <basename>" to <filePath>.sha256 so the
// sidecar can be checked with sha256sum -c
func (v *checksumVerifier) WriteChecksumFile(filePath string) (string, string, error) {
	sum, err := v.CalculateChecksum(filePath)
	if err != nil {
		return "", "", err
	}

	sidecar := filePath + ChecksumExt
	content := fmt.Sprintf("%s  %s\n", sum, filepath.Base(filePath))
	//nolint:gosec // G306: checksum sidecars are published next to the artifact
	if err := os.WriteFile(sidecar, []byte(content), 0644); err != nil {
		return "", "", fmt.Errorf("failed to write checksum file: %w", err)
	}
	return sum, sidecar, nil
}

// VerifyChecksumFile checks filePath against its sidecar and returns the sum
func (v *checksumVerifier) VerifyChecksumFile(filePath string) (string, error) {
	//nolint:gosec // G304: sidecar path derived from the artifact path
	data, err := os.ReadFile(filePath + ChecksumExt)
	if err != nil {
		return "", fmt.Errorf("failed to read checksum file: %w", err)
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", fmt.Errorf("checksum file %s is empty", filePath+ChecksumExt)
	}
	expected := strings.ToLower(fields[0])
	if len(fields) > 1 && strings.TrimPrefix(fields[1], "*") != filepath.Base(filePath) {
		return "", fmt.Errorf("checksum file names %s, not %s", fields[1], filepath.Base(filePath))
	}

	actual, err := v.CalculateChecksum(filePath)
	if err != nil {
		return "", err
	}
	if actual != expected {
		return "", fmt.Errorf("checksum mismatch: expected %s, got %s", expected, actual)
	}
	return actual, nil
}
