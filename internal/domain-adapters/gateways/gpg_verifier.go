package gateways

import (
	"context"
	"fmt"

	"github.com/ochairo/fidforge/internal/external-adapters/gpg"
)

// gpgSigner wraps the external GPG adapter to implement ArtifactSigner
type gpgSigner struct {
	signer *gpg.Signer
}

// NewGPGSigner loads the signing key from keyFile
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewGPGSigner(keyFile string, passphrase []byte) (*gpgSigner, error) {
	s, err := gpg.NewSignerFromFile(keyFile, passphrase)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return &gpgSigner{signer: s}, nil
}

// SignFile writes a detached armored signature next to path
func (g *gpgSigner) SignFile(ctx context.Context, path string) (string, error) {
	sigPath, err := g.signer.SignFile(ctx, path)
	if err != nil {
		return "", fmt.Errorf("GPG signing failed: %w", err)
	}
	return sigPath, nil
}

// Fingerprint returns the signing key fingerprint
func (g *gpgSigner) Fingerprint() string {
	return g.signer.Fingerprint()
}

// gpgVerifier wraps the external GPG adapter for artifact verification
type gpgVerifier struct {
	verifier *gpg.Verifier
}

// NewGPGVerifier creates a new GPG verifier gateway
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewGPGVerifier() *gpgVerifier {
	return &gpgVerifier{
		verifier: gpg.NewVerifier(),
	}
}

// ImportGPGKeyFromFile imports a GPG key from a local file
func (g *gpgVerifier) ImportGPGKeyFromFile(keyPath string) error {
	if err := g.verifier.ImportKeyFromFile(keyPath); err != nil {
		return fmt.Errorf("failed to import GPG key from file: %w", err)
	}
	return nil
}

// VerifyArtifactSignature checks <artifact>.asc and returns the signer's fingerprint
func (g *gpgVerifier) VerifyArtifactSignature(artifactPath string) (string, error) {
	fingerprint, err := g.verifier.VerifySignatureFromFile(artifactPath, artifactPath+gpg.SignatureExt)
	if err != nil {
		return "", fmt.Errorf("GPG signature verification failed: %w", err)
	}
	return fingerprint, nil
}

// GetKeyringSize returns the number of keys loaded
func (g *gpgVerifier) GetKeyringSize() int {
	return g.verifier.GetKeyringSize()
}
