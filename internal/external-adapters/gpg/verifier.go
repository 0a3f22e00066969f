// Package gpg provides OpenPGP signing and signature verification for
// FID database artifacts.
package gpg

import (
	"fmt"
	"io"
	"os"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// SignatureExt is appended to an artifact path to form its detached signature
const SignatureExt = ".asc"

const armoredSignaturePrefix = "-----BEGIN PGP SIGNATURE---"

// Verifier checks detached signatures using ProtonMail's go-crypto, a
// maintained fork of golang.org/x/crypto/openpgp
type Verifier struct {
	keyring openpgp.EntityList
}

// NewVerifier creates a new GPG verifier
func NewVerifier() *Verifier {
	return &Verifier{keyring: make(openpgp.EntityList, 0)}
}

// ImportKeyFromFile imports a GPG key from a file
func (v *Verifier) ImportKeyFromFile(keyPath string) error {
	entities, err := readKeyFile(keyPath)
	if err != nil {
		return err
	}
	v.keyring = append(v.keyring, entities...)
	return nil
}

// VerifySignatureFromFile verifies a detached signature from a local file
// and returns the fingerprint of the key that made it
func (v *Verifier) VerifySignatureFromFile(filePath, sigPath string) (string, error) {
	if len(v.keyring) == 0 {
		return "", fmt.Errorf("no GPG keys imported, call ImportKeyFromFile first")
	}

	//nolint:gosec // G304: sigPath is user-provided for GPG verification
	sigFile, err := os.Open(sigPath)
	if err != nil {
		return "", fmt.Errorf("failed to open signature file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer sigFile.Close()

	//nolint:gosec // G304: filePath is user-provided for GPG verification
	dataFile, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open data file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer dataFile.Close()

	// Peek at signature file to determine if it's armored
	peekBuf := make([]byte, len(armoredSignaturePrefix))
	n, _ := io.ReadFull(sigFile, peekBuf)
	isArmored := n == len(peekBuf) && string(peekBuf) == armoredSignaturePrefix

	if _, seekErr := sigFile.Seek(0, io.SeekStart); seekErr != nil {
		return "", fmt.Errorf("failed to reset signature file: %w", seekErr)
	}

	var signer *openpgp.Entity
	if isArmored {
		signer, err = openpgp.CheckArmoredDetachedSignature(v.keyring, dataFile, sigFile, nil)
	} else {
		signer, err = openpgp.CheckDetachedSignature(v.keyring, dataFile, sigFile, nil)
	}
	if err != nil {
		return "", fmt.Errorf("signature verification failed: %w", err)
	}

	return fmt.Sprintf("%X", signer.PrimaryKey.Fingerprint), nil
}

// GetKeyringSize returns the number of keys in the keyring
func (v *Verifier) GetKeyringSize() int {
	return len(v.keyring)
}

func readKeyFile(keyPath string) (openpgp.EntityList, error) {
	//nolint:gosec // G304: keyPath is user-provided for GPG key import
	f, err := os.Open(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open key file: %w", err)
	}
	//nolint:errcheck // Defer close
	defer f.Close()

	entities, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		// Try reading as binary
		if _, seekErr := f.Seek(0, io.SeekStart); seekErr != nil {
			return nil, fmt.Errorf("failed to reset file: %w", seekErr)
		}
		entities, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return nil, fmt.Errorf("failed to read key: %w", err)
		}
	}

	if len(entities) == 0 {
		return nil, fmt.Errorf("no keys found in file")
	}
	return entities, nil
}
