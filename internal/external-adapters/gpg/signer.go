package gpg

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ProtonMail/go-crypto/openpgp"
)

// Signer writes armored detached signatures with a single private key
type Signer struct {
	entity *openpgp.Entity
}

// NewSignerFromFile loads the first private key in keyPath and decrypts it
// with passphrase when it is protected
func NewSignerFromFile(keyPath string, passphrase []byte) (*Signer, error) {
	entities, err := readKeyFile(keyPath)
	if err != nil {
		return nil, err
	}

	var entity *openpgp.Entity
	for _, e := range entities {
		if e.PrivateKey != nil {
			entity = e
			break
		}
	}
	if entity == nil {
		return nil, fmt.Errorf("no private key found in %s", keyPath)
	}

	if entity.PrivateKey.Encrypted {
		if len(passphrase) == 0 {
			return nil, fmt.Errorf("private key in %s is encrypted and no passphrase was given", keyPath)
		}
		if err := entity.PrivateKey.Decrypt(passphrase); err != nil {
			return nil, fmt.Errorf("failed to decrypt private key: %w", err)
		}
	}
	for _, sub := range entity.Subkeys {
		if sub.PrivateKey != nil && sub.PrivateKey.Encrypted {
			if err := sub.PrivateKey.Decrypt(passphrase); err != nil {
				return nil, fmt.Errorf("failed to decrypt private subkey: %w", err)
			}
		}
	}

	return &Signer{entity: entity}, nil
}

// Fingerprint returns the signing key's primary fingerprint
func (s *Signer) Fingerprint() string {
	return fmt.Sprintf("%X", s.entity.PrimaryKey.Fingerprint)
}

// SignFile writes <path>.asc and returns its path. The signature is written
// to a temporary file first so a failed signing never leaves a partial .asc.
func (s *Signer) SignFile(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	//nolint:gosec // G304: path is an artifact produced by this run
	data, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open file to sign: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer data.Close()

	sigPath := path + SignatureExt
	tmp, err := os.CreateTemp(filepath.Dir(sigPath), "."+filepath.Base(sigPath)+".*")
	if err != nil {
		return "", fmt.Errorf("failed to create signature file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := openpgp.ArmoredDetachSign(tmp, s.entity, data, nil); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to sign %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to write signature: %w", err)
	}
	//nolint:gosec // G302: signatures are published next to the artifact
	if err := os.Chmod(tmpPath, 0644); err != nil {
		_ = os.Remove(tmpPath)
		return "", err
	}
	if err := os.Rename(tmpPath, sigPath); err != nil {
		_ = os.Remove(tmpPath)
		return "", fmt.Errorf("failed to move signature into place: %w", err)
	}
	return sigPath, nil
}
