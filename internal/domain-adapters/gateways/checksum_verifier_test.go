package gateways

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// TestCalculateChecksum tests SHA256 checksum calculation
func TestCalculateChecksum(t *testing.T) {
	tests := []struct {
		name         string
		content      []byte
		wantChecksum string // Known SHA256 hash
	}{
		{
			name:         "empty file",
			content:      []byte(""),
			wantChecksum: "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:         "simple content",
			content:      []byte("Hello, World!"),
			wantChecksum: "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			testFile := filepath.Join(t.TempDir(), "test.fidb")
			if err := os.WriteFile(testFile, tt.content, 0600); err != nil {
				t.Fatalf("Failed to create test file: %v", err)
			}

			checksum, err := NewChecksumVerifier().CalculateChecksum(testFile)
			if err != nil {
				t.Fatalf("CalculateChecksum() error = %v", err)
			}
			if checksum != tt.wantChecksum {
				t.Errorf("CalculateChecksum() = %v, want %v", checksum, tt.wantChecksum)
			}
		})
	}
}

func TestChecksumFile_RoundTrip(t *testing.T) {
	artifact := filepath.Join(t.TempDir(), "R09.fidb.tar.gz")
	if err := os.WriteFile(artifact, []byte("Hello, World!"), 0600); err != nil {
		t.Fatal(err)
	}

	verifier := NewChecksumVerifier()
	sum, sidecar, err := verifier.WriteChecksumFile(artifact)
	if err != nil {
		t.Fatalf("WriteChecksumFile() error = %v", err)
	}
	if sidecar != artifact+".sha256" {
		t.Errorf("sidecar = %s, want %s.sha256", sidecar, artifact)
	}

	content, _ := os.ReadFile(sidecar)
	want := "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f  R09.fidb.tar.gz\n"
	if string(content) != want {
		t.Errorf("sidecar content = %q, want %q", content, want)
	}

	got, err := verifier.VerifyChecksumFile(artifact)
	if err != nil {
		t.Fatalf("VerifyChecksumFile() error = %v", err)
	}
	if got != sum {
		t.Errorf("VerifyChecksumFile() = %s, want %s", got, sum)
	}
}

func TestVerifyChecksumFile_Failures(t *testing.T) {
	tests := []struct {
		name    string
		sidecar string // empty means no sidecar
		want    string
	}{
		{name: "missing sidecar", want: "failed to read checksum file"},
		{name: "empty sidecar", sidecar: "\n", want: "is empty"},
		{name: "wrong file name", sidecar: strings.Repeat("0", 64) + "  other.tar.gz\n", want: "names other.tar.gz"},
		{name: "mismatch", sidecar: strings.Repeat("0", 64) + "  R09.fidb.tar.gz\n", want: "checksum mismatch"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			artifact := filepath.Join(t.TempDir(), "R09.fidb.tar.gz")
			if err := os.WriteFile(artifact, []byte("bundle"), 0600); err != nil {
				t.Fatal(err)
			}
			if tt.sidecar != "" {
				if err := os.WriteFile(artifact+".sha256", []byte(tt.sidecar), 0600); err != nil {
					t.Fatal(err)
				}
			}

			_, err := NewChecksumVerifier().VerifyChecksumFile(artifact)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("VerifyChecksumFile() error = %v, want %q", err, tt.want)
			}
		})
	}
}
