package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ochairo/fidforge/internal/domain-adapters/gateways"
	"github.com/ochairo/fidforge/internal/domain/services"
	"github.com/ochairo/fidforge/internal/external-adapters/gpg"
)

type verifyOptions struct {
	keyFile      string
	list         bool
	skipChecksum bool
}

func runVerify(_ context.Context, args []string) int {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	var (
		keyFile      = fs.String("key", "", "Public key (.asc) used to check the detached signature")
		list         = fs.Bool("list", false, "List the bundle entries")
		skipChecksum = fs.Bool("skip-checksum", false, "Do not check the .sha256 sidecar")
	)

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, `Usage: fidforge verify <artifact|output-dir> [options]

Verify FID database artifacts against their .sha256 sidecar and, when a
public key is given, their detached .asc signature. Given a directory,
every <version>.fidb.tar.gz directly inside it is verified.

Examples:
  fidforge verify fidb/r09.fidb.tar.gz
  fidforge verify fidb/r09.fidb.tar.gz --key release-key.asc --list
  fidforge verify fidb --key release-key.asc

Options:
`)
		fs.PrintDefaults()
	}

	positional, err := parseArgs(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing flags: %v\n", err)
		return exitConfigError
	}
	if len(positional) < 1 {
		fmt.Fprintf(os.Stderr, "Error: artifact path is required\n\n")
		fs.Usage()
		return exitConfigError
	}
	if len(positional) > 1 {
		fmt.Fprintf(os.Stderr, "Error: unexpected arguments: %v\n\n", positional[1:])
		fs.Usage()
		return exitConfigError
	}

	opts := verifyOptions{keyFile: *keyFile, list: *list, skipChecksum: *skipChecksum}
	target := positional[0]
	info, err := os.Stat(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return exitFailure
	}

	artifacts := []string{target}
	if info.IsDir() {
		sets, err := gateways.NewArtifactFinder(services.ArtifactExt, services.ManifestExt).Find(target)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			return exitFailure
		}
		if len(sets) == 0 {
			fmt.Fprintf(os.Stderr, "Error: no *%s artifacts in %s\n", services.ArtifactExt, target)
			return exitFailure
		}
		artifacts = artifacts[:0]
		for _, s := range sets {
			artifacts = append(artifacts, s.Artifact)
		}
	}

	verified, failed := 0, 0
	for _, artifact := range artifacts {
		v, f := verifyArtifact(artifact, opts)
		verified += v
		failed += f
	}

	fmt.Printf("Summary: %d verified, %d failed\n", verified, failed)
	if verified+failed == 0 {
		fmt.Fprintf(os.Stderr, "Error: no check was run; drop --skip-checksum, or pass --key or --list\n")
		return exitFailure
	}
	if failed > 0 {
		return exitFailure
	}
	return exitOK
}

func verifyArtifact(artifact string, opts verifyOptions) (verified, failed int) {
	fmt.Printf("🔍 Verifying %s\n\n", filepath.Base(artifact))

	if !opts.skipChecksum {
		fmt.Printf("📋 Verifying checksum...\n")
		sum, err := gateways.NewChecksumVerifier().VerifyChecksumFile(artifact)
		if err != nil {
			fmt.Printf("❌ Checksum verification FAILED: %v\n\n", err)
			failed++
		} else {
			fmt.Printf("✅ Checksum verified (sha256 %s)\n\n", sum)
			verified++
		}
	}

	if opts.keyFile != "" {
		fmt.Printf("🔐 Verifying signature...\n")
		fingerprint, err := verifySignature(artifact, opts.keyFile)
		if err != nil {
			fmt.Printf("❌ Signature verification FAILED: %v\n\n", err)
			failed++
		} else {
			fmt.Printf("✅ Signature verified (key %s)\n\n", fingerprint)
			verified++
		}
	} else if fileExists(artifact + gpg.SignatureExt) {
		fmt.Printf("ℹ️  %s present; pass --key to check it\n\n", filepath.Base(artifact+gpg.SignatureExt))
	}

	if opts.list {
		names, err := gateways.NewPackager().ListBundle(artifact)
		if err != nil {
			fmt.Printf("❌ Cannot read bundle: %v\n\n", err)
			failed++
		} else {
			verified++
			fmt.Printf("📦 %s\n", unitCountLabel(names))
			for _, name := range names {
				fmt.Printf("  %s\n", name)
			}
			fmt.Println()
		}
	}
	return verified, failed
}

func verifySignature(artifact, keyFile string) (string, error) {
	verifier := gateways.NewGPGVerifier()
	if err := verifier.ImportGPGKeyFromFile(keyFile); err != nil {
		return "", err
	}
	return verifier.VerifyArtifactSignature(artifact)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
