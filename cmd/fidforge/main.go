package main

import (
	"context"
	"fmt"
	"os"
)

// Process exit codes
const (
	exitOK          = 0 // every SDK produced an artifact
	exitFailure     = 1 // at least one SDK produced no artifact
	exitConfigError = 2 // invalid configuration, nothing was dispatched
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(exitFailure)
	}

	ctx := context.Background()
	command := os.Args[1]

	// Dispatch to subcommand
	switch command {
	case "build":
		os.Exit(runBuild(ctx, os.Args[2:]))
	case "scan":
		os.Exit(runScan(ctx, os.Args[2:]))
	case "verify":
		os.Exit(runVerify(ctx, os.Args[2:]))
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", command)
		printUsage()
		os.Exit(exitFailure)
	}
}

func printUsage() {
	fmt.Println(`fidforge - Ghidra Function ID databases from Dreamcast SDKs

Usage:
  fidforge <command> [options]

Commands:
  build   Analyze every library unit of one or more SDKs and bundle FID databases
  scan    List the library units and analyzer commands without running anything
  verify  Verify an artifact's checksum and signature

Use "fidforge <command> --help" for more information about a command.`)
}
