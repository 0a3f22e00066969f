package main

import (
	"flag"
	"io"
	"strings"
	"testing"
)

func TestParseArgs(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		positional string
		key        string
		list       bool
	}{
		{name: "flags first", args: []string{"--key", "k.asc", "--list", "a.fidb.tar.gz"}, positional: "a.fidb.tar.gz", key: "k.asc", list: true},
		{name: "flags after path", args: []string{"a.fidb.tar.gz", "--key", "k.asc", "--list"}, positional: "a.fidb.tar.gz", key: "k.asc", list: true},
		{name: "mixed", args: []string{"--list", "a.fidb.tar.gz", "--key=k.asc"}, positional: "a.fidb.tar.gz", key: "k.asc", list: true},
		{name: "several positionals", args: []string{"a", "--list", "b"}, positional: "a,b", list: true},
		{name: "no args"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := flag.NewFlagSet("verify", flag.ContinueOnError)
			fs.SetOutput(io.Discard)
			key := fs.String("key", "", "")
			list := fs.Bool("list", false, "")

			positional, err := parseArgs(fs, tt.args)
			if err != nil {
				t.Fatalf("parseArgs() error = %v", err)
			}
			if got := strings.Join(positional, ","); got != tt.positional {
				t.Errorf("positional = %q, want %q", got, tt.positional)
			}
			if *key != tt.key {
				t.Errorf("key = %q, want %q", *key, tt.key)
			}
			if *list != tt.list {
				t.Errorf("list = %v, want %v", *list, tt.list)
			}
		})
	}
}

func TestParseArgs_UnknownFlagAfterPath(t *testing.T) {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	if _, err := parseArgs(fs, []string{"a.fidb.tar.gz", "--bogus"}); err == nil {
		t.Error("expected error for unknown flag after the path")
	}
}

func TestSdkFlags_Set(t *testing.T) {
	var s sdkFlags
	if err := s.Set("r09=/sdk/r09"); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if err := s.Set(" r10 = /sdk/r10 "); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	if got := s.String(); got != "r09=/sdk/r09,r10=/sdk/r10" {
		t.Errorf("String() = %q", got)
	}
	for _, bad := range []string{"r09", "=/sdk", "r09="} {
		if err := s.Set(bad); err == nil {
			t.Errorf("Set(%q) should fail", bad)
		}
	}
}
