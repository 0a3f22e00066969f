package entities

import (
	"path"
	"strings"
)

// Convention describes how library folders are laid out under an SDK root
type Convention struct {
	LibraryRoot string   // relative to the SDK root, "." for the root itself
	Patterns    []string // path.Match globs (case-insensitive) for recognized folders
	Extensions  []string // lower-case member extensions, with dot
	IgnoreDirs  []string
	IgnoreFiles []string
}

// DefaultConvention returns the layout used by the Katana/Dreamcast SDKs: every
// top-level folder is a library except demos, samples and the VMU tools.
func DefaultConvention() Convention {
	return Convention{
		LibraryRoot: ".",
		Patterns:    []string{"*"},
		Extensions:  []string{".o", ".a", ".elf", ".obj", ".lib"},
		IgnoreDirs:  []string{"demo", "sample", "vmutool"},
		IgnoreFiles: []string{"copying.lib"},
	}
}

// Recognizes reports whether a folder name matches the convention
func (c Convention) Recognizes(name string) bool {
	lower := strings.ToLower(name)
	if c.IsIgnoredDir(lower) {
		return false
	}
	for _, p := range c.Patterns {
		if ok, err := path.Match(strings.ToLower(p), lower); err == nil && ok {
			return true
		}
	}
	return false
}

// IsIgnoredDir reports whether a single path component names an ignored folder
func (c Convention) IsIgnoredDir(name string) bool {
	for _, d := range c.IgnoreDirs {
		if strings.EqualFold(d, name) {
			return true
		}
	}
	return false
}

// IsIgnoredFile reports whether a file name is explicitly excluded
func (c Convention) IsIgnoredFile(name string) bool {
	for _, f := range c.IgnoreFiles {
		if strings.EqualFold(f, name) {
			return true
		}
	}
	return false
}

// HasExtension reports whether name carries one of the member extensions
func (c Convention) HasExtension(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	for _, e := range c.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Validate checks the convention for unusable patterns
func (c Convention) Validate() error {
	if len(c.Patterns) == 0 {
		return &ConfigurationError{Field: "convention.patterns", Reason: "no folder patterns configured"}
	}
	for _, p := range c.Patterns {
		if _, err := path.Match(p, ""); err != nil {
			return &ConfigurationError{Field: "convention.patterns", Reason: "invalid pattern " + p, Err: err}
		}
	}
	if len(c.Extensions) == 0 {
		return &ConfigurationError{Field: "convention.extensions", Reason: "no member extensions configured"}
	}
	return nil
}
