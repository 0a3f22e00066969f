// Package entities defines core domain models and data structures.
package entities

import (
	"fmt"
	"strings"
)

// SdkRoot represents one versioned SDK installation on disk
type SdkRoot struct {
	Version string // e.g., "r09", "dc_sdk_r11"
	Path    string
}

// Validate checks that the SDK root carries a usable version tag and path
func (s SdkRoot) Validate() error {
	if strings.TrimSpace(s.Version) == "" {
		return &ConfigurationError{Field: "sdk.version", Reason: "version tag is empty"}
	}
	if strings.ContainsAny(s.Version, `/\:*?"<>|`) {
		return &ConfigurationError{Field: "sdk.version", Reason: fmt.Sprintf("version tag %q contains path characters", s.Version)}
	}
	// The tag names directories and files below the output dir
	if strings.HasPrefix(s.Version, ".") {
		return &ConfigurationError{Field: "sdk.version", Reason: fmt.Sprintf("version tag %q must not start with a dot", s.Version)}
	}
	if strings.TrimSpace(s.Path) == "" {
		return &ConfigurationError{Field: "sdk.path", Reason: fmt.Sprintf("no root path for SDK %s", s.Version)}
	}
	return nil
}

// Default Dreamcast target: SH-4, little endian, 32-bit, loaded at the
// start of main RAM used by 1ST_READ.BIN.
const (
	DefaultArchitecture = "SuperH4"
	DefaultEndianness   = "LE"
	DefaultBits         = 32
	DefaultVariant      = "default"
	DefaultBaseAddress  = uint64(0x8c010000)
)

// ProcessorProfile describes the target the analyzer should assume
type ProcessorProfile struct {
	Architecture string
	Endianness   string // "LE" or "BE"
	Bits         int
	Variant      string
	BaseAddress  uint64
}

// DefaultProcessorProfile returns the Dreamcast SH-4 profile
func DefaultProcessorProfile() ProcessorProfile {
	return ProcessorProfile{
		Architecture: DefaultArchitecture,
		Endianness:   DefaultEndianness,
		Bits:         DefaultBits,
		Variant:      DefaultVariant,
		BaseAddress:  DefaultBaseAddress,
	}
}

// LanguageID renders the profile as a Ghidra language id, e.g. SuperH4:LE:32:default
func (p ProcessorProfile) LanguageID() string {
	variant := p.Variant
	if variant == "" {
		variant = DefaultVariant
	}
	return fmt.Sprintf("%s:%s:%d:%s", p.Architecture, p.Endianness, p.Bits, variant)
}

// BaseAddressHex renders the base address the way the analyzer expects it on the command line
func (p ProcessorProfile) BaseAddressHex() string {
	return fmt.Sprintf("0x%08x", p.BaseAddress)
}

// LittleEndian reports whether the profile targets a little-endian CPU
func (p ProcessorProfile) LittleEndian() bool {
	return strings.EqualFold(p.Endianness, "LE")
}

// Validate checks the profile for values the analyzer would reject
func (p ProcessorProfile) Validate() error {
	if p.Architecture == "" {
		return &ConfigurationError{Field: "processor.architecture", Reason: "architecture is empty"}
	}
	switch strings.ToUpper(p.Endianness) {
	case "LE", "BE":
	default:
		return &ConfigurationError{Field: "processor.endianness", Reason: fmt.Sprintf("unknown endianness %q (want LE or BE)", p.Endianness)}
	}
	switch p.Bits {
	case 16, 32, 64:
	default:
		return &ConfigurationError{Field: "processor.bits", Reason: fmt.Sprintf("unsupported bit width %d", p.Bits)}
	}
	return nil
}
