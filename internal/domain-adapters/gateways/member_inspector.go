// Package gateways provides adapter implementations for external services and tools.
package gateways

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/ochairo/fidforge/internal/domain/entities"
	"github.com/ochairo/fidforge/internal/domain/interfaces/gateways"
)

var (
	arMagic  = []byte("!<arch>\n")
	elfMagic = []byte(elf.ELFMAG)
)

// memberInspector classifies SDK members using debug/elf. It only reads
// headers; nothing is executed.
type memberInspector struct{}

// NewMemberInspector creates a new member inspector
//
//nolint:revive // unexported-return: Intentionally returns concrete type for testability
func NewMemberInspector() *memberInspector {
	return &memberInspector{}
}

// Inspect reads the magic bytes of path and, for ELF files, checks the
// header against the target profile. Mismatches are warnings: SDKs ship
// host tools next to libraries and the analyzer decides what to import.
func (i *memberInspector) Inspect(path string, profile entities.ProcessorProfile) (*gateways.MemberInfo, error) {
	//nolint:gosec // G304: path comes from walking the configured SDK root
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open member: %w", err)
	}
	//nolint:errcheck // Defer close on read-only file
	defer f.Close()

	header := make([]byte, len(arMagic))
	n, err := io.ReadFull(f, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to read member header: %w", err)
	}
	header = header[:n]

	info := &gateways.MemberInfo{}
	switch {
	case bytes.HasPrefix(header, arMagic):
		info.IsArchive = true
	case bytes.HasPrefix(header, elfMagic):
		info.IsELF = true
		i.checkELF(f, profile, info)
	}

	return info, nil
}

func (i *memberInspector) checkELF(r io.ReaderAt, profile entities.ProcessorProfile, info *gateways.MemberInfo) {
	ef, err := elf.NewFile(r)
	if err != nil {
		info.Warnings = append(info.Warnings, fmt.Sprintf("unreadable ELF header: %v", err))
		return
	}

	info.Machine = ef.Machine.String()
	if ef.Machine != elf.EM_SH {
		info.Warnings = append(info.Warnings, fmt.Sprintf("ELF machine %s is not SuperH", ef.Machine))
	}

	little := ef.ByteOrder == binary.LittleEndian
	if little != profile.LittleEndian() {
		info.Warnings = append(info.Warnings, fmt.Sprintf("ELF byte order %s does not match profile %s", ef.ByteOrder, profile.Endianness))
	}

	wantClass := elf.ELFCLASS32
	if profile.Bits == 64 {
		wantClass = elf.ELFCLASS64
	}
	if ef.Class != wantClass {
		info.Warnings = append(info.Warnings, fmt.Sprintf("ELF class %s does not match %d-bit profile", ef.Class, profile.Bits))
	}
}
