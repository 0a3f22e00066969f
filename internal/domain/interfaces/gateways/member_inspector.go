package gateways

import "github.com/ochairo/fidforge/internal/domain/entities"

// MemberInfo is what the inspector learned from a member's header bytes
type MemberInfo struct {
	IsArchive bool   // starts with the "!<arch>" magic
	IsELF     bool   // starts with the ELF magic
	Machine   string // ELF machine, e.g. "EM_SH"
	Warnings  []string
}

// MemberInspector reads the headers of candidate member files
type MemberInspector interface {
	Inspect(path string, profile entities.ProcessorProfile) (*MemberInfo, error)
}
