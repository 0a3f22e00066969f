package entities

// Compiler families found in Dreamcast SDKs
const (
	CompilerGCC = "gcc" // GNU sh-elf toolchain
	CompilerSHC = "shc" // Hitachi SHC / CodeWarrior
)

// MemberKind describes how a unit member has to be staged before import
type MemberKind string

// Member kinds
const (
	MemberObject     MemberKind = "object"      // copied as-is
	MemberArchive    MemberKind = "archive"     // ar archive, extracted with ar
	MemberSHCLibrary MemberKind = "shc-library" // Hitachi library, split with libsplit and converted with elfcnv
)

// UnitMember is one object or library file belonging to a LibraryUnit
type UnitMember struct {
	Path     string // absolute path
	RelPath  string // slash-separated, relative to the unit folder
	Kind     MemberKind
	Compiler string
	Variant  string // e.g. "m4-single-only", "default"
}

// LibraryUnit groups the object/library files of one SDK folder that share
// a build configuration
type LibraryUnit struct {
	Name       string
	SdkVersion string
	Folder     string // absolute path of the unit folder
	Members    []UnitMember
	Profile    ProcessorProfile
}

// Compilers returns the distinct compilers of the unit's members in first-seen order
func (u *LibraryUnit) Compilers() []string {
	seen := make(map[string]bool)
	var out []string
	for _, m := range u.Members {
		if !seen[m.Compiler] {
			seen[m.Compiler] = true
			out = append(out, m.Compiler)
		}
	}
	return out
}

// MemberPaths returns the absolute member paths in unit order
func (u *LibraryUnit) MemberPaths() []string {
	paths := make([]string, len(u.Members))
	for i, m := range u.Members {
		paths[i] = m.Path
	}
	return paths
}
