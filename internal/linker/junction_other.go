//go:build !windows

package linker

import "github.com/teyk0o/simsforge/internal/domain"

// JunctionLinker has no NTFS equivalent outside Windows; POSIX platforms
// always have directory-symlink privilege, so this type delegates to
// SymlinkLinker rather than attempting anything junction-specific.
type JunctionLinker struct {
	SymlinkLinker
}

// NewJunction returns a linker that behaves like SymlinkLinker on
// non-Windows platforms.
func NewJunction() *JunctionLinker {
	return &JunctionLinker{}
}

// Method returns domain.LinkJunction so callers that persisted this choice
// on a Windows machine still round-trip consistently when read back here.
func (l *JunctionLinker) Method() domain.LinkMethod {
	return domain.LinkJunction
}
