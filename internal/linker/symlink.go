package linker

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/teyk0o/simsforge/internal/domain"
)

// errNotADirectory reports that Deploy's src does not resolve to a
// directory. The cache only ever hands Activator extracted-tree roots, so
// anything else means the caller passed a single file (the teacher's model)
// or a stale/removed cache entry.
func errNotADirectory(src string) error {
	return domain.NewError(domain.ErrKindSymlinkFailed, "linker.Deploy", fmt.Errorf("source is not a directory: %s", src))
}

// SymlinkLinker deploys mods as a directory symlink pointing at the cache's
// extracted tree for one fingerprint.
type SymlinkLinker struct{}

// NewSymlink creates a new symlink linker.
func NewSymlink() *SymlinkLinker {
	return &SymlinkLinker{}
}

// Deploy creates a directory symlink at dst pointing at src, replacing a
// file, symlink or empty directory already at dst; a non-empty directory at
// dst makes Deploy fail and is left as it is. Unlike the teacher's per-file linker,
// src must already be a directory: SimsForge always symlinks a cache
// entry's whole extracted tree, never a single mod package file.
func (l *SymlinkLinker) Deploy(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return fmt.Errorf("statting source: %w", err)
	}
	if !srcInfo.IsDir() {
		return errNotADirectory(src)
	}

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return fmt.Errorf("creating destination dir: %w", err)
	}

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing existing entry: %w", err)
	}

	if err := os.Symlink(src, dst); err != nil {
		return fmt.Errorf("creating symlink: %w", err)
	}

	return nil
}

// Undeploy removes the symlink at dst. It is a no-op if dst is already
// absent, and refuses to remove anything that is not a symlink.
func (l *SymlinkLinker) Undeploy(dst string) error {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("checking entry: %w", err)
	}

	if info.Mode()&os.ModeSymlink == 0 {
		return fmt.Errorf("not a symlink: %s", dst)
	}

	if err := os.Remove(dst); err != nil {
		return fmt.Errorf("removing symlink: %w", err)
	}

	return nil
}

// IsDeployed reports whether dst exists and is a symlink.
func (l *SymlinkLinker) IsDeployed(dst string) (bool, error) {
	info, err := os.Lstat(dst)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return info.Mode()&os.ModeSymlink != 0, nil
}

// Method returns domain.LinkSymlink.
func (l *SymlinkLinker) Method() domain.LinkMethod {
	return domain.LinkSymlink
}
