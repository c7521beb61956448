// Package linker deploys a cached archive's extracted tree into the game's
// Mods folder as a single directory symlink, or the Windows junction
// equivalent when the target volume cannot grant symlink privileges.
package linker

import "github.com/teyk0o/simsforge/internal/domain"

// Linker deploys and undeploys one mod's directory link.
type Linker interface {
	Deploy(src, dst string) error
	Undeploy(dst string) error
	IsDeployed(dst string) (bool, error)
	Method() domain.LinkMethod
}

// New returns the Linker for method. LinkMethod is restricted to
// LinkSymlink and LinkJunction; there is no hard-copy fallback, since
// copying would break the cache's "one extracted tree, many profiles"
// invariant.
func New(method domain.LinkMethod) Linker {
	if method == domain.LinkJunction {
		return NewJunction()
	}
	return NewSymlink()
}
