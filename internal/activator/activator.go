// Package activator reconciles the game's Mods folder against a profile's
// enabled mods, deploying one directory symlink per mod and leaving every
// other entry (including other programs' symlinks) untouched. Grounded in
// the teacher's internal/linker package: Deploy/Undeploy map directly onto
// linker.Linker, and the top-level-scan-and-classify algorithm generalizes
// the teacher's single Linker.IsDeployed check to a whole-directory
// reconciliation pass.
package activator

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/linker"
	"github.com/teyk0o/simsforge/internal/logging"
)

// DesiredLink is one entry the caller wants reflected in modsFolder.
type DesiredLink struct {
	SourcePath string
	SafeName   string
}

// Outcome reports what Reconcile did.
type Outcome struct {
	Created   []string
	Removed   []string
	Unchanged []string
	Errors    []error
}

var unsafeChar = regexp.MustCompile(`[^A-Za-z0-9_-]`)
var repeatedUnderscore = regexp.MustCompile(`_{2,}`)

const maxSafeNameLength = 100

// Sanitize derives a filesystem-safe directory name from an arbitrary
// display name. It is idempotent: Sanitize(Sanitize(x)) == Sanitize(x).
func Sanitize(name string) string {
	s := unsafeChar.ReplaceAllString(name, "_")
	s = repeatedUnderscore.ReplaceAllString(s, "_")
	s = strings.Trim(s, "_")
	if s == "" {
		s = "mod"
	}
	if len(s) > maxSafeNameLength {
		s = strings.TrimRight(s[:maxSafeNameLength], "_")
	}
	return s
}

// NamedMod is the minimal information DisambiguateNames needs to derive a
// collision-free safe name for one mod.
type NamedMod struct {
	DisplayName string
	Fingerprint domain.Fingerprint
}

// DisambiguateNames sanitizes every mod's display name and appends a short
// fingerprint-prefix suffix to any that collide after sanitization, so the
// resulting safe names are unique within a single Reconcile call.
func DisambiguateNames(mods []NamedMod) map[domain.Fingerprint]string {
	base := make(map[domain.Fingerprint]string, len(mods))
	seen := make(map[string]int)
	for _, m := range mods {
		name := Sanitize(m.DisplayName)
		base[m.Fingerprint] = name
		seen[name]++
	}

	out := make(map[domain.Fingerprint]string, len(mods))
	for _, m := range mods {
		name := base[m.Fingerprint]
		if seen[name] > 1 {
			name = fmt.Sprintf("%s_%s", name, domain.ShortPrefix(m.Fingerprint, 8))
		}
		out[m.Fingerprint] = name
	}
	return out
}

// Activator reconciles one or more Mods folders against a desired symlink
// set. A per-modsFolder mutex (mirroring the teacher's source.Registry
// RWMutex-guarded map idiom) keeps concurrent Reconcile calls for the same
// folder from interleaving.
type Activator struct {
	linker linker.Linker

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

// New returns an Activator that deploys links using method.
func New(method domain.LinkMethod) *Activator {
	return &Activator{
		linker: linker.New(method),
		locks:  make(map[string]*sync.Mutex),
	}
}

func (a *Activator) lockFor(modsFolder string) *sync.Mutex {
	a.locksMu.Lock()
	defer a.locksMu.Unlock()
	m, ok := a.locks[modsFolder]
	if !ok {
		m = &sync.Mutex{}
		a.locks[modsFolder] = m
	}
	return m
}

// Reconcile makes modsFolder's top-level contents match desired exactly,
// for entries this Activator owns. modsFolder missing is reported as a
// non-fatal error via the caller's precondition check (see spec.md §4.G,
// which skips activation silently when modsFolder is absent); Reconcile
// itself requires the folder to exist.
func (a *Activator) Reconcile(modsFolder, cacheRoot string, desired []DesiredLink) (Outcome, error) {
	mu := a.lockFor(modsFolder)
	mu.Lock()
	defer mu.Unlock()

	var out Outcome

	entries, err := os.ReadDir(modsFolder)
	if err != nil {
		return out, fmt.Errorf("reading mods folder: %w", err)
	}

	desiredByName := make(map[string]DesiredLink, len(desired))
	for _, d := range desired {
		desiredByName[d.SafeName] = d
	}

	ours := make(map[string]string) // safeName -> current target
	for _, ent := range entries {
		path := filepath.Join(modsFolder, ent.Name())
		info, err := os.Lstat(path)
		if err != nil {
			out.Errors = append(out.Errors, domain.NewError(domain.ErrKindSymlinkFailed, "activator.Reconcile", fmt.Errorf("stat %s: %w", ent.Name(), err)))
			continue
		}
		if info.Mode()&os.ModeSymlink == 0 {
			continue // regular file/dir: user content, untouched
		}
		target, err := os.Readlink(path)
		if err != nil {
			continue // unreadable link, treat as foreign, untouched
		}
		if !strings.HasPrefix(target, cacheRoot) {
			continue // other symlink, not ours
		}
		ours[ent.Name()] = target
	}

	for name, target := range ours {
		d, wanted := desiredByName[name]
		if !wanted || d.SourcePath != target {
			path := filepath.Join(modsFolder, name)
			if err := a.linker.Undeploy(path); err != nil {
				out.Errors = append(out.Errors, domain.NewError(domain.ErrKindSymlinkFailed, "activator.Reconcile", fmt.Errorf("removing stale link %s: %w", name, err)))
				continue
			}
			out.Removed = append(out.Removed, name)
			logging.Info("activator: removed stale link", "name", name)
		}
	}

	for _, d := range desired {
		path := filepath.Join(modsFolder, d.SafeName)
		if target, stillOurs := ours[d.SafeName]; stillOurs && target == d.SourcePath {
			out.Unchanged = append(out.Unchanged, d.SafeName)
			continue
		}
		if err := a.linker.Deploy(d.SourcePath, path); err != nil {
			out.Errors = append(out.Errors, domain.NewError(domain.ErrKindSymlinkFailed, "activator.Reconcile", fmt.Errorf("creating link %s: %w", d.SafeName, err)))
			continue
		}
		out.Created = append(out.Created, d.SafeName)
		logging.Info("activator: created link", "name", d.SafeName, "source", d.SourcePath)
	}

	return out, nil
}
