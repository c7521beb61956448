// Package reset implements the two bulk-teardown maintenance operations:
// a full factory reset and a cache-only clear. The factory reset's
// deletions run in parallel, bounded by the Disk Profiler's pool size.
// Grounded on dreamdenizen-factorio-mod-updater's updater package, whose
// ResolveMetadata/downloadAll use an errgroup.Group with SetLimit plus a mutex-guarded result slice for
// bounded concurrent work; this package generalizes that pattern from
// "N concurrent HTTP fetches" to "N concurrent directory removals".
package reset

import (
	"context"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/teyk0o/simsforge/internal/cache"
	"github.com/teyk0o/simsforge/internal/diskprofiler"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/logging"
	"github.com/teyk0o/simsforge/internal/profilestore"
)

// PreferenceClearer clears user preferences that live outside the core's
// own stores (UI-side settings, window geometry, and the like). A nil
// clearer means resetEverything simply skips that step.
type PreferenceClearer interface {
	ClearPreferences() error
}

// Manager performs the bulk-teardown operations over a Cache, a
// profilestore.Store, and a DiskProfiler-derived concurrency bound.
type Manager struct {
	cache    *cache.Cache
	profiles *profilestore.Store
	profiler *diskprofiler.Profiler
	prefs    PreferenceClearer
}

// New builds a Manager. prefs may be nil.
func New(c *cache.Cache, profiles *profilestore.Store, profiler *diskprofiler.Profiler, prefs PreferenceClearer) *Manager {
	return &Manager{cache: c, profiles: profiles, profiler: profiler, prefs: prefs}
}

// Outcome reports what ResetEverything did. Individual per-item failures
// are collected in Errors rather than aborting the whole operation — a
// factory reset should make as much progress as it safely can.
type Outcome struct {
	ModsFolderEntriesRemoved int
	ProfilesRemoved          int
	CacheEntriesRemoved      int
	CacheBytesFreed          int64
	Errors                   []error
}

// ResetEverything deactivates the active profile, deletes every top-level
// directory in modsFolder (regular files are preserved), deletes every
// profile (releasing its cache references first so GC can reap them),
// garbage-collects the cache, and finally clears external preferences.
// Steps run in the order spec.md §4.H names; within steps 2 and 3, work
// is parallelized and bounded by DiskProfiler.PoolSize().
func (m *Manager) ResetEverything(ctx context.Context, modsFolder string) (Outcome, error) {
	var out Outcome

	if err := m.profiles.SetActive(""); err != nil {
		return out, err
	}

	removed, errs := m.deleteTopLevelDirs(ctx, modsFolder)
	out.ModsFolderEntriesRemoved = removed
	out.Errors = append(out.Errors, errs...)

	profiles := m.profiles.List()
	ids := make([]domain.ProfileID, 0, len(profiles))
	for _, p := range profiles {
		ids = append(ids, p.ID)
	}
	removedProfiles, errs := m.deleteProfiles(ctx, ids)
	out.ProfilesRemoved = removedProfiles
	out.Errors = append(out.Errors, errs...)

	gcRemoved, gcFreedBytes, err := m.cache.GC()
	out.CacheEntriesRemoved = gcRemoved
	out.CacheBytesFreed = gcFreedBytes
	if err != nil {
		out.Errors = append(out.Errors, err)
	}

	if m.prefs != nil {
		if err := m.prefs.ClearPreferences(); err != nil {
			out.Errors = append(out.Errors, err)
		}
	}

	return out, nil
}

// ClearCache garbage-collects orphaned cache entries and removes any
// leftover temp directories under tempRoot (partial downloads from an
// install that crashed before its own cleanup stage ran). Returns the
// entry count and byte count the GC pass reclaimed.
func (m *Manager) ClearCache(tempRoot string) (removed int, freedBytes int64, err error) {
	removed, freedBytes, err = m.cache.GC()
	if err != nil {
		return removed, freedBytes, err
	}

	entries, readErr := os.ReadDir(tempRoot)
	if readErr != nil {
		if os.IsNotExist(readErr) {
			return removed, freedBytes, nil
		}
		return removed, freedBytes, nil
	}
	for _, e := range entries {
		if err := os.RemoveAll(filepath.Join(tempRoot, e.Name())); err != nil {
			logging.Warn("reset: failed clearing stale temp dir", "name", e.Name(), "error", err)
		}
	}
	return removed, freedBytes, nil
}

// deleteTopLevelDirs removes every directory (not regular file) directly
// under modsFolder. A missing modsFolder is not an error: there is
// nothing to delete.
func (m *Manager) deleteTopLevelDirs(ctx context.Context, modsFolder string) (int, []error) {
	entries, err := os.ReadDir(modsFolder)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, []error{err}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(m.poolSize())

	var mu sync.Mutex
	var errs []error
	removed := 0

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		name := e.Name()
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return nil
			default:
			}
			if err := os.RemoveAll(filepath.Join(modsFolder, name)); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			removed++
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return removed, errs
}

// deleteProfiles releases each profile's cache references and deletes it
// from the store, bounded the same way as deleteTopLevelDirs.
func (m *Manager) deleteProfiles(ctx context.Context, ids []domain.ProfileID) (int, []error) {
	eg, egCtx := errgroup.WithContext(ctx)
	eg.SetLimit(m.poolSize())

	var mu sync.Mutex
	var errs []error
	removed := 0

	for _, id := range ids {
		id := id
		eg.Go(func() error {
			select {
			case <-egCtx.Done():
				return nil
			default:
			}
			if err := m.cache.DetachProfile(id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			if err := m.profiles.Delete(id); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
				return nil
			}
			mu.Lock()
			removed++
			mu.Unlock()
			return nil
		})
	}
	_ = eg.Wait()

	return removed, errs
}

func (m *Manager) poolSize() int {
	if m.profiler == nil {
		return domain.DefaultPoolSize
	}
	n := m.profiler.PoolSize()
	if n <= 0 {
		return domain.DefaultPoolSize
	}
	return n
}
