// Package cache is the content-addressed mod archive store: one extracted
// tree per fingerprint, shared read-only across every profile that
// references it, reference-counted for garbage collection. Layout and
// crash-safety follow spec.md §4.D; admission path layout is grounded on
// the teacher's internal/storage/cache.Cache.ModPath, generalized from
// (gameID, sourceID, modID, version) keys to a single content-address key.
package cache

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/teyk0o/simsforge/internal/archive"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/fsutil"
	"github.com/teyk0o/simsforge/internal/logging"
	"github.com/teyk0o/simsforge/internal/storage/db"
)

// Cache is the content-addressed archive store rooted at a directory
// holding one subdirectory per fingerprint plus a top-level index.
type Cache struct {
	rootDir    string
	indexPath  string
	inspector  *archive.Inspector
	accel      *db.DB // optional read-through accelerator; nil is valid

	mu    sync.RWMutex
	index *domain.CacheIndex

	sf singleflight.Group
}

// New creates a Cache rooted at rootDir, persisting its index at
// indexPath, and loads (or self-heals) its state. accel may be nil.
func New(rootDir, indexPath string, inspector *archive.Inspector, accel *db.DB) (*Cache, error) {
	c := &Cache{
		rootDir:   rootDir,
		indexPath: indexPath,
		inspector: inspector,
		accel:     accel,
	}

	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, fmt.Errorf("creating cache root: %w", err)
	}

	idx, err := loadOrHeal(indexPath)
	if err != nil {
		return nil, err
	}
	c.index = idx

	if accel != nil {
		if err := accel.RebuildFingerprintIndex(idx); err != nil {
			logging.Warn("cache: failed rebuilding sqlite accelerator", "error", err)
		}
	}

	return c, nil
}

// loadOrHeal loads the CacheIndex at path, or initializes an empty one if
// absent. A corrupt (unparseable) index is renamed aside and replaced with
// an empty one, per spec.md §7's CacheCorrupt self-heal.
func loadOrHeal(path string) (*domain.CacheIndex, error) {
	var idx domain.CacheIndex
	err := fsutil.ReadJSON(path, &idx)
	switch {
	case err == nil:
		if idx.Version > domain.CurrentCacheIndexVersion {
			return nil, domain.NewError(domain.ErrKindSchemaTooNew, "cache.Load", fmt.Errorf("cache.index.json version %d newer than supported %d", idx.Version, domain.CurrentCacheIndexVersion))
		}
		if idx.Entries == nil {
			idx.Entries = make(map[domain.Fingerprint]*domain.CachedArchive)
		}
		return &idx, nil
	case os.IsNotExist(err):
		return domain.NewCacheIndex(), nil
	default:
		quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
		if renameErr := os.Rename(path, quarantined); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, domain.NewError(domain.ErrKindCacheCorrupt, "cache.Load", fmt.Errorf("quarantining corrupt index: %w", renameErr))
		}
		logging.Warn("cache: index corrupt, reinitialized empty", "quarantined_to", quarantined, "parse_error", err)
		return domain.NewCacheIndex(), nil
	}
}

func (c *Cache) persist() error {
	if err := fsutil.WriteJSONAtomic(c.indexPath, c.index); err != nil {
		return domain.NewError(domain.ErrKindCacheCorrupt, "cache.persist", err)
	}
	return nil
}

// filesDir returns "<rootDir>/<fingerprint>/files".
func (c *Cache) filesDir(fp domain.Fingerprint) string {
	return fmt.Sprintf("%s/%s/files", c.rootDir, fp.Encoded())
}

// PathFor returns the extracted directory for fingerprint. Callers are
// responsible for confirming the entry exists via Get first.
func (c *Cache) PathFor(fp domain.Fingerprint) string {
	return c.filesDir(fp)
}

// Root returns the cache's root directory, used by the Activator to
// classify a symlink as ours (its target must fall under this prefix).
func (c *Cache) Root() string {
	return c.rootDir
}

// ReleaseProfileFingerprint removes profileID from exactly one entry's
// usedBy set, leaving every other entry untouched. Used by the Installer's
// update/rollback path, where a profile's reference moves from one
// fingerprint to another rather than being dropped entirely
// (DetachProfile would remove it from every entry).
func (c *Cache) ReleaseProfileFingerprint(fp domain.Fingerprint, profileID domain.ProfileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.index.Entries[fp]
	if !ok {
		return nil
	}
	entry.RemoveUser(profileID)
	return c.persist()
}

// Get returns the CachedArchive for fingerprint, or false if absent.
func (c *Cache) Get(fp domain.Fingerprint) (*domain.CachedArchive, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.index.Entries[fp]
	return entry, ok
}

// Admit computes archivePath's fingerprint, then either attaches profileID
// to an existing entry or extracts archivePath into a new one. Concurrent
// Admit calls for the same fingerprint serialize on a singleflight key so
// at most one extraction happens; the loser observes the winner's result.
func (c *Cache) Admit(archivePath string, remoteModID int64, archiveName string, profileID domain.ProfileID) (*domain.CachedArchive, error) {
	fp, byteSize, err := fingerprintFile(archivePath)
	if err != nil {
		return nil, domain.NewError(domain.ErrKindExtractionFailed, "cache.Admit", err)
	}

	result, err, shared := c.sf.Do(string(fp), func() (interface{}, error) {
		return c.admitLocked(fp, archivePath, remoteModID, archiveName, byteSize, profileID)
	})
	if err != nil {
		return nil, err
	}
	entry := result.(*domain.CachedArchive)
	if shared {
		// A shared result may have been admitted on behalf of another profile.
		c.mu.Lock()
		if !entry.UsedBy[profileID] {
			entry.AddUser(profileID)
			err = c.persist()
		}
		c.mu.Unlock()
		if err != nil {
			return nil, err
		}
	}
	return entry, nil
}

func (c *Cache) admitLocked(fp domain.Fingerprint, archivePath string, remoteModID int64, archiveName string, byteSize int64, profileID domain.ProfileID) (*domain.CachedArchive, error) {
	c.mu.Lock()
	if existing, ok := c.index.Entries[fp]; ok {
		existing.AddUser(profileID)
		if err := c.persist(); err != nil {
			c.mu.Unlock()
			return nil, err
		}
		c.mu.Unlock()
		c.recordEvent("cache_admit_reused", fp, profileID, remoteModID)
		logging.CacheAdmission(string(fp), true, existing.ByteSize)
		return existing, nil
	}
	c.mu.Unlock()

	filesDir := c.filesDir(fp)
	manifest, err := c.inspector.Extract(archivePath, filesDir)
	if err != nil {
		os.RemoveAll(filesDir)
		return nil, err
	}

	entry := &domain.CachedArchive{
		Fingerprint:    fp,
		RemoteModID:    remoteModID,
		ArchiveName:    archiveName,
		ByteSize:       byteSize,
		AdmittedAt:     time.Now(),
		UsedBy:         map[domain.ProfileID]bool{profileID: true},
		ExtractedFiles: manifest.Files,
	}

	c.mu.Lock()
	c.index.Entries[fp] = entry
	err = c.persist()
	c.mu.Unlock()
	if err != nil {
		os.RemoveAll(filesDir)
		return nil, err
	}

	c.recordEvent("cache_admit_new", fp, profileID, remoteModID)
	logging.CacheAdmission(string(fp), false, byteSize)
	return entry, nil
}

// DetachProfile removes profileID from every entry's usedBy set. Entries
// that become orphaned are left in place for GC to reap.
func (c *Cache) DetachProfile(profileID domain.ProfileID) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, entry := range c.index.Entries {
		entry.RemoveUser(profileID)
	}
	return c.persist()
}

// GC deletes every orphaned entry's on-disk tree and index record, and
// returns the count removed and the bytes reclaimed.
func (c *Cache) GC() (removed int, freedBytes int64, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for fp, entry := range c.index.Entries {
		if !entry.Orphaned() {
			continue
		}
		if err := os.RemoveAll(fmt.Sprintf("%s/%s", c.rootDir, fp.Encoded())); err != nil {
			return removed, freedBytes, domain.NewError(domain.ErrKindExtractionFailed, "cache.GC", err)
		}
		freedBytes += entry.ByteSize
		delete(c.index.Entries, fp)
		removed++
	}

	c.index.LastGC = time.Now()
	if err := c.persist(); err != nil {
		return removed, freedBytes, err
	}

	if c.accel != nil {
		if err := c.accel.RebuildFingerprintIndex(c.index); err != nil {
			logging.Warn("cache: failed rebuilding sqlite accelerator after GC", "error", err)
		}
	}

	return removed, freedBytes, nil
}

// Stats summarizes the cache's aggregate state.
type Stats struct {
	TotalEntries     int
	OrphanedEntries  int
	TotalBytes       int64
	DistinctProfiles int
}

// Stats returns a point-in-time summary of the cache index.
func (c *Cache) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	profiles := make(map[domain.ProfileID]bool)
	var s Stats
	for _, entry := range c.index.Entries {
		s.TotalEntries++
		s.TotalBytes += entry.ByteSize
		if entry.Orphaned() {
			s.OrphanedEntries++
		}
		for profileID := range entry.UsedBy {
			profiles[profileID] = true
		}
	}
	s.DistinctProfiles = len(profiles)
	return s
}

func (c *Cache) recordEvent(kind string, fp domain.Fingerprint, profileID domain.ProfileID, remoteModID int64) {
	if c.accel == nil {
		return
	}
	if err := c.accel.RecordEvent(kind, fp, profileID, remoteModID, ""); err != nil {
		logging.Warn("cache: failed recording event", "kind", kind, "error", err)
	}
}

func fingerprintFile(path string) (domain.Fingerprint, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", 0, fmt.Errorf("opening archive for fingerprinting: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return "", 0, fmt.Errorf("stat archive: %w", err)
	}

	fp, err := domain.FingerprintFromReader(f)
	if err != nil {
		return "", 0, fmt.Errorf("streaming archive through digest: %w", err)
	}
	return fp, info.Size(), nil
}
