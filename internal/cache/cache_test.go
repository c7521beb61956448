package cache_test

import (
	"archive/zip"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyk0o/simsforge/internal/archive"
	"github.com/teyk0o/simsforge/internal/cache"
	"github.com/teyk0o/simsforge/internal/domain"
)

func newTestArchive(t *testing.T, contents map[string]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mod.zip")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range contents {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return path
}

func newTestCache(t *testing.T) *cache.Cache {
	t.Helper()
	dir := t.TempDir()
	c, err := cache.New(filepath.Join(dir, "ModsCache"), filepath.Join(dir, "ModsCache", "cache.index.json"), archive.New(archive.DefaultLimits), nil)
	require.NoError(t, err)
	return c
}

func TestAdmit_ExtractsAndRecordsProfile(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "data"})

	entry, err := c.Admit(archivePath, 42, "mod.zip", "profile-1")

	require.NoError(t, err)
	assert.Equal(t, int64(42), entry.RemoteModID)
	assert.True(t, entry.UsedBy["profile-1"])
	assert.Len(t, entry.ExtractedFiles, 1)

	data, err := os.ReadFile(filepath.Join(c.PathFor(entry.Fingerprint), "mod.package"))
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestAdmit_SameContentDeduplicatesWithoutReExtracting(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "same-bytes"})

	first, err := c.Admit(archivePath, 1, "a.zip", "profile-1")
	require.NoError(t, err)

	second, err := c.Admit(archivePath, 1, "a.zip", "profile-2")
	require.NoError(t, err)

	assert.Equal(t, first.Fingerprint, second.Fingerprint)
	assert.True(t, second.UsedBy["profile-1"])
	assert.True(t, second.UsedBy["profile-2"])

	stats := c.Stats()
	assert.Equal(t, 1, stats.TotalEntries)
	assert.Equal(t, 2, stats.DistinctProfiles)
}

func TestAdmit_ConcurrentAdmitsForSameArchiveExtractOnce(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "concurrent"})

	var wg sync.WaitGroup
	errs := make([]error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := c.Admit(archivePath, 1, "a.zip", domain.ProfileID("profile"))
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, c.Stats().TotalEntries)
}

func TestDetachProfile_OrphansEntry(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "x"})

	entry, err := c.Admit(archivePath, 1, "a.zip", "profile-1")
	require.NoError(t, err)

	require.NoError(t, c.DetachProfile("profile-1"))

	got, ok := c.Get(entry.Fingerprint)
	require.True(t, ok)
	assert.True(t, got.Orphaned())
}

func TestGC_RemovesOrphanedEntries(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "x"})

	entry, err := c.Admit(archivePath, 1, "a.zip", "profile-1")
	require.NoError(t, err)
	require.NoError(t, c.DetachProfile("profile-1"))

	removed, freedBytes, err := c.GC()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Equal(t, entry.ByteSize, freedBytes)

	_, ok := c.Get(entry.Fingerprint)
	assert.False(t, ok)

	_, statErr := os.Stat(c.PathFor(entry.Fingerprint))
	assert.True(t, os.IsNotExist(statErr))
}

func TestReleaseProfileFingerprint_OnlyAffectsThatEntry(t *testing.T) {
	c := newTestCache(t)
	a1 := newTestArchive(t, map[string]string{"mod.package": "one"})
	a2 := newTestArchive(t, map[string]string{"mod.package": "two"})

	e1, err := c.Admit(a1, 1, "one.zip", "profile-1")
	require.NoError(t, err)
	e2, err := c.Admit(a2, 2, "two.zip", "profile-1")
	require.NoError(t, err)

	require.NoError(t, c.ReleaseProfileFingerprint(e1.Fingerprint, "profile-1"))

	got1, _ := c.Get(e1.Fingerprint)
	assert.True(t, got1.Orphaned())
	got2, _ := c.Get(e2.Fingerprint)
	assert.False(t, got2.Orphaned())
}

func TestGC_KeepsReferencedEntries(t *testing.T) {
	c := newTestCache(t)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "x"})

	_, err := c.Admit(archivePath, 1, "a.zip", "profile-1")
	require.NoError(t, err)

	removed, freedBytes, err := c.GC()
	require.NoError(t, err)
	assert.Equal(t, 0, removed)
	assert.Zero(t, freedBytes)
}

func TestNew_ReloadsPersistedIndex(t *testing.T) {
	dir := t.TempDir()
	rootDir := filepath.Join(dir, "ModsCache")
	indexPath := filepath.Join(rootDir, "cache.index.json")

	c1, err := cache.New(rootDir, indexPath, archive.New(archive.DefaultLimits), nil)
	require.NoError(t, err)
	archivePath := newTestArchive(t, map[string]string{"mod.package": "persisted"})
	entry, err := c1.Admit(archivePath, 1, "a.zip", "profile-1")
	require.NoError(t, err)

	c2, err := cache.New(rootDir, indexPath, archive.New(archive.DefaultLimits), nil)
	require.NoError(t, err)

	got, ok := c2.Get(entry.Fingerprint)
	require.True(t, ok)
	assert.True(t, got.UsedBy["profile-1"])
}

func TestNew_HealsCorruptIndex(t *testing.T) {
	dir := t.TempDir()
	rootDir := filepath.Join(dir, "ModsCache")
	indexPath := filepath.Join(rootDir, "cache.index.json")
	require.NoError(t, os.MkdirAll(rootDir, 0o755))
	require.NoError(t, os.WriteFile(indexPath, []byte("{not valid json"), 0o644))

	c, err := cache.New(rootDir, indexPath, archive.New(archive.DefaultLimits), nil)

	require.NoError(t, err)
	assert.Equal(t, 0, c.Stats().TotalEntries)

	matches, _ := filepath.Glob(indexPath + ".corrupt-*")
	assert.Len(t, matches, 1)
}
