package domain

import "time"

// ExtractedFile is one regular file produced by extracting an archive,
// addressed relative to the archive's extraction root.
type ExtractedFile struct {
	RelativePath string `json:"relativePath"`
	LeafName     string `json:"leafName"`
}

// ProfileID identifies a Profile. Stable, opaque, assigned at creation.
type ProfileID string

// CachedArchive is the durable record of one content-addressed archive
// admitted to the cache: where it came from, what it contains, and which
// profiles currently reference it.
type CachedArchive struct {
	Fingerprint    Fingerprint        `json:"fingerprint"`
	RemoteModID    int64              `json:"remoteModId"`
	ArchiveName    string             `json:"archiveName"`
	ByteSize       int64              `json:"byteSize"`
	ChecksumMD5    string             `json:"checksumMD5,omitempty"`
	AdmittedAt     time.Time          `json:"admittedAt"`
	UsedBy         map[ProfileID]bool `json:"usedBy"`
	ExtractedFiles []ExtractedFile    `json:"extractedFiles"`
}

// Orphaned reports whether no profile currently references this archive.
func (c *CachedArchive) Orphaned() bool {
	return len(c.UsedBy) == 0
}

// AddUser idempotently adds profileID to the archive's reference set.
func (c *CachedArchive) AddUser(profileID ProfileID) {
	if c.UsedBy == nil {
		c.UsedBy = make(map[ProfileID]bool)
	}
	c.UsedBy[profileID] = true
}

// RemoveUser removes profileID from the archive's reference set. It is a
// no-op if the profile was not present.
func (c *CachedArchive) RemoveUser(profileID ProfileID) {
	delete(c.UsedBy, profileID)
}

// CacheIndex is the canonical, persisted aggregate state of the Cache: one
// document mirroring every CachedArchive, for fast startup without walking
// the cache tree.
type CacheIndex struct {
	Version int                           `json:"version"`
	Entries map[Fingerprint]*CachedArchive `json:"entries"`
	LastGC  time.Time                     `json:"lastGc"`
}

// CurrentCacheIndexVersion is the schema tag written by this build.
const CurrentCacheIndexVersion = 1

// NewCacheIndex returns an empty, current-version CacheIndex.
func NewCacheIndex() *CacheIndex {
	return &CacheIndex{
		Version: CurrentCacheIndexVersion,
		Entries: make(map[Fingerprint]*CachedArchive),
	}
}
