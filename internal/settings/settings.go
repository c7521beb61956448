// Package settings is the opaque-value facade for third-party API keys,
// the machine ID, and any other value the original program "encrypted"
// with a hardcoded-passphrase AES-GCM scheme. Per spec.md §9's design
// note, that scheme is obfuscation, not security: this facade persists
// values as plain strings in settings.json and never implements or
// imitates real cryptography. Callers treat every value as opaque; the
// facade's only job is narrow get/set/delete semantics over a single
// JSON document, the same load/save shape as the teacher's
// internal/storage/config package.
package settings

import (
	"os"
	"sync"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/fsutil"
	"github.com/teyk0o/simsforge/internal/logging"
)

// document is the on-disk shape: a flat key/value map plus a version tag,
// matching every other persisted index in this codebase.
type document struct {
	Version int               `json:"version"`
	Values  map[string]string `json:"values"`
}

const currentVersion = 1

// Store is a durable, opaque key/value facade backed by a single JSON
// file. It is safe for concurrent use.
type Store struct {
	path string

	mu  sync.Mutex
	doc document
}

// New loads (or initializes) the settings document at path. A corrupt
// file is treated the same as an absent one: settings are low-stakes
// enough that reinitializing empty with a logged warning, rather than
// quarantining the file like Cache/ProfileStore, is the appropriate
// response — the worst case is the caller being asked to re-enter an API
// key.
func New(path string) (*Store, error) {
	s := &Store{path: path}

	var doc document
	err := fsutil.ReadJSON(path, &doc)
	switch {
	case err == nil:
		if doc.Version > currentVersion {
			return nil, domain.NewError(domain.ErrKindSchemaTooNew, "settings.Load", nil)
		}
		if doc.Values == nil {
			doc.Values = make(map[string]string)
		}
		s.doc = doc
	case os.IsNotExist(err):
		s.doc = document{Version: currentVersion, Values: make(map[string]string)}
	default:
		logging.Warn("settings: file corrupt, reinitialized empty", "path", path, "parse_error", err)
		s.doc = document{Version: currentVersion, Values: make(map[string]string)}
	}

	return s, nil
}

// Get returns the opaque value stored under key, or ("", false) if unset.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, ok := s.doc.Values[key]
	return v, ok
}

// Set stores value under key, persisting immediately.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.doc.Values[key] = value
	return s.persist()
}

// Delete removes key, persisting immediately. Deleting an absent key is a
// no-op, not an error.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.doc.Values, key)
	return s.persist()
}

func (s *Store) persist() error {
	s.doc.Version = currentVersion
	return fsutil.WriteJSONAtomic(s.path, s.doc)
}

// Well-known keys. Callers are free to use others; these are the ones
// spec.md §9 names by purpose (catalog API key, machine ID for fake-mod
// reports).
const (
	KeyCatalogAPIKey = "catalog_api_key"
	KeyMachineID     = "machine_id"
)
