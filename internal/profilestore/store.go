// Package profilestore is the durable CRUD layer for profiles and their mod
// lists, plus the active-profile marker. Unlike the teacher's
// internal/core.ProfileManager (one file per profile, loaded by name), this
// follows spec.md §6's single-document layout: the entire ProfileIndex
// lives at one path, written atomically on every mutation. CRUD surface
// (Create/List/Get/Delete/SetActive/AddMod/RemoveMod/ToggleMod) is grounded
// on ProfileManager's method set.
package profilestore

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/fsutil"
)

// Store is the durable, single-document ProfileIndex.
type Store struct {
	indexPath string

	mu    sync.Mutex
	index *domain.ProfileIndex
}

// New loads (or initializes) the ProfileIndex at indexPath.
func New(indexPath string) (*Store, error) {
	idx, err := loadOrHeal(indexPath)
	if err != nil {
		return nil, err
	}
	return &Store{indexPath: indexPath, index: idx}, nil
}

func loadOrHeal(path string) (*domain.ProfileIndex, error) {
	var idx domain.ProfileIndex
	err := fsutil.ReadJSON(path, &idx)
	switch {
	case err == nil:
		if idx.Version > domain.CurrentProfileIndexVersion {
			return nil, domain.NewError(domain.ErrKindSchemaTooNew, "profilestore.Load", fmt.Errorf("profiles/index.json version %d newer than supported %d", idx.Version, domain.CurrentProfileIndexVersion))
		}
		if idx.Profiles == nil {
			idx.Profiles = make(map[domain.ProfileID]*domain.Profile)
		}
		return &idx, nil
	case os.IsNotExist(err):
		return domain.NewProfileIndex(), nil
	default:
		quarantined := fmt.Sprintf("%s.corrupt-%d", path, time.Now().UnixNano())
		if renameErr := os.Rename(path, quarantined); renameErr != nil && !os.IsNotExist(renameErr) {
			return nil, domain.NewError(domain.ErrKindProfileIndexCorrupt, "profilestore.Load", fmt.Errorf("quarantining corrupt index: %w", renameErr))
		}
		return domain.NewProfileIndex(), nil
	}
}

func (s *Store) persist() error {
	if err := fsutil.WriteJSONAtomic(s.indexPath, s.index); err != nil {
		return domain.NewError(domain.ErrKindProfileIndexCorrupt, "profilestore.persist", err)
	}
	return nil
}

// Create adds a new, empty Profile named name and returns it. If the store
// held no profiles at all, the new one becomes active.
func (s *Store) Create(name string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	wasEmpty := len(s.index.Profiles) == 0

	p := &domain.Profile{
		ID:        domain.ProfileID(uuid.NewString()),
		Name:      name,
		CreatedAt: time.Now(),
	}
	s.index.Profiles[p.ID] = p
	if wasEmpty {
		s.index.ActiveProfileID = p.ID
	}

	if err := s.persist(); err != nil {
		return nil, err
	}
	return p, nil
}

// Delete removes a profile. It refuses to remove the active profile;
// callers must SetActive away from it first. The caller is responsible for
// detaching the deleted profile from the Cache afterward.
func (s *Store) Delete(id domain.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index.Profiles[id]; !ok {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.Delete", domain.ErrProfileNotFound)
	}
	if s.index.ActiveProfileID == id {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.Delete", fmt.Errorf("cannot delete the active profile"))
	}
	delete(s.index.Profiles, id)
	return s.persist()
}

// List returns every profile, in no particular order.
func (s *Store) List() []*domain.Profile {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]*domain.Profile, 0, len(s.index.Profiles))
	for _, p := range s.index.Profiles {
		out = append(out, p)
	}
	return out
}

// Get returns the profile with id, or an InvalidProfile error if absent.
func (s *Store) Get(id domain.ProfileID) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.Profiles[id]
	if !ok {
		return nil, domain.NewError(domain.ErrKindInvalidProfile, "profilestore.Get", domain.ErrProfileNotFound)
	}
	return p, nil
}

// SetActive marks id as the active profile, or clears the active marker
// entirely when id is empty.
func (s *Store) SetActive(id domain.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if id != "" {
		if _, ok := s.index.Profiles[id]; !ok {
			return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.SetActive", domain.ErrProfileNotFound)
		}
	}
	s.index.ActiveProfileID = id
	return s.persist()
}

// Active returns the active profile, or (nil, false) if none is active.
func (s *Store) Active() (*domain.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.index.ActiveProfileID == "" {
		return nil, false
	}
	p, ok := s.index.Profiles[s.index.ActiveProfileID]
	return p, ok
}

// AddMod appends mod to profileID's list, or replaces the existing entry
// in place if remoteModId is already present (a re-install).
func (s *Store) AddMod(profileID domain.ProfileID, mod domain.ProfileMod) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.Profiles[profileID]
	if !ok {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.AddMod", domain.ErrProfileNotFound)
	}

	if mod.InstalledAt.IsZero() {
		mod.InstalledAt = time.Now()
	}

	if existing := p.FindMod(mod.RemoteModID); existing != nil {
		*existing = mod
		return s.persist()
	}

	p.Mods = append(p.Mods, mod)
	return s.persist()
}

// RemoveMod removes the entry for remoteModID from profileID's list.
func (s *Store) RemoveMod(profileID domain.ProfileID, remoteModID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.Profiles[profileID]
	if !ok {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.RemoveMod", domain.ErrProfileNotFound)
	}

	idx := -1
	for i, m := range p.Mods {
		if m.RemoteModID == remoteModID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.NewError(domain.ErrKindModNotInProfile, "profilestore.RemoveMod", domain.ErrModNotFound)
	}

	p.Mods = append(p.Mods[:idx], p.Mods[idx+1:]...)
	return s.persist()
}

// ToggleMod flips a mod's enabled flag to enabled.
func (s *Store) ToggleMod(profileID domain.ProfileID, remoteModID int64, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.Profiles[profileID]
	if !ok {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.ToggleMod", domain.ErrProfileNotFound)
	}

	m := p.FindMod(remoteModID)
	if m == nil {
		return domain.NewError(domain.ErrKindModNotInProfile, "profilestore.ToggleMod", domain.ErrModNotFound)
	}

	m.Enabled = enabled
	return s.persist()
}

// UpdateFingerprint records a new fingerprint for an installed mod,
// preserving the previous one for rollback, and bumps its version/update
// timestamp metadata.
func (s *Store) UpdateFingerprint(profileID domain.ProfileID, remoteModID int64, newFingerprint domain.Fingerprint, versionLabel, archiveName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.index.Profiles[profileID]
	if !ok {
		return domain.NewError(domain.ErrKindInvalidProfile, "profilestore.UpdateFingerprint", domain.ErrProfileNotFound)
	}

	m := p.FindMod(remoteModID)
	if m == nil {
		return domain.NewError(domain.ErrKindModNotInProfile, "profilestore.UpdateFingerprint", domain.ErrModNotFound)
	}

	m.PreviousFingerprint = m.Fingerprint
	m.Fingerprint = newFingerprint
	m.VersionLabel = versionLabel
	m.ArchiveName = archiveName
	m.LastUpdated = time.Now()
	return s.persist()
}
