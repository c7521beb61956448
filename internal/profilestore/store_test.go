package profilestore_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/profilestore"
)

func newTestStore(t *testing.T) (*profilestore.Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "Profiles", "index.json")
	s, err := profilestore.New(path)
	require.NoError(t, err)
	return s, path
}

func TestCreate_PersistsAndIsListable(t *testing.T) {
	s, _ := newTestStore(t)

	p, err := s.Create("Main")
	require.NoError(t, err)
	assert.NotEmpty(t, p.ID)
	assert.Equal(t, "Main", p.Name)

	assert.Len(t, s.List(), 1)
}

func TestGet_MissingReturnsInvalidProfile(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get("nope")

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInvalidProfile))
}

func TestDelete_RefusesActiveProfile(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.Create("Main")
	require.NoError(t, err)
	require.NoError(t, s.SetActive(p.ID))

	err = s.Delete(p.ID)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInvalidProfile))
	assert.Len(t, s.List(), 1)
}

func TestDelete_RemovesInactiveProfile(t *testing.T) {
	s, _ := newTestStore(t)
	active, err := s.Create("Main")
	require.NoError(t, err)
	require.NoError(t, s.SetActive(active.ID))
	other, err := s.Create("Secondary")
	require.NoError(t, err)

	require.NoError(t, s.Delete(other.ID))

	assert.Len(t, s.List(), 1)
}

func TestSetActive_RejectsUnknownProfile(t *testing.T) {
	s, _ := newTestStore(t)

	err := s.SetActive("bogus")

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindInvalidProfile))
}

func TestAddMod_ReplacesExistingRemoteModIDInPlace(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.Create("Main")
	require.NoError(t, err)

	require.NoError(t, s.AddMod(p.ID, domain.ProfileMod{RemoteModID: 1, DisplayName: "Better Build Buy", Fingerprint: "sha256:old"}))
	require.NoError(t, s.AddMod(p.ID, domain.ProfileMod{RemoteModID: 1, DisplayName: "Better Build Buy v2", Fingerprint: "sha256:new"}))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.Len(t, got.Mods, 1)
	m := got.FindMod(1)
	require.NotNil(t, m)
	assert.Equal(t, "Better Build Buy v2", m.DisplayName)
	assert.Equal(t, domain.Fingerprint("sha256:new"), m.Fingerprint)
}

func TestRemoveMod_MissingReturnsModNotInProfile(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.Create("Main")
	require.NoError(t, err)

	err = s.RemoveMod(p.ID, 999)

	require.Error(t, err)
	assert.True(t, domain.IsKind(err, domain.ErrKindModNotInProfile))
}

func TestToggleMod_FlipsEnabled(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.Create("Main")
	require.NoError(t, err)
	require.NoError(t, s.AddMod(p.ID, domain.ProfileMod{RemoteModID: 1, Enabled: true}))

	require.NoError(t, s.ToggleMod(p.ID, 1, false))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	assert.False(t, got.FindMod(1).Enabled)
}

func TestUpdateFingerprint_PreservesPrevious(t *testing.T) {
	s, _ := newTestStore(t)
	p, err := s.Create("Main")
	require.NoError(t, err)
	require.NoError(t, s.AddMod(p.ID, domain.ProfileMod{RemoteModID: 1, Fingerprint: "sha256:old"}))

	require.NoError(t, s.UpdateFingerprint(p.ID, 1, "sha256:new", "2.0", "mod-v2.zip"))

	got, err := s.Get(p.ID)
	require.NoError(t, err)
	m := got.FindMod(1)
	assert.Equal(t, domain.Fingerprint("sha256:new"), m.Fingerprint)
	assert.Equal(t, domain.Fingerprint("sha256:old"), m.PreviousFingerprint)
}

func TestNew_ReloadsPersistedState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Profiles", "index.json")
	s1, err := profilestore.New(path)
	require.NoError(t, err)
	p, err := s1.Create("Main")
	require.NoError(t, err)
	require.NoError(t, s1.SetActive(p.ID))

	s2, err := profilestore.New(path)
	require.NoError(t, err)

	active, ok := s2.Active()
	require.True(t, ok)
	assert.Equal(t, p.ID, active.ID)
}

func TestNew_HealsCorruptIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "Profiles", "index.json")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))

	s, err := profilestore.New(path)

	require.NoError(t, err)
	assert.Empty(t, s.List())
}
