package service_test

import (
	"archive/zip"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyk0o/simsforge/internal/external"
	"github.com/teyk0o/simsforge/internal/service"
)

type fakeDownloader struct {
	archiveContents map[string]string
}

func (f *fakeDownloader) ResolveDownload(_ context.Context, _, _ int64) (external.ResolvedDownload, error) {
	return external.ResolvedDownload{
		ArchiveName:     "mod.zip",
		DownloadURL:     "https://example.invalid/mod.zip",
		ByteSize:        1024,
		EffectiveFileID: 1,
		ModName:         "Test Mod",
	}, nil
}

func (f *fakeDownloader) GetModMetadata(_ context.Context, _ int64) (external.ModMetadata, error) {
	return external.ModMetadata{}, nil
}

func (f *fakeDownloader) Fetch(_ context.Context, _, destPath string, progress func(downloaded, total int64)) (external.FetchResult, error) {
	if err := writeZip(destPath, f.archiveContents); err != nil {
		return external.FetchResult{}, err
	}
	progress(100, 100)
	info, err := os.Stat(destPath)
	if err != nil {
		return external.FetchResult{}, err
	}
	return external.FetchResult{Path: destPath, ByteSize: info.Size()}, nil
}

func writeZip(path string, contents map[string]string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, body := range contents {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(body)); err != nil {
			return err
		}
	}
	return zw.Close()
}

func newTestService(t *testing.T, dl external.Downloader) *service.Service {
	t.Helper()

	modsFolder := filepath.Join(t.TempDir(), "Mods")
	require.NoError(t, os.MkdirAll(modsFolder, 0o755))

	svc, err := service.New(service.Dependencies{
		Root:       t.TempDir(),
		ModsFolder: modsFolder,
		Downloader: dl,
	})
	require.NoError(t, err)
	t.Cleanup(func() { svc.Close() })
	return svc
}

func TestNew_CreatesDataLayout(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})
	paths := svc.Paths()
	assert.DirExists(t, paths.CacheRoot)
	assert.DirExists(t, paths.TempDownloads)
}

func TestCreateProfile_FirstProfileBecomesActive(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})

	p, err := svc.CreateProfile("Default")
	require.NoError(t, err)

	active, ok := svc.ActiveProfile()
	require.True(t, ok)
	assert.Equal(t, p.ID, active.ID)
}

func TestInstallMod_AttachesToActiveProfileAndActivates(t *testing.T) {
	dl := &fakeDownloader{archiveContents: map[string]string{"mod.package": "data"}}
	svc := newTestService(t, dl)
	_, err := svc.CreateProfile("Default")
	require.NoError(t, err)

	result, err := svc.InstallMod(context.Background(), 42, 0, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), result.ProfileMod.RemoteModID)
	assert.True(t, result.ProfileMod.Enabled)

	entries, err := os.ReadDir(svc.ModsFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestRemoveMod_ReleasesCacheReferenceAndReconciles(t *testing.T) {
	dl := &fakeDownloader{archiveContents: map[string]string{"mod.package": "data"}}
	svc := newTestService(t, dl)
	_, err := svc.CreateProfile("Default")
	require.NoError(t, err)
	_, err = svc.InstallMod(context.Background(), 42, 0, nil, nil)
	require.NoError(t, err)

	_, err = svc.RemoveMod(42)
	require.NoError(t, err)

	entries, err := os.ReadDir(svc.ModsFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 0)

	removed, freedBytes, err := svc.ClearCache()
	require.NoError(t, err)
	assert.Equal(t, 1, removed)
	assert.Positive(t, freedBytes)
}

func TestRemoveMod_NoActiveProfileReturnsError(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})

	_, err := svc.RemoveMod(1)
	assert.Error(t, err)
}

func TestToggleMod_DisablingRemovesSymlink(t *testing.T) {
	dl := &fakeDownloader{archiveContents: map[string]string{"mod.package": "data"}}
	svc := newTestService(t, dl)
	_, err := svc.CreateProfile("Default")
	require.NoError(t, err)
	_, err = svc.InstallMod(context.Background(), 42, 0, nil, nil)
	require.NoError(t, err)

	_, err = svc.ToggleMod(42, false)
	require.NoError(t, err)

	entries, err := os.ReadDir(svc.ModsFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 0)

	_, err = svc.ToggleMod(42, true)
	require.NoError(t, err)

	entries, err = os.ReadDir(svc.ModsFolder())
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestResetEverything_ClearsProfilesAndDeactivates(t *testing.T) {
	dl := &fakeDownloader{archiveContents: map[string]string{"mod.package": "data"}}
	svc := newTestService(t, dl)
	_, err := svc.CreateProfile("Default")
	require.NoError(t, err)
	_, err = svc.InstallMod(context.Background(), 42, 0, nil, nil)
	require.NoError(t, err)

	outcome, err := svc.ResetEverything(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, outcome.ProfilesRemoved)
	assert.Empty(t, outcome.Errors)

	assert.Empty(t, svc.ListProfiles())
	_, ok := svc.ActiveProfile()
	assert.False(t, ok)
}

func TestUpdateAvailable_NoActiveProfileReturnsError(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})

	_, err := svc.UpdateAvailable(context.Background())
	assert.Error(t, err)
}

func TestSetCatalogAPIKey_RoundTrips(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})

	require.NoError(t, svc.SetCatalogAPIKey("sk-test"))
	v, ok := svc.CatalogAPIKey()
	require.True(t, ok)
	assert.Equal(t, "sk-test", v)
}

func TestDeleteProfile_RefusesActiveProfile(t *testing.T) {
	svc := newTestService(t, &fakeDownloader{})
	p, err := svc.CreateProfile("Default")
	require.NoError(t, err)

	err = svc.DeleteProfile(p.ID)
	assert.Error(t, err)
}
