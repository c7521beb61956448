package installer_test

import (
	"archive/zip"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teyk0o/simsforge/internal/activator"
	"github.com/teyk0o/simsforge/internal/archive"
	"github.com/teyk0o/simsforge/internal/cache"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/external"
	"github.com/teyk0o/simsforge/internal/fakescore"
	"github.com/teyk0o/simsforge/internal/installer"
	"github.com/teyk0o/simsforge/internal/profilestore"
)

// fakeDownloader is an external.Downloader test double whose behavior is
// entirely driven by its fields, so each test configures only what
// it needs.
type fakeDownloader struct {
	resolved    external.ResolvedDownload
	resolveErr  error
	metadata    external.ModMetadata
	metadataErr error

	archiveContents map[string]string // written as a zip at fetch time
	fetchErr        error
	fetchCalls      int
	stall           bool // if set, never calls progress — triggers the stall guard

	progressCalls int
}

func (f *fakeDownloader) ResolveDownload(ctx context.Context, remoteModID, fileID int64) (external.ResolvedDownload, error) {
	if f.resolveErr != nil {
		return external.ResolvedDownload{}, f.resolveErr
	}
	return f.resolved, nil
}

func (f *fakeDownloader) GetModMetadata(ctx context.Context, remoteModID int64) (external.ModMetadata, error) {
	if f.metadataErr != nil {
		return external.ModMetadata{}, f.metadataErr
	}
	return f.metadata, nil
}

func (f *fakeDownloader) Fetch(ctx context.Context, downloadURL, destPath string, progress func(downloaded, total int64)) (external.FetchResult, error) {
	f.fetchCalls++
	if f.fetchErr != nil {
		return external.FetchResult{}, f.fetchErr
	}
	if f.stall {
		<-ctx.Done()
		return external.FetchResult{}, ctx.Err()
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return external.FetchResult{}, err
	}
	if err := writeZip(destPath, f.archiveContents); err != nil {
		return external.FetchResult{}, err
	}
	if progress != nil {
		f.progressCalls++
		progress(100, 100)
	}
	return external.FetchResult{Path: destPath, ByteSize: 100}, nil
}

func writeZip(path string, contents map[string]string) error {
	if contents == nil {
		contents = map[string]string{"mod.package": "data"}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	for name, content := range contents {
		w, err := zw.Create(name)
		if err != nil {
			return err
		}
		if _, err := w.Write([]byte(content)); err != nil {
			return err
		}
	}
	return zw.Close()
}

type fakeReportPublisher struct {
	calls   int
	lastReq external.FakeReport
	err     error
}

func (f *fakeReportPublisher) SubmitReport(ctx context.Context, report external.FakeReport) error {
	f.calls++
	f.lastReq = report
	return f.err
}

type fakeWarningService struct {
	statuses map[int64]external.WarningStatus
}

func (f *fakeWarningService) BatchWarningStatus(ctx context.Context, remoteModIDs []int64) (map[int64]external.WarningStatus, error) {
	return f.statuses, nil
}

type testHarness struct {
	installer *installer.Installer
	downloader *fakeDownloader
	reports    *fakeReportPublisher
	cache      *cache.Cache
	profiles   *profilestore.Store
	modsFolder string
	tempRoot   string
}

func newHarness(t *testing.T, dl *fakeDownloader) *testHarness {
	t.Helper()
	dir := t.TempDir()

	insp := archive.New(archive.DefaultLimits)
	c, err := cache.New(filepath.Join(dir, "ModsCache"), filepath.Join(dir, "ModsCache", "cache.index.json"), insp, nil)
	require.NoError(t, err)

	ps, err := profilestore.New(filepath.Join(dir, "profiles", "index.json"))
	require.NoError(t, err)
	_, err = ps.Create("Default")
	require.NoError(t, err)

	act := activator.New(domain.LinkSymlink)

	modsFolder := filepath.Join(dir, "Mods")
	require.NoError(t, os.MkdirAll(modsFolder, 0o755))
	tempRoot := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tempRoot, 0o755))

	reports := &fakeReportPublisher{}

	in := installer.New(dl, insp, c, ps, act, reports, nil, tempRoot, 0, 5*time.Second, 0)

	return &testHarness{
		installer:  in,
		downloader: dl,
		reports:    reports,
		cache:      c,
		profiles:   ps,
		modsFolder: modsFolder,
		tempRoot:   tempRoot,
	}
}

func defaultResolved(modID int64) external.ResolvedDownload {
	return external.ResolvedDownload{
		ArchiveName:     "mod.zip",
		DownloadURL:     "https://catalog.example.com/mod.zip",
		ByteSize:        100,
		EffectiveFileID: 1,
		ModName:         "A Nice Mod",
	}
}

func TestInstall_HappyPathAttachesAndActivates(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(42)}
	h := newHarness(t, dl)

	result, err := h.installer.Install(context.Background(), installer.Request{
		RemoteModID: 42,
		ModsFolder:  h.modsFolder,
	}, nil, nil)

	require.NoError(t, err)
	assert.Equal(t, int64(42), result.ProfileMod.RemoteModID)
	assert.True(t, result.ProfileMod.Enabled)
	assert.NotEmpty(t, result.ProfileMod.Fingerprint)
	assert.Len(t, result.Outcome.Created, 1)

	entries, err := os.ReadDir(h.modsFolder)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	profile, ok := h.profiles.Active()
	require.True(t, ok)
	assert.Len(t, profile.Mods, 1)
}

func TestInstall_SuspiciousScoreCancelDoesNotAttach(t *testing.T) {
	dl := &fakeDownloader{
		resolved: external.ResolvedDownload{ArchiveName: "mod.zip", DownloadURL: "https://x/mod.zip", EffectiveFileID: 1, ModName: "Patreon Exclusive VIP Only"},
		// no package/script files -> triggers "no mod files detected"
		archiveContents: map[string]string{"readme.txt": "hello"},
	}
	h := newHarness(t, dl)

	var sawScore fakescore.Result
	_, err := h.installer.Install(context.Background(), installer.Request{
		RemoteModID: 7,
		ModsFolder:  h.modsFolder,
	}, func(score fakescore.Result) installer.Decision {
		sawScore = score
		return installer.DecisionCancel
	}, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindUserAborted, domErr.Kind)
	assert.True(t, sawScore.Suspicious)

	profile, _ := h.profiles.Active()
	assert.Empty(t, profile.Mods)
}

func TestInstall_SuspiciousScoreReportSubmitsAndAborts(t *testing.T) {
	dl := &fakeDownloader{
		resolved:        external.ResolvedDownload{ArchiveName: "mod.zip", DownloadURL: "https://x/mod.zip", EffectiveFileID: 1, ModName: "Patreon Exclusive VIP Only"},
		archiveContents: map[string]string{"readme.txt": "hello"},
	}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{
		RemoteModID: 7,
		ModsFolder:  h.modsFolder,
		MachineID:   "machine-1",
	}, func(score fakescore.Result) installer.Decision {
		return installer.DecisionReport
	}, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindUserAborted, domErr.Kind)
	assert.Equal(t, 1, h.reports.calls)
	assert.Equal(t, int64(7), h.reports.lastReq.RemoteModID)
}

func TestInstall_NoActiveProfileReturnsError(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)
	require.NoError(t, h.profiles.SetActive(""))

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindNoActiveProfile, domErr.Kind)
}

func TestInstall_MissingModsFolderSkipsActivationSilently(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	result, err := h.installer.Install(context.Background(), installer.Request{
		RemoteModID: 1,
		ModsFolder:  filepath.Join(h.tempRoot, "does-not-exist"),
	}, nil, nil)

	require.NoError(t, err)
	assert.Empty(t, result.Outcome.Created)

	profile, ok := h.profiles.Active()
	require.True(t, ok)
	assert.Len(t, profile.Mods, 1)
}

// The core makes exactly one fetch attempt: spec.md §7 leaves retry policy
// for DownloadFailed/TooManyRedirects/DownloadStalled to the caller, so a
// transient-looking failure aborts the install just like a permanent one.
func TestInstall_FetchFailureAbortsImmediately(t *testing.T) {
	dl := &fakeDownloader{
		resolved: defaultResolved(1),
		fetchErr: errors.New("permanent failure"),
	}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindDownloadFailed, domErr.Kind)
	assert.Equal(t, 1, dl.fetchCalls)
}

func TestInstall_StallTimeoutAbortsFetch(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1), stall: true}
	h := newHarness(t, dl)

	insp := archive.New(archive.DefaultLimits)
	dir := filepath.Dir(h.tempRoot)
	c, err := cache.New(filepath.Join(dir, "ModsCache2"), filepath.Join(dir, "ModsCache2", "cache.index.json"), insp, nil)
	require.NoError(t, err)
	act := activator.New(domain.LinkSymlink)

	in := installer.New(dl, insp, c, h.profiles, act, h.reports, nil, h.tempRoot, 0, 0, 20*time.Millisecond)

	_, err = in.Install(context.Background(), installer.Request{RemoteModID: 99, ModsFolder: h.modsFolder}, nil, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindDownloadStalled, domErr.Kind)
}

func TestUpdateOne_PreservesPreviousFingerprintAndReleasesOldEntry(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)

	profile, _ := h.profiles.Active()
	oldFingerprint := profile.FindMod(1).Fingerprint

	dl.resolved = external.ResolvedDownload{ArchiveName: "mod-v2.zip", DownloadURL: "https://x/mod-v2.zip", EffectiveFileID: 2, ModName: "A Nice Mod"}
	dl.archiveContents = map[string]string{"mod.package": "new-bytes"}

	result, err := h.installer.UpdateOne(context.Background(), 1, h.modsFolder, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, oldFingerprint, result.ProfileMod.PreviousFingerprint)
	assert.NotEqual(t, oldFingerprint, result.ProfileMod.Fingerprint)

	oldEntry, ok := h.cache.Get(oldFingerprint)
	require.True(t, ok)
	assert.True(t, oldEntry.Orphaned())
}

func TestRollbackOne_SwapsBackToPreviousFingerprint(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)
	profile, _ := h.profiles.Active()
	v1Fingerprint := profile.FindMod(1).Fingerprint

	dl.resolved = external.ResolvedDownload{ArchiveName: "mod-v2.zip", DownloadURL: "https://x/mod-v2.zip", EffectiveFileID: 2, ModName: "A Nice Mod"}
	dl.archiveContents = map[string]string{"mod.package": "new-bytes"}
	_, err = h.installer.UpdateOne(context.Background(), 1, h.modsFolder, nil, nil)
	require.NoError(t, err)

	_, err = h.installer.RollbackOne(1, h.modsFolder)
	require.NoError(t, err)

	profile, _ = h.profiles.Active()
	mod := profile.FindMod(1)
	assert.Equal(t, v1Fingerprint, mod.Fingerprint)
}

func TestRollbackOne_NoPreviousVersionErrors(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)

	_, err = h.installer.RollbackOne(1, h.modsFolder)
	require.Error(t, err)
}

func TestUpdateAvailable_SkipsPinnedMods(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)

	profile, _ := h.profiles.Active()
	require.NoError(t, h.profiles.ToggleMod(profile.ID, 1, true))
	mod := profile.FindMod(1)
	mod.UpdatePolicy = domain.UpdatePinned

	dl.resolved = external.ResolvedDownload{ArchiveName: "mod-v2.zip", EffectiveFileID: 2}
	candidates, err := h.installer.UpdateAvailable(context.Background())
	require.NoError(t, err)
	assert.Empty(t, candidates)
}

func TestUpdateAvailable_ReportsNewerVersion(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)

	dl.resolved = external.ResolvedDownload{ArchiveName: "mod-v2.zip", EffectiveFileID: 2}
	candidates, err := h.installer.UpdateAvailable(context.Background())
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, int64(1), candidates[0].RemoteModID)
	assert.Equal(t, "2", candidates[0].LatestVersion)
}

func TestUpdateAll_OnlyAppliesToAutoPolicyMods(t *testing.T) {
	dl := &fakeDownloader{resolved: defaultResolved(1)}
	h := newHarness(t, dl)

	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 1, ModsFolder: h.modsFolder}, nil, nil)
	require.NoError(t, err)

	profile, _ := h.profiles.Active()
	mod := profile.FindMod(1)
	mod.UpdatePolicy = domain.UpdateNotify

	dl.resolved = external.ResolvedDownload{ArchiveName: "mod-v2.zip", DownloadURL: "https://x/mod-v2.zip", EffectiveFileID: 2, ModName: "A Nice Mod"}
	dl.archiveContents = map[string]string{"mod.package": "new-bytes"}

	results, err := h.installer.UpdateAll(context.Background(), h.modsFolder, nil)
	require.NoError(t, err)
	assert.Empty(t, results)

	mod.UpdatePolicy = domain.UpdateAuto
	results, err = h.installer.UpdateAll(context.Background(), h.modsFolder, nil)
	require.NoError(t, err)
	assert.Len(t, results, 1)
}

func TestCreatorWarnedRatio_FeedsIntoSuspiciousScore(t *testing.T) {
	dl := &fakeDownloader{
		resolved:        external.ResolvedDownload{ArchiveName: "mod.zip", DownloadURL: "https://x/mod.zip", EffectiveFileID: 1, ModName: "Ordinary Mod"},
		archiveContents: map[string]string{"readme.txt": "hello"}, // no package/script files
	}
	h := newHarnessWithWarnings(t, dl, &fakeWarningService{
		statuses: map[int64]external.WarningStatus{9: {ReportCount: 10}},
	}, 10)

	var sawScore fakescore.Result
	_, err := h.installer.Install(context.Background(), installer.Request{RemoteModID: 9, ModsFolder: h.modsFolder}, func(score fakescore.Result) installer.Decision {
		sawScore = score
		return installer.DecisionCancel
	}, nil)

	var domErr *domain.Error
	require.True(t, errors.As(err, &domErr))
	assert.Equal(t, domain.ErrKindUserAborted, domErr.Kind)
	assert.True(t, sawScore.Suspicious)
	assert.Contains(t, sawScore.Reasons, "creator has high warned ratio")
}

// newHarnessWithWarnings builds a harness with a CatalogWarningService wired
// in, for exercising creatorWarnedRatio.
func newHarnessWithWarnings(t *testing.T, dl *fakeDownloader, warnings external.CatalogWarningService, sampleSize int) *testHarness {
	t.Helper()
	dir := t.TempDir()

	insp := archive.New(archive.DefaultLimits)
	c, err := cache.New(filepath.Join(dir, "ModsCache"), filepath.Join(dir, "ModsCache", "cache.index.json"), insp, nil)
	require.NoError(t, err)

	ps, err := profilestore.New(filepath.Join(dir, "profiles", "index.json"))
	require.NoError(t, err)
	_, err = ps.Create("Default")
	require.NoError(t, err)

	act := activator.New(domain.LinkSymlink)

	modsFolder := filepath.Join(dir, "Mods")
	require.NoError(t, os.MkdirAll(modsFolder, 0o755))
	tempRoot := filepath.Join(dir, "tmp")
	require.NoError(t, os.MkdirAll(tempRoot, 0o755))

	reports := &fakeReportPublisher{}
	in := installer.New(dl, insp, c, ps, act, reports, warnings, tempRoot, sampleSize, 5*time.Second, 0)

	return &testHarness{installer: in, downloader: dl, reports: reports, cache: c, profiles: ps, modsFolder: modsFolder, tempRoot: tempRoot}
}
