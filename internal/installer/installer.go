// Package installer runs the seven-stage install pipeline (resolve, fetch,
// inspect/score, admit, attach, activate, cleanup) and its update/rollback
// surface. Stage shape follows spec.md §4.G. The fetch stage makes exactly
// one attempt per call: DownloadFailed, TooManyRedirects, and
// DownloadStalled are all transient per spec.md §7, and retry policy for
// transient errors belongs to the caller, not the core — cmd/simsforge is
// where retry/backoff around a failed fetch lives. The update surface is
// grounded on the teacher's internal/core.Updater, generalized from the
// teacher's per-source CheckUpdates fan-out to a single
// Downloader.ResolveDownload call per mod (this spec has no multi-source
// registry).
package installer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/teyk0o/simsforge/internal/activator"
	"github.com/teyk0o/simsforge/internal/archive"
	"github.com/teyk0o/simsforge/internal/cache"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/external"
	"github.com/teyk0o/simsforge/internal/fakescore"
	"github.com/teyk0o/simsforge/internal/logging"
	"github.com/teyk0o/simsforge/internal/profilestore"
)

// Stage names reported to a ProgressSink.
const (
	StageResolve  = "resolve"
	StageFetch    = "fetch"
	StageInspect  = "inspect_score"
	StageAdmit    = "admit"
	StageAttach   = "attach"
	StageActivate = "activate"
	StageCleanup  = "cleanup"
)

// ProgressSink receives stage-level progress. detail is stage-specific
// (e.g. a download percentage as a string, or empty).
type ProgressSink func(stage, detail string)

// Decision is the user's choice when a suspicious archive is detected.
type Decision string

const (
	DecisionInstall Decision = "install"
	DecisionCancel  Decision = "cancel"
	DecisionReport  Decision = "report"
)

// DecisionSink is consulted only when the Fake-Score Evaluator marks an
// archive suspicious. A nil sink means "always install" (no interactive
// caller attached).
type DecisionSink func(score fakescore.Result) Decision

// Request describes one install call.
type Request struct {
	RemoteModID int64
	FileID      int64 // 0 means "latest"
	ModsFolder  string
	MachineID   string // used only if the user chooses DecisionReport
}

// Result is what a successful Install/UpdateOne returns.
type Result struct {
	ProfileMod domain.ProfileMod
	Outcome    activator.Outcome
}

// Installer wires the Downloader, Archive Inspector, Fake-Score Evaluator,
// Cache, Profile Store, and Activator into the pipeline.
type Installer struct {
	downloader external.Downloader
	inspector  *archive.Inspector
	cache      *cache.Cache
	profiles   *profilestore.Store
	activator  *activator.Activator
	reports    external.FakeReportPublisher    // optional
	warnings   external.CatalogWarningService  // optional, presentation-only per spec.md §6
	tempRoot   string

	warnedRatioSampleSize int
	downloadTimeout       time.Duration
	stallTimeout          time.Duration
}

// New builds an Installer. reports and warnings may both be nil: a nil
// reports sink means a "report" decision still aborts the install (there's
// nowhere to send the report), and a nil warnings service simply leaves
// CreatorWarnedRatio at zero for every scoring pass. Redirect bounding on
// the download itself is the concrete Downloader's concern (see
// catalogclient.DefaultMaxRedirects), not the Installer's.
func New(downloader external.Downloader, inspector *archive.Inspector, c *cache.Cache, profiles *profilestore.Store, act *activator.Activator, reports external.FakeReportPublisher, warnings external.CatalogWarningService, tempRoot string, warnedRatioSampleSize int, downloadTimeout, stallTimeout time.Duration) *Installer {
	return &Installer{
		downloader:            downloader,
		inspector:             inspector,
		cache:                 c,
		profiles:              profiles,
		activator:             act,
		reports:               reports,
		warnings:              warnings,
		tempRoot:              tempRoot,
		warnedRatioSampleSize: warnedRatioSampleSize,
		downloadTimeout:       downloadTimeout,
		stallTimeout:          stallTimeout,
	}
}

// Install runs the full seven-stage pipeline for a new mod attachment to
// the active profile.
func (in *Installer) Install(ctx context.Context, req Request, decide DecisionSink, sink ProgressSink) (Result, error) {
	profile, ok := in.profiles.Active()
	if !ok {
		return Result{}, domain.NewError(domain.ErrKindNoActiveProfile, "installer.Install", errors.New("no active profile"))
	}

	staged, err := in.resolveFetchInspectAdmit(ctx, req, profile.ID, decide, sink)
	if err != nil {
		return Result{}, err
	}

	emit(sink, StageAttach, "")
	mod := domain.ProfileMod{
		RemoteModID:  req.RemoteModID,
		DisplayName:  staged.modName,
		VersionLabel: strconv.FormatInt(staged.resolved.EffectiveFileID, 10),
		Fingerprint:  staged.entry.Fingerprint,
		ArchiveName:  staged.resolved.ArchiveName,
		Enabled:      true,
		UpdatePolicy: domain.UpdateNotify,
	}
	if err := in.profiles.AddMod(profile.ID, mod); err != nil {
		return Result{}, err
	}
	logging.InstallStage(req.RemoteModID, StageAttach, "fingerprint", staged.entry.Fingerprint)

	outcome, actErr := in.activate(profile.ID, req.ModsFolder)
	if actErr != nil {
		logging.Warn("installer: activation failed, archive and profile attachment retained", "remote_mod_id", req.RemoteModID, "error", actErr)
	}

	emit(sink, StageCleanup, "")
	os.RemoveAll(staged.tempDir)

	return Result{ProfileMod: mod, Outcome: outcome}, nil
}

// UpdateOne re-runs resolve/fetch/inspect/admit for an already-installed
// mod and swaps its fingerprint, preserving the old one as
// PreviousFingerprint for RollbackOne. The cache's reference to the old
// fingerprint is released once the new one is attached, mirroring the
// testable property that install+remove of the same mod leaves usedBy
// unchanged.
func (in *Installer) UpdateOne(ctx context.Context, remoteModID int64, modsFolder string, decide DecisionSink, sink ProgressSink) (Result, error) {
	profile, ok := in.profiles.Active()
	if !ok {
		return Result{}, domain.NewError(domain.ErrKindNoActiveProfile, "installer.UpdateOne", errors.New("no active profile"))
	}
	existing := profile.FindMod(remoteModID)
	if existing == nil {
		return Result{}, domain.NewError(domain.ErrKindModNotInProfile, "installer.UpdateOne", domain.ErrModNotFound)
	}
	oldFingerprint := existing.Fingerprint

	staged, err := in.resolveFetchInspectAdmit(ctx, Request{RemoteModID: remoteModID, ModsFolder: modsFolder}, profile.ID, decide, sink)
	if err != nil {
		return Result{}, err
	}

	emit(sink, StageAttach, "")
	if err := in.profiles.UpdateFingerprint(profile.ID, remoteModID, staged.entry.Fingerprint, strconv.FormatInt(staged.resolved.EffectiveFileID, 10), staged.resolved.ArchiveName); err != nil {
		return Result{}, err
	}
	if oldFingerprint != "" && oldFingerprint != staged.entry.Fingerprint {
		if err := in.cache.ReleaseProfileFingerprint(oldFingerprint, profile.ID); err != nil {
			logging.Warn("installer: failed releasing previous fingerprint", "remote_mod_id", remoteModID, "error", err)
		}
	}

	updated, _ := in.profiles.Get(profile.ID)
	mod := *updated.FindMod(remoteModID)

	outcome, actErr := in.activate(profile.ID, modsFolder)
	if actErr != nil {
		logging.Warn("installer: activation failed after update", "remote_mod_id", remoteModID, "error", actErr)
	}

	emit(sink, StageCleanup, "")
	os.RemoveAll(staged.tempDir)

	return Result{ProfileMod: mod, Outcome: outcome}, nil
}

// RollbackOne swaps a mod's current and previous fingerprints back,
// mirroring the teacher's SwapModVersions, then reconciles.
func (in *Installer) RollbackOne(remoteModID int64, modsFolder string) (activator.Outcome, error) {
	profile, ok := in.profiles.Active()
	if !ok {
		return activator.Outcome{}, domain.NewError(domain.ErrKindNoActiveProfile, "installer.RollbackOne", errors.New("no active profile"))
	}
	mod := profile.FindMod(remoteModID)
	if mod == nil {
		return activator.Outcome{}, domain.NewError(domain.ErrKindModNotInProfile, "installer.RollbackOne", domain.ErrModNotFound)
	}
	if mod.PreviousFingerprint == "" {
		return activator.Outcome{}, domain.NewError(domain.ErrKindInvalidProfile, "installer.RollbackOne", fmt.Errorf("no previous version recorded for mod %d", remoteModID))
	}

	current, previous := mod.Fingerprint, mod.PreviousFingerprint
	if err := in.profiles.UpdateFingerprint(profile.ID, remoteModID, previous, mod.VersionLabel, mod.ArchiveName); err != nil {
		return activator.Outcome{}, err
	}
	// UpdateFingerprint just wrote previous -> PreviousFingerprint=current;
	// that's the correct swapped state for a single rollback.

	if current != "" {
		if err := in.cache.ReleaseProfileFingerprint(current, profile.ID); err != nil {
			logging.Warn("installer: failed releasing rolled-back fingerprint", "remote_mod_id", remoteModID, "error", err)
		}
	}
	if entry, ok := in.cache.Get(previous); ok {
		entry.AddUser(profile.ID)
	}

	return in.activate(profile.ID, modsFolder)
}

// UpdateCandidate is one mod for which a newer version was found.
type UpdateCandidate struct {
	RemoteModID    int64
	CurrentVersion string
	LatestVersion  string
	LatestFileID   int64
}

// creatorWarnedRatio looks up remoteModID's community report count and
// expresses it as a fraction of warnedRatioSampleSize, clamped to [0, 1].
// Returns 0 if no warning service is configured or the lookup fails — the
// ratio rule in fakescore.Score then simply never fires.
func (in *Installer) creatorWarnedRatio(ctx context.Context, remoteModID int64) float64 {
	if in.warnings == nil || in.warnedRatioSampleSize <= 0 {
		return 0
	}
	statuses, err := in.warnings.BatchWarningStatus(ctx, []int64{remoteModID})
	if err != nil {
		return 0
	}
	status, ok := statuses[remoteModID]
	if !ok {
		return 0
	}
	ratio := float64(status.ReportCount) / float64(in.warnedRatioSampleSize)
	if ratio > 1 {
		ratio = 1
	}
	return ratio
}

// UpdateAvailable diffs every enabled mod's recorded version against the
// catalog's latest, skipping UpdatePinned mods.
func (in *Installer) UpdateAvailable(ctx context.Context) ([]UpdateCandidate, error) {
	profile, ok := in.profiles.Active()
	if !ok {
		return nil, domain.NewError(domain.ErrKindNoActiveProfile, "installer.UpdateAvailable", errors.New("no active profile"))
	}

	var candidates []UpdateCandidate
	var errs []error
	for _, mod := range profile.Mods {
		if !mod.Enabled || mod.UpdatePolicy == domain.UpdatePinned {
			continue
		}
		resolved, err := in.downloader.ResolveDownload(ctx, mod.RemoteModID, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("mod %d: %w", mod.RemoteModID, err))
			continue
		}
		latest := strconv.FormatInt(resolved.EffectiveFileID, 10)
		if latest != mod.VersionLabel {
			candidates = append(candidates, UpdateCandidate{
				RemoteModID:    mod.RemoteModID,
				CurrentVersion: mod.VersionLabel,
				LatestVersion:  latest,
				LatestFileID:   resolved.EffectiveFileID,
			})
		}
	}

	if len(errs) > 0 {
		return candidates, domain.NewError(domain.ErrKindResolveFailed, "installer.UpdateAvailable", errors.Join(errs...))
	}
	return candidates, nil
}

// UpdateAll applies UpdateOne to every mod with UpdatePolicy == UpdateAuto
// that has an update available. Partial failures are collected and
// returned alongside the mods that did succeed.
func (in *Installer) UpdateAll(ctx context.Context, modsFolder string, sink ProgressSink) ([]Result, error) {
	profile, ok := in.profiles.Active()
	if !ok {
		return nil, domain.NewError(domain.ErrKindNoActiveProfile, "installer.UpdateAll", errors.New("no active profile"))
	}

	var results []Result
	var errs []error
	for _, mod := range profile.Mods {
		if mod.UpdatePolicy != domain.UpdateAuto {
			continue
		}
		resolved, err := in.downloader.ResolveDownload(ctx, mod.RemoteModID, 0)
		if err != nil {
			errs = append(errs, fmt.Errorf("mod %d: %w", mod.RemoteModID, err))
			continue
		}
		if strconv.FormatInt(resolved.EffectiveFileID, 10) == mod.VersionLabel {
			continue
		}
		result, err := in.UpdateOne(ctx, mod.RemoteModID, modsFolder, nil, sink)
		if err != nil {
			errs = append(errs, fmt.Errorf("mod %d: %w", mod.RemoteModID, err))
			continue
		}
		results = append(results, result)
	}

	if len(errs) > 0 {
		return results, errors.Join(errs...)
	}
	return results, nil
}

type stagedArchive struct {
	tempDir  string
	tempFile string
	modName  string
	resolved external.ResolvedDownload
	entry    *domain.CachedArchive
}

// resolveFetchInspectAdmit runs stages 1-4, shared by Install and
// UpdateOne.
func (in *Installer) resolveFetchInspectAdmit(ctx context.Context, req Request, profileID domain.ProfileID, decide DecisionSink, sink ProgressSink) (*stagedArchive, error) {
	emit(sink, StageResolve, "")
	resolved, err := in.downloader.ResolveDownload(ctx, req.RemoteModID, req.FileID)
	if err != nil {
		return nil, domain.NewError(domain.ErrKindResolveFailed, "installer.resolve", err)
	}

	tempDir := filepath.Join(in.tempRoot, fmt.Sprintf("mod_%d_%d", req.RemoteModID, time.Now().UnixNano()))
	tempFile := filepath.Join(tempDir, resolved.ArchiveName)

	emit(sink, StageFetch, "")
	if err := in.fetch(ctx, resolved.DownloadURL, tempFile, sink); err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	emit(sink, StageInspect, "")
	insp, err := in.inspector.Inspect(tempFile)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	meta, metaErr := in.downloader.GetModMetadata(ctx, req.RemoteModID)
	if metaErr != nil {
		logging.Warn("installer: metadata fetch failed, scoring without it", "remote_mod_id", req.RemoteModID, "error", metaErr)
	}
	score := fakescore.Score(fakescore.Meta{
		Title:              resolved.ModName,
		DownloadCount:      int(meta.DownloadCount),
		IsTrending:         meta.IsTrending,
		CreatorWarnedRatio: in.creatorWarnedRatio(ctx, req.RemoteModID),
	}, insp)

	if score.Suspicious && decide != nil {
		switch decide(score) {
		case DecisionCancel:
			os.RemoveAll(tempDir)
			return nil, domain.NewError(domain.ErrKindUserAborted, "installer.inspect_score", errors.New("user cancelled on suspicious archive"))
		case DecisionReport:
			if in.reports != nil {
				_ = in.reports.SubmitReport(ctx, external.FakeReport{
					RemoteModID: req.RemoteModID,
					MachineID:   req.MachineID,
					Reason:      "fake_score",
					FakeScore:   score.Score,
				})
			}
			os.RemoveAll(tempDir)
			return nil, domain.NewError(domain.ErrKindUserAborted, "installer.inspect_score", errors.New("user reported suspicious archive"))
		}
	}

	emit(sink, StageAdmit, "")
	entry, err := in.cache.Admit(tempFile, req.RemoteModID, resolved.ArchiveName, profileID)
	if err != nil {
		os.RemoveAll(tempDir)
		return nil, err
	}

	return &stagedArchive{
		tempDir:  tempDir,
		tempFile: tempFile,
		modName:  resolved.ModName,
		resolved: resolved,
		entry:    entry,
	}, nil
}

// activate rebuilds the desired symlink set for profileID's enabled mods
// and reconciles modsFolder. It is skipped silently if modsFolder does not
// exist, per spec.md §4.G's preconditions.
func (in *Installer) activate(profileID domain.ProfileID, modsFolder string) (activator.Outcome, error) {
	if modsFolder == "" {
		return activator.Outcome{}, nil
	}
	if _, err := os.Stat(modsFolder); err != nil {
		if os.IsNotExist(err) {
			return activator.Outcome{}, nil
		}
		return activator.Outcome{}, err
	}

	profile, err := in.profiles.Get(profileID)
	if err != nil {
		return activator.Outcome{}, err
	}

	enabled := profile.EnabledMods()
	named := make([]activator.NamedMod, 0, len(enabled))
	for _, m := range enabled {
		named = append(named, activator.NamedMod{DisplayName: m.DisplayName, Fingerprint: m.Fingerprint})
	}
	names := activator.DisambiguateNames(named)

	desired := make([]activator.DesiredLink, 0, len(enabled))
	for _, m := range enabled {
		desired = append(desired, activator.DesiredLink{
			SourcePath: in.cache.PathFor(m.Fingerprint),
			SafeName:   names[m.Fingerprint],
		})
	}

	return in.activator.Reconcile(modsFolder, in.cache.Root(), desired)
}

// Reactivate rebuilds the active profile's desired symlink set and
// reconciles modsFolder against it, without running the rest of the
// install pipeline. Used by callers that mutate the profile's mod list
// directly (remove, toggle) and need the same immediate-reconcile
// behavior Install/UpdateOne get as a side effect of stage 6.
func (in *Installer) Reactivate(profileID domain.ProfileID, modsFolder string) (activator.Outcome, error) {
	return in.activate(profileID, modsFolder)
}

// fetch makes exactly one download attempt through the configured
// Downloader, enforcing the stall watchdog. It does not retry: spec.md §7
// treats a failed fetch as transient and leaves retry policy to the
// caller (cmd/simsforge), not the core.
func (in *Installer) fetch(parent context.Context, downloadURL, destPath string, sink ProgressSink) error {
	ctx := parent
	var cancel context.CancelFunc
	if in.downloadTimeout > 0 {
		ctx, cancel = context.WithTimeout(parent, in.downloadTimeout)
		defer cancel()
	}

	guard := newStallGuard(ctx, in.stallTimeout)
	defer guard.stop()

	_, err := in.downloader.Fetch(guard.ctx, downloadURL, destPath, func(downloaded, total int64) {
		guard.kick()
		if sink != nil {
			pct := ""
			if total > 0 {
				pct = strconv.FormatInt(downloaded*100/total, 10)
			}
			sink(StageFetch, pct)
		}
	})
	if guard.stalled() {
		return domain.NewError(domain.ErrKindDownloadStalled, "installer.fetch", errors.New("no progress before stall timeout"))
	}
	if err != nil {
		return domain.NewError(domain.ErrKindDownloadFailed, "installer.fetch", err)
	}
	return nil
}

func emit(sink ProgressSink, stage, detail string) {
	if sink != nil {
		sink(stage, detail)
	}
}
