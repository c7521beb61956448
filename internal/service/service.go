// Package service is the orchestration layer: one struct wiring every
// other internal package into the CLI/API surface spec.md §6 names,
// playing the role of the teacher's internal/core.Service. It owns
// construction (resolving the data root, loading config, opening the
// event log and every durable store) and exposes thin, mostly-delegating
// methods for profile, mod, and maintenance operations.
package service

import (
	"context"
	"fmt"
	"time"

	"github.com/teyk0o/simsforge/internal/activator"
	"github.com/teyk0o/simsforge/internal/archive"
	"github.com/teyk0o/simsforge/internal/cache"
	"github.com/teyk0o/simsforge/internal/config"
	"github.com/teyk0o/simsforge/internal/diskprofiler"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/external"
	"github.com/teyk0o/simsforge/internal/installer"
	"github.com/teyk0o/simsforge/internal/logging"
	"github.com/teyk0o/simsforge/internal/profilestore"
	"github.com/teyk0o/simsforge/internal/reset"
	"github.com/teyk0o/simsforge/internal/settings"
	"github.com/teyk0o/simsforge/internal/storage/db"
)

// Dependencies are the collaborators a Service cannot construct for
// itself: where to persist state, where the game's Mods folder lives, and
// the remote catalog client. Reports, Warnings, and Prefs may all be nil.
type Dependencies struct {
	Root       string // application data root; config.DefaultRoot() if empty
	ModsFolder string
	Downloader external.Downloader
	Reports    external.FakeReportPublisher
	Warnings   external.CatalogWarningService
	Prefs      reset.PreferenceClearer
}

// Service wires config, logging, the event-log accelerator, the Cache,
// the Profile Store, the Activator, the Disk Profiler, the Installer, and
// the Reset manager into a single orchestration point.
type Service struct {
	paths    config.Paths
	cfg      *config.Config
	db       *db.DB
	cache    *cache.Cache
	profiles *profilestore.Store
	activ    *activator.Activator
	profiler *diskprofiler.Profiler
	inst     *installer.Installer
	resetMgr *reset.Manager
	settings *settings.Store

	modsFolder string
}

// New resolves the data root, loads configuration, and opens every
// durable store, self-healing corrupt ones along the way. The returned
// Service owns the event-log connection; callers must call Close.
func New(deps Dependencies) (*Service, error) {
	root := deps.Root
	if root == "" {
		r, err := config.DefaultRoot()
		if err != nil {
			return nil, fmt.Errorf("resolving data root: %w", err)
		}
		root = r
	}

	paths := config.NewPaths(root)
	if err := paths.EnsureDirs(); err != nil {
		return nil, fmt.Errorf("creating data directories: %w", err)
	}

	appConfig, err := config.Load(paths.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	logging.Init(logging.ParseLevel(appConfig.LogLevel), logging.ParseFormat(appConfig.LogFormat))

	database, err := db.Open(paths.EventLogDB)
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	inspector := archive.New(archive.DefaultLimits)

	c, err := cache.New(paths.CacheRoot, paths.CacheIndex, inspector, database)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("opening cache: %w", err)
	}

	profiles, err := profilestore.New(paths.ProfilesIndex)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("opening profile store: %w", err)
	}

	settingsStore, err := settings.New(paths.SettingsFile)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("opening settings: %w", err)
	}

	profiler := diskprofiler.New(paths.DiskPerfFile)
	linkMethod := appConfig.DefaultLinkMethod
	if perf, perfErr := profiler.CurrentConfig(); perfErr == nil && perf != nil && !perf.SymlinkCapable {
		linkMethod = domain.LinkJunction
	}
	act := activator.New(linkMethod)

	inst := installer.New(
		deps.Downloader,
		inspector,
		c,
		profiles,
		act,
		deps.Reports,
		deps.Warnings,
		paths.TempDownloads,
		appConfig.FakeScoreConfig.WarnedRatioSampleSize,
		time.Duration(appConfig.DownloadTimeoutS)*time.Second,
		time.Duration(appConfig.StallTimeoutS)*time.Second,
	)

	return &Service{
		paths:      paths,
		cfg:        appConfig,
		db:         database,
		cache:      c,
		profiles:   profiles,
		activ:      act,
		profiler:   profiler,
		inst:       inst,
		resetMgr:   reset.New(c, profiles, profiler, deps.Prefs),
		settings:   settingsStore,
		modsFolder: deps.ModsFolder,
	}, nil
}

// Close releases the event-log connection.
func (s *Service) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Paths returns the resolved data-root layout.
func (s *Service) Paths() config.Paths { return s.paths }

// Config returns the loaded operator-tunable configuration.
func (s *Service) Config() *config.Config { return s.cfg }

// ModsFolder returns the game's Mods folder this Service activates into.
func (s *Service) ModsFolder() string { return s.modsFolder }

// ---- Profile ----

// CreateProfile creates a new, empty profile named name.
func (s *Service) CreateProfile(name string) (*domain.Profile, error) {
	return s.profiles.Create(name)
}

// DeleteProfile removes a profile and releases its cache references so
// GC can reap any archive no other profile still uses.
func (s *Service) DeleteProfile(id domain.ProfileID) error {
	if err := s.profiles.Delete(id); err != nil {
		return err
	}
	return s.cache.DetachProfile(id)
}

// ListProfiles returns every profile.
func (s *Service) ListProfiles() []*domain.Profile {
	return s.profiles.List()
}

// ActiveProfile returns the active profile, or (nil, false) if none is
// active.
func (s *Service) ActiveProfile() (*domain.Profile, bool) {
	return s.profiles.Active()
}

// SetActiveProfile moves the active marker to id, or clears it when id is
// empty.
func (s *Service) SetActiveProfile(id domain.ProfileID) error {
	return s.profiles.SetActive(id)
}

// ---- Mod ----

// InstallMod runs the full seven-stage install pipeline for remoteModID
// against the active profile. fileID of 0 means "latest".
func (s *Service) InstallMod(ctx context.Context, remoteModID, fileID int64, decide installer.DecisionSink, sink installer.ProgressSink) (installer.Result, error) {
	machineID, _ := s.settings.Get(settings.KeyMachineID)
	req := installer.Request{
		RemoteModID: remoteModID,
		FileID:      fileID,
		ModsFolder:  s.modsFolder,
		MachineID:   machineID,
	}
	return s.inst.Install(ctx, req, decide, sink)
}

// RemoveMod detaches remoteModID from the active profile, releases its
// cache reference, and reconciles modsFolder immediately (spec.md §9's
// resolution: reconcile is synchronous, not deferred to the next
// install).
func (s *Service) RemoveMod(remoteModID int64) (activator.Outcome, error) {
	profile, ok := s.profiles.Active()
	if !ok {
		return activator.Outcome{}, domain.NewError(domain.ErrKindNoActiveProfile, "service.RemoveMod", fmt.Errorf("no active profile"))
	}
	mod := profile.FindMod(remoteModID)
	if mod == nil {
		return activator.Outcome{}, domain.NewError(domain.ErrKindModNotInProfile, "service.RemoveMod", domain.ErrModNotFound)
	}
	fingerprint := mod.Fingerprint

	if err := s.profiles.RemoveMod(profile.ID, remoteModID); err != nil {
		return activator.Outcome{}, err
	}
	if err := s.cache.ReleaseProfileFingerprint(fingerprint, profile.ID); err != nil {
		logging.Warn("service: failed releasing cache reference after remove", "remote_mod_id", remoteModID, "error", err)
	}

	return s.inst.Reactivate(profile.ID, s.modsFolder)
}

// ToggleMod flips a mod's enabled flag and reconciles modsFolder
// immediately.
func (s *Service) ToggleMod(remoteModID int64, enabled bool) (activator.Outcome, error) {
	profile, ok := s.profiles.Active()
	if !ok {
		return activator.Outcome{}, domain.NewError(domain.ErrKindNoActiveProfile, "service.ToggleMod", fmt.Errorf("no active profile"))
	}
	if err := s.profiles.ToggleMod(profile.ID, remoteModID, enabled); err != nil {
		return activator.Outcome{}, err
	}
	return s.inst.Reactivate(profile.ID, s.modsFolder)
}

// UpdateAvailable diffs every enabled, non-pinned mod's recorded version
// against the catalog's latest.
func (s *Service) UpdateAvailable(ctx context.Context) ([]installer.UpdateCandidate, error) {
	return s.inst.UpdateAvailable(ctx)
}

// UpdateOne updates a single mod, preserving its previous fingerprint for
// rollback.
func (s *Service) UpdateOne(ctx context.Context, remoteModID int64, decide installer.DecisionSink, sink installer.ProgressSink) (installer.Result, error) {
	return s.inst.UpdateOne(ctx, remoteModID, s.modsFolder, decide, sink)
}

// UpdateAll applies UpdateOne to every mod with an auto-update policy that
// has a newer version in the catalog.
func (s *Service) UpdateAll(ctx context.Context, sink installer.ProgressSink) ([]installer.Result, error) {
	return s.inst.UpdateAll(ctx, s.modsFolder, sink)
}

// RollbackMod swaps a mod back to its previously installed version.
func (s *Service) RollbackMod(remoteModID int64) (activator.Outcome, error) {
	return s.inst.RollbackOne(remoteModID, s.modsFolder)
}

// ---- Maintenance ----

// BenchmarkDisk measures the Mods folder's throughput and persists the
// resulting pool-size configuration.
func (s *Service) BenchmarkDisk(sink diskprofiler.ProgressSink) (*domain.DiskPerformanceConfig, error) {
	return s.profiler.Benchmark(s.modsFolder, sink)
}

// ClearCache garbage-collects orphaned cache entries and sweeps stale
// temp-download directories.
func (s *Service) ClearCache() (removed int, freedBytes int64, err error) {
	return s.resetMgr.ClearCache(s.paths.TempDownloads)
}

// ResetEverything performs a full factory reset: deactivates the active
// profile, wipes modsFolder's top-level directories, deletes every
// profile, garbage-collects the cache, and clears external preferences.
func (s *Service) ResetEverything(ctx context.Context) (reset.Outcome, error) {
	return s.resetMgr.ResetEverything(ctx, s.modsFolder)
}

// CacheStats summarizes the cache's aggregate size and entry count.
func (s *Service) CacheStats() cache.Stats {
	return s.cache.Stats()
}

// ---- Settings ----

// SetCatalogAPIKey stores the catalog API key as an opaque string.
func (s *Service) SetCatalogAPIKey(key string) error {
	return s.settings.Set(settings.KeyCatalogAPIKey, key)
}

// CatalogAPIKey returns the stored catalog API key, or ("", false) if
// unset.
func (s *Service) CatalogAPIKey() (string, bool) {
	return s.settings.Get(settings.KeyCatalogAPIKey)
}
