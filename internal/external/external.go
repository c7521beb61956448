// Package external declares the narrow, consumed-only interfaces the core
// depends on for remote catalog access: resolving a download, fetching mod
// metadata, and the two presentation-layer services (fake-report
// submission, catalog warning lookups). Shaped after the teacher's
// internal/source.Source interface, narrowed to exactly what spec.md §6
// names — no search, no auth, no dependency graph.
package external

import "context"

// ResolvedDownload is what Downloader.ResolveDownload returns: everything
// the Installer's Fetch stage needs to stream the archive.
type ResolvedDownload struct {
	ArchiveName     string
	DownloadURL     string
	ByteSize        int64
	EffectiveFileID int64
	ModName         string
}

// ModMetadata is presentation metadata attached to a ProfileMod, never
// consulted by core logic beyond the Fake-Score Evaluator's inputs.
type ModMetadata struct {
	ThumbnailURL          string
	Authors               []string
	LastUpdated           string
	LatestFileDisplayName string
	DownloadCount         int64
	IsTrending            bool
}

// Downloader resolves a remote mod reference to a fetchable archive and
// streams its bytes. fileID of 0 means "latest".
type Downloader interface {
	ResolveDownload(ctx context.Context, remoteModID, fileID int64) (ResolvedDownload, error)
	GetModMetadata(ctx context.Context, remoteModID int64) (ModMetadata, error)
	Fetch(ctx context.Context, downloadURL, destPath string, progress func(downloaded, total int64)) (FetchResult, error)
}

// FetchResult is the outcome of a Downloader.Fetch call.
type FetchResult struct {
	Path        string
	ByteSize    int64
	ChecksumMD5 string
}

// FakeReportReason enumerates why a user reported a mod as fake.
type FakeReportReason string

// FakeReport is submitted only when the user explicitly chooses "report"
// during the Installer's inspect-and-score stage.
type FakeReport struct {
	RemoteModID int64
	MachineID   string
	Reason      FakeReportReason
	FakeScore   int
	CreatorID   string
	CreatorName string
}

// FakeReportPublisher submits a user-initiated fake-mod report. A 409
// ("already reported") response is treated as success by callers.
type FakeReportPublisher interface {
	SubmitReport(ctx context.Context, report FakeReport) error
}

// WarningStatus is one remote mod's community warning state, for display
// only — never part of the Installer's critical path.
type WarningStatus struct {
	HasWarning    bool
	ReportCount   int
	IsAutoWarned  bool
	Reason        string
	CreatorBanned bool
}

// CatalogWarningService looks up community warning status in bulk.
type CatalogWarningService interface {
	BatchWarningStatus(ctx context.Context, remoteModIDs []int64) (map[int64]WarningStatus, error)
}
