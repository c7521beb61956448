// Package catalogclient is a thin HTTP client implementing
// external.Downloader against a generic JSON REST catalog API. It performs
// wire-format translation only — no retry, no caching, no business logic;
// per spec.md §7, retry/backoff on a failed fetch is the caller's
// responsibility (cmd/simsforge), not this client's or the Installer's.
// Request shape and single-attempt semantics are grounded in the teacher's
// internal/source/nexusmods and internal/source/curseforge clients,
// generalized from NexusMods/CurseForge's bespoke JSON shapes to the
// neutral {archiveName, downloadUrl, byteSize, effectiveFileId, modName}
// envelope spec.md §6 names.
package catalogclient

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"

	"github.com/teyk0o/simsforge/internal/external"
)

// DefaultMaxRedirects is the bounded redirect depth from spec.md §4.G
// stage 2.
const DefaultMaxRedirects = 5

// Client talks to a generic JSON mod catalog API.
type Client struct {
	httpClient   *http.Client
	baseURL      string
	apiKey       string
	maxRedirects int
}

// New returns a Client targeting baseURL, authenticating with apiKey
// (sent as an "apikey" header, empty means unauthenticated). A nil
// httpClient falls back to http.DefaultClient.
func New(httpClient *http.Client, baseURL, apiKey string) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{
		httpClient:   httpClient,
		baseURL:      baseURL,
		apiKey:       apiKey,
		maxRedirects: DefaultMaxRedirects,
	}
}

func (c *Client) authHeaders(req *http.Request) {
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	req.Header.Set("Accept", "application/json")
}

func (c *Client) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	c.authHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("executing request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("catalog API error (status %d): %s", resp.StatusCode, string(body))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}

type resolveResponse struct {
	ArchiveName     string `json:"archiveName"`
	DownloadURL     string `json:"downloadUrl"`
	ByteSize        int64  `json:"byteSize"`
	EffectiveFileID int64  `json:"effectiveFileId"`
	ModName         string `json:"modName"`
}

// ResolveDownload implements external.Downloader.
func (c *Client) ResolveDownload(ctx context.Context, remoteModID, fileID int64) (external.ResolvedDownload, error) {
	path := fmt.Sprintf("/mods/%d/resolve", remoteModID)
	if fileID > 0 {
		path += fmt.Sprintf("?fileId=%d", fileID)
	}

	var r resolveResponse
	if err := c.getJSON(ctx, path, &r); err != nil {
		return external.ResolvedDownload{}, err
	}

	return external.ResolvedDownload{
		ArchiveName:     r.ArchiveName,
		DownloadURL:     r.DownloadURL,
		ByteSize:        r.ByteSize,
		EffectiveFileID: r.EffectiveFileID,
		ModName:         r.ModName,
	}, nil
}

type metadataResponse struct {
	ThumbnailURL          string   `json:"thumbnail"`
	Authors               []string `json:"authors"`
	LastUpdated           string   `json:"lastUpdated"`
	LatestFileDisplayName string   `json:"latestFileDisplayName"`
	DownloadCount         int64    `json:"downloadCount"`
	IsTrending            bool     `json:"isTrending"`
}

// GetModMetadata implements external.Downloader.
func (c *Client) GetModMetadata(ctx context.Context, remoteModID int64) (external.ModMetadata, error) {
	var m metadataResponse
	if err := c.getJSON(ctx, fmt.Sprintf("/mods/%d", remoteModID), &m); err != nil {
		return external.ModMetadata{}, err
	}
	return external.ModMetadata{
		ThumbnailURL:          m.ThumbnailURL,
		Authors:               m.Authors,
		LastUpdated:           m.LastUpdated,
		LatestFileDisplayName: m.LatestFileDisplayName,
		DownloadCount:         m.DownloadCount,
		IsTrending:            m.IsTrending,
	}, nil
}

// ErrTooManyRedirects is returned by Fetch when the server redirect chain
// exceeds the client's configured bound.
type ErrTooManyRedirects struct {
	Limit int
}

func (e *ErrTooManyRedirects) Error() string {
	return fmt.Sprintf("exceeded %d redirects", e.Limit)
}

// Fetch streams downloadURL to destPath, following redirects up to
// c.maxRedirects. Single attempt, no retry — retry on failure is the
// caller's responsibility. It reports progress via progress(downloaded,
// total) and returns the
// destination's size and MD5 transfer checksum.
func (c *Client) Fetch(ctx context.Context, downloadURL, destPath string, progress func(downloaded, total int64)) (external.FetchResult, error) {
	client := *c.httpClient
	client.CheckRedirect = func(req *http.Request, via []*http.Request) error {
		if len(via) >= c.maxRedirects {
			return &ErrTooManyRedirects{Limit: c.maxRedirects}
		}
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, downloadURL, nil)
	if err != nil {
		return external.FetchResult{}, fmt.Errorf("creating request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return external.FetchResult{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return external.FetchResult{}, fmt.Errorf("download failed: HTTP %d %s", resp.StatusCode, resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return external.FetchResult{}, fmt.Errorf("creating destination dir: %w", err)
	}

	tempPath := destPath + ".tmp"
	f, err := os.Create(tempPath)
	if err != nil {
		return external.FetchResult{}, fmt.Errorf("creating temp file: %w", err)
	}
	removeTemp := true
	defer func() {
		f.Close()
		if removeTemp {
			os.Remove(tempPath)
		}
	}()

	hasher := md5.New()
	reader := &progressReader{reader: resp.Body, total: resp.ContentLength, onRead: progress}

	written, err := io.Copy(f, io.TeeReader(reader, hasher))
	if err != nil {
		return external.FetchResult{}, fmt.Errorf("streaming download: %w", err)
	}
	if err := f.Close(); err != nil {
		return external.FetchResult{}, fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tempPath, destPath); err != nil {
		return external.FetchResult{}, fmt.Errorf("renaming download: %w", err)
	}
	removeTemp = false

	return external.FetchResult{
		Path:        destPath,
		ByteSize:    written,
		ChecksumMD5: hex.EncodeToString(hasher.Sum(nil)),
	}, nil
}

type progressReader struct {
	reader     io.Reader
	total      int64
	downloaded int64
	onRead     func(downloaded, total int64)
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.reader.Read(p)
	if n > 0 {
		r.downloaded += int64(n)
		if r.onRead != nil {
			r.onRead(r.downloaded, r.total)
		}
	}
	return n, err
}
