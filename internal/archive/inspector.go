// Package archive inspects and extracts ZIP mod archives: enumerating
// contents for the fake-score evaluator without extracting, and extracting
// path-safely for cache admission. Adapted from the teacher's
// internal/core/extractor.go ZIP path, generalized with entry/size limits
// and a content classification pass the teacher's extractor does not need.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/teyk0o/simsforge/internal/domain"
)

// Limits bounds a ZIP's uncompressed size and entry count, guarding against
// zip bombs and pathological archives.
type Limits struct {
	MaxUncompressedBytes int64
	MaxEntries           int
}

// DefaultLimits is a conservative default: 2 GiB uncompressed, 200k entries.
var DefaultLimits = Limits{
	MaxUncompressedBytes: 2 << 30,
	MaxEntries:           200_000,
}

// informationalExtensions are file types the fake-score evaluator treats as
// "informational only" when they make up the entire archive contents.
var informationalExtensions = map[string]bool{
	".txt": true, ".html": true, ".htm": true, ".url": true,
	".lnk": true, ".md": true, ".pdf": true,
}

// Inspection is the result of enumerating an archive's entries without
// extracting them.
type Inspection struct {
	TotalEntries     int
	FileList         []string
	HasPackageFiles  bool
	HasScriptFiles   bool
	SuspiciousFiles  bool
}

// Manifest is the result of extracting an archive: the files actually
// written to disk, relative to destDir.
type Manifest struct {
	Files []domain.ExtractedFile
}

// Inspector enumerates and extracts ZIP archives.
type Inspector struct {
	limits Limits
}

// New creates an Inspector with the given limits.
func New(limits Limits) *Inspector {
	return &Inspector{limits: limits}
}

// Inspect enumerates archivePath's entries without extracting them.
func (ins *Inspector) Inspect(archivePath string) (*Inspection, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, domain.NewError(domain.ErrKindUnsafeArchive, "inspect", err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return nil, domain.NewError(domain.ErrKindUnsafeArchive, "inspect", fmt.Errorf("archive has zero entries"))
	}
	if len(r.File) > ins.limits.MaxEntries {
		return nil, domain.NewError(domain.ErrKindArchiveTooLarge, "inspect", fmt.Errorf("%d entries exceeds limit %d", len(r.File), ins.limits.MaxEntries))
	}

	insp := &Inspection{TotalEntries: len(r.File)}
	var totalUncompressed int64

	for _, f := range r.File {
		if err := validateEntryName(f.Name); err != nil {
			return nil, domain.NewError(domain.ErrKindUnsafeArchive, "inspect", err)
		}
		if isSymlinkOrDevice(f) {
			return nil, domain.NewError(domain.ErrKindUnsafeArchive, "inspect", fmt.Errorf("entry %q is a symlink or device file", f.Name))
		}

		totalUncompressed += int64(f.UncompressedSize64)
		if totalUncompressed > ins.limits.MaxUncompressedBytes {
			return nil, domain.NewError(domain.ErrKindArchiveTooLarge, "inspect", fmt.Errorf("uncompressed size exceeds limit %d", ins.limits.MaxUncompressedBytes))
		}

		if f.FileInfo().IsDir() {
			continue
		}

		insp.FileList = append(insp.FileList, f.Name)
		classifyFile(f.Name, insp)
	}

	if len(insp.FileList) == 0 {
		insp.SuspiciousFiles = true
	}

	return insp, nil
}

func classifyFile(name string, insp *Inspection) {
	ext := strings.ToLower(filepath.Ext(name))
	switch ext {
	case ".package":
		insp.HasPackageFiles = true
	case ".ts4script", ".py":
		insp.HasScriptFiles = true
	}
	if !informationalExtensions[ext] && ext != "" {
		// leave SuspiciousFiles for the rule-table pass in fakescore; this
		// flag is reserved for entries the inspector itself distrusts, e.g.
		// executables masquerading as mod content.
		if ext == ".exe" || ext == ".scr" || ext == ".bat" || ext == ".cmd" {
			insp.SuspiciousFiles = true
		}
	}
}

// isSymlinkOrDevice reports whether a ZIP entry encodes a symlink (stored
// Unix mode bits with the symlink type) or another non-regular file type.
func isSymlinkOrDevice(f *zip.File) bool {
	mode := f.Mode()
	return mode&os.ModeSymlink != 0 || mode&os.ModeDevice != 0 || mode&os.ModeNamedPipe != 0 || mode&os.ModeSocket != 0
}

// validateEntryName rejects any entry name that could escape an extraction
// root: absolute paths, drive letters, NUL bytes, or ".." traversal.
func validateEntryName(name string) error {
	if name == "" {
		return fmt.Errorf("empty entry name")
	}
	if strings.ContainsRune(name, 0) {
		return fmt.Errorf("entry name contains NUL byte: %q", name)
	}
	if strings.HasPrefix(name, "/") || strings.HasPrefix(name, `\`) {
		return fmt.Errorf("absolute entry path: %q", name)
	}
	if len(name) >= 2 && name[1] == ':' {
		return fmt.Errorf("drive-letter entry path: %q", name)
	}
	cleaned := filepath.ToSlash(filepath.Clean(name))
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return fmt.Errorf("path traversal in entry: %q", name)
	}
	return nil
}

// Extract extracts every regular entry in archivePath into destDir,
// preserving relative paths, and returns the manifest of files written. On
// any error the partially written tree is left for the caller to remove
// (extraction is atomic at the per-file level only).
func (ins *Inspector) Extract(archivePath, destDir string) (*Manifest, error) {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return nil, domain.NewError(domain.ErrKindUnsafeArchive, "extract", err)
	}
	defer r.Close()

	if len(r.File) == 0 {
		return nil, domain.NewError(domain.ErrKindUnsafeArchive, "extract", fmt.Errorf("archive has zero entries"))
	}
	if len(r.File) > ins.limits.MaxEntries {
		return nil, domain.NewError(domain.ErrKindArchiveTooLarge, "extract", fmt.Errorf("%d entries exceeds limit", len(r.File)))
	}

	if err := os.MkdirAll(destDir, 0o755); err != nil {
		return nil, domain.NewError(domain.ErrKindExtractionFailed, "extract", err)
	}

	manifest := &Manifest{}
	var totalUncompressed int64

	for _, f := range r.File {
		if err := validateEntryName(f.Name); err != nil {
			return nil, domain.NewError(domain.ErrKindUnsafeArchive, "extract", err)
		}
		if isSymlinkOrDevice(f) {
			return nil, domain.NewError(domain.ErrKindUnsafeArchive, "extract", fmt.Errorf("entry %q is a symlink or device file", f.Name))
		}

		totalUncompressed += int64(f.UncompressedSize64)
		if totalUncompressed > ins.limits.MaxUncompressedBytes {
			return nil, domain.NewError(domain.ErrKindArchiveTooLarge, "extract", fmt.Errorf("uncompressed size exceeds limit"))
		}

		destPath := filepath.Join(destDir, filepath.FromSlash(f.Name))

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0o755); err != nil {
				return nil, domain.NewError(domain.ErrKindExtractionFailed, "extract", err)
			}
			continue
		}

		if err := extractOne(f, destPath); err != nil {
			return nil, domain.NewError(domain.ErrKindExtractionFailed, "extract", err)
		}

		rel := filepath.ToSlash(f.Name)
		manifest.Files = append(manifest.Files, domain.ExtractedFile{
			RelativePath: rel,
			LeafName:     filepath.Base(rel),
		})
	}

	return manifest, nil
}

func extractOne(f *zip.File, destPath string) (err error) {
	if mkErr := os.MkdirAll(filepath.Dir(destPath), 0o755); mkErr != nil {
		return fmt.Errorf("creating directory for %s: %w", f.Name, mkErr)
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("opening archive entry %s: %w", f.Name, err)
	}
	defer func() {
		if cerr := rc.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing archive entry %s: %w", f.Name, cerr)
		}
	}()

	mode := f.Mode()
	if mode == 0 {
		mode = 0o644
	}
	out, err := os.OpenFile(destPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return fmt.Errorf("creating file %s: %w", destPath, err)
	}
	defer func() {
		if cerr := out.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("closing file %s: %w", destPath, cerr)
		}
	}()

	if _, err = io.Copy(out, rc); err != nil {
		return fmt.Errorf("writing file %s: %w", destPath, err)
	}

	return nil
}
