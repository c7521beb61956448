// Package config resolves the application data root and loads the
// operator-tunable YAML settings file, following the directory layout and
// load/save shape of the teacher's internal/storage/config package.
package config

import (
	"os"
	"path/filepath"
	"runtime"
)

// Paths is the resolved set of locations SimsForge persists state under.
type Paths struct {
	Root          string // application data root, e.g. ~/.local/share/SimsForge
	CacheIndex    string
	CacheRoot     string
	ProfilesIndex string
	DiskPerfFile  string
	TempDownloads string
	ConfigFile    string
	EventLogDB    string
	SettingsFile  string
}

// DefaultRoot returns the application data root for the current platform,
// honoring SIMSFORGE_HOME for tests and CI.
func DefaultRoot() (string, error) {
	if override := os.Getenv("SIMSFORGE_HOME"); override != "" {
		return override, nil
	}

	base, err := baseDataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(base, "SimsForge"), nil
}

func baseDataDir() (string, error) {
	switch runtime.GOOS {
	case "windows":
		if appData := os.Getenv("APPDATA"); appData != "" {
			return appData, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "AppData", "Roaming"), nil
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, "Library", "Application Support"), nil
	default:
		if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
			return xdg, nil
		}
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		return filepath.Join(home, ".local", "share"), nil
	}
}

// NewPaths derives every persisted-state location from root, matching the
// layout fixed by the spec's persisted state section.
func NewPaths(root string) Paths {
	return Paths{
		Root:          root,
		CacheIndex:    filepath.Join(root, "ModsCache", "cache.index.json"),
		CacheRoot:     filepath.Join(root, "ModsCache"),
		ProfilesIndex: filepath.Join(root, "Profiles", "index.json"),
		DiskPerfFile:  filepath.Join(root, "disk-performance.json"),
		TempDownloads: filepath.Join(root, "temp", "downloads"),
		ConfigFile:    filepath.Join(root, "config.yaml"),
		EventLogDB:    filepath.Join(root, "events.db"),
		SettingsFile:  filepath.Join(root, "settings.json"),
	}
}

// EnsureDirs creates every directory p's files live under.
func (p Paths) EnsureDirs() error {
	dirs := []string{
		p.Root,
		p.CacheRoot,
		filepath.Dir(p.ProfilesIndex),
		p.TempDownloads,
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// ArchiveFilesDir returns the extracted-files directory for a fingerprint,
// relative to CacheRoot: "<fingerprint>/files".
func (p Paths) ArchiveFilesDir(fingerprint string) string {
	return filepath.Join(p.CacheRoot, fingerprint, "files")
}

// ArchiveMetadataFile returns "<fingerprint>/metadata.json" under CacheRoot.
func (p Paths) ArchiveMetadataFile(fingerprint string) string {
	return filepath.Join(p.CacheRoot, fingerprint, "metadata.json")
}
