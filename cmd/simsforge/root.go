package main

import (
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/teyk0o/simsforge/internal/config"
	"github.com/teyk0o/simsforge/internal/domain"
	"github.com/teyk0o/simsforge/internal/external/catalogclient"
	"github.com/teyk0o/simsforge/internal/logging"
	"github.com/teyk0o/simsforge/internal/service"
	"github.com/teyk0o/simsforge/internal/settings"
)

var version = "0.1.0"

// Global flags
var (
	dataRoot   string
	modsFolder string
	catalogURL string
	jsonOutput bool
	verbose    bool
)

var rootCmd = &cobra.Command{
	Use:   "simsforge",
	Short: "SimsForge - local mod manager for The Sims 4",
	Long: `simsforge keeps a content-addressed cache of downloaded mod archives,
deploys the active profile's enabled mods into the game's Mods folder via
symlinks, and organizes installs into named profiles.

Use subcommands for operations. Run 'simsforge --help' for the full list.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dataRoot, "data", "", "application data root (default: platform-specific; see SIMSFORGE_HOME)")
	rootCmd.PersistentFlags().StringVar(&modsFolder, "mods", "", "the game's Mods folder")
	rootCmd.PersistentFlags().StringVar(&catalogURL, "catalog-url", "https://api.simsforge.example", "base URL of the mod catalog API")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose logging")
}

// Execute runs the root command and exits with the code spec.md §6 maps
// error kinds to: 0 success, 2 precondition failure, 3 integrity failure,
// 4 external failure, 5 cancelled, 1 anything else.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if jsonOutput {
			fmt.Printf(`{"error":%q}`+"\n", err.Error())
		} else {
			pterm.Error.Println(err.Error())
		}
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	var derr *domain.Error
	if !errors.As(err, &derr) {
		return 1
	}
	switch derr.Kind {
	case domain.ErrKindNoActiveProfile, domain.ErrKindInvalidProfile, domain.ErrKindModNotInProfile:
		return 2
	case domain.ErrKindCacheCorrupt, domain.ErrKindProfileIndexCorrupt, domain.ErrKindSchemaTooNew,
		domain.ErrKindUnsafeArchive, domain.ErrKindArchiveTooLarge, domain.ErrKindExtractionFailed,
		domain.ErrKindFingerprintMismatch, domain.ErrKindSymlinkFailed:
		return 3
	case domain.ErrKindDownloadFailed, domain.ErrKindTooManyRedirects, domain.ErrKindDownloadStalled, domain.ErrKindResolveFailed:
		return 4
	case domain.ErrKindUserAborted, domain.ErrKindCancelled:
		return 5
	default:
		return 1
	}
}

// newService resolves the data root and wires a Service against the
// configured catalog API, reading a previously-saved API key (if any)
// from the settings facade before the Service constructs its own copy —
// the same "resolve config twice, once to decide what to build, once
// inside the service" shape as the teacher's getServiceConfig/NewService
// split.
func newService() (*service.Service, error) {
	root := dataRoot
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

	settingsStore, err := settings.New(paths.SettingsFile)
	if err != nil {
		return nil, fmt.Errorf("reading settings: %w", err)
	}
	apiKey, _ := settingsStore.Get(settings.KeyCatalogAPIKey)

	client := catalogclient.New(http.DefaultClient, catalogURL, apiKey)

	svc, err := service.New(service.Dependencies{
		Root:       root,
		ModsFolder: modsFolder,
		Downloader: client,
		Reports:    client,
		Warnings:   client,
	})
	if err != nil {
		return nil, err
	}
	// service.New initializes logging from config.yaml, so --verbose is
	// applied after it.
	if verbose {
		logging.Init(logging.LevelDebug, logging.FormatText)
	}
	return svc, nil
}

func printf(format string, args ...any) {
	if jsonOutput {
		return
	}
	fmt.Printf(format, args...)
}
