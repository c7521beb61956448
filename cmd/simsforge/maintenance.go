package main

import (
	"context"
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
)

var benchmarkDiskCmd = &cobra.Command{
	Use:   "benchmark-disk",
	Short: "Measure the Mods folder's throughput and recalibrate the concurrency pool size",
	Args:  cobra.NoArgs,
	RunE:  runBenchmarkDisk,
}

var clearCacheCmd = &cobra.Command{
	Use:   "clear-cache",
	Short: "Garbage-collect orphaned cache entries and stale temp downloads",
	Args:  cobra.NoArgs,
	RunE:  runClearCache,
}

var resetForce bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Factory reset: wipe every profile, the mods folder, and the cache",
	Args:  cobra.NoArgs,
	RunE:  runReset,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show the cache's aggregate size and entry count",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Manage opaque catalog credentials",
}

var settingsSetAPIKeyCmd = &cobra.Command{
	Use:   "set-api-key <key>",
	Short: "Store the catalog API key",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsSetAPIKey,
}

func init() {
	resetCmd.Flags().BoolVarP(&resetForce, "force", "f", false, "skip the confirmation prompt")

	settingsCmd.AddCommand(settingsSetAPIKeyCmd)

	rootCmd.AddCommand(benchmarkDiskCmd, clearCacheCmd, resetCmd, statsCmd, settingsCmd)
}

func runBenchmarkDisk(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	var progress func(percent int)
	if !jsonOutput {
		bar, _ := pterm.DefaultProgressbar.WithTotal(100).WithTitle("benchmarking disk").Start()
		progress = func(percent int) {
			bar.Add(percent - bar.Current)
		}
	}

	perf, err := svc.BenchmarkDisk(progress)
	if err != nil {
		return err
	}

	printf("disk type: %s, pool size: %d\n", perf.DiskType, perf.PoolSize)
	if jsonOutput {
		return printJSON(perf)
	}
	return nil
}

func runClearCache(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	removed, freedBytes, err := svc.ClearCache()
	if err != nil {
		return err
	}
	printf("garbage-collected %d orphaned cache entr(ies), freed %s\n", removed, humanize.Bytes(uint64(freedBytes)))
	if jsonOutput {
		return printJSON(map[string]int64{"entriesRemoved": int64(removed), "bytesFreed": freedBytes})
	}
	return nil
}

func runReset(cmd *cobra.Command, args []string) error {
	if !resetForce && !confirm("this deletes every profile, the mods folder's contents, and the cache. continue?") {
		printf("reset cancelled\n")
		return nil
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	outcome, err := svc.ResetEverything(context.Background())
	if err != nil {
		return err
	}

	printf("removed %d mods-folder entr(ies), %d profile(s), %d cache entr(ies) (%s freed)\n",
		outcome.ModsFolderEntriesRemoved, outcome.ProfilesRemoved, outcome.CacheEntriesRemoved,
		humanize.Bytes(uint64(outcome.CacheBytesFreed)))
	for _, e := range outcome.Errors {
		printf("warning: %v\n", e)
	}
	if jsonOutput {
		return printJSON(outcome)
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	stats := svc.CacheStats()
	if jsonOutput {
		return printJSON(stats)
	}
	fmt.Printf("entries: %d (%d orphaned)\ntotal size: %s\ndistinct profiles referencing cache: %d\n",
		stats.TotalEntries, stats.OrphanedEntries, humanize.Bytes(uint64(stats.TotalBytes)), stats.DistinctProfiles)
	return nil
}

func runSettingsSetAPIKey(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.SetCatalogAPIKey(args[0]); err != nil {
		return err
	}
	printf("catalog API key stored\n")
	return nil
}
