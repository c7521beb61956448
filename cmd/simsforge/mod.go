package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/teyk0o/simsforge/internal/installer"
)

var modCmd = &cobra.Command{
	Use:   "mod",
	Short: "Install, remove, and update mods in the active profile",
}

var modInstallFileID int64

var modInstallCmd = &cobra.Command{
	Use:   "install <remote-mod-id>",
	Short: "Install a mod into the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runModInstall,
}

var modRemoveCmd = &cobra.Command{
	Use:   "remove <remote-mod-id>",
	Short: "Remove a mod from the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runModRemove,
}

var modToggleEnabled bool

var modToggleCmd = &cobra.Command{
	Use:   "toggle <remote-mod-id>",
	Short: "Enable or disable a mod without removing it",
	Args:  cobra.ExactArgs(1),
	RunE:  runModToggle,
}

var modUpdateAvailableCmd = &cobra.Command{
	Use:   "update-available",
	Short: "List mods with a newer version in the catalog",
	Args:  cobra.NoArgs,
	RunE:  runModUpdateAvailable,
}

var modUpdateOneCmd = &cobra.Command{
	Use:   "update-one <remote-mod-id>",
	Short: "Update a single mod, preserving the previous version for rollback",
	Args:  cobra.ExactArgs(1),
	RunE:  runModUpdateOne,
}

var modUpdateAllCmd = &cobra.Command{
	Use:   "update-all",
	Short: "Apply updates to every mod with an automatic update policy",
	Args:  cobra.NoArgs,
	RunE:  runModUpdateAll,
}

var modRollbackCmd = &cobra.Command{
	Use:   "rollback <remote-mod-id>",
	Short: "Swap a mod back to its previously installed version",
	Args:  cobra.ExactArgs(1),
	RunE:  runModRollback,
}

func init() {
	modInstallCmd.Flags().Int64Var(&modInstallFileID, "file", 0, "specific file id to install (default: latest)")
	modToggleCmd.Flags().BoolVar(&modToggleEnabled, "enabled", true, "whether the mod should be deployed")

	modCmd.AddCommand(modInstallCmd, modRemoveCmd, modToggleCmd, modUpdateAvailableCmd, modUpdateOneCmd, modUpdateAllCmd, modRollbackCmd)
	rootCmd.AddCommand(modCmd)
}

func parseRemoteModID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid remote mod id %q: %w", s, err)
	}
	return id, nil
}

func runModInstall(cmd *cobra.Command, args []string) error {
	remoteModID, err := parseRemoteModID(args[0])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	sink, stop := newProgressSink()
	var result installer.Result
	err = withFetchRetry(func() error {
		var ferr error
		result, ferr = svc.InstallMod(context.Background(), remoteModID, modInstallFileID, decisionPrompt, sink)
		return ferr
	})
	if err != nil {
		return err
	}
	stop()

	printf("installed %s (version %s)\n", result.ProfileMod.DisplayName, result.ProfileMod.VersionLabel)
	if jsonOutput {
		return printJSON(result)
	}
	return nil
}

func runModRemove(cmd *cobra.Command, args []string) error {
	remoteModID, err := parseRemoteModID(args[0])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	outcome, err := svc.RemoveMod(remoteModID)
	if err != nil {
		return err
	}
	printf("removed mod %d\n", remoteModID)
	if jsonOutput {
		return printJSON(outcome)
	}
	return nil
}

func runModToggle(cmd *cobra.Command, args []string) error {
	remoteModID, err := parseRemoteModID(args[0])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	outcome, err := svc.ToggleMod(remoteModID, modToggleEnabled)
	if err != nil {
		return err
	}
	printf("mod %d enabled=%v\n", remoteModID, modToggleEnabled)
	if jsonOutput {
		return printJSON(outcome)
	}
	return nil
}

func runModUpdateAvailable(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	candidates, err := svc.UpdateAvailable(context.Background())
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(candidates)
	}
	if len(candidates) == 0 {
		printf("everything is up to date\n")
		return nil
	}
	for _, c := range candidates {
		printf("mod %d: %s -> %s (file %d)\n", c.RemoteModID, c.CurrentVersion, c.LatestVersion, c.LatestFileID)
	}
	return nil
}

func runModUpdateOne(cmd *cobra.Command, args []string) error {
	remoteModID, err := parseRemoteModID(args[0])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	sink, stop := newProgressSink()
	var result installer.Result
	err = withFetchRetry(func() error {
		var ferr error
		result, ferr = svc.UpdateOne(context.Background(), remoteModID, decisionPrompt, sink)
		return ferr
	})
	if err != nil {
		return err
	}
	stop()

	printf("updated %s to version %s\n", result.ProfileMod.DisplayName, result.ProfileMod.VersionLabel)
	if jsonOutput {
		return printJSON(result)
	}
	return nil
}

func runModUpdateAll(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	sink, stop := newProgressSink()
	results, err := svc.UpdateAll(context.Background(), sink)
	if err != nil {
		return err
	}
	stop()

	printf("updated %d mod(s)\n", len(results))
	if jsonOutput {
		return printJSON(results)
	}
	return nil
}

func runModRollback(cmd *cobra.Command, args []string) error {
	remoteModID, err := parseRemoteModID(args[0])
	if err != nil {
		return err
	}

	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	outcome, err := svc.RollbackMod(remoteModID)
	if err != nil {
		return err
	}
	printf("rolled back mod %d\n", remoteModID)
	if jsonOutput {
		return printJSON(outcome)
	}
	return nil
}
