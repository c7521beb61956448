package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/teyk0o/simsforge/internal/domain"
)

var profileCmd = &cobra.Command{
	Use:   "profile",
	Short: "Manage mod profiles",
	Long: `Manage named profiles, each an ordered list of installed mods.

Exactly one profile can be active at a time; the active profile is the one
the Installer attaches mods to and the Activator deploys into the Mods
folder.`,
}

var profileListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every profile",
	RunE:  runProfileList,
}

var profileCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create a new, empty profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileCreate,
}

var profileDeleteCmd = &cobra.Command{
	Use:   "delete <id>",
	Short: "Delete a profile (refused if active)",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileDelete,
}

var profileUseCmd = &cobra.Command{
	Use:   "use <id>",
	Short: "Set the active profile",
	Args:  cobra.ExactArgs(1),
	RunE:  runProfileUse,
}

var profileNoneCmd = &cobra.Command{
	Use:   "none",
	Short: "Clear the active profile marker",
	Args:  cobra.NoArgs,
	RunE:  runProfileNone,
}

func init() {
	profileCmd.AddCommand(profileListCmd, profileCreateCmd, profileDeleteCmd, profileUseCmd, profileNoneCmd)
	rootCmd.AddCommand(profileCmd)
}

func runProfileList(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	profiles := svc.ListProfiles()
	active, hasActive := svc.ActiveProfile()

	if jsonOutput {
		type row struct {
			ID       string `json:"id"`
			Name     string `json:"name"`
			Mods     int    `json:"mods"`
			IsActive bool   `json:"isActive"`
		}
		rows := make([]row, 0, len(profiles))
		for _, p := range profiles {
			rows = append(rows, row{ID: string(p.ID), Name: p.Name, Mods: len(p.Mods), IsActive: hasActive && p.ID == active.ID})
		}
		return printJSON(rows)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tMODS\tACTIVE")
	for _, p := range profiles {
		marker := ""
		if hasActive && p.ID == active.ID {
			marker = "*"
		}
		fmt.Fprintf(w, "%s\t%s\t%d\t%s\n", p.ID, p.Name, len(p.Mods), marker)
	}
	return w.Flush()
}

func runProfileCreate(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	p, err := svc.CreateProfile(args[0])
	if err != nil {
		return err
	}
	printf("created profile %q (%s)\n", p.Name, p.ID)
	return nil
}

func runProfileDelete(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.DeleteProfile(domain.ProfileID(args[0])); err != nil {
		return err
	}
	printf("deleted profile %s\n", args[0])
	return nil
}

func runProfileUse(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.SetActiveProfile(domain.ProfileID(args[0])); err != nil {
		return err
	}
	printf("active profile set to %s\n", args[0])
	return nil
}

func runProfileNone(cmd *cobra.Command, args []string) error {
	svc, err := newService()
	if err != nil {
		return err
	}
	defer svc.Close()

	if err := svc.SetActiveProfile(""); err != nil {
		return err
	}
	printf("active profile cleared\n")
	return nil
}
