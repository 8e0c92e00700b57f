package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"github.com/spf13/cobra"
)

var versionsJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Manage project versions",
}

var versionCreateCmd = &cobra.Command{
	Use:   "create <description>",
	Short: "Create a manual named version of the current project state",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		ctx := context.Background()
		if err := services.Session.Load(ctx); err != nil {
			return err
		}
		v, err := services.Version.CreateManual(ctx, args[0])
		if err != nil {
			return fmt.Errorf("create version: %w", err)
		}
		fmt.Printf("Created version #%d (%s): %s\n", v.Number, v.ID, v.Description)
		return nil
	},
}

var versionListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved versions",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		versions, err := services.Version.List(context.Background())
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}

		if versionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(versions)
		}

		if len(versions) == 0 {
			fmt.Println("No versions saved yet.")
			return nil
		}
		for _, v := range versions {
			kind := "manual"
			if v.Automatic {
				kind = "auto"
			}
			fmt.Printf("#%-4d %-8s %s  %-36s %s\n",
				v.Number, kind, v.CreatedAt.Format("2006-01-02 15:04"), v.ID, v.Description)
		}
		return nil
	},
}

var versionRestoreCmd = &cobra.Command{
	Use:   "restore <version-id>",
	Short: "Restore the project to a saved version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		ctx := context.Background()
		if err := services.Session.Load(ctx); err != nil {
			return err
		}
		if err := services.Version.Restore(ctx, args[0]); err != nil {
			return fmt.Errorf("restore version: %w", err)
		}
		fmt.Printf("Restored version %s\n", args[0])
		return nil
	},
}

var versionDeleteCmd = &cobra.Command{
	Use:   "delete <version-id>",
	Short: "Delete a saved version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		if err := services.Version.Delete(context.Background(), args[0]); err != nil {
			return fmt.Errorf("delete version: %w", err)
		}
		fmt.Printf("Deleted version %s\n", args[0])
		return nil
	},
}

var versionDiffCmd = &cobra.Command{
	Use:   "diff <from-id> [to-id]",
	Short: "Compare two versions, or a version against the current state",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		ctx := context.Background()
		if err := services.Session.Load(ctx); err != nil {
			return err
		}

		versions, err := services.Version.List(ctx)
		if err != nil {
			return fmt.Errorf("list versions: %w", err)
		}
		find := func(id string) (version.Snapshot, error) {
			for _, v := range versions {
				if v.ID == id {
					return v.Snapshot, nil
				}
			}
			return version.Snapshot{}, fmt.Errorf("version %s not found", id)
		}

		from, err := find(args[0])
		if err != nil {
			return err
		}
		to := services.Session.CurrentSnapshot()
		if len(args) == 2 {
			if to, err = find(args[1]); err != nil {
				return err
			}
		}

		diff := version.Compare(from, to)

		if versionsJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(diff)
		}

		if diff.IsEmpty() {
			fmt.Println("No differences.")
			return nil
		}
		fmt.Println(diff.Summary())
		for _, t := range diff.Added {
			fmt.Printf("  + %s (%s)\n", t.Name, t.ID)
		}
		for _, t := range diff.Removed {
			fmt.Printf("  - %s (%s)\n", t.Name, t.ID)
		}
		for _, m := range diff.Modified {
			fmt.Printf("  ~ %s (%s)\n", m.After.Name, m.ID)
			for _, c := range m.Changes {
				fmt.Printf("      %s: %v -> %v\n", c.Field, c.OldValue, c.NewValue)
			}
		}
		return nil
	},
}

func init() {
	versionListCmd.Flags().BoolVar(&versionsJSON, "json", false, "Output in JSON format")
	versionDiffCmd.Flags().BoolVar(&versionsJSON, "json", false, "Output in JSON format")
	versionCmd.AddCommand(versionCreateCmd, versionListCmd, versionRestoreCmd, versionDeleteCmd, versionDiffCmd)
	RootCmd.AddCommand(versionCmd)
}
