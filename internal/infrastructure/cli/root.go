package cli

import (
	"github.com/spf13/cobra"
)

var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var projectPath string

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:     "ganttly",
	Version: Version,
	Short:   "A consistency engine for collaborative Gantt chart editing",
	Long: `Ganttly keeps an edited Gantt project and its store consistent.
It provides:
1. Debounced auto-save with retry and optimistic updates
2. Undo/redo history over task edits
3. Automatic and manual project versioning with diffs`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() error {
	return RootCmd.Execute()
}

func init() {
	RootCmd.PersistentFlags().StringVar(&projectPath, "project", "", "Path to the project root (defaults to the current directory)")
}
