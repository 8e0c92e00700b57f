package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/felixgeelhaar/ganttly/pkg/application"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/spf13/cobra"
)

var (
	statusJSON  bool
	statusTasks bool
	statusLimit int
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the project and session state",
	Long: `Show the project and session state.

Reports the dirty flag, save phase, retry count, and undo/redo depth,
and optionally the task list.

Examples:
  ganttly status
  ganttly status --tasks --limit 10
  ganttly status --json`,
	RunE: runStatusCmd,
}

// statusOutput is the JSON output format for status.
type statusOutput struct {
	Project string            `json:"project"`
	Actor   string            `json:"actor"`
	State   application.State `json:"state"`
	Tasks   []task.Task       `json:"tasks,omitempty"`
}

func runStatusCmd(cmd *cobra.Command, args []string) error {
	services, err := loadServicesForCurrentDir()
	if err != nil {
		return err
	}
	defer services.Session.Close()

	if err := services.Session.Load(context.Background()); err != nil {
		return fmt.Errorf("load project %q: %w", services.Config.ProjectID, err)
	}

	state := services.Session.State()
	tasks := services.Session.Tasks()
	if statusLimit > 0 && len(tasks) > statusLimit {
		tasks = tasks[:statusLimit]
	}

	if statusJSON {
		out := statusOutput{
			Project: services.Session.ProjectID(),
			Actor:   services.Session.Actor(),
			State:   state,
		}
		if statusTasks {
			out.Tasks = tasks
		}
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	fmt.Printf("Project: %s (actor %s)\n", services.Session.ProjectID(), services.Session.Actor())
	if state.IsDirty {
		fmt.Println("State:   dirty (unsaved changes)")
	} else {
		fmt.Println("State:   clean")
	}
	if state.IsSaving {
		fmt.Printf("Save:    in flight (retry %d)\n", state.RetryCount)
	} else if state.Error != "" {
		fmt.Printf("Save:    failed after %d retries: %s\n", state.RetryCount, state.Error)
	} else if !state.LastSaved.IsZero() {
		fmt.Printf("Save:    last saved %s\n", state.LastSaved.Format("15:04:05"))
	} else {
		fmt.Println("Save:    no saves yet")
	}
	fmt.Printf("History: %d entries (cursor %d, undo=%v redo=%v)\n",
		state.HistoryLen, state.HistoryIndex, state.CanUndo, state.CanRedo)
	if len(state.PendingIDs) > 0 {
		fmt.Printf("Pending: %d tasks awaiting confirmation\n", len(state.PendingIDs))
	}

	if statusTasks {
		fmt.Printf("\nTasks (%d):\n", len(tasks))
		for _, t := range tasks {
			fmt.Printf("  %-24s %s -> %s  %3d%%  %s\n",
				t.Name, t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"), t.Progress, t.ID)
		}
	}
	return nil
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "Output in JSON format")
	statusCmd.Flags().BoolVar(&statusTasks, "tasks", false, "Include the task list")
	statusCmd.Flags().IntVarP(&statusLimit, "limit", "n", 0, "Limit number of tasks shown")
	RootCmd.AddCommand(statusCmd)
}
