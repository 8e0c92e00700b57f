package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/spf13/cobra"
)

var (
	taskJSON     bool
	editName     string
	editStart    string
	editEnd      string
	editProgress int
	editColor    string
	editPosition int
)

var taskCmd = &cobra.Command{
	Use:   "task",
	Short: "Inspect and edit project tasks",
}

var taskListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all tasks in chart order",
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		if err := services.Session.Load(context.Background()); err != nil {
			return err
		}

		tasks := services.Session.Tasks()
		if taskJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(tasks)
		}
		if len(tasks) == 0 {
			fmt.Println("No tasks in the project.")
			return nil
		}
		for _, t := range tasks {
			marker := " "
			if t.Milestone {
				marker = "*"
			}
			fmt.Printf("%s %-24s %s -> %s  %3d%%  %s\n",
				marker, t.Name, t.Start.Format("2006-01-02"), t.End.Format("2006-01-02"), t.Progress, t.ID)
		}
		return nil
	},
}

var taskEditCmd = &cobra.Command{
	Use:   "edit <task-id>",
	Short: "Edit a task and save the change",
	Long: `Edit a task and save the change.

Only the flags you pass are changed. The edit is applied optimistically,
recorded in the undo history, and flushed to the store before exiting.

Examples:
  ganttly task edit t1 --name "Design review"
  ganttly task edit t1 --start 2026-09-01 --end 2026-09-05
  ganttly task edit t1 --progress 80`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		services, err := loadServicesForCurrentDir()
		if err != nil {
			return err
		}
		defer services.Session.Close()

		if err := services.Session.Load(context.Background()); err != nil {
			return err
		}

		var change task.Change
		if cmd.Flags().Changed("name") {
			change.Name = &editName
		}
		if cmd.Flags().Changed("start") {
			t, err := parseDate(editStart)
			if err != nil {
				return fmt.Errorf("invalid --start: %w", err)
			}
			change.Start = &t
		}
		if cmd.Flags().Changed("end") {
			t, err := parseDate(editEnd)
			if err != nil {
				return fmt.Errorf("invalid --end: %w", err)
			}
			change.End = &t
		}
		if cmd.Flags().Changed("progress") {
			change.Progress = &editProgress
		}
		if cmd.Flags().Changed("color") {
			change.Color = &editColor
		}
		if cmd.Flags().Changed("position") {
			change.Position = &editPosition
		}
		if change.IsEmpty() {
			return fmt.Errorf("no fields to change; pass at least one of --name, --start, --end, --progress, --color, --position")
		}

		updated, err := services.Session.Edit(args[0], change, "cli edit")
		if err != nil {
			return fmt.Errorf("edit task %s: %w", args[0], err)
		}
		if err := services.Session.SaveNow(); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		fmt.Printf("Updated %s (%s)\n", updated.Name, updated.ID)
		return nil
	},
}

func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", s)
}

func init() {
	taskListCmd.Flags().BoolVar(&taskJSON, "json", false, "Output in JSON format")
	taskEditCmd.Flags().StringVar(&editName, "name", "", "New task name")
	taskEditCmd.Flags().StringVar(&editStart, "start", "", "New start date (YYYY-MM-DD or RFC 3339)")
	taskEditCmd.Flags().StringVar(&editEnd, "end", "", "New end date (YYYY-MM-DD or RFC 3339)")
	taskEditCmd.Flags().IntVar(&editProgress, "progress", 0, "New progress percentage (0-100)")
	taskEditCmd.Flags().StringVar(&editColor, "color", "", "New bar color")
	taskEditCmd.Flags().IntVar(&editPosition, "position", 0, "New row position")
	taskCmd.AddCommand(taskListCmd, taskEditCmd)
	RootCmd.AddCommand(taskCmd)
}
