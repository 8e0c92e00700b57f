package cli

import (
	"fmt"
	"time"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/config"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
	"github.com/spf13/cobra"
)

var (
	initProjectID string
	initName      string
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize a ganttly project store in the current directory",
	RunE: func(cmd *cobra.Command, args []string) error {
		root, err := getProjectRoot()
		if err != nil {
			return err
		}

		publisher := storage.NewInMemoryEventPublisher()
		store := storage.NewFilesystemStore(root, publisher)
		if err := store.Initialize(); err != nil {
			return err
		}

		cfg := config.Default()
		cfg.ProjectID = initProjectID
		if err := config.Save(root, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}

		name := initName
		if name == "" {
			name = initProjectID
		}
		project := &task.Project{
			ID:        initProjectID,
			Name:      name,
			Tasks:     []task.Task{},
			UpdatedAt: time.Now(),
		}
		if err := store.SaveProject(project); err != nil {
			return fmt.Errorf("write project: %w", err)
		}

		fmt.Printf("Initialized ganttly project %q in %s\n", initProjectID, root)
		return nil
	},
}

func init() {
	initCmd.Flags().StringVar(&initProjectID, "id", "default", "Project identifier")
	initCmd.Flags().StringVar(&initName, "name", "", "Project display name (defaults to the identifier)")
	RootCmd.AddCommand(initCmd)
}
