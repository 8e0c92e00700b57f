// Package mcp exposes the editing session to MCP clients: task edits,
// undo/redo, save control, and version management.
package mcp

import (
	"context"
	"fmt"
	"time"

	"github.com/felixgeelhaar/mcp-go"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/wiring"
	"github.com/felixgeelhaar/ganttly/pkg/application"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
)

type Server struct {
	mcpServer  *mcp.Server
	sessionSvc *application.SessionService
	versionSvc *application.VersionService
	root       string
}

var (
	Version     = "dev"
	BuildCommit = "unknown"
	BuildDate   = "unknown"
)

// mcpErr returns a user-friendly error for MCP clients.
// Internal details are omitted, only the friendly message is returned.
func mcpErr(friendly string) error {
	return fmt.Errorf("%s", friendly)
}

func NewServer(root string) (*Server, error) {
	services, err := wiring.BuildAppServices(root)
	if err != nil {
		return nil, fmt.Errorf("build services: %w", err)
	}

	info := mcp.ServerInfo{
		Name:    "ganttly",
		Version: Version,
	}

	s := &Server{
		mcpServer: mcp.NewServer(info,
			mcp.WithTitle("Ganttly MCP Server"),
			mcp.WithDescription("Ganttly exposes a Gantt project editing session with debounced auto-save, undo/redo, and versioning to MCP clients."),
			mcp.WithWebsiteURL("https://github.com/felixgeelhaar/ganttly"),
			mcp.WithBuildInfo(BuildCommit, BuildDate),
			mcp.WithInstructions("Use tools to inspect tasks, apply edits, undo/redo, force saves, and manage project versions."),
		),
		sessionSvc: services.Session,
		versionSvc: services.Version,
		root:       root,
	}

	if err := s.sessionSvc.Load(context.Background()); err != nil {
		return nil, fmt.Errorf("load project: %w", err)
	}

	s.registerTools()
	return s, nil
}

type EditTaskArgs struct {
	TaskID      string  `json:"task_id" jsonschema:"description=The ID of the task to edit"`
	Name        *string `json:"name,omitempty" jsonschema:"description=New task name"`
	Start       *string `json:"start,omitempty" jsonschema:"description=New start date (RFC 3339)"`
	End         *string `json:"end,omitempty" jsonschema:"description=New end date (RFC 3339)"`
	Progress    *int    `json:"progress,omitempty" jsonschema:"description=New progress percentage (0-100)"`
	Color       *string `json:"color,omitempty" jsonschema:"description=New bar color"`
	Position    *int    `json:"position,omitempty" jsonschema:"description=New row position"`
	Description string  `json:"description,omitempty" jsonschema:"description=Human-readable description of the edit for the undo history"`
}

type RollbackArgs struct {
	TaskID string `json:"task_id" jsonschema:"description=The ID of the task to roll back. Empty rolls back all pending tasks"`
}

type CreateVersionArgs struct {
	Description string `json:"description" jsonschema:"description=Description of the version"`
}

type VersionIDArgs struct {
	VersionID string `json:"version_id" jsonschema:"description=The ID of the version"`
}

type DiffVersionsArgs struct {
	FromID string `json:"from_id" jsonschema:"description=The ID of the older version"`
	ToID   string `json:"to_id" jsonschema:"description=The ID of the newer version. Empty compares against the current working state"`
}

func (s *Server) registerTools() {
	// Tool: ganttly_list_tasks
	s.mcpServer.Tool("ganttly_list_tasks").
		Description("List all tasks in the current project").
		UIResource("ui://ganttly/tasks").
		Handler(s.handleListTasks)

	// Tool: ganttly_edit_task
	s.mcpServer.Tool("ganttly_edit_task").
		Description("Apply a partial edit to a task. The edit is applied optimistically and queued for debounced auto-save.").
		UIResource("ui://ganttly/tasks").
		Handler(s.handleEditTask)

	// Tool: ganttly_undo
	s.mcpServer.Tool("ganttly_undo").
		Description("Undo the most recent edit").
		UIResource("ui://ganttly/tasks").
		Handler(s.handleUndo)

	// Tool: ganttly_redo
	s.mcpServer.Tool("ganttly_redo").
		Description("Redo the most recently undone edit").
		UIResource("ui://ganttly/tasks").
		Handler(s.handleRedo)

	// Tool: ganttly_save
	s.mcpServer.Tool("ganttly_save").
		Description("Flush the pending auto-save queue immediately").
		UIResource("ui://ganttly/status").
		Handler(s.handleSave)

	// Tool: ganttly_rollback
	s.mcpServer.Tool("ganttly_rollback").
		Description("Roll back pending optimistic updates to their pre-edit state").
		UIResource("ui://ganttly/tasks").
		Handler(s.handleRollback)

	// Tool: ganttly_status
	s.mcpServer.Tool("ganttly_status").
		Description("Get the session status: dirty flag, save phase, retry count, undo/redo depth").
		UIResource("ui://ganttly/status").
		Handler(s.handleStatus)

	// Tool: ganttly_create_version
	s.mcpServer.Tool("ganttly_create_version").
		Description("Create a manual named version of the current project state").
		UIResource("ui://ganttly/versions").
		Handler(s.handleCreateVersion)

	// Tool: ganttly_list_versions
	s.mcpServer.Tool("ganttly_list_versions").
		Description("List all saved versions of the project").
		UIResource("ui://ganttly/versions").
		Handler(s.handleListVersions)

	// Tool: ganttly_restore_version
	s.mcpServer.Tool("ganttly_restore_version").
		Description("Restore the project to a saved version").
		UIResource("ui://ganttly/versions").
		Handler(s.handleRestoreVersion)

	// Tool: ganttly_delete_version
	s.mcpServer.Tool("ganttly_delete_version").
		Description("Delete a saved version").
		UIResource("ui://ganttly/versions").
		Handler(s.handleDeleteVersion)

	// Tool: ganttly_diff_versions
	s.mcpServer.Tool("ganttly_diff_versions").
		Description("Compare two versions (or a version against the working state) and report added, removed, and modified tasks").
		UIResource("ui://ganttly/versions").
		Handler(s.handleDiffVersions)
}

func (s *Server) handleListTasks(ctx context.Context, args struct{}) (any, error) {
	tasks := s.sessionSvc.Tasks()
	if len(tasks) == 0 {
		return "No tasks in the project.", nil
	}
	return tasks, nil
}

func (s *Server) handleEditTask(ctx context.Context, args EditTaskArgs) (any, error) {
	if args.TaskID == "" {
		return nil, mcpErr("task_id is required.")
	}

	change := task.Change{
		Name:     args.Name,
		Progress: args.Progress,
		Color:    args.Color,
		Position: args.Position,
	}
	if args.Start != nil {
		t, err := time.Parse(time.RFC3339, *args.Start)
		if err != nil {
			return nil, mcpErr("start must be an RFC 3339 timestamp.")
		}
		change.Start = &t
	}
	if args.End != nil {
		t, err := time.Parse(time.RFC3339, *args.End)
		if err != nil {
			return nil, mcpErr("end must be an RFC 3339 timestamp.")
		}
		change.End = &t
	}
	if change.IsEmpty() {
		return nil, mcpErr("The edit contains no fields. Provide at least one of name, start, end, progress, color, position.")
	}

	description := args.Description
	if description == "" {
		description = "edit " + args.TaskID
	}

	updated, err := s.sessionSvc.Edit(args.TaskID, change, description)
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Failed to edit task %s: %v", args.TaskID, err))
	}
	return updated, nil
}

func (s *Server) handleUndo(ctx context.Context, args struct{}) (any, error) {
	if !s.sessionSvc.Undo() {
		return "Nothing to undo.", nil
	}
	return s.sessionSvc.Tasks(), nil
}

func (s *Server) handleRedo(ctx context.Context, args struct{}) (any, error) {
	if !s.sessionSvc.Redo() {
		return "Nothing to redo.", nil
	}
	return s.sessionSvc.Tasks(), nil
}

func (s *Server) handleSave(ctx context.Context, args struct{}) (any, error) {
	if err := s.sessionSvc.SaveNow(); err != nil {
		return nil, mcpErr(fmt.Sprintf("Save failed: %v", err))
	}
	return "Saved.", nil
}

func (s *Server) handleRollback(ctx context.Context, args RollbackArgs) (any, error) {
	if args.TaskID == "" {
		s.sessionSvc.RollbackAll()
		return "Rolled back all pending tasks.", nil
	}
	s.sessionSvc.Rollback(args.TaskID)
	return fmt.Sprintf("Rolled back task %s.", args.TaskID), nil
}

func (s *Server) handleStatus(ctx context.Context, args struct{}) (any, error) {
	return s.sessionSvc.State(), nil
}

func (s *Server) handleCreateVersion(ctx context.Context, args CreateVersionArgs) (any, error) {
	if args.Description == "" {
		return nil, mcpErr("description is required for a manual version.")
	}
	v, err := s.versionSvc.CreateManual(ctx, args.Description)
	if err != nil {
		return nil, mcpErr(fmt.Sprintf("Failed to create version: %v", err))
	}
	return v, nil
}

func (s *Server) handleListVersions(ctx context.Context, args struct{}) (any, error) {
	versions, err := s.versionSvc.List(ctx)
	if err != nil {
		return nil, mcpErr("Failed to list versions.")
	}
	if len(versions) == 0 {
		return "No versions saved yet.", nil
	}
	return versions, nil
}

func (s *Server) handleRestoreVersion(ctx context.Context, args VersionIDArgs) (any, error) {
	if args.VersionID == "" {
		return nil, mcpErr("version_id is required.")
	}
	if err := s.versionSvc.Restore(ctx, args.VersionID); err != nil {
		return nil, mcpErr(fmt.Sprintf("Failed to restore version %s: %v", args.VersionID, err))
	}
	return fmt.Sprintf("Restored version %s.", args.VersionID), nil
}

func (s *Server) handleDeleteVersion(ctx context.Context, args VersionIDArgs) (any, error) {
	if args.VersionID == "" {
		return nil, mcpErr("version_id is required.")
	}
	if err := s.versionSvc.Delete(ctx, args.VersionID); err != nil {
		return nil, mcpErr(fmt.Sprintf("Failed to delete version %s: %v", args.VersionID, err))
	}
	return fmt.Sprintf("Deleted version %s.", args.VersionID), nil
}

func (s *Server) handleDiffVersions(ctx context.Context, args DiffVersionsArgs) (any, error) {
	if args.FromID == "" {
		return nil, mcpErr("from_id is required.")
	}
	versions, err := s.versionSvc.List(ctx)
	if err != nil {
		return nil, mcpErr("Failed to list versions.")
	}

	find := func(id string) (version.Snapshot, bool) {
		for _, v := range versions {
			if v.ID == id {
				return v.Snapshot, true
			}
		}
		return version.Snapshot{}, false
	}

	from, ok := find(args.FromID)
	if !ok {
		return nil, mcpErr(fmt.Sprintf("Version %s not found.", args.FromID))
	}

	to := s.sessionSvc.CurrentSnapshot()
	if args.ToID != "" {
		to, ok = find(args.ToID)
		if !ok {
			return nil, mcpErr(fmt.Sprintf("Version %s not found.", args.ToID))
		}
	}

	diff := version.Compare(from, to)
	if diff.IsEmpty() {
		return "No differences.", nil
	}
	return diff, nil
}

func (s *Server) Start() error {
	return s.StartStdio()
}

func (s *Server) StartStdio() error {
	return s.ServeStdio(context.Background())
}

func (s *Server) StartHTTP(addr string) error {
	return s.ServeHTTP(context.Background(), addr)
}

func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr, mcp.WithDefaultCORS())
}

// Close flushes and tears down the underlying session.
func (s *Server) Close() {
	s.sessionSvc.Close()
}
