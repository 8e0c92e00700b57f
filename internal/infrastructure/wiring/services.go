package wiring

import (
	"fmt"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/config"
	"github.com/felixgeelhaar/ganttly/pkg/application"
)

// AppServices exposes the application layer services wired together
// with a workspace.
type AppServices struct {
	Workspace *Workspace
	Config    *config.Config
	Session   *application.SessionService
	Version   *application.VersionService
}

// BuildAppServices constructs the session and versioning services for
// a workspace root, honoring the on-disk and environment configuration.
func BuildAppServices(root string) (*AppServices, error) {
	cfg, err := config.Load(root)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return BuildAppServicesWithConfig(root, cfg)
}

// BuildAppServicesWithConfig is BuildAppServices with a caller-supplied
// configuration.
func BuildAppServicesWithConfig(root string, cfg *config.Config) (*AppServices, error) {
	workspace, err := NewWorkspace(root)
	if err != nil {
		return nil, fmt.Errorf("create workspace: %w", err)
	}

	store := workspace.RemoteStore(cfg)

	session, err := application.NewSessionService(store, workspace.Publisher, application.SessionConfig{
		ProjectID:     cfg.ProjectID,
		Actor:         cfg.Actor,
		AutosaveDelay: cfg.AutosaveDelay(),
		MaxRetries:    cfg.Autosave.MaxRetries,
		RetryDelay:    cfg.RetryDelay(),
		HistorySize:   cfg.History.MaxSize,
		AutoRollback:  true,
	})
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}

	versionSvc := application.NewVersionService(session, store, cfg.Policy(), cfg.VersionInterval())

	return &AppServices{
		Workspace: workspace,
		Config:    cfg,
		Session:   session,
		Version:   versionSvc,
	}, nil
}
