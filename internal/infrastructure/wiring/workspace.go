// Package wiring assembles the storage, session, and versioning layers
// from a workspace root and its configuration.
package wiring

import (
	"path/filepath"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/config"
	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
	"golang.org/x/oauth2"
)

// Workspace bundles core infrastructure dependencies.
type Workspace struct {
	Root      string
	Store     *storage.FilesystemStore
	Events    *storage.FileEventStore
	Publisher *storage.InMemoryEventPublisher
}

// NewWorkspace creates the filesystem store rooted at root and mirrors
// every published event into the append-only event log.
func NewWorkspace(root string) (*Workspace, error) {
	publisher := storage.NewInMemoryEventPublisher()
	store := storage.NewFilesystemStore(root, publisher)

	eventStore, err := storage.NewFileEventStore(filepath.Join(root, storage.GanttlyDir))
	if err != nil {
		return nil, err
	}
	publisher.Subscribe(func(e *events.Event) error {
		return eventStore.Append(e)
	})

	return &Workspace{
		Root:      root,
		Store:     store,
		Events:    eventStore,
		Publisher: publisher,
	}, nil
}

// RemoteStore returns the store the session should talk to: the HTTP
// store when a remote base URL is configured, the local filesystem
// store otherwise.
func (w *Workspace) RemoteStore(cfg *config.Config) storage.RemoteStore {
	if cfg.Remote.BaseURL == "" {
		return w.Store
	}
	var opts []storage.HTTPStoreOption
	if cfg.Remote.Token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Remote.Token})
		opts = append(opts, storage.WithTokenSource(ts))
	}
	return storage.NewHTTPStore(cfg.Remote.BaseURL, opts...)
}
