// Package storage defines the remote store the editing session talks
// to, plus its filesystem and HTTP implementations.
package storage

import (
	"context"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
)

// SavePayload is one debounced save round-trip: the accumulated
// partial changes per task id since the last successful save.
type SavePayload struct {
	ProjectID string                 `json:"project_id"`
	Changes   map[string]task.Change `json:"changes"`
}

// UpdateItem is one entry of a batch update call.
type UpdateItem struct {
	ID     string      `json:"id"`
	Change task.Change `json:"change"`
}

// RemoteStore is everything the consistency engine needs from the
// persistence side. The session receives one through its constructor;
// there is no ambient global client.
type RemoteStore interface {
	LoadProject(ctx context.Context, projectID string) (*task.Project, error)

	// Save persists a debounced change set. Used by the mutation queue.
	Save(ctx context.Context, payload SavePayload) error
	// BatchSave persists several change sets in one call.
	BatchSave(ctx context.Context, payloads []SavePayload) error

	// ApplyUpdate confirms one optimistic change and returns the
	// authoritative item.
	ApplyUpdate(ctx context.Context, projectID, id string, change task.Change) (task.Task, error)
	// ApplyBatchUpdate confirms a combined change set.
	ApplyBatchUpdate(ctx context.Context, projectID string, items []UpdateItem) ([]task.Task, error)

	// CreateVersion snapshots the stored project into a new numbered
	// version.
	CreateVersion(ctx context.Context, projectID, description string, automatic bool, author string) (*version.Version, error)
	ListVersions(ctx context.Context, projectID string) ([]version.Version, error)
	RestoreVersion(ctx context.Context, projectID, versionID string) error
	DeleteVersion(ctx context.Context, projectID, versionID string) error
}
