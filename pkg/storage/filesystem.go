package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"github.com/google/uuid"
)

const GanttlyDir = ".ganttly"
const ProjectFile = "project.json"
const VersionsFile = "versions.json"
const EventsFile = "events.jsonl"

// FilesystemStore is the server-side store: one directory per project
// under root/.ganttly, holding the project document, its versions, and
// the event log.
type FilesystemStore struct {
	root        string
	retryConfig retry.Config
	publisher   *InMemoryEventPublisher
	actor       string
}

var _ RemoteStore = (*FilesystemStore)(nil)

// NewFilesystemStore creates a store rooted at the given directory.
// publisher may be nil when nothing listens for store events.
func NewFilesystemStore(root string, publisher *InMemoryEventPublisher) *FilesystemStore {
	return &FilesystemStore{
		root: root,
		retryConfig: retry.Config{
			MaxAttempts:   3,
			InitialDelay:  10 * time.Millisecond,
			BackoffPolicy: retry.BackoffExponential,
		},
		publisher: publisher,
		actor:     "store",
	}
}

// Root returns the store root directory.
func (s *FilesystemStore) Root() string {
	return s.root
}

// Initialize creates the store directory.
func (s *FilesystemStore) Initialize() error {
	path := filepath.Join(s.root, GanttlyDir)
	if err := os.MkdirAll(path, 0700); err != nil {
		return fmt.Errorf("failed to create .ganttly directory: %w", err)
	}
	return nil
}

// IsInitialized reports whether the store directory exists.
func (s *FilesystemStore) IsInitialized() bool {
	_, err := os.Stat(filepath.Join(s.root, GanttlyDir))
	return err == nil
}

// resolvePath validates the project id and filename against traversal
// and returns the absolute path.
func (s *FilesystemStore) resolvePath(projectID, filename string) (string, error) {
	if projectID == "" {
		return "", fmt.Errorf("project id cannot be empty")
	}
	if filename == "" {
		return "", fmt.Errorf("filename cannot be empty")
	}

	baseDir := filepath.Join(s.root, GanttlyDir, projectID)
	fullPath := filepath.Join(baseDir, filename)
	cleanPath := filepath.Clean(fullPath)

	if !strings.HasPrefix(cleanPath, filepath.Join(s.root, GanttlyDir)+string(os.PathSeparator)) ||
		filepath.Dir(cleanPath) != baseDir {
		return "", fmt.Errorf("invalid path: %s/%s", projectID, filename)
	}
	return cleanPath, nil
}

// SaveProject writes the project document.
func (s *FilesystemStore) SaveProject(p *task.Project) error {
	path, err := s.resolvePath(p.ID, ProjectFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal project: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

// LoadProject reads the project document.
func (s *FilesystemStore) LoadProject(ctx context.Context, projectID string) (*task.Project, error) {
	retryer := retry.New[*task.Project](s.retryConfig)

	return retryer.Do(ctx, func(ctx context.Context) (*task.Project, error) {
		path, err := s.resolvePath(projectID, ProjectFile)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read project file: %w", err)
		}

		var p task.Project
		if err := json.Unmarshal(data, &p); err != nil {
			return nil, fmt.Errorf("failed to unmarshal project: %w", err)
		}
		return &p, nil
	})
}

// Save applies a debounced change set to the stored project.
// Last write wins; there is no server-side conflict resolution.
func (s *FilesystemStore) Save(ctx context.Context, payload SavePayload) error {
	p, err := s.LoadProject(ctx, payload.ProjectID)
	if err != nil {
		return err
	}

	byID := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		byID[t.ID] = i
	}
	for id, change := range payload.Changes {
		i, ok := byID[id]
		if !ok {
			return &task.NotFoundError{ID: id}
		}
		updated := change.Apply(p.Tasks[i])
		updated.UpdatedAt = time.Now()
		p.Tasks[i] = updated
	}
	p.UpdatedAt = time.Now()

	if err := s.SaveProject(p); err != nil {
		return err
	}
	s.emit(events.TypeProjectSaved, payload.ProjectID, map[string]any{
		"changed": len(payload.Changes),
	})
	return nil
}

// BatchSave applies several change sets sequentially.
func (s *FilesystemStore) BatchSave(ctx context.Context, payloads []SavePayload) error {
	for _, payload := range payloads {
		if err := s.Save(ctx, payload); err != nil {
			return err
		}
	}
	return nil
}

// ApplyUpdate confirms one change and returns the authoritative task.
func (s *FilesystemStore) ApplyUpdate(ctx context.Context, projectID, id string, change task.Change) (task.Task, error) {
	items, err := s.ApplyBatchUpdate(ctx, projectID, []UpdateItem{{ID: id, Change: change}})
	if err != nil {
		return task.Task{}, err
	}
	return items[0], nil
}

// ApplyBatchUpdate confirms a combined change set in one write.
func (s *FilesystemStore) ApplyBatchUpdate(ctx context.Context, projectID string, items []UpdateItem) ([]task.Task, error) {
	p, err := s.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}

	byID := make(map[string]int, len(p.Tasks))
	for i, t := range p.Tasks {
		byID[t.ID] = i
	}

	out := make([]task.Task, 0, len(items))
	for _, it := range items {
		i, ok := byID[it.ID]
		if !ok {
			return nil, &task.NotFoundError{ID: it.ID}
		}
		updated := it.Change.Apply(p.Tasks[i])
		updated.UpdatedAt = time.Now()
		if err := updated.Validate(); err != nil {
			return nil, err
		}
		p.Tasks[i] = updated
		out = append(out, updated.Clone())
	}
	p.UpdatedAt = time.Now()

	if err := s.SaveProject(p); err != nil {
		return nil, err
	}
	for _, t := range out {
		s.emit(events.TypeTaskUpdated, projectID, map[string]any{"task_id": t.ID})
	}
	return out, nil
}

// CreateVersion snapshots the stored project into a new version with
// the next number for that project.
func (s *FilesystemStore) CreateVersion(ctx context.Context, projectID, description string, automatic bool, author string) (*version.Version, error) {
	p, err := s.LoadProject(ctx, projectID)
	if err != nil {
		return nil, err
	}
	versions, err := s.ListVersions(ctx, projectID)
	if err != nil {
		return nil, err
	}

	next := 1
	for _, v := range versions {
		if v.Number >= next {
			next = v.Number + 1
		}
	}

	v := version.Version{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		Number:      next,
		Author:      author,
		Automatic:   automatic,
		Description: description,
		Snapshot:    version.NewSnapshot(p.Tasks, description),
		CreatedAt:   time.Now(),
	}
	versions = append(versions, v)

	if err := s.saveVersions(projectID, versions); err != nil {
		return nil, err
	}
	s.emit(events.TypeVersionCreated, projectID, map[string]any{
		"version_id": v.ID,
		"number":     v.Number,
		"automatic":  automatic,
	})
	return &v, nil
}

// ListVersions returns all versions for a project, oldest first.
func (s *FilesystemStore) ListVersions(ctx context.Context, projectID string) ([]version.Version, error) {
	path, err := s.resolvePath(projectID, VersionsFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read versions file: %w", err)
	}

	var versions []version.Version
	if err := json.Unmarshal(data, &versions); err != nil {
		return nil, fmt.Errorf("failed to unmarshal versions: %w", err)
	}
	sort.Slice(versions, func(i, j int) bool { return versions[i].Number < versions[j].Number })
	return versions, nil
}

// RestoreVersion copies a version's snapshot back over the stored
// project. The version itself is left in place.
func (s *FilesystemStore) RestoreVersion(ctx context.Context, projectID, versionID string) error {
	versions, err := s.ListVersions(ctx, projectID)
	if err != nil {
		return err
	}
	var found *version.Version
	for i := range versions {
		if versions[i].ID == versionID {
			found = &versions[i]
			break
		}
	}
	if found == nil {
		return fmt.Errorf("version %s not found for project %s", versionID, projectID)
	}

	p, err := s.LoadProject(ctx, projectID)
	if err != nil {
		return err
	}
	snap := found.Snapshot.Clone()
	p.Tasks = snap.Tasks
	p.UpdatedAt = time.Now()

	if err := s.SaveProject(p); err != nil {
		return err
	}
	s.emit(events.TypeVersionRestored, projectID, map[string]any{
		"version_id": versionID,
		"number":     found.Number,
	})
	return nil
}

// DeleteVersion removes a version permanently.
func (s *FilesystemStore) DeleteVersion(ctx context.Context, projectID, versionID string) error {
	versions, err := s.ListVersions(ctx, projectID)
	if err != nil {
		return err
	}
	kept := versions[:0]
	found := false
	for _, v := range versions {
		if v.ID == versionID {
			found = true
			continue
		}
		kept = append(kept, v)
	}
	if !found {
		return fmt.Errorf("version %s not found for project %s", versionID, projectID)
	}

	if err := s.saveVersions(projectID, kept); err != nil {
		return err
	}
	s.emit(events.TypeVersionDeleted, projectID, map[string]any{"version_id": versionID})
	return nil
}

func (s *FilesystemStore) saveVersions(projectID string, versions []version.Version) error {
	path, err := s.resolvePath(projectID, VersionsFile)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create project directory: %w", err)
	}

	data, err := json.MarshalIndent(versions, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal versions: %w", err)
	}
	return os.WriteFile(path, data, 0600)
}

func (s *FilesystemStore) emit(eventType, projectID string, metadata map[string]any) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ProjectID: projectID,
		Timestamp: time.Now(),
		Actor:     s.actor,
		Metadata:  metadata,
	})
}
