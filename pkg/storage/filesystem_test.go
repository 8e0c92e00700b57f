package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

func newTestStore(t *testing.T) (*FilesystemStore, *InMemoryEventPublisher) {
	t.Helper()
	publisher := NewInMemoryEventPublisher()
	store := NewFilesystemStore(t.TempDir(), publisher)
	if err := store.Initialize(); err != nil {
		t.Fatalf("Initialize: %v", err)
	}
	return store, publisher
}

func seedProject(t *testing.T, store *FilesystemStore) *task.Project {
	t.Helper()
	p := &task.Project{
		ID:   "proj",
		Name: "Test Project",
		Tasks: []task.Task{
			{
				ID:       "t1",
				Name:     "design",
				Start:    time.Date(2026, 7, 1, 0, 0, 0, 0, time.UTC),
				End:      time.Date(2026, 7, 10, 0, 0, 0, 0, time.UTC),
				Progress: 25,
			},
			{
				ID:       "t2",
				Name:     "build",
				Start:    time.Date(2026, 7, 11, 0, 0, 0, 0, time.UTC),
				End:      time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC),
				Progress: 0,
			},
		},
		UpdatedAt: time.Now(),
	}
	if err := store.SaveProject(p); err != nil {
		t.Fatalf("SaveProject: %v", err)
	}
	return p
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestFilesystemStore_SaveLoadRoundtrip(t *testing.T) {
	store, _ := newTestStore(t)
	seedProject(t, store)

	got, err := store.LoadProject(context.Background(), "proj")
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if got.Name != "Test Project" || len(got.Tasks) != 2 {
		t.Errorf("loaded project = %+v", got)
	}
	if got.Tasks[0].Name != "design" {
		t.Errorf("task order not preserved: %v", got.Tasks)
	}
}

func TestFilesystemStore_SaveAppliesChanges(t *testing.T) {
	store, publisher := newTestStore(t)
	seedProject(t, store)

	var published []string
	publisher.Subscribe(func(e *events.Event) error {
		published = append(published, e.Type)
		return nil
	})

	err := store.Save(context.Background(), SavePayload{
		ProjectID: "proj",
		Changes: map[string]task.Change{
			"t1": {Progress: intPtr(60)},
			"t2": {Name: strPtr("build v2")},
		},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	got, err := store.LoadProject(context.Background(), "proj")
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	byID := map[string]task.Task{}
	for _, tk := range got.Tasks {
		byID[tk.ID] = tk
	}
	if byID["t1"].Progress != 60 {
		t.Errorf("t1 progress = %d, want 60", byID["t1"].Progress)
	}
	if byID["t2"].Name != "build v2" {
		t.Errorf("t2 name = %q, want build v2", byID["t2"].Name)
	}

	if len(published) != 1 || published[0] != events.TypeProjectSaved {
		t.Errorf("published = %v, want one %s", published, events.TypeProjectSaved)
	}
}

func TestFilesystemStore_SaveUnknownTask(t *testing.T) {
	store, _ := newTestStore(t)
	seedProject(t, store)

	err := store.Save(context.Background(), SavePayload{
		ProjectID: "proj",
		Changes:   map[string]task.Change{"ghost": {Progress: intPtr(1)}},
	})
	var nf *task.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
}

func TestFilesystemStore_ApplyUpdateValidates(t *testing.T) {
	store, _ := newTestStore(t)
	seedProject(t, store)

	bad := -5
	_, err := store.ApplyUpdate(context.Background(), "proj", "t1", task.Change{Progress: &bad})
	if err == nil {
		t.Fatal("expected validation failure for negative progress")
	}

	// The rejected write must not have landed.
	got, _ := store.LoadProject(context.Background(), "proj")
	if got.Tasks[0].Progress != 25 {
		t.Errorf("rejected update persisted: progress = %d", got.Tasks[0].Progress)
	}
}

func TestFilesystemStore_ApplyBatchUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	seedProject(t, store)

	items := []UpdateItem{
		{ID: "t1", Change: task.Change{Progress: intPtr(100)}},
		{ID: "t2", Change: task.Change{Progress: intPtr(50)}},
	}
	updated, err := store.ApplyBatchUpdate(context.Background(), "proj", items)
	if err != nil {
		t.Fatalf("ApplyBatchUpdate: %v", err)
	}
	if len(updated) != 2 {
		t.Fatalf("expected 2 updated tasks, got %d", len(updated))
	}
	if updated[0].Progress != 100 || updated[1].Progress != 50 {
		t.Errorf("updated = %+v", updated)
	}
}

func TestFilesystemStore_VersionLifecycle(t *testing.T) {
	store, _ := newTestStore(t)
	seedProject(t, store)
	ctx := context.Background()

	v1, err := store.CreateVersion(ctx, "proj", "first", false, "alice")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if v1.Number != 1 {
		t.Errorf("first version number = %d, want 1", v1.Number)
	}

	// Mutate, then snapshot again.
	if _, err := store.ApplyUpdate(ctx, "proj", "t1", task.Change{Name: strPtr("design v2")}); err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	v2, err := store.CreateVersion(ctx, "proj", "second", true, "bot")
	if err != nil {
		t.Fatalf("CreateVersion: %v", err)
	}
	if v2.Number != 2 {
		t.Errorf("second version number = %d, want 2", v2.Number)
	}

	versions, err := store.ListVersions(ctx, "proj")
	if err != nil {
		t.Fatalf("ListVersions: %v", err)
	}
	if len(versions) != 2 || versions[0].Number != 1 || versions[1].Number != 2 {
		t.Fatalf("versions = %+v", versions)
	}

	// Restore the first snapshot; the rename must be rolled back.
	if err := store.RestoreVersion(ctx, "proj", v1.ID); err != nil {
		t.Fatalf("RestoreVersion: %v", err)
	}
	p, _ := store.LoadProject(ctx, "proj")
	if p.Tasks[0].Name != "design" {
		t.Errorf("restored name = %q, want design", p.Tasks[0].Name)
	}

	// The restored-from version stays listed.
	versions, _ = store.ListVersions(ctx, "proj")
	if len(versions) != 2 {
		t.Errorf("restore must not delete versions, have %d", len(versions))
	}

	if err := store.DeleteVersion(ctx, "proj", v2.ID); err != nil {
		t.Fatalf("DeleteVersion: %v", err)
	}
	versions, _ = store.ListVersions(ctx, "proj")
	if len(versions) != 1 || versions[0].ID != v1.ID {
		t.Errorf("after delete versions = %+v", versions)
	}

	if err := store.DeleteVersion(ctx, "proj", "missing"); err == nil {
		t.Error("deleting an unknown version must fail")
	}
}

func TestFilesystemStore_PathTraversalRejected(t *testing.T) {
	store, _ := newTestStore(t)

	if _, err := store.LoadProject(context.Background(), "../escape"); err == nil {
		t.Error("expected traversal project id to be rejected")
	}
	if _, err := store.LoadProject(context.Background(), ""); err == nil {
		t.Error("expected empty project id to be rejected")
	}
}

func TestFileEventStore_HashChain(t *testing.T) {
	dir := t.TempDir()
	es, err := NewFileEventStore(dir)
	if err != nil {
		t.Fatalf("NewFileEventStore: %v", err)
	}

	for i, typ := range []string{events.TypeTaskUpdated, events.TypeProjectSaved, events.TypeVersionCreated} {
		e := &events.Event{
			Type:      typ,
			ProjectID: "proj",
			Actor:     "store",
			Metadata:  map[string]any{"seq": i},
		}
		if err := es.Append(e); err != nil {
			t.Fatalf("Append %d: %v", i, err)
		}
	}

	if err := es.VerifyChain(); err != nil {
		t.Errorf("VerifyChain: %v", err)
	}

	all, err := es.LoadAll()
	if err != nil {
		t.Fatalf("LoadAll: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 events, got %d", len(all))
	}
	if all[0].PrevHash != "" {
		t.Errorf("genesis event must have empty prev_hash, got %q", all[0].PrevHash)
	}
	if all[1].PrevHash != all[0].Hash || all[2].PrevHash != all[1].Hash {
		t.Error("hash chain broken across appends")
	}

	saved, err := es.LoadByType(events.TypeProjectSaved)
	if err != nil {
		t.Fatalf("LoadByType: %v", err)
	}
	if len(saved) != 1 || saved[0].Type != events.TypeProjectSaved {
		t.Errorf("LoadByType = %v", saved)
	}

	// A fresh store over the same file continues the chain.
	es2, err := NewFileEventStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if err := es2.Append(&events.Event{Type: events.TypeTaskUpdated, ProjectID: "proj"}); err != nil {
		t.Fatalf("Append after reopen: %v", err)
	}
	if err := es2.VerifyChain(); err != nil {
		t.Errorf("VerifyChain after reopen: %v", err)
	}
}
