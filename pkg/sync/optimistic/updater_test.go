package optimistic

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

func newCollection(t *testing.T, tasks ...task.Task) *task.Collection {
	t.Helper()
	return task.NewCollection(tasks)
}

func baseTask() task.Task {
	return task.Task{
		ID:       "t1",
		Name:     "design",
		Start:    time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 4, 10, 0, 0, 0, 0, time.UTC),
		Progress: 20,
	}
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestUpdater_UpdateConfirmsServerState(t *testing.T) {
	col := newCollection(t, baseTask())

	u := NewUpdater(col, func(ctx context.Context, id string, change task.Change) (task.Task, error) {
		cur, _ := col.Get(id)
		confirmed := change.Apply(cur)
		confirmed.Progress = 99 // server adjusts
		return confirmed, nil
	}, nil, Options{AutoRollback: true})

	got, err := u.Update(context.Background(), "t1", task.Change{Name: strPtr("build")}, nil)
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if got.Name != "build" || got.Progress != 99 {
		t.Errorf("expected server-confirmed state, got %+v", got)
	}

	stored, _ := col.Get("t1")
	if stored.Progress != 99 {
		t.Errorf("collection must hold the confirmed state, got %+v", stored)
	}
	if u.IsPending("t1") {
		t.Error("confirmed update must not stay pending")
	}
}

func TestUpdater_FailureRollsBackToPreImage(t *testing.T) {
	col := newCollection(t, baseTask())
	var rolledBack []string

	u := NewUpdater(col, func(ctx context.Context, id string, change task.Change) (task.Task, error) {
		return task.Task{}, errors.New("409 conflict")
	}, nil, Options{
		AutoRollback: true,
		OnRollback:   func(id string, _ task.Task) { rolledBack = append(rolledBack, id) },
	})

	_, err := u.Update(context.Background(), "t1", task.Change{Name: strPtr("build")}, nil)
	if err == nil {
		t.Fatal("expected remote failure")
	}

	restored, _ := col.Get("t1")
	if restored.Name != "design" {
		t.Errorf("expected pre-image restored, got %q", restored.Name)
	}
	if len(rolledBack) != 1 || rolledBack[0] != "t1" {
		t.Errorf("expected OnRollback for t1, got %v", rolledBack)
	}
	if u.Err() == nil {
		t.Error("expected last error recorded")
	}
}

func TestUpdater_PreImageCapturedOncePerOverlap(t *testing.T) {
	col := newCollection(t, baseTask())

	u := NewUpdater(col, nil, nil, Options{AutoRollback: true})

	// Two local edits before any confirmation.
	if _, err := u.ApplyLocal("t1", task.Change{Name: strPtr("first")}); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	if _, err := u.ApplyLocal("t1", task.Change{Name: strPtr("second")}); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}

	u.Rollback("t1")

	restored, _ := col.Get("t1")
	if restored.Name != "design" {
		t.Errorf("rollback must land on the original pre-image, got %q", restored.Name)
	}
}

func TestUpdater_RollbackWithoutPreImageIsNoop(t *testing.T) {
	col := newCollection(t, baseTask())
	var rolledBack int

	u := NewUpdater(col, nil, nil, Options{
		OnRollback: func(string, task.Task) { rolledBack++ },
	})

	u.Rollback("t1")
	u.Rollback("missing")

	if rolledBack != 0 {
		t.Errorf("expected no rollback callbacks, got %d", rolledBack)
	}
	if got, _ := col.Get("t1"); got.Name != "design" {
		t.Errorf("collection must be untouched, got %+v", got)
	}
}

func TestUpdater_CommitClearsPreImages(t *testing.T) {
	col := newCollection(t, baseTask())
	u := NewUpdater(col, nil, nil, Options{})

	if _, err := u.ApplyLocal("t1", task.Change{Progress: intPtr(75)}); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}
	if !u.IsPending("t1") {
		t.Fatal("expected t1 pending after local apply")
	}

	u.Commit("t1")

	if u.IsPending("t1") {
		t.Error("commit must clear the pending marker")
	}

	// A rollback after commit must not revert the committed state.
	u.Rollback("t1")
	got, _ := col.Get("t1")
	if got.Progress != 75 {
		t.Errorf("expected committed progress 75, got %d", got.Progress)
	}
}

func TestUpdater_BatchRollbackOnlyTouchesBatchCaptures(t *testing.T) {
	t2 := baseTask()
	t2.ID = "t2"
	t2.Name = "review"
	col := newCollection(t, baseTask(), t2)

	u := NewUpdater(col, nil, func(ctx context.Context, items []BatchItem) ([]task.Task, error) {
		return nil, errors.New("503 unavailable")
	}, Options{AutoRollback: true})

	// t1 already has a pre-image from an earlier local edit.
	if _, err := u.ApplyLocal("t1", task.Change{Name: strPtr("earlier")}); err != nil {
		t.Fatalf("ApplyLocal: %v", err)
	}

	items := []BatchItem{
		{ID: "t1", Optimistic: task.Change{Name: strPtr("batch1")}},
		{ID: "t2", Optimistic: task.Change{Name: strPtr("batch2")}},
	}
	if _, err := u.BatchUpdate(context.Background(), items); err == nil {
		t.Fatal("expected batch failure")
	}

	// t2's pre-image was captured by this batch, so it rolls back.
	got2, _ := col.Get("t2")
	if got2.Name != "review" {
		t.Errorf("expected t2 rolled back to review, got %q", got2.Name)
	}

	// t1's pre-image belongs to the earlier edit; the batch must not
	// consume it, and the speculative batch value stays until that
	// earlier edit resolves.
	got1, _ := col.Get("t1")
	if got1.Name != "batch1" {
		t.Errorf("expected t1 left at batch1, got %q", got1.Name)
	}
	u.Rollback("t1")
	got1, _ = col.Get("t1")
	if got1.Name != "design" {
		t.Errorf("expected t1 rollback to original pre-image, got %q", got1.Name)
	}
}

func TestUpdater_UpdateUnknownTask(t *testing.T) {
	col := newCollection(t)
	u := NewUpdater(col, nil, nil, Options{})

	_, err := u.Update(context.Background(), "ghost", task.Change{Name: strPtr("x")}, nil)
	var nf *task.NotFoundError
	if !errors.As(err, &nf) {
		t.Fatalf("expected NotFoundError, got %v", err)
	}
	if nf.ID != "ghost" {
		t.Errorf("expected id ghost in error, got %q", nf.ID)
	}
}
