package version

import (
	"testing"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

func mkTask(id, name string, progress int) task.Task {
	return task.Task{
		ID:       id,
		Name:     name,
		Start:    time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC),
		End:      time.Date(2026, 6, 15, 0, 0, 0, 0, time.UTC),
		Progress: progress,
	}
}

func TestCompare_IdenticalSnapshotsAreEmpty(t *testing.T) {
	snap := NewSnapshot([]task.Task{mkTask("a", "one", 10), mkTask("b", "two", 20)}, "")

	d := Compare(snap, snap)
	if !d.IsEmpty() {
		t.Errorf("expected empty diff, got %+v", d)
	}
	if d.Summary() != "no changes" {
		t.Errorf("summary = %q, want no changes", d.Summary())
	}
}

func TestCompare_AddedRemovedModified(t *testing.T) {
	old := NewSnapshot([]task.Task{
		mkTask("a", "keep", 10),
		mkTask("b", "gone", 20),
	}, "")
	new_ := NewSnapshot([]task.Task{
		mkTask("a", "keep-renamed", 10),
		mkTask("c", "fresh", 0),
	}, "")

	d := Compare(old, new_)

	if len(d.Added) != 1 || d.Added[0].ID != "c" {
		t.Errorf("added = %v, want [c]", d.Added)
	}
	if len(d.Removed) != 1 || d.Removed[0].ID != "b" {
		t.Errorf("removed = %v, want [b]", d.Removed)
	}
	if len(d.Modified) != 1 || d.Modified[0].ID != "a" {
		t.Fatalf("modified = %v, want [a]", d.Modified)
	}

	changes := d.Modified[0].Changes
	if len(changes) != 1 || changes[0].Field != "name" {
		t.Fatalf("changes = %v, want a single name change", changes)
	}
	if changes[0].OldValue != "keep" || changes[0].NewValue != "keep-renamed" {
		t.Errorf("name change values = %v -> %v", changes[0].OldValue, changes[0].NewValue)
	}
	if d.Total() != 3 {
		t.Errorf("total = %d, want 3", d.Total())
	}
}

func TestCompare_TimeEqualityIgnoresLocation(t *testing.T) {
	utc := mkTask("a", "x", 0)
	local := utc
	local.Start = utc.Start.In(time.FixedZone("plus2", 2*3600))
	local.End = utc.End.In(time.FixedZone("plus2", 2*3600))

	d := Compare(NewSnapshot([]task.Task{utc}, ""), NewSnapshot([]task.Task{local}, ""))
	if !d.IsEmpty() {
		t.Errorf("same instant in different zones must not diff, got %+v", d)
	}
}

func TestCompare_MultipleFieldChanges(t *testing.T) {
	before := mkTask("a", "x", 10)
	after := before
	after.Progress = 90
	after.Color = "#00ff00"
	after.Position = 4
	after.Milestone = true

	d := Compare(NewSnapshot([]task.Task{before}, ""), NewSnapshot([]task.Task{after}, ""))
	if len(d.Modified) != 1 {
		t.Fatalf("expected one modified task, got %+v", d)
	}

	fields := map[string]bool{}
	for _, c := range d.Modified[0].Changes {
		fields[c.Field] = true
	}
	for _, want := range []string{"color", "position", "progress", "milestone"} {
		if !fields[want] {
			t.Errorf("missing field change %q in %v", want, fields)
		}
	}
	if fields["name"] || fields["start"] || fields["end"] {
		t.Errorf("unexpected field changes: %v", fields)
	}
}

func TestDiff_Summary(t *testing.T) {
	d := Diff{
		Added:    []task.Task{mkTask("a", "x", 0)},
		Modified: []ModifiedTask{{ID: "b"}, {ID: "c"}},
	}
	want := "1 task added, 2 tasks modified"
	if got := d.Summary(); got != want {
		t.Errorf("summary = %q, want %q", got, want)
	}
}
