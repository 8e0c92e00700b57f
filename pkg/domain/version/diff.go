package version

import (
	"fmt"
	"strings"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

// FieldChange records one field that differs between two revisions of
// the same task.
type FieldChange struct {
	Field    string `json:"field"`
	OldValue any    `json:"old_value"`
	NewValue any    `json:"new_value"`
}

// ModifiedTask pairs the before/after images of a task with the
// field-level changes between them.
type ModifiedTask struct {
	ID      string        `json:"id"`
	Before  task.Task     `json:"before"`
	After   task.Task     `json:"after"`
	Changes []FieldChange `json:"changes"`
}

// Diff is the structural comparison of two snapshots. It is a derived
// value: recompute it, never mutate it.
type Diff struct {
	Added    []task.Task    `json:"added"`
	Removed  []task.Task    `json:"removed"`
	Modified []ModifiedTask `json:"modified"`
}

// Total returns the overall change count.
func (d Diff) Total() int {
	return len(d.Added) + len(d.Removed) + len(d.Modified)
}

// IsEmpty reports whether the snapshots were identical.
func (d Diff) IsEmpty() bool {
	return d.Total() == 0
}

// Compare diffs two snapshots. Tasks are matched by id; matched tasks
// are compared on the fixed field list the editor exposes. Instants are
// compared by time equality, not pointer identity. Linear in the size
// of the snapshots.
func Compare(old, new Snapshot) Diff {
	oldByID := make(map[string]task.Task, len(old.Tasks))
	for _, t := range old.Tasks {
		oldByID[t.ID] = t
	}
	newByID := make(map[string]task.Task, len(new.Tasks))
	for _, t := range new.Tasks {
		newByID[t.ID] = t
	}

	var d Diff
	for _, t := range new.Tasks {
		if _, ok := oldByID[t.ID]; !ok {
			d.Added = append(d.Added, t.Clone())
		}
	}
	for _, t := range old.Tasks {
		if _, ok := newByID[t.ID]; !ok {
			d.Removed = append(d.Removed, t.Clone())
		}
	}
	for _, before := range old.Tasks {
		after, ok := newByID[before.ID]
		if !ok {
			continue
		}
		changes := compareFields(before, after)
		if len(changes) > 0 {
			d.Modified = append(d.Modified, ModifiedTask{
				ID:      before.ID,
				Before:  before.Clone(),
				After:   after.Clone(),
				Changes: changes,
			})
		}
	}
	return d
}

func compareFields(before, after task.Task) []FieldChange {
	var changes []FieldChange
	if before.Name != after.Name {
		changes = append(changes, FieldChange{Field: "name", OldValue: before.Name, NewValue: after.Name})
	}
	if !before.Start.Equal(after.Start) {
		changes = append(changes, FieldChange{Field: "start", OldValue: before.Start, NewValue: after.Start})
	}
	if !before.End.Equal(after.End) {
		changes = append(changes, FieldChange{Field: "end", OldValue: before.End, NewValue: after.End})
	}
	if before.Color != after.Color {
		changes = append(changes, FieldChange{Field: "color", OldValue: before.Color, NewValue: after.Color})
	}
	if before.Position != after.Position {
		changes = append(changes, FieldChange{Field: "position", OldValue: before.Position, NewValue: after.Position})
	}
	if before.Progress != after.Progress {
		changes = append(changes, FieldChange{Field: "progress", OldValue: before.Progress, NewValue: after.Progress})
	}
	if before.Milestone != after.Milestone {
		changes = append(changes, FieldChange{Field: "milestone", OldValue: before.Milestone, NewValue: after.Milestone})
	}
	return changes
}

// Summary renders a one-line description of the diff, used as the
// default description for automatic versions.
func (d Diff) Summary() string {
	if d.IsEmpty() {
		return "no changes"
	}
	var parts []string
	if n := len(d.Added); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s added", n, plural(n)))
	}
	if n := len(d.Removed); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s removed", n, plural(n)))
	}
	if n := len(d.Modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d %s modified", n, plural(n)))
	}
	return strings.Join(parts, ", ")
}

func plural(n int) string {
	if n == 1 {
		return "task"
	}
	return "tasks"
}
