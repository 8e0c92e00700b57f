// Package task defines the working model of a scheduled task and the
// in-memory collection the editing session operates on.
package task

import (
	"fmt"
	"time"
)

// Task is a single bar on the chart. It is the unit of optimistic
// mutation: the session edits a local copy and the remote store later
// confirms or rejects the change.
type Task struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Start     time.Time `json:"start" yaml:"start"`
	End       time.Time `json:"end" yaml:"end"`
	Progress  int       `json:"progress" yaml:"progress"` // 0-100
	Color     string    `json:"color" yaml:"color"`
	Position  int       `json:"position" yaml:"position"` // display order within the project
	Milestone bool      `json:"milestone" yaml:"milestone"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
	UpdatedAt time.Time `json:"updated_at,omitempty" yaml:"updated_at,omitempty"`
}

// Clone returns a structurally independent copy. Snapshots and rollback
// images must never share memory with the working task, so every copy
// goes through here rather than a serialization round-trip.
func (t Task) Clone() Task {
	return t
}

// Validate checks the fields a remote store would reject.
func (t Task) Validate() error {
	if t.ID == "" {
		return fmt.Errorf("task id cannot be empty")
	}
	if t.Name == "" {
		return fmt.Errorf("task %s: name cannot be empty", t.ID)
	}
	if t.Progress < 0 || t.Progress > 100 {
		return fmt.Errorf("task %s: progress %d out of range", t.ID, t.Progress)
	}
	if !t.End.IsZero() && !t.Start.IsZero() && t.End.Before(t.Start) {
		return fmt.Errorf("task %s: end precedes start", t.ID)
	}
	return nil
}

// Change is a partial update to a task. Nil fields are left untouched
// when the change is applied, which is what lets later partial edits
// merge into earlier ones inside one save window.
type Change struct {
	Name      *string    `json:"name,omitempty"`
	Start     *time.Time `json:"start,omitempty"`
	End       *time.Time `json:"end,omitempty"`
	Progress  *int       `json:"progress,omitempty"`
	Color     *string    `json:"color,omitempty"`
	Position  *int       `json:"position,omitempty"`
	Milestone *bool      `json:"milestone,omitempty"`
}

// Apply returns a copy of t with the non-nil fields of c written over it.
func (c Change) Apply(t Task) Task {
	out := t.Clone()
	if c.Name != nil {
		out.Name = *c.Name
	}
	if c.Start != nil {
		out.Start = *c.Start
	}
	if c.End != nil {
		out.End = *c.End
	}
	if c.Progress != nil {
		out.Progress = *c.Progress
	}
	if c.Color != nil {
		out.Color = *c.Color
	}
	if c.Position != nil {
		out.Position = *c.Position
	}
	if c.Milestone != nil {
		out.Milestone = *c.Milestone
	}
	return out
}

// Merge folds a later change into c. Fields set on next win.
func (c Change) Merge(next Change) Change {
	out := c
	if next.Name != nil {
		out.Name = next.Name
	}
	if next.Start != nil {
		out.Start = next.Start
	}
	if next.End != nil {
		out.End = next.End
	}
	if next.Progress != nil {
		out.Progress = next.Progress
	}
	if next.Color != nil {
		out.Color = next.Color
	}
	if next.Position != nil {
		out.Position = next.Position
	}
	if next.Milestone != nil {
		out.Milestone = next.Milestone
	}
	return out
}

// AsChange expresses the whole task as a change set, every field set.
// Applying it to any revision of the task reproduces t.
func (t Task) AsChange() Change {
	c := t.Clone()
	return Change{
		Name:      &c.Name,
		Start:     &c.Start,
		End:       &c.End,
		Progress:  &c.Progress,
		Color:     &c.Color,
		Position:  &c.Position,
		Milestone: &c.Milestone,
	}
}

// IsEmpty reports whether the change would touch nothing.
func (c Change) IsEmpty() bool {
	return c.Name == nil && c.Start == nil && c.End == nil &&
		c.Progress == nil && c.Color == nil && c.Position == nil && c.Milestone == nil
}

// Project groups the tasks the session is editing.
type Project struct {
	ID        string    `json:"id" yaml:"id"`
	Name      string    `json:"name" yaml:"name"`
	Tasks     []Task    `json:"tasks" yaml:"tasks"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}
