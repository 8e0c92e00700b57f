// Package version holds the snapshot, diff, and auto-versioning policy
// for the project history feature.
package version

import (
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

// Snapshot is an immutable capture of the working collection at a point
// in time. The task slice is copied on construction and must not be
// mutated afterwards.
type Snapshot struct {
	Tasks       []task.Task `json:"tasks"`
	CapturedAt  time.Time   `json:"captured_at"`
	Description string      `json:"description,omitempty"`
}

// NewSnapshot copies the given tasks into a snapshot.
func NewSnapshot(tasks []task.Task, description string) Snapshot {
	copied := make([]task.Task, len(tasks))
	for i, t := range tasks {
		copied[i] = t.Clone()
	}
	return Snapshot{
		Tasks:       copied,
		CapturedAt:  time.Now(),
		Description: description,
	}
}

// Clone returns an independent copy of the snapshot.
func (s Snapshot) Clone() Snapshot {
	out := s
	out.Tasks = make([]task.Task, len(s.Tasks))
	for i, t := range s.Tasks {
		out.Tasks[i] = t.Clone()
	}
	return out
}

// Version is a persisted, numbered snapshot. Once created it is never
// mutated; restores copy its tasks back into the working set and
// deletes remove it outright.
type Version struct {
	ID          string    `json:"id"`
	ProjectID   string    `json:"project_id"`
	Number      int       `json:"number"` // strictly increasing per project
	Author      string    `json:"author"`
	Automatic   bool      `json:"automatic"`
	Description string    `json:"description,omitempty"`
	Snapshot    Snapshot  `json:"snapshot"`
	CreatedAt   time.Time `json:"created_at"`
}
