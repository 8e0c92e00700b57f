// Package history implements the bounded undo/redo stack over working
// snapshots.
package history

import (
	"sync"

	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
)

// DefaultMaxSize bounds the stack when the caller passes 0.
const DefaultMaxSize = 50

// Manager keeps a linear, bounded list of snapshots with a cursor.
// Cursor -1 means no history has been recorded yet. Every snapshot is
// an independent structural copy, so later edits to the working set
// never rewrite recorded history.
type Manager struct {
	mu      sync.Mutex
	entries []version.Snapshot
	index   int
	maxSize int
}

// NewManager builds an empty history bounded to maxSize entries.
func NewManager(maxSize int) *Manager {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Manager{index: -1, maxSize: maxSize}
}

// Add records a snapshot. Anything beyond the cursor is discarded first
// (an edit after undo abandons the redone-away future), then the new
// entry is appended and the cursor advanced. When the bound is
// exceeded, the oldest entry is evicted and the cursor clamped.
func (m *Manager) Add(snap version.Snapshot, description string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap = snap.Clone()
	snap.Description = description

	if m.index < len(m.entries)-1 {
		m.entries = m.entries[:m.index+1]
	}
	m.entries = append(m.entries, snap)
	m.index++

	if len(m.entries) > m.maxSize {
		over := len(m.entries) - m.maxSize
		m.entries = m.entries[over:]
		m.index -= over
		if m.index < 0 {
			m.index = 0
		}
	}
}

// Undo steps the cursor back and returns that snapshot. At the lower
// boundary it is a no-op returning ok=false.
func (m *Manager) Undo() (version.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index <= 0 {
		return version.Snapshot{}, false
	}
	m.index--
	return m.entries[m.index].Clone(), true
}

// Redo steps the cursor forward and returns that snapshot. At the upper
// boundary it is a no-op returning ok=false.
func (m *Manager) Redo() (version.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index >= len(m.entries)-1 {
		return version.Snapshot{}, false
	}
	m.index++
	return m.entries[m.index].Clone(), true
}

// CanUndo reports whether Undo would move.
func (m *Manager) CanUndo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index > 0
}

// CanRedo reports whether Redo would move.
func (m *Manager) CanRedo() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index < len(m.entries)-1
}

// Current returns the snapshot under the cursor, if any.
func (m *Manager) Current() (version.Snapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.index < 0 || m.index >= len(m.entries) {
		return version.Snapshot{}, false
	}
	return m.entries[m.index].Clone(), true
}

// Len returns the number of recorded entries.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Index returns the cursor position (-1 when empty).
func (m *Manager) Index() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.index
}

// Reset drops all history, e.g. when a different project is loaded.
func (m *Manager) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = nil
	m.index = -1
}
