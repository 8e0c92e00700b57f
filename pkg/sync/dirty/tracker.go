// Package dirty tracks whether the working collection has unsaved
// changes and guards navigation away from an editing session.
package dirty

import (
	"sync"
	"time"
)

// Confirm is asked before leaving while dirty. Returning true means the
// user accepted losing unsaved changes.
type Confirm func(warning string) bool

// Options configure a Tracker.
type Options struct {
	// Enabled gates the mutators. When false, MarkDirty/MarkClean/Reset
	// are no-ops. ToggleDirty is deliberately exempt; see ToggleDirty.
	Enabled bool
	// Warning is the message shown by leave guards. Empty uses a default.
	Warning string
	// Confirm is consulted by GuardLeave while dirty. Nil blocks leaving.
	Confirm Confirm
	// OnLeave runs only when a guarded leave was confirmed.
	OnLeave func()
}

// DefaultWarning mirrors the message editors show on unload.
const DefaultWarning = "You have unsaved changes. Are you sure you want to leave?"

// Tracker is the has-unsaved-changes flag plus its leave guards.
type Tracker struct {
	mu            sync.Mutex
	dirty         bool
	lastCleanedAt time.Time
	opts          Options
}

// NewTracker builds a tracker. Zero Options give a disabled tracker, so
// callers normally pass Options{Enabled: true}.
func NewTracker(opts Options) *Tracker {
	if opts.Warning == "" {
		opts.Warning = DefaultWarning
	}
	return &Tracker{opts: opts}
}

// MarkDirty raises the flag. No-op while disabled.
func (t *Tracker) MarkDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.Enabled {
		return
	}
	t.dirty = true
}

// MarkClean lowers the flag and records when. No-op while disabled.
func (t *Tracker) MarkClean() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.Enabled {
		return
	}
	t.dirty = false
	t.lastCleanedAt = time.Now()
}

// ToggleDirty flips the flag.
//
// Unlike the other mutators this is NOT gated by Enabled. The behavior
// is inherited from the original editor and kept as-is: callers that
// disable the tracker and still call ToggleDirty will see the flag
// move.
func (t *Tracker) ToggleDirty() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dirty = !t.dirty
}

// Reset clears the flag and the last-cleaned instant. No-op while
// disabled.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.opts.Enabled {
		return
	}
	t.dirty = false
	t.lastCleanedAt = time.Time{}
}

// IsDirty reports the flag.
func (t *Tracker) IsDirty() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dirty
}

// LastCleanedAt returns when MarkClean last ran, or the zero time if it
// never has (or Reset cleared it).
func (t *Tracker) LastCleanedAt() time.Time {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.lastCleanedAt
}

// UnloadWarning returns the warning string while dirty and "" when it
// is safe to leave. This is the page-unload interception: a non-empty
// return means the caller must surface the warning.
func (t *Tracker) UnloadWarning() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.dirty {
		return ""
	}
	return t.opts.Warning
}

// GuardLeave decides whether an in-app navigation may proceed. Clean
// state always may. Dirty state asks Confirm; on acceptance OnLeave
// runs and the leave is allowed. Without a Confirm hook a dirty leave
// is refused.
func (t *Tracker) GuardLeave() bool {
	t.mu.Lock()
	dirty := t.dirty
	confirm := t.opts.Confirm
	onLeave := t.opts.OnLeave
	warning := t.opts.Warning
	t.mu.Unlock()

	if !dirty {
		return true
	}
	if confirm == nil || !confirm(warning) {
		return false
	}
	if onLeave != nil {
		onLeave()
	}
	return true
}
