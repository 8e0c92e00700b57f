// Package application composes the consistency engines into the
// services the UI and CLI layers call.
package application

import (
	"context"
	"sync"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/domain/version"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
	"github.com/felixgeelhaar/ganttly/pkg/sync/autosave"
	"github.com/felixgeelhaar/ganttly/pkg/sync/dirty"
	"github.com/felixgeelhaar/ganttly/pkg/sync/history"
	"github.com/felixgeelhaar/ganttly/pkg/sync/optimistic"
	"github.com/google/uuid"
)

// SessionConfig tunes one editing session.
type SessionConfig struct {
	ProjectID     string
	Actor         string
	AutosaveDelay time.Duration
	MaxRetries    int
	RetryDelay    time.Duration
	HistorySize   int
	AutoRollback  bool
	// Classify decides which save failures are retried. Nil uses
	// storage.IsRetryable.
	Classify func(error) bool
	// Confirm and OnLeave wire the dirty tracker's navigation guard.
	Confirm dirty.Confirm
	OnLeave func()
}

// savePayload tags the accumulated change set with the generation of
// the last edit folded into it, so the session knows when the pending
// map is fully covered by a successful save.
type savePayload struct {
	payload storage.SavePayload
	gen     uint64
}

// SessionService owns the working collection for one project and the
// engines that keep it consistent with the remote store. Construct one
// per open project; all collaborators are injected, nothing is global.
type SessionService struct {
	cfg       SessionConfig
	store     storage.RemoteStore
	publisher *storage.InMemoryEventPublisher

	col     *task.Collection
	tracker *dirty.Tracker
	history *history.Manager
	updater *optimistic.Updater
	saver   *autosave.Saver[savePayload]

	mu             sync.Mutex
	project        *task.Project
	pendingChanges map[string]task.Change
	gen            uint64
	sentGen        uint64
	lastCommitted  version.Snapshot
}

// NewSessionService wires a session against the given store. publisher
// may be nil. Call Load before editing.
func NewSessionService(store storage.RemoteStore, publisher *storage.InMemoryEventPublisher, cfg SessionConfig) (*SessionService, error) {
	if cfg.Classify == nil {
		cfg.Classify = storage.IsRetryable
	}

	s := &SessionService{
		cfg:            cfg,
		store:          store,
		publisher:      publisher,
		col:            task.NewCollection(nil),
		history:        history.NewManager(cfg.HistorySize),
		pendingChanges: make(map[string]task.Change),
	}

	s.tracker = dirty.NewTracker(dirty.Options{
		Enabled: true,
		Confirm: cfg.Confirm,
		OnLeave: cfg.OnLeave,
	})

	s.updater = optimistic.NewUpdater(s.col,
		func(ctx context.Context, id string, change task.Change) (task.Task, error) {
			return store.ApplyUpdate(ctx, cfg.ProjectID, id, change)
		},
		func(ctx context.Context, items []optimistic.BatchItem) ([]task.Task, error) {
			converted := make([]storage.UpdateItem, len(items))
			for i, it := range items {
				ch := it.Optimistic
				if it.Server != nil {
					ch = *it.Server
				}
				converted[i] = storage.UpdateItem{ID: it.ID, Change: ch}
			}
			return store.ApplyBatchUpdate(ctx, cfg.ProjectID, converted)
		},
		optimistic.Options{
			AutoRollback: cfg.AutoRollback,
			OnRollback: func(id string, _ task.Task) {
				s.emit(events.TypeTaskRolledBack, map[string]any{"task_id": id})
			},
		},
	)

	saver, err := autosave.NewSaver(s.persist, autosave.Config{
		Delay:      cfg.AutosaveDelay,
		MaxRetries: cfg.MaxRetries,
		RetryDelay: cfg.RetryDelay,
		Classify:   cfg.Classify,
		OnError: func(err error) {
			s.emit(events.TypeSaveFailed, map[string]any{"error": err.Error()})
		},
	})
	if err != nil {
		return nil, err
	}
	s.saver = saver
	return s, nil
}

// Load pulls the project from the store and resets every engine to a
// clean base: empty pending changes, fresh history seeded with the
// loaded state, dirty flag lowered.
func (s *SessionService) Load(ctx context.Context) error {
	p, err := s.store.LoadProject(ctx, s.cfg.ProjectID)
	if err != nil {
		return err
	}

	s.saver.ClearQueue()
	s.col.Replace(p.Tasks)
	s.history.Reset()
	s.history.Add(version.NewSnapshot(p.Tasks, "loaded"), "loaded")
	s.tracker.Reset()

	s.mu.Lock()
	s.project = p
	s.pendingChanges = make(map[string]task.Change)
	s.lastCommitted = version.NewSnapshot(p.Tasks, "committed")
	s.mu.Unlock()

	s.emit(events.TypeProjectReloaded, nil)
	return nil
}

// Edit is the debounced editing path: the change applies to the
// working collection immediately, the dirty flag goes up, history
// records the new state, and the accumulated change set re-enters the
// save queue's debounce window.
func (s *SessionService) Edit(id string, change task.Change, description string) (task.Task, error) {
	applied, err := s.updater.ApplyLocal(id, change)
	if err != nil {
		return task.Task{}, err
	}

	s.tracker.MarkDirty()
	s.history.Add(version.NewSnapshot(s.col.List(), description), description)

	s.mu.Lock()
	if prev, ok := s.pendingChanges[id]; ok {
		s.pendingChanges[id] = prev.Merge(change)
	} else {
		s.pendingChanges[id] = change
	}
	s.gen++
	payload := savePayload{payload: s.snapshotChangesLocked(), gen: s.gen}
	s.mu.Unlock()

	s.saver.Queue(payload)
	return applied, nil
}

// UpdateTask is the immediate optimistic round-trip: applied locally,
// confirmed (or rolled back) against the store before returning.
func (s *SessionService) UpdateTask(ctx context.Context, id string, change task.Change, server *task.Change) (task.Task, error) {
	confirmed, err := s.updater.Update(ctx, id, change, server)
	if err != nil {
		return task.Task{}, err
	}
	s.tracker.MarkDirty()
	s.history.Add(version.NewSnapshot(s.col.List(), "updated "+id), "updated "+id)
	s.emit(events.TypeTaskUpdated, map[string]any{"task_id": id})
	return confirmed, nil
}

// BatchUpdate mirrors UpdateTask for a combined change set.
func (s *SessionService) BatchUpdate(ctx context.Context, items []optimistic.BatchItem) ([]task.Task, error) {
	confirmed, err := s.updater.BatchUpdate(ctx, items)
	if err != nil {
		return nil, err
	}
	s.tracker.MarkDirty()
	s.history.Add(version.NewSnapshot(s.col.List(), "batch update"), "batch update")
	for _, it := range items {
		s.emit(events.TypeTaskUpdated, map[string]any{"task_id": it.ID})
	}
	return confirmed, nil
}

// SaveNow flushes the save queue synchronously and returns the
// terminal error, unlike the timer-driven path.
func (s *SessionService) SaveNow() error {
	return s.saver.SaveNow()
}

// ClearSaveError resets the queue's error state after the user
// dismissed the failure affordance.
func (s *SessionService) ClearSaveError() {
	s.saver.ClearError()
}

// Undo steps the working collection back one history entry.
func (s *SessionService) Undo() bool {
	snap, ok := s.history.Undo()
	if !ok {
		return false
	}
	s.col.Replace(snap.Tasks)
	s.resyncQueue()
	s.emit(events.TypeHistoryUndone, map[string]any{"description": snap.Description})
	return true
}

// Redo steps the working collection forward one history entry.
func (s *SessionService) Redo() bool {
	snap, ok := s.history.Redo()
	if !ok {
		return false
	}
	s.col.Replace(snap.Tasks)
	s.resyncQueue()
	s.emit(events.TypeHistoryRedone, map[string]any{"description": snap.Description})
	return true
}

// resyncQueue rebuilds the accumulated change set after the working
// collection was replaced wholesale, so the restored state actually
// reaches the store. Drift against the committed baseline re-enters the
// debounce window; a restore that lands exactly on the baseline leaves
// nothing to save and lowers the dirty flag.
func (s *SessionService) resyncQueue() {
	diff := version.Compare(s.LastCommitted(), version.NewSnapshot(s.col.List(), ""))

	s.mu.Lock()
	s.pendingChanges = make(map[string]task.Change)
	for _, m := range diff.Modified {
		s.pendingChanges[m.ID] = m.After.AsChange()
	}
	var payload savePayload
	queue := len(s.pendingChanges) > 0
	if queue {
		s.gen++
		payload = savePayload{payload: s.snapshotChangesLocked(), gen: s.gen}
	}
	s.mu.Unlock()

	if !queue {
		s.saver.ClearQueue()
		s.tracker.MarkClean()
		return
	}
	s.tracker.MarkDirty()
	s.saver.Queue(payload)
}

// Rollback manually reverses a still-pending optimistic change.
func (s *SessionService) Rollback(id string) { s.updater.Rollback(id) }

// RollbackAll reverses every still-pending optimistic change.
func (s *SessionService) RollbackAll() { s.updater.RollbackAll() }

// MarkDirty raises the unsaved-changes flag.
func (s *SessionService) MarkDirty() { s.tracker.MarkDirty() }

// MarkClean lowers it.
func (s *SessionService) MarkClean() { s.tracker.MarkClean() }

// GuardLeave asks the dirty tracker whether navigation may proceed.
func (s *SessionService) GuardLeave() bool { return s.tracker.GuardLeave() }

// Tasks returns the current working tasks in display order.
func (s *SessionService) Tasks() []task.Task { return s.col.List() }

// Task returns one working task.
func (s *SessionService) Task(id string) (task.Task, bool) { return s.col.Get(id) }

// CurrentSnapshot captures the working collection.
func (s *SessionService) CurrentSnapshot() version.Snapshot {
	return version.NewSnapshot(s.col.List(), "")
}

// LastCommitted returns the snapshot of the last server-confirmed
// state the versioning cadence diffs against.
func (s *SessionService) LastCommitted() version.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCommitted.Clone()
}

// SetCommitted records a new committed baseline, e.g. after a version
// was created or a restore completed.
func (s *SessionService) SetCommitted(snap version.Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastCommitted = snap.Clone()
}

// ProjectID returns the project this session edits.
func (s *SessionService) ProjectID() string { return s.cfg.ProjectID }

// Actor returns the session's author identity.
func (s *SessionService) Actor() string { return s.cfg.Actor }

// IsPending reports whether an optimistic change for id awaits
// confirmation.
func (s *SessionService) IsPending(id string) bool { return s.updater.IsPending(id) }

// State is the observable surface the UI renders from.
type State struct {
	IsDirty       bool      `json:"is_dirty"`
	IsSaving      bool      `json:"is_saving"`
	IsPending     bool      `json:"is_pending"`
	LastSaved     time.Time `json:"last_saved"`
	LastCleanedAt time.Time `json:"last_cleaned_at"`
	Error         string    `json:"error,omitempty"`
	RetryCount    int       `json:"retry_count"`
	CanUndo       bool      `json:"can_undo"`
	CanRedo       bool      `json:"can_redo"`
	PendingIDs    []string  `json:"pending_ids,omitempty"`
	HistoryLen    int       `json:"history_len"`
	HistoryIndex  int       `json:"history_index"`
}

// State snapshots the observable state of every engine.
func (s *SessionService) State() State {
	st := State{
		IsDirty:       s.tracker.IsDirty(),
		IsSaving:      s.saver.IsSaving(),
		IsPending:     s.saver.IsPending(),
		LastSaved:     s.saver.LastSaved(),
		LastCleanedAt: s.tracker.LastCleanedAt(),
		RetryCount:    s.saver.RetryCount(),
		CanUndo:       s.history.CanUndo(),
		CanRedo:       s.history.CanRedo(),
		PendingIDs:    s.updater.PendingIDs(),
		HistoryLen:    s.history.Len(),
		HistoryIndex:  s.history.Index(),
	}
	if err := s.saver.Err(); err != nil {
		st.Error = err.Error()
	}
	return st
}

// Close tears the session down. The in-flight save, if any, is
// cancelled; nothing writes state afterwards.
func (s *SessionService) Close() {
	s.saver.Close()
}

// persist is the saver's persistence function: one debounced save
// round-trip against the store.
func (s *SessionService) persist(ctx context.Context, sp savePayload) error {
	if len(sp.payload.Changes) == 0 {
		return nil
	}
	if err := s.store.Save(ctx, sp.payload); err != nil {
		return err
	}

	ids := make([]string, 0, len(sp.payload.Changes))
	for id := range sp.payload.Changes {
		ids = append(ids, id)
	}
	s.updater.Commit(ids...)

	s.mu.Lock()
	if sp.gen > s.sentGen {
		s.sentGen = sp.gen
	}
	// Edits that landed while this save was in flight are not covered
	// by it; the session stays dirty until their own save resolves.
	covered := s.gen == s.sentGen
	if covered {
		s.pendingChanges = make(map[string]task.Change)
		s.lastCommitted = version.NewSnapshot(s.col.List(), "committed")
	}
	s.mu.Unlock()

	if covered {
		s.tracker.MarkClean()
	}
	s.emit(events.TypeProjectSaved, map[string]any{"changed": len(sp.payload.Changes)})
	return nil
}

// snapshotChangesLocked copies the accumulated change map for a queue
// payload. Callers hold s.mu.
func (s *SessionService) snapshotChangesLocked() storage.SavePayload {
	changes := make(map[string]task.Change, len(s.pendingChanges))
	for id, c := range s.pendingChanges {
		changes[id] = c
	}
	return storage.SavePayload{ProjectID: s.cfg.ProjectID, Changes: changes}
}

func (s *SessionService) emit(eventType string, metadata map[string]any) {
	if s.publisher == nil {
		return
	}
	_ = s.publisher.Publish(&events.Event{
		ID:        uuid.New().String(),
		Type:      eventType,
		ProjectID: s.cfg.ProjectID,
		Timestamp: time.Now(),
		Actor:     s.cfg.Actor,
		Metadata:  metadata,
	})
}
