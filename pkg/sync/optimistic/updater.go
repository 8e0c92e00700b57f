// Package optimistic applies speculative edits to the working
// collection immediately and confirms or rolls them back on the
// outcome of the remote call.
package optimistic

import (
	"context"
	"sync"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

// UpdateFunc sends one change to the remote store and returns the
// authoritative item.
type UpdateFunc func(ctx context.Context, id string, change task.Change) (task.Task, error)

// BatchItem is one entry of a batch update.
type BatchItem struct {
	ID         string
	Optimistic task.Change
	// Server, when set, is sent to the store instead of Optimistic.
	Server *task.Change
}

// BatchUpdateFunc sends a combined update and returns the
// authoritative items, matched to the request by id.
type BatchUpdateFunc func(ctx context.Context, items []BatchItem) ([]task.Task, error)

// Options configure an Updater.
type Options struct {
	// AutoRollback restores the pre-image when the remote call fails.
	AutoRollback bool
	// OnRollback runs after a pre-image is restored, with the restored
	// item.
	OnRollback func(id string, restored task.Task)
	// OnError records remote failures.
	OnError func(error)
}

// Updater owns the speculative-write path over a working collection.
// All writes to the collection during editing go through Update,
// BatchUpdate, or a rollback; that discipline is what keeps the
// pre-images honest.
type Updater struct {
	col      *task.Collection
	updateFn UpdateFunc
	batchFn  BatchUpdateFunc
	opts     Options

	mu        sync.Mutex
	preImages map[string]task.Task
	pending   map[string]struct{}
	lastErr   error
}

// NewUpdater builds an updater over the given collection.
func NewUpdater(col *task.Collection, updateFn UpdateFunc, batchFn BatchUpdateFunc, opts Options) *Updater {
	return &Updater{
		col:       col,
		updateFn:  updateFn,
		batchFn:   batchFn,
		opts:      opts,
		preImages: make(map[string]task.Task),
		pending:   make(map[string]struct{}),
	}
}

// Update applies the optimistic change to the collection synchronously,
// then confirms it against the store. server, when non-nil, is what
// goes over the wire instead of the optimistic change.
//
// The pre-image for an id is captured once, before the first of any
// overlapping optimistic writes, so a rollback always lands on the
// last server-confirmed state rather than an intermediate speculation.
func (u *Updater) Update(ctx context.Context, id string, optimistic task.Change, server *task.Change) (task.Task, error) {
	current, ok := u.col.Get(id)
	if !ok {
		return task.Task{}, &task.NotFoundError{ID: id}
	}

	u.mu.Lock()
	if _, exists := u.preImages[id]; !exists {
		u.preImages[id] = current.Clone()
	}
	u.pending[id] = struct{}{}
	u.mu.Unlock()

	u.col.Put(optimistic.Apply(current))

	payload := optimistic
	if server != nil {
		payload = *server
	}

	confirmed, err := u.updateFn(ctx, id, payload)
	if err != nil {
		u.fail(id, err)
		return task.Task{}, err
	}

	u.col.Put(confirmed)
	u.mu.Lock()
	delete(u.preImages, id)
	delete(u.pending, id)
	u.lastErr = nil
	u.mu.Unlock()
	return confirmed, nil
}

// BatchUpdate mirrors Update for a set of items: all optimistic changes
// apply in one pass, one combined remote call confirms them, and a
// failure rolls back every pre-image this batch captured.
func (u *Updater) BatchUpdate(ctx context.Context, items []BatchItem) ([]task.Task, error) {
	currents := make(map[string]task.Task, len(items))
	for _, it := range items {
		cur, ok := u.col.Get(it.ID)
		if !ok {
			return nil, &task.NotFoundError{ID: it.ID}
		}
		currents[it.ID] = cur
	}

	captured := make([]string, 0, len(items))
	u.mu.Lock()
	for _, it := range items {
		if _, exists := u.preImages[it.ID]; !exists {
			u.preImages[it.ID] = currents[it.ID].Clone()
			captured = append(captured, it.ID)
		}
		u.pending[it.ID] = struct{}{}
	}
	u.mu.Unlock()

	for _, it := range items {
		u.col.Put(it.Optimistic.Apply(currents[it.ID]))
	}

	confirmed, err := u.batchFn(ctx, items)
	if err != nil {
		u.mu.Lock()
		u.lastErr = err
		if u.opts.AutoRollback {
			for _, id := range captured {
				if pre, ok := u.preImages[id]; ok {
					u.col.Put(pre)
					delete(u.preImages, id)
					if u.opts.OnRollback != nil {
						u.opts.OnRollback(id, pre)
					}
				}
			}
		}
		for _, it := range items {
			delete(u.pending, it.ID)
		}
		u.mu.Unlock()
		if u.opts.OnError != nil {
			u.opts.OnError(err)
		}
		return nil, err
	}

	for _, t := range confirmed {
		u.col.Put(t)
	}
	u.mu.Lock()
	for _, it := range items {
		delete(u.preImages, it.ID)
		delete(u.pending, it.ID)
	}
	u.lastErr = nil
	u.mu.Unlock()
	return confirmed, nil
}

// ApplyLocal applies an optimistic change without a remote call,
// capturing the pre-image. The caller owns confirmation: Commit after
// the enclosing save round-trip succeeds, or Rollback if it fails.
// This is the path the debounced save queue composes with.
func (u *Updater) ApplyLocal(id string, optimistic task.Change) (task.Task, error) {
	current, ok := u.col.Get(id)
	if !ok {
		return task.Task{}, &task.NotFoundError{ID: id}
	}

	u.mu.Lock()
	if _, exists := u.preImages[id]; !exists {
		u.preImages[id] = current.Clone()
	}
	u.pending[id] = struct{}{}
	u.mu.Unlock()

	applied := optimistic.Apply(current)
	u.col.Put(applied)
	return applied, nil
}

// Commit clears the pre-images and pending markers for ids whose
// enclosing save round-trip succeeded.
func (u *Updater) Commit(ids ...string) {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, id := range ids {
		delete(u.preImages, id)
		delete(u.pending, id)
	}
	u.lastErr = nil
}

// Rollback restores the pre-image for id, if one is still held.
// Rolling back an id with no pre-image is a silent no-op.
func (u *Updater) Rollback(id string) {
	u.mu.Lock()
	pre, ok := u.preImages[id]
	if ok {
		delete(u.preImages, id)
	}
	delete(u.pending, id)
	onRollback := u.opts.OnRollback
	u.mu.Unlock()

	if !ok {
		return
	}
	u.col.Put(pre)
	if onRollback != nil {
		onRollback(id, pre)
	}
}

// RollbackAll restores every held pre-image.
func (u *Updater) RollbackAll() {
	u.mu.Lock()
	ids := make([]string, 0, len(u.preImages))
	for id := range u.preImages {
		ids = append(ids, id)
	}
	u.mu.Unlock()
	for _, id := range ids {
		u.Rollback(id)
	}
}

// IsPending reports whether an update for id is awaiting confirmation.
func (u *Updater) IsPending(id string) bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	_, ok := u.pending[id]
	return ok
}

// PendingIDs returns the ids with updates in flight.
func (u *Updater) PendingIDs() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	ids := make([]string, 0, len(u.pending))
	for id := range u.pending {
		ids = append(ids, id)
	}
	return ids
}

// Err returns the last remote failure, cleared by the next success.
func (u *Updater) Err() error {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.lastErr
}

// fail handles a single-item remote failure: roll back when
// configured, clear the pending marker, record the error.
func (u *Updater) fail(id string, err error) {
	u.mu.Lock()
	u.lastErr = err
	pre, hasPre := u.preImages[id]
	rollback := u.opts.AutoRollback && hasPre
	if rollback {
		delete(u.preImages, id)
	}
	delete(u.pending, id)
	u.mu.Unlock()

	if rollback {
		u.col.Put(pre)
		if u.opts.OnRollback != nil {
			u.opts.OnRollback(id, pre)
		}
	}
	if u.opts.OnError != nil {
		u.opts.OnError(err)
	}
}
