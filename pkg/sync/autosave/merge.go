package autosave

import (
	"context"
	"sync"
)

// ApplyFunc folds a partial update into the full current state.
type ApplyFunc[T, P any] func(current T, partial P) T

// CoalesceFunc folds a later partial update into an earlier, still
// unsent one.
type CoalesceFunc[P any] func(earlier, later P) P

// envelope tags a pending partial with the generation of the last
// update folded into it, so the wrapper knows how much of the pending
// change a successful save actually covered.
type envelope[P any] struct {
	partial P
	gen     uint64
}

// MergeSaver keeps authoritative current state locally while sending
// only partial updates to the store. Each partial is folded into the
// exposed state immediately; partials that pile up inside one debounce
// window coalesce into a single pending change.
type MergeSaver[T, P any] struct {
	saver    *Saver[envelope[P]]
	apply    ApplyFunc[T, P]
	coalesce CoalesceFunc[P]

	mu         sync.Mutex
	current    T
	pending    P
	pendingSet bool
	gen        uint64
	sentGen    uint64
}

// NewMergeSaver builds a merge wrapper. apply and coalesce must be
// non-nil; for shallow map payloads use ShallowMerge for both sides.
func NewMergeSaver[T, P any](initial T, saveFn SaveFunc[P], apply ApplyFunc[T, P], coalesce CoalesceFunc[P], cfg Config) (*MergeSaver[T, P], error) {
	m := &MergeSaver[T, P]{
		apply:    apply,
		coalesce: coalesce,
		current:  initial,
	}
	wrapped := func(ctx context.Context, env envelope[P]) error {
		if err := saveFn(ctx, env.partial); err != nil {
			return err
		}
		m.markSent(env.gen)
		return nil
	}
	saver, err := NewSaver(wrapped, cfg)
	if err != nil {
		return nil, err
	}
	m.saver = saver
	return m, nil
}

// Update folds the partial into the exposed state and queues the
// coalesced pending change.
func (m *MergeSaver[T, P]) Update(partial P) {
	m.mu.Lock()
	m.current = m.apply(m.current, partial)
	if m.pendingSet {
		m.pending = m.coalesce(m.pending, partial)
	} else {
		m.pending = partial
		m.pendingSet = true
	}
	m.gen++
	queued := envelope[P]{partial: m.pending, gen: m.gen}
	m.mu.Unlock()
	m.saver.Queue(queued)
}

// Current returns the fully merged local state.
func (m *MergeSaver[T, P]) Current() T {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Reset replaces the exposed state wholesale (e.g. with a server
// response) and drops the pending change.
func (m *MergeSaver[T, P]) Reset(state T) {
	m.saver.ClearQueue()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.current = state
	var zero P
	m.pending = zero
	m.pendingSet = false
}

// SaveNow flushes the pending change synchronously.
func (m *MergeSaver[T, P]) SaveNow() error { return m.saver.SaveNow() }

// IsSaving reports whether a save is in flight.
func (m *MergeSaver[T, P]) IsSaving() bool { return m.saver.IsSaving() }

// Err returns the last save error.
func (m *MergeSaver[T, P]) Err() error { return m.saver.Err() }

// ClearError resets the inner saver's error state.
func (m *MergeSaver[T, P]) ClearError() { m.saver.ClearError() }

// Close tears down the wrapper.
func (m *MergeSaver[T, P]) Close() { m.saver.Close() }

// markSent clears the pending change once a save covering it lands.
// Partials folded in after the flush was taken stay pending; they are
// already queued and drain next.
func (m *MergeSaver[T, P]) markSent(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if gen > m.sentGen {
		m.sentGen = gen
	}
	if m.gen == m.sentGen {
		var zero P
		m.pending = zero
		m.pendingSet = false
	}
}

// ShallowMerge overwrites dst's keys with src's, returning a new map.
// It is the default merge for map-shaped partial updates.
func ShallowMerge(dst, src map[string]any) map[string]any {
	out := make(map[string]any, len(dst)+len(src))
	for k, v := range dst {
		out[k] = v
	}
	for k, v := range src {
		out[k] = v
	}
	return out
}
