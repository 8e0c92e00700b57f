package autosave

import "sync"

// BatchSaver accumulates discrete items and flushes them as a single
// slice once a size threshold is reached or the debounce window
// elapses, whichever comes first.
type BatchSaver[T any] struct {
	saver   *Saver[[]T]
	deb     *Debouncer
	maxSize int

	mu    sync.Mutex
	items []T

	// sendMu serializes queue+flush pairs so a threshold flush can
	// never overwrite a batch the timer queued but has not sent yet.
	sendMu sync.Mutex
}

// DefaultBatchSize is used when the caller passes 0.
const DefaultBatchSize = 25

// NewBatchSaver builds a batching wrapper around a slice-typed save
// function. cfg tunes the inner saver's retry behavior; its Delay is
// the batch debounce window.
func NewBatchSaver[T any](saveFn SaveFunc[[]T], maxSize int, cfg Config) (*BatchSaver[T], error) {
	if maxSize <= 0 {
		maxSize = DefaultBatchSize
	}
	saver, err := NewSaver(saveFn, cfg)
	if err != nil {
		return nil, err
	}
	b := &BatchSaver[T]{saver: saver, maxSize: maxSize}
	b.deb = NewDebouncer(saver.cfg.Delay, b.timerFlush)
	return b, nil
}

// Add appends an item to the current batch. A full batch flushes
// immediately; otherwise the debounce window restarts.
func (b *BatchSaver[T]) Add(item T) {
	b.mu.Lock()
	b.items = append(b.items, item)
	if len(b.items) >= b.maxSize {
		batch := b.items
		b.items = nil
		b.mu.Unlock()
		b.deb.Stop()
		go b.send(batch)
		return
	}
	b.mu.Unlock()
	b.deb.Trigger()
}

// Flush sends whatever has accumulated, synchronously, and returns the
// terminal save error.
func (b *BatchSaver[T]) Flush() error {
	b.deb.Stop()
	b.mu.Lock()
	batch := b.items
	b.items = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return nil
	}
	return b.send(batch)
}

// Clear discards the accumulated batch without sending.
func (b *BatchSaver[T]) Clear() {
	b.deb.Stop()
	b.mu.Lock()
	b.items = nil
	b.mu.Unlock()
	b.saver.ClearQueue()
}

// Len returns the number of accumulated, unsent items.
func (b *BatchSaver[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// IsSaving reports whether a batch is in flight.
func (b *BatchSaver[T]) IsSaving() bool { return b.saver.IsSaving() }

// Err returns the inner saver's last error.
func (b *BatchSaver[T]) Err() error { return b.saver.Err() }

// ClearError resets the inner saver's error state.
func (b *BatchSaver[T]) ClearError() { b.saver.ClearError() }

// Close tears down the wrapper and the inner saver.
func (b *BatchSaver[T]) Close() {
	b.deb.Stop()
	b.saver.Close()
}

func (b *BatchSaver[T]) timerFlush() {
	b.mu.Lock()
	batch := b.items
	b.items = nil
	b.mu.Unlock()
	if len(batch) == 0 {
		return
	}
	_ = b.send(batch)
}

func (b *BatchSaver[T]) send(batch []T) error {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()
	b.saver.Queue(batch)
	return b.saver.SaveNow()
}
