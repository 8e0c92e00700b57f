package autosave

import (
	"context"
	"sync"
	"time"
)

// SaveFunc persists one payload. Any error is treated as a failed
// attempt; classification of retryable vs terminal errors is the
// Classify hook's job.
type SaveFunc[T any] func(ctx context.Context, payload T) error

// Config tunes a Saver.
type Config struct {
	// Delay is the debounce window between the last queued edit and the
	// persistence call. Default 2s.
	Delay time.Duration
	// MaxRetries bounds the retry sequence after a failed attempt.
	// Default 3.
	MaxRetries int
	// RetryDelay is the base backoff delay; attempt n waits
	// RetryDelay * 2^n. Default 1s.
	RetryDelay time.Duration
	// OnSaved runs after every successful persistence call.
	OnSaved func()
	// OnError runs on every failed attempt, including the terminal one.
	OnError func(error)
	// Classify reports whether a failure is worth retrying. Nil retries
	// everything, matching the original editor's behavior.
	Classify func(error) bool
}

func (c Config) withDefaults() Config {
	if c.Delay <= 0 {
		c.Delay = 2 * time.Second
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = time.Second
	}
	return c
}

// Saver is the mutation queue: a depth-one, last-write-wins debounced
// queue in front of a SaveFunc. Within one saver, saves are strictly
// sequential; a second cycle never starts before the previous one's
// retry sequence resolves or exhausts.
type Saver[T any] struct {
	cfg    Config
	saveFn SaveFunc[T]
	deb    *Debouncer

	mu         sync.Mutex
	fsm        *phaseMachine
	pending    *T
	inflight   bool
	flightDone chan struct{}
	retryCount int
	lastSaved  time.Time
	err        error

	ctx    context.Context
	cancel context.CancelFunc
}

// NewSaver builds a saver around the given persistence function.
func NewSaver[T any](saveFn SaveFunc[T], cfg Config) (*Saver[T], error) {
	fsm, err := newPhaseMachine()
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Saver[T]{
		cfg:    cfg.withDefaults(),
		saveFn: saveFn,
		fsm:    fsm,
		ctx:    ctx,
		cancel: cancel,
	}
	s.deb = NewDebouncer(s.cfg.Delay, s.autoFlush)
	return s, nil
}

// Queue replaces any unsent payload with this one and restarts the
// debounce window. Payloads queued while a save is in flight are
// drained immediately after that save succeeds.
func (s *Saver[T]) Queue(payload T) {
	s.mu.Lock()
	if s.ctx.Err() != nil {
		s.mu.Unlock()
		return
	}
	s.pending = &payload
	switch s.fsm.current() {
	case PhaseIdle, PhasePending, PhaseError:
		_ = s.fsm.send(eventQueue)
	}
	s.mu.Unlock()
	s.deb.Trigger()
}

// SaveNow cancels the debounce timer and flushes synchronously. Unlike
// the timer-driven path, the terminal error is returned to the caller.
// If a save is already in flight, SaveNow waits for it and then flushes
// whatever accumulated meanwhile.
func (s *Saver[T]) SaveNow() error {
	s.deb.Stop()
	return s.flush()
}

// ClearQueue cancels the timer and discards the pending payload
// without sending it.
func (s *Saver[T]) ClearQueue() {
	s.deb.Stop()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = nil
	if s.fsm.current() == PhasePending {
		_ = s.fsm.send(eventClear)
	}
}

// ClearError resets error and retry state. A payload retained from the
// failed cycle goes back into the debounce window.
func (s *Saver[T]) ClearError() {
	s.mu.Lock()
	s.err = nil
	s.retryCount = 0
	retained := false
	if s.fsm.current() == PhaseError {
		if s.pending != nil {
			_ = s.fsm.send(eventQueue)
			retained = true
		} else {
			_ = s.fsm.send(eventClear)
		}
	}
	s.mu.Unlock()
	if retained {
		s.deb.Trigger()
	}
}

// Close tears the saver down. In-flight persistence calls are
// cancelled through their context and no further state is written.
func (s *Saver[T]) Close() {
	s.deb.Stop()
	s.cancel()
}

// Phase returns the current save-cycle phase.
func (s *Saver[T]) Phase() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fsm.current()
}

// IsSaving reports whether a persistence call is in flight or waiting
// out a backoff delay.
func (s *Saver[T]) IsSaving() bool {
	p := s.Phase()
	return p == PhaseSaving || p == PhaseRetrying
}

// IsPending reports whether a payload is waiting for the debounce
// window to elapse.
func (s *Saver[T]) IsPending() bool {
	return s.Phase() == PhasePending
}

// LastSaved returns the instant of the last successful save, or the
// zero time.
func (s *Saver[T]) LastSaved() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSaved
}

// Err returns the most recent save error, cleared on success or
// ClearError.
func (s *Saver[T]) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// RetryCount returns the number of retries consumed by the current or
// last cycle.
func (s *Saver[T]) RetryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.retryCount
}

// autoFlush is the debounce timer callback. Errors surface through
// OnError and the observable state instead of a return value.
func (s *Saver[T]) autoFlush() {
	_ = s.flush()
}

// flush runs one full save cycle: take the pending payload, attempt the
// save, back off and retry on failure, drain anything queued meanwhile
// on success.
func (s *Saver[T]) flush() error {
	s.mu.Lock()
	for s.inflight {
		ch := s.flightDone
		s.mu.Unlock()
		select {
		case <-ch:
		case <-s.ctx.Done():
			return s.ctx.Err()
		}
		s.mu.Lock()
	}
	if s.pending == nil || s.ctx.Err() != nil {
		s.mu.Unlock()
		return nil
	}
	payload := *s.pending
	s.pending = nil
	s.inflight = true
	s.flightDone = make(chan struct{})
	if s.fsm.current() == PhaseIdle {
		_ = s.fsm.send(eventQueue)
	}
	_ = s.fsm.send(eventFlush)
	s.mu.Unlock()

	for {
		err := s.saveFn(s.ctx, payload)

		s.mu.Lock()
		if err == nil {
			s.err = nil
			s.retryCount = 0
			s.lastSaved = time.Now()
			_ = s.fsm.send(eventSucceed)
			onSaved := s.cfg.OnSaved

			// Drain one accumulated payload before going idle.
			if s.pending != nil && s.ctx.Err() == nil {
				payload = *s.pending
				s.pending = nil
				_ = s.fsm.send(eventQueue)
				_ = s.fsm.send(eventFlush)
				s.mu.Unlock()
				if onSaved != nil {
					onSaved()
				}
				continue
			}
			s.endFlightLocked()
			s.mu.Unlock()
			if onSaved != nil {
				onSaved()
			}
			return nil
		}

		s.err = err
		onError := s.cfg.OnError
		retryable := s.cfg.Classify == nil || s.cfg.Classify(err)
		if retryable && s.retryCount < s.cfg.MaxRetries && s.ctx.Err() == nil {
			backoff := time.Duration(1<<s.retryCount) * s.cfg.RetryDelay
			s.retryCount++
			_ = s.fsm.send(eventRetry)
			s.mu.Unlock()

			if onError != nil {
				onError(err)
			}
			select {
			case <-time.After(backoff):
			case <-s.ctx.Done():
				s.mu.Lock()
				_ = s.fsm.send(eventClear)
				if s.pending == nil {
					s.pending = &payload
				}
				s.endFlightLocked()
				s.mu.Unlock()
				return s.ctx.Err()
			}

			s.mu.Lock()
			_ = s.fsm.send(eventFlush)
			s.mu.Unlock()
			continue
		}

		// Terminal failure: keep the payload around so a manual retry
		// can resend it, unless a newer one was queued meanwhile.
		_ = s.fsm.send(eventFail)
		if s.pending == nil {
			s.pending = &payload
		}
		s.endFlightLocked()
		s.mu.Unlock()
		if onError != nil {
			onError(err)
		}
		return err
	}
}

func (s *Saver[T]) endFlightLocked() {
	s.inflight = false
	close(s.flightDone)
}
