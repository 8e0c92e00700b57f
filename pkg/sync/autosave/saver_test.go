package autosave

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestSaver_DebounceCollapsesEdits(t *testing.T) {
	var mu sync.Mutex
	var saved []string

	s, err := NewSaver(func(ctx context.Context, payload string) error {
		mu.Lock()
		saved = append(saved, payload)
		mu.Unlock()
		return nil
	}, Config{Delay: 50 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P1")
	s.Queue("P2")
	s.Queue("P3")

	if !s.IsPending() {
		t.Errorf("expected pending phase after queueing, got %s", s.Phase())
	}

	time.Sleep(150 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 1 {
		t.Fatalf("expected exactly 1 save, got %d (%v)", len(saved), saved)
	}
	if saved[0] != "P3" {
		t.Errorf("expected last-write-wins payload P3, got %s", saved[0])
	}
}

func TestSaver_RetryBackoffDoubles(t *testing.T) {
	var mu sync.Mutex
	var attempts []time.Time

	s, err := NewSaver(func(ctx context.Context, payload string) error {
		mu.Lock()
		attempts = append(attempts, time.Now())
		mu.Unlock()
		return errors.New("boom")
	}, Config{
		Delay:      30 * time.Millisecond,
		MaxRetries: 2,
		RetryDelay: 100 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P")

	// 30ms debounce + 100ms + 200ms backoff, plus slack.
	time.Sleep(600 * time.Millisecond)

	mu.Lock()
	got := append([]time.Time(nil), attempts...)
	mu.Unlock()

	if len(got) != 3 {
		t.Fatalf("expected 3 attempts (1 initial + 2 retries), got %d", len(got))
	}
	if gap := got[1].Sub(got[0]); gap < 90*time.Millisecond || gap > 250*time.Millisecond {
		t.Errorf("first retry gap = %v, want ~100ms", gap)
	}
	if gap := got[2].Sub(got[1]); gap < 180*time.Millisecond || gap > 400*time.Millisecond {
		t.Errorf("second retry gap = %v, want ~200ms", gap)
	}

	if s.Err() == nil {
		t.Error("expected terminal error to remain visible")
	}
	if s.RetryCount() != 2 {
		t.Errorf("expected retry count 2 after exhaustion, got %d", s.RetryCount())
	}
	if s.Phase() != PhaseError {
		t.Errorf("expected error phase, got %s", s.Phase())
	}
}

func TestSaver_ClassifyStopsRetries(t *testing.T) {
	var attempts atomic.Int32

	s, err := NewSaver(func(ctx context.Context, payload string) error {
		attempts.Add(1)
		return errors.New("400 bad request")
	}, Config{
		Delay:      20 * time.Millisecond,
		MaxRetries: 3,
		RetryDelay: 20 * time.Millisecond,
		Classify:   func(error) bool { return false },
	})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P")
	time.Sleep(200 * time.Millisecond)

	if got := attempts.Load(); got != 1 {
		t.Errorf("expected 1 attempt for a non-retryable error, got %d", got)
	}
	if s.RetryCount() != 0 {
		t.Errorf("expected no retries consumed, got %d", s.RetryCount())
	}
	if s.Phase() != PhaseError {
		t.Errorf("expected error phase, got %s", s.Phase())
	}
}

func TestSaver_SaveNowReturnsError(t *testing.T) {
	want := errors.New("offline")
	s, err := NewSaver(func(ctx context.Context, payload string) error {
		return want
	}, Config{
		Delay:      time.Hour,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Classify:   func(error) bool { return false },
	})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P")
	if err := s.SaveNow(); !errors.Is(err, want) {
		t.Errorf("SaveNow error = %v, want %v", err, want)
	}
}

func TestSaver_SaveNowWithEmptyQueueIsNoop(t *testing.T) {
	var attempts atomic.Int32
	s, err := NewSaver(func(ctx context.Context, payload string) error {
		attempts.Add(1)
		return nil
	}, Config{Delay: time.Hour})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	if err := s.SaveNow(); err != nil {
		t.Errorf("SaveNow on empty queue: %v", err)
	}
	if attempts.Load() != 0 {
		t.Errorf("expected no save attempts, got %d", attempts.Load())
	}
}

func TestSaver_DrainsPayloadQueuedDuringFlight(t *testing.T) {
	release := make(chan struct{})
	var mu sync.Mutex
	var saved []string

	s, err := NewSaver(func(ctx context.Context, payload string) error {
		if payload == "slow" {
			<-release
		}
		mu.Lock()
		saved = append(saved, payload)
		mu.Unlock()
		return nil
	}, Config{Delay: 10 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("slow")
	time.Sleep(50 * time.Millisecond) // let the flight start

	s.Queue("queued-mid-flight")
	close(release)
	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 2 {
		t.Fatalf("expected 2 saves, got %d (%v)", len(saved), saved)
	}
	if saved[1] != "queued-mid-flight" {
		t.Errorf("expected drained payload second, got %v", saved)
	}
}

func TestSaver_ClearErrorRequeuesRetainedPayload(t *testing.T) {
	var fail atomic.Bool
	fail.Store(true)
	var mu sync.Mutex
	var saved []string

	s, err := NewSaver(func(ctx context.Context, payload string) error {
		if fail.Load() {
			return errors.New("boom")
		}
		mu.Lock()
		saved = append(saved, payload)
		mu.Unlock()
		return nil
	}, Config{
		Delay:      20 * time.Millisecond,
		MaxRetries: 1,
		RetryDelay: time.Millisecond,
		Classify:   func(error) bool { return false },
	})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P")
	time.Sleep(100 * time.Millisecond)

	if s.Err() == nil {
		t.Fatal("expected save failure")
	}

	fail.Store(false)
	s.ClearError()

	if s.Err() != nil {
		t.Errorf("expected error cleared, got %v", s.Err())
	}

	time.Sleep(100 * time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	if len(saved) != 1 || saved[0] != "P" {
		t.Errorf("expected retained payload to be resent once, got %v", saved)
	}
}

func TestSaver_ClearQueueDiscardsPending(t *testing.T) {
	var attempts atomic.Int32
	s, err := NewSaver(func(ctx context.Context, payload string) error {
		attempts.Add(1)
		return nil
	}, Config{Delay: 30 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewSaver: %v", err)
	}
	defer s.Close()

	s.Queue("P")
	s.ClearQueue()

	time.Sleep(100 * time.Millisecond)

	if attempts.Load() != 0 {
		t.Errorf("expected no saves after ClearQueue, got %d", attempts.Load())
	}
	if s.Phase() != PhaseIdle {
		t.Errorf("expected idle phase, got %s", s.Phase())
	}
}
