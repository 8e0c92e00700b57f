package sse_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/sse"
	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
)

func streamBody(t *testing.T, url string, publish func(), window time.Duration) string {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		time.Sleep(100 * time.Millisecond)
		publish()
		time.Sleep(window)
		cancel()
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET stream: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q, want text/event-stream", ct)
	}

	body, _ := io.ReadAll(resp.Body)
	return string(body)
}

func TestHandler_StreamsPublishedEvents(t *testing.T) {
	publisher := storage.NewInMemoryEventPublisher()
	handler := sse.NewHandler(publisher)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	body := streamBody(t, srv.URL, func() {
		_ = publisher.Publish(&events.Event{
			ID:        "e1",
			Type:      events.TypeProjectSaved,
			ProjectID: "proj",
			Timestamp: time.Now(),
		})
	}, 300*time.Millisecond)

	if !strings.Contains(body, "event: "+events.TypeProjectSaved) {
		t.Errorf("stream missing event line:\n%s", body)
	}
	if !strings.Contains(body, `"project_id":"proj"`) {
		t.Errorf("stream missing event data:\n%s", body)
	}
}

func TestHandler_FiltersByType(t *testing.T) {
	publisher := storage.NewInMemoryEventPublisher()
	handler := sse.NewHandler(publisher)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	body := streamBody(t, srv.URL+"?types="+events.TypeVersionCreated, func() {
		_ = publisher.Publish(&events.Event{
			ID:        "e1",
			Type:      events.TypeProjectSaved,
			Timestamp: time.Now(),
		})
		_ = publisher.Publish(&events.Event{
			ID:        "e2",
			Type:      events.TypeVersionCreated,
			Timestamp: time.Now(),
		})
	}, 300*time.Millisecond)

	if !strings.Contains(body, "event: "+events.TypeVersionCreated) {
		t.Errorf("filtered type missing from stream:\n%s", body)
	}
	if strings.Contains(body, "event: "+events.TypeProjectSaved) {
		t.Errorf("excluded type leaked into stream:\n%s", body)
	}
}

func TestHandler_TracksClientCount(t *testing.T) {
	publisher := storage.NewInMemoryEventPublisher()
	handler := sse.NewHandler(publisher)

	srv := httptest.NewServer(handler)
	defer srv.Close()

	if n := handler.ClientCount(); n != 0 {
		t.Fatalf("clients = %d before any connection", n)
	}

	ctx, cancel := context.WithCancel(context.Background())
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	done := make(chan struct{})
	go func() {
		defer close(done)
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			return
		}
		_, _ = io.ReadAll(resp.Body)
		resp.Body.Close()
	}()

	deadline := time.Now().Add(2 * time.Second)
	for handler.ClientCount() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := handler.ClientCount(); n != 1 {
		t.Fatalf("clients = %d while connected, want 1", n)
	}

	cancel()
	<-done
	for handler.ClientCount() != 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if n := handler.ClientCount(); n != 0 {
		t.Errorf("clients = %d after disconnect, want 0", n)
	}
}
