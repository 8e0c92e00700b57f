package storage

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
)

func TestIsRetryable(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"500", &StatusError{Code: 500, Message: "boom"}, true},
		{"503", &StatusError{Code: 503, Message: "unavailable"}, true},
		{"404", &StatusError{Code: 404, Message: "missing"}, false},
		{"422", &StatusError{Code: 422, Message: "invalid"}, false},
		{"network", errors.New("connection refused"), true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := IsRetryable(tc.err); got != tc.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestHTTPStore_LoadProject(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/api/projects/proj" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(task.Project{ID: "proj", Name: "remote"})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	p, err := store.LoadProject(context.Background(), "proj")
	if err != nil {
		t.Fatalf("LoadProject: %v", err)
	}
	if p.ID != "proj" || p.Name != "remote" {
		t.Errorf("project = %+v", p)
	}
}

func TestHTTPStore_SavePostsPayload(t *testing.T) {
	var gotBody SavePayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/projects/proj/save" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &gotBody)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	name := "renamed"
	store := NewHTTPStore(srv.URL)
	err := store.Save(context.Background(), SavePayload{
		ProjectID: "proj",
		Changes:   map[string]task.Change{"t1": {Name: &name}},
	})
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if gotBody.Changes["t1"].Name == nil || *gotBody.Changes["t1"].Name != "renamed" {
		t.Errorf("server saw payload %+v", gotBody)
	}
}

func TestHTTPStore_ApplyUpdateReturnsServerTask(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPatch || r.URL.Path != "/api/projects/proj/tasks/t1" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewEncoder(w).Encode(task.Task{ID: "t1", Name: "authoritative", Progress: 42})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	name := "optimistic"
	got, err := store.ApplyUpdate(context.Background(), "proj", "t1", task.Change{Name: &name})
	if err != nil {
		t.Fatalf("ApplyUpdate: %v", err)
	}
	if got.Name != "authoritative" || got.Progress != 42 {
		t.Errorf("task = %+v, want the server's version", got)
	}
}

func TestHTTPStore_SurfacesStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"no such project"}`, http.StatusNotFound)
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	_, err := store.LoadProject(context.Background(), "ghost")
	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("expected StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("code = %d, want 404", se.Code)
	}
	if IsRetryable(err) {
		t.Error("a 404 must classify as non-retryable")
	}
}

func TestHTTPStore_RetriesTransientFailures(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "try later", http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(task.Project{ID: "proj"})
	}))
	defer srv.Close()

	store := NewHTTPStore(srv.URL)
	p, err := store.LoadProject(context.Background(), "proj")
	if err != nil {
		t.Fatalf("expected retries to recover, got %v", err)
	}
	if p.ID != "proj" {
		t.Errorf("project = %+v", p)
	}
	if calls.Load() != 3 {
		t.Errorf("expected 3 attempts, got %d", calls.Load())
	}
}
