// Package rest is the thin HTTP backend over the filesystem store:
// project CRUD, task updates, version lifecycle, and live event feeds.
package rest

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/felixgeelhaar/ganttly/internal/infrastructure/sse"
	"github.com/felixgeelhaar/ganttly/pkg/domain/task"
	"github.com/felixgeelhaar/ganttly/pkg/storage"
	"github.com/gorilla/websocket"
)

// Server is the REST backend.
type Server struct {
	addr      string
	store     *storage.FilesystemStore
	publisher *storage.InMemoryEventPublisher
	sse       *sse.Handler
	hub       *wsHub
	server    *http.Server
}

// NewServer builds a server over the given store. publisher feeds the
// SSE and websocket live feeds.
func NewServer(addr string, store *storage.FilesystemStore, publisher *storage.InMemoryEventPublisher) *Server {
	s := &Server{
		addr:      addr,
		store:     store,
		publisher: publisher,
		sse:       sse.NewHandler(publisher),
		hub:       newWSHub(publisher),
	}
	return s
}

// Handler returns the route table. Start serves it.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.HandleFunc("GET /api/projects/{id}", s.handleGetProject)
	mux.HandleFunc("PUT /api/projects/{id}", s.handlePutProject)
	mux.HandleFunc("POST /api/projects/{id}/save", s.handleSave)
	mux.HandleFunc("POST /api/projects/{id}/batch-save", s.handleBatchSave)
	mux.HandleFunc("PATCH /api/projects/{id}/tasks/{taskID}", s.handleUpdateTask)
	mux.HandleFunc("PATCH /api/projects/{id}/tasks", s.handleBatchUpdate)
	mux.HandleFunc("GET /api/projects/{id}/versions", s.handleListVersions)
	mux.HandleFunc("POST /api/projects/{id}/versions", s.handleCreateVersion)
	mux.HandleFunc("POST /api/projects/{id}/versions/{versionID}/restore", s.handleRestoreVersion)
	mux.HandleFunc("DELETE /api/projects/{id}/versions/{versionID}", s.handleDeleteVersion)
	mux.Handle("GET /api/events", s.sse)
	mux.HandleFunc("GET /api/ws", s.hub.handleWS)

	return mux
}

// Start starts the HTTP server. It blocks until Shutdown.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:        s.addr,
		Handler:     s.Handler(),
		ReadTimeout: 15 * time.Second,
	}

	log.Printf("ganttly server starting on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	s.hub.close()
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.LoadProject(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProject(w http.ResponseWriter, r *http.Request) {
	var p task.Project
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid project document: "+err.Error()))
		return
	}
	p.ID = r.PathValue("id")
	for _, t := range p.Tasks {
		if err := t.Validate(); err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
	}
	p.UpdatedAt = time.Now()
	if err := s.store.SaveProject(&p); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	var payload storage.SavePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid save payload: "+err.Error()))
		return
	}
	payload.ProjectID = r.PathValue("id")
	if err := s.store.Save(r.Context(), payload); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleBatchSave(w http.ResponseWriter, r *http.Request) {
	var payloads []storage.SavePayload
	if err := json.NewDecoder(r.Body).Decode(&payloads); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid batch payload: "+err.Error()))
		return
	}
	for i := range payloads {
		payloads[i].ProjectID = r.PathValue("id")
	}
	if err := s.store.BatchSave(r.Context(), payloads); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "saved"})
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	var change task.Change
	if err := json.NewDecoder(r.Body).Decode(&change); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid change: "+err.Error()))
		return
	}
	updated, err := s.store.ApplyUpdate(r.Context(), r.PathValue("id"), r.PathValue("taskID"), change)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	var items []storage.UpdateItem
	if err := json.NewDecoder(r.Body).Decode(&items); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid batch update: "+err.Error()))
		return
	}
	updated, err := s.store.ApplyBatchUpdate(r.Context(), r.PathValue("id"), items)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

type createVersionRequest struct {
	Description string `json:"description"`
	Automatic   bool   `json:"automatic"`
	Author      string `json:"author"`
}

func (s *Server) handleCreateVersion(w http.ResponseWriter, r *http.Request) {
	var req createVersionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid version request: "+err.Error()))
		return
	}
	v, err := s.store.CreateVersion(r.Context(), r.PathValue("id"), req.Description, req.Automatic, req.Author)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) handleListVersions(w http.ResponseWriter, r *http.Request) {
	versions, err := s.store.ListVersions(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, versions)
}

func (s *Server) handleRestoreVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.store.RestoreVersion(r.Context(), r.PathValue("id"), r.PathValue("versionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "restored"})
}

func (s *Server) handleDeleteVersion(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteVersion(r.Context(), r.PathValue("id"), r.PathValue("versionID")); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

func writeError(w http.ResponseWriter, err error) {
	var nf *task.NotFoundError
	switch {
	case errors.As(err, &nf):
		writeJSON(w, http.StatusNotFound, errorBody(err.Error()))
	default:
		writeJSON(w, http.StatusInternalServerError, errorBody(err.Error()))
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}
