// Package events defines the domain events the session and store emit.
package events

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"time"
)

// Event types emitted by the editing session and the store.
const (
	TypeTaskUpdated     = "task.updated"
	TypeTaskRolledBack  = "task.rolled_back"
	TypeProjectSaved    = "project.saved"
	TypeSaveFailed      = "project.save_failed"
	TypeHistoryUndone   = "history.undone"
	TypeHistoryRedone   = "history.redone"
	TypeVersionCreated  = "version.created"
	TypeVersionRestored = "version.restored"
	TypeVersionDeleted  = "version.deleted"
	TypeProjectReloaded = "project.reloaded"
)

// Event is an append-only record of something that happened to a
// project. Events chain through PrevHash so tampering with the log is
// detectable.
type Event struct {
	ID        string         `json:"id"`
	Type      string         `json:"type"`
	ProjectID string         `json:"project_id"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	PrevHash  string         `json:"prev_hash,omitempty"`
	Hash      string         `json:"hash,omitempty"`
}

// CalculateHash generates a deterministic SHA256 hash of the event.
func (e *Event) CalculateHash() string {
	h := sha256.New()
	h.Write([]byte(e.PrevHash))
	h.Write([]byte(e.ID))
	h.Write([]byte(e.Timestamp.Format(time.RFC3339Nano)))
	h.Write([]byte(e.Type))
	h.Write([]byte(e.ProjectID))
	h.Write([]byte(e.Actor))
	h.Write([]byte(canonicalJSON(e.Metadata)))
	return hex.EncodeToString(h.Sum(nil))
}

// canonicalJSON produces a deterministic JSON representation.
func canonicalJSON(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := "{"
	for i, k := range keys {
		if i > 0 {
			out += ","
		}
		kb, _ := json.Marshal(k)
		vb, _ := json.Marshal(m[k])
		out += string(kb) + ":" + string(vb)
	}
	return out + "}"
}

// Subscriber receives published events.
type Subscriber func(e *Event) error
