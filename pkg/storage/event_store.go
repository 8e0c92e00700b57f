package storage

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/felixgeelhaar/ganttly/pkg/domain/events"
	"github.com/google/uuid"
)

// FileEventStore appends session and store events to a JSON Lines
// file, chaining each record to the previous one by hash.
type FileEventStore struct {
	mu       sync.RWMutex
	path     string
	basePath string
	lastHash string
}

// NewFileEventStore creates a file-based event store under basePath.
// The directory is created on first write, not at construction time.
func NewFileEventStore(basePath string) (*FileEventStore, error) {
	path := filepath.Join(basePath, EventsFile)

	store := &FileEventStore{path: path, basePath: basePath}

	if last, err := store.LastEvent(); err == nil && last != nil {
		store.lastHash = last.Hash
	}

	return store, nil
}

// Append adds a new event to the log.
func (s *FileEventStore) Append(event *events.Event) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if err := os.MkdirAll(s.basePath, 0750); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	event.PrevHash = s.lastHash
	event.Hash = event.CalculateHash()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("open events file: %w", err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close events file: %w", cerr)
		}
	}()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write event: %w", err)
	}

	s.lastHash = event.Hash
	return nil
}

// LoadAll returns all events in chronological order.
func (s *FileEventStore) LoadAll() ([]*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.loadEvents()
}

// LoadByProject returns events for a specific project.
func (s *FileEventStore) LoadByProject(projectID string) ([]*events.Event, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var result []*events.Event
	for _, e := range all {
		if e.ProjectID == projectID {
			result = append(result, e)
		}
	}
	return result, nil
}

// LoadByType returns events of a specific type.
func (s *FileEventStore) LoadByType(eventType string) ([]*events.Event, error) {
	all, err := s.LoadAll()
	if err != nil {
		return nil, err
	}
	var result []*events.Event
	for _, e := range all {
		if e.Type == eventType {
			result = append(result, e)
		}
	}
	return result, nil
}

// LastEvent returns the most recent event, or nil on an empty log.
func (s *FileEventStore) LastEvent() (*events.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	evts, err := s.loadEvents()
	if err != nil {
		return nil, err
	}
	if len(evts) == 0 {
		return nil, nil
	}
	return evts[len(evts)-1], nil
}

// VerifyChain walks the log and checks every hash link.
func (s *FileEventStore) VerifyChain() error {
	evts, err := s.LoadAll()
	if err != nil {
		return err
	}
	prev := ""
	for i, e := range evts {
		if e.PrevHash != prev {
			return fmt.Errorf("event %d (%s): prev_hash mismatch", i, e.ID)
		}
		if e.CalculateHash() != e.Hash {
			return fmt.Errorf("event %d (%s): hash mismatch", i, e.ID)
		}
		prev = e.Hash
	}
	return nil
}

func (s *FileEventStore) loadEvents() ([]*events.Event, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("open events file: %w", err)
	}
	defer f.Close()

	var result []*events.Event
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var e events.Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("unmarshal event line: %w", err)
		}
		result = append(result, &e)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan events file: %w", err)
	}
	return result, nil
}

// InMemoryEventPublisher is a simple in-process event publisher.
type InMemoryEventPublisher struct {
	mu       sync.RWMutex
	handlers []events.Subscriber
}

// NewInMemoryEventPublisher creates a new in-memory publisher.
func NewInMemoryEventPublisher() *InMemoryEventPublisher {
	return &InMemoryEventPublisher{}
}

// Publish sends an event to all subscribers. Handler errors do not
// stop delivery to the rest.
func (p *InMemoryEventPublisher) Publish(event *events.Event) error {
	p.mu.RLock()
	handlers := make([]events.Subscriber, len(p.handlers))
	copy(handlers, p.handlers)
	p.mu.RUnlock()

	for _, h := range handlers {
		if err := h(event); err != nil {
			continue
		}
	}
	return nil
}

// Subscribe registers a handler for events.
func (p *InMemoryEventPublisher) Subscribe(handler events.Subscriber) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.handlers = append(p.handlers, handler)
}
