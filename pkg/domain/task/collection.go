package task

import (
	"fmt"
	"sort"
	"sync"
)

// NotFoundError is returned when an operation targets a task id that is
// not in the working collection.
type NotFoundError struct {
	ID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("task %s not found in working collection", e.ID)
}

// Collection is the ordered in-memory working set of tasks for one
// project. Only the optimistic updater and the history manager are
// supposed to write it; everything else reads snapshots.
type Collection struct {
	mu    sync.RWMutex
	order []string
	items map[string]Task
}

// NewCollection builds a collection from an initial task list, keeping
// the given order.
func NewCollection(tasks []Task) *Collection {
	c := &Collection{items: make(map[string]Task, len(tasks))}
	for _, t := range tasks {
		if _, dup := c.items[t.ID]; dup {
			continue
		}
		c.items[t.ID] = t.Clone()
		c.order = append(c.order, t.ID)
	}
	return c
}

// Get returns a copy of the task with the given id.
func (c *Collection) Get(id string) (Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t, ok := c.items[id]
	return t.Clone(), ok
}

// Put inserts or replaces a task. New tasks are appended to the order.
func (c *Collection) Put(t Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[t.ID]; !exists {
		c.order = append(c.order, t.ID)
	}
	c.items[t.ID] = t.Clone()
}

// Remove deletes a task. Removing an unknown id is a no-op.
func (c *Collection) Remove(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[id]; !exists {
		return
	}
	delete(c.items, id)
	for i, oid := range c.order {
		if oid == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}

// Len returns the number of tasks.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// List returns independent copies of all tasks in display order.
func (c *Collection) List() []Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Task, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.items[id].Clone())
	}
	return out
}

// ListByPosition returns copies sorted by the Position field rather
// than insertion order. Ties keep insertion order.
func (c *Collection) ListByPosition() []Task {
	out := c.List()
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Position < out[j].Position
	})
	return out
}

// Replace swaps the entire working set for a new base list, e.g. after
// loading a different project or restoring a version.
func (c *Collection) Replace(tasks []Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.order = c.order[:0]
	c.items = make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if _, dup := c.items[t.ID]; dup {
			continue
		}
		c.items[t.ID] = t.Clone()
		c.order = append(c.order, t.ID)
	}
}
