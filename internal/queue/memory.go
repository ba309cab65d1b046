package queue

import (
	"context"
	"sort"
	"sync"
	"time"

	"propel/engine/internal/util"
)

// Memory is a mutex-guarded in-process queue.
type Memory struct {
	mu    sync.Mutex
	items []Item
}

func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) Enqueue(_ context.Context, item Item) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if item.ID == "" {
		item.ID = util.NewID("syn")
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now()
	}

	kept := m.items[:0]
	for _, existing := range m.items {
		if existing.Key() != item.Key() {
			kept = append(kept, existing)
		}
	}
	m.items = append(kept, item)
	return nil
}

func (m *Memory) Claim(_ context.Context) (*Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.items) == 0 {
		return nil, nil
	}
	sortItems(m.items)
	item := m.items[0]
	m.items = append(m.items[:0], m.items[1:]...)
	return &item, nil
}

func (m *Memory) Pending(_ context.Context, documentID string) ([]Item, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var pending []Item
	for _, item := range m.items {
		if item.DocumentID == documentID {
			pending = append(pending, item)
		}
	}
	sortItems(pending)
	return pending, nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items), nil
}

func (m *Memory) Remove(_ context.Context, documentID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.items[:0]
	removed := 0
	for _, item := range m.items {
		if item.DocumentID == documentID {
			removed++
		} else {
			kept = append(kept, item)
		}
	}
	m.items = kept
	return removed, nil
}

func sortItems(items []Item) {
	sort.SliceStable(items, func(a, b int) bool {
		if items[a].Priority != items[b].Priority {
			return items[a].Priority < items[b].Priority
		}
		return items[a].EnqueuedAt.Before(items[b].EnqueuedAt)
	})
}
