// Package queue provides the pending-sync work queue: priority ordered,
// deduplicated per document/provider/action, safe for concurrent workers.
// The in-memory implementation suits tests and single-process deployments;
// the Redis implementation lets multiple worker processes drain safely.
package queue

import (
	"context"
	"time"
)

const (
	ActionPush = "push"
	ActionPull = "pull"
)

// DefaultPriority is used when callers have no reason to jump the line.
// Lower numeric value means higher priority.
const DefaultPriority = 5

type Item struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"documentId"`
	Provider   string    `json:"provider"`
	Action     string    `json:"action"`
	Priority   int       `json:"priority"`
	EnqueuedAt time.Time `json:"enqueuedAt"`
	Attempts   int       `json:"attempts"`
}

// Key identifies the debounce slot: re-enqueueing the same document,
// provider and action replaces the pending item rather than duplicating it.
func (i Item) Key() string {
	return i.DocumentID + "|" + i.Provider + "|" + i.Action
}

type Queue interface {
	// Enqueue adds an item, replacing any pending item with the same Key.
	Enqueue(ctx context.Context, item Item) error
	// Claim removes and returns the highest-priority item (ties broken by
	// earliest enqueue time), or nil if the queue is empty.
	Claim(ctx context.Context) (*Item, error)
	// Pending returns the pending items for a document ordered by priority
	// then enqueue time. Non-destructive: repeated calls see the same items.
	Pending(ctx context.Context, documentID string) ([]Item, error)
	// Len reports the total number of pending items.
	Len(ctx context.Context) (int, error)
	// Remove drops every pending item for a document and returns how many
	// were dropped. Removing an unknown document returns 0.
	Remove(ctx context.Context, documentID string) (int, error)
}
