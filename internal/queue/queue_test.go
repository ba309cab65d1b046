package queue

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

// Both implementations must satisfy the same behavioral contract, so every
// test runs against each.
func queueImpls(t *testing.T) map[string]Queue {
	t.Helper()
	mr := miniredis.RunT(t)
	r, err := NewRedis("redis://" + mr.Addr())
	if err != nil {
		t.Fatalf("NewRedis failed: %v", err)
	}
	t.Cleanup(func() { _ = r.Close() })

	return map[string]Queue{
		"memory": NewMemory(),
		"redis":  r,
	}
}

func at(seconds int) time.Time {
	return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC).Add(time.Duration(seconds) * time.Second)
}

func TestEnqueueDebouncesSameKey(t *testing.T) {
	for name, q := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			first := Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: DefaultPriority, EnqueuedAt: at(0)}
			second := Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: DefaultPriority, EnqueuedAt: at(1)}

			if err := q.Enqueue(ctx, first); err != nil {
				t.Fatalf("enqueue first: %v", err)
			}
			if err := q.Enqueue(ctx, second); err != nil {
				t.Fatalf("enqueue second: %v", err)
			}

			length, err := q.Len(ctx)
			if err != nil {
				t.Fatalf("Len: %v", err)
			}
			if length != 1 {
				t.Fatalf("queue length = %d, want 1 (debounced)", length)
			}
		})
	}
}

func TestEnqueueDistinctActionsCoexist(t *testing.T) {
	for name, q := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			push := Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: DefaultPriority, EnqueuedAt: at(0)}
			pull := Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPull, Priority: DefaultPriority, EnqueuedAt: at(1)}

			if err := q.Enqueue(ctx, push); err != nil {
				t.Fatalf("enqueue push: %v", err)
			}
			if err := q.Enqueue(ctx, pull); err != nil {
				t.Fatalf("enqueue pull: %v", err)
			}

			pending, err := q.Pending(ctx, "doc-1")
			if err != nil {
				t.Fatalf("Pending: %v", err)
			}
			if len(pending) != 2 {
				t.Fatalf("pending = %d items, want 2", len(pending))
			}
		})
	}
}

func TestPendingIsNonDestructiveAndOrdered(t *testing.T) {
	for name, q := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			items := []Item{
				{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: 5, EnqueuedAt: at(0)},
				{DocumentID: "doc-1", Provider: "gsheets", Action: ActionPush, Priority: 1, EnqueuedAt: at(1)},
				{DocumentID: "doc-1", Provider: "gdrive", Action: ActionPull, Priority: 5, EnqueuedAt: at(2)},
				{DocumentID: "doc-2", Provider: "gdocs", Action: ActionPush, Priority: 0, EnqueuedAt: at(3)},
			}
			for _, item := range items {
				if err := q.Enqueue(ctx, item); err != nil {
					t.Fatalf("enqueue: %v", err)
				}
			}

			pending, err := q.Pending(ctx, "doc-1")
			if err != nil {
				t.Fatalf("Pending: %v", err)
			}
			if len(pending) != 3 {
				t.Fatalf("pending = %d items, want 3", len(pending))
			}
			if pending[0].Provider != "gsheets" {
				t.Fatalf("pending[0] = %+v, want the priority-1 item first", pending[0])
			}
			// Priority tie resolved by earliest enqueue time.
			if pending[1].Provider != "gdocs" || pending[2].Provider != "gdrive" {
				t.Fatalf("tie-break order wrong: %+v", pending)
			}

			again, err := q.Pending(ctx, "doc-1")
			if err != nil {
				t.Fatalf("Pending again: %v", err)
			}
			if len(again) != len(pending) {
				t.Fatalf("peek removed items: first %d, second %d", len(pending), len(again))
			}
		})
	}
}

func TestClaimFollowsPriorityOrder(t *testing.T) {
	for name, q := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := q.Enqueue(ctx, Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: 5, EnqueuedAt: at(0)}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := q.Enqueue(ctx, Item{DocumentID: "doc-2", Provider: "gdocs", Action: ActionPush, Priority: 1, EnqueuedAt: at(1)}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			first, err := q.Claim(ctx)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if first == nil || first.DocumentID != "doc-2" {
				t.Fatalf("claimed %+v, want doc-2 (higher priority)", first)
			}

			second, err := q.Claim(ctx)
			if err != nil {
				t.Fatalf("Claim: %v", err)
			}
			if second == nil || second.DocumentID != "doc-1" {
				t.Fatalf("claimed %+v, want doc-1", second)
			}

			empty, err := q.Claim(ctx)
			if err != nil {
				t.Fatalf("Claim on empty: %v", err)
			}
			if empty != nil {
				t.Fatalf("claimed %+v from empty queue, want nil", empty)
			}
		})
	}
}

func TestRemoveIsPrecise(t *testing.T) {
	for name, q := range queueImpls(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := q.Enqueue(ctx, Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPush, Priority: 5, EnqueuedAt: at(0)}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := q.Enqueue(ctx, Item{DocumentID: "doc-1", Provider: "gdocs", Action: ActionPull, Priority: 5, EnqueuedAt: at(1)}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}
			if err := q.Enqueue(ctx, Item{DocumentID: "doc-2", Provider: "gdocs", Action: ActionPush, Priority: 5, EnqueuedAt: at(2)}); err != nil {
				t.Fatalf("enqueue: %v", err)
			}

			removed, err := q.Remove(ctx, "doc-1")
			if err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if removed != 2 {
				t.Fatalf("removed = %d, want 2", removed)
			}

			removed, err = q.Remove(ctx, "doc-1")
			if err != nil {
				t.Fatalf("Remove again: %v", err)
			}
			if removed != 0 {
				t.Fatalf("second removal = %d, want 0", removed)
			}

			removed, err = q.Remove(ctx, "doc-never-enqueued")
			if err != nil {
				t.Fatalf("Remove unknown: %v", err)
			}
			if removed != 0 {
				t.Fatalf("unknown document removal = %d, want 0", removed)
			}

			length, err := q.Len(ctx)
			if err != nil {
				t.Fatalf("Len: %v", err)
			}
			if length != 1 {
				t.Fatalf("queue length after removals = %d, want 1", length)
			}
		})
	}
}
