package sync

import (
	"context"
	"log"
	"sync"
	"time"

	"propel/engine/internal/queue"
)

const defaultPollInterval = 500 * time.Millisecond

// Workers drains the queue with a fixed goroutine pool. Each worker claims
// one item at a time, so a document's tasks never run concurrently with
// themselves thanks to queue-level deduplication.
type Workers struct {
	manager  *Manager
	queue    queue.Queue
	count    int
	interval time.Duration
}

func NewWorkers(m *Manager, q queue.Queue, count int) *Workers {
	if count <= 0 {
		count = 1
	}
	return &Workers{
		manager:  m,
		queue:    q,
		count:    count,
		interval: defaultPollInterval,
	}
}

// Run blocks until the context is cancelled and every worker has finished
// its in-flight item.
func (w *Workers) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 0; i < w.count; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			w.loop(ctx, id)
		}(i)
	}
	wg.Wait()
	log.Printf("sync: all %d workers stopped", w.count)
}

func (w *Workers) loop(ctx context.Context, id int) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		item, err := w.queue.Claim(ctx)
		if err != nil {
			log.Printf("sync: worker %d claim: %v", id, err)
			if !w.sleep(ctx) {
				return
			}
			continue
		}
		if item == nil {
			if !w.sleep(ctx) {
				return
			}
			continue
		}

		if err := w.manager.ProcessItem(ctx, *item); err != nil {
			log.Printf("sync: worker %d process %s %s: %v", id, item.Action, item.DocumentID, err)
		}
	}
}

func (w *Workers) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
