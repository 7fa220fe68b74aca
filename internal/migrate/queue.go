package migrate

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/observability"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

// BatchQueue buffers create-type records and submits them as bulk calls of
// exactly batchSize items. The size check and the drain of a batch window
// happen inside one critical section so concurrent flushes can never race
// over the same items.
type BatchQueue[T any] struct {
	mu        sync.Mutex
	items     []T
	batchSize int
	submit    func(context.Context, []T)
	logger    *zap.Logger
}

// NewBatchQueue constructs a queue flushing through submit. A submitted
// batch is consumed whether or not the bulk call ultimately succeeds;
// failed batches are logged by the submitter, never resubmitted.
func NewBatchQueue[T any](batchSize int, logger *zap.Logger, submit func(context.Context, []T)) *BatchQueue[T] {
	return &BatchQueue[T]{batchSize: batchSize, submit: submit, logger: logger}
}

// Put appends one record.
func (q *BatchQueue[T]) Put(item T) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, item)
}

// Len reports the current queue size.
func (q *BatchQueue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// FlushFull submits exactly one full batch if enough items are buffered,
// otherwise it is a no-op.
func (q *BatchQueue[T]) FlushFull(ctx context.Context) {
	q.flushN(ctx, q.batchSize, false)
}

// Drain submits full batches while possible, then one final partial batch.
func (q *BatchQueue[T]) Drain(ctx context.Context) {
	for q.Len() >= q.batchSize {
		q.flushN(ctx, q.batchSize, false)
	}
	q.flushN(ctx, q.Len(), true)
}

func (q *BatchQueue[T]) flushN(ctx context.Context, n int, partial bool) {
	if n == 0 {
		return
	}
	q.mu.Lock()
	if len(q.items) < n {
		q.mu.Unlock()
		return
	}
	batch := q.items[:n:n]
	q.items = q.items[n:]
	q.mu.Unlock()

	if partial {
		q.logger.Info("flushing partial batch", zap.Int("size", n))
	}
	q.submit(ctx, batch)
}

// UpdateQueue buffers update-type records. One bulk update call cannot
// touch the same destination ticket twice, so each flush keeps the first
// update per ticket id and requeues the rest for a later cycle.
type UpdateQueue struct {
	mu        sync.Mutex
	items     []zendesk.TicketUpdate
	batchSize int
	submit    func(context.Context, []zendesk.TicketUpdate)
	progress  *observability.Progress
	logger    *zap.Logger
}

// NewUpdateQueue constructs the update queue.
func NewUpdateQueue(batchSize int, progress *observability.Progress, logger *zap.Logger, submit func(context.Context, []zendesk.TicketUpdate)) *UpdateQueue {
	return &UpdateQueue{batchSize: batchSize, submit: submit, progress: progress, logger: logger}
}

// Put appends one update.
func (q *UpdateQueue) Put(update zendesk.TicketUpdate) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, update)
}

// Len reports the current queue size.
func (q *UpdateQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// FlushFull submits one deduplicated full batch if enough items are
// buffered, otherwise it is a no-op.
func (q *UpdateQueue) FlushFull(ctx context.Context) {
	q.flushN(ctx, q.batchSize)
}

// Drain submits full batches while possible, then keeps flushing whatever
// remains. Requeued duplicates shrink by at least one per cycle once input
// has stopped, so the loop terminates.
func (q *UpdateQueue) Drain(ctx context.Context) {
	for q.Len() >= q.batchSize {
		q.flushN(ctx, q.batchSize)
	}
	for {
		remaining := q.Len()
		if remaining == 0 {
			return
		}
		if remaining > q.batchSize {
			remaining = q.batchSize
		}
		q.flushN(ctx, remaining)
	}
}

func (q *UpdateQueue) flushN(ctx context.Context, n int) {
	if n == 0 {
		return
	}
	q.mu.Lock()
	if len(q.items) < n {
		q.mu.Unlock()
		return
	}
	batch := q.items[:n:n]
	q.items = q.items[n:]

	seen := make(map[int64]bool, len(batch))
	deduped := make([]zendesk.TicketUpdate, 0, len(batch))
	var requeued int
	for _, update := range batch {
		if seen[update.ID] {
			// Deferred, never dropped: surplus updates for a ticket ride
			// along to the next flush cycle.
			q.items = append(q.items, update)
			requeued++
			continue
		}
		seen[update.ID] = true
		deduped = append(deduped, update)
	}
	q.mu.Unlock()

	if requeued > 0 {
		q.logger.Info("requeued duplicate ticket updates", zap.Int("count", requeued))
		q.progress.Add(observability.CounterUpdatesRequeued, int64(requeued))
	}
	q.submit(ctx, deduped)
}
