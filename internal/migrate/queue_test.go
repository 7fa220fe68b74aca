package migrate

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/observability"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

func TestBatchQueue_FlushFullBelowThresholdIsNoop(t *testing.T) {
	var batches [][]zendesk.User
	queue := NewBatchQueue(100, zap.NewNop(), func(_ context.Context, batch []zendesk.User) {
		batches = append(batches, batch)
	})

	for i := 0; i < 99; i++ {
		queue.Put(zendesk.User{ExternalID: fmt.Sprintf("u-%d", i)})
	}
	queue.FlushFull(context.Background())

	assert.Empty(t, batches)
	assert.Equal(t, 99, queue.Len())
}

func TestBatchQueue_FlushFullPopsExactlyOneBatch(t *testing.T) {
	var batches [][]zendesk.User
	queue := NewBatchQueue(100, zap.NewNop(), func(_ context.Context, batch []zendesk.User) {
		batches = append(batches, batch)
	})

	for i := 0; i < 150; i++ {
		queue.Put(zendesk.User{ExternalID: fmt.Sprintf("u-%d", i)})
	}
	queue.FlushFull(context.Background())

	require.Len(t, batches, 1)
	assert.Len(t, batches[0], 100)
	assert.Equal(t, 50, queue.Len())
}

func TestBatchQueue_DrainFlushesRemainder(t *testing.T) {
	var sizes []int
	queue := NewBatchQueue(100, zap.NewNop(), func(_ context.Context, batch []zendesk.TicketCreate) {
		sizes = append(sizes, len(batch))
	})

	for i := 0; i < 250; i++ {
		queue.Put(zendesk.TicketCreate{ExternalID: i})
	}
	queue.Drain(context.Background())

	assert.Equal(t, []int{100, 100, 50}, sizes)
	assert.Equal(t, 0, queue.Len())
}

func TestBatchQueue_DrainEmptyIsNoop(t *testing.T) {
	var sizes []int
	queue := NewBatchQueue(100, zap.NewNop(), func(_ context.Context, batch []zendesk.TicketCreate) {
		sizes = append(sizes, len(batch))
	})

	queue.Drain(context.Background())
	assert.Empty(t, sizes)
}

func TestUpdateQueue_DedupRequeuesSurplus(t *testing.T) {
	var batches [][]zendesk.TicketUpdate
	progress := observability.NewProgress()
	queue := NewUpdateQueue(5, progress, zap.NewNop(), func(_ context.Context, batch []zendesk.TicketUpdate) {
		batches = append(batches, batch)
	})

	// Three updates for ticket 7, one each for 8 and 9.
	queue.Put(zendesk.TicketUpdate{ID: 7, Status: "open"})
	queue.Put(zendesk.TicketUpdate{ID: 8})
	queue.Put(zendesk.TicketUpdate{ID: 7, Status: "pending"})
	queue.Put(zendesk.TicketUpdate{ID: 9})
	queue.Put(zendesk.TicketUpdate{ID: 7, Status: "solved"})

	queue.FlushFull(context.Background())

	require.Len(t, batches, 1)
	require.Len(t, batches[0], 3)
	assert.Equal(t, int64(7), batches[0][0].ID)
	assert.Equal(t, "open", batches[0][0].Status)
	assert.Equal(t, int64(8), batches[0][1].ID)
	assert.Equal(t, int64(9), batches[0][2].ID)

	// The two surplus updates for ticket 7 were deferred, not dropped.
	assert.Equal(t, 2, queue.Len())
	assert.Equal(t, int64(2), progress.Snapshot()[observability.CounterUpdatesRequeued])
}

func TestUpdateQueue_DrainEventuallySubmitsAllDuplicates(t *testing.T) {
	var batches [][]zendesk.TicketUpdate
	queue := NewUpdateQueue(100, observability.NewProgress(), zap.NewNop(), func(_ context.Context, batch []zendesk.TicketUpdate) {
		batches = append(batches, batch)
	})

	const dupes = 4
	for i := 0; i < dupes; i++ {
		queue.Put(zendesk.TicketUpdate{ID: 7, Subject: fmt.Sprintf("rev-%d", i)})
	}
	queue.Drain(context.Background())

	// One cycle per duplicate: each submits exactly one update for id 7.
	require.Len(t, batches, dupes)
	total := 0
	for _, batch := range batches {
		require.Len(t, batch, 1)
		assert.Equal(t, int64(7), batch[0].ID)
		total += len(batch)
	}
	assert.Equal(t, dupes, total)
	assert.Equal(t, 0, queue.Len())
}

func TestUpdateQueue_DrainMixedSizes(t *testing.T) {
	var sizes []int
	queue := NewUpdateQueue(100, observability.NewProgress(), zap.NewNop(), func(_ context.Context, batch []zendesk.TicketUpdate) {
		sizes = append(sizes, len(batch))
	})

	for i := 0; i < 120; i++ {
		queue.Put(zendesk.TicketUpdate{ID: int64(i)})
	}
	queue.Drain(context.Background())

	assert.Equal(t, []int{100, 20}, sizes)
	assert.Equal(t, 0, queue.Len())
}
