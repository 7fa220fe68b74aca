package observability

import "sync"

// Counter names tracked during a migration run.
const (
	CounterPagesFetched      = "pages_fetched"
	CounterRecordsDispatched = "records_dispatched"
	CounterUsersQueued       = "users_queued"
	CounterTicketsQueued     = "tickets_queued"
	CounterUpdatesQueued     = "updates_queued"
	CounterBatchesPosted     = "batches_posted"
	CounterBatchesUpdated    = "batches_updated"
	CounterUpdatesRequeued   = "updates_requeued"
	CounterRecordsFailed     = "records_failed"
	CounterAttachmentsMoved  = "attachments_moved"
)

// Progress provides basic in-memory run counters.
type Progress struct {
	mu       sync.Mutex
	counters map[string]int64
}

// NewProgress initializes counter storage.
func NewProgress() *Progress {
	return &Progress{counters: make(map[string]int64)}
}

// Inc increments a counter by one.
func (p *Progress) Inc(name string) {
	p.Add(name, 1)
}

// Add increments a counter by delta.
func (p *Progress) Add(name string, delta int64) {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.counters[name] += delta
}

// Snapshot returns a copy of all counters.
func (p *Progress) Snapshot() map[string]int64 {
	if p == nil {
		return map[string]int64{}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[string]int64, len(p.counters))
	for k, v := range p.counters {
		out[k] = v
	}
	return out
}
