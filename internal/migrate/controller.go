package migrate

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
	"github.com/spec-kit/desk-migrator/internal/desk"
	"github.com/spec-kit/desk-migrator/internal/journal"
	"github.com/spec-kit/desk-migrator/internal/observability"
	"github.com/spec-kit/desk-migrator/internal/zendesk"
)

// Mode selects what a run migrates.
type Mode string

const (
	ModeUsers   Mode = "u"
	ModeTickets Mode = "t"
)

// reprocessChunkSize is how many source ids one search fetch covers.
const reprocessChunkSize = 100

// Dependencies bundles the collaborators a Migrator needs.
type Dependencies struct {
	Desk     *desk.Client
	Zendesk  *zendesk.Client
	Resolver UserResolver
	Journal  *journal.Store
	Progress *observability.Progress
	Logger   *zap.Logger
}

// Migrator orchestrates a migration run: resolve the agent, paginate the
// source, fan records out to workers, drain the batching queues, verify.
type Migrator struct {
	cfg      config.MigrationConfig
	agentRef string

	desk     *desk.Client
	zendesk  *zendesk.Client
	resolver UserResolver
	journal  *journal.Store
	progress *observability.Progress
	logger   *zap.Logger

	runID   uuid.UUID
	pool    *Pool
	users   *BatchQueue[zendesk.User]
	tickets *BatchQueue[zendesk.TicketCreate]
	updates *UpdateQueue

	// transformer is built once the migration agent resolves at run start.
	transformer *Transformer
}

// New constructs a Migrator for one run.
func New(cfg *config.Config, deps Dependencies) *Migrator {
	m := &Migrator{
		cfg:      cfg.Migration,
		agentRef: cfg.Zendesk.AgentID,
		desk:     deps.Desk,
		zendesk:  deps.Zendesk,
		resolver: deps.Resolver,
		journal:  deps.Journal,
		progress: deps.Progress,
		logger:   deps.Logger,
		runID:    uuid.New(),
		pool:     NewPool(cfg.Migration.Workers),
	}

	m.users = NewBatchQueue(cfg.Migration.BatchSize, m.logger, func(ctx context.Context, batch []zendesk.User) {
		m.logger.Info("posting users", zap.Int("count", len(batch)))
		if err := m.zendesk.CreateOrUpdateUsers(ctx, batch); err != nil {
			m.logger.Error("user batch failed", zap.Int("count", len(batch)), zap.Error(err))
			return
		}
		m.progress.Inc(observability.CounterBatchesPosted)
	})
	m.tickets = NewBatchQueue(cfg.Migration.BatchSize, m.logger, func(ctx context.Context, batch []zendesk.TicketCreate) {
		m.logger.Info("posting tickets", zap.Int("count", len(batch)))
		if err := m.zendesk.ImportTickets(ctx, batch); err != nil {
			m.logger.Error("ticket batch failed", zap.Int("count", len(batch)), zap.Error(err))
			return
		}
		m.progress.Inc(observability.CounterBatchesPosted)
	})
	m.updates = NewUpdateQueue(cfg.Migration.BatchSize, m.progress, m.logger, func(ctx context.Context, batch []zendesk.TicketUpdate) {
		m.logger.Info("updating tickets", zap.Int("count", len(batch)))
		if err := m.zendesk.UpdateTickets(ctx, batch); err != nil {
			m.logger.Error("update batch failed", zap.Int("count", len(batch)), zap.Error(err))
			return
		}
		m.progress.Inc(observability.CounterBatchesUpdated)
	})

	return m
}

// RunID identifies this run in journal rows and logs.
func (m *Migrator) RunID() uuid.UUID {
	return m.runID
}

// Run executes a full migration for the given mode.
func (m *Migrator) Run(ctx context.Context, mode Mode) error {
	if err := m.start(ctx, mode); err != nil {
		return err
	}

	pages, err := m.fetchAllPages(ctx, mode)
	if err != nil {
		m.logger.Error("could not get number of pages", zap.Error(err))
		return err
	}

	m.pool.Join()
	m.pool.Close()
	m.drainQueues(ctx)

	m.logger.Info("complete: all pages processed",
		zap.Int("pages", pages),
		zap.Any("counters", m.progress.Snapshot()))

	if err := m.Verify(ctx, mode); err != nil {
		m.logger.Error("verification failed", zap.Error(err))
		return err
	}
	return nil
}

// Reprocess re-migrates specific source records listed one id per line in
// the given file. No verification stage runs afterwards.
func (m *Migrator) Reprocess(ctx context.Context, mode Mode, path string) error {
	if err := m.start(ctx, mode); err != nil {
		return err
	}

	ids, err := readIDFile(path)
	if err != nil {
		m.logger.Error("could not read id file", zap.String("path", path), zap.Error(err))
		return err
	}

	for start := 0; start < len(ids); start += reprocessChunkSize {
		chunk := ids[start:min(start+reprocessChunkSize, len(ids))]
		cases, err := m.desk.CasesByIDs(ctx, chunk)
		if err != nil {
			m.logger.Error("could not fetch case chunk", zap.Int("offset", start), zap.Error(err))
			continue
		}
		for _, c := range cases {
			caseRecord := c
			switch mode {
			case ModeUsers:
				m.pool.Submit(ctx, func() { m.reprocessCustomer(ctx, &caseRecord) })
			case ModeTickets:
				m.logger.Info("reprocessing case", zap.Int("case_id", caseRecord.ID))
				m.pool.Submit(ctx, func() { m.migrateTicket(ctx, &caseRecord) })
			}
			m.progress.Inc(observability.CounterRecordsDispatched)
		}
	}

	m.pool.Join()
	m.pool.Close()
	m.drainQueues(ctx)

	m.logger.Info("reprocess complete", zap.Int("ids", len(ids)))
	return nil
}

// start validates the mode and resolves the migration agent; both are
// fatal for the run when they fail.
func (m *Migrator) start(ctx context.Context, mode Mode) error {
	if mode != ModeUsers && mode != ModeTickets {
		m.logger.Error("unsupported mode", zap.String("mode", string(mode)))
		return fmt.Errorf("unsupported mode %q", mode)
	}
	agentID, err := m.zendesk.UserID(ctx, m.agentRef)
	if err != nil {
		m.logger.Error("could not resolve migration agent", zap.Error(err))
		return err
	}
	if agentID == 0 {
		m.logger.Error("migration agent not found", zap.String("agent", m.agentRef))
		return fmt.Errorf("migration agent %q not found", m.agentRef)
	}
	m.transformer = NewTransformer(m.resolver, agentID, m.logger)
	m.logger.Info("run starting",
		zap.String("run_id", m.runID.String()),
		zap.String("mode", string(mode)),
		zap.Int64("agent_id", agentID))
	return nil
}

// fetchAllPages discovers the page count, then requests pages one at a
// time, dispatching each record into the pool as it arrives.
func (m *Migrator) fetchAllPages(ctx context.Context, mode Mode) (int, error) {
	var (
		pages int
		err   error
	)
	if mode == ModeUsers {
		pages, err = m.desk.CustomerPageCount(ctx)
	} else {
		pages, err = m.desk.CasePageCount(ctx)
	}
	if err != nil {
		return 0, err
	}
	if pages <= 0 {
		return 0, fmt.Errorf("no pages to process")
	}
	m.logger.Info("number of pages", zap.Int("pages", pages))

	for page := 1; page <= pages; page++ {
		m.logger.Info("processing page", zap.Int("page", page))
		if mode == ModeUsers {
			customers, err := m.desk.CustomerPage(ctx, page)
			if err != nil {
				m.logger.Error("could not fetch customer page", zap.Int("page", page), zap.Error(err))
				continue
			}
			for _, customer := range customers {
				record := customer
				m.pool.Submit(ctx, func() { m.migrateUser(ctx, record) })
				m.progress.Inc(observability.CounterRecordsDispatched)
			}
		} else {
			cases, err := m.desk.CasePage(ctx, page)
			if err != nil {
				m.logger.Error("could not fetch case page", zap.Int("page", page), zap.Error(err))
				continue
			}
			for _, c := range cases {
				record := c
				m.pool.Submit(ctx, func() { m.migrateTicket(ctx, &record) })
				m.progress.Inc(observability.CounterRecordsDispatched)
			}
		}
		m.progress.Inc(observability.CounterPagesFetched)
	}
	return pages, nil
}

// migrateUser transforms one customer and queues the create. A flush task
// rides along so a full queue empties without waiting for drain.
func (m *Migrator) migrateUser(ctx context.Context, customer desk.Customer) {
	m.logger.Info("creating user", zap.String("user_id", customer.ID))
	m.users.Put(m.transformer.User(customer))
	m.progress.Inc(observability.CounterUsersQueued)
	m.journal.Record(ctx, journal.Entry{
		RunID: m.runID, Mode: string(ModeUsers), SourceID: customer.ID,
		Outcome: journal.OutcomePosted,
	})
	m.pool.Submit(ctx, func() { m.users.FlushFull(ctx) })
}

// migrateTicket enriches, transforms and queues one case, choosing the
// create path or the delta-update path based on destination existence.
func (m *Migrator) migrateTicket(ctx context.Context, c *desk.Case) {
	sourceID := strconv.Itoa(c.ID)

	if err := m.enrichCase(ctx, c); err != nil {
		m.failRecord(ctx, ModeTickets, sourceID, "enrichment failed", err)
		return
	}
	uploads := m.uploadAttachments(ctx, c)

	ticket, err := m.transformer.Ticket(ctx, c, uploads)
	if err != nil {
		m.failRecord(ctx, ModeTickets, sourceID, "transform failed", err)
		return
	}

	m.logger.Info("creating or updating ticket", zap.Int("case_id", c.ID))
	destID, err := m.zendesk.TicketIDByExternal(ctx, c.ID)
	if err != nil {
		m.failRecord(ctx, ModeTickets, sourceID, "existence check failed", err)
		return
	}

	switch {
	case destID > 0:
		destCount, err := m.zendesk.CommentCount(ctx, destID)
		if err != nil {
			m.failRecord(ctx, ModeTickets, sourceID, "comment count failed", err)
			return
		}
		delta := len(ticket.Comments) - destCount
		m.logger.Info("adding comments to ticket already at destination",
			zap.Int("case_id", c.ID),
			zap.Int64("dest_id", destID),
			zap.Int("delta", delta))
		for _, update := range m.transformer.CommentUpdates(ticket, destID, delta) {
			m.updates.Put(update)
			m.progress.Inc(observability.CounterUpdatesQueued)
		}
		// The field-only sync goes out whether or not new comments exist.
		m.updates.Put(m.transformer.SyncUpdate(ticket, destID))
		m.progress.Inc(observability.CounterUpdatesQueued)
		m.journal.Record(ctx, journal.Entry{
			RunID: m.runID, Mode: string(ModeTickets), SourceID: sourceID,
			Outcome: journal.OutcomeUpdated,
		})
		m.pool.Submit(ctx, func() { m.updates.FlushFull(ctx) })
	case destID == 0:
		m.tickets.Put(*ticket)
		m.progress.Inc(observability.CounterTicketsQueued)
		m.journal.Record(ctx, journal.Entry{
			RunID: m.runID, Mode: string(ModeTickets), SourceID: sourceID,
			Outcome: journal.OutcomePosted,
		})
		m.pool.Submit(ctx, func() { m.tickets.FlushFull(ctx) })
	default:
		m.logger.Error("could not add case to the queue, existence check was ambiguous",
			zap.Int("case_id", c.ID))
		m.journal.Record(ctx, journal.Entry{
			RunID: m.runID, Mode: string(ModeTickets), SourceID: sourceID,
			Outcome: journal.OutcomeSkipped, Detail: "ambiguous external id",
		})
	}
}

// reprocessCustomer re-migrates the owner of a case listed in the
// reprocess file.
func (m *Migrator) reprocessCustomer(ctx context.Context, c *desk.Case) {
	customer, err := m.desk.CustomerByID(ctx, strconv.Itoa(c.UserID))
	if err != nil {
		m.failRecord(ctx, ModeUsers, strconv.Itoa(c.UserID), "customer fetch failed", err)
		return
	}
	m.logger.Info("reprocessing customer", zap.String("external_id", customer.ID))
	m.migrateUser(ctx, *customer)
}

func (m *Migrator) failRecord(ctx context.Context, mode Mode, sourceID, detail string, err error) {
	m.logger.Error("record failed",
		zap.String("mode", string(mode)),
		zap.String("source_id", sourceID),
		zap.String("detail", detail),
		zap.Error(err))
	m.progress.Inc(observability.CounterRecordsFailed)
	m.journal.Record(ctx, journal.Entry{
		RunID: m.runID, Mode: string(mode), SourceID: sourceID,
		Outcome: journal.OutcomeFailed, Detail: detail,
	})
}

// drainQueues force-flushes everything still buffered. The update queue
// drains first because its requeue cycles need the most calls.
func (m *Migrator) drainQueues(ctx context.Context) {
	if m.updates.Len() > 0 {
		m.logger.Info("cleaning up update queue", zap.Int("size", m.updates.Len()))
		m.updates.Drain(ctx)
	}
	if m.users.Len() > 0 {
		m.logger.Info("cleaning up user post queue", zap.Int("size", m.users.Len()))
		m.users.Drain(ctx)
	}
	if m.tickets.Len() > 0 {
		m.logger.Info("cleaning up ticket post queue", zap.Int("size", m.tickets.Len()))
		m.tickets.Drain(ctx)
	}
}

func readIDFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, line := range strings.Split(string(raw), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			ids = append(ids, line)
		}
	}
	return ids, nil
}
