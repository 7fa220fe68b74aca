package journal

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/spec-kit/desk-migrator/internal/config"
)

// Outcome classifies what happened to one source record.
type Outcome string

const (
	OutcomePosted  Outcome = "posted"
	OutcomeUpdated Outcome = "updated"
	OutcomeSkipped Outcome = "skipped"
	OutcomeFailed  Outcome = "failed"
)

// Entry is one journal row.
type Entry struct {
	RunID    uuid.UUID
	Mode     string
	SourceID string
	Outcome  Outcome
	Detail   string
}

const createTable = `
    CREATE TABLE IF NOT EXISTS migration_journal (
        id BIGSERIAL PRIMARY KEY,
        run_id UUID NOT NULL,
        mode TEXT NOT NULL,
        source_id TEXT NOT NULL,
        outcome TEXT NOT NULL,
        detail TEXT NOT NULL DEFAULT '',
        recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
    )`

// Store persists per-record outcomes so operators can audit a run and feed
// failed source ids back into the reprocess entry point. Recording is best
// effort; journal trouble never fails a migration.
type Store struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewStore establishes a journal connection when a DSN is provided.
func NewStore(ctx context.Context, cfg config.PostgresConfig, logger *zap.Logger) (*Store, error) {
	if cfg.DSN == "" {
		logger.Warn("POSTGRES_DSN not provided; journal disabled")
		return &Store{pool: nil, logger: logger}, nil
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, err
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	poolCfg.MaxConnIdleTime = 30 * time.Second

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, createTable); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("journal connected")
	return &Store{pool: pool, logger: logger}, nil
}

// Record inserts one journal row.
func (s *Store) Record(ctx context.Context, entry Entry) {
	if s == nil || s.pool == nil {
		return
	}
	const query = `
        INSERT INTO migration_journal (run_id, mode, source_id, outcome, detail)
        VALUES ($1,$2,$3,$4,$5)`
	_, err := s.pool.Exec(ctx, query,
		entry.RunID, entry.Mode, entry.SourceID, string(entry.Outcome), entry.Detail)
	if err != nil {
		s.logger.Warn("failed to record journal entry",
			zap.String("source_id", entry.SourceID),
			zap.Error(err))
	}
}

// FailedSourceIDs lists the source ids that failed in a given run, in the
// newline-delimited shape the reprocess entry point consumes.
func (s *Store) FailedSourceIDs(ctx context.Context, runID uuid.UUID) ([]string, error) {
	if s == nil || s.pool == nil {
		return nil, nil
	}
	const query = `
        SELECT DISTINCT source_id FROM migration_journal
        WHERE run_id = $1 AND outcome = $2
        ORDER BY source_id`
	rows, err := s.pool.Query(ctx, query, runID, string(OutcomeFailed))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Close releases pool resources.
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
