package journal

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fleetforge/fleetforge/internal/config"
)

// Postgres journals placement history into PostgreSQL tables.
type Postgres struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgres creates a PostgreSQL-backed journal, verifies the
// connection and creates the event tables if missing.
func NewPostgres(ctx context.Context, cfg config.DatabaseConfig, logger *zap.Logger) (*Postgres, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("failed to parse PostgreSQL config: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	poolConfig.MinConns = int32(cfg.MaxIdleConns)
	poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create PostgreSQL pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping PostgreSQL: %w", err)
	}

	if err := ensureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	logger.Info("Journal connected to PostgreSQL",
		zap.String("host", cfg.Host),
		zap.Int("port", cfg.Port),
		zap.String("database", cfg.Name),
	)

	return &Postgres{pool: pool, logger: logger}, nil
}

func ensureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS placement_events (
			id            BIGSERIAL PRIMARY KEY,
			session_id    TEXT      NOT NULL,
			seq           INT       NOT NULL,
			vm_index      INT       NOT NULL,
			pg_index      INT       NOT NULL,
			type_index    INT       NOT NULL,
			domain_index  INT       NOT NULL,
			rack_index    INT       NOT NULL,
			pm_index      INT       NOT NULL,
			node_indices  INT[]     NOT NULL,
			penalty       DOUBLE PRECISION NOT NULL,
			created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
		);
		CREATE TABLE IF NOT EXISTS deletion_events (
			id          BIGSERIAL PRIMARY KEY,
			session_id  TEXT NOT NULL,
			vm_index    INT  NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);`

	if _, err := pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create journal tables: %w", err)
	}
	return nil
}

// RecordPlacements inserts the batch in a single round trip.
func (p *Postgres) RecordPlacements(ctx context.Context, sessionID string, placements []Placement) error {
	batch := &pgx.Batch{}
	for _, pl := range placements {
		batch.Queue(
			`INSERT INTO placement_events (session_id, seq, vm_index, pg_index, type_index, domain_index, rack_index, pm_index, node_indices, penalty)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			sessionID, pl.Seq, pl.VMIndex, pl.Group, pl.Type, pl.Domain, pl.Rack, pl.PM, pl.Nodes, pl.Penalty,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range placements {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert placement event: %w", err)
		}
	}
	return nil
}

// RecordDeletions inserts one deletion row per removed VM.
func (p *Postgres) RecordDeletions(ctx context.Context, sessionID string, vmIndices []int) error {
	batch := &pgx.Batch{}
	for _, idx := range vmIndices {
		batch.Queue(
			`INSERT INTO deletion_events (session_id, vm_index) VALUES ($1, $2)`,
			sessionID, idx,
		)
	}

	results := p.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range vmIndices {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("failed to insert deletion event: %w", err)
		}
	}
	return nil
}

// Close closes the connection pool.
func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
