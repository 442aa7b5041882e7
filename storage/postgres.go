package storage

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/models"
)

// PostgresQueue keeps work items in a Postgres table. Claims rely on row
// locks, so any number of bot processes may share one database.
type PostgresQueue struct {
	pool *pgxpool.Pool
}

func NewPostgresQueue(ctx context.Context, cfg config.Config) (*PostgresQueue, error) {
	return NewPostgresQueueDSN(ctx, cfg.DSN(), cfg.InstanceCount+2)
}

// NewPostgresQueueDSN connects to dsn and ensures the schema exists.
func NewPostgresQueueDSN(ctx context.Context, dsn string, maxConns int) (*PostgresQueue, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, storageErr("parse postgres dsn", err)
	}
	if maxConns <= 0 {
		maxConns = 2
	}
	pcfg.MaxConns = int32(maxConns)
	pcfg.MaxConnLifetime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, storageErr("open postgres pool", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, storageErr("ping postgres", err)
	}

	q := &PostgresQueue{pool: pool}
	schemaCtx, schemaCancel := context.WithTimeout(ctx, 10*time.Second)
	defer schemaCancel()
	if err := q.ensureSchema(schemaCtx); err != nil {
		pool.Close()
		return nil, err
	}
	return q, nil
}

func (q *PostgresQueue) Close() error {
	q.pool.Close()
	return nil
}

func (q *PostgresQueue) Enqueue(ctx context.Context, descriptor string) (models.WorkItem, error) {
	item := models.WorkItem{Descriptor: descriptor}
	err := q.pool.QueryRow(ctx, `
		INSERT INTO work_items (descriptor)
		VALUES ($1)
		RETURNING id, created_at`,
		descriptor,
	).Scan(&item.ID, &item.CreatedAt)
	if err != nil {
		return models.WorkItem{}, storageErr("enqueue", err)
	}
	return item, nil
}

func (q *PostgresQueue) ClaimNext(ctx context.Context) (*models.WorkItem, error) {
	var item models.WorkItem
	err := q.pool.QueryRow(ctx, `
		UPDATE work_items
		SET processed = TRUE, claimed_at = NOW()
		WHERE id = (
			SELECT id FROM work_items
			WHERE NOT processed
			ORDER BY id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id, descriptor, created_at`,
	).Scan(&item.ID, &item.Descriptor, &item.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("claim", err)
	}
	item.Processed = true
	return &item, nil
}

// Pending counts unprocessed items.
func (q *PostgresQueue) Pending(ctx context.Context) (int, error) {
	var n int
	if err := q.pool.QueryRow(ctx, `SELECT COUNT(*) FROM work_items WHERE NOT processed`).Scan(&n); err != nil {
		return 0, storageErr("count pending", err)
	}
	return n, nil
}

func (q *PostgresQueue) ensureSchema(ctx context.Context) error {
	_, err := q.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS work_items (
			id BIGSERIAL PRIMARY KEY,
			descriptor TEXT NOT NULL,
			processed BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			claimed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_work_items_pending ON work_items(id) WHERE NOT processed;
	`)
	if err != nil {
		return storageErr("ensure schema", err)
	}
	return nil
}
