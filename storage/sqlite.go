package storage

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/AliToori/TradeDeskBot/models"
)

// SQLiteQueue keeps work items in a local SQLite database.
type SQLiteQueue struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteQueue creates or opens the database at dbPath.
func OpenSQLiteQueue(dbPath string) (*SQLiteQueue, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, storageErr("create db directory", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, storageErr("open sqlite", err)
	}
	db.SetMaxOpenConns(1) // SQLite handles one writer at a time

	q := &SQLiteQueue{db: db}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := q.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return q, nil
}

func (q *SQLiteQueue) ensureSchema(ctx context.Context) error {
	_, err := q.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS work_items (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			descriptor TEXT NOT NULL,
			processed INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL,
			claimed_at INTEGER
		);
		CREATE INDEX IF NOT EXISTS idx_work_items_pending ON work_items(processed, id);
	`)
	if err != nil {
		return storageErr("ensure schema", err)
	}
	return nil
}

func (q *SQLiteQueue) Enqueue(ctx context.Context, descriptor string) (models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx,
		`INSERT INTO work_items (descriptor, processed, created_at) VALUES (?, 0, ?)`,
		descriptor, now.UnixMilli())
	if err != nil {
		return models.WorkItem{}, storageErr("enqueue", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return models.WorkItem{}, storageErr("enqueue", err)
	}
	return models.WorkItem{ID: id, Descriptor: descriptor, CreatedAt: now}, nil
}

func (q *SQLiteQueue) ClaimNext(ctx context.Context) (*models.WorkItem, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var (
		item      models.WorkItem
		createdAt int64
	)
	err := q.db.QueryRowContext(ctx, `
		UPDATE work_items
		SET processed = 1, claimed_at = ?
		WHERE id = (SELECT id FROM work_items WHERE processed = 0 ORDER BY id LIMIT 1)
		RETURNING id, descriptor, created_at`,
		time.Now().UTC().UnixMilli(),
	).Scan(&item.ID, &item.Descriptor, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("claim", err)
	}
	item.Processed = true
	item.CreatedAt = time.UnixMilli(createdAt).UTC()
	return &item, nil
}

// Pending counts unprocessed items.
func (q *SQLiteQueue) Pending(ctx context.Context) (int, error) {
	var n int
	if err := q.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM work_items WHERE processed = 0`).Scan(&n); err != nil {
		return 0, storageErr("count pending", err)
	}
	return n, nil
}

func (q *SQLiteQueue) Close() error {
	return q.db.Close()
}
