package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/models"
)

// ErrStorage wraps every I/O failure of a queue backend.
var ErrStorage = errors.New("queue storage failure")

// Queue is the durable work item log shared by the ingestion listener and
// all workers.
type Queue interface {
	// Enqueue appends descriptor as a new unprocessed item.
	Enqueue(ctx context.Context, descriptor string) (models.WorkItem, error)
	// ClaimNext marks the oldest unprocessed item processed and returns it,
	// or returns nil when there is none. No two callers get the same item.
	ClaimNext(ctx context.Context) (*models.WorkItem, error)
	// Pending counts unprocessed items.
	Pending(ctx context.Context) (int, error)
	Close() error
}

// Open returns the queue backend named by cfg.QueueBackend.
func Open(ctx context.Context, cfg config.Config) (Queue, error) {
	switch cfg.QueueBackend {
	case "csv":
		return OpenCSVQueue(cfg.QueueFile)
	case "sqlite":
		return OpenSQLiteQueue(cfg.SQLitePath)
	case "postgres":
		return NewPostgresQueue(ctx, cfg)
	default:
		return nil, fmt.Errorf("unknown queue backend %q", cfg.QueueBackend)
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", ErrStorage, op, err)
}
