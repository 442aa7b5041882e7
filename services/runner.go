package services

import (
	"context"
	"log"

	"golang.org/x/sync/errgroup"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/models"
	"github.com/AliToori/TradeDeskBot/storage"
)

// SessionFactory opens a fresh browser for one worker.
type SessionFactory func(ctx context.Context, workerID int) (browser.Browser, error)

// ChromeSessions returns a SessionFactory that launches one Chrome per
// worker, with chromedp's own logging tagged by worker id.
func ChromeSessions(cfg config.Config) SessionFactory {
	return func(ctx context.Context, workerID int) (browser.Browser, error) {
		return browser.NewChrome(ctx, cfg, func(format string, args ...interface{}) {
			log.Printf("[worker %d] "+format, append([]interface{}{workerID}, args...)...)
		})
	}
}

// RunAll starts cfg.InstanceCount workers against queue and blocks until
// every one of them has exited, either because ctx was cancelled or because
// the worker hit a fatal error. Results are returned in worker order.
func RunAll(rootCtx context.Context, cfg config.Config, queue storage.Queue, open SessionFactory) []models.WorkerResult {
	workers := cfg.InstanceCount
	if workers <= 0 {
		workers = 1
	}

	ordered := make([]models.WorkerResult, workers)
	results := make(chan models.WorkerResult, workers)

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		w := newWorker(i+1, cfg, queue, open)
		g.Go(func() error {
			results <- w.Run(rootCtx)
			return nil
		})
	}

	go func() {
		_ = g.Wait()
		close(results)
	}()

	for result := range results {
		ordered[result.WorkerID-1] = result
	}

	return ordered
}
