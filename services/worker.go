package services

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/criteria"
	"github.com/AliToori/TradeDeskBot/models"
	"github.com/AliToori/TradeDeskBot/storage"
	"github.com/AliToori/TradeDeskBot/tradedesk"
)

// worker claims items from the queue one at a time and hunts each of them
// with its own browser session.
type worker struct {
	id      int
	cfg     config.Config
	queue   storage.Queue
	open    SessionFactory
	session *tradedesk.Session
}

func newWorker(id int, cfg config.Config, queue storage.Queue, open SessionFactory) *worker {
	return &worker{id: id, cfg: cfg, queue: queue, open: open}
}

// Run loops until ctx is cancelled or the worker cannot go on. A clean stop
// leaves result.Err nil.
func (w *worker) Run(ctx context.Context) models.WorkerResult {
	result := models.WorkerResult{WorkerID: w.id}
	log.Printf("[worker %d] ▶ starting", w.id)

	err := w.loop(ctx, &result)
	if w.session != nil {
		if cerr := w.session.Close(); cerr != nil {
			log.Printf("[worker %d] ⚠ closing browser: %v", w.id, cerr)
		}
	}

	if err != nil && ctx.Err() == nil {
		log.Printf("[worker %d] ✗ halted: %v", w.id, err)
		result.Err = err
	} else {
		log.Printf("[worker %d] ✓ stopped after %d items, %d attempts",
			w.id, result.ItemsClaimed, len(result.Attempts))
	}
	return result
}

func (w *worker) loop(ctx context.Context, result *models.WorkerResult) error {
	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := w.ensureSession(ctx); err != nil {
			return err
		}

		item, err := w.queue.ClaimNext(ctx)
		if err != nil {
			return fmt.Errorf("claim work item: %w", err)
		}
		if item == nil {
			if err := wait(ctx, w.cfg.IdleDelay); err != nil {
				return nil
			}
			continue
		}

		result.ItemsClaimed++
		log.Printf("[worker %d] received work item %d: %s", w.id, item.ID, item.Descriptor)
		if err := w.hunt(ctx, *item, result); err != nil {
			return err
		}
		log.Printf("[worker %d] waiting for the next work item", w.id)
	}
}

// ensureSession opens the browser on first use and signs in. Login is a
// no-op once the session is authenticated.
func (w *worker) ensureSession(ctx context.Context) error {
	if w.session == nil {
		b, err := w.open(ctx, w.id)
		if err != nil {
			return fmt.Errorf("open browser: %w", err)
		}
		w.session = tradedesk.NewSession(w.id, b, w.cfg)
	}
	return w.session.Login(ctx, w.cfg.Credentials)
}

// hunt polls the event page of item and checks out matching listings until
// one purchase completes or the wait budget runs out. It returns an error
// only when the session is unusable or ctx is done.
func (w *worker) hunt(ctx context.Context, item models.WorkItem, result *models.WorkerResult) error {
	crit, err := criteria.Parse(item.Descriptor)
	if err != nil {
		log.Printf("[worker %d] ⚠ work item %d abandoned: %v", w.id, item.ID, err)
		result.ItemsAbandoned++
		return nil
	}

	deadline := time.Now().Add(w.cfg.WaitForTicket)
	if err := w.session.OpenEvent(ctx, item.Descriptor, crit); err != nil {
		return err
	}

	poller := tradedesk.NewPoller(w.session, w.cfg)
	checkout := tradedesk.NewCheckout(w.session, w.cfg)
	for {
		snap, err := poller.Poll(ctx, deadline)
		if errors.Is(err, tradedesk.ErrTimeout) {
			log.Printf("[worker %d] ⚠ work item %d: no new tickets within %s", w.id, item.ID, w.cfg.WaitForTicket)
			result.ItemsAbandoned++
			return nil
		}
		if err != nil {
			return err
		}

		idx, ok := criteria.FirstMatch(crit, snap.Rows())
		if !ok {
			log.Printf("[worker %d] no ticket matches section=%q row=%q seats=%q",
				w.id, crit.Section, crit.Row, crit.SeatPattern)
			continue
		}

		attempt, err := checkout.Run(ctx, snap.Candidates[idx], crit)
		attempt.WorkItemID = item.ID
		result.Attempts = append(result.Attempts, attempt)
		if err != nil {
			return err
		}
		if attempt.Stage == models.StageCompleted {
			return nil
		}

		if err := w.session.OpenEvent(ctx, item.Descriptor, crit); err != nil {
			return err
		}
	}
}

func wait(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
