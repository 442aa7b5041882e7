package tradedesk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/criteria"
	"github.com/AliToori/TradeDeskBot/models"
)

// ErrTimeout is returned by Poll when the deadline passes before new
// inventory shows up.
var ErrTimeout = errors.New("timed out waiting for inventory")

// Candidate is a listing row together with the table row it was read from.
type Candidate struct {
	Row     models.ListingRow
	Element browser.Element
}

// Snapshot is the listing table as seen by one successful sample.
type Snapshot struct {
	Candidates []Candidate
}

// Rows returns the listing rows in table order.
func (s Snapshot) Rows() []models.ListingRow {
	rows := make([]models.ListingRow, len(s.Candidates))
	for i, c := range s.Candidates {
		rows[i] = c.Row
	}
	return rows
}

// Poller samples the inventory table of one session. It remembers the row
// count it last returned, so a Poller must not outlive its work item.
type Poller struct {
	session       *Session
	sampleTimeout time.Duration
	limiter       *rate.Limiter
	lastCount     int
}

func NewPoller(s *Session, cfg config.Config) *Poller {
	return &Poller{
		session:       s,
		sampleTimeout: cfg.SampleTimeout,
		limiter:       rate.NewLimiter(rate.Every(cfg.RefreshDelay), 1),
	}
}

// Poll samples until the table holds more rows than the last snapshot Poll
// returned, refreshing the inventory between samples. It returns
// ErrTimeout once deadline passes.
func (p *Poller) Poll(ctx context.Context, deadline time.Time) (Snapshot, error) {
	pollCtx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	id := p.session.WorkerID
	for {
		if err := p.limiter.Wait(pollCtx); err != nil {
			return Snapshot{}, p.stopErr(ctx)
		}

		rows, err := p.sample(pollCtx)
		switch {
		case browser.Fatal(err):
			return Snapshot{}, err
		case pollCtx.Err() != nil:
			return Snapshot{}, p.stopErr(ctx)
		case err != nil:
			log.Printf("[worker %d] tickets are not yet available, selecting all inventory", id)
		case len(rows) > p.lastCount:
			snap, err := p.extract(pollCtx, rows)
			if err != nil {
				if browser.Fatal(err) {
					return Snapshot{}, err
				}
				return Snapshot{}, p.stopErr(ctx)
			}
			p.lastCount = len(rows)
			log.Printf("[worker %d] %d tickets listed", id, len(rows))
			return snap, nil
		default:
			log.Printf("[worker %d] no new tickets found, selecting all inventory", id)
		}

		if err := p.session.RefreshInventory(pollCtx); browser.Fatal(err) {
			return Snapshot{}, err
		} else if err != nil && pollCtx.Err() == nil {
			log.Printf("[worker %d] ⚠ refresh inventory: %v", id, err)
		}
	}
}

// stopErr reports why polling stopped: the caller's context, or the deadline.
func (p *Poller) stopErr(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ErrTimeout
}

// sample returns the rendered ticket rows, failing when there are none.
func (p *Poller) sample(ctx context.Context) ([]browser.Element, error) {
	b := p.session.Browser
	if err := b.WaitVisible(ctx, TicketRowSelector, p.sampleTimeout); err != nil {
		return nil, err
	}
	rows, err := b.FindAll(ctx, TicketRowSelector)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: ticket table is empty", browser.ErrTransientUI)
	}
	return rows, nil
}

func (p *Poller) extract(ctx context.Context, rows []browser.Element) (Snapshot, error) {
	snap := Snapshot{Candidates: make([]Candidate, 0, len(rows))}
	for _, el := range rows {
		row, err := p.readRow(ctx, el)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Candidates = append(snap.Candidates, Candidate{Row: row, Element: el})
	}
	return snap, nil
}

// readRow extracts one listing. Fields that cannot be read stay empty; only
// a fatal session error or cancellation is returned.
func (p *Poller) readRow(ctx context.Context, el browser.Element) (models.ListingRow, error) {
	b := p.session.Browser
	row := models.ListingRow{
		ListingID: strings.TrimPrefix(el.Attr("id"), ticketIDPrefix),
	}

	if err := b.ScrollIntoView(ctx, el); browser.Fatal(err) {
		return row, err
	}

	fields := []struct {
		name     string
		selector string
		dst      *string
	}{
		{"section", SectionCell, &row.Section},
		{"row", RowCell, &row.Row},
		{"seats", SeatsCell, &row.Seats},
	}
	for _, f := range fields {
		text, err := browser.TextIn(ctx, b, el, f.selector)
		if browser.Fatal(err) {
			return row, err
		}
		if err != nil {
			if ctx.Err() != nil {
				return row, ctx.Err()
			}
			log.Printf("[worker %d] ⚠ ticket %s: reading %s: %v", p.session.WorkerID, row.ListingID, f.name, err)
			continue
		}
		*f.dst = text
	}

	text, err := browser.TextIn(ctx, b, el, PriceCell)
	if browser.Fatal(err) {
		return row, err
	}
	if err == nil {
		if price, perr := criteria.ParsePrice(text); perr == nil {
			row.Price = &price
		}
	}
	if row.Price == nil {
		log.Printf("[worker %d] ⚠ ticket %s: price unavailable", p.session.WorkerID, row.ListingID)
	}
	return row, nil
}
