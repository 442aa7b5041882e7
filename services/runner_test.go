package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/models"
	"github.com/AliToori/TradeDeskBot/storage"
	"github.com/AliToori/TradeDeskBot/tradedesk"
)

type stubEl struct {
	id  string
	sel string
}

func (e stubEl) Attr(name string) string {
	if name == "id" {
		return "ticket_" + e.id
	}
	return ""
}

// stubBrowser shows one inventory row matching section 200 row A seat 5
// and a cart priced at cartPrice. Every other interaction succeeds, unless
// noRows hides the inventory table or noProfile keeps sign-in from landing.
type stubBrowser struct {
	cartPrice string
	onProceed func()
	noRows    bool
	noProfile bool

	mu        sync.Mutex
	closed    bool
	navigated []string
}

func (b *stubBrowser) Navigate(_ context.Context, url string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.navigated = append(b.navigated, url)
	return nil
}

func (b *stubBrowser) visits(url string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := 0
	for _, u := range b.navigated {
		if u == url {
			n++
		}
	}
	return n
}

func (b *stubBrowser) FindAll(_ context.Context, sel string) ([]browser.Element, error) {
	if sel == tradedesk.TicketRowSelector && !b.noRows {
		return []browser.Element{stubEl{id: "9001"}}, nil
	}
	return nil, nil
}

func (b *stubBrowser) Find(_ context.Context, sel string) (browser.Element, error) {
	return stubEl{sel: sel}, nil
}

func (b *stubBrowser) FindIn(_ context.Context, parent browser.Element, sel string) (browser.Element, error) {
	return stubEl{id: parent.(stubEl).id, sel: sel}, nil
}

func (b *stubBrowser) Click(_ context.Context, el browser.Element) error {
	if el.(stubEl).sel == tradedesk.ProceedButton && b.onProceed != nil {
		b.onProceed()
	}
	return nil
}

func (b *stubBrowser) Text(_ context.Context, el browser.Element) (string, error) {
	switch el.(stubEl).sel {
	case tradedesk.SectionCell:
		return "Sec 200", nil
	case tradedesk.RowCell:
		return "A", nil
	case tradedesk.SeatsCell:
		return "5-6", nil
	case tradedesk.PriceCell:
		return "$210.00", nil
	case tradedesk.CartPrice:
		return b.cartPrice, nil
	}
	return "", nil
}

func (b *stubBrowser) SendKeys(context.Context, browser.Element, string) error { return nil }
func (b *stubBrowser) ScrollIntoView(context.Context, browser.Element) error { return nil }
func (b *stubBrowser) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	if (sel == tradedesk.TicketRowSelector && b.noRows) || (sel == tradedesk.ProfileSelector && b.noProfile) {
		return fmt.Errorf("%w: %s not visible", browser.ErrTransientUI, sel)
	}
	return nil
}
func (b *stubBrowser) WaitPresent(context.Context, string, time.Duration) error {
	return nil
}
func (b *stubBrowser) ExecuteScript(context.Context, string, any) error { return nil }

func (b *stubBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	return nil
}

type failingQueue struct{}

func (failingQueue) Enqueue(context.Context, string) (models.WorkItem, error) {
	return models.WorkItem{}, errors.New("unused")
}

func (failingQueue) ClaimNext(context.Context) (*models.WorkItem, error) {
	return nil, errors.New("queue storage failure: disk gone")
}

func (failingQueue) Pending(context.Context) (int, error) { return 0, nil }

func (failingQueue) Close() error { return nil }

func testConfig(instances int) config.Config {
	cfg := config.Default()
	cfg.InstanceCount = instances
	cfg.WaitForTicket = 5 * time.Second
	cfg.StepTimeout = 10 * time.Millisecond
	cfg.SampleTimeout = 10 * time.Millisecond
	cfg.LoginTimeout = 10 * time.Millisecond
	cfg.RefreshDelay = time.Millisecond
	cfg.CancelCooldown = 0
	cfg.SettleInterval = 0
	cfg.IdleDelay = 5 * time.Millisecond
	return cfg
}

func openQueue(t *testing.T) *storage.CSVQueue {
	t.Helper()
	q, err := storage.OpenCSVQueue(filepath.Join(t.TempDir(), "EventURLs.csv"))
	if err != nil {
		t.Fatalf("open queue: %v", err)
	}
	return q
}

func TestRunAllPurchasesMatchingTicket(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	const descriptor = "https://tradedesk.test/event/7?section=200&row=A&seats=5&priceFrom=50&priceTo=150"
	if _, err := q.Enqueue(ctx, descriptor); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	b := &stubBrowser{cartPrice: "$210.00", onProceed: cancel}
	open := func(context.Context, int) (browser.Browser, error) { return b, nil }

	results := RunAll(ctx, testConfig(1), q, open)
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	r := results[0]
	if r.Err != nil {
		t.Fatalf("worker error: %v", r.Err)
	}
	if r.ItemsClaimed != 1 || r.ItemsAbandoned != 0 {
		t.Fatalf("unexpected counts %+v", r)
	}
	if len(r.Attempts) != 1 {
		t.Fatalf("expected one attempt, got %d", len(r.Attempts))
	}
	a := r.Attempts[0]
	if a.Stage != models.StageCompleted || a.ListingID != "9001" || a.WorkItemID != 1 {
		t.Fatalf("unexpected attempt %+v", a)
	}
	if !b.closed {
		t.Fatal("browser should be closed when the worker stops")
	}
}

func TestRunAllAbandonsMalformedDescriptor(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if _, err := q.Enqueue(ctx, "section=1&row=A"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	b := &stubBrowser{}
	open := func(context.Context, int) (browser.Browser, error) { return b, nil }

	done := make(chan []models.WorkerResult, 1)
	go func() { done <- RunAll(ctx, testConfig(2), q, open) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		n, err := q.Pending(ctx)
		if err != nil {
			t.Fatalf("pending: %v", err)
		}
		if n == 0 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("item was never claimed")
		}
		time.Sleep(5 * time.Millisecond)
	}
	// Give the claiming worker time to finish parsing.
	time.Sleep(50 * time.Millisecond)
	cancel()

	results := <-done
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	var claimed, abandoned int
	for i, r := range results {
		if r.WorkerID != i+1 {
			t.Fatalf("results out of order: %+v", results)
		}
		if r.Err != nil {
			t.Fatalf("worker %d error: %v", r.WorkerID, r.Err)
		}
		if len(r.Attempts) != 0 {
			t.Fatalf("malformed item must not reach checkout: %+v", r.Attempts)
		}
		claimed += r.ItemsClaimed
		abandoned += r.ItemsAbandoned
	}
	if claimed != 1 || abandoned != 1 {
		t.Fatalf("expected 1 claimed and abandoned, got %d and %d", claimed, abandoned)
	}
}

func TestRunAllMovesOnAfterTimeout(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	for _, event := range []string{"7", "8"} {
		d := "https://tradedesk.test/event/" + event + "?section=200&row=A&seats=5&priceFrom=50&priceTo=150"
		if _, err := q.Enqueue(ctx, d); err != nil {
			t.Fatalf("enqueue: %v", err)
		}
	}

	cfg := testConfig(1)
	cfg.WaitForTicket = 50 * time.Millisecond
	b := &stubBrowser{noRows: true}
	open := func(context.Context, int) (browser.Browser, error) { return b, nil }

	r := RunAll(ctx, cfg, q, open)[0]
	if r.Err != nil {
		t.Fatalf("worker error: %v", r.Err)
	}
	if r.ItemsClaimed != 2 || r.ItemsAbandoned != 2 || len(r.Attempts) != 0 {
		t.Fatalf("expected both items claimed and abandoned, got %+v", r)
	}
}

func TestRunAllKeepsHuntingAfterCancelledAttempt(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	const descriptor = "https://tradedesk.test/event/7?section=200&row=A&seats=5&priceFrom=50&priceTo=150"
	if _, err := q.Enqueue(ctx, descriptor); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	cfg := testConfig(1)
	cfg.WaitForTicket = 100 * time.Millisecond
	b := &stubBrowser{cartPrice: "$100.00"}
	open := func(context.Context, int) (browser.Browser, error) { return b, nil }

	r := RunAll(ctx, cfg, q, open)[0]
	if r.Err != nil {
		t.Fatalf("worker error: %v", r.Err)
	}
	if len(r.Attempts) != 1 || r.Attempts[0].Stage != models.StageCancelled {
		t.Fatalf("expected one cancelled attempt, got %+v", r.Attempts)
	}
	// The table never grows past the cancelled row, so the hunt ends on the deadline.
	if r.ItemsAbandoned != 1 {
		t.Fatalf("expected the item to time out after cancelling, got %+v", r)
	}
	if got := b.visits(descriptor); got != 2 {
		t.Fatalf("expected the event page to be reopened once, got %d visits", got)
	}
}

func TestRunAllLoginFailureHaltsOnlyThatWorker(t *testing.T) {
	q := openQueue(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := q.Enqueue(ctx, "https://tradedesk.test/event/7?section=200&row=A&seats=5&priceFrom=50&priceTo=150"); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	browsers := map[int]*stubBrowser{
		1: {noProfile: true},
		2: {cartPrice: "$210.00"},
	}
	open := func(_ context.Context, id int) (browser.Browser, error) { return browsers[id], nil }

	results := RunAll(ctx, testConfig(2), q, open)
	if !errors.Is(results[0].Err, tradedesk.ErrLoginFailed) || results[0].ItemsClaimed != 0 {
		t.Fatalf("worker 1: expected login failure before any claim, got %+v", results[0])
	}
	r := results[1]
	if r.Err != nil || r.ItemsClaimed != 1 || len(r.Attempts) != 1 || r.Attempts[0].Stage != models.StageCompleted {
		t.Fatalf("worker 2 should have bought the ticket, got %+v", r)
	}
}

func TestRunAllWorkerFailures(t *testing.T) {
	t.Run("browser launch failure halts each worker", func(t *testing.T) {
		open := func(context.Context, int) (browser.Browser, error) {
			return nil, browser.ErrSessionFatal
		}
		results := RunAll(context.Background(), testConfig(3), openQueue(t), open)
		for _, r := range results {
			if !errors.Is(r.Err, browser.ErrSessionFatal) {
				t.Fatalf("worker %d: expected fatal error, got %v", r.WorkerID, r.Err)
			}
		}
	})

	t.Run("storage failure halts the worker", func(t *testing.T) {
		open := func(context.Context, int) (browser.Browser, error) { return &stubBrowser{}, nil }
		results := RunAll(context.Background(), testConfig(1), failingQueue{}, open)
		if results[0].Err == nil {
			t.Fatal("expected storage error")
		}
	})
}
