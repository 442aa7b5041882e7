package tradedesk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
)

// fakeEl is addressed by key: the selector for top-level lookups, or the
// parent key and the selector separated by a space for nested ones.
type fakeEl struct {
	key   string
	attrs map[string]string
}

func (e *fakeEl) Attr(name string) string { return e.attrs[name] }

type listing struct {
	id, section, row, seats, price string
}

// fakeBrowser plays back a scripted marketplace. Every selector is visible
// unless listed in hidden. The inventory table shows the first counts[i]
// listings on the i-th sample, repeating the last count once exhausted.
type fakeBrowser struct {
	mu sync.Mutex

	hidden   map[string]bool
	text     map[string]string
	listings []listing
	counts   []int
	samples  int
	dead     bool

	navigated []string
	clicks    []string
	typed     map[string]string
	scripts   int
	closed    bool
}

func newFakeBrowser() *fakeBrowser {
	return &fakeBrowser{
		hidden: map[string]bool{},
		text:   map[string]string{},
		typed:  map[string]string{},
	}
}

func (f *fakeBrowser) check(sel string) error {
	if f.dead {
		return fmt.Errorf("%w: tab crashed", browser.ErrSessionFatal)
	}
	if f.hidden[sel] {
		return fmt.Errorf("%w: %s not found", browser.ErrTransientUI, sel)
	}
	return nil
}

func (f *fakeBrowser) visibleRows() int {
	if len(f.counts) == 0 {
		return 0
	}
	i := f.samples
	if i >= len(f.counts) {
		i = len(f.counts) - 1
	}
	n := f.counts[i]
	if n > len(f.listings) {
		n = len(f.listings)
	}
	return n
}

func (f *fakeBrowser) Navigate(_ context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(""); err != nil {
		return err
	}
	f.navigated = append(f.navigated, url)
	return nil
}

func (f *fakeBrowser) FindAll(_ context.Context, sel string) ([]browser.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return nil, err
	}
	if sel != TicketRowSelector {
		return nil, nil
	}
	n := f.visibleRows()
	f.samples++
	out := make([]browser.Element, 0, n)
	for _, l := range f.listings[:n] {
		key := ticketIDPrefix + l.id
		out = append(out, &fakeEl{key: key, attrs: map[string]string{"id": key}})
	}
	return out, nil
}

func (f *fakeBrowser) Find(_ context.Context, sel string) (browser.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return nil, err
	}
	return &fakeEl{key: sel}, nil
}

func (f *fakeBrowser) FindIn(_ context.Context, parent browser.Element, sel string) (browser.Element, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := parent.(*fakeEl).key + " " + sel
	if err := f.check(key); err != nil {
		return nil, err
	}
	return &fakeEl{key: key}, nil
}

func (f *fakeBrowser) Click(_ context.Context, el browser.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := el.(*fakeEl).key
	if err := f.check(""); err != nil {
		return err
	}
	f.clicks = append(f.clicks, key)
	return nil
}

func (f *fakeBrowser) Text(_ context.Context, el browser.Element) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	key := el.(*fakeEl).key
	if err := f.check(""); err != nil {
		return "", err
	}
	text, ok := f.text[key]
	if !ok {
		return "", fmt.Errorf("%w: no text at %s", browser.ErrTransientUI, key)
	}
	return text, nil
}

func (f *fakeBrowser) SendKeys(_ context.Context, el browser.Element, keys string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(""); err != nil {
		return err
	}
	f.typed[el.(*fakeEl).key] = keys
	return nil
}

func (f *fakeBrowser) ScrollIntoView(context.Context, browser.Element) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.check("")
}

func (f *fakeBrowser) WaitVisible(_ context.Context, sel string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(sel); err != nil {
		return err
	}
	if sel == TicketRowSelector && f.visibleRows() == 0 {
		f.samples++
		return fmt.Errorf("%w: no ticket rows", browser.ErrTransientUI)
	}
	return nil
}

func (f *fakeBrowser) WaitPresent(ctx context.Context, sel string, timeout time.Duration) error {
	return f.WaitVisible(ctx, sel, timeout)
}

func (f *fakeBrowser) ExecuteScript(context.Context, string, any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.check(""); err != nil {
		return err
	}
	f.scripts++
	return nil
}

func (f *fakeBrowser) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// setListings puts ls into the table and scripts their cell texts.
func (f *fakeBrowser) setListings(ls ...listing) {
	f.listings = ls
	for _, l := range ls {
		key := ticketIDPrefix + l.id
		f.text[key+" "+SectionCell] = l.section
		f.text[key+" "+RowCell] = l.row
		f.text[key+" "+SeatsCell] = l.seats
		f.text[key+" "+PriceCell] = l.price
	}
}

func (f *fakeBrowser) clickCount(key string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.clicks {
		if c == key {
			n++
		}
	}
	return n
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Credentials = config.Credentials{ID: "bot@example.com", Secret: "hunter2"}
	cfg.BaseURL = "https://tradedesk.test/"
	cfg.StepTimeout = 10 * time.Millisecond
	cfg.SampleTimeout = 10 * time.Millisecond
	cfg.LoginTimeout = 10 * time.Millisecond
	cfg.RefreshDelay = time.Millisecond
	cfg.CancelCooldown = 0
	cfg.SettleInterval = 0
	return cfg
}
