package browser

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/chromedp"

	"github.com/AliToori/TradeDeskBot/config"
)

// NewAllocator creates a Chrome exec allocator context from the given Config.
func NewAllocator(parent context.Context, cfg config.Config) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", cfg.Headless),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-extensions", true),
		chromedp.Flag("disable-notifications", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("dns-prefetch-disable", true),
		chromedp.Flag("ignore-certificate-errors", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("blink-settings", "imagesEnabled=false"),
		chromedp.Flag("start-maximized", true),
		chromedp.UserAgent(cfg.RandomUserAgent()),
		chromedp.WindowSize(1440, 900),
	)
	return chromedp.NewExecAllocator(parent, opts...)
}

// Chrome is a Browser backed by one chromedp tab in its own Chrome process.
type Chrome struct {
	ctx         context.Context
	cancel      context.CancelFunc
	stepTimeout time.Duration
}

type node struct {
	n *cdp.Node
}

func (e node) Attr(name string) string {
	return e.n.AttributeValue(name)
}

// NewChrome launches Chrome and opens a tab. The browser lives until Close
// is called or parent is cancelled.
func NewChrome(parent context.Context, cfg config.Config, logf func(string, ...any)) (*Chrome, error) {
	allocCtx, cancelAlloc := NewAllocator(parent, cfg)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx, chromedp.WithLogf(logf))

	// The first Run on the tab context starts the browser.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("%w: start browser: %v", ErrSessionFatal, err)
	}

	return &Chrome{
		ctx: tabCtx,
		cancel: func() {
			cancelTab()
			cancelAlloc()
		},
		stepTimeout: cfg.StepTimeout,
	}, nil
}

// run executes actions on the tab, bounded by timeout and by ctx.
func (c *Chrome) run(ctx context.Context, timeout time.Duration, actions ...chromedp.Action) error {
	if timeout <= 0 {
		timeout = c.stepTimeout
	}
	runCtx, cancel := context.WithTimeout(c.ctx, timeout)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	err := chromedp.Run(runCtx, actions...)
	switch {
	case err == nil:
		return nil
	case c.ctx.Err() != nil:
		return fmt.Errorf("%w: %v", ErrSessionFatal, err)
	case ctx.Err() != nil:
		return ctx.Err()
	default:
		return fmt.Errorf("%w: %v", ErrTransientUI, err)
	}
}

func (c *Chrome) Navigate(ctx context.Context, url string) error {
	if err := c.run(ctx, 0, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}
	return nil
}

func (c *Chrome) FindAll(ctx context.Context, selector string) ([]Element, error) {
	var nodes []*cdp.Node
	if err := c.run(ctx, 0, chromedp.Nodes(selector, &nodes, chromedp.ByQueryAll, chromedp.AtLeast(0))); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	out := make([]Element, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, node{n: n})
	}
	return out, nil
}

func (c *Chrome) Find(ctx context.Context, selector string) (Element, error) {
	return c.find(ctx, selector)
}

func (c *Chrome) FindIn(ctx context.Context, parent Element, selector string) (Element, error) {
	p, err := nodeOf(parent)
	if err != nil {
		return nil, err
	}
	return c.find(ctx, selector, chromedp.FromNode(p))
}

func (c *Chrome) find(ctx context.Context, selector string, opts ...chromedp.QueryOption) (Element, error) {
	var nodes []*cdp.Node
	opts = append([]chromedp.QueryOption{chromedp.ByQuery, chromedp.AtLeast(0)}, opts...)
	if err := c.run(ctx, 0, chromedp.Nodes(selector, &nodes, opts...)); err != nil {
		return nil, fmt.Errorf("query %s: %w", selector, err)
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("%w: %s not found", ErrTransientUI, selector)
	}
	return node{n: nodes[0]}, nil
}

func (c *Chrome) Click(ctx context.Context, el Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	if err := c.run(ctx, 0, chromedp.Click([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("click: %w", err)
	}
	return nil
}

func (c *Chrome) Text(ctx context.Context, el Element) (string, error) {
	n, err := nodeOf(el)
	if err != nil {
		return "", err
	}
	var text string
	if err := c.run(ctx, 0, chromedp.Text([]cdp.NodeID{n.NodeID}, &text, chromedp.ByNodeID)); err != nil {
		return "", fmt.Errorf("text: %w", err)
	}
	return text, nil
}

func (c *Chrome) SendKeys(ctx context.Context, el Element, keys string) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	if err := c.run(ctx, 0, chromedp.SendKeys([]cdp.NodeID{n.NodeID}, keys, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("send keys: %w", err)
	}
	return nil
}

func (c *Chrome) ScrollIntoView(ctx context.Context, el Element) error {
	n, err := nodeOf(el)
	if err != nil {
		return err
	}
	if err := c.run(ctx, 0, chromedp.ScrollIntoView([]cdp.NodeID{n.NodeID}, chromedp.ByNodeID)); err != nil {
		return fmt.Errorf("scroll: %w", err)
	}
	return nil
}

func (c *Chrome) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitVisible(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait visible %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) WaitPresent(ctx context.Context, selector string, timeout time.Duration) error {
	if err := c.run(ctx, timeout, chromedp.WaitReady(selector, chromedp.ByQuery)); err != nil {
		return fmt.Errorf("wait present %s: %w", selector, err)
	}
	return nil
}

func (c *Chrome) ExecuteScript(ctx context.Context, script string, res any) error {
	if err := c.run(ctx, 0, chromedp.Evaluate(script, res)); err != nil {
		return fmt.Errorf("evaluate: %w", err)
	}
	return nil
}

func (c *Chrome) Close() error {
	c.cancel()
	return nil
}

func nodeOf(el Element) (*cdp.Node, error) {
	n, ok := el.(node)
	if !ok || n.n == nil {
		return nil, fmt.Errorf("%w: element not owned by this browser", ErrTransientUI)
	}
	return n.n, nil
}
