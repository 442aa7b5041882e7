// Package browser defines the capabilities the bot needs from a controllable
// browser session, and a chromedp-backed implementation of them.
package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

var (
	// ErrTransientUI covers missing or stale elements and UI waits that ran
	// out of time. The current step may be retried or skipped.
	ErrTransientUI = errors.New("transient ui error")

	// ErrSessionFatal means the browser behind a session is gone.
	ErrSessionFatal = errors.New("browser session unusable")
)

// Element is an opaque handle to a node owned by a Browser.
type Element interface {
	Attr(name string) string
}

// Browser is one controllable browser tab. Every call may fail; failures
// wrap ErrTransientUI or ErrSessionFatal.
type Browser interface {
	Navigate(ctx context.Context, url string) error
	FindAll(ctx context.Context, selector string) ([]Element, error)
	Find(ctx context.Context, selector string) (Element, error)
	// FindIn queries selector within parent's subtree.
	FindIn(ctx context.Context, parent Element, selector string) (Element, error)
	Click(ctx context.Context, el Element) error
	Text(ctx context.Context, el Element) (string, error)
	SendKeys(ctx context.Context, el Element, keys string) error
	ScrollIntoView(ctx context.Context, el Element) error
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	WaitPresent(ctx context.Context, selector string, timeout time.Duration) error
	ExecuteScript(ctx context.Context, script string, res any) error
	Close() error
}

// Step is one fallible browser interaction.
type Step func(ctx context.Context, b Browser) error

// Run executes steps in order and stops at the first error.
func Run(ctx context.Context, b Browser, steps ...Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := step(ctx, b); err != nil {
			return err
		}
	}
	return nil
}

// Navigate returns a step that loads url.
func Navigate(url string) Step {
	return func(ctx context.Context, b Browser) error {
		return b.Navigate(ctx, url)
	}
}

// WaitVisible returns a step that waits for selector to be visible.
func WaitVisible(selector string, timeout time.Duration) Step {
	return func(ctx context.Context, b Browser) error {
		return b.WaitVisible(ctx, selector, timeout)
	}
}

// Click returns a step that finds selector and clicks it.
func Click(selector string) Step {
	return func(ctx context.Context, b Browser) error {
		el, err := b.Find(ctx, selector)
		if err != nil {
			return err
		}
		return b.Click(ctx, el)
	}
}

// ClickVisible waits for selector to become visible and then clicks it.
func ClickVisible(selector string, timeout time.Duration) Step {
	return func(ctx context.Context, b Browser) error {
		return Run(ctx, b, WaitVisible(selector, timeout), Click(selector))
	}
}

// SendKeys returns a step that waits for selector and types keys into it.
func SendKeys(selector string, keys string, timeout time.Duration) Step {
	return func(ctx context.Context, b Browser) error {
		if err := b.WaitVisible(ctx, selector, timeout); err != nil {
			return err
		}
		el, err := b.Find(ctx, selector)
		if err != nil {
			return err
		}
		return b.SendKeys(ctx, el, keys)
	}
}

// Script returns a step that evaluates script and discards its value. The
// script must evaluate to something other than undefined.
func Script(script string) Step {
	return func(ctx context.Context, b Browser) error {
		var out any
		return b.ExecuteScript(ctx, script, &out)
	}
}

// TextIn returns the trimmed text of selector inside parent.
func TextIn(ctx context.Context, b Browser, parent Element, selector string) (string, error) {
	el, err := b.FindIn(ctx, parent, selector)
	if err != nil {
		return "", err
	}
	text, err := b.Text(ctx, el)
	return strings.TrimSpace(text), err
}

// Fatal reports whether err means the session must be given up.
func Fatal(err error) bool {
	return errors.Is(err, ErrSessionFatal)
}
