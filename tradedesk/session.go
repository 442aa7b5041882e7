// Package tradedesk drives the marketplace UI: sign-in, the event inventory
// table and the cart.
package tradedesk

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
)

// ErrLoginFailed is returned when the profile menu never appears after
// submitting credentials.
var ErrLoginFailed = errors.New("login failed")

// Session is one worker's browser and its sign-in state. It is owned by a
// single worker and never shared.
type Session struct {
	WorkerID int
	Browser  browser.Browser

	authenticated bool
	baseURL       string
	stepTimeout   time.Duration
	loginTimeout  time.Duration
}

func NewSession(workerID int, b browser.Browser, cfg config.Config) *Session {
	return &Session{
		WorkerID:     workerID,
		Browser:      b,
		baseURL:      cfg.BaseURL,
		stepTimeout:  cfg.StepTimeout,
		loginTimeout: cfg.LoginTimeout,
	}
}

// Authenticated reports whether Login has succeeded on this session.
func (s *Session) Authenticated() bool {
	return s.authenticated
}

// Login signs in with creds. It does nothing once the session is
// authenticated.
func (s *Session) Login(ctx context.Context, creds config.Credentials) error {
	if s.authenticated {
		return nil
	}
	b := s.Browser
	log.Printf("[worker %d] signing in as %s", s.WorkerID, creds.ID)

	if err := b.Navigate(ctx, s.baseURL); err != nil {
		if browser.Fatal(err) {
			return err
		}
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	err := browser.Run(ctx, b,
		browser.SendKeys(UsernameSelector, creds.ID, s.stepTimeout),
		browser.SendKeys(PasswordSelector, creds.Secret, s.stepTimeout),
	)
	if browser.Fatal(err) {
		return err
	}
	if err != nil {
		log.Printf("[worker %d] ⚠ filling credentials: %v", s.WorkerID, err)
	}

	err = browser.Run(ctx, b, browser.ClickVisible(SignInSelector, s.stepTimeout))
	if browser.Fatal(err) {
		return err
	}
	if err != nil {
		log.Printf("[worker %d] ⚠ submitting sign-in form: %v", s.WorkerID, err)
	}

	// The profile menu only renders for a signed-in user.
	err = browser.Run(ctx, b,
		browser.Navigate(s.baseURL),
		browser.WaitVisible(ProfileSelector, s.loginTimeout),
	)
	if browser.Fatal(err) {
		return err
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrLoginFailed, err)
	}

	s.authenticated = true
	log.Printf("[worker %d] ✓ signed in", s.WorkerID)
	return nil
}

// Close releases the browser.
func (s *Session) Close() error {
	return s.Browser.Close()
}
