package tradedesk

import (
	"context"
	"errors"
	"testing"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/models"
)

func TestLogin(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()

	t.Run("signs in once", func(t *testing.T) {
		fb := newFakeBrowser()
		s := NewSession(1, fb, cfg)

		if err := s.Login(ctx, cfg.Credentials); err != nil {
			t.Fatalf("Login: %v", err)
		}
		if !s.Authenticated() {
			t.Fatal("session should be authenticated")
		}
		if fb.typed[UsernameSelector] != "bot@example.com" || fb.typed[PasswordSelector] != "hunter2" {
			t.Fatalf("unexpected credentials typed: %v", fb.typed)
		}
		if fb.clickCount(SignInSelector) != 1 {
			t.Fatalf("expected one sign-in click, got %v", fb.clicks)
		}

		navigations := len(fb.navigated)
		if err := s.Login(ctx, cfg.Credentials); err != nil {
			t.Fatalf("second Login: %v", err)
		}
		if len(fb.navigated) != navigations {
			t.Fatal("an authenticated session must not sign in again")
		}
	})

	t.Run("missing profile menu fails", func(t *testing.T) {
		fb := newFakeBrowser()
		fb.hidden[ProfileSelector] = true
		s := NewSession(1, fb, cfg)

		err := s.Login(ctx, cfg.Credentials)
		if !errors.Is(err, ErrLoginFailed) {
			t.Fatalf("expected ErrLoginFailed, got %v", err)
		}
		if s.Authenticated() {
			t.Fatal("failed login must leave the session unauthenticated")
		}
	})

	t.Run("form problems are tolerated", func(t *testing.T) {
		fb := newFakeBrowser()
		fb.hidden[SignInSelector] = true
		s := NewSession(1, fb, cfg)

		if err := s.Login(ctx, cfg.Credentials); err != nil {
			t.Fatalf("Login: %v", err)
		}
	})

	t.Run("dead browser is fatal", func(t *testing.T) {
		fb := newFakeBrowser()
		fb.dead = true
		s := NewSession(1, fb, cfg)

		if err := s.Login(ctx, cfg.Credentials); !browser.Fatal(err) {
			t.Fatalf("expected fatal error, got %v", err)
		}
	})
}

func TestOpenEventAppliesFilters(t *testing.T) {
	fb := newFakeBrowser()
	fb.hidden[SectionFilterSelector] = true
	s := NewSession(1, fb, testConfig())

	c := models.MatchCriteria{Section: "200", Row: "A", SeatPattern: "5"}
	if err := s.OpenEvent(context.Background(), "https://tradedesk.test/event/1", c); err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}

	if len(fb.navigated) != 1 || fb.navigated[0] != "https://tradedesk.test/event/1" {
		t.Fatalf("unexpected navigation %v", fb.navigated)
	}
	if fb.clickCount(AllInventorySelector) != 1 {
		t.Fatalf("expected the inventory toggle to be clicked, got %v", fb.clicks)
	}
	if fb.typed[RowFilterSelector] != "A" || fb.typed[SeatFilterSelector] != "5" {
		t.Fatalf("later filters must still be filled: %v", fb.typed)
	}
	if _, ok := fb.typed[SectionFilterSelector]; ok {
		t.Fatal("hidden section filter should not have been typed into")
	}
}

func TestOpenEventSkipsEmptyFilters(t *testing.T) {
	fb := newFakeBrowser()
	s := NewSession(1, fb, testConfig())

	if err := s.OpenEvent(context.Background(), "u", models.MatchCriteria{Row: "B"}); err != nil {
		t.Fatalf("OpenEvent: %v", err)
	}
	if len(fb.typed) != 1 || fb.typed[RowFilterSelector] != "B" {
		t.Fatalf("only the row filter should be filled, got %v", fb.typed)
	}
}
