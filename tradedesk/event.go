package tradedesk

import (
	"context"
	"log"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/models"
)

// OpenEvent loads eventURL, switches the table to all inventory and types
// the criteria into the filter inputs. A failing step is logged and the
// next one still runs; only a fatal session error is returned.
func (s *Session) OpenEvent(ctx context.Context, eventURL string, c models.MatchCriteria) error {
	steps := []struct {
		name string
		skip bool
		step browser.Step
	}{
		{"select all inventory", false, func(ctx context.Context, b browser.Browser) error {
			return browser.Run(ctx, b,
				browser.Navigate(eventURL),
				browser.ClickVisible(AllInventorySelector, s.stepTimeout),
			)
		}},
		{"section filter", c.Section == "", browser.SendKeys(SectionFilterSelector, c.Section, s.stepTimeout)},
		{"row filter", c.Row == "", browser.SendKeys(RowFilterSelector, c.Row, s.stepTimeout)},
		{"seat filter", c.SeatPattern == "", browser.SendKeys(SeatFilterSelector, c.SeatPattern, s.stepTimeout)},
	}

	for _, st := range steps {
		if st.skip {
			continue
		}
		err := st.step(ctx, s.Browser)
		if browser.Fatal(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			log.Printf("[worker %d] ⚠ %s: %v", s.WorkerID, st.name, err)
		}
	}
	return nil
}

// RefreshInventory toggles the all-inventory filter off and on, which makes
// the page re-fetch the listing table.
func (s *Session) RefreshInventory(ctx context.Context) error {
	return browser.Run(ctx, s.Browser,
		browser.Click(AllInventorySelector),
		browser.Click(AllInventorySelector),
	)
}
