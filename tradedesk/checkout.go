package tradedesk

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/AliToori/TradeDeskBot/browser"
	"github.com/AliToori/TradeDeskBot/config"
	"github.com/AliToori/TradeDeskBot/criteria"
	"github.com/AliToori/TradeDeskBot/models"
)

// Checkout runs the purchase flow for one matched listing at a time.
//
// Pricing is inverted on purpose: a cart price inside the criteria band is
// cancelled, a price outside it is bought.
type Checkout struct {
	session        *Session
	stepTimeout    time.Duration
	cancelCooldown time.Duration
	settleInterval time.Duration
}

func NewCheckout(s *Session, cfg config.Config) *Checkout {
	return &Checkout{
		session:        s,
		stepTimeout:    cfg.StepTimeout,
		cancelCooldown: cfg.CancelCooldown,
		settleInterval: cfg.SettleInterval,
	}
}

// Run drives one attempt from selecting to a terminal stage. UI failures
// end the attempt as abandoned with a nil error; an error is returned only
// when the session is unusable or ctx is done, and the attempt is still
// returned in its abandoned form.
func (c *Checkout) Run(ctx context.Context, cand Candidate, crit models.MatchCriteria) (models.CheckoutAttempt, error) {
	a := models.NewCheckoutAttempt(cand.Row.ListingID, crit)
	a.WorkerID = c.session.WorkerID
	log.Printf("[worker %d] ticket %s matched, adding to cart", a.WorkerID, a.ListingID)

	for !a.Stage.Terminal() {
		var err error
		switch a.Stage {
		case models.StageSelecting:
			err = c.selecting(ctx, cand, &a)
		case models.StagePriceCheck:
			err = c.priceCheck(ctx, &a)
		case models.StageCancelling:
			err = c.cancelling(ctx, &a)
		case models.StageCompleting:
			err = c.completing(ctx, &a)
		}
		if err == nil {
			continue
		}

		a.Reason = fmt.Sprintf("%s: %v", a.Stage, err)
		a.Stage = models.StageAbandoned
		a.FinishedAt = time.Now()
		if browser.Fatal(err) || ctx.Err() != nil {
			log.Printf("[worker %d] ✗ ticket %s abandoned: %s", a.WorkerID, a.ListingID, a.Reason)
			return a, err
		}
		log.Printf("[worker %d] ⚠ ticket %s abandoned: %s", a.WorkerID, a.ListingID, a.Reason)
		return a, nil
	}

	a.FinishedAt = time.Now()
	if a.Stage == models.StageCompleted {
		log.Printf("[worker %d] ✓ ticket %s purchased at $%.2f", a.WorkerID, a.ListingID, *a.VerifiedPrice)
	} else {
		log.Printf("[worker %d] ticket %s cancelled at $%.2f", a.WorkerID, a.ListingID, *a.VerifiedPrice)
	}
	return a, nil
}

func (c *Checkout) selecting(ctx context.Context, cand Candidate, a *models.CheckoutAttempt) error {
	b := c.session.Browser
	btn, err := b.FindIn(ctx, cand.Element, BuyButton)
	if err != nil {
		return fmt.Errorf("buy button: %w", err)
	}
	if err := b.Click(ctx, btn); err != nil {
		return fmt.Errorf("buy button: %w", err)
	}
	if err := browser.Run(ctx, b, browser.ClickVisible(CheckoutButton, c.stepTimeout)); err != nil {
		return fmt.Errorf("checkout button: %w", err)
	}
	a.Stage = models.StagePriceCheck
	return nil
}

func (c *Checkout) priceCheck(ctx context.Context, a *models.CheckoutAttempt) error {
	b := c.session.Browser
	if err := b.WaitVisible(ctx, CartPage, c.stepTimeout); err != nil {
		return fmt.Errorf("cart page: %w", err)
	}
	el, err := b.Find(ctx, CartPrice)
	if err != nil {
		return fmt.Errorf("cart price: %w", err)
	}
	text, err := b.Text(ctx, el)
	if err != nil {
		return fmt.Errorf("cart price: %w", err)
	}
	price, err := criteria.ParsePrice(text)
	if err != nil {
		return fmt.Errorf("cart price: %w", err)
	}
	a.VerifiedPrice = &price
	log.Printf("[worker %d] cart price $%.2f, band $%.2f-$%.2f",
		a.WorkerID, price, a.Criteria.PriceFloor, a.Criteria.PriceCeil)

	// The order buttons sit below the fold.
	if err := browser.Run(ctx, b, browser.Script(scrollToEndJS)); browser.Fatal(err) {
		return err
	} else if err != nil {
		log.Printf("[worker %d] ⚠ scroll cart: %v", a.WorkerID, err)
	}

	if a.Criteria.InBand(price) {
		a.Stage = models.StageCancelling
	} else {
		a.Stage = models.StageCompleting
	}
	return nil
}

func (c *Checkout) cancelling(ctx context.Context, a *models.CheckoutAttempt) error {
	b := c.session.Browser
	err := browser.Run(ctx, b,
		browser.ClickVisible(CancelButton, c.stepTimeout),
		browser.ClickVisible(ConfirmCancel, c.stepTimeout),
	)
	if browser.Fatal(err) {
		return err
	}
	// The site needs time to release the hold whether or not the dialog
	// cooperated.
	if serr := sleep(ctx, c.cancelCooldown); serr != nil {
		return serr
	}
	if err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	a.Stage = models.StageCancelled
	return nil
}

func (c *Checkout) completing(ctx context.Context, a *models.CheckoutAttempt) error {
	b := c.session.Browser
	if err := b.WaitVisible(ctx, PaymentMethods, c.stepTimeout); err != nil {
		return fmt.Errorf("payment methods: %w", err)
	}
	if err := browser.Run(ctx, b, browser.ClickVisible(ProceedButton, c.stepTimeout)); err != nil {
		return fmt.Errorf("complete transaction: %w", err)
	}
	log.Printf("[worker %d] transaction submitted, waiting %s", a.WorkerID, c.settleInterval)
	if err := sleep(ctx, c.settleInterval); err != nil {
		return err
	}
	a.Stage = models.StageCompleted
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
