package models

import (
	"time"

	"github.com/google/uuid"
)

// Stage is a state of the checkout state machine.
type Stage string

const (
	StageSelecting  Stage = "selecting"
	StagePriceCheck Stage = "price_check"
	StageCancelling Stage = "cancelling"
	StageCompleting Stage = "completing"
	StageCompleted  Stage = "completed"
	StageCancelled  Stage = "cancelled"
	StageAbandoned  Stage = "abandoned"
)

// Terminal reports whether no further transition is possible from s.
func (s Stage) Terminal() bool {
	switch s {
	case StageCompleted, StageCancelled, StageAbandoned:
		return true
	}
	return false
}

// CheckoutAttempt records one run of the purchase flow against one matched
// listing.
type CheckoutAttempt struct {
	ID            string        `json:"id"`
	WorkItemID    int64         `json:"work_item_id"`
	WorkerID      int           `json:"worker_id"`
	ListingID     string        `json:"listing_id"`
	Criteria      MatchCriteria `json:"criteria"`
	VerifiedPrice *float64      `json:"verified_price,omitempty"`
	Stage         Stage         `json:"stage"`
	Reason        string        `json:"reason,omitempty"`
	StartedAt     time.Time     `json:"started_at"`
	FinishedAt    time.Time     `json:"finished_at"`
}

// NewCheckoutAttempt starts an attempt in the selecting stage.
func NewCheckoutAttempt(listingID string, criteria MatchCriteria) CheckoutAttempt {
	return CheckoutAttempt{
		ID:        uuid.NewString(),
		ListingID: listingID,
		Criteria:  criteria,
		Stage:     StageSelecting,
		StartedAt: time.Now(),
	}
}
