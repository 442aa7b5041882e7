package models

// MatchCriteria is parsed from a WorkItem descriptor and never changes after.
type MatchCriteria struct {
	Section     string  `json:"section"`
	Row         string  `json:"row"`
	SeatPattern string  `json:"seats"`
	PriceFloor  float64 `json:"price_from"`
	PriceCeil   float64 `json:"price_to"`
}

// InBand reports whether price lies within [PriceFloor, PriceCeil], inclusive.
func (c MatchCriteria) InBand(price float64) bool {
	return c.PriceFloor <= price && price <= c.PriceCeil
}

// ListingRow is one row of the rendered inventory table. It lives for a
// single poll cycle. Price is nil when it could not be extracted.
type ListingRow struct {
	ListingID string   `json:"listing_id"`
	Section   string   `json:"section"`
	Row       string   `json:"row"`
	Seats     string   `json:"seats"`
	Price     *float64 `json:"price,omitempty"`
}
