// Package criteria turns work item descriptors into match criteria and tests
// listing rows against them.
package criteria

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/AliToori/TradeDeskBot/models"
)

// ErrMalformedDescriptor is returned when a descriptor lacks a required
// parameter or carries an unparsable price.
var ErrMalformedDescriptor = errors.New("malformed descriptor")

const (
	keySection   = "section"
	keyRow       = "row"
	keySeats     = "seats"
	keyPriceFrom = "priceFrom"
	keyPriceTo   = "priceTo"
)

// Parse extracts match criteria from a descriptor. The descriptor is either
// a full event URL or a bare query string.
func Parse(descriptor string) (models.MatchCriteria, error) {
	raw := strings.TrimSpace(descriptor)
	if i := strings.IndexByte(raw, '?'); i >= 0 {
		raw = raw[i+1:]
	}
	if i := strings.IndexByte(raw, '#'); i >= 0 {
		raw = raw[:i]
	}

	q, err := url.ParseQuery(raw)
	if err != nil {
		return models.MatchCriteria{}, fmt.Errorf("%w: %v", ErrMalformedDescriptor, err)
	}

	for _, key := range []string{keySection, keyRow, keySeats, keyPriceFrom, keyPriceTo} {
		if !q.Has(key) {
			return models.MatchCriteria{}, fmt.Errorf("%w: missing %s", ErrMalformedDescriptor, key)
		}
	}

	floor, err := parsePrice(q.Get(keyPriceFrom))
	if err != nil {
		return models.MatchCriteria{}, fmt.Errorf("%w: %s: %v", ErrMalformedDescriptor, keyPriceFrom, err)
	}
	ceil, err := parsePrice(q.Get(keyPriceTo))
	if err != nil {
		return models.MatchCriteria{}, fmt.Errorf("%w: %s: %v", ErrMalformedDescriptor, keyPriceTo, err)
	}

	return models.MatchCriteria{
		Section:     q.Get(keySection),
		Row:         q.Get(keyRow),
		SeatPattern: q.Get(keySeats),
		PriceFloor:  floor,
		PriceCeil:   ceil,
	}, nil
}

// Build encodes c as query parameters on base. Parse(Build(base, c)) == c.
func Build(base string, c models.MatchCriteria) string {
	q := url.Values{}
	q.Set(keySection, c.Section)
	q.Set(keyRow, c.Row)
	q.Set(keySeats, c.SeatPattern)
	q.Set(keyPriceFrom, strconv.FormatFloat(c.PriceFloor, 'f', -1, 64))
	q.Set(keyPriceTo, strconv.FormatFloat(c.PriceCeil, 'f', -1, 64))
	if base == "" {
		return q.Encode()
	}
	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + q.Encode()
}

// ParsePrice reads a rendered price such as "$1,250.00".
func ParsePrice(text string) (float64, error) {
	return parsePrice(strings.NewReplacer("$", "", ",", "").Replace(text))
}

func parsePrice(s string) (float64, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("price %q is not finite", s)
	}
	return v, nil
}

// Matches reports whether every criterion is a substring of the matching
// field of row. Price plays no part.
func Matches(c models.MatchCriteria, row models.ListingRow) bool {
	return strings.Contains(row.Section, c.Section) &&
		strings.Contains(row.Row, c.Row) &&
		strings.Contains(row.Seats, c.SeatPattern)
}

// FirstMatch returns the index of the first row in rows that matches c.
func FirstMatch(c models.MatchCriteria, rows []models.ListingRow) (int, bool) {
	for i, row := range rows {
		if Matches(c, row) {
			return i, true
		}
	}
	return -1, false
}
