// Package types provides the core data types shared by the offer profiling pipeline.
package types

import "fmt"

// HoursPerDay converts portfolio durations (days) into event-log time units (hours).
const HoursPerDay = 24

// OfferType is the marketing mechanic behind an offer.
type OfferType string

const (
	OfferBOGO          OfferType = "bogo"
	OfferDiscount      OfferType = "discount"
	OfferInformational OfferType = "informational"
)

// ParseOfferType validates an offer type string from the portfolio.
func ParseOfferType(s string) (OfferType, error) {
	switch t := OfferType(s); t {
	case OfferBOGO, OfferDiscount, OfferInformational:
		return t, nil
	default:
		return "", fmt.Errorf("types: unknown offer type %q", s)
	}
}

// Offer is a single portfolio entry. Offers are immutable once loaded.
type Offer struct {
	// ID is the portfolio identifier referenced by offer events
	ID string `json:"id"`

	// Type is the offer mechanic
	Type OfferType `json:"offer_type"`

	// DurationDays is the validity window measured in days from receipt
	DurationDays int64 `json:"duration"`

	// Difficulty is the minimum spend required to complete the offer
	Difficulty float64 `json:"difficulty"`

	// Reward is the reward granted on completion
	Reward float64 `json:"reward"`

	// Channels lists the delivery channels (email, mobile, social, web)
	Channels []string `json:"channels"`
}

// ValidityHours returns the length of the offer's validity window in hours.
func (o Offer) ValidityHours() int64 {
	return o.DurationDays * HoursPerDay
}

// ExpiresAt returns the last hour at which an offer received at receivedAt is still active.
func (o Offer) ExpiresAt(receivedAt int64) int64 {
	return receivedAt + o.ValidityHours()
}
