package types

import "fmt"

// Category is a transaction attribution bucket.
type Category int

// The declaration order is the fixed tie-break order used by best-offer labels.
const (
	CategoryInformational Category = iota
	CategoryNoOffer
	CategoryDiscount
	CategoryBOGO

	NumCategories = 4
)

// Categories lists the buckets in tie-break order.
var Categories = [NumCategories]Category{
	CategoryInformational,
	CategoryNoOffer,
	CategoryDiscount,
	CategoryBOGO,
}

var categoryNames = [NumCategories]string{"informational", "no_offer", "discount", "bogo"}

func (c Category) String() string {
	if c < 0 || int(c) >= NumCategories {
		return fmt.Sprintf("Category(%d)", int(c))
	}
	return categoryNames[c]
}

// ParseCategory parses a category name as produced by String.
func ParseCategory(s string) (Category, error) {
	for i, name := range categoryNames {
		if name == s {
			return Category(i), nil
		}
	}
	return 0, fmt.Errorf("types: unknown category %q", s)
}

// CategoryFor maps an offer type to its attribution bucket.
func CategoryFor(t OfferType) (Category, error) {
	switch t {
	case OfferBOGO:
		return CategoryBOGO, nil
	case OfferDiscount:
		return CategoryDiscount, nil
	case OfferInformational:
		return CategoryInformational, nil
	default:
		return 0, fmt.Errorf("types: no category for offer type %q", t)
	}
}

// Tally is a count and summed monetary value.
type Tally struct {
	Count int     `json:"count"`
	Value float64 `json:"value"`
}

// Add records one amount.
func (t *Tally) Add(amount float64) {
	t.Count++
	t.Value += amount
}

// Plus returns the element-wise sum of two tallies.
func (t Tally) Plus(o Tally) Tally {
	return Tally{Count: t.Count + o.Count, Value: t.Value + o.Value}
}

// CustomerProfile is the attribution summary of one customer's timeline.
type CustomerProfile struct {
	PersonID string `json:"person"`

	// Spend holds attributed transactions, indexed by Category
	Spend [NumCategories]Tally `json:"spend"`

	// CompletedOffers counts offer completed events
	CompletedOffers int `json:"completed_offers"`

	// EarnedBOGO and EarnedDiscount hold rewards of offers viewed before completion
	EarnedBOGO     Tally `json:"earned_bogo"`
	EarnedDiscount Tally `json:"earned_discount"`

	// Incidental holds rewards of offers completed without a matching view
	Incidental Tally `json:"incidental"`

	// Offers received, per type
	OfferedBOGO          int `json:"bogos_offered"`
	OfferedDiscount      int `json:"discounts_offered"`
	OfferedInformational int `json:"informationals_offered"`
}

// Transactions returns the tally of all transactions regardless of attribution.
func (p CustomerProfile) Transactions() Tally {
	var total Tally
	for _, t := range p.Spend {
		total = total.Plus(t)
	}
	return total
}

// Demographic holds the cleaned demographic attributes of a customer.
type Demographic struct {
	PersonID string  `json:"id"`
	Age      int     `json:"age"`
	Gender   string  `json:"gender"`
	Income   float64 `json:"income"`

	// CustomerSince is the membership age in days relative to the newest member
	CustomerSince int `json:"customer_since"`
}

// ProfileRow is one row of the joined customer profile table.
type ProfileRow struct {
	Profile     CustomerProfile `json:"profile"`
	Demographic Demographic     `json:"demographic"`

	BestOfferByValue Category `json:"best_offer_value"`
	BestOfferByCount Category `json:"best_offer_count"`
}

// QuarantinedCustomer is a customer excluded from the profile table because
// their timeline could not be summarized.
type QuarantinedCustomer struct {
	PersonID string
	Code     string
	Message  string
	Events   []Event
}
