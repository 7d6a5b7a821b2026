package profile

import "github.com/arkilian/offerprofile/pkg/types"

// BestOffer returns the categories with the highest attributed spend value
// and transaction count. Ties go to the category listed first in
// types.Categories, so a customer with no transactions gets
// CategoryInformational for both.
func BestOffer(p types.CustomerProfile) (byValue, byCount types.Category) {
	byValue, byCount = types.Categories[0], types.Categories[0]
	for _, c := range types.Categories[1:] {
		if p.Spend[c].Value > p.Spend[byValue].Value {
			byValue = c
		}
		if p.Spend[c].Count > p.Spend[byCount].Count {
			byCount = c
		}
	}
	return byValue, byCount
}

// Join combines a customer's attribution summary with their demographics
// and derives the best-offer labels.
func Join(p types.CustomerProfile, d types.Demographic) types.ProfileRow {
	byValue, byCount := BestOffer(p)
	return types.ProfileRow{
		Profile:          p,
		Demographic:      d,
		BestOfferByValue: byValue,
		BestOfferByCount: byCount,
	}
}
