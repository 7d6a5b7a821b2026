package timeline

import "github.com/arkilian/offerprofile/pkg/types"

// attributionState is the state of the spend attribution window.
type attributionState int

const (
	idle attributionState = iota
	attributing
)

// attribution tracks which offer type, if any, current spend is credited to.
// It moves idle -> attributing on a view of an active offer, stays
// attributing (possibly retargeted) on later views, and falls back to idle
// once the viewed offer's expiry has passed.
type attribution struct {
	state     attributionState
	offerType types.OfferType
	expiry    int64
}

// view points the window at the most recently viewed active offer.
func (a *attribution) view(t types.OfferType, expiry int64) {
	a.state = attributing
	a.offerType = t
	a.expiry = expiry
}

// lapse closes the window when now is past the attributed offer's expiry.
// It reports whether a transition happened.
func (a *attribution) lapse(now int64) bool {
	if a.state == attributing && now > a.expiry {
		*a = attribution{}
		return true
	}
	return false
}

// category returns the bucket a transaction at the current instant belongs to.
func (a attribution) category() types.Category {
	if a.state == idle {
		return types.CategoryNoOffer
	}
	c, err := types.CategoryFor(a.offerType)
	if err != nil {
		// offerType always comes from a validated catalog entry
		return types.CategoryNoOffer
	}
	return c
}
