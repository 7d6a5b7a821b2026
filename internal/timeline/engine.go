// Package timeline implements the per-customer attribution engine.
//
// The engine walks one customer's events in time order and decides, for every
// transaction, which offer type (if any) the spend is credited to. Spend is
// credited to the most recently viewed offer that is still valid; the window
// closes at that offer's own expiry regardless of later activity.
//
// Events sharing a timestamp are processed in the order given. The engine
// never re-sorts, so callers own tie-breaking (the aggregator keeps original
// transcript order).
package timeline

import (
	"fmt"

	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

// OfferLookup resolves offer ids. *catalog.Catalog satisfies it.
type OfferLookup interface {
	Lookup(id string) (types.Offer, error)
}

// state is the transient working state of one customer's pass.
type state struct {
	// active maps offer id to expiry hour for offers received and not expired
	active map[string]int64
	// viewed maps offer id to expiry hour for active offers the customer viewed
	viewed map[string]int64
	// completed holds offer ids completed and not re-received since
	completed map[string]struct{}

	window attribution
}

func newState() *state {
	return &state{
		active:    make(map[string]int64),
		viewed:    make(map[string]int64),
		completed: make(map[string]struct{}),
	}
}

// evict drops offers whose expiry is strictly before now.
func (s *state) evict(now int64) {
	for id, expiry := range s.active {
		if expiry < now {
			delete(s.active, id)
		}
	}
	for id, expiry := range s.viewed {
		if expiry < now {
			delete(s.viewed, id)
		}
	}
}

// Summarize runs the attribution pass over events, which must be sorted by
// time ascending. An unrecognized event kind, an offer id missing from the
// catalog, or a time going backwards aborts the customer with an error;
// partial results are never returned.
func Summarize(personID string, events []types.Event, offers OfferLookup) (types.CustomerProfile, error) {
	profile := types.CustomerProfile{PersonID: personID}
	s := newState()

	prev := int64(-1)
	for i, ev := range events {
		if ev.Time < prev {
			return types.CustomerProfile{}, perrors.NewTimelineError(perrors.CodeUnsortedTimeline,
				fmt.Sprintf("timeline: %s event %d at %d precedes %d", personID, i, ev.Time, prev), nil)
		}
		prev = ev.Time

		s.evict(ev.Time)
		s.window.lapse(ev.Time)

		if err := s.apply(&profile, ev, offers); err != nil {
			return types.CustomerProfile{}, fmt.Errorf("timeline: %s event %d: %w", personID, i, err)
		}
	}

	return profile, nil
}

// apply dispatches a single event. Eviction and window lapse have already run.
func (s *state) apply(p *types.CustomerProfile, ev types.Event, offers OfferLookup) error {
	var offer types.Offer
	if ev.Kind.IsOffer() && ev.OfferID != "" {
		o, err := offers.Lookup(ev.OfferID)
		if err != nil {
			return err
		}
		offer = o
	}

	switch ev.Kind {
	case types.KindOfferReceived:
		if ev.OfferID == "" {
			return nil
		}
		delete(s.completed, ev.OfferID)
		s.active[ev.OfferID] = offer.ExpiresAt(ev.Time)
		switch offer.Type {
		case types.OfferBOGO:
			p.OfferedBOGO++
		case types.OfferDiscount:
			p.OfferedDiscount++
		case types.OfferInformational:
			p.OfferedInformational++
		}

	case types.KindOfferViewed:
		if ev.OfferID == "" {
			return nil
		}
		if _, done := s.completed[ev.OfferID]; done {
			return nil
		}
		expiry, ok := s.active[ev.OfferID]
		if !ok {
			return nil
		}
		s.viewed[ev.OfferID] = expiry
		s.window.view(offer.Type, expiry)

	case types.KindTransaction:
		p.Spend[s.window.category()].Add(ev.Amount)

	case types.KindOfferCompleted:
		p.CompletedOffers++
		if ev.OfferID != "" {
			s.completed[ev.OfferID] = struct{}{}
		}
		if _, seen := s.viewed[ev.OfferID]; !seen || ev.OfferID == "" {
			p.Incidental.Add(ev.Reward)
			return nil
		}
		switch offer.Type {
		case types.OfferBOGO:
			p.EarnedBOGO.Add(ev.Reward)
		case types.OfferDiscount:
			p.EarnedDiscount.Add(ev.Reward)
		}

	default:
		name := ev.RawKind
		if name == "" {
			name = ev.Kind.String()
		}
		return perrors.NewValidationError(perrors.CodeUnknownEventKind,
			fmt.Sprintf("unrecognized event kind %q at %d", name, ev.Time))
	}

	return nil
}
