package profile

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/offerprofile/internal/catalog"
	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/internal/observability"
	"github.com/arkilian/offerprofile/pkg/types"
)

func testCatalog(t testing.TB) *catalog.Catalog {
	t.Helper()
	c, err := catalog.New([]types.Offer{
		{ID: "bogo7", Type: types.OfferBOGO, DurationDays: 7, Reward: 5},
		{ID: "disc10", Type: types.OfferDiscount, DurationDays: 10, Reward: 2},
		{ID: "info3", Type: types.OfferInformational, DurationDays: 3},
	})
	require.NoError(t, err)
	return c
}

func ev(person string, at int64, kind types.EventKind, offerID string, amount float64) types.Event {
	e := types.Event{PersonID: person, Time: at, Kind: kind, OfferID: offerID}
	switch kind {
	case types.KindTransaction:
		e.Amount = amount
	case types.KindOfferCompleted:
		e.Reward = amount
	}
	return e
}

// transcript interleaves customers and is deliberately not sorted by time.
func transcript() []types.Event {
	return []types.Event{
		ev("alice", 0, types.KindOfferReceived, "bogo7", 0),
		ev("bob", 0, types.KindTransaction, "", 4),
		ev("alice", 30, types.KindTransaction, "", 12),
		ev("alice", 6, types.KindOfferViewed, "bogo7", 0),
		ev("carol", 10, types.KindTransaction, "", 1),
		ev("bob", 12, types.KindOfferReceived, "info3", 0),
		ev("bob", 13, types.KindOfferViewed, "info3", 0),
		ev("bob", 14, types.KindTransaction, "", 2),
		ev("bob", 15, types.KindTransaction, "", 2),
		ev("alice", 30, types.KindOfferCompleted, "bogo7", 5),
	}
}

func demographics() []types.Demographic {
	return []types.Demographic{
		{PersonID: "alice", Age: 33, Gender: "F", Income: 72000, CustomerSince: 400},
		{PersonID: "bob", Age: 61, Gender: "M", Income: 55000, CustomerSince: 12},
		{PersonID: "dave", Age: 25, Gender: "O", Income: 40000, CustomerSince: 3},
	}
}

func TestBuild(t *testing.T) {
	stats := observability.NewRunStats()
	agg := NewAggregator(testCatalog(t), Options{Workers: 2, Stats: stats})

	rows, report, err := agg.Build(context.Background(), demographics(), transcript())
	require.NoError(t, err)

	assert.Equal(t, 3, report.Customers)
	assert.Equal(t, 2, report.Profiles)
	assert.Equal(t, []string{"carol"}, report.Unjoined, "carol has events but no demographics")
	assert.Empty(t, report.Quarantined)

	require.Len(t, rows, 2, "dave has demographics but no events")
	alice, bob := rows[0], rows[1]

	assert.Equal(t, "alice", alice.Profile.PersonID)
	assert.Equal(t, "alice", alice.Demographic.PersonID)
	assert.Equal(t, types.Tally{Count: 1, Value: 12}, alice.Profile.Spend[types.CategoryBOGO])
	assert.Equal(t, types.Tally{Count: 1, Value: 5}, alice.Profile.EarnedBOGO)
	assert.Equal(t, types.CategoryBOGO, alice.BestOfferByValue)
	assert.Equal(t, types.CategoryBOGO, alice.BestOfferByCount)

	assert.Equal(t, "bob", bob.Profile.PersonID)
	assert.Equal(t, types.Tally{Count: 1, Value: 4}, bob.Profile.Spend[types.CategoryNoOffer])
	assert.Equal(t, types.Tally{Count: 2, Value: 4}, bob.Profile.Spend[types.CategoryInformational])
	// value tie between informational and no_offer goes to informational
	assert.Equal(t, types.CategoryInformational, bob.BestOfferByValue)
	assert.Equal(t, types.CategoryInformational, bob.BestOfferByCount)
	assert.Equal(t, 61, bob.Demographic.Age)

	snap := stats.Snapshot()
	assert.Equal(t, int64(3), snap.Customers)
	assert.Equal(t, int64(2), snap.Profiles)
	assert.Equal(t, int64(1), snap.Unjoined)
}

func TestBuild_DoesNotMutateInput(t *testing.T) {
	events := transcript()
	before := make([]types.Event, len(events))
	copy(before, events)

	_, _, err := NewAggregator(testCatalog(t), Options{}).Build(context.Background(), demographics(), events)
	require.NoError(t, err)
	assert.Equal(t, before, events)
}

func TestBuild_KeepsTranscriptOrderForTies(t *testing.T) {
	// completion logged before the view at the same hour: reward is incidental
	events := []types.Event{
		ev("alice", 0, types.KindOfferReceived, "bogo7", 0),
		ev("alice", 8, types.KindOfferCompleted, "bogo7", 5),
		ev("alice", 8, types.KindOfferViewed, "bogo7", 0),
	}
	rows, _, err := NewAggregator(testCatalog(t), Options{}).Build(context.Background(), demographics(), events)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, types.Tally{Count: 1, Value: 5}, rows[0].Profile.Incidental)
	assert.Zero(t, rows[0].Profile.EarnedBOGO)
}

func TestBuild_FailPolicyAbortsBatch(t *testing.T) {
	events := append(transcript(), types.Event{PersonID: "bob", Time: 20, Kind: types.KindUnknown, RawKind: "offer shared"})

	agg := NewAggregator(testCatalog(t), Options{Workers: 4, Policy: PolicyFail})
	rows, report, err := agg.Build(context.Background(), demographics(), events)
	require.Error(t, err)
	assert.Nil(t, rows)
	assert.Nil(t, report)
	assert.Equal(t, perrors.CodeUnknownEventKind, perrors.GetCode(err))
	assert.Contains(t, err.Error(), "customer bob")
}

func TestBuild_QuarantinePolicyExcludesCustomer(t *testing.T) {
	events := append(transcript(), ev("alice", 40, types.KindOfferReceived, "missing-offer", 0))

	agg := NewAggregator(testCatalog(t), Options{Workers: 4, Policy: PolicyQuarantine})
	rows, report, err := agg.Build(context.Background(), demographics(), events)
	require.NoError(t, err)

	require.Len(t, rows, 1)
	assert.Equal(t, "bob", rows[0].Profile.PersonID)

	require.Len(t, report.Quarantined, 1)
	q := report.Quarantined[0]
	assert.Equal(t, "alice", q.PersonID)
	assert.Equal(t, perrors.CodeUnknownOffer, q.Code)
	assert.Len(t, q.Events, 5)
	assert.Equal(t, int64(0), q.Events[0].Time, "quarantined events are time sorted")
}

func TestBuild_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := NewAggregator(testCatalog(t), Options{Workers: 1}).Build(ctx, demographics(), transcript())
	require.ErrorIs(t, err, context.Canceled)
}

func TestBuild_DeterministicAcrossWorkerCounts(t *testing.T) {
	var events []types.Event
	var demo []types.Demographic
	offers := []string{"bogo7", "disc10", "info3"}
	for c := 0; c < 200; c++ {
		person := fmt.Sprintf("customer-%03d", c)
		demo = append(demo, types.Demographic{PersonID: person, Age: 20 + c%50})
		for i := 0; i < 12; i++ {
			at := int64(i * 18)
			offer := offers[(c+i)%3]
			switch (c * i) % 4 {
			case 0:
				events = append(events, ev(person, at, types.KindOfferReceived, offer, 0))
			case 1:
				events = append(events, ev(person, at, types.KindOfferViewed, offer, 0))
			case 2:
				events = append(events, ev(person, at, types.KindTransaction, "", float64(c%17+i)))
			case 3:
				events = append(events, ev(person, at, types.KindOfferCompleted, offer, 2))
			}
		}
	}

	serial, _, err := NewAggregator(testCatalog(t), Options{Workers: 1, Shards: 1}).Build(context.Background(), demo, events)
	require.NoError(t, err)
	parallel, _, err := NewAggregator(testCatalog(t), Options{Workers: 8, Shards: 64}).Build(context.Background(), demo, events)
	require.NoError(t, err)

	require.Len(t, serial, 200)
	assert.Equal(t, serial, parallel)
}

func TestProfileFor_EmptyTimeline(t *testing.T) {
	d := types.Demographic{PersonID: "dave", Age: 25, Gender: "O", Income: 40000}
	row, err := ProfileFor(d, nil, testCatalog(t))
	require.NoError(t, err)

	assert.Equal(t, types.CustomerProfile{PersonID: "dave"}, row.Profile)
	assert.Equal(t, d, row.Demographic)
	assert.Equal(t, types.CategoryInformational, row.BestOfferByValue)
	assert.Equal(t, types.CategoryInformational, row.BestOfferByCount)
}

func TestParseFailurePolicy(t *testing.T) {
	p, err := ParseFailurePolicy("quarantine")
	require.NoError(t, err)
	assert.Equal(t, PolicyQuarantine, p)

	_, err = ParseFailurePolicy("skip")
	assert.Error(t, err)
}
