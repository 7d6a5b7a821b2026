package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseEventKind(t *testing.T) {
	tests := []struct {
		in   string
		want EventKind
	}{
		{"offer received", KindOfferReceived},
		{"offer_viewed", KindOfferViewed},
		{" Transaction ", KindTransaction},
		{"OFFER COMPLETED", KindOfferCompleted},
	}
	for _, tt := range tests {
		got, err := ParseEventKind(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	_, err := ParseEventKind("refund")
	assert.Error(t, err)
}

func TestEventKindJSON(t *testing.T) {
	data, err := json.Marshal(Event{PersonID: "p", Time: 3, Kind: KindOfferViewed, OfferID: "o"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"person":"p","time":3,"event":"offer viewed","offer_id":"o"}`, string(data))

	var unknown Event
	require.NoError(t, json.Unmarshal([]byte(`{"person":"p","time":1,"event":"unknown","raw_kind":"refund"}`), &unknown))
	assert.Equal(t, KindUnknown, unknown.Kind)
	assert.Equal(t, "refund", unknown.RawKind)

	_, err = json.Marshal(EventKind(42))
	assert.Error(t, err)
}

func TestEventKindIsOffer(t *testing.T) {
	assert.True(t, KindOfferReceived.IsOffer())
	assert.True(t, KindOfferViewed.IsOffer())
	assert.True(t, KindOfferCompleted.IsOffer())
	assert.False(t, KindTransaction.IsOffer())
	assert.False(t, KindUnknown.IsOffer())
}

func TestOfferExpiry(t *testing.T) {
	o := Offer{ID: "o", Type: OfferDiscount, DurationDays: 7}
	assert.Equal(t, int64(168), o.ValidityHours())
	assert.Equal(t, int64(192), o.ExpiresAt(24))

	_, err := ParseOfferType("coupon")
	assert.Error(t, err)
}

func TestCategories(t *testing.T) {
	for i, c := range Categories {
		assert.Equal(t, Category(i), c)
		parsed, err := ParseCategory(c.String())
		require.NoError(t, err)
		assert.Equal(t, c, parsed)
	}

	c, err := CategoryFor(OfferBOGO)
	require.NoError(t, err)
	assert.Equal(t, CategoryBOGO, c)

	_, err = CategoryFor(OfferType("coupon"))
	assert.Error(t, err)
}

func TestTransactionsSumsAllBuckets(t *testing.T) {
	var p CustomerProfile
	p.Spend[CategoryNoOffer] = Tally{Count: 2, Value: 5}
	p.Spend[CategoryBOGO] = Tally{Count: 1, Value: 10}
	assert.Equal(t, Tally{Count: 3, Value: 15}, p.Transactions())
}
