package sink

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang/snappy"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/offerprofile/pkg/types"
)

func sampleRows() []types.ProfileRow {
	var alice types.CustomerProfile
	alice.PersonID = "alice"
	alice.Spend[types.CategoryBOGO] = types.Tally{Count: 2, Value: 31.5}
	alice.Spend[types.CategoryNoOffer] = types.Tally{Count: 1, Value: 4.25}
	alice.CompletedOffers = 2
	alice.EarnedBOGO = types.Tally{Count: 1, Value: 5}
	alice.Incidental = types.Tally{Count: 1, Value: 2}
	alice.OfferedBOGO = 2
	alice.OfferedInformational = 1

	var bob types.CustomerProfile
	bob.PersonID = "bob"
	bob.Spend[types.CategoryDiscount] = types.Tally{Count: 3, Value: 12}
	bob.EarnedDiscount = types.Tally{Count: 1, Value: 3}
	bob.CompletedOffers = 1
	bob.OfferedDiscount = 1

	return []types.ProfileRow{
		{
			Profile:          bob,
			Demographic:      types.Demographic{PersonID: "bob", Age: 61, Gender: "M", Income: 55000, CustomerSince: 12},
			BestOfferByValue: types.CategoryDiscount,
			BestOfferByCount: types.CategoryDiscount,
		},
		{
			Profile:          alice,
			Demographic:      types.Demographic{PersonID: "alice", Age: 33, Gender: "F", Income: 72000, CustomerSince: 400},
			BestOfferByValue: types.CategoryBOGO,
			BestOfferByCount: types.CategoryBOGO,
		},
	}
}

func TestStore_WriteAndReadProfiles(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "out", "profiles.db")

	store, err := Open(ctx, path)
	require.NoError(t, err)
	defer store.Close()

	run := Run{ID: NewRunID(), StartedAt: time.Now().Add(-time.Second), FinishedAt: time.Now(), Customers: 3, Profiles: 2, Unjoined: 1, Events: 12}
	require.NoError(t, store.WriteRun(ctx, run, sampleRows(), nil))

	got, err := store.ReadProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, got, 2)

	want := sampleRows()
	assert.Equal(t, want[1], got[0], "rows come back ordered by person")
	assert.Equal(t, want[0], got[1])

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, run.ID, runs[0].ID)
	assert.Equal(t, 1, runs[0].Unjoined)
	assert.Equal(t, 12, runs[0].Events)
}

func TestStore_WriteReplacesProfiles(t *testing.T) {
	ctx := context.Background()
	store, err := Open(ctx, filepath.Join(t.TempDir(), "profiles.db"))
	require.NoError(t, err)
	defer store.Close()

	rows := sampleRows()
	require.NoError(t, store.WriteRun(ctx, Run{ID: NewRunID()}, rows, nil))
	require.NoError(t, store.WriteRun(ctx, Run{ID: NewRunID()}, rows[:1], nil))

	got, err := store.ReadProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "bob", got[0].Profile.PersonID)

	runs, err := store.Runs(ctx)
	require.NoError(t, err)
	assert.Len(t, runs, 2)
}

func TestStore_Quarantine(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)

	events := []types.Event{
		{PersonID: "carol", Time: 0, Kind: types.KindOfferReceived, OfferID: "ghost"},
		{PersonID: "carol", Time: 4, Kind: types.KindTransaction, Amount: 9.5},
		{PersonID: "carol", Time: 5, Kind: types.KindUnknown, RawKind: "offer shared"},
	}
	runID := NewRunID()
	q := []types.QuarantinedCustomer{{PersonID: "carol", Code: "UNKNOWN_OFFER", Message: "offer ghost is not in the portfolio", Events: events}}
	require.NoError(t, store.WriteRun(ctx, Run{ID: runID}, nil, q))

	got, err := store.ReadQuarantined(ctx, runID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, q[0], got[0])

	other, err := store.ReadQuarantined(ctx, NewRunID())
	require.NoError(t, err)
	assert.Empty(t, other)
	require.NoError(t, store.Close())

	// the blob is snappy-compressed JSON
	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()
	var blob []byte
	var count int
	require.NoError(t, db.QueryRow(`SELECT events, event_count FROM quarantined_customers WHERE person = 'carol'`).Scan(&blob, &count))
	assert.Equal(t, 3, count)
	raw, err := snappy.Decode(nil, blob)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"offer shared"`)
}

func TestStore_ColumnNames(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "profiles.db")
	store, err := Open(ctx, path)
	require.NoError(t, err)
	require.NoError(t, store.WriteRun(ctx, Run{ID: NewRunID()}, sampleRows(), nil))
	require.NoError(t, store.Close())

	db, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	defer db.Close()

	var count int
	var value float64
	var label string
	require.NoError(t, db.QueryRow(
		`SELECT "#transaction_bogo", transaction_bogo_value, best_offer_value FROM customer_profiles WHERE person = 'alice'`,
	).Scan(&count, &value, &label))
	assert.Equal(t, 2, count)
	assert.Equal(t, 31.5, value)
	assert.Equal(t, "bogo", label)
}
