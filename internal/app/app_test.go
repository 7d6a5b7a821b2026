package app

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arkilian/offerprofile/internal/config"
	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/pkg/types"
)

const portfolio = `{"id":"b1","offer_type":"bogo","duration":7,"difficulty":10,"reward":5,"channels":["email","web"]}
{"id":"d1","offer_type":"discount","duration":10,"difficulty":20,"reward":5,"channels":["web"]}
{"id":"i1","offer_type":"informational","duration":3,"difficulty":0,"reward":0,"channels":["mobile"]}
`

const profiles = `{"id":"p1","age":55,"gender":"F","income":112000.0,"became_member_on":20170715}
{"id":"p2","age":68,"gender":"M","income":70000.0,"became_member_on":20180426}
{"id":"p3","age":118,"gender":null,"income":null,"became_member_on":20170212}
{"id":"p4","age":30,"gender":"O","income":40000.0,"became_member_on":20180101}
`

const transcript = `{"person":"p1","event":"offer received","value":{"offer id":"b1"},"time":0}
{"person":"p2","event":"transaction","value":{"amount":7.5},"time":0}
{"person":"p3","event":"offer received","value":{"offer id":"d1"},"time":0}
{"person":"p1","event":"offer viewed","value":{"offer id":"b1"},"time":6}
{"person":"p3","event":"transaction","value":{"amount":2.0},"time":5}
{"person":"p1","event":"transaction","value":{"amount":10.0},"time":12}
{"person":"p1","event":"offer completed","value":{"offer_id":"b1","reward":5},"time":12}
{"person":"p1","event":"transaction","value":{"amount":3.0},"time":500}
`

// badTranscript adds a customer referencing an offer missing from the portfolio.
const badTranscript = transcript + `{"person":"p4","event":"offer received","value":{"offer id":"zz"},"time":0}
`

func setupStorage(t *testing.T, events string) *config.Config {
	t.Helper()
	root := t.TempDir()
	for name, body := range map[string]string{
		"portfolio.json":  portfolio,
		"profile.json":    profiles,
		"transcript.json": events,
	} {
		require.NoError(t, os.WriteFile(filepath.Join(root, name), []byte(body), 0644))
	}

	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Storage.Path = root
	cfg.Pipeline.Workers = 2
	return cfg
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPipeline_Run(t *testing.T) {
	cfg := setupStorage(t, transcript)
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 3, res.Report.Customers)
	assert.Equal(t, 2, res.Report.Profiles)
	assert.Equal(t, []string{"p3"}, res.Report.Unjoined)
	assert.Empty(t, res.Report.Quarantined)
	assert.Equal(t, 8, res.Run.Events)
	assert.NotEmpty(t, res.Run.ID)
	assert.Equal(t, 1, res.Catalog[types.OfferBOGO])
	assert.Equal(t, int64(4), res.Stats.EventKinds["transaction"])

	insp, err := Inspect(context.Background(), cfg.Output.Database)
	require.NoError(t, err)
	require.Len(t, insp.Runs, 1)
	assert.Equal(t, res.Run.ID, insp.Runs[0].ID)
	require.Len(t, insp.Profiles, 2)

	p1 := insp.Profiles[0]
	assert.Equal(t, "p1", p1.Profile.PersonID)
	assert.Equal(t, types.Tally{Count: 1, Value: 10}, p1.Profile.Spend[types.CategoryBOGO])
	assert.Equal(t, types.Tally{Count: 1, Value: 3}, p1.Profile.Spend[types.CategoryNoOffer])
	assert.Equal(t, types.Tally{Count: 1, Value: 5}, p1.Profile.EarnedBOGO)
	assert.Equal(t, 1, p1.Profile.CompletedOffers)
	assert.Equal(t, 1, p1.Profile.OfferedBOGO)
	assert.Equal(t, types.CategoryBOGO, p1.BestOfferByValue)
	assert.Equal(t, types.CategoryNoOffer, p1.BestOfferByCount)
	assert.Equal(t, "F", p1.Demographic.Gender)

	p2 := insp.Profiles[1]
	assert.Equal(t, "p2", p2.Profile.PersonID)
	assert.Equal(t, types.Tally{Count: 1, Value: 7.5}, p2.Profile.Spend[types.CategoryNoOffer])
	assert.Equal(t, types.CategoryNoOffer, p2.BestOfferByValue)
}

func TestPipeline_WritesMetricsTextfile(t *testing.T) {
	cfg := setupStorage(t, transcript)
	cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "textfile", "offerprofile.prom")
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.NoError(t, err)

	data, err := os.ReadFile(cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `offerprofile_run_customers{outcome="profiled"} 2`)
	assert.Contains(t, string(data), `offerprofile_run_customers{outcome="unjoined"} 1`)
	assert.Contains(t, string(data), "offerprofile_last_success_timestamp_seconds")
}

func TestPipeline_RunIsRepeatable(t *testing.T) {
	cfg := setupStorage(t, transcript)
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	first, err := p.Run(context.Background())
	require.NoError(t, err)
	second, err := p.Run(context.Background())
	require.NoError(t, err)
	assert.NotEqual(t, first.Run.ID, second.Run.ID)

	insp, err := Inspect(context.Background(), cfg.Output.Database)
	require.NoError(t, err)
	assert.Len(t, insp.Runs, 2)
	assert.Len(t, insp.Profiles, 2, "profiles are replaced, not appended")
}

func TestPipeline_FailPolicyAborts(t *testing.T) {
	cfg := setupStorage(t, badTranscript)
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, perrors.CodeUnknownOffer, perrors.GetCode(err))

	_, statErr := os.Stat(cfg.Output.Database)
	assert.True(t, os.IsNotExist(statErr), "no database is written when the run aborts")
}

func TestPipeline_QuarantinePolicy(t *testing.T) {
	cfg := setupStorage(t, badTranscript)
	cfg.Pipeline.FailurePolicy = "quarantine"
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	res, err := p.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, res.Report.Quarantined, 1)
	assert.Equal(t, "p4", res.Report.Quarantined[0].PersonID)
	assert.Equal(t, 2, res.Report.Profiles)

	insp, err := Inspect(context.Background(), cfg.Output.Database)
	require.NoError(t, err)
	require.Len(t, insp.Quarantined, 1)
	assert.Equal(t, perrors.CodeUnknownOffer, insp.Quarantined[0].Code)
	require.Len(t, insp.Quarantined[0].Events, 1)
	assert.Equal(t, "zz", insp.Quarantined[0].Events[0].OfferID)
}

func TestPipeline_MissingInput(t *testing.T) {
	cfg := setupStorage(t, transcript)
	cfg.Input.Transcript = "missing.json"
	p, err := New(cfg, quietLogger())
	require.NoError(t, err)

	_, err = p.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, perrors.CodeObjectNotFound, perrors.GetCode(err))
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.DataDir = t.TempDir()
	cfg.Pipeline.FailurePolicy = "ignore"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestInspect_MissingDatabase(t *testing.T) {
	_, err := Inspect(context.Background(), filepath.Join(t.TempDir(), "none.db"))
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l := NewLogger(config.LogConfig{Level: "warn", Format: "json"}, io.Discard)
	assert.False(t, l.Enabled(context.Background(), slog.LevelInfo))
	assert.True(t, l.Enabled(context.Background(), slog.LevelWarn))
}
