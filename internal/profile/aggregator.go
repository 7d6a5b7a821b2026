// Package profile builds the joined customer profile table from a normalized
// transcript, the offer catalog and cleaned demographics.
package profile

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/arkilian/offerprofile/internal/demographic"
	perrors "github.com/arkilian/offerprofile/internal/errors"
	"github.com/arkilian/offerprofile/internal/observability"
	"github.com/arkilian/offerprofile/internal/timeline"
	"github.com/arkilian/offerprofile/pkg/types"
)

// FailurePolicy decides what happens when one customer's timeline fails.
type FailurePolicy string

const (
	// PolicyFail aborts the whole batch on the first failing customer.
	PolicyFail FailurePolicy = "fail"
	// PolicyQuarantine excludes failing customers and reports them.
	PolicyQuarantine FailurePolicy = "quarantine"
)

// ParseFailurePolicy validates a policy name.
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch p := FailurePolicy(s); p {
	case PolicyFail, PolicyQuarantine:
		return p, nil
	default:
		return "", fmt.Errorf("profile: unknown failure policy %q (must be fail or quarantine)", s)
	}
}

// Options configures an Aggregator.
type Options struct {
	// Workers bounds how many shards are summarized concurrently (default: NumCPU)
	Workers int

	// Shards is the number of murmur3 customer shards (default: 4 * Workers)
	Shards int

	// Policy is the per-customer failure policy (default: fail)
	Policy FailurePolicy

	// Logger receives progress and quarantine messages (default: slog.Default())
	Logger *slog.Logger

	// Stats, when set, receives customer and join counts
	Stats *observability.RunStats
}

// Report describes a Build run.
type Report struct {
	// Customers is the number of distinct customers in the transcript
	Customers int

	// Profiles is the number of rows produced
	Profiles int

	// Unjoined lists customers summarized but absent from demographics
	Unjoined []string

	// Quarantined lists customers excluded under PolicyQuarantine
	Quarantined []types.QuarantinedCustomer
}

// Aggregator groups a transcript by customer, runs the timeline engine once
// per customer and joins the results with demographics.
type Aggregator struct {
	offers timeline.OfferLookup
	opts   Options
	logger *slog.Logger
}

// NewAggregator creates an aggregator over a read-only offer catalog.
func NewAggregator(offers timeline.OfferLookup, opts Options) *Aggregator {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.Shards <= 0 {
		opts.Shards = 4 * opts.Workers
	}
	if opts.Policy == "" {
		opts.Policy = PolicyFail
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		offers: offers,
		opts:   opts,
		logger: logger.With("component", "aggregator"),
	}
}

type customerGroup struct {
	personID string
	events   []types.Event
}

type summary struct {
	profile types.CustomerProfile
	err     error
}

// Build produces one row per customer present in both events and
// demographics, sorted by person id. Inputs are not modified.
func (a *Aggregator) Build(ctx context.Context, demographics []types.Demographic, events []types.Event) ([]types.ProfileRow, *Report, error) {
	groups := groupByPerson(events)
	report := &Report{Customers: len(groups)}

	summaries, err := a.summarizeAll(ctx, groups)
	if err != nil {
		return nil, nil, err
	}

	demo := demographic.Index(demographics)

	rows := make([]types.ProfileRow, 0, len(groups))
	for i, g := range groups {
		s := summaries[i]
		if s.err != nil {
			report.Quarantined = append(report.Quarantined, types.QuarantinedCustomer{
				PersonID: g.personID,
				Code:     perrors.GetCode(s.err),
				Message:  s.err.Error(),
				Events:   g.events,
			})
			a.logger.Warn("customer quarantined", "person", g.personID, "error", s.err)
			continue
		}
		d, ok := demo[g.personID]
		if !ok {
			report.Unjoined = append(report.Unjoined, g.personID)
			continue
		}
		rows = append(rows, Join(s.profile, d))
	}

	sort.Slice(rows, func(i, j int) bool {
		return rows[i].Profile.PersonID < rows[j].Profile.PersonID
	})
	sort.Strings(report.Unjoined)
	sort.Slice(report.Quarantined, func(i, j int) bool {
		return report.Quarantined[i].PersonID < report.Quarantined[j].PersonID
	})
	report.Profiles = len(rows)

	if a.opts.Stats != nil {
		a.opts.Stats.RecordJoin(len(rows), len(report.Unjoined))
	}
	a.logger.Info("profiles built",
		"customers", report.Customers,
		"profiles", report.Profiles,
		"unjoined", len(report.Unjoined),
		"quarantined", len(report.Quarantined))

	return rows, report, nil
}

// summarizeAll runs the engine for every group. Shards run concurrently,
// customers inside a shard run sequentially. Under PolicyFail the first
// error cancels the remaining work and is returned.
func (a *Aggregator) summarizeAll(parent context.Context, groups []customerGroup) ([]summary, error) {
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	out := make([]summary, len(groups))
	sem := semaphore.NewWeighted(int64(a.opts.Workers))

	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	fail := func(err error) {
		errOnce.Do(func() {
			firstErr = err
			cancel()
		})
	}

	for _, shard := range partitionShards(groups, a.opts.Shards) {
		if err := sem.Acquire(ctx, 1); err != nil {
			fail(err)
			break
		}

		wg.Add(1)
		go func(indices []int) {
			defer sem.Release(1)
			defer wg.Done()

			for _, i := range indices {
				if ctx.Err() != nil {
					return
				}
				g := groups[i]
				p, err := timeline.Summarize(g.personID, g.events, a.offers)
				out[i] = summary{profile: p, err: err}
				if a.opts.Stats != nil {
					a.opts.Stats.RecordCustomer(err == nil)
				}
				if err != nil && a.opts.Policy == PolicyFail {
					fail(fmt.Errorf("profile: customer %s: %w", g.personID, err))
					return
				}
			}
		}(shard)
	}
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	// shards stop early, leaving holes in out, if the caller cancelled
	if err := parent.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// groupByPerson groups events by customer in first-seen order and stable
// sorts each group by time, so same-timestamp events keep transcript order.
// Event slices are copied; the input is left untouched.
func groupByPerson(events []types.Event) []customerGroup {
	index := make(map[string]int)
	var groups []customerGroup
	for _, ev := range events {
		i, ok := index[ev.PersonID]
		if !ok {
			i = len(groups)
			index[ev.PersonID] = i
			groups = append(groups, customerGroup{personID: ev.PersonID})
		}
		groups[i].events = append(groups[i].events, ev)
	}
	for i := range groups {
		evs := groups[i].events
		sort.SliceStable(evs, func(a, b int) bool {
			return evs[a].Time < evs[b].Time
		})
	}
	return groups
}

// ProfileFor summarizes and joins a single customer. events need not be sorted.
func ProfileFor(d types.Demographic, events []types.Event, offers timeline.OfferLookup) (types.ProfileRow, error) {
	sorted := make([]types.Event, len(events))
	copy(sorted, events)
	sort.SliceStable(sorted, func(a, b int) bool {
		return sorted[a].Time < sorted[b].Time
	})

	p, err := timeline.Summarize(d.PersonID, sorted, offers)
	if err != nil {
		return types.ProfileRow{}, err
	}
	return Join(p, d), nil
}
