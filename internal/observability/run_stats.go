// Package observability provides run statistics for the profiling pipeline.
package observability

import (
	"sort"
	"sync"
	"time"

	"github.com/arkilian/offerprofile/pkg/types"
)

// RunStats tracks stage timings and record counts for one pipeline run.
// All methods are safe for concurrent use by aggregator workers.
type RunStats struct {
	mu         sync.Mutex
	started    time.Time
	stages     map[string]time.Duration
	eventKinds map[types.EventKind]int64

	customers   int64
	profiles    int64
	quarantined int64
	unjoined    int64
}

// StageTiming is a named stage duration.
type StageTiming struct {
	Stage    string
	Duration time.Duration
}

// Snapshot is an immutable copy of the statistics.
type Snapshot struct {
	Started     time.Time
	Elapsed     time.Duration
	Stages      []StageTiming
	EventKinds  map[string]int64
	Customers   int64
	Profiles    int64
	Quarantined int64
	Unjoined    int64
}

// NewRunStats creates a tracker whose clock starts now.
func NewRunStats() *RunStats {
	return &RunStats{
		started:    time.Now(),
		stages:     make(map[string]time.Duration),
		eventKinds: make(map[types.EventKind]int64),
	}
}

// Stage starts timing a named stage and returns the function that stops it.
//
//	defer stats.Stage("aggregate")()
func (r *RunStats) Stage(name string) func() {
	start := time.Now()
	return func() {
		elapsed := time.Since(start)
		r.mu.Lock()
		r.stages[name] += elapsed
		r.mu.Unlock()
	}
}

// RecordEvents counts normalized events by kind.
func (r *RunStats) RecordEvents(events []types.Event) {
	counts := make(map[types.EventKind]int64, len(types.EventKinds))
	for _, ev := range events {
		counts[ev.Kind]++
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, n := range counts {
		r.eventKinds[k] += n
	}
}

// RecordCustomer counts one summarized customer. ok is false for quarantined customers.
func (r *RunStats) RecordCustomer(ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.customers++
	if !ok {
		r.quarantined++
	}
}

// RecordJoin records the outcome of the demographic join.
func (r *RunStats) RecordJoin(profiles, unjoined int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles += int64(profiles)
	r.unjoined += int64(unjoined)
}

// Snapshot returns a copy of the current statistics with stages sorted by name.
func (r *RunStats) Snapshot() Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Snapshot{
		Started:     r.started,
		Elapsed:     time.Since(r.started),
		Stages:      make([]StageTiming, 0, len(r.stages)),
		EventKinds:  make(map[string]int64, len(r.eventKinds)),
		Customers:   r.customers,
		Profiles:    r.profiles,
		Quarantined: r.quarantined,
		Unjoined:    r.unjoined,
	}
	for name, d := range r.stages {
		s.Stages = append(s.Stages, StageTiming{Stage: name, Duration: d})
	}
	sort.Slice(s.Stages, func(i, j int) bool {
		return s.Stages[i].Stage < s.Stages[j].Stage
	})
	for k, n := range r.eventKinds {
		s.EventKinds[k.String()] = n
	}
	return s
}
