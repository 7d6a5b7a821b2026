// Package app wires storage, the profile pipeline and the sink into a
// single batch run.
package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/arkilian/offerprofile/internal/catalog"
	"github.com/arkilian/offerprofile/internal/config"
	"github.com/arkilian/offerprofile/internal/demographic"
	"github.com/arkilian/offerprofile/internal/normalize"
	"github.com/arkilian/offerprofile/internal/observability"
	"github.com/arkilian/offerprofile/internal/profile"
	"github.com/arkilian/offerprofile/internal/sink"
	"github.com/arkilian/offerprofile/internal/storage"
	"github.com/arkilian/offerprofile/pkg/types"
)

// Pipeline runs one profile build.
type Pipeline struct {
	cfg     *config.Config
	logger  *slog.Logger
	storage storage.ObjectStorage
}

// Result summarizes a finished build.
type Result struct {
	Run     sink.Run
	Report  *profile.Report
	Stats   observability.Snapshot
	Catalog map[types.OfferType]int
}

// New creates a Pipeline with the given configuration.
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	// Resolve paths and validate
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	// Ensure directories exist
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}

	return &Pipeline{
		cfg:    cfg,
		logger: logger,
	}, nil
}

// WithStorage overrides the configured object storage.
func (p *Pipeline) WithStorage(s storage.ObjectStorage) *Pipeline {
	p.storage = s
	return p
}

// initStorage initializes the configured object storage.
func (p *Pipeline) initStorage(ctx context.Context) error {
	if p.storage != nil {
		return nil
	}

	var err error
	switch p.cfg.Storage.Type {
	case "local":
		p.storage, err = storage.NewLocalStorage(p.cfg.Storage.Path)
	case "s3":
		p.storage, err = storage.NewS3Storage(ctx, p.cfg.Storage.S3.Bucket, storage.S3Config{
			Region:       p.cfg.Storage.S3.Region,
			Endpoint:     p.cfg.Storage.S3.Endpoint,
			UsePathStyle: p.cfg.Storage.S3.UsePathStyle,
		})
	default:
		return fmt.Errorf("unsupported storage type: %s", p.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	p.logger.Info("storage initialized", "type", p.cfg.Storage.Type,
		"path", p.cfg.Storage.Path, "bucket", p.cfg.Storage.S3.Bucket)
	return nil
}

// Run fetches the three datasets, builds profiles and writes them to the
// profile database. Under the fail policy any customer error aborts the run
// before the database is touched.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	started := time.Now().UTC()
	stats := observability.NewRunStats()

	if err := p.initStorage(ctx); err != nil {
		return nil, err
	}

	done := stats.Stage("fetch")
	in := p.cfg.Input
	local, err := storage.NewFetcher(p.storage, p.cfg.Pipeline.FetchConcurrency, p.cfg.WorkDir()).
		Fetch(ctx, in.Portfolio, in.Profile, in.Transcript)
	done()
	if err != nil {
		return nil, fmt.Errorf("failed to fetch inputs: %w", err)
	}

	done = stats.Stage("load")
	offers, err := loadFile(local[in.Portfolio], catalog.Load)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to load offer catalog: %w", err)
	}
	raw, err := loadFile(local[in.Profile], demographic.ReadProfiles)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to read profiles: %w", err)
	}
	demographics, demoStats, err := demographic.Clean(raw)
	if err != nil {
		done()
		return nil, fmt.Errorf("failed to clean profiles: %w", err)
	}
	events, err := loadFile(local[in.Transcript], normalize.ReadTranscript)
	done()
	if err != nil {
		return nil, fmt.Errorf("failed to read transcript: %w", err)
	}
	stats.RecordEvents(events)

	p.logger.Info("inputs loaded",
		"offers", offers.Len(),
		"profiles_read", demoStats.Read,
		"profiles_dropped", demoStats.Dropped,
		"events", len(events))

	policy, err := profile.ParseFailurePolicy(p.cfg.Pipeline.FailurePolicy)
	if err != nil {
		return nil, err
	}

	done = stats.Stage("aggregate")
	agg := profile.NewAggregator(offers, profile.Options{
		Workers: p.cfg.Pipeline.Workers,
		Shards:  p.cfg.Pipeline.Shards,
		Policy:  policy,
		Logger:  p.logger,
		Stats:   stats,
	})
	rows, report, err := agg.Build(ctx, demographics, events)
	done()
	if err != nil {
		return nil, fmt.Errorf("failed to build profiles: %w", err)
	}

	run := sink.Run{
		ID:          sink.NewRunID(),
		StartedAt:   started,
		Customers:   report.Customers,
		Profiles:    report.Profiles,
		Unjoined:    len(report.Unjoined),
		Quarantined: len(report.Quarantined),
		Events:      len(events),
	}

	done = stats.Stage("write")
	err = p.write(ctx, &run, rows, report.Quarantined)
	done()
	if err != nil {
		return nil, err
	}

	snap := stats.Snapshot()
	for _, st := range snap.Stages {
		p.logger.Debug("stage finished", "stage", st.Stage, "duration", st.Duration)
	}
	p.writeMetrics(snap, run.FinishedAt)
	p.logger.Info("run finished",
		"run_id", run.ID,
		"database", p.cfg.Output.Database,
		"profiles", run.Profiles,
		"quarantined", run.Quarantined,
		"elapsed", snap.Elapsed)

	return &Result{
		Run:     run,
		Report:  report,
		Stats:   snap,
		Catalog: offers.CountByType(),
	}, nil
}

// write stores the run in the profile database and, for remote storage,
// uploads the closed database file.
func (p *Pipeline) write(ctx context.Context, run *sink.Run, rows []types.ProfileRow, quarantined []types.QuarantinedCustomer) error {
	store, err := sink.Open(ctx, p.cfg.Output.Database)
	if err != nil {
		return fmt.Errorf("failed to open profile database: %w", err)
	}

	run.FinishedAt = time.Now().UTC()
	if err := store.WriteRun(ctx, *run, rows, quarantined); err != nil {
		store.Close()
		return fmt.Errorf("failed to write profiles: %w", err)
	}
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close profile database: %w", err)
	}

	if p.cfg.Storage.Type != "s3" || p.cfg.Output.Object == "" {
		return nil
	}
	if err := p.storage.Upload(ctx, p.cfg.Output.Database, p.cfg.Output.Object); err != nil {
		return fmt.Errorf("failed to upload profile database: %w", err)
	}
	p.logger.Info("profile database uploaded", "object", p.cfg.Output.Object)
	return nil
}

// writeMetrics exports the run to the configured Prometheus textfile. A
// failed export is logged and does not fail the run.
func (p *Pipeline) writeMetrics(snap observability.Snapshot, finished time.Time) {
	if p.cfg.Metrics.Textfile == "" {
		return
	}
	m := observability.NewMetrics()
	m.Observe(snap)
	m.MarkSuccess(finished)
	if err := m.WriteTextfile(p.cfg.Metrics.Textfile); err != nil {
		p.logger.Warn("failed to write metrics textfile", "path", p.cfg.Metrics.Textfile, "error", err)
	}
}

// Inspection is a read-only view of a profile database.
type Inspection struct {
	Runs        []sink.Run
	Profiles    []types.ProfileRow
	Quarantined []types.QuarantinedCustomer
}

// Inspect reads back the profile database and the quarantine of its most
// recent run.
func Inspect(ctx context.Context, dbPath string) (*Inspection, error) {
	if _, err := os.Stat(dbPath); err != nil {
		return nil, fmt.Errorf("profile database not found: %w", err)
	}

	store, err := sink.Open(ctx, dbPath)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	out := &Inspection{}
	if out.Runs, err = store.Runs(ctx); err != nil {
		return nil, err
	}
	if out.Profiles, err = store.ReadProfiles(ctx); err != nil {
		return nil, err
	}
	if len(out.Runs) > 0 {
		// runs are newest first
		if out.Quarantined, err = store.ReadQuarantined(ctx, out.Runs[0].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// NewLogger builds the process logger from the log section.
func NewLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func loadFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, err
	}
	defer f.Close()
	return read(f)
}
