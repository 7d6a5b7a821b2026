// Package main implements the offerprofile binary.
// It builds per-customer offer response profiles from the profile,
// portfolio and transcript datasets, or inspects a previously built
// profile database.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"

	"github.com/arkilian/offerprofile/internal/app"
	"github.com/arkilian/offerprofile/internal/config"
)

var (
	version = "dev"
	commit  = "unknown"
)

// options holds command line overrides; empty values leave config untouched.
type options struct {
	configFile    string
	envFile       string
	dataDir       string
	profile       string
	portfolio     string
	transcript    string
	database      string
	workers       int
	failurePolicy string
	metricsFile   string
	showVersion   bool
	showHelp      bool
}

func main() {
	var opts options

	flag.StringVar(&opts.configFile, "config", "", "Path to configuration file (YAML or JSON)")
	flag.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with OFFERPROFILE_* variables")
	flag.StringVar(&opts.dataDir, "data-dir", "", "Base directory for work files and the profile database")
	flag.StringVar(&opts.profile, "profile", "", "Object path of the demographic dataset")
	flag.StringVar(&opts.portfolio, "portfolio", "", "Object path of the offer portfolio")
	flag.StringVar(&opts.transcript, "transcript", "", "Object path of the event transcript")
	flag.StringVar(&opts.database, "db", "", "Path of the output SQLite database")
	flag.IntVar(&opts.workers, "workers", 0, "Number of concurrent aggregation workers")
	flag.StringVar(&opts.failurePolicy, "failure-policy", "", "Customer failure policy: fail, quarantine")
	flag.StringVar(&opts.metricsFile, "metrics-textfile", "", "Write run metrics to this Prometheus textfile")
	flag.BoolVar(&opts.showVersion, "version", false, "Show version information")
	flag.BoolVar(&opts.showHelp, "help", false, "Show help message")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "offerprofile - customer offer response profiles\n\n")
		fmt.Fprintf(os.Stderr, "Usage: offerprofile [options] [build|inspect]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  build     Build profiles and write the profile database (default)\n")
		fmt.Fprintf(os.Stderr, "  inspect   Print runs and profiles stored in the profile database\n")
		fmt.Fprintf(os.Stderr, "\nOptions:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  offerprofile --data-dir /data/offerprofile\n")
		fmt.Fprintf(os.Stderr, "  offerprofile --failure-policy quarantine --workers 8\n")
		fmt.Fprintf(os.Stderr, "  offerprofile --config /etc/offerprofile/config.yaml inspect\n")
		fmt.Fprintf(os.Stderr, "\nEnvironment Variables:\n")
		fmt.Fprintf(os.Stderr, "  OFFERPROFILE_DATA_DIR        Base directory for data files\n")
		fmt.Fprintf(os.Stderr, "  OFFERPROFILE_STORAGE_TYPE    Storage type (local, s3)\n")
		fmt.Fprintf(os.Stderr, "  OFFERPROFILE_S3_*            S3 bucket, region and endpoint\n")
		fmt.Fprintf(os.Stderr, "  OFFERPROFILE_WORKERS         Aggregation workers\n")
		fmt.Fprintf(os.Stderr, "  OFFERPROFILE_FAILURE_POLICY  fail or quarantine\n")
	}

	flag.Parse()

	if opts.showHelp {
		flag.Usage()
		os.Exit(0)
	}

	if opts.showVersion {
		fmt.Printf("offerprofile version %s (commit: %s)\n", version, commit)
		os.Exit(0)
	}

	command := "build"
	if flag.NArg() > 0 {
		command = flag.Arg(0)
	}

	cfg, err := loadConfig(opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := app.NewLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	switch command {
	case "build":
		err = build(ctx, cfg, logger)
	case "inspect":
		err = inspect(ctx, cfg)
	default:
		flag.Usage()
		os.Exit(2)
	}
	if err != nil {
		logger.Error(command+" failed", "error", err)
		os.Exit(1)
	}
}

func build(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	logger.Info("starting offerprofile",
		"version", version,
		"data_dir", cfg.DataDir,
		"storage", cfg.Storage.Type,
		"workers", cfg.Pipeline.Workers,
		"failure_policy", cfg.Pipeline.FailurePolicy)

	pipeline, err := app.New(cfg, logger)
	if err != nil {
		return err
	}
	res, err := pipeline.Run(ctx)
	if err != nil {
		return err
	}

	for _, q := range res.Report.Quarantined {
		logger.Warn("quarantined", "person", q.PersonID, "code", q.Code)
	}
	return nil
}

func inspect(ctx context.Context, cfg *config.Config) error {
	cfg.Resolve()
	insp, err := app.Inspect(ctx, cfg.Output.Database)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "RUN\tSTARTED\tCUSTOMERS\tPROFILES\tUNJOINED\tQUARANTINED")
	for _, r := range insp.Runs {
		fmt.Fprintf(w, "%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.StartedAt.UTC().Format("2006-01-02T15:04:05Z"), r.Customers, r.Profiles, r.Unjoined, r.Quarantined)
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "PERSON\tTRANSACTIONS\tCOMPLETED\tBEST_BY_VALUE\tBEST_BY_COUNT")
	for _, row := range insp.Profiles {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\n",
			row.Profile.PersonID, row.Profile.Transactions().Count, row.Profile.CompletedOffers,
			row.BestOfferByValue, row.BestOfferByCount)
	}

	if len(insp.Quarantined) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, "QUARANTINED\tCODE\tEVENTS")
		for _, q := range insp.Quarantined {
			fmt.Fprintf(w, "%s\t%s\t%d\n", q.PersonID, q.Code, len(q.Events))
		}
	}
	return w.Flush()
}

// loadConfig loads configuration from file, environment, and command line flags.
func loadConfig(opts options) (*config.Config, error) {
	var cfg *config.Config
	var err error

	if err := config.LoadDotEnv(opts.envFile); err != nil {
		return nil, err
	}

	// Start with defaults or load from file
	if opts.configFile != "" {
		cfg, err = config.LoadFromFile(opts.configFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	} else {
		cfg = config.DefaultConfig()
	}

	// Apply environment variables
	config.LoadFromEnv(cfg)

	// Apply command line flags (highest priority)
	if opts.dataDir != "" {
		cfg.DataDir = opts.dataDir
	}
	if opts.profile != "" {
		cfg.Input.Profile = opts.profile
	}
	if opts.portfolio != "" {
		cfg.Input.Portfolio = opts.portfolio
	}
	if opts.transcript != "" {
		cfg.Input.Transcript = opts.transcript
	}
	if opts.database != "" {
		cfg.Output.Database = opts.database
	}
	if opts.workers > 0 {
		cfg.Pipeline.Workers = opts.workers
	}
	if opts.failurePolicy != "" {
		cfg.Pipeline.FailurePolicy = opts.failurePolicy
	}
	if opts.metricsFile != "" {
		cfg.Metrics.Textfile = opts.metricsFile
	}

	return cfg, nil
}
