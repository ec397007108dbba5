// Command estatehub-seed wipes the marketplace store and loads a snapshot
// into it in dependency order.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"estatehub/internal/config"
	"estatehub/internal/core"
	"estatehub/internal/logger"
	"estatehub/internal/seed"
)

// exitFatal is the process status for fatal seed conditions.
const exitFatal = 1

type rootOptions struct {
	configPath  string
	concurrency int
	dryRun      bool
	reportJSON  string
	metricsFile string
	traceJSON   string
	jsonLogs    bool
	logLevel    string
	storage     string
	sqlitePath  string
	snapshotDir string

	cfg config.Config
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd(os.Stdout).ExecuteContext(ctx)
	stop()
	logger.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "estatehub-seed: %v\n", err)
		os.Exit(exitFatal)
	}
}

func newRootCmd(stdout io.Writer) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "estatehub-seed",
		Short: "Seed the marketplace store from a snapshot",
		Long: `Wipes the target store and loads a marketplace snapshot into it.

Entity batches (Tier, Region, SubRegion, Account, Listing, ListingMedia,
Conversation, Message, Favorite) load in dependency order. Records that fail
are skipped and reported; the command exits non-zero only when the run could
not complete (bad configuration, lost store connection, interruption).

Examples:
  estatehub-seed                          # seed ./estatehub.db from ./seed-data
  estatehub-seed --dry-run                # transform everything, write nothing
  estatehub-seed --report-json seed.json  # also write the structured report
  estatehub-seed tier owner@example.com   # print an account's current tier`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runSeed(cmd.Context(), opts, stdout)
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "seed.yaml", "YAML configuration file (optional)")
	pf.BoolVar(&opts.jsonLogs, "json-logs", false, "emit JSON logs on stderr")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	pf.StringVar(&opts.storage, "storage", "", "target store driver (memory, sqlite, postgres)")
	pf.StringVar(&opts.sqlitePath, "sqlite-path", "", "sqlite database file")

	f := cmd.Flags()
	f.IntVar(&opts.concurrency, "concurrency", 0, "records inserted in parallel per entity type")
	f.BoolVar(&opts.dryRun, "dry-run", false, "transform every batch into a scratch store; the target is not opened")
	f.StringVar(&opts.reportJSON, "report-json", "", "write the run report as JSON to this file")
	f.StringVar(&opts.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file after the run")
	f.StringVar(&opts.traceJSON, "trace-json", "", "write one JSON line per loader phase to this file")
	f.StringVar(&opts.snapshotDir, "snapshot-dir", "", "directory holding <Entity>.json batches")

	cmd.AddCommand(newTierCmd(opts, stdout))
	return cmd
}

// load reads the config file and environment, then applies explicit flags.
func (o *rootOptions) load(cmd *cobra.Command) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.Storage.Driver = o.storage
	}
	if flags.Changed("sqlite-path") {
		cfg.Storage.SQLitePath = o.sqlitePath
	}
	if flags.Changed("snapshot-dir") {
		cfg.Snapshot.Driver = config.SnapshotFilesystem
		cfg.Snapshot.Dir = o.snapshotDir
	}
	if flags.Changed("concurrency") {
		cfg.Seed.Concurrency = o.concurrency
	}
	if flags.Changed("json-logs") {
		cfg.Logging.JSON = o.jsonLogs
	}
	if flags.Changed("log-level") {
		cfg.Logging.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if err := logger.Initialize(cfg.Logging.JSON, cfg.Logging.Level); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	o.cfg = cfg
	return nil
}

func runSeed(ctx context.Context, opts *rootOptions, stdout io.Writer) error {
	log := logger.Named("cmd")
	metrics := core.NewPrometheusRecorder()
	svcOpts := []core.ServiceOption{
		core.WithMetrics(metrics),
		core.WithProgress(stdout),
	}
	if opts.traceJSON != "" {
		f, err := os.Create(opts.traceJSON)
		if err != nil {
			return fmt.Errorf("create trace file: %w", err)
		}
		defer f.Close()
		svcOpts = append(svcOpts, core.WithTracer(core.NewJSONTracer(f)))
	}

	svc := core.NewService(opts.cfg, svcOpts...)
	defer func() {
		if err := svc.Close(); err != nil {
			log.Warnw("close target store", "error", err)
		}
	}()

	run := svc.Seed
	if opts.dryRun {
		run = svc.DryRun
	}
	report, runErr := run(ctx)

	if err := report.Print(stdout); err != nil {
		log.Warnw("print summary", "error", err)
	}
	if opts.reportJSON != "" {
		if err := writeReport(opts.reportJSON, report); err != nil {
			log.Errorw("write report", "path", opts.reportJSON, "error", err)
		}
	}
	if opts.metricsFile != "" {
		if err := metrics.WriteToTextfile(opts.metricsFile); err != nil {
			log.Errorw("write metrics", "path", opts.metricsFile, "error", err)
		}
	}
	if runErr != nil {
		return fmt.Errorf("%s: %w", seed.Classify(runErr), runErr)
	}
	return nil
}

func writeReport(path string, report *seed.Report) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := report.WriteJSON(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func newTierCmd(opts *rootOptions, stdout io.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "tier <account-email>",
		Short: "Print the current subscription tier of an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc := core.NewService(opts.cfg)
			defer svc.Close()
			tier, found, err := svc.Tier(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case !found:
				return fmt.Errorf("account %s not found", args[0])
			case tier == "":
				fmt.Fprintln(stdout, "(none)")
			default:
				fmt.Fprintln(stdout, tier)
			}
			return nil
		},
	}
}
