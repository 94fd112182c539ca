package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ternarybob/arbor"

	"github.com/alextesy/stocktalk/internal/app"
	"github.com/alextesy/stocktalk/internal/common"
	"github.com/alextesy/stocktalk/internal/models"
)

var (
	configPath  = flag.String("config", "", "Configuration file path (default: ./stocktalk.toml if present)")
	mode        = flag.String("mode", "incremental", "Run mode: incremental, backfill, status, serve")
	source      = flag.String("source", "", "Restrict the run to one source (incremental, backfill, status)")
	fromDate    = flag.String("from", "", "Backfill range start, YYYY-MM-DD (UTC)")
	toDate      = flag.String("to", "", "Backfill range end, YYYY-MM-DD (UTC, inclusive)")
	refresh     = flag.Bool("refresh", false, "Refresh live comment counts in status mode")
	showVersion = flag.Bool("version", false, "Print version information")
)

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Printf("Stocktalk version %s\n", common.GetFullVersion())
		os.Exit(0)
	}

	// Auto-discover the config file when not specified.
	path := *configPath
	if path == "" {
		if _, err := os.Stat("stocktalk.toml"); err == nil {
			path = "stocktalk.toml"
		}
	}

	config, err := common.LoadFromFile(path)
	if err != nil {
		tempLogger := arbor.NewLogger()
		tempLogger.Fatal().Str("path", path).Err(err).Msg("Failed to load configuration")
		os.Exit(1)
	}

	logger := common.InitLogger(config)
	common.PrintBanner(common.GetVersion())

	logger.Info().
		Str("mode", *mode).
		Str("config", path).
		Str("log_level", config.Logging.Level).
		Msg("Application configuration loaded")

	application, err := app.New(config, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize application")
		os.Exit(1)
	}
	defer application.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, application, logger); err != nil {
		logger.Error().Err(err).Msg("Run failed")
		os.Exit(1)
	}
}

func run(ctx context.Context, application *app.App, logger arbor.ILogger) error {
	switch *mode {
	case "incremental":
		summary, err := application.RunIncremental(ctx, *source)
		if summary != nil {
			printSummary(summary)
		}
		return err

	case "backfill":
		from, to, err := parseBackfillRange(*fromDate, *toDate)
		if err != nil {
			return err
		}
		summary, err := application.RunBackfill(ctx, from, to, *source)
		if summary != nil {
			printSummary(summary)
		}
		return err

	case "status":
		reports, err := application.StatusReports(ctx, *source, *refresh)
		if err != nil {
			return err
		}
		for _, report := range reports {
			printStatus(report)
		}
		return nil

	case "serve":
		return application.Serve(ctx)

	default:
		return fmt.Errorf("unknown mode %q (want incremental, backfill, status, or serve)", *mode)
	}
}

func parseBackfillRange(fromStr, toStr string) (time.Time, time.Time, error) {
	if fromStr == "" || toStr == "" {
		return time.Time{}, time.Time{}, fmt.Errorf("backfill mode requires -from and -to dates")
	}
	from, err := time.ParseInLocation("2006-01-02", fromStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -from date %q: %w", fromStr, err)
	}
	to, err := time.ParseInLocation("2006-01-02", toStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid -to date %q: %w", toStr, err)
	}
	return from, to, nil
}

func printSummary(s *models.RunSummary) {
	fmt.Printf("\nRun %s (%s)\n", s.RunID, s.Mode)
	fmt.Printf("  sources:   %d\n", s.Sources)
	fmt.Printf("  threads:   %d (%d skipped)\n", s.ThreadsProcessed, s.ThreadsSkipped)
	fmt.Printf("  items:     %d new / %d extracted (%d failed)\n", s.ItemsNew, s.ItemsTotal, s.ItemsFailed)
	fmt.Printf("  batches:   %d\n", s.BatchesCommitted)
	fmt.Printf("  duration:  %s\n", s.Duration.Round(time.Millisecond))
	for _, e := range s.SourceErrors {
		fmt.Printf("  error:     %s\n", e)
	}
}

func printStatus(r *models.StatusReport) {
	fmt.Printf("\nSource: %s (generated %s)\n", r.Source, r.GeneratedAt.Format(time.RFC3339))
	if r.LastRun != nil {
		fmt.Printf("  last run: %s %s (%d items)", r.LastRun.LastRunAt.Format(time.RFC3339), r.LastRun.Status, r.LastRun.ItemsIngested)
		if r.LastRun.ErrorMessage != "" {
			fmt.Printf(" error: %s", r.LastRun.ErrorMessage)
		}
		fmt.Println()
	}
	for _, t := range r.Threads {
		marker := " "
		if t.IsComplete {
			marker = "*"
		}
		stale := ""
		if t.Stale {
			stale = " (stale)"
		}
		fmt.Printf("  %s [%s] %-60.60s %d/%d%s\n",
			marker, t.ThreadType, t.Title, t.ScrapedItems, t.TotalItems, stale)
	}
}
