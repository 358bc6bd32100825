package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/aluiziolira/catalog-scraper/config"
	"github.com/aluiziolira/catalog-scraper/models"
	"github.com/aluiziolira/catalog-scraper/parser"
	"github.com/aluiziolira/catalog-scraper/pipeline"
	"github.com/aluiziolira/catalog-scraper/scraper"
	"github.com/aluiziolira/catalog-scraper/thumbnail"
)

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	logger, level := newLogger(cfg.Verbose)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level.Level())

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	if err := run(cfg); err != nil {
		slog.Error("scraping failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	slog.Info("starting scrape",
		slog.String("base_url", cfg.BaseURL),
		slog.Int("pages", cfg.MaxPages),
		slog.String("format", cfg.OutputFormat),
	)

	metrics := scraper.NewMetrics()
	fetcher := scraper.NewRetryFetcher(scraper.NewCollyFetcher(cfg, metrics), cfg, metrics)

	store, err := thumbnail.NewStore(cfg.ThumbnailDir, fetcher, cfg.ClobberTrackSize)
	if err != nil {
		return fmt.Errorf("initialising thumbnail store: %w", err)
	}

	s, err := scraper.NewScraper(cfg, fetcher, store, metrics)
	if err != nil {
		return fmt.Errorf("initialising scraper: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var metricsServer *http.Server
	if cfg.MetricsAddr != "" {
		metricsServer = &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           newMetricsRouter(metrics),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server failed", slog.Any("error", err))
			}
		}()
		slog.Info("metrics server enabled", slog.String("addr", cfg.MetricsAddr))
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				slog.Error("metrics server shutdown failed", slog.Any("error", err))
			}
		}()
	}

	result, err := s.Run(ctx)
	if err != nil {
		return err
	}
	reportInterruption(result)

	p, err := pipeline.NewPipeline(cfg.OutputFormat, cfg.OutputFile, result.RunID)
	if err != nil {
		return fmt.Errorf("initialising pipeline: %w", err)
	}

	written, err := p.Export(result.Items)
	switch {
	case errors.Is(err, pipeline.ErrNothingToExport):
		fmt.Println("No data to save.")
	case err != nil:
		return fmt.Errorf("export: %w", err)
	}

	printSummary(result, written, cfg.OutputFile, store.Dir())
	return nil
}

func reportInterruption(result *models.ScraperResult) {
	if !result.Interrupted {
		return
	}
	slog.Info("shutdown signal received, saving what was collected",
		slog.Int("items", len(result.Items)),
		slog.Int("pages", result.PageCount),
	)
}

// parseConfig resolves flags over SCRAPER_* environment defaults.
func parseConfig(args []string) (*config.Config, error) {
	cfg := config.DefaultConfig()
	if err := applyEnv(cfg); err != nil {
		return nil, err
	}

	fs := flag.NewFlagSet("scraper", flag.ContinueOnError)
	fs.StringVar(&cfg.BaseURL, "base-url", cfg.BaseURL, "Base URL to crawl")
	fs.IntVar(&cfg.MaxPages, "pages", cfg.MaxPages, "Maximum catalog pages to scrape (0 = until a page fails)")
	fs.BoolVar(&cfg.StopOnEmptyPage, "stop-on-empty", cfg.StopOnEmptyPage, "Stop at the first catalog page without items")
	fs.DurationVar(&cfg.Timeout, "timeout", cfg.Timeout, "Per-request timeout (0 disables)")
	fs.IntVar(&cfg.MaxRetries, "max-retries", cfg.MaxRetries, "Maximum retry attempts per URL")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Initial retry backoff")
	fs.DurationVar(&cfg.RetryBackoffMax, "retry-backoff-max", cfg.RetryBackoffMax, "Maximum retry backoff")
	fs.StringVar(&cfg.OutputFile, "output", cfg.OutputFile, "Output file path")
	fs.StringVar(&cfg.OutputFormat, "format", cfg.OutputFormat, "Output format: csv, json, dual, or sqlite")
	fs.StringVar(&cfg.ThumbnailDir, "thumbnails", cfg.ThumbnailDir, "Directory thumbnails are saved to")
	fs.BoolVar(&cfg.RespectRobotsTxt, "respect-robots", cfg.RespectRobotsTxt, "Respect robots.txt directives")
	fs.StringVar(&cfg.UserAgent, "user-agent", cfg.UserAgent, "User-Agent header sent with every request")
	fs.BoolVar(&cfg.Verbose, "v", cfg.Verbose, "Enable verbose logging")
	fs.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "Prometheus metrics listen address (e.g. :9090)")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	cfg.OutputFormat = strings.ToLower(cfg.OutputFormat)
	return cfg, nil
}

func applyEnv(cfg *config.Config) error {
	strs := map[string]*string{
		"SCRAPER_BASE_URL":     &cfg.BaseURL,
		"SCRAPER_OUTPUT":       &cfg.OutputFile,
		"SCRAPER_FORMAT":       &cfg.OutputFormat,
		"SCRAPER_THUMBNAILS":   &cfg.ThumbnailDir,
		"SCRAPER_USER_AGENT":   &cfg.UserAgent,
		"SCRAPER_METRICS_ADDR": &cfg.MetricsAddr,
	}
	for key, dst := range strs {
		if value, ok := config.EnvString(key); ok {
			*dst = value
		}
	}

	ints := map[string]*int{
		"SCRAPER_PAGES":       &cfg.MaxPages,
		"SCRAPER_MAX_RETRIES": &cfg.MaxRetries,
	}
	for key, dst := range ints {
		value, ok, err := config.EnvInt(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}

	bools := map[string]*bool{
		"SCRAPER_STOP_ON_EMPTY":  &cfg.StopOnEmptyPage,
		"SCRAPER_RESPECT_ROBOTS": &cfg.RespectRobotsTxt,
		"SCRAPER_VERBOSE":        &cfg.Verbose,
	}
	for key, dst := range bools {
		value, ok, err := config.EnvBool(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}

	durations := map[string]*time.Duration{
		"SCRAPER_TIMEOUT":           &cfg.Timeout,
		"SCRAPER_RETRY_BACKOFF":     &cfg.RetryBackoff,
		"SCRAPER_RETRY_BACKOFF_MAX": &cfg.RetryBackoffMax,
	}
	for key, dst := range durations {
		value, ok, err := config.EnvDuration(key)
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		if ok {
			*dst = value
		}
	}
	return nil
}

func printSummary(result *models.ScraperResult, written int, outputFile, thumbnailDir string) {
	separator := "--------------------------------------------------"
	fmt.Println("\n" + separator)
	if result.Interrupted {
		fmt.Println("Scrape interrupted")
	} else {
		fmt.Println("Scrape complete")
	}

	fmt.Printf("  Run ID:        %s\n", result.RunID)
	fmt.Printf("  Pages:         %d\n", result.PageCount)
	fmt.Printf("  Items:         %d of %d seen (%d dropped)\n", len(result.Items), result.ItemsSeen, result.ItemsDropped)
	if avg, ok := averageRating(result.Items); ok {
		fmt.Printf("  Avg rating:    %.2f\n", avg)
	}
	fmt.Printf("  Thumbnails:    %d saved, %d failed (%s)\n", result.ThumbnailsSaved, result.ThumbnailsFailed, thumbnailDir)
	successRate := 0.0
	if result.RequestCount > 0 {
		successRate = float64(result.RequestCount-result.ErrorCount) / float64(result.RequestCount) * 100
	}
	fmt.Printf("  Requests:      %d (%.2f%% ok)\n", result.RequestCount, successRate)
	fmt.Printf("  Retries:       %d\n", result.RetryCount)
	fmt.Printf("  Failed URLs:   %d\n", len(result.FailedURLs))
	if len(result.ErrorsByType) > 0 {
		fmt.Printf("  Error types:   %v\n", result.ErrorsByType)
	}
	duration := result.EndTime.Sub(result.StartTime)
	fmt.Printf("  Duration:      %v\n", duration.Round(time.Millisecond))
	if written > 0 {
		fmt.Printf("  Output file:   %s (%d records)\n", outputFile, written)
	}
	fmt.Println(separator)
}

func averageRating(items []*models.Item) (float64, bool) {
	total, rated := 0, 0
	for _, item := range items {
		if n := parser.RatingToNumeric(item.Rating); n > 0 {
			total += n
			rated++
		}
	}
	if rated == 0 {
		return 0, false
	}
	return float64(total) / float64(rated), true
}

func newLogger(verbose bool) (*slog.Logger, *slog.LevelVar) {
	level := &slog.LevelVar{}
	if verbose {
		level.Set(slog.LevelDebug)
	} else {
		level.Set(slog.LevelInfo)
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if isTerminal(os.Stdout) {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return slog.New(handler), level
}

func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
