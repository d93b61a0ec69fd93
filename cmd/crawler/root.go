package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/wayworm/hacker-news-data/internal/config"
	"github.com/wayworm/hacker-news-data/internal/coordinator"
	"github.com/wayworm/hacker-news-data/internal/logging"
)

// crawlFlags mirrors config.Config's tunables as cobra flags, bound onto
// viper so flags take precedence over env vars and the config file.
type crawlFlags struct {
	databaseURL        string
	numWorkers         int
	chunkSize          int
	staleTimeout       string
	concurrentRequests int
	requestTimeout     string
	batchSize          int
	pollInterval       string
	reset              bool
	upstreamBaseURL    string
	logLevel           string
	logFile            string
}

func (f *crawlFlags) register(cmd *cobra.Command) {
	flags := cmd.Flags()
	flags.StringVar(&f.databaseURL, "database-url", "", "Postgres connection string")
	flags.IntVar(&f.numWorkers, "num-workers", 0, "number of concurrent workers")
	flags.IntVar(&f.chunkSize, "chunk-size", 0, "IDs per job chunk")
	flags.StringVar(&f.staleTimeout, "stale-timeout", "", "in_progress age before a chunk is reclaimed")
	flags.IntVar(&f.concurrentRequests, "concurrent-requests", 0, "in-flight HTTP requests per worker")
	flags.StringVar(&f.requestTimeout, "request-timeout", "", "per-item HTTP request timeout")
	flags.IntVar(&f.batchSize, "batch-size", 0, "items accumulated before a store flush")
	flags.StringVar(&f.pollInterval, "poll-interval", "", "progress monitor tick interval")
	flags.BoolVar(&f.reset, "reset", false, "drop and recreate the schema before crawling")
	flags.StringVar(&f.upstreamBaseURL, "upstream-base-url", "", "root URL of the item API")
	flags.StringVar(&f.logLevel, "log-level", "", "debug|info|warn|error")
	flags.StringVar(&f.logFile, "log-file", "", "rotated log file path (stderr if unset)")
}

// bindFlags wires any flag the operator actually set onto viper, so it
// overrides the env var / config file value Initialize already loaded.
func (f *crawlFlags) bindFlags(cmd *cobra.Command) {
	v := config.Viper()
	bindings := map[string]string{
		"database-url":        f.databaseURL,
		"stale-timeout":       f.staleTimeout,
		"request-timeout":     f.requestTimeout,
		"poll-interval":       f.pollInterval,
		"upstream-base-url":   f.upstreamBaseURL,
		"log-level":           f.logLevel,
		"log-file":            f.logFile,
	}
	for key, val := range bindings {
		if cmd.Flags().Changed(key) {
			v.Set(key, val)
		}
	}

	intBindings := map[string]int{
		"num-workers":         f.numWorkers,
		"chunk-size":          f.chunkSize,
		"concurrent-requests": f.concurrentRequests,
		"batch-size":          f.batchSize,
	}
	for key, val := range intBindings {
		if cmd.Flags().Changed(key) {
			v.Set(key, val)
		}
	}

	if cmd.Flags().Changed("reset") {
		v.Set("reset", f.reset)
	}
}

func runCrawl(cmd *cobra.Command, flags crawlFlags) error {
	if err := config.Initialize(); err != nil {
		return fmt.Errorf("crawler: load configuration: %w", err)
	}
	flags.bindFlags(cmd)
	cfg := config.Load()

	logger := logging.New(cfg.LogLevel, cfg.LogFile)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	coord, err := coordinator.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("crawler: %w", err)
	}
	defer coord.Close()

	logger.Info("starting crawl",
		"num_workers", cfg.NumWorkers,
		"chunk_size", cfg.ChunkSize,
		"upstream", cfg.UpstreamBaseURL,
	)

	if err := coord.Run(ctx); err != nil {
		return fmt.Errorf("crawler: %w", err)
	}

	logger.Info("crawl finished")
	return nil
}
