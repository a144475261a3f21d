package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/timmy/trendplate/internal/app"
	"github.com/timmy/trendplate/internal/config"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/service"
)

func main() {
	// Initialize logger first, configured from LOG_* env vars
	appLogger := logger.New(logger.LoadFromEnv("trendplate-etl"))
	logger.SetDefaultLogger(appLogger)
	defer logger.Sync()

	// Parse command line flags
	jobName := flag.String("job", string(domain.JobTypeHotTrends), "Job to run: hot-trends, category or stats-refresh")
	categories := flag.String("categories", "", "Comma-separated categories for the category job")
	limit := flag.Int("limit", 0, "Maximum videos per extraction (0 uses the configured limit)")
	region := flag.String("region", "", "Region for hot-trends (empty uses the configured region)")
	sourceName := flag.String("source", "", "Video source: apify or staging (empty uses etl.source)")
	configPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	jobType, ok := domain.ParseJobType(*jobName)
	if !ok {
		appLogger.WithField("job", *jobName).Fatal("Unknown job type")
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to load config")
	}
	if *sourceName == "" {
		*sourceName = cfg.ETL.Source
	}

	appLogger.WithFields(logger.Fields{
		logger.FieldJobType: string(jobType),
		"source":            *sourceName,
		"limit":             *limit,
	}).Info("Starting ETL run")

	// Cancel the run on interrupt; the job is still closed out in the ledger
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		appLogger.Info("Received shutdown signal, cancelling run...")
		cancel()
	}()

	components, err := app.New(ctx, cfg, *sourceName, appLogger)
	if err != nil {
		appLogger.WithError(err).Fatal("Failed to initialize application")
	}
	defer components.Close()

	if components.ETL == nil {
		appLogger.WithField("source", *sourceName).Fatal("Video source unavailable")
	}

	var summary *service.RunSummary
	switch jobType {
	case domain.JobTypeHotTrends:
		summary, err = components.ETL.RunHotTrends(ctx, service.HotTrendsParams{Limit: *limit, Region: *region})
	case domain.JobTypeCategory:
		summary, err = components.ETL.RunCategories(ctx, service.CategoryParams{
			Categories: splitList(*categories),
			Limit:      *limit,
		})
	default:
		summary, err = components.ETL.RunStatsRefresh(ctx, service.StatsRefreshParams{Limit: *limit})
	}

	if summary != nil {
		logSummary(appLogger, summary)
	}
	if err != nil {
		appLogger.WithError(err).Error("ETL run failed")
		components.Close()
		logger.Sync()
		os.Exit(1)
	}
}

func logSummary(log *logger.Logger, s *service.RunSummary) {
	log.WithFields(logger.Fields{
		logger.FieldJobID:      s.JobID,
		logger.FieldJobType:    string(s.JobType),
		logger.FieldStatus:     string(s.Status),
		logger.FieldDurationMs: s.Duration.Milliseconds(),
		"total":                s.Result.Total,
		"success":              s.Result.Success,
		"failed":               s.Result.Failed,
		"skipped":              s.Result.Skipped,
	}).Info("ETL run finished")

	for _, c := range s.Categories {
		entry := log.WithFields(logger.Fields{
			logger.FieldCategory: c.Category,
			"success":            c.Success,
			"failed":             c.Failed,
			"skipped":            c.Skipped,
		})
		if c.Error != "" {
			entry.WithField("error", c.Error).Warn("Category failed")
			continue
		}
		entry.Info("Category finished")
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
