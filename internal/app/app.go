package app

import (
	"context"
	"fmt"

	"github.com/timmy/trendplate/internal/config"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/repository"
	"github.com/timmy/trendplate/internal/service"
	"github.com/timmy/trendplate/internal/source"
	"github.com/timmy/trendplate/internal/source/apify"
	"github.com/timmy/trendplate/internal/source/staging"
	"github.com/timmy/trendplate/internal/storage"
	"gorm.io/gorm"
)

// Source names accepted by NewSource.
const (
	SourceApify   = "apify"
	SourceStaging = "staging"
)

// AnalyzerLLM selects the LLM analyzer in analyzer.provider.
const AnalyzerLLM = "llm"

// App holds the wired pipeline shared by the entry points.
type App struct {
	Config    *config.Config
	DB        *gorm.DB
	Jobs      *repository.JobRepository
	Templates *repository.TemplateRepository
	Errors    *repository.ErrorRepository
	Ledger    *service.JobLedger
	Recovery  *service.RecoveryEngine

	// Archive is nil when archiving is disabled or the bucket is unreachable.
	Archive *storage.RawArchive

	// ETL is nil when the video source could not be built.
	ETL *service.ETLService
}

// New opens the database and wires the ledger, recovery engine and ETL coordinator.
// Parameters:
//   - ctx: context used for storage setup.
//   - cfg: loaded configuration.
//   - sourceName: apify or staging.
//   - log: application logger.
//
// Returns:
//   - *App: wired components; ETL is nil if the source is unavailable.
//   - error: non-nil if the database cannot be opened.
func New(ctx context.Context, cfg *config.Config, sourceName string, log *logger.Logger) (*App, error) {
	db, err := repository.InitDB(&cfg.Database)
	if err != nil {
		return nil, err
	}

	a := &App{
		Config:    cfg,
		DB:        db,
		Jobs:      repository.NewJobRepository(db),
		Templates: repository.NewTemplateRepository(db),
		Errors:    repository.NewErrorRepository(db),
	}
	a.Ledger = service.NewJobLedger(a.Jobs, log)
	a.Recovery = service.NewRecoveryEngine(a.Errors, a.Ledger, log)

	if cfg.Archive.Enabled {
		raw, err := newArchive(ctx, cfg)
		if err != nil {
			log.WithError(err).Warn("Raw archive unavailable, continuing without it")
		} else {
			a.Archive = raw
		}
	}

	src, err := NewSource(cfg, sourceName)
	if err != nil {
		log.WithError(err).WithField("source", sourceName).Warn("Video source unavailable, ETL runs disabled")
		return a, nil
	}

	var archive service.Archiver
	if a.Archive != nil {
		archive = a.Archive
	}

	a.ETL = service.NewETLService(
		src,
		NewAnalyzer(cfg),
		a.Templates,
		a.Ledger,
		a.Recovery,
		archive,
		log,
		ETLConfig(cfg),
	)
	return a, nil
}

// NewSource builds the named video source.
func NewSource(cfg *config.Config, name string) (source.VideoSource, error) {
	switch name {
	case SourceApify, "":
		return apify.NewAdapter(&apify.Config{
			Token:   cfg.Apify.Token,
			BaseURL: cfg.Apify.BaseURL,
			ActorID: cfg.Apify.ActorID,
			Timeout: cfg.Apify.Timeout,
			Region:  cfg.Apify.Region,
		})
	case SourceStaging:
		return staging.NewAdapter(cfg.Staging.Path), nil
	default:
		return nil, fmt.Errorf("unknown source %q", name)
	}
}

// NewAnalyzer builds the configured content analyzer. An llm provider without
// an API key falls back to the rule analyzer.
func NewAnalyzer(cfg *config.Config) service.ContentAnalyzer {
	if cfg.Analyzer.Provider == AnalyzerLLM && cfg.Analyzer.APIKey != "" {
		return service.NewLLMAnalyzer(&service.LLMConfig{
			Model:      cfg.Analyzer.Model,
			APIKey:     cfg.Analyzer.APIKey,
			BaseURL:    cfg.Analyzer.BaseURL,
			Timeout:    cfg.Analyzer.Timeout,
			Categories: cfg.ETL.Categories,
		})
	}
	return service.NewRuleAnalyzer()
}

// ETLConfig maps the etl config section onto coordinator settings.
func ETLConfig(cfg *config.Config) *service.ETLConfig {
	return &service.ETLConfig{
		Recovery: service.RecoveryOptions{
			MaxRetries:         cfg.ETL.MaxRetries,
			RetryDelay:         cfg.ETL.RetryDelay,
			ExponentialBackoff: cfg.ETL.ExponentialBackoff,
			SkipFailedItems:    cfg.ETL.SkipFailedItems,
		},
		Eligibility: service.EligibilityConfig{
			MinViews: cfg.ETL.MinViews,
			MinLikes: cfg.ETL.MinLikes,
		},
		HotTrendsLimit:    cfg.ETL.HotTrendsLimit,
		CategoryLimit:     cfg.ETL.CategoryLimit,
		StatsRefreshLimit: cfg.ETL.StatsRefreshLimit,
		Categories:        cfg.ETL.Categories,
		Region:            cfg.Apify.Region,
	}
}

func newArchive(ctx context.Context, cfg *config.Config) (*storage.RawArchive, error) {
	return storage.OpenArchive(ctx, &storage.S3Config{
		Type:      storage.StorageType(cfg.Storage.Type),
		Endpoint:  cfg.Storage.Endpoint,
		AccessKey: cfg.Storage.AccessKey,
		SecretKey: cfg.Storage.SecretKey,
		UseSSL:    cfg.Storage.UseSSL,
		Bucket:    cfg.Storage.Bucket,
		Region:    cfg.Storage.Region,
	}, cfg.Archive.Prefix)
}

// Close releases the database connection.
func (a *App) Close() error {
	sqlDB, err := a.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
