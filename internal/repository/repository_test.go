package repository

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/trendplate/internal/config"
	"github.com/timmy/trendplate/internal/domain"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := InitDB(&config.DatabaseConfig{
		Driver:      "sqlite",
		Path:        filepath.Join(t.TempDir(), "test.db"),
		AutoMigrate: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return db
}

func testVideo(id string, views int64) *domain.VideoItem {
	return &domain.VideoItem{
		ID:          id,
		Text:        "Easy pasta in 5 minutes #food",
		AuthorMeta:  domain.AuthorMeta{Name: "chef"},
		Hashtags:    []domain.Hashtag{{Name: "food"}},
		PlayCount:   views,
		DiggCount:   100,
		WebVideoURL: "https://www.tiktok.com/@chef/video/" + id,
	}
}

func TestTemplateRepository_UpsertKeepsID(t *testing.T) {
	ctx := context.Background()
	repo := NewTemplateRepository(newTestDB(t))

	sections := []domain.TemplateSection{{Type: domain.SectionHook, Content: "Easy pasta in 5 minutes"}}
	first, err := repo.CreateTemplate(ctx, testVideo("v1", 1000), sections, "food")
	require.NoError(t, err)
	assert.Equal(t, "Easy pasta in 5 minutes", first.Title)

	second, err := repo.CreateTemplate(ctx, testVideo("v1", 5000), sections, "food")
	require.NoError(t, err)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, int64(5000), second.Views)

	all, err := repo.GetAllTemplates(ctx, 0)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, []string{"food"}, []string(all[0].Hashtags))
	require.Len(t, all[0].Sections, 1)
	assert.Equal(t, domain.SectionHook, all[0].Sections[0].Type)
}

func TestTemplateRepository_UpdateStats(t *testing.T) {
	ctx := context.Background()
	repo := NewTemplateRepository(newTestDB(t))

	tpl, err := repo.CreateTemplate(ctx, testVideo("v1", 1000), nil, "food")
	require.NoError(t, err)

	require.NoError(t, repo.UpdateStats(ctx, tpl.ID, domain.TemplateStats{Views: 42, Likes: 7}))
	stored, err := repo.GetByID(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(42), stored.Views)
	assert.Equal(t, int64(7), stored.Likes)

	err = repo.UpdateStats(ctx, "missing", domain.TemplateStats{})
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrTemplateNotFound)
}

func TestTemplateRepository_GetAllTemplatesLimit(t *testing.T) {
	ctx := context.Background()
	repo := NewTemplateRepository(newTestDB(t))
	for _, id := range []string{"a", "b", "c"} {
		_, err := repo.CreateTemplate(ctx, testVideo(id, 1000), nil, "food")
		require.NoError(t, err)
	}

	limited, err := repo.GetAllTemplates(ctx, 2)
	require.NoError(t, err)
	assert.Len(t, limited, 2)
}

func TestJobRepository_ListFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))
	base := time.Now().Add(-time.Hour)

	jobs := []domain.Job{
		{ID: uuid.NewString(), Name: "old", Type: domain.JobTypeHotTrends, Status: domain.JobStatusCompleted, StartTime: base},
		{ID: uuid.NewString(), Name: "mid", Type: domain.JobTypeCategory, Status: domain.JobStatusFailed, StartTime: base.Add(time.Minute)},
		{ID: uuid.NewString(), Name: "new", Type: domain.JobTypeHotTrends, Status: domain.JobStatusRunning, StartTime: base.Add(2 * time.Minute)},
	}
	for i := range jobs {
		require.NoError(t, repo.Create(ctx, &jobs[i]))
	}

	all, err := repo.List(ctx, JobFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "new", all[0].Name)
	assert.Equal(t, "old", all[2].Name)

	hot, err := repo.List(ctx, JobFilter{Type: domain.JobTypeHotTrends})
	require.NoError(t, err)
	assert.Len(t, hot, 2)

	failed, err := repo.List(ctx, JobFilter{Status: domain.JobStatusFailed})
	require.NoError(t, err)
	require.Len(t, failed, 1)
	assert.Equal(t, "mid", failed[0].Name)

	one, err := repo.List(ctx, JobFilter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, one, 1)
}

func TestJobRepository_SaveRoundTripsResult(t *testing.T) {
	ctx := context.Background()
	repo := NewJobRepository(newTestDB(t))

	job := &domain.Job{
		ID:         uuid.NewString(),
		Name:       "hot trends",
		Type:       domain.JobTypeHotTrends,
		Status:     domain.JobStatusRunning,
		StartTime:  time.Now(),
		Parameters: domain.JobParameters{"limit": 50},
	}
	require.NoError(t, repo.Create(ctx, job))

	job.Status = domain.JobStatusCompleted
	job.Result = domain.JobResult{Processed: 3, Templates: 2, Skipped: 1}
	require.NoError(t, repo.Save(ctx, job))

	stored, err := repo.GetByID(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, stored.Status)
	assert.Equal(t, job.Result, stored.Result)
	assert.EqualValues(t, 50, stored.Parameters["limit"])

	_, err = repo.GetByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestErrorRepository_ListsByJob(t *testing.T) {
	ctx := context.Background()
	repo := NewErrorRepository(newTestDB(t))
	now := time.Now()

	require.NoError(t, repo.SaveError(ctx, &domain.ErrorLog{
		ID: uuid.NewString(), JobID: "job-1", Phase: domain.PhaseExtraction,
		ErrorType: domain.ErrorTypeTimeout, Message: "slow", CreatedAt: now,
	}))
	require.NoError(t, repo.SaveError(ctx, &domain.ErrorLog{
		ID: uuid.NewString(), JobID: "job-2", Phase: domain.PhaseLoading,
		ErrorType: domain.ErrorTypeLoad, Message: "other job", CreatedAt: now,
	}))
	require.NoError(t, repo.SaveRecoveryAction(ctx, &domain.RecoveryAction{
		ID: uuid.NewString(), JobID: "job-1", Strategy: domain.StrategyCheckpoint, ItemID: "v7",
		CheckpointData: &domain.Checkpoint{Phase: domain.PhaseLoading, LastProcessedIndex: 7, ProcessedCount: 7},
		Error:          "disk full", Timestamp: now,
	}))

	entries, err := repo.ListErrorsByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, domain.ErrorTypeTimeout, entries[0].ErrorType)

	actions, err := repo.ListRecoveryActionsByJob(ctx, "job-1")
	require.NoError(t, err)
	require.Len(t, actions, 1)
	require.NotNil(t, actions[0].CheckpointData)
	assert.Equal(t, 7, actions[0].CheckpointData.LastProcessedIndex)

	none, err := repo.ListRecoveryActionsByJob(ctx, "job-2")
	require.NoError(t, err)
	assert.Empty(t, none)
}
