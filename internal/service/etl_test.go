package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/trendplate/internal/domain"
)

type etlHarness struct {
	svc       *ETLService
	source    *fakeSource
	analyzer  *fakeAnalyzer
	templates *memTemplateStore
	jobs      *memJobStore
	errors    *memErrorStore
	sleeps    *sleepRecorder
	archive   *recordingArchive
}

func newETLHarness(t *testing.T) *etlHarness {
	t.Helper()
	h := &etlHarness{
		source:    &fakeSource{categories: map[string][]domain.VideoItem{}, categoryErrs: map[string]error{}},
		analyzer:  &fakeAnalyzer{},
		templates: newMemTemplateStore(),
		jobs:      newMemJobStore(),
		errors:    &memErrorStore{},
		archive:   &recordingArchive{},
	}
	ledger := NewJobLedger(h.jobs, nil)
	engine, rec := newTestEngine(h.errors, ledger)
	h.sleeps = rec

	h.svc = NewETLService(h.source, h.analyzer, h.templates, ledger, engine, h.archive, nil, &ETLConfig{
		Recovery:          DefaultRecoveryOptions(),
		Eligibility:       testEligibility,
		HotTrendsLimit:    50,
		CategoryLimit:     20,
		StatsRefreshLimit: 100,
		Categories:        []string{"dance"},
	})
	return h
}

func batch(prefix string, n int) []domain.VideoItem {
	items := make([]domain.VideoItem, 0, n)
	for i := 0; i < n; i++ {
		items = append(items, eligibleItem(fmt.Sprintf("%s%d", prefix, i)))
	}
	return items
}

func TestRunHotTrends_Completes(t *testing.T) {
	h := newETLHarness(t)
	h.source.trending = batch("t", 4)

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 4, summary.Result.Success)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.Result.Processed)
	assert.Equal(t, 4, job.Result.Templates)
	assert.NotNil(t, job.EndTime)
	assert.NotNil(t, job.DurationMs)
	assert.Equal(t, []string{"raw/hot-trends/" + job.ID + ".json"}, h.archive.keys)
}

func TestRunHotTrends_EmptyExtractionCompletes(t *testing.T) {
	h := newETLHarness(t)

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 0, job.Result.Processed)
	assert.Equal(t, 0, job.Result.Failed)
	assert.Equal(t, 0, job.Result.Templates)
	assert.Empty(t, job.Error)
	assert.Empty(t, h.archive.keys)
}

func TestRunHotTrends_RetriesTransientExtraction(t *testing.T) {
	h := newETLHarness(t)
	connErr := domain.NewETLError(domain.ErrorTypeConnection, "connection reset", nil)
	h.source.trendingErrs = []error{connErr, connErr}
	h.source.trending = batch("t", 2)

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 3, h.source.trendingCalls)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second}, h.sleeps.delays)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Empty(t, job.Error)
	assert.Equal(t, 2, job.Result.Templates)
}

func TestRunHotTrends_UnrecoverableExtractionFailsJob(t *testing.T) {
	h := newETLHarness(t)
	h.source.trendingErrs = []error{domain.NewETLError(domain.ErrorTypeAuthentication, "token expired", nil)}

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.Error(t, err)
	require.NotNil(t, summary)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, 0, summary.Result.Total)
	assert.Equal(t, 1, h.source.trendingCalls)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Contains(t, job.Error, "token expired")
	assert.NotNil(t, job.EndTime)
}

func TestRunHotTrends_SystemicItemErrorFailsWithPartialResult(t *testing.T) {
	h := newETLHarness(t)
	h.source.trending = batch("t", 3)
	h.analyzer.analyzeErrs = map[string]error{
		"t1": domain.NewETLError(domain.ErrorTypeAuthentication, "analyzer key revoked", nil),
	}

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.Error(t, err)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.Equal(t, 2, job.Result.Processed)
	assert.Equal(t, 1, job.Result.Failed)
	assert.Equal(t, 1, job.Result.Templates)
}

func TestRunCategories_IsolatesFailingCategory(t *testing.T) {
	h := newETLHarness(t)
	h.source.categoryErrs["a"] = domain.NewETLError(domain.ErrorTypeAuthentication, "forbidden region", nil)
	h.source.categories["b"] = batch("b", 3)
	h.source.categories["b"][0].DiggCount = 0

	summary, err := h.svc.RunCategories(testContext(), CategoryParams{Categories: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	require.Len(t, summary.Categories, 2)

	a := summary.Categories[0]
	assert.Equal(t, "a", a.Category)
	assert.NotEmpty(t, a.Error)
	assert.Equal(t, 0, a.Success)
	assert.Equal(t, 1, a.Failed)
	assert.Equal(t, 0, a.Skipped)

	b := summary.Categories[1]
	assert.Empty(t, b.Error)
	assert.Equal(t, 2, b.Success)
	assert.Equal(t, 1, b.Skipped)

	assert.Equal(t, a.Success+b.Success, summary.Result.Success)
	assert.Equal(t, a.Failed+b.Failed, summary.Result.Failed)
	assert.Equal(t, a.Skipped+b.Skipped, summary.Result.Skipped)
	assertCountsAddUp(t, &summary.Result)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusCompleted, job.Status)
	assert.Equal(t, 4, job.Result.Processed)
	assert.Equal(t, 2, job.Result.Templates)
}

func TestRunCategories_VideoInTwoCategoriesCountsOnce(t *testing.T) {
	h := newETLHarness(t)
	h.source.categories["a"] = []domain.VideoItem{eligibleItem("x0"), eligibleItem("shared")}
	h.source.categories["b"] = []domain.VideoItem{eligibleItem("shared"), eligibleItem("x1")}

	summary, err := h.svc.RunCategories(testContext(), CategoryParams{Categories: []string{"a", "b"}})
	require.NoError(t, err)
	assert.Equal(t, 4, summary.Result.Total)
	assert.Equal(t, 3, summary.Result.Success)
	assert.Equal(t, 1, summary.Result.Skipped)
	assert.Equal(t, []string{"tpl-x0", "tpl-shared", "tpl-x1"}, summary.Result.Templates)
	assert.Equal(t, 1, h.templates.createCalls["shared"])
	assertCountsAddUp(t, &summary.Result)

	require.Len(t, summary.Categories, 2)
	assert.Equal(t, 1, summary.Categories[1].Skipped)
	assert.Equal(t, 3, h.jobs.only().Result.Templates)
}

func TestRunCategories_AbortedCategoryKeepsSiblings(t *testing.T) {
	h := newETLHarness(t)
	h.source.categories["a"] = batch("a", 2)
	h.source.categories["b"] = batch("b", 2)
	h.analyzer.analyzeErrs = map[string]error{
		"a0": domain.NewETLError(domain.ErrorTypePermission, "denied", nil),
	}

	summary, err := h.svc.RunCategories(testContext(), CategoryParams{Categories: []string{"a", "b"}})
	require.NoError(t, err)
	assert.NotEmpty(t, summary.Categories[0].Error)
	assert.Equal(t, 1, summary.Categories[0].Failed)
	assert.Equal(t, 2, summary.Categories[1].Success)
	assert.Equal(t, domain.JobStatusCompleted, h.jobs.only().Status)
}

func TestRunCategories_DefaultsToConfiguredCategories(t *testing.T) {
	h := newETLHarness(t)
	h.source.categories["dance"] = batch("d", 1)

	summary, err := h.svc.RunCategories(testContext(), CategoryParams{})
	require.NoError(t, err)
	require.Len(t, summary.Categories, 1)
	assert.Equal(t, "dance", summary.Categories[0].Category)
	assert.Equal(t, 1, summary.Result.Success)
}

func TestRunStatsRefresh(t *testing.T) {
	h := newETLHarness(t)
	ctx := testContext()

	for _, item := range batch("s", 4) {
		item := item
		_, err := h.templates.CreateTemplate(ctx, &item, nil, "general")
		require.NoError(t, err)
	}
	h.source.byURL = map[string]*domain.VideoItem{}
	h.source.urlErrs = map[string]error{}

	fresh := eligibleItem("s0")
	fresh.PlayCount = 999999
	h.source.byURL[fresh.WebVideoURL] = &fresh
	fresh3 := eligibleItem("s3")
	h.source.byURL[fresh3.WebVideoURL] = &fresh3
	// s1 is gone from the source; s2 re-scrape keeps timing out
	h.source.urlErrs[eligibleItem("s2").WebVideoURL] = domain.NewETLError(domain.ErrorTypeTimeout, "slow", nil)
	h.templates.updateErrs["tpl-s3"] = errors.New("row locked")

	summary, err := h.svc.RunStatsRefresh(ctx, StatsRefreshParams{})
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, summary.Status)
	assert.Equal(t, 4, summary.Result.Total)
	assert.Equal(t, 1, summary.Result.Success)
	assert.Equal(t, 1, summary.Result.Skipped)
	assert.Equal(t, 2, summary.Result.Failed)
	assert.Equal(t, []string{"tpl-s0"}, summary.Result.Templates)
	assert.Equal(t, int64(999999), h.templates.templates["tpl-s0"].Views)
	assert.Len(t, h.sleeps.delays, 3)
}

func TestRunStatsRefresh_TemplateListFailureFailsJob(t *testing.T) {
	h := newETLHarness(t)
	h.templates.listErrs = []error{
		domain.NewETLError(domain.ErrorTypePermission, "read denied", nil),
	}

	summary, err := h.svc.RunStatsRefresh(testContext(), StatsRefreshParams{})
	require.Error(t, err)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, domain.JobStatusFailed, h.jobs.only().Status)
}

func TestRunJob_PanicFailsJob(t *testing.T) {
	h := newETLHarness(t)
	h.svc.source = nil

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.Error(t, err)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)
	assert.Equal(t, domain.JobStatusFailed, h.jobs.only().Status)
}

func TestRunHotTrends_ArchiveFailureIsIgnored(t *testing.T) {
	h := newETLHarness(t)
	h.source.trending = batch("t", 1)
	h.archive.err = errors.New("bucket missing")

	summary, err := h.svc.RunHotTrends(testContext(), HotTrendsParams{})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Result.Success)
}

func TestRunHotTrends_CancelledRunStillFailsJob(t *testing.T) {
	h := newETLHarness(t)
	h.source.trending = batch("t", 2)

	ctx, cancel := context.WithCancel(testContext())
	defer cancel()
	h.source.onTrending = cancel

	summary, err := h.svc.RunHotTrends(ctx, HotTrendsParams{})
	require.Error(t, err)
	assert.Equal(t, domain.JobStatusFailed, summary.Status)

	job := h.jobs.only()
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.NotNil(t, job.EndTime)
	assert.NotEmpty(t, job.Error)
}
