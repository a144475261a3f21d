package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/logger"
	"github.com/timmy/trendplate/internal/repository"
	"github.com/timmy/trendplate/internal/source"
)

var errStoreDown = errors.New("store unavailable")

func testContext() context.Context {
	return logger.NewDiscard().WithContext(context.Background())
}

// memErrorStore is an in-memory ErrorStore.
type memErrorStore struct {
	mu        sync.Mutex
	errors    []domain.ErrorLog
	actions   []domain.RecoveryAction
	failSave  bool
	failList  bool
	panicSave bool
}

func (s *memErrorStore) SaveError(ctx context.Context, entry *domain.ErrorLog) error {
	if s.panicSave {
		panic("boom")
	}
	if s.failSave {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errors = append(s.errors, *entry)
	return nil
}

func (s *memErrorStore) ListErrorsByJob(ctx context.Context, jobID string) ([]domain.ErrorLog, error) {
	if s.failList {
		return nil, errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ErrorLog
	for _, e := range s.errors {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

func (s *memErrorStore) SaveRecoveryAction(ctx context.Context, action *domain.RecoveryAction) error {
	if s.failSave {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.actions = append(s.actions, *action)
	return nil
}

func (s *memErrorStore) strategies() []domain.Strategy {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]domain.Strategy, 0, len(s.actions))
	for _, a := range s.actions {
		out = append(out, a.Strategy)
	}
	return out
}

// memJobStore is an in-memory JobStore.
type memJobStore struct {
	mu       sync.Mutex
	jobs     map[string]domain.Job
	failSave bool
}

func newMemJobStore() *memJobStore {
	return &memJobStore{jobs: make(map[string]domain.Job)}
}

func (s *memJobStore) Create(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) Save(ctx context.Context, job *domain.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.failSave {
		return errStoreDown
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = *job
	return nil
}

func (s *memJobStore) GetByID(ctx context.Context, id string) (*domain.Job, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	job, ok := s.jobs[id]
	if !ok {
		return nil, repository.ErrJobNotFound
	}
	return &job, nil
}

func (s *memJobStore) List(ctx context.Context, filter repository.JobFilter) ([]domain.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Job
	for _, job := range s.jobs {
		if filter.Status != "" && job.Status != filter.Status {
			continue
		}
		if filter.Type != "" && job.Type != filter.Type {
			continue
		}
		out = append(out, job)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *memJobStore) only() domain.Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, job := range s.jobs {
		return job
	}
	return domain.Job{}
}

// fakeSource is a scripted source.VideoSource. Each call pops the next
// scripted error before returning the configured items.
type fakeSource struct {
	mu            sync.Mutex
	trending      []domain.VideoItem
	trendingErrs  []error
	trendingCalls int
	onTrending    func()
	categories    map[string][]domain.VideoItem
	categoryErrs  map[string]error
	byURL         map[string]*domain.VideoItem
	urlErrs       map[string]error
}

func (f *fakeSource) Name() string { return "fake" }

func (f *fakeSource) ScrapeTrending(ctx context.Context, opts source.TrendingOptions) ([]domain.VideoItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.trendingCalls++
	if f.onTrending != nil {
		f.onTrending()
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.trendingErrs) > 0 {
		err := f.trendingErrs[0]
		f.trendingErrs = f.trendingErrs[1:]
		return nil, err
	}
	return source.Truncate(f.trending, opts.Limit), nil
}

func (f *fakeSource) ScrapeByCategory(ctx context.Context, category string, limit int) ([]domain.VideoItem, error) {
	if err := f.categoryErrs[category]; err != nil {
		return nil, err
	}
	return source.Truncate(f.categories[category], limit), nil
}

func (f *fakeSource) ScrapeByHashtag(ctx context.Context, tag string, limit int) ([]domain.VideoItem, error) {
	return nil, nil
}

func (f *fakeSource) ScrapeByURL(ctx context.Context, videoURL string) (*domain.VideoItem, error) {
	if err := f.urlErrs[videoURL]; err != nil {
		return nil, err
	}
	return f.byURL[videoURL], nil
}

// fakeAnalyzer produces one hook section per item unless scripted otherwise.
type fakeAnalyzer struct {
	analyzeErrs    map[string]error
	categorizeErrs map[string]error
	empty          map[string]bool
	panics         map[string]bool
}

func (a *fakeAnalyzer) AnalyzeForTemplates(item *domain.VideoItem) ([]domain.TemplateSection, error) {
	if a.panics[item.ID] {
		panic("analyzer crashed")
	}
	if err := a.analyzeErrs[item.ID]; err != nil {
		return nil, err
	}
	if a.empty[item.ID] {
		return nil, nil
	}
	return []domain.TemplateSection{{Type: domain.SectionHook, Content: item.Text}}, nil
}

func (a *fakeAnalyzer) Categorize(item *domain.VideoItem) (string, error) {
	if err := a.categorizeErrs[item.ID]; err != nil {
		return "", err
	}
	return "general", nil
}

// memTemplateStore is an in-memory TemplateStore. createErrs holds, per item,
// the errors returned by successive CreateTemplate calls.
type memTemplateStore struct {
	mu          sync.Mutex
	templates   map[string]domain.Template
	createErrs  map[string][]error
	createCalls map[string]int
	updateErrs  map[string]error
	listErrs    []error
}

func newMemTemplateStore() *memTemplateStore {
	return &memTemplateStore{
		templates:   make(map[string]domain.Template),
		createErrs:  make(map[string][]error),
		createCalls: make(map[string]int),
		updateErrs:  make(map[string]error),
	}
}

func (s *memTemplateStore) CreateTemplate(ctx context.Context, item *domain.VideoItem, sections []domain.TemplateSection, category string) (*domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.createCalls[item.ID]++
	if errs := s.createErrs[item.ID]; len(errs) > 0 {
		err := errs[0]
		s.createErrs[item.ID] = errs[1:]
		return nil, err
	}
	now := time.Now()
	tpl := domain.Template{
		ID:             "tpl-" + item.ID,
		SourceID:       item.ID,
		Category:       category,
		Sections:       sections,
		VideoURL:       item.WebVideoURL,
		Status:         domain.TemplateStatusActive,
		StatsUpdatedAt: &now,
	}
	s.templates[tpl.ID] = tpl
	return &tpl, nil
}

func (s *memTemplateStore) UpdateStats(ctx context.Context, templateID string, stats domain.TemplateStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.updateErrs[templateID]; err != nil {
		return err
	}
	tpl, ok := s.templates[templateID]
	if !ok {
		return repository.ErrTemplateNotFound
	}
	tpl.Views, tpl.Likes = stats.Views, stats.Likes
	s.templates[templateID] = tpl
	return nil
}

func (s *memTemplateStore) GetAllTemplates(ctx context.Context, limit int) ([]domain.Template, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.listErrs) > 0 {
		err := s.listErrs[0]
		s.listErrs = s.listErrs[1:]
		return nil, err
	}
	out := make([]domain.Template, 0, len(s.templates))
	for _, tpl := range s.templates {
		out = append(out, tpl)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// recordingArchive captures archived batches.
type recordingArchive struct {
	keys []string
	err  error
}

func (a *recordingArchive) Save(ctx context.Context, jobType, jobID string, payload interface{}) (string, error) {
	if a.err != nil {
		return "", a.err
	}
	key := fmt.Sprintf("raw/%s/%s.json", jobType, jobID)
	a.keys = append(a.keys, key)
	return key, nil
}

// sleepRecorder replaces backoff sleeps and records requested delays.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (r *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.delays = append(r.delays, d)
	return ctx.Err()
}

// eligibleItem returns an item that passes the default test thresholds.
func eligibleItem(id string) domain.VideoItem {
	return domain.VideoItem{
		ID:          id,
		Text:        "video " + id,
		AuthorMeta:  domain.AuthorMeta{Name: "creator"},
		PlayCount:   50000,
		DiggCount:   2000,
		WebVideoURL: "https://www.tiktok.com/@creator/video/" + id,
	}
}

var testEligibility = EligibilityConfig{MinViews: 10000, MinLikes: 500}
