package staging

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/source"
)

const (
	SourceName = "staging"

	// ManifestFileName is the JSONL file holding one scraped video per line.
	ManifestFileName = "manifest.jsonl"
)

// Adapter implements source.VideoSource over a local manifest of previously
// scraped videos, for offline runs and replays of archived batches.
type Adapter struct {
	basePath string

	mu     sync.Mutex
	items  []domain.VideoItem
	loaded bool
}

// NewAdapter creates a new staging adapter.
// Parameters:
//   - basePath: directory containing manifest.jsonl.
//
// Returns:
//   - *Adapter: initialized staging adapter.
func NewAdapter(basePath string) *Adapter {
	return &Adapter{basePath: basePath}
}

// Name returns the source identifier.
func (a *Adapter) Name() string {
	return SourceName
}

// ScrapeTrending returns the most viewed staged videos.
func (a *Adapter) ScrapeTrending(ctx context.Context, opts source.TrendingOptions) ([]domain.VideoItem, error) {
	items, err := a.all()
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].PlayCount > items[j].PlayCount
	})
	return source.Truncate(items, opts.Limit), nil
}

// ScrapeByCategory returns staged videos tagged with any hashtag of category.
func (a *Adapter) ScrapeByCategory(ctx context.Context, category string, limit int) ([]domain.VideoItem, error) {
	return a.filterByTags(source.HashtagsForCategory(category), limit)
}

// ScrapeByHashtag returns staged videos tagged with tag.
func (a *Adapter) ScrapeByHashtag(ctx context.Context, tag string, limit int) ([]domain.VideoItem, error) {
	return a.filterByTags([]string{strings.TrimPrefix(tag, "#")}, limit)
}

// ScrapeByURL returns the staged video with the given page URL.
func (a *Adapter) ScrapeByURL(ctx context.Context, videoURL string) (*domain.VideoItem, error) {
	items, err := a.all()
	if err != nil {
		return nil, err
	}
	for i := range items {
		if items[i].WebVideoURL == videoURL {
			return &items[i], nil
		}
	}
	return nil, nil
}

func (a *Adapter) filterByTags(tags []string, limit int) ([]domain.VideoItem, error) {
	items, err := a.all()
	if err != nil {
		return nil, err
	}

	wanted := make(map[string]bool, len(tags))
	for _, t := range tags {
		wanted[strings.ToLower(t)] = true
	}

	var matched []domain.VideoItem
	for _, item := range items {
		for _, name := range item.HashtagNames() {
			if wanted[strings.ToLower(name)] {
				matched = append(matched, item)
				break
			}
		}
	}
	return source.Truncate(matched, limit), nil
}

// all returns a copy of the staged items, loading the manifest on first use.
func (a *Adapter) all() ([]domain.VideoItem, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.loaded {
		if err := a.loadItems(); err != nil {
			return nil, fmt.Errorf("failed to load staging items: %w", err)
		}
		a.loaded = true
	}
	out := make([]domain.VideoItem, len(a.items))
	copy(out, a.items)
	return out, nil
}

func (a *Adapter) loadItems() error {
	manifestPath := filepath.Join(a.basePath, ManifestFileName)

	file, err := os.Open(manifestPath)
	if err != nil {
		return fmt.Errorf("failed to open manifest %s: %w", manifestPath, err)
	}
	defer file.Close()

	a.items = []domain.VideoItem{}

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		var item domain.VideoItem
		if err := json.Unmarshal([]byte(line), &item); err != nil {
			// Skip malformed lines
			continue
		}
		a.items = append(a.items, item)
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading manifest: %w", err)
	}
	return nil
}
