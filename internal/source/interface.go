package source

import (
	"context"
	"strings"

	"github.com/timmy/trendplate/internal/domain"
)

// TrendingOptions controls a trending scrape.
type TrendingOptions struct {
	Limit  int
	Region string
}

// VideoSource defines the extraction side of the pipeline: it returns raw video
// batches for a query. Implementations may fail with transient network errors;
// errors are either plain or *domain.ETLError when the failure class is known.
type VideoSource interface {
	// Name returns a stable identifier for logs and job parameters.
	Name() string

	// ScrapeTrending returns currently trending videos.
	ScrapeTrending(ctx context.Context, opts TrendingOptions) ([]domain.VideoItem, error)

	// ScrapeByCategory returns up to limit videos for a content category.
	ScrapeByCategory(ctx context.Context, category string, limit int) ([]domain.VideoItem, error)

	// ScrapeByHashtag returns up to limit videos tagged with tag.
	ScrapeByHashtag(ctx context.Context, tag string, limit int) ([]domain.VideoItem, error)

	// ScrapeByURL re-scrapes a single video. It returns (nil, nil) when the
	// video is no longer available.
	ScrapeByURL(ctx context.Context, videoURL string) (*domain.VideoItem, error)
}

// categoryHashtags maps content categories to the hashtags that represent them.
var categoryHashtags = map[string][]string{
	"dance":     {"dance", "dancechallenge", "choreography"},
	"comedy":    {"comedy", "funny", "skit"},
	"food":      {"food", "recipe", "cooking", "foodtok"},
	"beauty":    {"beauty", "makeup", "skincare", "grwm"},
	"fitness":   {"fitness", "workout", "gym", "gymtok"},
	"education": {"learnontiktok", "education", "howto", "tutorial"},
	"fashion":   {"fashion", "ootd", "style"},
	"pets":      {"pets", "dog", "cat", "petsoftiktok"},
	"travel":    {"travel", "traveltok", "wanderlust"},
	"gaming":    {"gaming", "gamer", "gametok"},
}

// TrendingHashtags are the hashtags used to approximate the trending feed.
var TrendingHashtags = []string{"fyp", "trending", "viral"}

// HashtagsForCategory returns the hashtags for category. Unknown categories
// are used as a hashtag themselves.
func HashtagsForCategory(category string) []string {
	key := strings.ToLower(strings.TrimSpace(category))
	if tags, ok := categoryHashtags[key]; ok {
		return tags
	}
	return []string{strings.ReplaceAll(key, " ", "")}
}

// MatchCategory returns the category whose hashtags overlap tags the most.
// Ties resolve to the alphabetically first category.
func MatchCategory(tags []string) (string, bool) {
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		seen[strings.ToLower(strings.TrimPrefix(t, "#"))] = true
	}

	best, bestScore := "", 0
	for name, categoryTags := range categoryHashtags {
		score := 0
		for _, t := range categoryTags {
			if seen[t] {
				score++
			}
		}
		if score > bestScore || (score == bestScore && score > 0 && name < best) {
			best, bestScore = name, score
		}
	}
	return best, bestScore > 0
}

// Truncate caps items at limit; a non-positive limit keeps everything.
func Truncate(items []domain.VideoItem, limit int) []domain.VideoItem {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
