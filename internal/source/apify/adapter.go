package apify

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/source"
)

const (
	SourceName = "apify"

	// DefaultActorID is the clockworks~tiktok-scraper actor.
	DefaultActorID = "GdWCkxBtKWOsKjdch"
	defaultBaseURL = "https://api.apify.com/v2"
)

// Config holds configuration for the Apify connector.
type Config struct {
	Token   string
	BaseURL string
	ActorID string
	Timeout time.Duration
	Region  string
}

// Adapter implements source.VideoSource on top of the Apify actor API.
// Runs are started with run-sync-get-dataset-items, so one HTTP call returns
// the finished dataset.
type Adapter struct {
	client  *resty.Client
	actorID string
	region  string
}

// NewAdapter creates a new Apify adapter.
// Parameters:
//   - cfg: connector configuration; Token is required.
//
// Returns:
//   - *Adapter: initialized adapter.
//   - error: non-nil if the configuration is incomplete.
func NewAdapter(cfg *Config) (*Adapter, error) {
	if cfg.Token == "" {
		return nil, errors.New("apify token is not configured (APIFY_TOKEN)")
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	actorID := cfg.ActorID
	if actorID == "" {
		actorID = DefaultActorID
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	client := resty.New()
	client.SetBaseURL(baseURL)
	client.SetAuthToken(cfg.Token)
	client.SetHeader("Content-Type", "application/json")
	// Actor runs are synchronous and can take minutes
	client.SetTimeout(timeout)

	return &Adapter{
		client:  client,
		actorID: actorID,
		region:  cfg.Region,
	}, nil
}

// Name returns the source identifier.
func (a *Adapter) Name() string {
	return SourceName
}

// ScrapeTrending scrapes the trending hashtags feed.
func (a *Adapter) ScrapeTrending(ctx context.Context, opts source.TrendingOptions) ([]domain.VideoItem, error) {
	region := opts.Region
	if region == "" {
		region = a.region
	}
	items, err := a.runActor(ctx, a.hashtagInput(source.TrendingHashtags, opts.Limit, region))
	if err != nil {
		return nil, err
	}
	return source.Truncate(items, opts.Limit), nil
}

// ScrapeByCategory scrapes the hashtags that represent category.
func (a *Adapter) ScrapeByCategory(ctx context.Context, category string, limit int) ([]domain.VideoItem, error) {
	items, err := a.runActor(ctx, a.hashtagInput(source.HashtagsForCategory(category), limit, a.region))
	if err != nil {
		return nil, err
	}
	return source.Truncate(items, limit), nil
}

// ScrapeByHashtag scrapes a single hashtag.
func (a *Adapter) ScrapeByHashtag(ctx context.Context, tag string, limit int) ([]domain.VideoItem, error) {
	items, err := a.runActor(ctx, a.hashtagInput([]string{tag}, limit, a.region))
	if err != nil {
		return nil, err
	}
	return source.Truncate(items, limit), nil
}

// ScrapeByURL scrapes one video page.
func (a *Adapter) ScrapeByURL(ctx context.Context, videoURL string) (*domain.VideoItem, error) {
	items, err := a.runActor(ctx, map[string]interface{}{
		"postURLs":             []string{videoURL},
		"resultsPerPage":       1,
		"shouldDownloadVideos": false,
		"shouldDownloadCovers": false,
	})
	if err != nil {
		return nil, err
	}
	if len(items) == 0 || items[0].ID == "" {
		return nil, nil
	}
	return &items[0], nil
}

func (a *Adapter) hashtagInput(tags []string, limit int, region string) map[string]interface{} {
	input := map[string]interface{}{
		"hashtags":             tags,
		"resultsPerPage":       limit,
		"shouldDownloadVideos": false,
		"shouldDownloadCovers": false,
	}
	if region != "" {
		input["proxyCountryCode"] = region
	}
	return input
}

type apifyError struct {
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

func (a *Adapter) runActor(ctx context.Context, input map[string]interface{}) ([]domain.VideoItem, error) {
	var items []domain.VideoItem
	var apiErr apifyError

	resp, err := a.client.R().
		SetContext(ctx).
		SetBody(input).
		SetResult(&items).
		SetError(&apiErr).
		Post(fmt.Sprintf("/acts/%s/run-sync-get-dataset-items", a.actorID))
	if err != nil {
		return nil, classifyTransportError(err)
	}

	if resp.IsError() {
		msg := fmt.Sprintf("apify actor %s returned HTTP %d", a.actorID, resp.StatusCode())
		if apiErr.Error != nil && apiErr.Error.Message != "" {
			msg += ": " + apiErr.Error.Message
		}
		return nil, classifyStatus(resp.StatusCode(), msg)
	}

	return items, nil
}

// classifyTransportError maps client-side failures onto the ETL taxonomy.
func classifyTransportError(err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return domain.NewETLError(domain.ErrorTypeTimeout, "apify request timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return err
	}
	return domain.NewETLError(domain.ErrorTypeConnection, "apify request failed", err)
}

// classifyStatus maps an HTTP status onto the ETL taxonomy. Statuses without a
// clear class are returned untyped and normalized by phase downstream.
func classifyStatus(status int, msg string) error {
	switch {
	case status == http.StatusUnauthorized:
		return domain.NewETLError(domain.ErrorTypeAuthentication, msg, nil)
	case status == http.StatusForbidden:
		return domain.NewETLError(domain.ErrorTypePermission, msg, nil)
	case status == http.StatusRequestTimeout || status == http.StatusGatewayTimeout:
		return domain.NewETLError(domain.ErrorTypeTimeout, msg, nil)
	case status == http.StatusTooManyRequests || status >= 500:
		return domain.NewETLError(domain.ErrorTypeConnection, msg, nil)
	default:
		return errors.New(msg)
	}
}
