package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/prompts"
	"github.com/timmy/trendplate/internal/source"
)

const defaultLLMTimeout = 60 * time.Second

// LLMAnalyzer extracts template sections with an OpenAI-compatible chat model.
type LLMAnalyzer struct {
	client     *resty.Client
	model      string
	endpoint   string
	categories []string
}

// LLMConfig holds configuration for the LLM analyzer.
type LLMConfig struct {
	Model      string
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	Categories []string // allowed category labels
}

// NewLLMAnalyzer creates a new LLM-backed analyzer.
// Parameters:
//   - cfg: model, credentials and endpoint settings.
//
// Returns:
//   - *LLMAnalyzer: initialized analyzer.
func NewLLMAnalyzer(cfg *LLMConfig) *LLMAnalyzer {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultLLMTimeout
	}

	client := resty.New()
	client.SetHeader("Authorization", "Bearer "+cfg.APIKey)
	client.SetHeader("Content-Type", "application/json")
	client.SetTimeout(timeout)

	// Default to OpenAI compatible endpoint if not specified
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}

	return &LLMAnalyzer{
		client:     client,
		model:      cfg.Model,
		endpoint:   baseURL + "/chat/completions",
		categories: cfg.Categories,
	}
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

type sectionsReply struct {
	Sections []domain.TemplateSection `json:"sections"`
}

// AnalyzeForTemplates asks the model for template sections. Sections with an
// unknown type or an empty body are dropped and timings are clamped to the
// video duration.
// Parameters:
//   - item: scraped video.
//
// Returns:
//   - []domain.TemplateSection: extracted sections, possibly empty.
//   - error: typed ETL error on API failure, transform error on an unparsable reply.
func (a *LLMAnalyzer) AnalyzeForTemplates(item *domain.VideoItem) ([]domain.TemplateSection, error) {
	if item == nil {
		return nil, errNilItem
	}
	if item.VideoMeta.Duration < 0 {
		return nil, fmt.Errorf("video %s has negative duration %d", item.ID, item.VideoMeta.Duration)
	}

	audio := strings.TrimSpace(item.MusicMeta.MusicName + " - " + item.MusicMeta.MusicAuthor)
	user := fmt.Sprintf(prompts.TemplateUserPrompt,
		item.Text, item.VideoMeta.Duration, strings.Trim(audio, " -"), hashtagList(item))

	content, err := a.complete(context.Background(), prompts.TemplateSystemPrompt, user, 800)
	if err != nil {
		return nil, err
	}

	var reply sectionsReply
	if err := json.Unmarshal([]byte(stripCodeFence(content)), &reply); err != nil {
		return nil, domain.NewETLError(domain.ErrorTypeTransform,
			fmt.Sprintf("unparsable analysis for video %s", item.ID), err)
	}
	return cleanSections(reply.Sections, float64(item.VideoMeta.Duration)), nil
}

// Categorize asks the model to pick one of the configured categories.
// Unknown labels map to CategoryGeneral.
func (a *LLMAnalyzer) Categorize(item *domain.VideoItem) (string, error) {
	if item == nil {
		return "", errNilItem
	}
	// Hashtags are a stronger signal than the model
	if category, ok := source.MatchCategory(item.HashtagNames()); ok {
		return category, nil
	}

	user := fmt.Sprintf(prompts.CategoryUserPrompt,
		strings.Join(a.categories, ", "), item.Text, hashtagList(item))
	content, err := a.complete(context.Background(), prompts.CategorySystemPrompt, user, 10)
	if err != nil {
		return "", err
	}

	label := strings.ToLower(strings.Trim(strings.TrimSpace(content), ".\"'"))
	for _, c := range a.categories {
		if label == c {
			return c, nil
		}
	}
	return CategoryGeneral, nil
}

func (a *LLMAnalyzer) complete(ctx context.Context, system, user string, maxTokens int) (string, error) {
	req := chatRequest{
		Model: a.model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens: maxTokens,
	}

	var resp chatResponse
	httpResp, err := a.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(a.endpoint)
	if err != nil {
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return "", domain.NewETLError(domain.ErrorTypeTimeout, "analysis request timed out", err)
		}
		return "", domain.NewETLError(domain.ErrorTypeConnection, "analysis request failed", err)
	}

	if httpResp.IsError() {
		msg := fmt.Sprintf("analysis API returned HTTP %d", httpResp.StatusCode())
		if resp.Error != nil && resp.Error.Message != "" {
			msg += ": " + resp.Error.Message
		}
		return "", classifyAPIStatus(httpResp.StatusCode(), msg)
	}
	if resp.Error != nil {
		return "", domain.NewETLError(domain.ErrorTypeTransform, "analysis API error: "+resp.Error.Message, nil)
	}
	if len(resp.Choices) == 0 {
		return "", domain.NewETLError(domain.ErrorTypeTransform, "no choices in analysis response", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

func classifyAPIStatus(status int, msg string) error {
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
		return domain.NewETLError(domain.ErrorTypeTransform, msg, nil)
	}
}

var knownSections = map[domain.SectionType]string{
	domain.SectionHook:         "Hook",
	domain.SectionBody:         "Body",
	domain.SectionCallToAction: "Call to action",
	domain.SectionAudio:        "Audio",
	domain.SectionHashtags:     "Hashtags",
}

func cleanSections(raw []domain.TemplateSection, duration float64) []domain.TemplateSection {
	sections := make([]domain.TemplateSection, 0, len(raw))
	for _, s := range raw {
		title, ok := knownSections[s.Type]
		if !ok || strings.TrimSpace(s.Content) == "" {
			continue
		}
		if s.Title == "" {
			s.Title = title
		}
		s.StartSec = clamp(s.StartSec, 0, duration)
		s.EndSec = clamp(s.EndSec, s.StartSec, duration)
		sections = append(sections, s)
	}
	return sections
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// stripCodeFence removes a ```json fence some models wrap replies in.
func stripCodeFence(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimPrefix(s, "json")
	return strings.TrimSpace(strings.TrimSuffix(s, "```"))
}

func hashtagList(item *domain.VideoItem) string {
	tags := item.HashtagNames()
	if len(tags) == 0 {
		return "none"
	}
	return "#" + strings.Join(tags, " #")
}
