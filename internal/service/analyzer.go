package service

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/timmy/trendplate/internal/domain"
	"github.com/timmy/trendplate/internal/source"
)

// CategoryGeneral is assigned when no category signal is found.
const CategoryGeneral = "general"

// ContentAnalyzer turns a scraped video into template sections and a category.
type ContentAnalyzer interface {
	AnalyzeForTemplates(item *domain.VideoItem) ([]domain.TemplateSection, error)
	Categorize(item *domain.VideoItem) (string, error)
}

var errNilItem = errors.New("video item is nil")

// hookSeconds is the length of the opening hook section.
const hookSeconds = 3.0

var ctaPhrases = []string{
	"follow", "comment", "share", "save this", "link in bio",
	"try this", "part 2", "subscribe", "tag a friend", "let me know",
}

// categoryKeywords backs categorization when no hashtag matches.
// Ties go to the earlier entry.
var categoryKeywords = []struct {
	category string
	keywords []string
}{
	{"dance", []string{"dance", "choreo", "moves"}},
	{"comedy", []string{"funny", "joke", "prank", "lol"}},
	{"food", []string{"recipe", "cook", "bake", "dinner", "lunch", "breakfast"}},
	{"beauty", []string{"makeup", "skincare", "lipstick", "hair"}},
	{"fitness", []string{"workout", "gym", "exercise", "reps", "cardio"}},
	{"education", []string{"learn", "tip", "how to", "explained", "fact"}},
}

// RuleAnalyzer extracts sections from caption structure and metadata.
type RuleAnalyzer struct{}

// NewRuleAnalyzer creates a new rule-based analyzer.
func NewRuleAnalyzer() *RuleAnalyzer {
	return &RuleAnalyzer{}
}

// AnalyzeForTemplates splits a video into hook, body, call-to-action, audio
// and hashtag sections. A video with no caption, music or hashtags yields no
// sections.
// Parameters:
//   - item: scraped video.
//
// Returns:
//   - []domain.TemplateSection: extracted sections, possibly empty.
//   - error: non-nil for malformed input.
func (a *RuleAnalyzer) AnalyzeForTemplates(item *domain.VideoItem) ([]domain.TemplateSection, error) {
	if item == nil {
		return nil, errNilItem
	}
	if item.VideoMeta.Duration < 0 {
		return nil, fmt.Errorf("video %s has negative duration %d", item.ID, item.VideoMeta.Duration)
	}

	duration := float64(item.VideoMeta.Duration)
	hookEnd := math.Min(hookSeconds, duration)

	var sections []domain.TemplateSection
	sentences := splitSentences(stripHashtags(item.Text))

	var cta string
	if n := len(sentences); n > 1 && isCallToAction(sentences[n-1]) {
		cta = sentences[n-1]
		sentences = sentences[:n-1]
	}

	if len(sentences) > 0 {
		sections = append(sections, domain.TemplateSection{
			Type:     domain.SectionHook,
			Title:    "Hook",
			Content:  sentences[0],
			StartSec: 0,
			EndSec:   hookEnd,
		})
	}
	if len(sentences) > 1 {
		sections = append(sections, domain.TemplateSection{
			Type:     domain.SectionBody,
			Title:    "Body",
			Content:  strings.Join(sentences[1:], " "),
			StartSec: hookEnd,
			EndSec:   duration,
		})
	}
	if cta == "" && len(sentences) == 1 && isCallToAction(sentences[0]) {
		cta = sentences[0]
	}
	if cta != "" {
		sections = append(sections, domain.TemplateSection{
			Type:     domain.SectionCallToAction,
			Title:    "Call to action",
			Content:  cta,
			StartSec: math.Max(duration-hookSeconds, 0),
			EndSec:   duration,
		})
	}

	if name := strings.TrimSpace(item.MusicMeta.MusicName); name != "" {
		content := name
		if author := strings.TrimSpace(item.MusicMeta.MusicAuthor); author != "" {
			content += " - " + author
		}
		sections = append(sections, domain.TemplateSection{
			Type:    domain.SectionAudio,
			Title:   "Audio",
			Content: content,
			EndSec:  duration,
		})
	}

	if tags := item.HashtagNames(); len(tags) > 0 {
		sections = append(sections, domain.TemplateSection{
			Type:    domain.SectionHashtags,
			Title:   "Hashtags",
			Content: "#" + strings.Join(tags, " #"),
		})
	}
	return sections, nil
}

// Categorize assigns a category from hashtags, then caption keywords.
func (a *RuleAnalyzer) Categorize(item *domain.VideoItem) (string, error) {
	if item == nil {
		return "", errNilItem
	}
	if category, ok := source.MatchCategory(item.HashtagNames()); ok {
		return category, nil
	}

	text := strings.ToLower(item.Text)
	best, bestHits := CategoryGeneral, 0
	for _, entry := range categoryKeywords {
		hits := 0
		for _, kw := range entry.keywords {
			if strings.Contains(text, kw) {
				hits++
			}
		}
		if hits > bestHits {
			best, bestHits = entry.category, hits
		}
	}
	return best, nil
}

func stripHashtags(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if !strings.HasPrefix(f, "#") && !strings.HasPrefix(f, "@") {
			kept = append(kept, f)
		}
	}
	return strings.Join(kept, " ")
}

func splitSentences(text string) []string {
	var sentences []string
	var b strings.Builder
	flush := func() {
		if s := strings.TrimSpace(b.String()); s != "" {
			sentences = append(sentences, s)
		}
		b.Reset()
	}
	for _, r := range text {
		b.WriteRune(r)
		if r == '.' || r == '!' || r == '?' {
			flush()
		}
	}
	flush()
	return sentences
}

func isCallToAction(sentence string) bool {
	lower := strings.ToLower(sentence)
	for _, phrase := range ctaPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}
