package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/trendplate/internal/domain"
)

func TestRuleAnalyzer_AnalyzeForTemplates(t *testing.T) {
	a := NewRuleAnalyzer()
	item := &domain.VideoItem{
		ID:        "1",
		Text:      "Three pasta hacks you need! First, salt the water. Then save the starch. Follow for part 2 #recipe #pasta",
		MusicMeta: domain.MusicMeta{MusicName: "original sound", MusicAuthor: "chef"},
		VideoMeta: domain.VideoMeta{Duration: 30},
		Hashtags:  []domain.Hashtag{{Name: "recipe"}, {Name: "pasta"}},
	}

	sections, err := a.AnalyzeForTemplates(item)
	require.NoError(t, err)

	var types []domain.SectionType
	for _, s := range sections {
		types = append(types, s.Type)
	}
	assert.Equal(t, []domain.SectionType{
		domain.SectionHook,
		domain.SectionBody,
		domain.SectionCallToAction,
		domain.SectionAudio,
		domain.SectionHashtags,
	}, types)

	assert.Equal(t, "Three pasta hacks you need!", sections[0].Content)
	assert.Equal(t, 3.0, sections[0].EndSec)
	assert.Equal(t, "First, salt the water. Then save the starch.", sections[1].Content)
	assert.Equal(t, "Follow for part 2", sections[2].Content)
	assert.Equal(t, 27.0, sections[2].StartSec)
	assert.Equal(t, "original sound - chef", sections[3].Content)
	assert.Equal(t, "#recipe #pasta", sections[4].Content)
}

func TestRuleAnalyzer_EmptyVideoHasNoSections(t *testing.T) {
	sections, err := NewRuleAnalyzer().AnalyzeForTemplates(&domain.VideoItem{ID: "1", Text: "  "})
	require.NoError(t, err)
	assert.Empty(t, sections)
}

func TestRuleAnalyzer_MalformedInput(t *testing.T) {
	a := NewRuleAnalyzer()

	_, err := a.AnalyzeForTemplates(nil)
	assert.Error(t, err)

	_, err = a.AnalyzeForTemplates(&domain.VideoItem{ID: "1", VideoMeta: domain.VideoMeta{Duration: -5}})
	assert.Error(t, err)

	_, err = a.Categorize(nil)
	assert.Error(t, err)
}

func TestRuleAnalyzer_Categorize(t *testing.T) {
	tests := []struct {
		name string
		item domain.VideoItem
		want string
	}{
		{"hashtag match", domain.VideoItem{Hashtags: []domain.Hashtag{{Name: "workout"}}}, "fitness"},
		{"caption keywords", domain.VideoItem{Text: "my skincare and makeup routine"}, "beauty"},
		{"no signal", domain.VideoItem{Text: "a day in my life"}, CategoryGeneral},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := NewRuleAnalyzer().Categorize(&tc.item)
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}
