package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/timmy/trendplate/internal/domain"
)

func newLLMServer(t *testing.T, status int, content string) (*httptest.Server, *chatRequest) {
	t.Helper()
	var got chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if status >= 300 {
			w.Write([]byte(`{"error":{"message":"nope","type":"invalid_request_error"}}`))
			return
		}
		body, _ := json.Marshal(map[string]interface{}{
			"choices": []map[string]interface{}{{"message": map[string]string{"content": content}}},
		})
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &got
}

func newTestLLMAnalyzer(baseURL string) *LLMAnalyzer {
	return NewLLMAnalyzer(&LLMConfig{
		Model:      "gpt-4o-mini",
		APIKey:     "test-key",
		BaseURL:    baseURL + "/v1",
		Categories: []string{"dance", "food"},
	})
}

func TestLLMAnalyzer_AnalyzeForTemplates(t *testing.T) {
	reply := "```json\n" + `{"sections":[
		{"type":"hook","content":"Three pasta hacks","start_sec":0,"end_sec":3},
		{"type":"outro","content":"ignored"},
		{"type":"body","content":"Salt the water","start_sec":3,"end_sec":90},
		{"type":"call_to_action","content":"  "}
	]}` + "\n```"
	srv, got := newLLMServer(t, http.StatusOK, reply)

	item := &domain.VideoItem{ID: "1", Text: "Three pasta hacks", VideoMeta: domain.VideoMeta{Duration: 30}}
	sections, err := newTestLLMAnalyzer(srv.URL).AnalyzeForTemplates(item)
	require.NoError(t, err)

	require.Len(t, sections, 2)
	assert.Equal(t, domain.SectionHook, sections[0].Type)
	assert.Equal(t, "Hook", sections[0].Title)
	assert.Equal(t, 30.0, sections[1].EndSec)

	assert.Equal(t, "gpt-4o-mini", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Contains(t, got.Messages[1].Content, "Duration: 30 seconds")
}

func TestLLMAnalyzer_UnparsableReplyIsTransformError(t *testing.T) {
	srv, _ := newLLMServer(t, http.StatusOK, "I cannot help with that")

	_, err := newTestLLMAnalyzer(srv.URL).AnalyzeForTemplates(&domain.VideoItem{ID: "1"})
	var etlErr *domain.ETLError
	require.True(t, errors.As(err, &etlErr))
	assert.Equal(t, domain.ErrorTypeTransform, etlErr.Type)
}

func TestLLMAnalyzer_StatusClassification(t *testing.T) {
	tests := []struct {
		status int
		want   domain.ErrorType
	}{
		{http.StatusUnauthorized, domain.ErrorTypeAuthentication},
		{http.StatusForbidden, domain.ErrorTypePermission},
		{http.StatusGatewayTimeout, domain.ErrorTypeTimeout},
		{http.StatusTooManyRequests, domain.ErrorTypeConnection},
		{http.StatusBadRequest, domain.ErrorTypeTransform},
	}
	for _, tc := range tests {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv, _ := newLLMServer(t, tc.status, "")
			_, err := newTestLLMAnalyzer(srv.URL).AnalyzeForTemplates(&domain.VideoItem{ID: "1"})

			var etlErr *domain.ETLError
			require.True(t, errors.As(err, &etlErr))
			assert.Equal(t, tc.want, etlErr.Type)
			assert.Contains(t, etlErr.Message, "nope")
		})
	}
}

func TestLLMAnalyzer_Categorize(t *testing.T) {
	t.Run("known label", func(t *testing.T) {
		srv, _ := newLLMServer(t, http.StatusOK, " Food.")
		got, err := newTestLLMAnalyzer(srv.URL).Categorize(&domain.VideoItem{Text: "dinner ideas"})
		require.NoError(t, err)
		assert.Equal(t, "food", got)
	})

	t.Run("unknown label", func(t *testing.T) {
		srv, _ := newLLMServer(t, http.StatusOK, "gardening")
		got, err := newTestLLMAnalyzer(srv.URL).Categorize(&domain.VideoItem{Text: "tomatoes"})
		require.NoError(t, err)
		assert.Equal(t, CategoryGeneral, got)
	})

	t.Run("hashtag wins without a request", func(t *testing.T) {
		a := newTestLLMAnalyzer("http://127.0.0.1:1")
		got, err := a.Categorize(&domain.VideoItem{Hashtags: []domain.Hashtag{{Name: "workout"}}})
		require.NoError(t, err)
		assert.Equal(t, "fitness", got)
	})
}
