package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/google/generative-ai-go/genai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

func TestIsRateLimit(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "keyword", err: errors.New("Rate limit exceeded for model"), want: true},
		{name: "gemini quota message", err: errors.New("googleapi: Error 429: Resource has been exhausted (e.g. check quota)."), want: true},
		{name: "googleapi status", err: fmt.Errorf("wrapped: %w", &googleapi.Error{Code: http.StatusTooManyRequests}), want: true},
		{name: "googleapi other status", err: &googleapi.Error{Code: http.StatusBadRequest, Message: "invalid argument"}, want: false},
		{name: "unrelated", err: errors.New("connection refused"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRateLimit(tt.err))
		})
	}
}

func TestGeminiText(t *testing.T) {
	assert.Empty(t, geminiText(nil))
	assert.Empty(t, geminiText(&genai.GenerateContentResponse{}))
	assert.Empty(t, geminiText(&genai.GenerateContentResponse{Candidates: []*genai.Candidate{{}}}))

	resp := &genai.GenerateContentResponse{
		Candidates: []*genai.Candidate{{
			Content: &genai.Content{Parts: []genai.Part{genai.Text(" {\"M&A_News\":"), genai.Text("\"No News\"} ")}},
		}},
	}
	assert.Equal(t, `{"M&A_News":"No News"}`, geminiText(resp))
}

func TestOpenAIGenerate(t *testing.T) {
	var gotModel string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Model string `json:"model"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		gotModel = req.Model
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"M&A_News\":\"No News\"}"},"finish_reason":"stop"}]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClientWithBaseURL("test", srv.URL+"/v1")
	text, err := c.Generate(context.Background(), "gpt-4o-mini", "prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"M&A_News":"No News"}`, text)
	assert.Equal(t, "gpt-4o-mini", gotModel)
}

func TestOpenAIRateLimitIsClassified(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		fmt.Fprint(w, `{"error":{"message":"slow down","type":"requests","code":"too_many"}}`)
	}))
	defer srv.Close()

	c := NewOpenAIClientWithBaseURL("test", srv.URL+"/v1")
	_, err := c.Generate(context.Background(), "gpt-4o-mini", "prompt")

	require.Error(t, err)
	assert.True(t, IsRateLimit(err))
}

func TestOpenAIEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"1","object":"chat.completion","choices":[]}`)
	}))
	defer srv.Close()

	c := NewOpenAIClientWithBaseURL("test", srv.URL+"/v1")
	_, err := c.Generate(context.Background(), "gpt-4o-mini", "prompt")

	require.ErrorIs(t, err, ErrEmptyResponse)
}

func TestAnthropicGenerate(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-haiku-4-5","content":[{"type":"text","text":"{\"M&A_News\":\"No News\"}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
	}))
	defer srv.Close()

	c := NewAnthropicClient("test", option.WithBaseURL(srv.URL))
	text, err := c.Generate(context.Background(), "claude-haiku-4-5", "prompt")

	require.NoError(t, err)
	assert.Equal(t, `{"M&A_News":"No News"}`, text)
}
