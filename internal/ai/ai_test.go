package ai

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

type chatRequest struct {
	Model       string  `json:"model"`
	MaxTokens   int     `json:"max_tokens"`
	Temperature float64 `json:"temperature"`
	Messages    []struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"messages"`
}

const chatResponse = `{
  "id": "chatcmpl-1",
  "object": "chat.completion",
  "created": 1700000000,
  "model": "grok-4",
  "choices": [{
    "index": 0,
    "finish_reason": "stop",
    "message": {"role": "assistant", "content": "**Summary**\n- Acquirer: Acme\n- Risk: antitrust review\n"}
  }],
  "usage": {"prompt_tokens": 1200, "completion_tokens": 300, "total_tokens": 1500}
}`

func fakeGrok(t *testing.T, calls *int32, got *chatRequest) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(calls, 1)
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer xai-test", r.Header.Get("Authorization"))
		if got != nil {
			require.NoError(t, json.NewDecoder(r.Body).Decode(got))
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(chatResponse))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func filingSignal() signal.Signal {
	return signal.Signal{
		Kind:       signal.RegulatoryFiling8K,
		Ticker:     "ACME",
		CIK:        "320193",
		FilingText: "Title: 8-K merger agreement\nSummary: Item 1.01",
	}
}

func TestNewRequiresKey(t *testing.T) {
	_, err := New(config.AIConfig{Model: "grok-4"}, "")
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestAnalyze(t *testing.T) {
	var calls int32
	var req chatRequest
	srv := fakeGrok(t, &calls, &req)

	u := NewUsage(1_000_000)
	g, err := New(config.AIConfig{Model: "grok-4", BaseURL: srv.URL + "/v1"}, "xai-test", WithUsage(u))
	require.NoError(t, err)

	a, err := g.Analyze(context.Background(), filingSignal())
	require.NoError(t, err)

	assert.Equal(t, "grok-4", req.Model)
	assert.Equal(t, 500, req.MaxTokens)
	assert.InDelta(t, 0.2, req.Temperature, 1e-9)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, "user", req.Messages[0].Role)
	assert.True(t, strings.HasPrefix(req.Messages[0].Content, "Analyze SEC 8-K for ACME: M&A, risks, entities. Bullet points. Filing: Title: 8-K merger"))
	assert.True(t, strings.HasSuffix(req.Messages[0].Content, "..."))

	assert.Equal(t, []string{"Acquirer: Acme", "Risk: antitrust review"}, a.Bullets)
	assert.Equal(t, int64(1200), a.PromptTokens)
	assert.Equal(t, int64(300), a.CompletionTokens)
	assert.False(t, a.Cached)

	assert.Equal(t, int64(1500), u.Total())
	assert.InDelta(t, 0.0105, u.Cost(), 1e-9)
	assert.Equal(t, int64(998_500), u.Remaining())
}

func TestAnalyzeSkipsSignalsWithoutFilingText(t *testing.T) {
	var calls int32
	srv := fakeGrok(t, &calls, nil)
	g, err := New(config.AIConfig{Model: "grok-4", BaseURL: srv.URL + "/v1"}, "xai-test")
	require.NoError(t, err)

	_, err = g.Analyze(context.Background(), signal.Signal{Kind: signal.NewsMention, Ticker: "MSFT"})
	assert.ErrorIs(t, err, ErrNoFilingText)
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestAnalyzeMemoizes(t *testing.T) {
	var calls int32
	srv := fakeGrok(t, &calls, nil)
	u := NewUsage(0)
	g, err := New(config.AIConfig{Model: "grok-4", BaseURL: srv.URL + "/v1"}, "xai-test", WithCache(ttlcache.NewMemory()), WithUsage(u))
	require.NoError(t, err)

	ctx := context.Background()
	_, err = g.Analyze(ctx, filingSignal())
	require.NoError(t, err)
	a, err := g.Analyze(ctx, filingSignal())
	require.NoError(t, err)

	assert.True(t, a.Cached)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, int64(1500), u.Total(), "cached answers cost nothing")
}

func TestAnalyzeBudgetExhausted(t *testing.T) {
	var calls int32
	srv := fakeGrok(t, &calls, nil)
	u := NewUsage(1000)
	u.Seed(800, 200)
	g, err := New(config.AIConfig{Model: "grok-4", BaseURL: srv.URL + "/v1"}, "xai-test", WithUsage(u))
	require.NoError(t, err)

	_, err = g.Analyze(context.Background(), filingSignal())
	assert.True(t, errors.Is(err, ErrBudgetExhausted))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestAnalyzeAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":{"message":"bad key","type":"invalid_request_error"}}`))
	}))
	defer srv.Close()

	g, err := New(config.AIConfig{Model: "grok-4", BaseURL: srv.URL + "/v1"}, "xai-test")
	require.NoError(t, err)
	_, err = g.Analyze(context.Background(), filingSignal())
	assert.Error(t, err)
}

func TestBuildPromptTruncates(t *testing.T) {
	s := filingSignal()
	s.FilingText = strings.Repeat("é", 5000)
	p := buildPrompt(s)
	assert.Equal(t, 3000, strings.Count(p, "é"))
}

func TestParseBullets(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{"dashes", "- one\n- two", []string{"one", "two"}},
		{"mixed markers", "• alpha\n* beta\n1. gamma\n2) delta", []string{"alpha", "beta", "gamma", "delta"}},
		{"headings dropped", "**Entities**\n- Acme\n\nRisks:\n- Delay", []string{"Acme", "Delay"}},
		{"plain text", "No material M&A content.", []string{"No material M&A content."}},
		{"empty", "  ", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, parseBullets(tt.in))
		})
	}
}

func TestUsage(t *testing.T) {
	u := NewUsage(0)
	u.Add(1_000_000, 1_000_000)
	assert.InDelta(t, 20.0, u.Cost(), 1e-9)
	assert.Equal(t, int64(-1), u.Remaining(), "no limit")
	assert.False(t, u.Exhausted())

	u = NewUsage(100)
	u.Add(150, 0)
	assert.Equal(t, int64(0), u.Remaining())
	assert.True(t, u.Exhausted())
}
