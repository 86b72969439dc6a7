// Package ai asks a hosted language model to analyze filing signals.
package ai

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/rs/zerolog"

	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

var (
	// ErrNoFilingText is returned for signals that carry nothing to analyze.
	ErrNoFilingText = errors.New("signal has no filing text")
	// ErrBudgetExhausted is returned once the monthly token budget is spent.
	ErrBudgetExhausted = errors.New("monthly token budget exhausted")
	ErrNotConfigured   = errors.New("AI not configured")
)

const (
	maxTokens      = 500
	temperature    = 0.2
	maxFilingChars = 3000
	memoTTL        = 5 * time.Minute
)

const analyzePrompt = `Analyze %s for %s: M&A, risks, entities. Bullet points. Filing: %s...`

// Analysis is the model's answer for one signal.
type Analysis struct {
	Text             string   `json:"text"`
	Bullets          []string `json:"bullets"`
	PromptTokens     int64    `json:"prompt_tokens"`
	CompletionTokens int64    `json:"completion_tokens"`
	Cached           bool     `json:"-"`
}

// Analyzer produces an Analysis for a signal.
type Analyzer interface {
	Analyze(ctx context.Context, s signal.Signal) (Analysis, error)
}

type Option func(*Grok)

func WithHTTPClient(hc *http.Client) Option {
	return func(g *Grok) { g.httpClient = hc }
}

// WithCache memoizes analyses for identical filing text.
func WithCache(c ttlcache.Cache) Option {
	return func(g *Grok) { g.cache = c }
}

func WithUsage(u *Usage) Option {
	return func(g *Grok) { g.usage = u }
}

func WithLogger(log zerolog.Logger) Option {
	return func(g *Grok) { g.log = log }
}

// Grok talks to xAI through its OpenAI-compatible chat completions API.
type Grok struct {
	client     openai.Client
	model      string
	httpClient *http.Client
	cache      ttlcache.Cache
	usage      *Usage
	log        zerolog.Logger
}

// New creates a Grok analyzer from the given AI settings.
func New(cfg config.AIConfig, apiKey string, opts ...Option) (*Grok, error) {
	if apiKey == "" {
		return nil, ErrNotConfigured
	}
	g := &Grok{
		model:      cfg.Model,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	if g.usage == nil {
		g.usage = NewUsage(cfg.MonthlyTokenLimit)
	}

	baseURL := cfg.BaseURL
	if !strings.HasSuffix(baseURL, "/") {
		baseURL += "/"
	}
	g.client = openai.NewClient(
		option.WithAPIKey(apiKey),
		option.WithBaseURL(baseURL),
		option.WithHTTPClient(g.httpClient),
		option.WithMaxRetries(1),
	)
	return g, nil
}

func (g *Grok) Analyze(ctx context.Context, s signal.Signal) (Analysis, error) {
	if strings.TrimSpace(s.FilingText) == "" {
		return Analysis{}, ErrNoFilingText
	}

	key := memoKey(s)
	if a, ok := g.lookup(ctx, key); ok {
		return a, nil
	}
	if g.usage.Exhausted() {
		return Analysis{}, ErrBudgetExhausted
	}

	resp, err := g.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(g.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.UserMessage(buildPrompt(s)),
		},
		MaxTokens:   openai.Int(maxTokens),
		Temperature: openai.Float(temperature),
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("grok API error: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Analysis{}, fmt.Errorf("empty grok response")
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	a := Analysis{
		Text:             text,
		Bullets:          parseBullets(text),
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
	}
	g.usage.Add(a.PromptTokens, a.CompletionTokens)
	g.log.Debug().
		Str("ticker", s.Ticker).
		Int64("prompt_tokens", a.PromptTokens).
		Int64("completion_tokens", a.CompletionTokens).
		Msg("analysis complete")

	g.remember(ctx, key, a)
	return a, nil
}

func (g *Grok) lookup(ctx context.Context, key string) (Analysis, bool) {
	if g.cache == nil {
		return Analysis{}, false
	}
	e, ok, err := g.cache.Get(ctx, key)
	if err != nil || !ok {
		return Analysis{}, false
	}
	var a Analysis
	if err := json.Unmarshal(e.Data, &a); err != nil {
		return Analysis{}, false
	}
	a.Cached = true
	return a, true
}

func (g *Grok) remember(ctx context.Context, key string, a Analysis) {
	if g.cache == nil {
		return
	}
	b, err := json.Marshal(a)
	if err != nil {
		return
	}
	if err := g.cache.Set(ctx, key, b, memoTTL); err != nil {
		g.log.Warn().Err(err).Msg("caching analysis failed")
	}
}

func memoKey(s signal.Signal) string {
	sum := sha256.Sum256([]byte(string(s.Kind) + "\x00" + s.Ticker + "\x00" + s.FilingText))
	return "analysis:" + hex.EncodeToString(sum[:16])
}

func buildPrompt(s signal.Signal) string {
	return fmt.Sprintf(analyzePrompt, s.Kind, s.Ticker, truncate(s.FilingText, maxFilingChars))
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}

// parseBullets pulls the bullet lines out of a free-form answer. Headings and
// blank lines are dropped; if nothing looks like a bullet the whole answer is
// returned as one line.
func parseBullets(text string) []string {
	var bullets []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, "**") {
			continue // markdown heading
		}
		trimmed := strings.TrimLeft(line, "•-*")
		if trimmed == line && !isNumbered(line) {
			continue
		}
		if isNumbered(trimmed) {
			trimmed = stripNumber(trimmed)
		}
		trimmed = strings.TrimSpace(trimmed)
		if trimmed != "" {
			bullets = append(bullets, trimmed)
		}
	}
	if len(bullets) == 0 && strings.TrimSpace(text) != "" {
		return []string{strings.TrimSpace(text)}
	}
	return bullets
}

// isNumbered reports whether line starts with "1." or "1)".
func isNumbered(line string) bool {
	for i, c := range line {
		if c >= '0' && c <= '9' {
			continue
		}
		return i > 0 && (c == '.' || c == ')')
	}
	return false
}

func stripNumber(line string) string {
	for i, c := range line {
		if c == '.' || c == ')' {
			return line[i+1:]
		}
	}
	return line
}
