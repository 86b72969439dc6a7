package ai

import (
	"sync"
	"time"
)

// Per-million-token prices in dollars.
const (
	PromptPricePerMillion     = 5.0
	CompletionPricePerMillion = 15.0
)

// Usage accumulates token counts against a monthly budget. It is safe for
// concurrent use.
type Usage struct {
	mu         sync.Mutex
	prompt     int64
	completion int64
	limit      int64
}

func NewUsage(monthlyLimit int64) *Usage {
	return &Usage{limit: monthlyLimit}
}

// Seed sets the counters from persisted totals for the current month.
func (u *Usage) Seed(prompt, completion int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt, u.completion = prompt, completion
}

func (u *Usage) Add(prompt, completion int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.prompt += prompt
	u.completion += completion
}

func (u *Usage) Tokens() (prompt, completion int64) {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.prompt, u.completion
}

func (u *Usage) Total() int64 {
	p, c := u.Tokens()
	return p + c
}

// Cost returns the dollar cost of the tokens used so far.
func (u *Usage) Cost() float64 {
	p, c := u.Tokens()
	return Cost(p, c)
}

// Remaining returns the unused budget, never below zero. A non-positive
// limit means unlimited and reports -1.
func (u *Usage) Remaining() int64 {
	if u.limit <= 0 {
		return -1
	}
	r := u.limit - u.Total()
	if r < 0 {
		return 0
	}
	return r
}

func (u *Usage) Exhausted() bool {
	return u.Remaining() == 0
}

func (u *Usage) Limit() int64 { return u.limit }

func Cost(prompt, completion int64) float64 {
	return float64(prompt)/1e6*PromptPricePerMillion + float64(completion)/1e6*CompletionPricePerMillion
}

// Month returns the budget period key for t, e.g. "2025-01".
func Month(t time.Time) string {
	return t.UTC().Format("2006-01")
}
