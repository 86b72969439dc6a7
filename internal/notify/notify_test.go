package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/n0ne0ther/ma-scanner/internal/ai"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
)

type botServer struct {
	*httptest.Server
	mu   sync.Mutex
	sent []map[string]string
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	bs := &botServer{}
	bs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/bot123:abc/getMe":
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Scanner","username":"ma_scanner_bot"}}`))
		case "/bot123:abc/sendMessage":
			require.NoError(t, r.ParseForm())
			bs.mu.Lock()
			bs.sent = append(bs.sent, map[string]string{
				"chat_id":                  r.PostForm.Get("chat_id"),
				"text":                     r.PostForm.Get("text"),
				"parse_mode":               r.PostForm.Get("parse_mode"),
				"disable_web_page_preview": r.PostForm.Get("disable_web_page_preview"),
			})
			bs.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1700000000,"chat":{"id":-1001,"type":"group"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(bs.Close)
	return bs
}

func TestTelegramNotify(t *testing.T) {
	srv := newBotServer(t)
	tg, err := NewTelegram(TelegramConfig{Token: "123:abc", ChatID: -1001, Endpoint: srv.URL + "/bot%s/%s"}, zerolog.Nop())
	require.NoError(t, err)

	require.NoError(t, tg.Notify(context.Background(), TestMessage))

	require.Len(t, srv.sent, 1)
	got := srv.sent[0]
	assert.Equal(t, "-1001", got["chat_id"])
	assert.Equal(t, "<b>TEST SUCCESS</b>", got["text"])
	assert.Equal(t, "HTML", got["parse_mode"])
	assert.Equal(t, "true", got["disable_web_page_preview"])
}

func TestNewTelegramBadToken(t *testing.T) {
	srv := newBotServer(t)
	_, err := NewTelegram(TelegramConfig{Token: "999:zzz", ChatID: 1, Endpoint: srv.URL + "/bot%s/%s"}, zerolog.Nop())
	assert.Error(t, err)
}

func TestNewWithoutCredentials(t *testing.T) {
	n, err := New(TelegramConfig{Token: "123:abc"}, zerolog.Nop())
	require.NoError(t, err)
	assert.IsType(t, Noop{}, n)
	assert.ErrorIs(t, n.Notify(context.Background(), "x"), ErrNotConfigured)

	_, err = NewTelegram(TelegramConfig{}, zerolog.Nop())
	assert.ErrorIs(t, err, ErrNotConfigured)
}

func TestFormatAlert(t *testing.T) {
	tests := []struct {
		name     string
		sig      signal.Signal
		analysis *ai.Analysis
		want     []string
	}{
		{
			name: "news escapes html",
			sig:  signal.Signal{Kind: signal.NewsMention, Ticker: "AT", Title: "AT&T to acquire <Foo>", Link: "https://x.test/?a=1&b=2", Source: "Yahoo Finance"},
			want: []string{"<b>M&amp;A News</b> AT", "AT&amp;T to acquire &lt;Foo&gt;", "Source: Yahoo Finance", `<a href="https://x.test/?a=1&amp;b=2">Open</a>`},
		},
		{
			name: "ownership stake",
			sig:  signal.Signal{Kind: signal.RegulatoryFiling13DG, Ticker: "WDGT", Title: "SC 13D 7.5% stake", Stake: 7.5},
			want: []string{"<b>13D/G</b> WDGT", "Stake: 7.50%"},
		},
		{
			name: "insider cluster",
			sig: signal.Signal{Kind: signal.InsiderCluster, Ticker: "ACME", Insiders: []signal.InsiderBuy{
				{Owner: "Jane Doe", Value: 600000}, {Owner: "John Roe", Value: 750000.4},
			}},
			want: []string{"<b>Insider Cluster</b> ACME", "2 insiders, $1,350,000 total", "• Jane Doe ($600,000)", "• John Roe ($750,000)"},
		},
		{
			name:     "with analysis",
			sig:      signal.Signal{Kind: signal.RegulatoryFiling8K, Ticker: "ACME", Title: "8-K merger", CIK: "320193"},
			analysis: &ai.Analysis{Bullets: []string{"Target: <Beta>"}},
			want:     []string{"CIK: 320193", "<i>Analysis</i>", "• Target: &lt;Beta&gt;"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatAlert(tt.sig, tt.analysis)
			for _, w := range tt.want {
				assert.Contains(t, got, w)
			}
			assert.NotContains(t, got, "\n\n\n")
		})
	}
}

func TestDollars(t *testing.T) {
	assert.Equal(t, "$600,000", Dollars(600000))
	assert.Equal(t, "$1,234,568", Dollars(1234567.5))
	assert.Equal(t, "$0", Dollars(0))
}
