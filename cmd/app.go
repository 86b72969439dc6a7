package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/n0ne0ther/ma-scanner/internal/ai"
	"github.com/n0ne0ther/ma-scanner/internal/config"
	"github.com/n0ne0ther/ma-scanner/internal/metrics"
	"github.com/n0ne0ther/ma-scanner/internal/notify"
	"github.com/n0ne0ther/ma-scanner/internal/signal"
	"github.com/n0ne0ther/ma-scanner/internal/source"
	"github.com/n0ne0ther/ma-scanner/internal/store"
	"github.com/n0ne0ther/ma-scanner/internal/ttlcache"
)

const (
	fetchTimeout   = 30 * time.Second
	tickerTableTTL = 24 * time.Hour
)

type invalidator interface {
	Invalidate(ctx context.Context) error
}

// app is everything one scan needs, built from the loaded config.
type app struct {
	cfg       *config.Config
	log       zerolog.Logger
	db        *store.Store
	dbPath    string
	cache     ttlcache.Cache
	fetchers  source.Fetchers
	cached    []invalidator
	extractor *signal.Extractor
	analyzer  ai.Analyzer
	usage     *ai.Usage
	notifier  notify.Notifier
	metrics   *metrics.Metrics
	closers   []func() error
}

type appOptions struct {
	dbPath      string
	memoryCache bool // keep fetched payloads in process instead of on disk
	analyze     bool
	alert       bool
	metrics     *metrics.Metrics
	telegramAPI string // Bot API endpoint override
}

func newApp(ctx context.Context, cfg *config.Config, log zerolog.Logger, opts appOptions) (*app, error) {
	if opts.dbPath == "" {
		opts.dbPath = config.HistoryPath()
	}
	db, err := store.Open(opts.dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening history: %w", err)
	}

	a := &app{
		cfg:     cfg,
		log:     log,
		db:      db,
		dbPath:  opts.dbPath,
		metrics: opts.metrics,
		closers: []func() error{db.Close},
	}

	switch {
	case cfg.Cache.RedisAddr != "":
		r, err := ttlcache.NewRedis(ctx, cfg.Cache.RedisAddr)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connecting to redis: %w", err)
		}
		a.cache = r
		a.closers = append(a.closers, r.Close)
	case opts.memoryCache:
		a.cache = ttlcache.NewMemory()
	default:
		a.cache = db.FetchCache()
	}

	a.buildSources()

	if opts.analyze {
		err := a.buildAnalyzer()
		switch {
		case errors.Is(err, ai.ErrNotConfigured):
			log.Warn().Msg("XAI_API_KEY is not set; AI analysis disabled")
		case err != nil:
			log.Warn().Err(err).Msg("AI analysis disabled")
		}
	}
	if opts.alert {
		n, err := notify.New(notify.TelegramConfig{
			Token:    cfg.Secrets.TelegramToken,
			ChatID:   cfg.Secrets.TelegramChatID,
			Endpoint: opts.telegramAPI,
		}, log)
		if err != nil {
			log.Warn().Err(err).Msg("alerts disabled")
			n = notify.Noop{}
		}
		a.notifier = n
	}
	return a, nil
}

func (a *app) buildSources() {
	client := source.NewClient(a.cfg.UserAgent)
	ttl := a.cfg.CacheDuration()

	if s, ok := a.cfg.SourceByType(config.TypeNews); ok {
		c := source.NewCached[signal.NewsItem](source.NewNewsFetcher(client, s.Name, s.URL), a.cache, ttl, a.log)
		a.fetchers.News = c
		a.cached = append(a.cached, c)
	}
	if s, ok := a.cfg.SourceByType(config.TypeFilings); ok {
		c := source.NewCached[signal.FilingEntry](source.NewFilingFetcher(client, s.Name, s.URL, a.cfg.GetMaxFilings()), a.cache, ttl, a.log)
		a.fetchers.Filings = c
		a.cached = append(a.cached, c)
	}
	if s, ok := a.cfg.SourceByType(config.TypeInsiders); ok {
		c := source.NewCached[signal.InsiderRow](source.NewInsiderFetcher(client, s.Name, s.URL), a.cache, ttl, a.log)
		a.fetchers.Insiders = c
		a.cached = append(a.cached, c)
	}

	var resolver signal.Resolver
	if s, ok := a.cfg.SourceByType(config.TypeTickers); ok {
		resolver = source.NewTickerResolver(client, s.URL, tickerTableTTL)
	} else {
		a.log.Warn().Msg("no tickers source enabled; filings cannot be resolved")
	}
	a.extractor = signal.NewExtractor(resolver, a.log)
}

func (a *app) buildAnalyzer() error {
	settings := a.cfg.AISettings()
	usage := ai.NewUsage(settings.MonthlyTokenLimit)
	g, err := ai.New(settings, a.cfg.Secrets.XAIKey,
		ai.WithCache(a.cache),
		ai.WithUsage(usage),
		ai.WithLogger(a.log),
	)
	if err != nil {
		return err
	}
	a.analyzer = g
	a.usage = usage
	return nil
}

func (a *app) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	return errors.Join(errs...)
}
