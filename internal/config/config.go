package config

import (
	"embed"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

//go:embed default_config.yaml
var defaultConfigFS embed.FS

const appName = "ma-scanner"

// Source types. Each names one collaborator of the scan.
const (
	TypeNews     = "news"
	TypeFilings  = "filings"
	TypeInsiders = "insiders"
	TypeTickers  = "tickers"
)

type Source struct {
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	URL     string `yaml:"url"`
	Enabled bool   `yaml:"enabled"`
}

type AIConfig struct {
	Model             string `yaml:"model"`
	BaseURL           string `yaml:"base_url"`
	MonthlyTokenLimit int64  `yaml:"monthly_token_limit"`
}

type CacheConfig struct {
	RedisAddr string `yaml:"redis_addr"`
}

// Secrets come from the environment (or a .env file), never from YAML.
type Secrets struct {
	XAIKey          string `envconfig:"XAI_API_KEY"`
	TelegramToken   string `envconfig:"TELEGRAM_TOKEN"`
	TelegramChatID  int64  `envconfig:"TELEGRAM_CHAT_ID"`
	AlphaVantageKey string `envconfig:"ALPHA_VANTAGE_API_KEY"`
}

type Config struct {
	RefreshInterval string      `yaml:"refresh_interval"`
	CacheTTL        string      `yaml:"cache_ttl"`
	Retention       string      `yaml:"retention"`
	UserAgent       string      `yaml:"user_agent"`
	MaxFilings      int         `yaml:"max_filings,omitempty"`
	Sources         []Source    `yaml:"sources"`
	AI              *AIConfig   `yaml:"ai,omitempty"`
	Cache           CacheConfig `yaml:"cache"`

	Secrets Secrets `yaml:"-"`
}

func (c *Config) RefreshDuration() time.Duration {
	return parseDuration(c.RefreshInterval, 5*time.Minute)
}

func (c *Config) CacheDuration() time.Duration {
	return parseDuration(c.CacheTTL, 5*time.Minute)
}

func (c *Config) RetentionDuration() time.Duration {
	return parseDuration(c.Retention, 90*24*time.Hour)
}

// GetMaxFilings returns how many feed entries to inspect, defaulting to 30.
func (c *Config) GetMaxFilings() int {
	if c.MaxFilings <= 0 {
		return 30
	}
	return c.MaxFilings
}

// AISettings returns the AI block with defaults filled in.
func (c *Config) AISettings() AIConfig {
	out := AIConfig{Model: "grok-4", BaseURL: "https://api.x.ai/v1", MonthlyTokenLimit: 1_000_000}
	if c.AI == nil {
		return out
	}
	if c.AI.Model != "" {
		out.Model = c.AI.Model
	}
	if c.AI.BaseURL != "" {
		out.BaseURL = c.AI.BaseURL
	}
	if c.AI.MonthlyTokenLimit > 0 {
		out.MonthlyTokenLimit = c.AI.MonthlyTokenLimit
	}
	return out
}

func (c *Config) EnabledSources() []Source {
	var out []Source
	for _, s := range c.Sources {
		if s.Enabled {
			out = append(out, s)
		}
	}
	return out
}

// SourceByType returns the first enabled source of the given type.
func (c *Config) SourceByType(typ string) (Source, bool) {
	for _, s := range c.EnabledSources() {
		if s.Type == typ {
			return s, true
		}
	}
	return Source{}, false
}

// ParseDuration accepts Go durations plus an "Nd" day form.
func ParseDuration(s string) (time.Duration, error) {
	if len(s) > 1 && s[len(s)-1] == 'd' {
		var days int
		if _, err := fmt.Sscanf(s, "%dd", &days); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := ParseDuration(s)
	if err != nil || d <= 0 {
		return fallback
	}
	return d
}

func DefaultConfigPath() string {
	return filepath.Join(xdg.ConfigHome, appName, "config.yaml")
}

func HistoryPath() string {
	return filepath.Join(xdg.DataHome, appName, "history.db")
}

func loadDefaults() (*Config, error) {
	data, err := defaultConfigFS.ReadFile("default_config.yaml")
	if err != nil {
		return nil, fmt.Errorf("reading embedded config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parsing embedded config: %w", err)
	}
	return &cfg, nil
}

// Load reads the YAML config at path (or the XDG default) and overlays
// secrets from the environment. A missing file yields the embedded defaults,
// which are also written to path for the user to edit.
func Load(path string) (*Config, error) {
	defaults, err := loadDefaults()
	if err != nil {
		return nil, err
	}

	if path == "" {
		path = DefaultConfigPath()
	}

	cfg := defaults
	data, err := os.ReadFile(path)
	switch {
	case os.IsNotExist(err):
		// Non-fatal: the embedded defaults still apply.
		_ = writeDefaults(path)
	case err != nil:
		return nil, fmt.Errorf("reading config: %w", err)
	default:
		var user Config
		if err := yaml.Unmarshal(data, &user); err != nil {
			return nil, fmt.Errorf("parsing config %s: %w", path, err)
		}
		mergeDefaultSources(&user, defaults)
		if err := validate(&user); err != nil {
			return nil, err
		}
		cfg = &user
	}

	secrets, err := LoadSecrets("")
	if err != nil {
		return nil, err
	}
	cfg.Secrets = secrets
	return cfg, nil
}

// LoadSecrets reads envFile (".env" when empty) if present, then decodes the
// process environment.
func LoadSecrets(envFile string) (Secrets, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
		return Secrets{}, fmt.Errorf("loading %s: %w", envFile, err)
	}
	var s Secrets
	if err := envconfig.Process("", &s); err != nil {
		return Secrets{}, fmt.Errorf("reading environment: %w", err)
	}
	return s, nil
}

// mergeDefaultSources keeps user sources, refreshes the URL and type of
// sources that share a name with a default, and appends new defaults.
func mergeDefaultSources(cfg, defaults *Config) {
	index := make(map[string]int, len(cfg.Sources))
	for i, s := range cfg.Sources {
		index[s.Name] = i
	}
	for _, d := range defaults.Sources {
		if i, ok := index[d.Name]; ok {
			cfg.Sources[i].URL = d.URL
			cfg.Sources[i].Type = d.Type
			continue
		}
		cfg.Sources = append(cfg.Sources, d)
	}
}

func writeDefaults(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, _ := defaultConfigFS.ReadFile("default_config.yaml")
	return os.WriteFile(path, data, 0o644)
}

func validate(cfg *Config) error {
	validTypes := map[string]bool{TypeNews: true, TypeFilings: true, TypeInsiders: true, TypeTickers: true}
	for i, s := range cfg.Sources {
		if s.Name == "" {
			return fmt.Errorf("source %d: name is required", i)
		}
		if s.URL == "" {
			return fmt.Errorf("source %q: url is required", s.Name)
		}
		u, err := url.Parse(s.URL)
		if err != nil {
			return fmt.Errorf("source %q: invalid url: %w", s.Name, err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("source %q: url scheme must be http or https, got %q", s.Name, u.Scheme)
		}
		if !validTypes[s.Type] {
			return fmt.Errorf("source %q: unknown type %q (valid: news, filings, insiders, tickers)", s.Name, s.Type)
		}
	}
	return nil
}
