// Package config loads reddradar settings from a .env file, an optional YAML
// file and the environment, in that order of increasing precedence.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/FranksOps/reddradar/internal/llm"
	"github.com/FranksOps/reddradar/internal/pipeline"
	"github.com/FranksOps/reddradar/internal/reddit"
	"github.com/FranksOps/reddradar/internal/reply"
	"github.com/FranksOps/reddradar/pkg/httpclient"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides of keys without a legacy name,
// e.g. REDDRADAR_STORAGE_DRIVER.
const EnvPrefix = "REDDRADAR"

// Storage drivers.
const (
	DriverNone     = "none"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverJSON     = "json"
)

// legacyEnv maps keys to the environment names the hosted product used.
var legacyEnv = map[string]string{
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_CLIENT_SECRET",
	"ai.openai.api_key":    "OPENAI_API_KEY",
	"ai.anthropic.api_key": "ANTHROPIC_API_KEY",
	"ai.gemini.api_key":    "GEMINI_API_KEY",
	"storage.dsn":          "POSTGRES_URL",
}

type Config struct {
	Reddit    RedditConfig       `mapstructure:"reddit"`
	AI        AIConfig           `mapstructure:"ai"`
	Product   reply.Product      `mapstructure:"product"`
	Watchlist pipeline.Watchlist `mapstructure:"watchlist"`
	Templates []reply.Template   `mapstructure:"templates"`
	Storage   StorageConfig      `mapstructure:"storage"`
	Watch     WatchConfig        `mapstructure:"watch"`
	Log       LogConfig          `mapstructure:"log"`
}

type RedditConfig struct {
	ClientID       string        `mapstructure:"client_id"`
	ClientSecret   string        `mapstructure:"client_secret"`
	UserAgent      string        `mapstructure:"user_agent"`
	AuthURL        string        `mapstructure:"auth_url"`
	APIURL         string        `mapstructure:"api_url"`
	PublicURL      string        `mapstructure:"public_url"`
	RequireAuth    bool          `mapstructure:"require_auth"`
	Limit          int           `mapstructure:"limit"`
	Time           string        `mapstructure:"time"`
	Delay          time.Duration `mapstructure:"delay"`
	AnonymousDelay time.Duration `mapstructure:"anonymous_delay"`
	// Jitter is the fraction of each delay added at random, 0 to 1.
	Jitter         float64       `mapstructure:"jitter"`
	Timeout        time.Duration `mapstructure:"timeout"`
	TLSProfile     string        `mapstructure:"tls_profile"`
	Proxies        []string      `mapstructure:"proxies"`
	ProxyFile      string        `mapstructure:"proxy_file"`
}

// Credentials returns the app credentials for the Token Manager.
func (r RedditConfig) Credentials() reddit.Credentials {
	return reddit.Credentials{ClientID: r.ClientID, ClientSecret: r.ClientSecret}
}

// SearchOptions returns the configured per-request search defaults.
func (r RedditConfig) SearchOptions() reddit.SearchOptions {
	return reddit.SearchOptions{Limit: r.Limit, Time: r.Time}
}

type ProviderConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AIConfig struct {
	Order            []string       `mapstructure:"order"`
	OpenAI           ProviderConfig `mapstructure:"openai"`
	Anthropic        ProviderConfig `mapstructure:"anthropic"`
	Gemini           ProviderConfig `mapstructure:"gemini"`
	MaxTokens        int            `mapstructure:"max_tokens"`
	Temperature      float64        `mapstructure:"temperature"`
	PresencePenalty  float64        `mapstructure:"presence_penalty"`
	FrequencyPenalty float64        `mapstructure:"frequency_penalty"`
	Timeout          time.Duration  `mapstructure:"timeout"`
}

// Options returns the generation options for the named provider.
func (a AIConfig) Options(name string) llm.Options {
	var p ProviderConfig
	switch name {
	case llm.ProviderOpenAI:
		p = a.OpenAI
	case llm.ProviderAnthropic:
		p = a.Anthropic
	case llm.ProviderGemini:
		p = a.Gemini
	}
	return llm.Options{
		APIKey:           p.APIKey,
		Model:            p.Model,
		BaseURL:          p.BaseURL,
		MaxTokens:        a.MaxTokens,
		Temperature:      llm.Float(a.Temperature),
		PresencePenalty:  llm.Float(a.PresencePenalty),
		FrequencyPenalty: llm.Float(a.FrequencyPenalty),
		Timeout:          a.Timeout,
	}
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type WatchConfig struct {
	Schedule    string `mapstructure:"schedule"`
	MetricsPort int    `mapstructure:"metrics_port"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// NewLogger builds a text or JSON slog logger writing to w.
func (l LogConfig) NewLogger(w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(l.Level)); err != nil {
		return nil, fmt.Errorf("log level %q: %w", l.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}

	switch strings.ToLower(l.Format) {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("unknown log format %q", l.Format)
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.client_id", "")
	v.SetDefault("reddit.client_secret", "")
	v.SetDefault("reddit.user_agent", reddit.DefaultUserAgent)
	v.SetDefault("reddit.auth_url", reddit.DefaultAuthURL)
	v.SetDefault("reddit.api_url", reddit.DefaultAPIURL)
	v.SetDefault("reddit.public_url", reddit.DefaultPublicURL)
	v.SetDefault("reddit.require_auth", false)
	v.SetDefault("reddit.limit", reddit.DefaultLimit)
	v.SetDefault("reddit.time", reddit.DefaultTime)
	v.SetDefault("reddit.delay", reddit.DefaultDelay)
	v.SetDefault("reddit.anonymous_delay", reddit.DefaultAnonymousDelay)
	v.SetDefault("reddit.jitter", 0.0)
	v.SetDefault("reddit.timeout", 30*time.Second)
	v.SetDefault("reddit.tls_profile", string(httpclient.ProfileGo))
	v.SetDefault("reddit.proxies", []string{})
	v.SetDefault("reddit.proxy_file", "")

	v.SetDefault("ai.order", []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini})
	for _, p := range []string{llm.ProviderOpenAI, llm.ProviderAnthropic, llm.ProviderGemini} {
		v.SetDefault("ai."+p+".api_key", "")
		v.SetDefault("ai."+p+".base_url", "")
	}
	v.SetDefault("ai.openai.model", llm.DefaultOpenAIModel)
	v.SetDefault("ai.anthropic.model", llm.DefaultAnthropicModel)
	v.SetDefault("ai.gemini.model", llm.DefaultGeminiModel)
	v.SetDefault("ai.max_tokens", llm.DefaultMaxTokens)
	v.SetDefault("ai.temperature", llm.DefaultTemperature)
	v.SetDefault("ai.presence_penalty", llm.DefaultPresencePenalty)
	v.SetDefault("ai.frequency_penalty", llm.DefaultFrequencyPenalty)
	v.SetDefault("ai.timeout", llm.DefaultTimeout)

	v.SetDefault("product.name", "")
	v.SetDefault("product.description", "")
	v.SetDefault("product.website", "")
	v.SetDefault("product.target_audience", "")
	v.SetDefault("product.features", []string{})

	v.SetDefault("watchlist.subreddits", []string{})
	v.SetDefault("watchlist.problem_keywords", []string{})
	v.SetDefault("watchlist.competitors", []string{})

	v.SetDefault("storage.driver", DriverNone)
	v.SetDefault("storage.dsn", "")

	v.SetDefault("watch.schedule", "@every 1h")
	v.SetDefault("watch.metrics_port", 9090)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "text")
}

// Load reads configuration. path names a YAML file; when empty,
// ./reddradar.yaml is used if present. A missing .env file is ignored.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range legacyEnv {
		if err := v.BindEnv(key, env, EnvPrefix+"_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_"))); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("reddradar")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if cfg.Storage.Driver == DriverNone && isPostgresURL(cfg.Storage.DSN) {
		cfg.Storage.Driver = DriverPostgres
	}
	if len(cfg.Templates) == 0 {
		cfg.Templates = reply.DefaultTemplates()
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings that would fail later at request time.
func (c *Config) Validate() error {
	var errs []error

	if c.Reddit.Limit <= 0 {
		errs = append(errs, fmt.Errorf("reddit.limit must be positive, got %d", c.Reddit.Limit))
	}
	if !reddit.ValidTime(c.Reddit.Time) {
		errs = append(errs, fmt.Errorf("reddit.time %q is not one of %s", c.Reddit.Time, strings.Join(reddit.TimeWindows, ", ")))
	}
	if c.Reddit.Delay < 0 || c.Reddit.AnonymousDelay < 0 {
		errs = append(errs, errors.New("reddit delays must not be negative"))
	}
	if c.Reddit.Jitter < 0 || c.Reddit.Jitter > 1 {
		errs = append(errs, fmt.Errorf("reddit.jitter must be between 0 and 1, got %g", c.Reddit.Jitter))
	}
	if _, err := httpclient.ParseProfile(c.Reddit.TLSProfile); err != nil {
		errs = append(errs, fmt.Errorf("reddit.tls_profile: %w", err))
	}

	for _, name := range c.AI.Order {
		if !llm.Known(name) {
			errs = append(errs, fmt.Errorf("ai.order: unknown provider %q", name))
		}
	}
	if c.AI.MaxTokens <= 0 {
		errs = append(errs, fmt.Errorf("ai.max_tokens must be positive, got %d", c.AI.MaxTokens))
	}

	switch c.Storage.Driver {
	case DriverNone, "":
	case DriverSQLite, DriverPostgres, DriverJSON:
		if strings.TrimSpace(c.Storage.DSN) == "" {
			errs = append(errs, fmt.Errorf("storage.dsn is required for driver %q", c.Storage.Driver))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown storage driver %q", c.Storage.Driver))
	}

	if c.Watch.MetricsPort < 0 || c.Watch.MetricsPort > 65535 {
		errs = append(errs, fmt.Errorf("watch.metrics_port %d out of range", c.Watch.MetricsPort))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func isPostgresURL(dsn string) bool {
	return strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://")
}
