package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type RuntimeConfig struct {
	Dev bool
}

type LogConfig struct {
	Level    string `yaml:"level"`    // trace|debug|info|warn|error
	Format   string `yaml:"format"`   // json|console
	Sampling bool   `yaml:"sampling"` // enable sampling in prod
}

type HTTPConfig struct {
	Addr           string        `yaml:"addr"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
}

type AuthConfig struct {
	JWTSecret string        `yaml:"jwt_secret"`
	Issuer    string        `yaml:"issuer"`
	TokenTTL  time.Duration `yaml:"token_ttl"`
}

type DatabaseConfig struct {
	Driver     string `yaml:"driver"` // postgres | sqlite | memory
	URL        string `yaml:"url"`
	SQLitePath string `yaml:"sqlite_path"`
	MaxConns   int32  `yaml:"max_conns"`
}

type RedisConfig struct {
	URL      string        `yaml:"url"` // empty disables redis
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type AIConfig struct {
	Provider        string        `yaml:"provider"` // anthropic | openai | metis | gemini | scripted
	DefaultModel    string        `yaml:"default_model"`
	MaxTokens       int           `yaml:"max_tokens"`
	AnthropicKey    string        `yaml:"anthropic_key"`
	UseBedrock      bool          `yaml:"use_bedrock"`
	BedrockRegion   string        `yaml:"bedrock_region"`
	OpenAIKey       string        `yaml:"openai_key"`
	GeminiKey       string        `yaml:"gemini_key"`
	MetisKey        string        `yaml:"metis_key"`
	MetisBaseURL    string        `yaml:"metis_base_url"`
	ConcurrentLimit int           `yaml:"concurrent_limit"` // max concurrent AI calls
	MaxRetries      int           `yaml:"max_retries"`
	BreakerFailures uint32        `yaml:"breaker_failures"`
	BreakerTimeout  time.Duration `yaml:"breaker_timeout"`
}

type SearchConfig struct {
	Provider   string        `yaml:"provider"` // tavily | serper | brave
	TavilyKey  string        `yaml:"tavily_key"`
	SerperKey  string        `yaml:"serper_key"`
	BraveKey   string        `yaml:"brave_key"`
	MaxResults int           `yaml:"max_results"`
	Timeout    time.Duration `yaml:"timeout"`
	CacheTTL   time.Duration `yaml:"cache_ttl"`
}

type WorkflowConfig struct {
	CallTimeout      time.Duration `yaml:"call_timeout"`
	MaxParallelSteps int           `yaml:"max_parallel_steps"`
	MaxStepsPerJob   int           `yaml:"max_steps_per_job"`
	ListLimit        int           `yaml:"list_limit"`
	TriggerLimit     int           `yaml:"trigger_limit"`
	TriggerWindow    time.Duration `yaml:"trigger_window"`
}

type WorkerConfig struct {
	ID           string        `yaml:"id"`
	Concurrency  int           `yaml:"concurrency"`
	QueueSize    int           `yaml:"queue_size"`
	PollInterval time.Duration `yaml:"poll_interval"`
	LeaseTTL     time.Duration `yaml:"lease_ttl"`
	UseRedisLock bool          `yaml:"use_redis_lock"`
	// MaxAttempts fails a job claimed more often than this; negative disables it.
	MaxAttempts  int           `yaml:"max_attempts"`
}

type NotifyConfig struct {
	Telegram struct {
		Token   string  `yaml:"token"`
		ChatIDs []int64 `yaml:"chat_ids"`
	} `yaml:"telegram"`
}

type Config struct {
	Log      LogConfig      `yaml:"log"`
	HTTP     HTTPConfig     `yaml:"http"`
	Auth     AuthConfig     `yaml:"auth"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	AI       AIConfig       `yaml:"ai"`
	Search   SearchConfig   `yaml:"search"`
	Workflow WorkflowConfig `yaml:"workflow"`
	Worker   WorkerConfig   `yaml:"worker"`
	Notify   NotifyConfig   `yaml:"notify"`

	Runtime RuntimeConfig `yaml:"-"`
}

// Load reads the yaml file at path. A missing file is allowed in dev mode,
// where defaults and environment variables are enough to run.
func Load(path string, dev bool) (*Config, error) {
	var cfg Config
	b, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	case errors.Is(err, os.ErrNotExist) && dev:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv(os.Getenv)
	cfg.applyDefaults()
	cfg.Runtime.Dev = dev
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := strings.TrimSpace(getenv(key)); v != "" {
			*dst = v
		}
	}
	set(&c.Database.URL, "DATABASE_URL")
	set(&c.AI.AnthropicKey, "ANTHROPIC_API_KEY")
	set(&c.AI.OpenAIKey, "OPENAI_API_KEY")
	set(&c.AI.GeminiKey, "GEMINI_API_KEY")
	set(&c.AI.MetisKey, "METIS_API_KEY")
	set(&c.Search.TavilyKey, "TAVILY_API_KEY")
	set(&c.Search.SerperKey, "SERPER_API_KEY")
	set(&c.Search.BraveKey, "BRAVE_API_KEY")
	set(&c.Auth.JWTSecret, "JWT_SECRET")
	set(&c.Notify.Telegram.Token, "TELEGRAM_BOT_TOKEN")
}

func (c *Config) applyDefaults() {
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
	if c.HTTP.Addr == "" {
		c.HTTP.Addr = ":8080"
	}
	if c.HTTP.RequestTimeout <= 0 {
		c.HTTP.RequestTimeout = 30 * time.Second
	}
	if c.HTTP.ReadTimeout <= 0 {
		c.HTTP.ReadTimeout = 10 * time.Second
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "workflowd"
	}
	if c.Auth.TokenTTL <= 0 {
		c.Auth.TokenTTL = 24 * time.Hour
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "postgres"
	}
	if c.Database.SQLitePath == "" {
		c.Database.SQLitePath = "workflow.db"
	}
	if c.Database.MaxConns <= 0 {
		c.Database.MaxConns = 10
	}
	c.Redis.TTL = normalizeTTL(c.Redis.TTL)

	if c.AI.Provider == "" {
		c.AI.Provider = "anthropic"
	}
	if c.AI.DefaultModel == "" {
		c.AI.DefaultModel = defaultModels[c.AI.Provider]
	}
	if c.AI.MaxTokens <= 0 {
		c.AI.MaxTokens = 4096
	}
	if c.AI.BedrockRegion == "" {
		c.AI.BedrockRegion = "us-east-1"
	}
	if c.AI.MetisBaseURL == "" {
		c.AI.MetisBaseURL = "https://api.metisai.ir/openai/v1"
	}
	if c.AI.ConcurrentLimit <= 0 {
		c.AI.ConcurrentLimit = 16
	}
	if c.AI.BreakerFailures == 0 {
		c.AI.BreakerFailures = 5
	}
	if c.AI.BreakerTimeout <= 0 {
		c.AI.BreakerTimeout = 30 * time.Second
	}

	if c.Search.Provider == "" {
		c.Search.Provider = "tavily"
	}
	if c.Search.MaxResults <= 0 {
		c.Search.MaxResults = 5
	}
	if c.Search.Timeout <= 0 {
		c.Search.Timeout = 20 * time.Second
	}
	if c.Search.CacheTTL <= 0 {
		c.Search.CacheTTL = 6 * time.Hour
	}

	if c.Workflow.CallTimeout <= 0 {
		c.Workflow.CallTimeout = 5 * time.Minute
	}
	if c.Workflow.MaxParallelSteps <= 0 {
		c.Workflow.MaxParallelSteps = 1
	}
	if c.Workflow.MaxStepsPerJob <= 0 {
		c.Workflow.MaxStepsPerJob = 20
	}
	if c.Workflow.ListLimit <= 0 {
		c.Workflow.ListLimit = 50
	}
	if c.Workflow.TriggerWindow <= 0 {
		c.Workflow.TriggerWindow = time.Minute
	}

	if c.Worker.ID == "" {
		host, _ := os.Hostname()
		c.Worker.ID = fmt.Sprintf("%s-%d", host, os.Getpid())
	}
	if c.Worker.Concurrency <= 0 {
		c.Worker.Concurrency = 4
	}
	if c.Worker.QueueSize <= 0 {
		c.Worker.QueueSize = c.Worker.Concurrency * 2
	}
	if c.Worker.PollInterval <= 0 {
		c.Worker.PollInterval = 2 * time.Second
	}
	if c.Worker.LeaseTTL <= 0 {
		c.Worker.LeaseTTL = 2 * time.Minute
	}
	if c.Worker.MaxAttempts == 0 {
		c.Worker.MaxAttempts = 5
	}
}

// Validate does minimal checks on settings that have no safe default.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return errors.New("database.url is required for the postgres driver")
		}
	case "sqlite", "memory":
	default:
		return fmt.Errorf("unknown database.driver %q", c.Database.Driver)
	}
	if c.Auth.JWTSecret == "" && !c.Runtime.Dev {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Worker.UseRedisLock && c.Redis.URL == "" {
		return errors.New("worker.use_redis_lock needs redis.url")
	}
	switch c.Search.Provider {
	case "tavily", "serper", "brave":
	default:
		return fmt.Errorf("unknown search.provider %q", c.Search.Provider)
	}
	if _, ok := defaultModels[c.AI.Provider]; !ok {
		return fmt.Errorf("unknown ai.provider %q", c.AI.Provider)
	}
	return nil
}

// SearchKey returns the API key of the configured search provider; empty
// means search is disabled.
func (c *Config) SearchKey() string {
	switch c.Search.Provider {
	case "serper":
		return c.Search.SerperKey
	case "brave":
		return c.Search.BraveKey
	default:
		return c.Search.TavilyKey
	}
}

var defaultModels = map[string]string{
	"anthropic": "claude-sonnet-4-5",
	"openai":    "gpt-4o-mini",
	"metis":     "gpt-4o-mini",
	"gemini":    "gemini-2.5-flash",
	"scripted":  "scripted",
}

// Local is the configuration for in-process runs: an in-memory store,
// defaults, and secrets from the environment. It skips validation.
func Local() *Config {
	var c Config
	c.Database.Driver = "memory"
	c.applyEnv(os.Getenv)
	c.applyDefaults()
	c.Runtime.Dev = true
	return &c
}

func normalizeTTL(d time.Duration) time.Duration {
	if d <= 0 {
		return time.Hour
	}
	return d
}
