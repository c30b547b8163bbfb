package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the Columbus worker process.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Dispatch  DispatchConfig
	Scheduler SchedulerConfig
	Worker    WorkerConfig
	AI        AIConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

// DispatchConfig controls the job table poller.
type DispatchConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// SchedulerConfig controls the recurring scan scheduler.
type SchedulerConfig struct {
	Interval time.Duration
}

// WorkerConfig controls queue consumers.
type WorkerConfig struct {
	JobTimeout  time.Duration
	PromptDelay time.Duration
}

// AIConfig carries per-assistant API settings. Each assistant has an
// independent client; a missing key disables that client rather than the
// whole process.
type AIConfig struct {
	Timeout    time.Duration
	ChatGPT    ChatGPTConfig
	Claude     ClaudeConfig
	Gemini     GeminiConfig
	Perplexity PerplexityConfig
}

type ChatGPTConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type ClaudeConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type GeminiConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

type PerplexityConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("COLUMBUS_PORT", 8080),
			Env:  envString("COLUMBUS_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Dispatch: DispatchConfig{
			PollInterval: envDuration("DISPATCH_POLL_INTERVAL", 5*time.Second),
			BatchSize:    envInt("DISPATCH_BATCH_SIZE", 10),
		},
		Scheduler: SchedulerConfig{
			Interval: envDuration("SCHEDULER_INTERVAL", 6*time.Hour),
		},
		Worker: WorkerConfig{
			JobTimeout:  envDuration("WORKER_JOB_TIMEOUT", 10*time.Minute),
			PromptDelay: envDuration("WORKER_PROMPT_DELAY", 2*time.Second),
		},
		AI: AIConfig{
			Timeout: envDuration("AI_TIMEOUT", 60*time.Second),
			ChatGPT: ChatGPTConfig{
				BaseURL: envString("CHATGPT_BASE_URL", "https://api.openai.com"),
				APIKey:  os.Getenv("CHATGPT_API_KEY"),
				Model:   envString("CHATGPT_MODEL", "gpt-4o"),
			},
			Claude: ClaudeConfig{
				BaseURL: envString("CLAUDE_BASE_URL", "https://api.anthropic.com"),
				APIKey:  os.Getenv("CLAUDE_API_KEY"),
				Model:   envString("CLAUDE_MODEL", "claude-sonnet-4-5-20250929"),
			},
			Gemini: GeminiConfig{
				BaseURL: envString("GEMINI_BASE_URL", "https://generativelanguage.googleapis.com"),
				APIKey:  os.Getenv("GEMINI_API_KEY"),
				Model:   envString("GEMINI_MODEL", "gemini-2.0-flash"),
			},
			Perplexity: PerplexityConfig{
				BaseURL: envString("PERPLEXITY_BASE_URL", "https://api.perplexity.ai"),
				APIKey:  os.Getenv("PERPLEXITY_API_KEY"),
				Model:   envString("PERPLEXITY_MODEL", "sonar"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("DISPATCH_POLL_INTERVAL must be positive, got %s", c.Dispatch.PollInterval)
	}
	if c.Dispatch.BatchSize <= 0 {
		return fmt.Errorf("DISPATCH_BATCH_SIZE must be positive, got %d", c.Dispatch.BatchSize)
	}
	if c.Scheduler.Interval <= 0 {
		return fmt.Errorf("SCHEDULER_INTERVAL must be positive, got %s", c.Scheduler.Interval)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
