package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/deusflow/mnadigest/internal/llm"
	"github.com/deusflow/mnadigest/internal/publish"
	"github.com/deusflow/mnadigest/internal/ratelimit"
)

const DefaultBackends = "gemini:gemini-2.0-flash:15,gemini:gemini-2.0-flash-lite-preview:30"

var ErrInvalidBackend = errors.New("invalid backend definition")

type Config struct {
	// Credentials
	GeminiAPIKey    string
	OpenAIAPIKey    string
	AnthropicAPIKey string
	SlackBotToken   string
	TelegramToken   string

	// Publishing
	Publisher   string // slack | telegram
	ChannelName string
	DryRun      bool

	// Feeds
	FeedsConfigPath string

	// Summarization
	Backends       []ratelimit.ModelBackend
	Failover       bool
	MaxPromptChars int
	LocalDedup     bool

	// App settings
	Debug          bool
	RequestTimeout time.Duration

	// Log file rotation, disabled when LogFile is empty
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
}

func Load() (*Config, error) {
	cfg := &Config{
		// Default values
		Publisher:       publish.KindSlack,
		ChannelName:     "mna-news-channel",
		FeedsConfigPath: "configs/mna_feeds.yaml",
		MaxPromptChars:  900000,
		LocalDedup:      true,
		RequestTimeout:  30 * time.Second,
		LogMaxSizeMB:    10,
		LogMaxBackups:   3,
		LogMaxAgeDays:   28,
	}

	// Load from environment
	cfg.GeminiAPIKey = getEnvOrDefault("GEMINI_API", os.Getenv("GEMINI_API_KEY"))
	cfg.OpenAIAPIKey = os.Getenv("OPENAI_API_KEY")
	cfg.AnthropicAPIKey = os.Getenv("ANTHROPIC_API_KEY")
	cfg.SlackBotToken = os.Getenv("SLACK_BOT_TOKEN")
	cfg.TelegramToken = os.Getenv("TELEGRAM_TOKEN")

	cfg.Publisher = strings.ToLower(getEnvOrDefault("PUBLISHER", cfg.Publisher))
	cfg.ChannelName = getEnvOrDefault("CHANNEL_NAME", cfg.ChannelName)
	cfg.FeedsConfigPath = getEnvOrDefault("FEEDS_CONFIG_PATH", cfg.FeedsConfigPath)
	cfg.LogFile = os.Getenv("LOG_FILE")

	backends, err := ParseBackends(getEnvOrDefault("SUMMARY_BACKENDS", DefaultBackends))
	if err != nil {
		return nil, err
	}
	cfg.Backends = backends

	cfg.Failover = getEnvBoolOrDefault("SUMMARY_FAILOVER", false)
	cfg.LocalDedup = getEnvBoolOrDefault("LOCAL_DEDUP", cfg.LocalDedup)
	cfg.DryRun = getEnvBoolOrDefault("DRY_RUN", false)
	cfg.Debug = getEnvBoolOrDefault("DEBUG", false)

	if v := os.Getenv("MAX_PROMPT_CHARS"); v != "" {
		if val, err := strconv.Atoi(v); err == nil && val > 0 {
			cfg.MaxPromptChars = val
		}
	}
	if v := os.Getenv("REQUEST_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			cfg.RequestTimeout = d
		}
	}

	cfg.LogMaxSizeMB = getEnvIntOrDefault("LOG_MAX_SIZE_MB", cfg.LogMaxSizeMB)
	cfg.LogMaxBackups = getEnvIntOrDefault("LOG_MAX_BACKUPS", cfg.LogMaxBackups)
	cfg.LogMaxAgeDays = getEnvIntOrDefault("LOG_MAX_AGE_DAYS", cfg.LogMaxAgeDays)

	return cfg, cfg.Validate()
}

// ParseBackends reads a comma separated list of provider:model:rpm triples.
func ParseBackends(s string) ([]ratelimit.ModelBackend, error) {
	var out []ratelimit.ModelBackend
	seen := make(map[string]bool)
	for _, raw := range strings.Split(s, ",") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		parts := strings.Split(raw, ":")
		if len(parts) != 3 {
			return nil, fmt.Errorf("%w %q: want provider:model:rpm", ErrInvalidBackend, raw)
		}
		provider := strings.ToLower(strings.TrimSpace(parts[0]))
		name := strings.TrimSpace(parts[1])
		rpm, err := strconv.Atoi(strings.TrimSpace(parts[2]))
		if err != nil {
			return nil, fmt.Errorf("%w %q: bad rpm: %w", ErrInvalidBackend, raw, err)
		}
		if name == "" {
			return nil, fmt.Errorf("%w %q: empty model name", ErrInvalidBackend, raw)
		}
		if seen[name] {
			return nil, fmt.Errorf("%w %q: duplicate model name", ErrInvalidBackend, raw)
		}
		seen[name] = true
		out = append(out, ratelimit.ModelBackend{Provider: provider, Name: name, RequestsPerMinute: rpm})
	}
	return out, nil
}

// Providers lists the distinct providers used by the configured backends.
func (c *Config) Providers() []string {
	var out []string
	seen := make(map[string]bool)
	for _, b := range c.Backends {
		if !seen[b.Provider] {
			seen[b.Provider] = true
			out = append(out, b.Provider)
		}
	}
	return out
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func (c *Config) Validate() error {
	if c.Publisher != publish.KindSlack && c.Publisher != publish.KindTelegram {
		return fmt.Errorf("PUBLISHER must be 'slack' or 'telegram'")
	}
	if !c.DryRun {
		if c.Publisher == publish.KindSlack && c.SlackBotToken == "" {
			return fmt.Errorf("SLACK_BOT_TOKEN is required")
		}
		if c.Publisher == publish.KindTelegram && c.TelegramToken == "" {
			return fmt.Errorf("TELEGRAM_TOKEN is required")
		}
	}
	if strings.TrimSpace(c.ChannelName) == "" {
		return fmt.Errorf("CHANNEL_NAME is required")
	}
	if len(c.Backends) == 0 {
		return fmt.Errorf("SUMMARY_BACKENDS must name at least one backend")
	}
	for _, b := range c.Backends {
		if b.RequestsPerMinute <= 0 {
			return fmt.Errorf("%w: %s: rpm must be positive", ErrInvalidBackend, b.Name)
		}
		switch b.Provider {
		case llm.ProviderGemini:
			if c.GeminiAPIKey == "" {
				return fmt.Errorf("GEMINI_API is required for backend %s", b.Name)
			}
		case llm.ProviderOpenAI:
			if c.OpenAIAPIKey == "" {
				return fmt.Errorf("OPENAI_API_KEY is required for backend %s", b.Name)
			}
		case llm.ProviderAnthropic:
			if c.AnthropicAPIKey == "" {
				return fmt.Errorf("ANTHROPIC_API_KEY is required for backend %s", b.Name)
			}
		default:
			return fmt.Errorf("%w: %s: unknown provider %q", ErrInvalidBackend, b.Name, b.Provider)
		}
	}
	return nil
}
