package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

type Config struct {
	TelegramBotToken string
	DatabaseURL      string
	RedisURL         string
	Port             string

	OperatorChatIDs         []int64
	WebhookSecret           string
	WebhookRateLimitPerMin  int
	SendTimeoutSecs         int
	ProviderTimeoutSecs     int
	DistributionConcurrency int

	SessionBackend        string
	SessionTTLMins        int
	RegistryBackend       string
	RegistryTTLHours      int
	DeliveryRetentionDays int

	RequireSubscription bool
	SubscribeURL        string
	ReactivateURL       string
	LoadingAnimationURL string

	OpenAIAPIKey         string
	OpenAIModel          string
	ChartImgAPIKey       string
	ChartImgBaseURL      string
	CalendarBaseURL      string
	ProviderCacheTTLMins int

	LogLevel     string
	LogPretty    bool
	OTLPEndpoint string

	MCPTransport          string
	MCPHTTPEnabled        bool
	MCPHTTPBind           string
	MCPHTTPPort           int
	MCPAuthToken          string
	MCPRequestTimeoutSecs int
	MCPRateLimitPerMin    int
}

const (
	BackendMemory = "memory"
	BackendRedis  = "redis"

	defaultLoadingAnimationURL = "https://media.giphy.com/media/gSzIKNrqtotEYrZv7i/giphy.gif"
)

func Load() *Config {
	cfg := &Config{
		TelegramBotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		Port:             strings.TrimSpace(os.Getenv("PORT")),
		WebhookSecret:    os.Getenv("WEBHOOK_SECRET"),
		SubscribeURL:     strings.TrimSpace(os.Getenv("SUBSCRIBE_URL")),
		OpenAIAPIKey:     os.Getenv("OPENAI_API_KEY"),
		ChartImgAPIKey:   os.Getenv("CHART_IMG_API_KEY"),
		ChartImgBaseURL:  strings.TrimSpace(os.Getenv("CHART_IMG_BASE_URL")),
		CalendarBaseURL:  strings.TrimSpace(os.Getenv("CALENDAR_BASE_URL")),
		OTLPEndpoint:     strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")),
		MCPAuthToken:     os.Getenv("MCP_AUTH_TOKEN"),
	}

	if cfg.TelegramBotToken == "" {
		log.Warn().Msg("TELEGRAM_BOT_TOKEN not set")
	}
	if cfg.DatabaseURL == "" {
		log.Warn().Msg("DATABASE_URL not set, subscriptions and the signal archive are disabled")
	}
	if cfg.RedisURL == "" {
		log.Warn().Msg("REDIS_URL not set, defaulting to localhost:6379")
		cfg.RedisURL = "localhost:6379"
	}
	if cfg.WebhookSecret == "" {
		log.Warn().Msg("WEBHOOK_SECRET not set, webhook accepts unauthenticated requests")
	}

	cfg.OperatorChatIDs = parseChatIDs(os.Getenv("OPERATOR_CHAT_IDS"))
	cfg.WebhookRateLimitPerMin = intEnv("WEBHOOK_RATE_LIMIT_PER_MIN", 120)
	cfg.SendTimeoutSecs = intEnv("SEND_TIMEOUT_SECS", 10)
	cfg.ProviderTimeoutSecs = intEnv("PROVIDER_TIMEOUT_SECS", 30)
	cfg.DistributionConcurrency = intEnv("DISTRIBUTION_CONCURRENCY", 8)

	cfg.SessionBackend = backendEnv("SESSION_BACKEND")
	cfg.SessionTTLMins = intEnv("SESSION_TTL_MINS", 24*60)
	cfg.RegistryBackend = backendEnv("REGISTRY_BACKEND")
	cfg.RegistryTTLHours = intEnv("REGISTRY_TTL_HOURS", 7*24)
	cfg.DeliveryRetentionDays = intEnv("DELIVERY_RETENTION_DAYS", 30)

	cfg.LoadingAnimationURL = loadingAnimationEnv()
	cfg.ReactivateURL = strings.TrimSpace(os.Getenv("REACTIVATE_URL"))
	if cfg.ReactivateURL == "" {
		cfg.ReactivateURL = cfg.SubscribeURL
	}

	cfg.RequireSubscription = boolEnv("REQUIRE_SUBSCRIPTION", false)
	if cfg.RequireSubscription && cfg.DatabaseURL == "" {
		log.Warn().Msg("REQUIRE_SUBSCRIPTION set without DATABASE_URL, nobody will be entitled")
	}

	if cfg.OpenAIAPIKey == "" {
		log.Warn().Msg("OPENAI_API_KEY not set, sentiment and technical summaries will be unavailable")
	}
	cfg.OpenAIModel = strings.TrimSpace(os.Getenv("OPENAI_MODEL"))
	if cfg.OpenAIModel == "" {
		cfg.OpenAIModel = "gpt-4o-mini"
	}
	cfg.ProviderCacheTTLMins = intEnv("PROVIDER_CACHE_TTL_MINS", 15)

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(os.Getenv("LOG_LEVEL")))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	cfg.LogPretty = boolEnv("LOG_PRETTY", false)

	cfg.MCPTransport = strings.ToLower(strings.TrimSpace(os.Getenv("MCP_TRANSPORT")))
	if cfg.MCPTransport == "" {
		cfg.MCPTransport = "stdio"
	}
	if cfg.MCPTransport != "stdio" && cfg.MCPTransport != "http" {
		log.Warn().Str("value", cfg.MCPTransport).Msg("unsupported MCP_TRANSPORT, defaulting to stdio")
		cfg.MCPTransport = "stdio"
	}
	cfg.MCPHTTPEnabled = boolEnv("MCP_HTTP_ENABLED", false)
	cfg.MCPHTTPBind = strings.TrimSpace(os.Getenv("MCP_HTTP_BIND"))
	if cfg.MCPHTTPBind == "" {
		cfg.MCPHTTPBind = "127.0.0.1"
	}
	cfg.MCPHTTPPort = intEnv("MCP_HTTP_PORT", 8090)
	cfg.MCPRequestTimeoutSecs = intEnv("MCP_REQUEST_TIMEOUT_SECS", 5)
	cfg.MCPRateLimitPerMin = intEnv("MCP_RATE_LIMIT_PER_MIN", 60)

	return cfg
}

func (c *Config) SendTimeout() time.Duration {
	return time.Duration(c.SendTimeoutSecs) * time.Second
}

func (c *Config) ProviderTimeout() time.Duration {
	return time.Duration(c.ProviderTimeoutSecs) * time.Second
}

func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.SessionTTLMins) * time.Minute
}

func (c *Config) RegistryTTL() time.Duration {
	return time.Duration(c.RegistryTTLHours) * time.Hour
}

func (c *Config) DeliveryRetention() time.Duration {
	return time.Duration(c.DeliveryRetentionDays) * 24 * time.Hour
}

func (c *Config) ProviderCacheTTL() time.Duration {
	return time.Duration(c.ProviderCacheTTLMins) * time.Minute
}

// intEnv returns fallback unless key holds a positive integer.
func intEnv(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		log.Warn().Str("key", key).Str("value", v).Int("default", fallback).Msg("invalid integer setting, using default")
		return fallback
	}
	return n
}

func boolEnv(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	switch {
	case strings.EqualFold(v, "true"), v == "1":
		return true
	case strings.EqualFold(v, "false"), v == "0":
		return false
	default:
		return fallback
	}
}

func backendEnv(key string) string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return BackendMemory
	case BackendMemory, BackendRedis:
		return v
	default:
		log.Warn().Str("key", key).Str("value", v).Msg("unsupported backend, defaulting to memory")
		return BackendMemory
	}
}

// parseChatIDs reads a comma list of Telegram chat ids, skipping junk and duplicates.
func parseChatIDs(raw string) []int64 {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			log.Warn().Str("value", part).Msg("ignoring invalid OPERATOR_CHAT_IDS entry")
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// loadingAnimationEnv reads LOADING_ANIMATION_URL; "off" or "none" disables the animation.
func loadingAnimationEnv() string {
	v := strings.TrimSpace(os.Getenv("LOADING_ANIMATION_URL"))
	switch strings.ToLower(v) {
	case "":
		return defaultLoadingAnimationURL
	case "off", "none":
		return ""
	}
	return v
}
