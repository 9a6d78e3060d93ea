// Package config provides environment configuration for the agent backend.
package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// DefaultTokenListURL is the verified token list published by Jupiter.
const DefaultTokenListURL = "https://tokens.jup.ag/tokens?tags=verified"

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Storage
	DatabaseURL string
	RedisURL    string
	NATSURL     string

	// Auth (shared with the web front end)
	AuthSecret    string
	AuthIssuerURL string

	// LLM settings
	LLMProvider     string
	LLMModel        string
	OpenAIAPIKey    string
	AnthropicAPIKey string

	// Transaction service
	ActionAPIURL    string
	ActionAPISecret string

	// Solana JSON-RPC upstream for /rpc
	SolanaRPCURL string

	// Token catalog
	TokenListURL         string
	TokenRefreshInterval time.Duration

	// Conversation streaming
	StreamPacing        time.Duration
	HistoryContextTurns int

	// HTTP edge
	CORSOrigins       []string
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Mention bot
	BotEnabled      bool
	BotPollInterval time.Duration
	BotMaxReads     int
	BotMaxPosts     int
	Twitter         TwitterConfig

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// TwitterConfig holds X API credentials.
type TwitterConfig struct {
	BearerToken    string
	ConsumerKey    string
	ConsumerSecret string
	AccessToken    string
	AccessSecret   string
}

// Load reads configuration from environment variables. A .env file in the
// working directory is applied first when present; real environment wins.
func Load() *Config {
	_ = godotenv.Load()

	authURL := getEnv("NEXTAUTH_URL", "")
	authSecret := getEnv("NEXTAUTH_SECRET", "")

	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 0),

		// Storage
		DatabaseURL: getEnv("DATABASE_URL", ""),
		RedisURL:    getEnv("REDIS_URL", ""),
		NATSURL:     getEnv("NATS_URL", ""),

		// Auth
		AuthSecret:    authSecret,
		AuthIssuerURL: authURL,

		// LLM
		LLMProvider:     strings.ToLower(getEnv("LLM_PROVIDER", "openai")),
		LLMModel:        getEnv("LLM_MODEL", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),

		// Transaction service
		ActionAPIURL:    getEnv("ACTION_API_URL", authURL),
		ActionAPISecret: getEnv("ACTION_API_SECRET", authSecret),

		SolanaRPCURL: getEnv("SOLANA_RPC_URL", getEnv("HELIUS_RPC", "")),

		// Token catalog
		TokenListURL:         getEnv("TOKEN_LIST_URL", DefaultTokenListURL),
		TokenRefreshInterval: getDurationEnv("TOKEN_REFRESH_INTERVAL", 25*time.Minute),

		// Streaming
		StreamPacing:        getDurationEnv("STREAM_PACING", 100*time.Millisecond),
		HistoryContextTurns: getIntEnv("HISTORY_CONTEXT_TURNS", 10),

		// HTTP edge
		CORSOrigins:       getListEnv("CORS_ORIGINS", defaultOrigins(authURL)),
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Mention bot
		BotEnabled:      getBoolEnv("BOT_ENABLED", false),
		BotPollInterval: getDurationEnv("BOT_POLL_INTERVAL", 300*time.Second),
		BotMaxReads:     getIntEnv("BOT_MAX_READS", 9900),
		BotMaxPosts:     getIntEnv("BOT_MAX_POSTS", 2900),
		Twitter: TwitterConfig{
			BearerToken:    getEnv("TWITTER_BEARER_TOKEN", ""),
			ConsumerKey:    getEnv("TWITTER_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("TWITTER_CONSUMER_SECRET", ""),
			AccessToken:    getEnv("TWITTER_ACCESS_TOKEN", ""),
			AccessSecret:   getEnv("TWITTER_ACCESS_SECRET", ""),
		},

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports settings without which the server cannot start.
func (c *Config) Validate() error {
	var errs []error
	if c.DatabaseURL == "" {
		errs = append(errs, errors.New("DATABASE_URL is required"))
	}
	if c.AuthSecret == "" {
		errs = append(errs, errors.New("NEXTAUTH_SECRET is required"))
	}
	if c.AuthIssuerURL == "" {
		errs = append(errs, errors.New("NEXTAUTH_URL is required"))
	}
	switch c.LLMProvider {
	case "openai", "anthropic":
	default:
		errs = append(errs, errors.New("LLM_PROVIDER must be openai or anthropic"))
	}
	if c.TokenRefreshInterval <= 0 {
		errs = append(errs, errors.New("TOKEN_REFRESH_INTERVAL must be positive"))
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive"))
	}
	if c.StreamPacing < 0 {
		errs = append(errs, errors.New("STREAM_PACING must not be negative"))
	}
	if c.BotEnabled && c.BotPollInterval <= 0 {
		errs = append(errs, errors.New("BOT_POLL_INTERVAL must be positive"))
	}
	if c.BotEnabled && (c.Twitter.BearerToken == "" || c.Twitter.ConsumerKey == "" || c.Twitter.AccessToken == "") {
		errs = append(errs, errors.New("BOT_ENABLED requires TWITTER_* credentials"))
	}
	return errors.Join(errs...)
}

func defaultOrigins(authURL string) []string {
	origins := []string{"https://sol-ai-agent.com", "https://www.sol-ai-agent.com"}
	if authURL != "" {
		origins = append([]string{authURL}, origins...)
	}
	return origins
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
