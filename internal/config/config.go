// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Oracle providers.
const (
	ProviderGRPC   = "grpc"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// Config holds all application configuration.
type Config struct {
	Port               string
	FrontendURL        string
	TrustProxy         bool
	DBPath             string
	PrivilegedDivision string
	Oracle             OracleConfig
	StoreTimeout       time.Duration
	SessionTTL         time.Duration
	HistoryTurns       int
	MaxResultRows      int
	RateLimitPerMinute int
	ConversationLog    ConversationLogConfig
}

// OracleConfig selects and configures the language model backend.
type OracleConfig struct {
	Provider      string
	Addr          string
	Model         string
	OpenAIAPIKey  string
	OpenAIBaseURL string
	GoogleAPIKey  string
	Timeout       time.Duration
}

// ConversationLogConfig controls the NDJSON audit trail.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	queueSize := getEnvInt("CONVERSATION_LOG_QUEUE_SIZE", 1000)
	if queueSize <= 0 {
		queueSize = 1000
	}

	cfg := &Config{
		Port:               getEnv("PORT", "8000"),
		FrontendURL:        getEnv("FRONTEND_URL", ""),
		TrustProxy:         getEnvBool("TRUST_PROXY", false),
		DBPath:             getEnv("DB_PATH", "./data/employees.db"),
		PrivilegedDivision: getEnv("PRIVILEGED_DIVISION", "CISO"),
		Oracle: OracleConfig{
			Provider:      strings.ToLower(strings.TrimSpace(getEnv("ORACLE_PROVIDER", ProviderOpenAI))),
			Addr:          getEnv("ORACLE_ADDR", "localhost:50051"),
			Model:         getEnv("ORACLE_MODEL", "gpt-4o"),
			OpenAIAPIKey:  getEnv("OPENAI_API_KEY", ""),
			OpenAIBaseURL: getEnv("OPENAI_BASE_URL", ""),
			GoogleAPIKey:  getEnv("GOOGLE_API_KEY", ""),
			Timeout:       getEnvDuration("ORACLE_TIMEOUT", 30*time.Second),
		},
		StoreTimeout:       getEnvDuration("STORE_TIMEOUT", 5*time.Second),
		SessionTTL:         getEnvDuration("SESSION_TTL", 60*time.Minute),
		HistoryTurns:       getEnvInt("HISTORY_TURNS", 20),
		MaxResultRows:      getEnvInt("MAX_RESULT_ROWS", 200),
		RateLimitPerMinute: getEnvInt("RATE_LIMIT_PER_MINUTE", 30),
		ConversationLog: ConversationLogConfig{
			Enabled:   getEnvBool("CONVERSATION_LOG_ENABLED", true),
			Dir:       getEnv("CONVERSATION_LOG_DIR", "./data/logs/conversations"),
			QueueSize: queueSize,
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that all required configuration fields are set.
func (c *Config) Validate() error {
	if c.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("DB_PATH cannot be empty")
	}
	if strings.TrimSpace(c.PrivilegedDivision) == "" {
		return fmt.Errorf("PRIVILEGED_DIVISION cannot be empty")
	}
	switch c.Oracle.Provider {
	case ProviderGRPC:
		if c.Oracle.Addr == "" {
			return fmt.Errorf("ORACLE_ADDR is required for the grpc provider")
		}
	case ProviderOpenAI:
		if c.Oracle.OpenAIAPIKey == "" && c.Oracle.OpenAIBaseURL == "" {
			return fmt.Errorf("OPENAI_API_KEY or OPENAI_BASE_URL is required for the openai provider")
		}
	case ProviderGemini:
		if c.Oracle.GoogleAPIKey == "" {
			return fmt.Errorf("GOOGLE_API_KEY is required for the gemini provider")
		}
	default:
		return fmt.Errorf("ORACLE_PROVIDER must be one of grpc, openai, gemini; got %q", c.Oracle.Provider)
	}
	if c.Oracle.Timeout <= 0 {
		return fmt.Errorf("ORACLE_TIMEOUT must be > 0")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be > 0")
	}
	if c.HistoryTurns < 0 {
		return fmt.Errorf("HISTORY_TURNS must be >= 0")
	}
	if c.MaxResultRows <= 0 {
		return fmt.Errorf("MAX_RESULT_ROWS must be > 0")
	}
	if c.RateLimitPerMinute < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE must be >= 0")
	}
	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.FrontendURL == "" ||
		strings.Contains(c.FrontendURL, "localhost") ||
		strings.Contains(c.FrontendURL, "127.0.0.1")
}

// AllowedOrigins lists the origins the CORS middleware and the websocket
// endpoint accept.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	var origins []string
	for _, o := range strings.Split(c.FrontendURL, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return n
}

// getEnvDuration accepts Go durations ("90s") and bare seconds ("90").
func getEnvDuration(key string, fallback time.Duration) time.Duration {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	value = strings.TrimSpace(value)
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	if n, err := strconv.Atoi(value); err == nil {
		return time.Duration(n) * time.Second
	}
	return fallback
}
