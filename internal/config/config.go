package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
)

const (
	BackendMemory = "memory"
	BackendBolt   = "bolt"
)

type Config struct {
	PerplexityAPIKey  string
	PerplexityURL     string
	PerplexityModel   string
	CompletionTimeout time.Duration
	CompletionRetries int

	TwilioAccountSID        string
	TwilioAuthToken         string
	TwilioValidateSignature bool

	BaseURL string
	Port    string

	HistoryBackend string
	DataDir        string
	HistoryIdleTTL time.Duration

	LogLevel log.Level
}

func Load() (*Config, error) {
	// .env is optional, env vars may already be set in production
	_ = godotenv.Load()

	cfg := &Config{
		PerplexityAPIKey: os.Getenv("PERPLEXITY_API_KEY"),
		PerplexityURL:    getEnv("PERPLEXITY_API_URL", "https://api.perplexity.ai/chat/completions"),
		PerplexityModel:  getEnv("PERPLEXITY_MODEL", "sonar"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		BaseURL:          os.Getenv("BASE_URL"),
		Port:             getEnv("PORT", "8000"),
		HistoryBackend:   strings.ToLower(getEnv("HISTORY_BACKEND", BackendMemory)),
		DataDir:          getEnv("DATA_DIR", "."),
	}

	var err error
	if cfg.CompletionTimeout, err = getEnvMillis("COMPLETION_TIMEOUT_MS", 30000); err != nil {
		return nil, err
	}
	if cfg.HistoryIdleTTL, err = getEnvMillis("HISTORY_IDLE_TTL_MS", 0); err != nil {
		return nil, err
	}
	if cfg.CompletionRetries, err = getEnvInt("COMPLETION_MAX_RETRIES", 1); err != nil {
		return nil, err
	}
	if cfg.TwilioValidateSignature, err = getEnvBool("TWILIO_VALIDATE_SIGNATURE", false); err != nil {
		return nil, err
	}
	if cfg.LogLevel, err = log.ParseLevel(getEnv("LOG_LEVEL", "info")); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	if _, err := strconv.Atoi(cfg.Port); err != nil {
		return nil, fmt.Errorf("PORT must be a number, got %q", cfg.Port)
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = fmt.Sprintf("http://localhost:%s", cfg.Port)
	}

	switch cfg.HistoryBackend {
	case BackendMemory, BackendBolt:
	default:
		return nil, fmt.Errorf("HISTORY_BACKEND must be %q or %q, got %q", BackendMemory, BackendBolt, cfg.HistoryBackend)
	}

	if cfg.CompletionRetries < 0 {
		return nil, fmt.Errorf("COMPLETION_MAX_RETRIES must not be negative")
	}
	if cfg.TwilioValidateSignature && cfg.TwilioAuthToken == "" {
		return nil, fmt.Errorf("TWILIO_VALIDATE_SIGNATURE requires TWILIO_AUTH_TOKEN")
	}

	return cfg, nil
}

// ExchangeBudget is the longest a single exchange can spend on the
// completion service, retries included.
func (c *Config) ExchangeBudget() time.Duration {
	return c.CompletionTimeout * time.Duration(c.CompletionRetries+1)
}

// WriteTimeout bounds a webhook response. Exchanges for one sender are
// serialized, so it leaves room for one exchange queued ahead of this one.
func (c *Config) WriteTimeout() time.Duration {
	return 2*c.ExchangeBudget() + 10*time.Second
}

// MaskedAPIKey shows only the last four characters of the completion key.
func (c *Config) MaskedAPIKey() string {
	if c.PerplexityAPIKey == "" {
		return "Not found"
	}
	k := c.PerplexityAPIKey
	if len(k) > 4 {
		k = k[len(k)-4:]
	}
	return strings.Repeat("*", 8) + k
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer, got %q", key, val)
	}
	return n, nil
}

func getEnvMillis(key string, defaultVal int) (time.Duration, error) {
	n, err := getEnvInt(key, defaultVal)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("%s must not be negative", key)
	}
	return time.Duration(n) * time.Millisecond, nil
}

func getEnvBool(key string, defaultVal bool) (bool, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return false, fmt.Errorf("%s must be a boolean, got %q", key, val)
	}
	return b, nil
}
