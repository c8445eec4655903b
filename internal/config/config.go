package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/manpreetbhatti/collabrooms/internal/chat"
)

type Config struct {
	Env      string
	LogLevel string
	Port     string

	CORSAllow     []string
	HTTPRateLimit int // requests per minute per client IP

	WSMessagesPerSecond float64
	WSMessageBurst      int

	ChatBackend   string
	RedisAddr     string // host:port
	RedisUsername string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	StoreTimeout  time.Duration

	StrictJoinResponses bool
	CloseEmptyRooms     bool
	MaxMessageLength    int

	ChatHistoryLimit  int
	RetentionInterval time.Duration

	ShutdownTimeout time.Duration
}

// Load reads the environment, after an optional .env file in the
// working directory.
func Load() (Config, error) {
	_ = godotenv.Load()

	cfg := Config{
		Env:      getEnv("APP_ENV", "dev"),
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Port:     getEnv("PORT", "8080"),

		CORSAllow:     splitCSV(getEnv("CORS_ALLOW", "*")),
		HTTPRateLimit: getEnvInt("HTTP_RATE_LIMIT", 60),

		WSMessagesPerSecond: getEnvFloat("WS_MESSAGES_PER_SECOND", 100),
		WSMessageBurst:      getEnvInt("WS_MESSAGE_BURST", 200),

		ChatBackend:   strings.ToLower(getEnv("CHAT_BACKEND", chat.BackendMemory)),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername: os.Getenv("REDIS_USERNAME"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		SQLitePath:    getEnv("SQLITE_PATH", "./data/chat.db"),
		StoreTimeout:  getEnvDuration("STORE_TIMEOUT", 5*time.Second),

		StrictJoinResponses: getEnvBool("STRICT_JOIN_RESPONSES", true),
		CloseEmptyRooms:     getEnvBool("CLOSE_EMPTY_ROOMS", false),
		MaxMessageLength:    getEnvInt("MAX_MESSAGE_LENGTH", 5000),

		ChatHistoryLimit:  getEnvInt("CHAT_HISTORY_LIMIT", 500),
		RetentionInterval: getEnvDuration("RETENTION_INTERVAL", 5*time.Minute),

		ShutdownTimeout: getEnvDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	switch c.ChatBackend {
	case chat.BackendMemory, chat.BackendRedis, chat.BackendSQLite:
	default:
		return fmt.Errorf("CHAT_BACKEND %q: %w", c.ChatBackend, chat.ErrUnknownBackend)
	}
	if c.WSMessagesPerSecond <= 0 || c.WSMessageBurst <= 0 {
		return fmt.Errorf("websocket rate limit must be positive")
	}
	if c.HTTPRateLimit <= 0 {
		return fmt.Errorf("HTTP_RATE_LIMIT must be positive")
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT must be positive")
	}
	if c.ChatHistoryLimit < 0 || c.RetentionInterval < 0 {
		return fmt.Errorf("retention settings must not be negative")
	}
	return nil
}

// ChatOptions maps the store settings onto chat.Open options
func (c Config) ChatOptions() chat.Options {
	return chat.Options{
		Backend:       c.ChatBackend,
		RedisAddr:     c.RedisAddr,
		RedisUsername: c.RedisUsername,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		SQLitePath:    c.SQLitePath,
	}
}

// getEnv returns the env var or a default
func getEnv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func getEnvInt(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if i, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return i
		}
	}
	return def
}

func getEnvFloat(k string, def float64) float64 {
	if v := os.Getenv(k); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			return f
		}
	}
	return def
}

func getEnvBool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
			return b
		}
	}
	return def
}

// getEnvDuration accepts Go durations ("30s") or plain seconds ("30")
func getEnvDuration(k string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second
	}
	return def
}

// splitCSV trims and filters a comma-separated list
func splitCSV(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
