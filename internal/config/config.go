// Package config provides application configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server          ServerConfig          `koanf:"server"`
	Snapshot        SnapshotConfig        `koanf:"snapshot"`
	Model           ModelConfig           `koanf:"model"`
	Interview       InterviewConfig       `koanf:"interview"`
	ConversationLog ConversationLogConfig `koanf:"conversation_log"`
	RateLimit       RateLimitConfig       `koanf:"rate_limit"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port               string        `koanf:"port"`
	FrontendURL        string        `koanf:"frontend_url"`
	MaxRequestBodySize int64         `koanf:"max_request_body_size"`
	ShutdownTimeout    time.Duration `koanf:"shutdown_timeout"`
}

// SnapshotConfig selects where session snapshots are written.
type SnapshotConfig struct {
	// Backend is one of "sqlite", "file" or "redis".
	Backend string      `koanf:"backend"`
	DBPath  string      `koanf:"db_path"`
	Dir     string      `koanf:"dir"`
	Redis   RedisConfig `koanf:"redis"`
}

// RedisConfig holds Redis snapshot settings.
type RedisConfig struct {
	Addr     string        `koanf:"addr"`
	Password string        `koanf:"password"`
	DB       int           `koanf:"db"`
	Prefix   string        `koanf:"prefix"`
	TTL      time.Duration `koanf:"ttl"`
}

// ModelConfig configures the OpenAI-compatible model.
type ModelConfig struct {
	APIKey          string        `koanf:"api_key"`
	BaseURL         string        `koanf:"base_url"`
	Name            string        `koanf:"name"`
	Temperature     float32       `koanf:"temperature"`
	MaxTokens       int           `koanf:"max_tokens"`
	ReportMaxTokens int           `koanf:"report_max_tokens"`
	Timeout         time.Duration `koanf:"timeout"`
}

// InterviewConfig holds the interview rules.
type InterviewConfig struct {
	ProtocolPath            string        `koanf:"protocol_path"`
	SessionTTL              time.Duration `koanf:"session_ttl"`
	AutoSaveInterval        int           `koanf:"auto_save_interval"`
	MultiplicationThreshold int           `koanf:"multiplication_threshold"`
	DivisionThreshold       int           `koanf:"division_threshold"`
	HistoryWindow           int           `koanf:"history_window"`
	ReportMinTurns          int           `koanf:"report_min_turns"`
	SkipIntroduction        bool          `koanf:"skip_introduction"`
}

// ConversationLogConfig controls JSON conversation logging.
type ConversationLogConfig struct {
	Enabled   bool   `koanf:"enabled"`
	Dir       string `koanf:"dir"`
	QueueSize int    `koanf:"queue_size"`
}

// RateLimitConfig bounds respondent messages per session.
type RateLimitConfig struct {
	PerMinute int `koanf:"per_minute"`
	Burst     int `koanf:"burst"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:               "8080",
			MaxRequestBodySize: 1 << 20,
			ShutdownTimeout:    10 * time.Second,
		},
		Snapshot: SnapshotConfig{
			Backend: "sqlite",
			DBPath:  "./data/interviews.db",
			Dir:     "./data/transcripts",
			Redis: RedisConfig{
				Addr:   "localhost:6379",
				Prefix: "interview:session:",
			},
		},
		Model: ModelConfig{
			Name:            "gpt-4o-mini",
			Temperature:     0.7,
			MaxTokens:       800,
			ReportMaxTokens: 1500,
			Timeout:         60 * time.Second,
		},
		Interview: InterviewConfig{
			SessionTTL:              60 * time.Minute,
			AutoSaveInterval:        4,
			MultiplicationThreshold: 5,
			DivisionThreshold:       0,
			HistoryWindow:           20,
			ReportMinTurns:          6,
		},
		ConversationLog: ConversationLogConfig{
			Enabled:   true,
			Dir:       "./data/logs/conversations",
			QueueSize: 1000,
		},
		RateLimit: RateLimitConfig{
			PerMinute: 20,
			Burst:     5,
		},
	}
}

// Validate checks that all required configuration fields are set.
//
//nolint:gocyclo // Flat list of independent checks.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("PORT cannot be empty")
	}
	if c.Server.MaxRequestBodySize <= 0 {
		return fmt.Errorf("MAX_REQUEST_BODY_SIZE must be > 0")
	}

	switch c.Snapshot.Backend {
	case "sqlite":
		if c.Snapshot.DBPath == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	case "file":
		if c.Snapshot.Dir == "" {
			return fmt.Errorf("SNAPSHOT_DIR cannot be empty")
		}
	case "redis":
		if c.Snapshot.Redis.Addr == "" {
			return fmt.Errorf("REDIS_ADDR cannot be empty")
		}
	default:
		return fmt.Errorf("SNAPSHOT_BACKEND must be one of sqlite, file, redis (got %q)", c.Snapshot.Backend)
	}

	if c.Model.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY cannot be empty")
	}
	if c.Model.Name == "" {
		return fmt.Errorf("MODEL_NAME cannot be empty")
	}
	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("MODEL_TEMPERATURE must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 || c.Model.ReportMaxTokens <= 0 {
		return fmt.Errorf("MODEL_MAX_TOKENS and REPORT_MAX_TOKENS must be > 0")
	}
	if c.Model.Timeout <= 0 {
		return fmt.Errorf("MODEL_TIMEOUT must be > 0")
	}

	iv := c.Interview
	if iv.AutoSaveInterval <= 0 {
		return fmt.Errorf("AUTO_SAVE_INTERVAL must be > 0")
	}
	if iv.MultiplicationThreshold <= 0 {
		return fmt.Errorf("MULTIPLICATION_THRESHOLD must be > 0")
	}
	if iv.DivisionThreshold < 0 {
		return fmt.Errorf("DIVISION_THRESHOLD must be >= 0")
	}
	if iv.HistoryWindow <= 0 {
		return fmt.Errorf("HISTORY_WINDOW must be > 0")
	}
	if iv.ReportMinTurns <= 0 {
		return fmt.Errorf("REPORT_MIN_TURNS must be > 0")
	}

	if c.ConversationLog.Enabled && c.ConversationLog.Dir == "" {
		return fmt.Errorf("CONVERSATION_LOG_DIR cannot be empty")
	}
	if c.ConversationLog.QueueSize <= 0 {
		return fmt.Errorf("CONVERSATION_LOG_QUEUE_SIZE must be > 0")
	}
	if c.RateLimit.PerMinute < 0 || c.RateLimit.Burst < 0 {
		return fmt.Errorf("RATE_LIMIT_PER_MINUTE and RATE_LIMIT_BURST must be >= 0")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.FrontendURL == "" ||
		strings.Contains(c.Server.FrontendURL, "localhost") ||
		strings.Contains(c.Server.FrontendURL, "127.0.0.1")
}

// AllowedOrigins returns the CORS origins for the configured frontend.
func (c *Config) AllowedOrigins() []string {
	if c.IsDevelopment() {
		return []string{"*"}
	}
	return []string{strings.TrimRight(c.Server.FrontendURL, "/")}
}

// IsContainer returns true if running inside a container.
func IsContainer() bool {
	if os.Getenv("CONTAINER") == "true" {
		return true
	}
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
