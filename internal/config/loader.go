package config

import (
	"fmt"
	"io"
	"os"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"
)

const maxConfigFileSize = 1024 * 1024 // 1MB

// envKeys maps environment variables to configuration keys. Variables not
// listed here are ignored.
var envKeys = map[string]string{
	"PORT":                        "server.port",
	"FRONTEND_URL":                "server.frontend_url",
	"MAX_REQUEST_BODY_SIZE":       "server.max_request_body_size",
	"SHUTDOWN_TIMEOUT":            "server.shutdown_timeout",
	"SNAPSHOT_BACKEND":            "snapshot.backend",
	"DB_PATH":                     "snapshot.db_path",
	"SNAPSHOT_DIR":                "snapshot.dir",
	"REDIS_ADDR":                  "snapshot.redis.addr",
	"REDIS_PASSWORD":              "snapshot.redis.password",
	"REDIS_DB":                    "snapshot.redis.db",
	"REDIS_PREFIX":                "snapshot.redis.prefix",
	"REDIS_TTL":                   "snapshot.redis.ttl",
	"OPENAI_API_KEY":              "model.api_key",
	"OPENAI_BASE_URL":             "model.base_url",
	"MODEL_NAME":                  "model.name",
	"MODEL_TEMPERATURE":           "model.temperature",
	"MODEL_MAX_TOKENS":            "model.max_tokens",
	"REPORT_MAX_TOKENS":           "model.report_max_tokens",
	"MODEL_TIMEOUT":               "model.timeout",
	"PROTOCOL_PATH":               "interview.protocol_path",
	"SESSION_TTL":                 "interview.session_ttl",
	"AUTO_SAVE_INTERVAL":          "interview.auto_save_interval",
	"MULTIPLICATION_THRESHOLD":    "interview.multiplication_threshold",
	"DIVISION_THRESHOLD":          "interview.division_threshold",
	"HISTORY_WINDOW":              "interview.history_window",
	"REPORT_MIN_TURNS":            "interview.report_min_turns",
	"SKIP_INTRODUCTION":           "interview.skip_introduction",
	"CONVERSATION_LOG_ENABLED":    "conversation_log.enabled",
	"CONVERSATION_LOG_DIR":        "conversation_log.dir",
	"CONVERSATION_LOG_QUEUE_SIZE": "conversation_log.queue_size",
	"RATE_LIMIT_PER_MINUTE":       "rate_limit.per_minute",
	"RATE_LIMIT_BURST":            "rate_limit.burst",
}

// Load builds the configuration.
//
// Precedence (highest to lowest):
//  1. Environment variables (PORT, SNAPSHOT_BACKEND, OPENAI_API_KEY, ...)
//  2. YAML file at path, or at $CONFIG_FILE when path is empty
//  3. Built-in defaults
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if path == "" {
		path = os.Getenv("CONFIG_FILE")
	}
	if path != "" {
		content, err := readConfigFile(path)
		if err != nil {
			return nil, err
		}
		if err := k.Load(rawbytes.Provider(content), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider("", ".", func(s string) string {
		return envKeys[s]
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

func readConfigFile(path string) ([]byte, error) {
	f, err := os.Open(path) // #nosec G304 - operator supplied path
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("config path %s is a directory", path)
	}
	if info.Size() > maxConfigFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxConfigFileSize)
	}

	content, err := io.ReadAll(io.LimitReader(f, maxConfigFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return content, nil
}
