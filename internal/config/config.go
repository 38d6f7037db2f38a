// Package config provides application configuration with multi-source priority.
//
// Sources (highest to lowest):
//  1. Environment variables (runtime override)
//  2. Config file (~/.memo/config.yaml)
//  3. Defaults (sensible values for quick start)
//
// Error handling uses sentinel errors so callers can check with errors.Is()
// and wrap with fmt.Errorf("%w: details", ErrXxx).
//
// Security: the Postgres password is masked in MarshalJSON(). Gemini API keys
// are never stored in Config; they are read from the environment by the key
// pool (GEMINI_API_KEY, GEMINI_API_KEY_2, ...); Validate only checks presence.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrMissingAPIKey indicates no Gemini API key is set in the environment.
	ErrMissingAPIKey = errors.New("missing API key")

	// ErrInvalidModelName indicates a model name is empty or malformed.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTemperature indicates the temperature is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidHistoryTurns indicates the history window is out of range.
	ErrInvalidHistoryTurns = errors.New("invalid history turns")

	// ErrInvalidRetry indicates the retry settings are out of range.
	ErrInvalidRetry = errors.New("invalid retry settings")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")

	// ErrInvalidPostgresSSLMode indicates the PostgreSQL SSL mode is invalid.
	ErrInvalidPostgresSSLMode = errors.New("invalid PostgreSQL SSL mode")
)

const (
	// DefaultChatModel generates the final conversational reply.
	DefaultChatModel = "gemini-2.0-flash"

	// DefaultAnalyzerModel classifies intent. A lite model keeps the
	// pre-generation latency low; classification runs on every turn.
	DefaultAnalyzerModel = "gemini-2.0-flash-lite"

	// DefaultExtractorModel mines facts and summaries in the background.
	DefaultExtractorModel = "gemini-2.0-flash"

	// DefaultHistoryTurns is the number of recent turns passed to the
	// generator and rendered by recency-based retrieval routes.
	DefaultHistoryTurns = 10

	// MaxHistoryTurns bounds the history window.
	MaxHistoryTurns = 100
)

// Config stores application configuration.
// SECURITY: sensitive fields are masked in MarshalJSON(). When adding a new
// secret field, update MarshalJSON as well.
type Config struct {
	// Model selection
	ChatModel      string  `mapstructure:"chat_model" json:"chat_model"`
	AnalyzerModel  string  `mapstructure:"analyzer_model" json:"analyzer_model"`
	ExtractorModel string  `mapstructure:"extractor_model" json:"extractor_model"`
	Temperature    float32 `mapstructure:"temperature" json:"temperature"`
	TopP           float32 `mapstructure:"top_p" json:"top_p"`

	// Context assembly
	HistoryTurns int `mapstructure:"history_turns" json:"history_turns"`

	// Retry behaviour for transient provider errors
	MaxRetries     int `mapstructure:"max_retries" json:"max_retries"`
	RetryBaseDelay int `mapstructure:"retry_base_delay_ms" json:"retry_base_delay_ms"`

	// Storage (PostgreSQL)
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE: masked in MarshalJSON
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Logging
	LogJSON bool `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: environment variables > config file > defaults.
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".memo")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	// DATABASE_URL, when set, overrides the individual Postgres fields.
	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("chat_model", DefaultChatModel)
	viper.SetDefault("analyzer_model", DefaultAnalyzerModel)
	viper.SetDefault("extractor_model", DefaultExtractorModel)
	viper.SetDefault("temperature", 0.3)
	viper.SetDefault("top_p", 0.8)
	viper.SetDefault("history_turns", DefaultHistoryTurns)

	viper.SetDefault("max_retries", 3)
	viper.SetDefault("retry_base_delay_ms", 2000)

	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "memo")
	viper.SetDefault("postgres_password", "memo_dev_password")
	viper.SetDefault("postgres_db_name", "memo")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("log_json", false)
}

// bindEnvVariables binds environment overrides explicitly.
// NOTE: GEMINI_API_KEY and its numbered siblings are read by the key pool,
// not via viper; Validate only checks that at least one is present.
func bindEnvVariables() {
	// Hardcoded keys cannot fail to bind; a panic here is a bug, not a
	// runtime condition.
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("chat_model", "MEMO_CHAT_MODEL")
	mustBind("analyzer_model", "MEMO_ANALYZER_MODEL")
	mustBind("extractor_model", "MEMO_EXTRACTOR_MODEL")
	mustBind("history_turns", "MEMO_HISTORY_TURNS")
	mustBind("log_json", "MEMO_LOG_JSON")

	mustBind("postgres_host", "MEMO_POSTGRES_HOST")
	mustBind("postgres_port", "MEMO_POSTGRES_PORT")
	mustBind("postgres_user", "MEMO_POSTGRES_USER")
	mustBind("postgres_password", "MEMO_POSTGRES_PASSWORD")
	mustBind("postgres_db_name", "MEMO_POSTGRES_DB_NAME")
	mustBind("postgres_ssl_mode", "MEMO_POSTGRES_SSL_MODE")
}

// maskedValue is the placeholder for masked sensitive data. Full-width blocks
// avoid accidental substring matches against real secret characters.
const maskedValue = "████████"

// maskSecret masks a secret for safe logging. Secrets of 8 bytes or fewer are
// fully masked; longer secrets show the first and last two characters.
func maskSecret(s string) string {
	if s == "" {
		return ""
	}
	if len(s) <= 8 {
		return maskedValue
	}
	return s[:2] + "<" + maskedValue + ">" + s[len(s)-2:]
}

// MarshalJSON implements json.Marshaler with sensitive field masking.
func (c Config) MarshalJSON() ([]byte, error) {
	type alias Config
	a := alias(c)
	a.PostgresPassword = maskSecret(a.PostgresPassword)
	data, err := json.Marshal(a)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}
	return data, nil
}

// String implements Stringer to prevent accidental printing of secrets.
func (c Config) String() string {
	data, err := c.MarshalJSON()
	if err != nil {
		return fmt.Sprintf("Config{error: %v}", err)
	}
	return string(data)
}
