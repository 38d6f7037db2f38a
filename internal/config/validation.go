package config

import (
	"fmt"
	"log/slog"
	"os"
)

// validSSLModes are the SSL modes accepted by libpq/pgx.
var validSSLModes = map[string]bool{
	"disable":     true,
	"allow":       true,
	"prefer":      true,
	"require":     true,
	"verify-ca":   true,
	"verify-full": true,
}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	// At least one provider credential must be present. The key pool loads
	// GEMINI_API_KEY plus the numbered variants; presence of the primary is
	// the minimum requirement.
	if os.Getenv("GEMINI_API_KEY") == "" {
		return fmt.Errorf("%w: GEMINI_API_KEY environment variable is required\n"+
			"Get your API key at: https://ai.google.dev/gemini-api/docs/api-key",
			ErrMissingAPIKey)
	}

	if c.ChatModel == "" {
		return fmt.Errorf("%w: chat_model cannot be empty", ErrInvalidModelName)
	}
	if c.AnalyzerModel == "" {
		return fmt.Errorf("%w: analyzer_model cannot be empty", ErrInvalidModelName)
	}
	if c.ExtractorModel == "" {
		return fmt.Errorf("%w: extractor_model cannot be empty", ErrInvalidModelName)
	}

	// Temperature range per the Gemini API: 0.0 (deterministic) to 2.0.
	if c.Temperature < 0.0 || c.Temperature > 2.0 {
		return fmt.Errorf("%w: must be between 0.0 and 2.0, got %.2f", ErrInvalidTemperature, c.Temperature)
	}

	if c.HistoryTurns < 1 || c.HistoryTurns > MaxHistoryTurns {
		return fmt.Errorf("%w: must be between 1 and %d, got %d",
			ErrInvalidHistoryTurns, MaxHistoryTurns, c.HistoryTurns)
	}

	if c.MaxRetries < 0 || c.MaxRetries > 10 {
		return fmt.Errorf("%w: max_retries must be between 0 and 10, got %d", ErrInvalidRetry, c.MaxRetries)
	}
	if c.RetryBaseDelay < 0 {
		return fmt.Errorf("%w: retry_base_delay_ms must be non-negative, got %d", ErrInvalidRetry, c.RetryBaseDelay)
	}

	if c.PostgresHost == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
	}
	if c.PostgresPort < 1 || c.PostgresPort > 65535 {
		return fmt.Errorf("%w: must be between 1 and 65535, got %d", ErrInvalidPostgresPort, c.PostgresPort)
	}
	if c.PostgresDBName == "" {
		return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
	}
	if !validSSLModes[c.PostgresSSLMode] {
		return fmt.Errorf("%w: got %q", ErrInvalidPostgresSSLMode, c.PostgresSSLMode)
	}

	if c.PostgresPassword == "memo_dev_password" {
		slog.Warn("Using default development password for PostgreSQL",
			"warning", "Change postgres_password in config.yaml for production deployments")
	}

	return nil
}
