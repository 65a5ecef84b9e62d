package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"omitempty,oneof=debug info warn warning error"`
	DatabasePath      string        `mapstructure:"database_path" yaml:"database_path" validate:"required"`

	MaxMessageBytes    int64         `mapstructure:"max_message_bytes" yaml:"max_message_bytes" validate:"gt=0"`
	SendBuffer         int           `mapstructure:"send_buffer" yaml:"send_buffer" validate:"gt=0"`
	PingInterval       time.Duration `mapstructure:"ping_interval" yaml:"ping_interval" validate:"gte=0"`
	RateLimitPerMinute int           `mapstructure:"rate_limit_per_minute" yaml:"rate_limit_per_minute" validate:"gte=0"`
	AllowedOrigins     []string      `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	RecorderBuffer     int           `mapstructure:"recorder_buffer" yaml:"recorder_buffer" validate:"gt=0"`

	JWTSecret   string `mapstructure:"jwt_secret" yaml:"jwt_secret" validate:"required,ne=change-me"`
	JWTIssuer   string `mapstructure:"jwt_issuer" yaml:"jwt_issuer"`
	JWTAudience string `mapstructure:"jwt_audience" yaml:"jwt_audience"`

	LiveKit LiveKitConfig `mapstructure:"livekit" yaml:"livekit"`
}

// LiveKitConfig enables voice channels for code rooms.
type LiveKitConfig struct {
	Enabled   bool   `mapstructure:"enabled" yaml:"enabled"`
	URL       string `mapstructure:"url" yaml:"url" validate:"required_if=Enabled true"`
	APIKey    string `mapstructure:"api_key" yaml:"api_key" validate:"required_if=Enabled true"`
	APISecret string `mapstructure:"api_secret" yaml:"api_secret" validate:"required_if=Enabled true"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:               ":8080",
		ReadHeaderTimeout:  5 * time.Second,
		ShutdownTimeout:    5 * time.Second,
		LogLevel:           "info",
		DatabasePath:       "coderoom.db",
		MaxMessageBytes:    1 << 20,
		SendBuffer:         64,
		PingInterval:       20 * time.Second,
		RateLimitPerMinute: 600,
		AllowedOrigins:     []string{"*"},
		RecorderBuffer:     256,
		JWTIssuer:          "campus-lms",
		JWTAudience:        "coderoom",
	}
}

// Validate checks value constraints after all sources are merged.
func (c Config) Validate() error {
	if err := validator.New(validator.WithRequiredStructEnabled()).Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
