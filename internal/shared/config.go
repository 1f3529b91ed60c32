package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
	env "github.com/caarlos0/env/v11"
)

//go:embed config.example.toml
var exampleConf []byte

const (
	// RuleMismatch removes an item when any approved contributor differs from its adder.
	RuleMismatch = "mismatch"
	// RuleMembership removes an item when its adder is not an approved contributor.
	RuleMembership = "membership"
)

// Config represents the application configuration loaded from a TOML file.
//
// Environment variables (see the env tags) override file values.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Database    DatabaseConfig    `toml:"database"`
	Server      ServerConfig      `toml:"server"`
	Vault       VaultConfig       `toml:"vault"`
	Log         LogConfig         `toml:"log"`
	Cleanup     CleanupConfig     `toml:"cleanup"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Spotify SpotifyConfig `toml:"spotify"`
}

// SpotifyConfig contains Spotify API credentials.
type SpotifyConfig struct {
	ClientID     string `toml:"client_id" env:"SPOTIFY_CLIENT_ID"`
	ClientSecret string `toml:"client_secret" env:"SPOTIFY_CLIENT_SECRET"`
	RedirectURI  string `toml:"redirect_uri" env:"CALLBACK_URL"`
}

// Map returns the credentials in the shape [services.NewSpotifyService] expects.
func (s SpotifyConfig) Map() map[string]string {
	return map[string]string{
		"client_id":     s.ClientID,
		"client_secret": s.ClientSecret,
		"redirect_uri":  s.RedirectURI,
	}
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path" env:"DATABASE_PATH"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Host        string `toml:"host" env:"SERVER_HOST"`
	Port        int    `toml:"port" env:"SERVER_PORT"`
	// RedirectURL is where the OAuth callback sends the browser once tokens are stored.
	RedirectURL string `toml:"redirect_url" env:"REDIRECT_URL"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// BaseURL returns the http URL CLI commands use to reach a running server.
func (s ServerConfig) BaseURL() string {
	return "http://" + s.Addr()
}

// VaultConfig names the credential vault.
type VaultConfig struct {
	Name string `toml:"name" env:"VAULT_NAME"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level string `toml:"level" env:"LOG_LEVEL"`
}

// CleanupConfig controls the recurring cleanup workflow.
type CleanupConfig struct {
	// IntervalMinutes is the delay between cycles, in minutes.
	IntervalMinutes   int           `toml:"interval_minutes" env:"CLEANUP_INTERVAL"`
	TokenSlack        time.Duration `toml:"token_slack" env:"CLEANUP_TOKEN_SLACK"`
	TokenLifetime     time.Duration `toml:"token_lifetime" env:"CLEANUP_TOKEN_LIFETIME"`
	PageSize          int           `toml:"page_size"`
	MaxConcurrency    int           `toml:"max_concurrency"`
	RequestsPerSecond float64       `toml:"requests_per_second"`
	ContributorRule   string        `toml:"contributor_rule" env:"CLEANUP_CONTRIBUTOR_RULE"`
	Retry             RetryConfig   `toml:"retry"`
}

// Interval converts IntervalMinutes to a [time.Duration].
func (c CleanupConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMinutes) * time.Minute
}

// RetryConfig is the retry policy applied to the cleanup step.
type RetryConfig struct {
	FirstInterval      time.Duration `toml:"first_interval"`
	MaxAttempts        int           `toml:"max_attempts"`
	BackoffCoefficient float64       `toml:"backoff_coefficient"`
	MaxInterval        time.Duration `toml:"max_interval"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path, then applies environment overrides.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := ApplyEnv(config); err != nil {
		return nil, err
	}
	return config, nil
}

// ApplyEnv overlays environment variables onto config.
func ApplyEnv(config *Config) error {
	if err := env.Parse(config); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// Validate checks the settings the cleanup service needs at process start.
func (c *Config) Validate() error {
	if c.Credentials.Spotify.ClientID == "" || c.Credentials.Spotify.ClientSecret == "" {
		return fmt.Errorf("%w: spotify client_id and client_secret must be set", ErrMissingCredentials)
	}
	if c.Cleanup.IntervalMinutes <= 0 {
		return fmt.Errorf("%w: cleanup interval must be positive, got %d", ErrInvalidConfig, c.Cleanup.IntervalMinutes)
	}
	if c.Cleanup.TokenSlack < 0 || c.Cleanup.TokenLifetime <= 0 {
		return fmt.Errorf("%w: token slack and lifetime must be non-negative durations", ErrInvalidConfig)
	}
	if c.Cleanup.PageSize <= 0 || c.Cleanup.PageSize > 100 {
		return fmt.Errorf("%w: page size must be within 1..100, got %d", ErrInvalidConfig, c.Cleanup.PageSize)
	}
	if c.Cleanup.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("%w: retry max_attempts must be positive", ErrInvalidConfig)
	}
	switch c.Cleanup.ContributorRule {
	case RuleMismatch, RuleMembership:
	default:
		return fmt.Errorf("%w: unknown contributor rule %q", ErrInvalidConfig, c.Cleanup.ContributorRule)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("%w: database path is required", ErrInvalidConfig)
	}
	return nil
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s", path)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
