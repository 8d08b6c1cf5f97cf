// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"encoding/hex"
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8000).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// DatabaseURL is the Postgres DSN.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// AESEncryptionKey is the hex-encoded symmetric key used to encrypt stored
	// provider tokens. Must decode to 16, 24, or 32 bytes.
	AESEncryptionKey string `mapstructure:"AES_ENCRYPTION_KEY"`
	// JWTSecretKey signs session claim tokens (HS256).
	JWTSecretKey string `mapstructure:"JWT_SECRET_KEY"`
	// JWTExpiration is the session claim-token lifetime in seconds (e.g. 3600).
	JWTExpiration int `mapstructure:"JWT_EXPIRATION"`

	// TwitchClientID and TwitchClientSecret authenticate against the Twitch token endpoint.
	TwitchClientID     string `mapstructure:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `mapstructure:"TWITCH_CLIENT_SECRET"`
	// TwitchRedirectURI is the registered OAuth redirect for the Twitch login flow.
	TwitchRedirectURI string `mapstructure:"TWITCH_REDIRECT_URI"`
	// TwitchScope is the comma-separated scope set requested from Twitch.
	TwitchScope string `mapstructure:"TWITCH_SCOPE"`
	// OIDCIssuer is the Twitch OIDC issuer URL used for discovery and claim validation.
	OIDCIssuer string `mapstructure:"OIDC_ISSUER"`

	// SpotifyClientID and SpotifyClientSecret authenticate against the Spotify token endpoint.
	SpotifyClientID     string `mapstructure:"SPOTIFY_CLIENT_ID"`
	SpotifyClientSecret string `mapstructure:"SPOTIFY_CLIENT_SECRET"`
	// SpotifyRedirectURI is the registered OAuth redirect for the Spotify link flow.
	SpotifyRedirectURI string `mapstructure:"SPOTIFY_REDIRECT_URI"`

	// RefreshInterval is how often the background refresher sweeps (e.g. "60s").
	RefreshInterval string `mapstructure:"REFRESH_INTERVAL"`
	// RefreshLookahead is how far ahead of expiry a credential is proactively refreshed (e.g. "5m").
	RefreshLookahead string `mapstructure:"REFRESH_LOOKAHEAD"`
	// ProviderTimeout bounds every provider token-endpoint call (e.g. "10s").
	ProviderTimeout string `mapstructure:"PROVIDER_TIMEOUT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables telemetry export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext export to an https endpoint (standard OTEL_EXPORTER_OTLP_INSECURE behavior).
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`
	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("AES_ENCRYPTION_KEY", "")
	v.SetDefault("JWT_SECRET_KEY", "")
	v.SetDefault("JWT_EXPIRATION", 3600)
	v.SetDefault("TWITCH_SCOPE", "openid")
	v.SetDefault("OIDC_ISSUER", "https://id.twitch.tv/oauth2")
	v.SetDefault("REFRESH_INTERVAL", "60s")
	v.SetDefault("REFRESH_LOOKAHEAD", "5m")
	v.SetDefault("PROVIDER_TIMEOUT", "10s")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.AESEncryptionKey != "" {
		if _, err := cfg.AESKey(); err != nil {
			return nil, err
		}
	}
	if cfg.JWTExpiration <= 0 {
		return nil, errors.New("config: JWT_EXPIRATION must be positive")
	}

	return &cfg, nil
}

// AESKey decodes AES_ENCRYPTION_KEY and checks it is a valid AES key length.
func (c *Config) AESKey() ([]byte, error) {
	key, err := hex.DecodeString(c.AESEncryptionKey)
	if err != nil {
		return nil, errors.New("config: AES_ENCRYPTION_KEY must be hex-encoded")
	}
	switch len(key) {
	case 16, 24, 32:
		return key, nil
	default:
		return nil, errors.New("config: AES_ENCRYPTION_KEY must decode to 16, 24, or 32 bytes")
	}
}

// SessionTTL returns the session claim-token lifetime.
func (c *Config) SessionTTL() time.Duration {
	if c.JWTExpiration <= 0 {
		return time.Hour
	}
	return time.Duration(c.JWTExpiration) * time.Second
}

// RefreshIntervalDuration parses REFRESH_INTERVAL. Returns 60s if unset or invalid.
func (c *Config) RefreshIntervalDuration() time.Duration {
	d, err := time.ParseDuration(c.RefreshInterval)
	if err != nil || d <= 0 {
		return 60 * time.Second
	}
	return d
}

// RefreshLookaheadDuration parses REFRESH_LOOKAHEAD. Returns 5m if unset or invalid.
func (c *Config) RefreshLookaheadDuration() time.Duration {
	d, err := time.ParseDuration(c.RefreshLookahead)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// ProviderTimeoutDuration parses PROVIDER_TIMEOUT. Returns 10s if unset or invalid.
func (c *Config) ProviderTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.ProviderTimeout)
	if err != nil || d <= 0 {
		return 10 * time.Second
	}
	return d
}

// TwitchScopeList returns the requested Twitch scopes from the comma-separated config.
func (c *Config) TwitchScopeList() []string {
	if c == nil || c.TwitchScope == "" {
		return nil
	}
	parts := strings.Split(c.TwitchScope, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
