package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/Netflix/go-env"
)

// Environment variables with defaults
type ServerEnvironment struct {

	// http server settings
	Environment           string        `env:"ENVIRONMENT,default=dev"`
	Host                  string        `env:"HOST,default=0.0.0.0"`
	Port                  int           `env:"PORT,default=8080"`
	LogLevel              string        `env:"LOG_LEVEL,default=debug"`
	ServerShutdownTimeout time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT,default=10s"`
	ReadTimeout           time.Duration `env:"READ_TIMEOUT,default=15s"`
	WriteTimeout          time.Duration `env:"WRITE_TIMEOUT,default=15s"`
	IdleTimeout           time.Duration `env:"IDLE_TIMEOUT,default=60s"`
	RateLimitRPS          int32         `env:"RATE_LIMIT_RPS,default=100"`
	RateLimitBurst        int32         `env:"RATE_LIMIT_BURST,default=200"`
	MaxRequestBodyBytes   int64         `env:"MAX_REQUEST_BODY,default=1048576"`

	// database settings
	DBMaxConnections    int32         `env:"DB_MAX_CONNECTIONS,default=4"`
	DBMinConnections    int32         `env:"DB_MIN_CONNECTIONS,default=0"`
	DBMaxConnLifetime   time.Duration `env:"DB_MAX_CONN_LIFETIME,default=60m"`
	DBMaxConnIdleTime   time.Duration `env:"DB_MAX_CONN_IDLE_TIME,default=30m"`
	DBConnectTimeout    time.Duration `env:"DB_CONNECT_TIMEOUT,default=5s"`
	DatabasePingTimeout time.Duration `env:"DATABASE_PING_TIMEOUT,default=10s"`

	// LinkTokenTTL is the validity window of the signed links emailed to
	// each party. Expiry is the only revocation mechanism for a link.
	LinkTokenTTL time.Duration `env:"LINK_TOKEN_TTL,default=168h"`

	// notification settings
	MailerName       string        `env:"MAILER,default=log"`
	MailerBaseURL    string        `env:"MAILER_BASE_URL,default=https://api.resend.com"`
	MailerAPIKey     string        `env:"MAILER_API_KEY"`
	MailerFrom       string        `env:"EMAIL_FROM,default=onboarding@resend.dev"`
	MailerTimeout    time.Duration `env:"MAILER_TIMEOUT,default=10s"`
	NotifyOnComplete bool          `env:"NOTIFY_ON_COMPLETE,default=true"`

	// Required declaration service configuration - must be set by environment variables
	DatabaseURL    string `env:"DATABASE_URL,required=true"`
	TokenSecret    string `env:"TOKEN_SECRET,required=true"`
	PublicOrigin   string `env:"PUBLIC_ORIGIN,required=true"`
	SigningKeysDir string `env:"SIGNING_KEYS_DIR,required=true"`
	ArtifactDir    string `env:"ARTIFACT_DIR,default=./data/artifacts"`
}

var validEnvs = map[string]bool{
	"dev":     true,
	"test":    true,
	"prod":    true,
	"staging": true,
}

var validMailers = map[string]bool{
	"log":    true,
	"resend": true,
}

// NewServerConfig loads environment variables and returns a ServerEnvironment struct that contains the values
func NewServerConfig() (*ServerEnvironment, error) {
	var cfg ServerEnvironment

	_, err := env.UnmarshalFromEnviron(&cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal environment variables: %w", err)
	}

	if err := validateConfig(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// validateConfig checks for required env variables
func validateConfig(cfg *ServerEnvironment) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535")
	}
	if !validEnvs[cfg.Environment] {
		return fmt.Errorf("invalid ENVIRONMENT: %s", cfg.Environment)
	}

	// Validate database pool configuration
	if cfg.DBMaxConnections < 1 {
		return fmt.Errorf("DB_MAX_CONNECTIONS must be at least 1")
	}
	if cfg.DBMinConnections < 0 {
		return fmt.Errorf("DB_MIN_CONNECTIONS must be 0 or greater")
	}
	if cfg.DBMinConnections > cfg.DBMaxConnections {
		return fmt.Errorf("DB_MIN_CONNECTIONS (%d) cannot be greater than DB_MAX_CONNECTIONS (%d)",
			cfg.DBMinConnections, cfg.DBMaxConnections)
	}

	if len(cfg.TokenSecret) < 32 {
		return fmt.Errorf("TOKEN_SECRET must be at least 32 bytes")
	}

	if cfg.LinkTokenTTL < time.Minute {
		return fmt.Errorf("LINK_TOKEN_TTL must be at least 1m, got %s", cfg.LinkTokenTTL)
	}

	origin, err := url.Parse(cfg.PublicOrigin)
	if err != nil || origin.Scheme == "" || origin.Host == "" {
		return fmt.Errorf("PUBLIC_ORIGIN must be an absolute URL, got %q", cfg.PublicOrigin)
	}

	if !validMailers[cfg.MailerName] {
		return fmt.Errorf("unsupported MAILER: %s", cfg.MailerName)
	}
	if cfg.MailerName == "resend" && cfg.MailerAPIKey == "" {
		return fmt.Errorf("MAILER_API_KEY is required when MAILER=resend")
	}

	return nil
}
