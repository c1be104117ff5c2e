package config

import (
	"strings"
	"testing"
	"time"
)

func validTestConfig() *ServerEnvironment {
	return &ServerEnvironment{
		Environment:      "test",
		Port:             8080,
		DBMaxConnections: 4,
		DBMinConnections: 0,
		LinkTokenTTL:     168 * time.Hour,
		MailerName:       "log",
		DatabaseURL:      "postgres://localhost/declarations",
		TokenSecret:      strings.Repeat("s", 32),
		PublicOrigin:     "https://declare.example.com",
		SigningKeysDir:   "./keys",
	}
}

func TestValidateConfig(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(cfg *ServerEnvironment)
		wantErr string
	}{
		{
			name:   "valid config passes",
			mutate: func(cfg *ServerEnvironment) {},
		},
		{
			name:    "port out of range",
			mutate:  func(cfg *ServerEnvironment) { cfg.Port = 0 },
			wantErr: "PORT",
		},
		{
			name:    "unknown environment",
			mutate:  func(cfg *ServerEnvironment) { cfg.Environment = "production" },
			wantErr: "ENVIRONMENT",
		},
		{
			name:    "min connections above max",
			mutate:  func(cfg *ServerEnvironment) { cfg.DBMinConnections = 10 },
			wantErr: "DB_MIN_CONNECTIONS",
		},
		{
			name:    "short token secret",
			mutate:  func(cfg *ServerEnvironment) { cfg.TokenSecret = "too-short" },
			wantErr: "TOKEN_SECRET",
		},
		{
			name:    "link ttl below minimum",
			mutate:  func(cfg *ServerEnvironment) { cfg.LinkTokenTTL = 30 * time.Second },
			wantErr: "LINK_TOKEN_TTL",
		},
		{
			name:    "relative public origin",
			mutate:  func(cfg *ServerEnvironment) { cfg.PublicOrigin = "/declare" },
			wantErr: "PUBLIC_ORIGIN",
		},
		{
			name:    "unsupported mailer",
			mutate:  func(cfg *ServerEnvironment) { cfg.MailerName = "sendgrid" },
			wantErr: "MAILER",
		},
		{
			name: "resend requires api key",
			mutate: func(cfg *ServerEnvironment) {
				cfg.MailerName = "resend"
				cfg.MailerAPIKey = ""
			},
			wantErr: "MAILER_API_KEY",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validTestConfig()
			tt.mutate(cfg)

			err := validateConfig(cfg)
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("validateConfig() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("validateConfig() expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("validateConfig() error = %q, want mention of %q", err, tt.wantErr)
			}
		})
	}
}
