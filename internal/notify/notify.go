// Package notify delivers next-step links to the parties of an envelope.
//
// The workflow engine invokes the Notifier after a transition; delivery is
// best-effort and a failure never rolls back the transition (the caller also
// receives the link in the API response as a fallback delivery path).
//
// To add support for a new mail provider:
//  1. Create a new type that implements the Notifier interface
//  2. Add a case for it in NewNotifier() based on the mailer name
package notify

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/markmyw0rd/digital-declaration101/internal/config"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// Invite describes a next-step email for one recipient.
type Invite struct {
	To       string
	Role     envelope.Role
	UnitCode string
	Link     string
}

// Notifier delivers workflow emails.
type Notifier interface {
	// SendInvite asks the recipient to complete their section of the declaration.
	SendInvite(ctx context.Context, invite Invite) error

	// SendCompletion notifies a party that the declaration is finished,
	// linking the final artifact.
	SendCompletion(ctx context.Context, to string, unitCode string, artifactURL string) error
}

// NewNotifier creates a Notifier based on the configuration.
func NewNotifier(cfg *config.ServerEnvironment, logger *slog.Logger) (Notifier, error) {
	switch cfg.MailerName {
	case "log":
		// no delivery - log the link instead (dev and test environments)
		return &LogMailer{logger: logger}, nil

	case "resend":
		return &ResendMailer{
			baseURL:    cfg.MailerBaseURL,
			apiKey:     cfg.MailerAPIKey,
			from:       cfg.MailerFrom,
			httpClient: &http.Client{Timeout: cfg.MailerTimeout},
		}, nil

	default:
		return nil, envelope.NewValidationError("unsupported mailer: " + cfg.MailerName)
	}
}

// LogMailer writes the email that would have been sent to the log.
type LogMailer struct {
	logger *slog.Logger
}

func (m *LogMailer) SendInvite(_ context.Context, invite Invite) error {
	m.logger.Info("skipping email send - would have sent invite",
		slog.String("to", invite.To),
		slog.String("role", string(invite.Role)),
		slog.String("unit_code", invite.UnitCode),
		slog.String("link", invite.Link),
	)
	return nil
}

func (m *LogMailer) SendCompletion(_ context.Context, to string, unitCode string, artifactURL string) error {
	m.logger.Info("skipping email send - would have sent completion notice",
		slog.String("to", to),
		slog.String("unit_code", unitCode),
		slog.String("artifact_url", artifactURL),
	)
	return nil
}
