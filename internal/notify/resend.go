package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// ResendMailer delivers emails through the Resend HTTP API
//
//	POST {baseURL}/emails
//	Body: {"from": "...", "to": ["..."], "subject": "...", "html": "..."}
type ResendMailer struct {
	baseURL    string
	apiKey     string
	from       string
	httpClient *http.Client
}

type resendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

func (m *ResendMailer) SendInvite(ctx context.Context, invite Invite) error {
	subject := fmt.Sprintf("%s Declaration - %s step", invite.UnitCode, invite.Role)
	html := fmt.Sprintf(`<h3>%s • Digital Declaration</h3>
<p>Please complete the <b>%s</b> section.</p>
<p><a href="%s">Click here to open</a></p>
<p>If that doesn't work, copy and paste this link:<br/>%s</p>
<p>Thank you,<br/>Allora College</p>`,
		invite.UnitCode, invite.Role, invite.Link, invite.Link)

	return m.send(ctx, invite.To, subject, html)
}

func (m *ResendMailer) SendCompletion(ctx context.Context, to string, unitCode string, artifactURL string) error {
	subject := fmt.Sprintf("%s Declaration - completed", unitCode)
	html := fmt.Sprintf(`<h3>%s • Digital Declaration</h3>
<p>All parties have signed and the declaration is complete.</p>
<p><a href="%s">Download the final record</a></p>
<p>Thank you,<br/>Allora College</p>`,
		unitCode, artifactURL)

	return m.send(ctx, to, subject, html)
}

func (m *ResendMailer) send(ctx context.Context, to, subject, html string) error {
	payload, err := json.Marshal(resendRequest{
		From:    m.from,
		To:      []string{to},
		Subject: subject,
		HTML:    html,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal email request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call mail service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("mail service returned status %d: %s", resp.StatusCode, string(body))
	}

	return nil
}
