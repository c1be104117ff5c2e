// Package workflow implements the envelope state machine and its token-based
// authorization protocol.
//
// Every caller (HTTP handlers, CLI) goes through the Engine: it is the single
// place where "who may act now" and "what happens next" are decided. The
// engine holds its collaborators (store, token codec, notifier, blob store,
// manifest signer) as explicit dependencies constructed once at process start;
// nothing is reached through ambient lookups.
//
// Requests are stateless: all workflow state lives in the store, and the only
// mutation needing mutual exclusion - the status transition - is guarded by
// the store's compare-and-set. Everything else is idempotent so that
// concurrent or replayed requests converge on the same outcome.
package workflow

import (
	"context"
	"encoding/base64"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/blob"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/logger"
	"github.com/markmyw0rd/digital-declaration101/internal/notify"
	"github.com/markmyw0rd/digital-declaration101/internal/store"
	"github.com/markmyw0rd/digital-declaration101/internal/token"
)

// ArtifactSigner signs completion manifests. Implemented by artifact.Signer.
type ArtifactSigner interface {
	SignManifest(envelopeID uuid.UUID, unitCode string, outcome envelope.Outcome, contentHash string, completedAt time.Time) (string, error)
}

// Config carries the engine's fixed settings.
type Config struct {
	// PublicOrigin is the absolute origin used to build signing links and
	// artifact URLs, e.g. "https://declare.allora.edu.au".
	PublicOrigin string

	// LinkTokenTTL is the validity window of minted link tokens.
	LinkTokenTTL time.Duration

	// NotifyOnComplete controls whether all parties are emailed the final
	// artifact link after completion.
	NotifyOnComplete bool
}

// Engine drives the declaration workflow.
type Engine struct {
	store    store.Store
	tokens   *token.Codec
	notifier notify.Notifier
	blobs    blob.Store
	signer   ArtifactSigner
	cfg      Config
	now      func() time.Time
}

func NewEngine(st store.Store, tokens *token.Codec, notifier notify.Notifier, blobs blob.Store, signer ArtifactSigner, cfg Config) *Engine {
	return &Engine{
		store:    st,
		tokens:   tokens,
		notifier: notifier,
		blobs:    blobs,
		signer:   signer,
		cfg:      Config{
			PublicOrigin:     strings.TrimRight(cfg.PublicOrigin, "/"),
			LinkTokenTTL:     cfg.LinkTokenTTL,
			NotifyOnComplete: cfg.NotifyOnComplete,
		},
		now: time.Now,
	}
}

// WithClock overrides the engine clock, for tests.
func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// CreateRequest is the boundary-validated payload for opening an envelope.
type CreateRequest struct {
	UnitCode        string `json:"unitCode"`
	UnitName        string `json:"unitName,omitempty"`
	StudentEmail    string `json:"studentEmail"`
	StudentName     string `json:"studentName,omitempty"`
	SupervisorEmail string `json:"supervisorEmail,omitempty"`
	AssessorEmail   string `json:"assessorEmail,omitempty"`
}

// Validate rejects invalid shapes before any state is touched.
func (r CreateRequest) Validate() error {
	if r.UnitCode == "" {
		return envelope.NewValidationError("unitCode is required")
	}
	if r.StudentEmail == "" {
		return envelope.NewValidationError("studentEmail is required")
	}
	return nil
}

// CreateResult is returned from Create.
type CreateResult struct {
	Envelope envelope.Envelope
	NextLink string
}

// Create opens a new envelope in AwaitingStudent and returns the student's
// signing link.
func (e *Engine) Create(ctx context.Context, req CreateRequest) (CreateResult, error) {
	if err := req.Validate(); err != nil {
		return CreateResult{}, err
	}

	env, err := e.store.CreateEnvelope(ctx, store.CreateEnvelopeParams{
		UnitCode:        req.UnitCode,
		UnitName:        req.UnitName,
		StudentEmail:    req.StudentEmail,
		StudentName:     req.StudentName,
		SupervisorEmail: req.SupervisorEmail,
		AssessorEmail:   req.AssessorEmail,
	})
	if err != nil {
		return CreateResult{}, envelope.WrapInternalError(err, "failed to create envelope")
	}

	link, err := e.mintLink(env.ID, envelope.RoleStudent)
	if err != nil {
		return CreateResult{}, err
	}

	e.audit(ctx, store.AuditEvent{
		EnvelopeID: env.ID,
		EventType:  "envelope.created",
		Meta:       map[string]any{"unitCode": env.UnitCode},
	})

	return CreateResult{Envelope: env, NextLink: link}, nil
}

// Identity is the result of resolving a link token against current state.
type Identity struct {
	EnvelopeID uuid.UUID       `json:"envelopeId"`
	Role       envelope.Role   `json:"role"`
	Status     envelope.Status `json:"status"`

	// Current reports whether the token's role is the one the envelope is
	// waiting on. A cryptographically valid token for a role the status has
	// advanced past is semantically stale and must not authorize mutations.
	Current bool `json:"current"`
}

// Resolve verifies a link token and checks it against the envelope's current
// state. Verification alone never authorizes an action: callers use Current
// (or the engine's own mutating operations) to enforce the staleness rule.
func (e *Engine) Resolve(ctx context.Context, tokenString string) (Identity, error) {
	claims, err := e.tokens.Verify(tokenString)
	if err != nil {
		return Identity{}, err
	}

	env, err := e.getEnvelope(ctx, claims.EnvelopeID)
	if err != nil {
		return Identity{}, err
	}

	expected, _ := env.Status.ExpectedRole()
	return Identity{
		EnvelopeID: env.ID,
		Role:       claims.Role,
		Status:     env.Status,
		Current:    expected == claims.Role,
	}, nil
}

// GetEnvelope returns an envelope with its parties, for read-only views.
func (e *Engine) GetEnvelope(ctx context.Context, id uuid.UUID) (envelope.Envelope, []envelope.Party, error) {
	env, err := e.getEnvelope(ctx, id)
	if err != nil {
		return envelope.Envelope{}, nil, err
	}

	parties, err := e.store.GetParties(ctx, id)
	if err != nil {
		return envelope.Envelope{}, nil, envelope.WrapInternalError(err, "failed to load parties")
	}
	return env, parties, nil
}

func (e *Engine) getEnvelope(ctx context.Context, id uuid.UUID) (envelope.Envelope, error) {
	env, err := e.store.GetEnvelope(ctx, id)
	if err == store.ErrNotFound {
		return envelope.Envelope{}, envelope.NewNotFoundError("envelope does not exist")
	}
	if err != nil {
		return envelope.Envelope{}, envelope.WrapInternalError(err, "failed to load envelope")
	}
	return env, nil
}

// mintLink mints a fresh token for role and wraps it into a signing link.
func (e *Engine) mintLink(envelopeID uuid.UUID, role envelope.Role) (string, error) {
	tok, err := e.tokens.Mint(envelopeID, role, e.cfg.LinkTokenTTL)
	if err != nil {
		return "", envelope.WrapInternalError(err, "failed to mint link token")
	}
	return e.cfg.PublicOrigin + "/e/" + tok, nil
}

// artifactURL converts a stored blob reference into a public URL.
func (e *Engine) artifactURL(ref string) string {
	if ref == "" {
		return ""
	}
	return e.cfg.PublicOrigin + "/files/" + ref
}

// audit records an audit event; failures are logged, never propagated.
func (e *Engine) audit(ctx context.Context, event store.AuditEvent) {
	event.At = e.now().UTC()
	if err := e.store.AppendAuditEvent(ctx, event); err != nil {
		logger.ContextRequestLogger(ctx).Warn("failed to record audit event",
			slog.String("envelope_id", event.EnvelopeID.String()),
			slog.String("event_type", event.EventType),
			slog.String("error", err.Error()),
		)
	}
}

// decodeSignatureImage accepts the captured signature as either a data URL
// ("data:image/png;base64,....") or bare base64 and returns the raw bytes.
func decodeSignatureImage(input string) ([]byte, error) {
	payload := input
	if strings.HasPrefix(input, "data:") {
		_, after, found := strings.Cut(input, ",")
		if !found {
			return nil, envelope.NewValidationError("signature data URL has no payload")
		}
		payload = after
	}

	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, envelope.WrapValidationError(err, "signature image is not valid base64")
	}
	if len(data) == 0 {
		return nil, envelope.NewValidationError("signature image is empty")
	}
	return data, nil
}
