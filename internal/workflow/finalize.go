package workflow

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/markmyw0rd/digital-declaration101/internal/artifact"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/logger"
	"github.com/markmyw0rd/digital-declaration101/internal/store"
)

// FinalizeRequest carries the assessor's outcome decision.
type FinalizeRequest struct {
	Outcome string `json:"outcome"`
}

// FinalizeResult describes the immutable artifact produced by Finalize.
type FinalizeResult struct {
	ArtifactURL string `json:"artifactUrl"`
	ContentHash string `json:"contentHash"`
	Manifest    string `json:"manifest"`
}

// Finalize composes the canonical declaration artifact, stores it, and moves
// the envelope to its terminal state in a single store operation.
//
// Only the assessor's token may finalize, all three signatures must already
// be on file, and an envelope finalizes exactly once: a repeat attempt fails
// with AlreadyCompletedError carrying the stored artifact reference and hash,
// so the caller can tell the artifact exists without being able to replace it.
func (e *Engine) Finalize(ctx context.Context, tokenString string, req FinalizeRequest) (FinalizeResult, error) {
	claims, err := e.tokens.Verify(tokenString)
	if err != nil {
		return FinalizeResult{}, err
	}
	if claims.Role != envelope.RoleAssessor {
		return FinalizeResult{}, envelope.NewForbiddenError("only the assessor may finalize an envelope")
	}

	outcome, err := envelope.ParseOutcome(req.Outcome)
	if err != nil {
		return FinalizeResult{}, err
	}

	env, err := e.getEnvelope(ctx, claims.EnvelopeID)
	if err != nil {
		return FinalizeResult{}, err
	}
	if env.Status == envelope.StatusCompleted {
		return FinalizeResult{}, e.alreadyCompleted(env)
	}

	parties, err := e.store.GetParties(ctx, env.ID)
	if err != nil {
		return FinalizeResult{}, envelope.WrapInternalError(err, "failed to load parties")
	}
	for _, role := range envelope.Roles {
		if p, ok := findParty(parties, role); !ok || !p.Signed() {
			return FinalizeResult{}, envelope.NewIncompleteError(
				"envelope cannot be finalized: the " + string(role) + " has not signed")
		}
	}

	completedAt := e.now().UTC()

	// The outcome and completion time are part of the form data so the
	// artifact is self-contained. The patch is applied to the local copy
	// for composition and persisted only inside the terminal
	// compare-and-set, so a losing attempt mutates nothing.
	patch := map[string]any{
		"outcome":     string(outcome),
		"completedAt": completedAt.Format(time.RFC3339),
	}
	if env.FormData == nil {
		env.FormData = map[string]any{}
	}
	for k, v := range patch {
		env.FormData[k] = v
	}

	content, contentHash, err := artifact.Compose(env, parties, outcome, completedAt)
	if err != nil {
		return FinalizeResult{}, err
	}

	// The object name embeds the content hash, so a concurrent duplicate
	// writes its own object and can never clobber the bytes behind the
	// reference the winning attempt records.
	ref, err := e.blobs.Put(ctx, env.ID, artifact.Filename(contentHash), content)
	if err != nil {
		return FinalizeResult{}, envelope.WrapInternalError(err, "failed to store declaration artifact")
	}

	manifest, err := e.signer.SignManifest(env.ID, env.UnitCode, outcome, contentHash, completedAt)
	if err != nil {
		return FinalizeResult{}, envelope.WrapInternalError(err, "failed to sign completion manifest")
	}

	// Artifact reference, hash, manifest, outcome form data and the
	// terminal transition commit atomically: a crash before this point
	// leaves a retriable envelope, a crash after leaves a fully completed
	// one, and nothing in between is observable.
	if err := e.store.CompleteEnvelope(ctx, env.ID, ref, contentHash, manifest, patch); err != nil {
		if !errors.Is(err, store.ErrStale) {
			return FinalizeResult{}, envelope.WrapInternalError(err, "failed to complete envelope")
		}
		current, err := e.getEnvelope(ctx, env.ID)
		if err != nil {
			return FinalizeResult{}, err
		}
		if current.Status == envelope.StatusCompleted {
			return FinalizeResult{}, e.alreadyCompleted(current)
		}
		return FinalizeResult{}, envelope.NewConflictError("envelope status changed concurrently")
	}

	e.audit(ctx, store.AuditEvent{
		EnvelopeID: env.ID,
		ActorRole:  envelope.RoleAssessor,
		EventType:  "envelope.completed",
		Meta:       map[string]any{"outcome": string(outcome), "contentHash": contentHash},
	})

	artifactURL := e.artifactURL(ref)
	if e.cfg.NotifyOnComplete {
		e.sendCompletionNotices(ctx, env, parties, artifactURL)
	}

	return FinalizeResult{
		ArtifactURL: artifactURL,
		ContentHash: contentHash,
		Manifest:    manifest,
	}, nil
}

func (e *Engine) alreadyCompleted(env envelope.Envelope) error {
	return &envelope.AlreadyCompletedError{
		ArtifactRef: e.artifactURL(env.FinalArtifactRef),
		ContentHash: env.ContentHash,
	}
}

// sendCompletionNotices emails every party that has an address on file. Best
// effort: the envelope is already completed.
func (e *Engine) sendCompletionNotices(ctx context.Context, env envelope.Envelope, parties []envelope.Party, artifactURL string) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()

	for _, p := range parties {
		if p.Email == "" {
			continue
		}
		if err := e.notifier.SendCompletion(sendCtx, p.Email, env.UnitCode, artifactURL); err != nil {
			logger.ContextRequestLogger(ctx).Warn("failed to send completion notice",
				slog.String("envelope_id", env.ID.String()),
				slog.String("role", string(p.Role)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func findParty(parties []envelope.Party, role envelope.Role) (envelope.Party, bool) {
	for _, p := range parties {
		if p.Role == role {
			return p, true
		}
	}
	return envelope.Party{}, false
}
