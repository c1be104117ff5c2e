package workflow

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/logger"
	"github.com/markmyw0rd/digital-declaration101/internal/notify"
	"github.com/markmyw0rd/digital-declaration101/internal/store"
)

// AdvanceRequest carries one party's signing submission.
type AdvanceRequest struct {
	// SignatureImage is the captured signature, as a PNG data URL or bare
	// base64. Required.
	SignatureImage string `json:"signatureImage"`

	// FormPatch is merged into the envelope's form data. Later patches win
	// on key collisions.
	FormPatch map[string]any `json:"formPatch,omitempty"`

	// NextEmail and NextName, when set, update the contact details of the
	// party the envelope is handed to. Ignored for the assessor's turn.
	NextEmail string `json:"nextEmail,omitempty"`
	NextName  string `json:"nextName,omitempty"`
}

// AdvanceResult reports the envelope's state after a successful signature.
type AdvanceResult struct {
	Status envelope.Status `json:"status"`

	// NextRole and NextLink identify the party now expected to act. Both
	// are empty once the assessor has signed.
	NextRole envelope.Role `json:"nextRole,omitempty"`
	NextLink string        `json:"nextLink,omitempty"`

	// Terminal is set after the assessor's signature: no further signatures
	// are expected and the envelope is ready to be finalized.
	Terminal bool `json:"terminal"`
}

// Advance records the signature of the party identified by tokenString and
// hands the envelope to the next role.
//
// The operation is safe to retry and safe under concurrent duplicates: the
// signature write is once-only, the status transition is a compare-and-set,
// and a lost CAS is treated as the transition having already been applied by
// the duplicate. Exactly one of the duplicates sends the handoff
// notification.
func (e *Engine) Advance(ctx context.Context, tokenString string, req AdvanceRequest) (AdvanceResult, error) {
	claims, err := e.tokens.Verify(tokenString)
	if err != nil {
		return AdvanceResult{}, err
	}
	if req.SignatureImage == "" {
		return AdvanceResult{}, envelope.NewValidationError("signatureImage is required")
	}

	env, err := e.getEnvelope(ctx, claims.EnvelopeID)
	if err != nil {
		return AdvanceResult{}, err
	}

	// A valid token for a role whose turn has passed (or not yet arrived)
	// is stale: the status is the source of truth.
	expected, ok := env.Status.ExpectedRole()
	if !ok {
		return AdvanceResult{}, envelope.NewOutOfOrderError("envelope is already completed")
	}
	if claims.Role != expected {
		return AdvanceResult{}, envelope.NewOutOfOrderError(
			fmt.Sprintf("envelope is awaiting the %s, not the %s", expected, claims.Role))
	}

	if err := e.recordSignature(ctx, env, claims.Role, req.SignatureImage); err != nil {
		return AdvanceResult{}, err
	}

	if len(req.FormPatch) > 0 {
		if err := e.store.MergeFormData(ctx, env.ID, req.FormPatch); err != nil {
			return AdvanceResult{}, envelope.WrapInternalError(err, "failed to merge form data")
		}
	}

	next, nextRole, _ := env.Status.Next()

	if next == envelope.StatusCompleted {
		// The assessor's signature does not complete the envelope; the
		// terminal transition is performed by Finalize together with the
		// artifact write.
		e.audit(ctx, store.AuditEvent{
			EnvelopeID: env.ID,
			ActorRole:  claims.Role,
			EventType:  "party.signed",
		})
		return AdvanceResult{Status: env.Status, Terminal: true}, nil
	}

	if req.NextEmail != "" {
		if err := e.store.SetPartyContact(ctx, env.ID, nextRole, req.NextEmail, req.NextName); err != nil {
			return AdvanceResult{}, envelope.WrapInternalError(err, "failed to update next party contact")
		}
	}

	won := true
	if err := e.store.AdvanceStatus(ctx, env.ID, env.Status, next); err != nil {
		if !errors.Is(err, store.ErrStale) {
			return AdvanceResult{}, envelope.WrapInternalError(err, "failed to advance envelope status")
		}
		// A concurrent duplicate already applied the transition. Verify the
		// envelope actually moved forward, then answer as if we had won,
		// minus the notification.
		won = false
		current, err := e.getEnvelope(ctx, env.ID)
		if err != nil {
			return AdvanceResult{}, err
		}
		if current.Status == env.Status {
			return AdvanceResult{}, envelope.NewConflictError("envelope status changed concurrently")
		}
	}

	// Only the attempt that applied the transition audits it; the loser
	// changed nothing, so a second entry would record an advance that
	// never happened.
	if won {
		e.audit(ctx, store.AuditEvent{
			EnvelopeID: env.ID,
			ActorRole:  claims.Role,
			EventType:  "party.signed",
			Meta:       map[string]any{"advancedTo": string(next)},
		})
	}

	link, err := e.mintLink(env.ID, nextRole)
	if err != nil {
		return AdvanceResult{}, err
	}

	if won {
		e.sendInvite(ctx, env, nextRole, req.NextEmail, link)
	}

	return AdvanceResult{Status: next, NextRole: nextRole, NextLink: link}, nil
}

// recordSignature stores the signature image and marks the party as signed.
// A party that already signed is left untouched so that retries of a
// partially applied Advance converge instead of failing.
func (e *Engine) recordSignature(ctx context.Context, env envelope.Envelope, role envelope.Role, image string) error {
	data, err := decodeSignatureImage(image)
	if err != nil {
		return err
	}

	ref, err := e.blobs.Put(ctx, env.ID, fmt.Sprintf("signature-%s.png", role), data)
	if err != nil {
		return envelope.WrapInternalError(err, "failed to store signature image")
	}

	err = e.store.SetPartySigned(ctx, env.ID, role, ref, e.now().UTC())
	switch {
	case errors.Is(err, store.ErrAlreadySigned):
		logger.ContextRequestLogger(ctx).Info("signature already recorded, continuing",
			slog.String("envelope_id", env.ID.String()),
			slog.String("role", string(role)),
		)
		return nil
	case errors.Is(err, store.ErrNotFound):
		return envelope.NewNotFoundError("envelope does not exist")
	case err != nil:
		return envelope.WrapInternalError(err, "failed to record signature")
	}
	return nil
}

// sendInvite notifies the next party. Delivery is best effort: the status
// transition has already been committed and must not be rolled back over a
// mailer outage, so failures are logged and audited only.
func (e *Engine) sendInvite(ctx context.Context, env envelope.Envelope, role envelope.Role, overrideEmail, link string) {
	recipient := overrideEmail
	if recipient == "" {
		parties, err := e.store.GetParties(ctx, env.ID)
		if err != nil {
			logger.ContextRequestLogger(ctx).Warn("failed to load parties for notification",
				slog.String("envelope_id", env.ID.String()),
				slog.String("error", err.Error()),
			)
			return
		}
		for _, p := range parties {
			if p.Role == role {
				recipient = p.Email
				break
			}
		}
	}
	if recipient == "" {
		logger.ContextRequestLogger(ctx).Info("no email on file for next party, skipping invite",
			slog.String("envelope_id", env.ID.String()),
			slog.String("role", string(role)),
		)
		return
	}

	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()

	invite := notify.Invite{To: recipient, Role: role, UnitCode: env.UnitCode, Link: link}
	if err := e.notifier.SendInvite(sendCtx, invite); err != nil {
		logger.ContextRequestLogger(ctx).Warn("failed to send invite",
			slog.String("envelope_id", env.ID.String()),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		e.audit(ctx, store.AuditEvent{
			EnvelopeID: env.ID,
			ActorRole:  role,
			EventType:  "notification.failed",
			Meta:       map[string]any{"error": err.Error()},
		})
		return
	}

	e.audit(ctx, store.AuditEvent{
		EnvelopeID: env.ID,
		ActorRole:  role,
		EventType:  "notification.sent",
	})
}
