package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// PostgresStore implements Store on a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const envelopeColumns = `id, unit_code, unit_name, status, form_data,
	COALESCE(final_artifact_url, ''), COALESCE(final_artifact_sha256, ''),
	COALESCE(completion_manifest, ''), created_at, updated_at`

func (s *PostgresStore) CreateEnvelope(ctx context.Context, params CreateEnvelopeParams) (envelope.Envelope, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	var env envelope.Envelope
	var status string
	err = tx.QueryRow(ctx, `
		INSERT INTO envelopes (unit_code, unit_name, status)
		VALUES ($1, $2, $3)
		RETURNING `+envelopeColumns,
		params.UnitCode, params.UnitName, string(envelope.StatusAwaitingStudent),
	).Scan(&env.ID, &env.UnitCode, &env.UnitName, &status, &env.FormData,
		&env.FinalArtifactRef, &env.ContentHash, &env.CompletionManifest,
		&env.CreatedAt, &env.UpdatedAt)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("failed to insert envelope: %w", err)
	}
	env.Status = envelope.Status(status)

	_, err = tx.Exec(ctx, `
		INSERT INTO envelope_parties (envelope_id, role, email, name) VALUES
		($1, 'student', $2, $3),
		($1, 'supervisor', $4, ''),
		($1, 'assessor', $5, '')`,
		env.ID, params.StudentEmail, params.StudentName,
		params.SupervisorEmail, params.AssessorEmail)
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("failed to insert parties: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return envelope.Envelope{}, fmt.Errorf("failed to commit transaction: %w", err)
	}

	return env, nil
}

func (s *PostgresStore) GetEnvelope(ctx context.Context, id uuid.UUID) (envelope.Envelope, error) {
	var env envelope.Envelope
	var status string

	err := s.pool.QueryRow(ctx,
		`SELECT `+envelopeColumns+` FROM envelopes WHERE id = $1`, id,
	).Scan(&env.ID, &env.UnitCode, &env.UnitName, &status, &env.FormData,
		&env.FinalArtifactRef, &env.ContentHash, &env.CompletionManifest,
		&env.CreatedAt, &env.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return envelope.Envelope{}, ErrNotFound
	}
	if err != nil {
		return envelope.Envelope{}, fmt.Errorf("failed to query envelope: %w", err)
	}

	env.Status = envelope.Status(status)
	return env, nil
}

func (s *PostgresStore) GetParties(ctx context.Context, id uuid.UUID) ([]envelope.Party, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT envelope_id, role, email, name, COALESCE(signature_ref, ''), signed_at
		FROM envelope_parties
		WHERE envelope_id = $1
		ORDER BY CASE role
			WHEN 'student' THEN 1
			WHEN 'supervisor' THEN 2
			WHEN 'assessor' THEN 3
		END`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to query parties: %w", err)
	}
	defer rows.Close()

	var parties []envelope.Party
	for rows.Next() {
		var p envelope.Party
		var role string
		if err := rows.Scan(&p.EnvelopeID, &role, &p.Email, &p.Name, &p.SignatureRef, &p.SignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan party: %w", err)
		}
		p.Role = envelope.Role(role)
		parties = append(parties, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read parties: %w", err)
	}

	if len(parties) == 0 {
		return nil, ErrNotFound
	}
	return parties, nil
}

func (s *PostgresStore) SetPartySigned(ctx context.Context, id uuid.UUID, role envelope.Role, signatureRef string, signedAt time.Time) error {
	// signed_at IS NULL makes the write once-only: a concurrent or repeated
	// attempt matches no row and the first signature is preserved.
	tag, err := s.pool.Exec(ctx, `
		UPDATE envelope_parties
		SET signature_ref = $3, signed_at = $4
		WHERE envelope_id = $1 AND role = $2 AND signed_at IS NULL`,
		id, string(role), signatureRef, signedAt)
	if err != nil {
		return fmt.Errorf("failed to record signature: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	err = s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM envelope_parties WHERE envelope_id = $1 AND role = $2)`,
		id, string(role)).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check party: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrAlreadySigned
}

func (s *PostgresStore) SetPartyContact(ctx context.Context, id uuid.UUID, role envelope.Role, email, name string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE envelope_parties
		SET email = $3, name = CASE WHEN $4 <> '' THEN $4 ELSE name END
		WHERE envelope_id = $1 AND role = $2`,
		id, string(role), email, name)
	if err != nil {
		return fmt.Errorf("failed to update party contact: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to envelope.Status) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE envelopes
		SET status = $3, updated_at = now()
		WHERE id = $1 AND status = $2`,
		id, string(from), string(to))
	if err != nil {
		return fmt.Errorf("failed to advance status: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM envelopes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check envelope: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

func (s *PostgresStore) MergeFormData(ctx context.Context, id uuid.UUID, patch map[string]any) error {
	if len(patch) == 0 {
		return nil
	}

	patchJSON, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("failed to marshal form data patch: %w", err)
	}

	// jsonb || is a shallow union where keys from the patch win.
	tag, err := s.pool.Exec(ctx, `
		UPDATE envelopes
		SET form_data = form_data || $2::jsonb, updated_at = now()
		WHERE id = $1`,
		id, patchJSON)
	if err != nil {
		return fmt.Errorf("failed to merge form data: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CompleteEnvelope(ctx context.Context, id uuid.UUID, artifactRef, contentHash, manifest string, formPatch map[string]any) error {
	patchJSON, err := json.Marshal(formPatch)
	if err != nil {
		return fmt.Errorf("failed to marshal form data patch: %w", err)
	}

	// Artifact fields, the outcome form data, and the terminal transition
	// are one statement so the completed/artifact postcondition is
	// all-or-nothing under any failure: a stale attempt changes nothing.
	tag, err := s.pool.Exec(ctx, `
		UPDATE envelopes
		SET status = $2,
		    final_artifact_url = $3,
		    final_artifact_sha256 = $4,
		    completion_manifest = $5,
		    form_data = form_data || $6::jsonb,
		    updated_at = now()
		WHERE id = $1 AND status = $7`,
		id, string(envelope.StatusCompleted), artifactRef, contentHash, manifest,
		patchJSON, string(envelope.StatusAwaitingAssessor))
	if err != nil {
		return fmt.Errorf("failed to complete envelope: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	var exists bool
	if err := s.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM envelopes WHERE id = $1)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check envelope: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return ErrStale
}

func (s *PostgresStore) AppendAuditEvent(ctx context.Context, event AuditEvent) error {
	metaJSON, err := json.Marshal(event.Meta)
	if err != nil {
		return fmt.Errorf("failed to marshal audit meta: %w", err)
	}

	at := event.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO audit_events (envelope_id, actor_role, event_type, at, meta)
		VALUES ($1, $2, $3, $4, $5)`,
		event.EnvelopeID, string(event.ActorRole), event.EventType, at, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to insert audit event: %w", err)
	}
	return nil
}
