// Package store persists envelopes, parties and audit events.
//
// The workflow engine consumes the Store interface; the Postgres
// implementation lives in postgres.go and an in-memory implementation used by
// tests lives in memory.go. Each operation is atomic on its own - the only
// cross-request mutual exclusion the workflow needs is the compare-and-set on
// the envelope status, which both implementations provide.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

var (
	// ErrNotFound is returned when the referenced envelope or party does not exist.
	ErrNotFound = errors.New("envelope not found")

	// ErrStale is returned when a status compare-and-set fails because the
	// stored status no longer matches the expected value. Callers treat this
	// as "another actor already applied the transition".
	ErrStale = errors.New("envelope status changed concurrently")

	// ErrAlreadySigned is returned when a party's signature is recorded a
	// second time. The stored signature is never overwritten.
	ErrAlreadySigned = errors.New("party has already signed")
)

// CreateEnvelopeParams holds the data needed to open a new envelope.
// Supervisor and assessor contact details may be empty at creation; the prior
// signer supplies them later.
type CreateEnvelopeParams struct {
	UnitCode        string
	UnitName        string
	StudentEmail    string
	StudentName     string
	SupervisorEmail string
	AssessorEmail   string
}

// AuditEvent is one row of the envelope audit trail.
type AuditEvent struct {
	EnvelopeID uuid.UUID
	ActorRole  envelope.Role // empty for system events
	EventType  string
	At         time.Time
	Meta       map[string]any
}

// Store is the persistence boundary of the workflow engine.
type Store interface {
	// CreateEnvelope inserts a new envelope in AwaitingStudent together with
	// its three party records.
	CreateEnvelope(ctx context.Context, params CreateEnvelopeParams) (envelope.Envelope, error)

	// GetEnvelope returns the envelope or ErrNotFound.
	GetEnvelope(ctx context.Context, id uuid.UUID) (envelope.Envelope, error)

	// GetParties returns the three party records in signing order.
	GetParties(ctx context.Context, id uuid.UUID) ([]envelope.Party, error)

	// SetPartySigned records a party's signature. The write happens at most
	// once: a second attempt returns ErrAlreadySigned and leaves the stored
	// values untouched.
	SetPartySigned(ctx context.Context, id uuid.UUID, role envelope.Role, signatureRef string, signedAt time.Time) error

	// SetPartyContact sets a party's email and optional name, typically
	// supplied by the prior signer for the next role.
	SetPartyContact(ctx context.Context, id uuid.UUID, role envelope.Role, email, name string) error

	// AdvanceStatus is a compare-and-set on the envelope status: it fails
	// with ErrStale when the stored status no longer equals from.
	AdvanceStatus(ctx context.Context, id uuid.UUID, from, to envelope.Status) error

	// MergeFormData applies a shallow union onto the envelope's form data;
	// later keys overwrite.
	MergeFormData(ctx context.Context, id uuid.UUID, patch map[string]any) error

	// CompleteEnvelope records the final artifact, merges formPatch into the
	// envelope's form data, and moves the status from AwaitingAssessor to
	// Completed in a single atomic step, so no completed-without-artifact
	// (or artifact-without-completed) state is ever observable and a losing
	// attempt mutates nothing. Fails with ErrStale when the envelope is not
	// in AwaitingAssessor.
	CompleteEnvelope(ctx context.Context, id uuid.UUID, artifactRef, contentHash, manifest string, formPatch map[string]any) error

	// AppendAuditEvent records an audit trail entry. Best-effort from the
	// engine's perspective: failures are logged, never propagated.
	AppendAuditEvent(ctx context.Context, event AuditEvent) error
}
