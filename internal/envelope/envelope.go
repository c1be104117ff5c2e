// Package envelope defines the domain model for the three-party declaration
// workflow: the envelope record, its parties, the status state machine and the
// structured errors shared across the service.
//
// An envelope is one instance of the declaration workflow for a training unit.
// It is signed in a fixed order (student, supervisor, assessor) and finishes
// as an immutable artifact with a content hash.
package envelope

import (
	"time"

	"github.com/google/uuid"
)

// Envelope represents one instance of the declaration workflow.
type Envelope struct {
	ID       uuid.UUID `json:"envelopeId"`
	UnitCode string    `json:"unitCode"`
	UnitName string    `json:"unitName,omitempty"`

	// Status is the sole authoritative progress marker.
	Status Status `json:"status"`

	// FormData accumulates across steps: each patch is a shallow union where
	// later keys overwrite. It is never reset.
	FormData map[string]any `json:"formData,omitempty"`

	// FinalArtifactRef and ContentHash are empty until the envelope is
	// completed, then immutable.
	FinalArtifactRef string `json:"finalArtifactRef,omitempty"`
	ContentHash      string `json:"contentHash,omitempty"`

	// CompletionManifest is a JWS over the content hash, produced at
	// finalization so third parties can verify the artifact offline.
	CompletionManifest string `json:"completionManifest,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Party is one of exactly three signer records per envelope.
type Party struct {
	EnvelopeID uuid.UUID `json:"envelopeId"`
	Role       Role      `json:"role"`

	// Email may be absent at creation for supervisor and assessor; the prior
	// signer supplies it along with their signature.
	Email string `json:"email,omitempty"`
	Name  string `json:"name,omitempty"`

	// SignatureRef points at the stored signature image. Written at most once.
	SignatureRef string `json:"signatureRef,omitempty"`

	// SignedAt is set once when the party signs and never cleared.
	SignedAt *time.Time `json:"signedAt,omitempty"`
}

// Signed reports whether the party has recorded a signature.
func (p Party) Signed() bool {
	return p.SignedAt != nil
}

// Outcome is the assessor's explicit verdict, required to complete an envelope.
type Outcome string

const (
	OutcomeCompetent       Outcome = "COMPETENT"
	OutcomeNotYetCompetent Outcome = "NOT_YET_COMPETENT"
)

// ParseOutcome validates an outcome string received at the boundary.
func ParseOutcome(s string) (Outcome, error) {
	switch Outcome(s) {
	case OutcomeCompetent, OutcomeNotYetCompetent:
		return Outcome(s), nil
	}
	return "", NewValidationError("outcome must be COMPETENT or NOT_YET_COMPETENT")
}
