package artifact

import (
	"testing"
	"time"

	"crypto/ed25519"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

func TestSignAndVerifyManifest(t *testing.T) {
	privateKey, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	publicKey := privateKey.Public().(ed25519.PublicKey)

	signer := NewSigner(privateKey, "test-key-1")
	envelopeID := uuid.New()
	completedAt := time.Date(2026, 7, 1, 10, 30, 0, 0, time.UTC)

	jws, err := signer.SignManifest(envelopeID, "BSBWHS332X", envelope.OutcomeCompetent, "abc123", completedAt)
	if err != nil {
		t.Fatalf("SignManifest() error = %v", err)
	}

	manifest, err := VerifyManifest(jws, publicKey)
	if err != nil {
		t.Fatalf("VerifyManifest() error = %v", err)
	}

	if manifest.EnvelopeID != envelopeID.String() {
		t.Errorf("envelopeId = %q, want %q", manifest.EnvelopeID, envelopeID)
	}
	if manifest.UnitCode != "BSBWHS332X" {
		t.Errorf("unitCode = %q", manifest.UnitCode)
	}
	if manifest.Outcome != envelope.OutcomeCompetent {
		t.Errorf("outcome = %q", manifest.Outcome)
	}
	if manifest.ContentHash != "abc123" {
		t.Errorf("contentHash = %q", manifest.ContentHash)
	}
	if manifest.CompletedAt != "2026-07-01T10:30:00Z" {
		t.Errorf("completedAt = %q", manifest.CompletedAt)
	}
}

func TestVerifyManifestWrongKey(t *testing.T) {
	privateKey, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	otherKey, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}

	signer := NewSigner(privateKey, "test-key-1")
	jws, err := signer.SignManifest(uuid.New(), "BSBWHS332X", envelope.OutcomeCompetent, "abc123", time.Now())
	if err != nil {
		t.Fatalf("SignManifest() error = %v", err)
	}

	if _, err := VerifyManifest(jws, otherKey.Public().(ed25519.PublicKey)); err == nil {
		t.Error("expected verification failure with wrong key, got nil")
	}
}
