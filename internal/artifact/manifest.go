package artifact

import (
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// Manifest is the payload of the completion JWS: enough for a relying party
// holding the published JWK to verify a downloaded declaration offline.
type Manifest struct {
	EnvelopeID  string           `json:"envelopeId"`
	UnitCode    string           `json:"unitCode"`
	Outcome     envelope.Outcome `json:"outcome"`
	ContentHash string           `json:"contentHash"`
	CompletedAt string           `json:"completedAt"`
}

// Signer produces completion manifests with the college's Ed25519 key.
type Signer struct {
	privateKey ed25519.PrivateKey
	keyID      string
}

func NewSigner(privateKey ed25519.PrivateKey, keyID string) *Signer {
	return &Signer{privateKey: privateKey, keyID: keyID}
}

// SignManifest returns a JWS compact serialization over the manifest.
func (s *Signer) SignManifest(envelopeID uuid.UUID, unitCode string, outcome envelope.Outcome, contentHash string, completedAt time.Time) (string, error) {
	manifest := Manifest{
		EnvelopeID:  envelopeID.String(),
		UnitCode:    unitCode,
		Outcome:     outcome,
		ContentHash: contentHash,
		CompletedAt: completedAt.UTC().Format(time.RFC3339),
	}

	payload, err := json.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	return crypto.SignEd25519(payload, s.privateKey, s.keyID)
}

// VerifyManifest checks a manifest JWS against the public key and returns the
// embedded manifest. Used by the operator CLI to verify downloaded artifacts.
func VerifyManifest(jws string, publicKey ed25519.PublicKey) (Manifest, error) {
	payload, err := crypto.VerifyEd25519(jws, publicKey)
	if err != nil {
		return Manifest{}, err
	}

	var manifest Manifest
	if err := json.Unmarshal(payload, &manifest); err != nil {
		return Manifest{}, fmt.Errorf("failed to unmarshal manifest: %w", err)
	}
	return manifest, nil
}
