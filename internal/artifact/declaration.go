// Package artifact composes the final declaration document when an envelope
// completes.
//
// The document is rendered deterministically: a fixed struct is marshalled to
// JSON and canonicalized per RFC 8785 before hashing, so composing the same
// envelope twice yields byte-identical output and the same SHA-256 content
// hash. The hash is recorded on the envelope as the artifact's integrity
// guarantee.
package artifact

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// SchemaVersion identifies the declaration document layout. Bump on any
// structural change so existing content hashes stay verifiable.
const SchemaVersion = "1.0"

// Filename returns the name of the declaration object within the envelope's
// artifact namespace. The name embeds the content hash so concurrent
// finalize attempts can never overwrite each other's bytes: distinct
// compositions land in distinct objects and the envelope records which one
// won.
func Filename(contentHash string) string {
	return fmt.Sprintf("declaration-%s.json", contentHash[:16])
}

// Declaration is the immutable record composed at completion.
type Declaration struct {
	SchemaVersion string             `json:"schemaVersion"`
	EnvelopeID    string             `json:"envelopeId"`
	UnitCode      string             `json:"unitCode"`
	UnitName      string             `json:"unitName,omitempty"`
	Outcome       envelope.Outcome   `json:"outcome"`
	CompletedAt   string             `json:"completedAt"`
	Parties       []DeclarationParty `json:"parties"`
	FormData      map[string]any     `json:"formData,omitempty"`
}

// DeclarationParty is one signer's record within the declaration.
type DeclarationParty struct {
	Role         envelope.Role `json:"role"`
	Name         string        `json:"name,omitempty"`
	Email        string        `json:"email,omitempty"`
	SignedAt     string        `json:"signedAt"`
	SignatureRef string        `json:"signatureRef,omitempty"`
}

// Compose renders the declaration for a fully signed envelope and returns the
// canonical document bytes plus their SHA-256 content hash.
//
// All three parties must have signed; Compose returns an Incomplete error
// otherwise. Timestamps are normalised to UTC RFC3339 so the rendering does
// not depend on server locale.
func Compose(env envelope.Envelope, parties []envelope.Party, outcome envelope.Outcome, completedAt time.Time) ([]byte, string, error) {
	decl := Declaration{
		SchemaVersion: SchemaVersion,
		EnvelopeID:    env.ID.String(),
		UnitCode:      env.UnitCode,
		UnitName:      env.UnitName,
		Outcome:       outcome,
		CompletedAt:   completedAt.UTC().Format(time.RFC3339),
		FormData:      env.FormData,
	}

	// Parties appear in signing order regardless of storage order.
	for _, role := range envelope.Roles {
		party, ok := findParty(parties, role)
		if !ok {
			return nil, "", envelope.NewIncompleteError(fmt.Sprintf("envelope has no %s party", role))
		}
		if !party.Signed() {
			return nil, "", envelope.NewIncompleteError(fmt.Sprintf("%s has not signed", role))
		}
		decl.Parties = append(decl.Parties, DeclarationParty{
			Role:         party.Role,
			Name:         party.Name,
			Email:        party.Email,
			SignedAt:     party.SignedAt.UTC().Format(time.RFC3339),
			SignatureRef: party.SignatureRef,
		})
	}

	raw, err := json.Marshal(decl)
	if err != nil {
		return nil, "", envelope.WrapInternalError(err, "failed to marshal declaration")
	}

	canonical, err := crypto.CanonicalizeJSON(raw)
	if err != nil {
		return nil, "", envelope.WrapInternalError(err, "failed to canonicalize declaration")
	}

	return canonical, crypto.CalculateSHA256Hex(canonical), nil
}

func findParty(parties []envelope.Party, role envelope.Role) (envelope.Party, bool) {
	for _, p := range parties {
		if p.Role == role {
			return p, true
		}
	}
	return envelope.Party{}, false
}
