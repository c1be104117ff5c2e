package store

import (
	"context"
	"maps"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
)

// MemoryStore is an in-memory Store used by tests and the workflow engine's
// test doubles. It honours the same once-only and compare-and-set semantics
// as the Postgres implementation.
type MemoryStore struct {
	mu        sync.Mutex
	envelopes map[uuid.UUID]*envelope.Envelope
	parties   map[uuid.UUID][]*envelope.Party
	audit     []AuditEvent
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		envelopes: make(map[uuid.UUID]*envelope.Envelope),
		parties:   make(map[uuid.UUID][]*envelope.Party),
	}
}

func (s *MemoryStore) CreateEnvelope(_ context.Context, params CreateEnvelopeParams) (envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	env := &envelope.Envelope{
		ID:        uuid.New(),
		UnitCode:  params.UnitCode,
		UnitName:  params.UnitName,
		Status:    envelope.StatusAwaitingStudent,
		FormData:  map[string]any{},
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.envelopes[env.ID] = env
	s.parties[env.ID] = []*envelope.Party{
		{EnvelopeID: env.ID, Role: envelope.RoleStudent, Email: params.StudentEmail, Name: params.StudentName},
		{EnvelopeID: env.ID, Role: envelope.RoleSupervisor, Email: params.SupervisorEmail},
		{EnvelopeID: env.ID, Role: envelope.RoleAssessor, Email: params.AssessorEmail},
	}

	return *env, nil
}

func (s *MemoryStore) GetEnvelope(_ context.Context, id uuid.UUID) (envelope.Envelope, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return envelope.Envelope{}, ErrNotFound
	}

	copied := *env
	copied.FormData = maps.Clone(env.FormData)
	return copied, nil
}

func (s *MemoryStore) GetParties(_ context.Context, id uuid.UUID) ([]envelope.Party, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	parties, ok := s.parties[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := make([]envelope.Party, len(parties))
	for i, p := range parties {
		out[i] = *p
	}
	return out, nil
}

func (s *MemoryStore) SetPartySigned(_ context.Context, id uuid.UUID, role envelope.Role, signatureRef string, signedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	party := s.findParty(id, role)
	if party == nil {
		return ErrNotFound
	}
	if party.SignedAt != nil {
		return ErrAlreadySigned
	}

	at := signedAt
	party.SignatureRef = signatureRef
	party.SignedAt = &at
	return nil
}

func (s *MemoryStore) SetPartyContact(_ context.Context, id uuid.UUID, role envelope.Role, email, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	party := s.findParty(id, role)
	if party == nil {
		return ErrNotFound
	}

	party.Email = email
	if name != "" {
		party.Name = name
	}
	return nil
}

func (s *MemoryStore) AdvanceStatus(_ context.Context, id uuid.UUID, from, to envelope.Status) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return ErrNotFound
	}
	if env.Status != from {
		return ErrStale
	}

	env.Status = to
	env.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) MergeFormData(_ context.Context, id uuid.UUID, patch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return ErrNotFound
	}

	if env.FormData == nil {
		env.FormData = map[string]any{}
	}
	maps.Copy(env.FormData, patch)
	env.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) CompleteEnvelope(_ context.Context, id uuid.UUID, artifactRef, contentHash, manifest string, formPatch map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	env, ok := s.envelopes[id]
	if !ok {
		return ErrNotFound
	}
	if env.Status != envelope.StatusAwaitingAssessor {
		return ErrStale
	}

	if env.FormData == nil {
		env.FormData = map[string]any{}
	}
	maps.Copy(env.FormData, formPatch)
	env.Status = envelope.StatusCompleted
	env.FinalArtifactRef = artifactRef
	env.ContentHash = contentHash
	env.CompletionManifest = manifest
	env.UpdatedAt = time.Now().UTC()
	return nil
}

func (s *MemoryStore) AppendAuditEvent(_ context.Context, event AuditEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}
	s.audit = append(s.audit, event)
	return nil
}

// AuditEvents returns a copy of the recorded audit trail, for test assertions.
func (s *MemoryStore) AuditEvents() []AuditEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]AuditEvent(nil), s.audit...)
}

func (s *MemoryStore) findParty(id uuid.UUID, role envelope.Role) *envelope.Party {
	for _, p := range s.parties[id] {
		if p.Role == role {
			return p
		}
	}
	return nil
}
