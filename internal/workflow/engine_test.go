package workflow

import (
	"context"
	"crypto/ed25519"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/artifact"
	"github.com/markmyw0rd/digital-declaration101/internal/blob"
	"github.com/markmyw0rd/digital-declaration101/internal/crypto"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/notify"
	"github.com/markmyw0rd/digital-declaration101/internal/store"
	"github.com/markmyw0rd/digital-declaration101/internal/token"
)

var testSecret = []byte("0123456789abcdef0123456789abcdef")

var testSignature = "data:image/png;base64," +
	base64.StdEncoding.EncodeToString([]byte("png-bytes"))

// fakeNotifier records notifications for assertions.
type fakeNotifier struct {
	mu          sync.Mutex
	invites     []notify.Invite
	completions []string
}

func (f *fakeNotifier) SendInvite(_ context.Context, invite notify.Invite) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.invites = append(f.invites, invite)
	return nil
}

func (f *fakeNotifier) SendCompletion(_ context.Context, to, _, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.completions = append(f.completions, to)
	return nil
}

func (f *fakeNotifier) inviteCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.invites)
}

type testEnv struct {
	engine    *Engine
	store     *store.MemoryStore
	notifier  *fakeNotifier
	codec     *token.Codec
	publicKey ed25519.PublicKey
}

func newTestEngine(t *testing.T) *testEnv {
	t.Helper()

	privateKey, err := crypto.GenerateEd25519KeyPair()
	if err != nil {
		t.Fatalf("failed to generate signing key: %v", err)
	}

	blobs, err := blob.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create blob store: %v", err)
	}

	st := store.NewMemoryStore()
	notifier := &fakeNotifier{}
	codec := token.NewCodec(testSecret)

	engine := NewEngine(st, codec, notifier, blobs, artifact.NewSigner(privateKey, "test-kid"), Config{
		PublicOrigin:     "https://declare.test",
		LinkTokenTTL:     time.Hour,
		NotifyOnComplete: true,
	})

	return &testEnv{
		engine:    engine,
		store:     st,
		notifier:  notifier,
		codec:     codec,
		publicKey: privateKey.Public().(ed25519.PublicKey),
	}
}

func (te *testEnv) create(t *testing.T) CreateResult {
	t.Helper()
	result, err := te.engine.Create(context.Background(), CreateRequest{
		UnitCode:     "BSBWHS332X",
		UnitName:     "Apply safe work practices",
		StudentEmail: "student@example.edu.au",
		StudentName:  "Jo Student",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return result
}

// tokenFromLink extracts the token segment of a signing link.
func tokenFromLink(t *testing.T, link string) string {
	t.Helper()
	_, tok, found := strings.Cut(link, "/e/")
	if !found {
		t.Fatalf("link %q has no token segment", link)
	}
	return tok
}

func TestCreateEnvelope(t *testing.T) {
	te := newTestEngine(t)
	result := te.create(t)

	if result.Envelope.Status != envelope.StatusAwaitingStudent {
		t.Errorf("status = %v, want awaiting_student", result.Envelope.Status)
	}
	if !strings.HasPrefix(result.NextLink, "https://declare.test/e/") {
		t.Errorf("NextLink = %q", result.NextLink)
	}

	claims, err := te.codec.Verify(tokenFromLink(t, result.NextLink))
	if err != nil {
		t.Fatalf("link token does not verify: %v", err)
	}
	if claims.Role != envelope.RoleStudent || claims.EnvelopeID != result.Envelope.ID {
		t.Errorf("link claims = %+v", claims)
	}
}

func TestCreateValidation(t *testing.T) {
	te := newTestEngine(t)

	tests := []struct {
		name string
		req  CreateRequest
	}{
		{"missing unit code", CreateRequest{StudentEmail: "s@example.edu.au"}},
		{"missing student email", CreateRequest{UnitCode: "BSBWHS332X"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := te.engine.Create(context.Background(), tt.req)
			assertWorkflowCode(t, err, envelope.ErrCodeValidation)
		})
	}
}

// TestFullWorkflow walks an envelope through all three signatures and
// finalization, checking each handoff.
func TestFullWorkflow(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	created := te.create(t)

	// student signs, naming the supervisor
	studentToken := tokenFromLink(t, created.NextLink)
	result, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{
		SignatureImage: testSignature,
		FormPatch:      map[string]any{"studentDeclaration": true},
		NextEmail:      "super@example.edu.au",
		NextName:       "Sam Supervisor",
	})
	if err != nil {
		t.Fatalf("student Advance() error = %v", err)
	}
	if result.Status != envelope.StatusAwaitingSupervisor || result.NextRole != envelope.RoleSupervisor {
		t.Fatalf("after student: %+v", result)
	}
	if te.notifier.inviteCount() != 1 {
		t.Fatalf("invites = %d, want 1", te.notifier.inviteCount())
	}
	if te.notifier.invites[0].To != "super@example.edu.au" {
		t.Errorf("invite to %q", te.notifier.invites[0].To)
	}

	// supervisor signs, naming the assessor
	result, err = te.engine.Advance(ctx, tokenFromLink(t, result.NextLink), AdvanceRequest{
		SignatureImage: testSignature,
		NextEmail:      "assessor@example.edu.au",
	})
	if err != nil {
		t.Fatalf("supervisor Advance() error = %v", err)
	}
	if result.Status != envelope.StatusAwaitingAssessor || result.NextRole != envelope.RoleAssessor {
		t.Fatalf("after supervisor: %+v", result)
	}

	// assessor signs; no further handoff
	assessorToken := tokenFromLink(t, result.NextLink)
	result, err = te.engine.Advance(ctx, assessorToken, AdvanceRequest{SignatureImage: testSignature})
	if err != nil {
		t.Fatalf("assessor Advance() error = %v", err)
	}
	if !result.Terminal || result.NextLink != "" {
		t.Fatalf("after assessor: %+v", result)
	}
	if te.notifier.inviteCount() != 2 {
		t.Errorf("invites = %d, want 2", te.notifier.inviteCount())
	}

	// assessor finalizes with an explicit outcome
	final, err := te.engine.Finalize(ctx, assessorToken, FinalizeRequest{Outcome: "COMPETENT"})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	if !strings.HasPrefix(final.ArtifactURL, "https://declare.test/files/") {
		t.Errorf("ArtifactURL = %q", final.ArtifactURL)
	}
	if len(final.ContentHash) != 64 {
		t.Errorf("ContentHash = %q", final.ContentHash)
	}

	manifest, err := artifact.VerifyManifest(final.Manifest, te.publicKey)
	if err != nil {
		t.Fatalf("manifest does not verify: %v", err)
	}
	if manifest.ContentHash != final.ContentHash {
		t.Errorf("manifest hash %q != result hash %q", manifest.ContentHash, final.ContentHash)
	}

	env, err := te.store.GetEnvelope(ctx, created.Envelope.ID)
	if err != nil {
		t.Fatalf("GetEnvelope() error = %v", err)
	}
	if env.Status != envelope.StatusCompleted {
		t.Errorf("status = %v, want completed", env.Status)
	}
	if env.ContentHash != final.ContentHash {
		t.Errorf("stored hash %q != result hash %q", env.ContentHash, final.ContentHash)
	}

	// all three parties are notified of completion
	if len(te.notifier.completions) != 3 {
		t.Errorf("completions = %d, want 3", len(te.notifier.completions))
	}
}

func TestAdvanceOutOfOrder(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)

	// a forged/early supervisor token while the envelope awaits the student
	supervisorToken, err := te.codec.Mint(created.Envelope.ID, envelope.RoleSupervisor, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = te.engine.Advance(context.Background(), supervisorToken, AdvanceRequest{SignatureImage: testSignature})
	assertWorkflowCode(t, err, envelope.ErrCodeOutOfOrder)

	// nothing changed and nobody was notified
	if te.notifier.inviteCount() != 0 {
		t.Errorf("invites = %d, want 0", te.notifier.inviteCount())
	}
	env, err := te.store.GetEnvelope(context.Background(), created.Envelope.ID)
	if err != nil {
		t.Fatalf("GetEnvelope() error = %v", err)
	}
	if env.Status != envelope.StatusAwaitingStudent {
		t.Errorf("status = %v, want awaiting_student", env.Status)
	}
}

func TestAdvanceStaleAfterTurnPassed(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	created := te.create(t)
	studentToken := tokenFromLink(t, created.NextLink)

	if _, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{
		SignatureImage: testSignature,
		NextEmail:      "super@example.edu.au",
	}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	// replaying the student's still-valid token is rejected: the status has
	// moved past the student's turn
	_, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{SignatureImage: testSignature})
	assertWorkflowCode(t, err, envelope.ErrCodeOutOfOrder)
}

func TestAdvanceExpiredToken(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)

	clock := time.Now()
	expiredCodec := token.NewCodecWithClock(testSecret, func() time.Time { return clock.Add(-2 * time.Hour) })
	expired, err := expiredCodec.Mint(created.Envelope.ID, envelope.RoleStudent, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = te.engine.Advance(context.Background(), expired, AdvanceRequest{SignatureImage: testSignature})
	var authErr *token.AuthError
	if !errors.As(err, &authErr) || authErr.Code() != token.ErrCodeExpired {
		t.Errorf("error = %v, want expired AuthError", err)
	}
}

func TestAdvanceValidation(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)
	studentToken := tokenFromLink(t, created.NextLink)
	ctx := context.Background()

	t.Run("missing signature", func(t *testing.T) {
		_, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{})
		assertWorkflowCode(t, err, envelope.ErrCodeValidation)
	})

	t.Run("bad signature encoding", func(t *testing.T) {
		_, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{SignatureImage: "data:image/png;base64,!!!"})
		assertWorkflowCode(t, err, envelope.ErrCodeValidation)
	})
}

// raceStore simulates a concurrent duplicate: just before the engine's
// compare-and-set, the duplicate applies the same transition first.
type raceStore struct {
	store.Store
	duplicate func()
	once      sync.Once
}

func (r *raceStore) AdvanceStatus(ctx context.Context, id uuid.UUID, from, to envelope.Status) error {
	r.once.Do(r.duplicate)
	return r.Store.AdvanceStatus(ctx, id, from, to)
}

func TestConcurrentAdvanceSingleNotification(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	created := te.create(t)
	studentToken := tokenFromLink(t, created.NextLink)

	raced := &raceStore{Store: te.store}
	raced.duplicate = func() {
		if err := te.store.AdvanceStatus(ctx, created.Envelope.ID,
			envelope.StatusAwaitingStudent, envelope.StatusAwaitingSupervisor); err != nil {
			t.Errorf("duplicate AdvanceStatus() error = %v", err)
		}
	}

	engine := NewEngine(raced, te.codec, te.notifier, te.engine.blobs, te.engine.signer, te.engine.cfg)

	// the loser of the compare-and-set still answers successfully
	result, err := engine.Advance(ctx, studentToken, AdvanceRequest{
		SignatureImage: testSignature,
		NextEmail:      "super@example.edu.au",
	})
	if err != nil {
		t.Fatalf("Advance() error = %v", err)
	}
	if result.Status != envelope.StatusAwaitingSupervisor || result.NextLink == "" {
		t.Fatalf("result = %+v", result)
	}

	// but does not notify: the winner owns the single notification
	if te.notifier.inviteCount() != 0 {
		t.Errorf("invites = %d, want 0 from the losing request", te.notifier.inviteCount())
	}

	// and does not audit a transition it never applied
	for _, event := range te.store.AuditEvents() {
		if event.EventType == "party.signed" {
			t.Errorf("losing request recorded audit event %+v", event)
		}
	}
}

// raceBlobStore triggers a rival finalize just before the declaration
// object is written, after the caller has already composed its own artifact.
type raceBlobStore struct {
	blob.Store
	rival func()
	once  sync.Once
}

func (r *raceBlobStore) Put(ctx context.Context, envelopeID uuid.UUID, filename string, data []byte) (string, error) {
	if strings.HasPrefix(filename, "declaration-") {
		r.once.Do(r.rival)
	}
	return r.Store.Put(ctx, envelopeID, filename, data)
}

func TestConcurrentFinalizePreservesWinningArtifact(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	envID, assessorToken := signAll(t, te)

	var winner FinalizeResult
	raced := &raceBlobStore{Store: te.engine.blobs}
	raced.rival = func() {
		var err error
		winner, err = te.engine.Finalize(ctx, assessorToken, FinalizeRequest{Outcome: "COMPETENT"})
		if err != nil {
			t.Errorf("rival Finalize() error = %v", err)
		}
	}

	// the loser composes a different artifact: later completion time,
	// opposite outcome
	loser := NewEngine(te.store, te.codec, te.notifier, raced, te.engine.signer, te.engine.cfg).
		WithClock(func() time.Time { return time.Now().Add(time.Minute) })

	_, err := loser.Finalize(ctx, assessorToken, FinalizeRequest{Outcome: "NOT_YET_COMPETENT"})
	var completedErr *envelope.AlreadyCompletedError
	if !errors.As(err, &completedErr) {
		t.Fatalf("error = %v, want AlreadyCompletedError", err)
	}
	if completedErr.ContentHash != winner.ContentHash {
		t.Errorf("loser saw hash %q, want the winner's %q", completedErr.ContentHash, winner.ContentHash)
	}

	// the recorded reference still resolves to bytes matching the recorded
	// content hash, and the form data reflects the winning outcome
	env, err := te.store.GetEnvelope(ctx, envID)
	if err != nil {
		t.Fatalf("GetEnvelope() error = %v", err)
	}
	if env.ContentHash != winner.ContentHash {
		t.Fatalf("stored hash = %q, want %q", env.ContentHash, winner.ContentHash)
	}
	content, err := te.engine.blobs.Get(ctx, env.FinalArtifactRef)
	if err != nil {
		t.Fatalf("failed to read stored artifact: %v", err)
	}
	if got := crypto.CalculateSHA256Hex(content); got != env.ContentHash {
		t.Errorf("stored artifact hashes to %s, envelope records %s", got, env.ContentHash)
	}
	if env.FormData["outcome"] != "COMPETENT" {
		t.Errorf("FormData[outcome] = %v, want the winning outcome", env.FormData["outcome"])
	}
}

func TestFinalizeRequiresAssessor(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)

	supervisorToken, err := te.codec.Mint(created.Envelope.ID, envelope.RoleSupervisor, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = te.engine.Finalize(context.Background(), supervisorToken, FinalizeRequest{Outcome: "COMPETENT"})
	assertWorkflowCode(t, err, envelope.ErrCodeForbidden)
}

func TestFinalizeRequiresAllSignatures(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)

	assessorToken, err := te.codec.Mint(created.Envelope.ID, envelope.RoleAssessor, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = te.engine.Finalize(context.Background(), assessorToken, FinalizeRequest{Outcome: "COMPETENT"})
	assertWorkflowCode(t, err, envelope.ErrCodeIncomplete)
}

func TestFinalizeRejectsBadOutcome(t *testing.T) {
	te := newTestEngine(t)
	created := te.create(t)

	assessorToken, err := te.codec.Mint(created.Envelope.ID, envelope.RoleAssessor, time.Hour)
	if err != nil {
		t.Fatalf("Mint() error = %v", err)
	}

	_, err = te.engine.Finalize(context.Background(), assessorToken, FinalizeRequest{Outcome: "passed"})
	assertWorkflowCode(t, err, envelope.ErrCodeValidation)
}

func TestFinalizeTwice(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	assessorToken, first := completeEnvelope(t, te)

	_, err := te.engine.Finalize(ctx, assessorToken, FinalizeRequest{Outcome: "NOT_YET_COMPETENT"})
	var completedErr *envelope.AlreadyCompletedError
	if !errors.As(err, &completedErr) {
		t.Fatalf("error = %v, want AlreadyCompletedError", err)
	}

	// the stored first result is echoed, not replaced
	if completedErr.ArtifactRef != first.ArtifactURL {
		t.Errorf("ArtifactRef = %q, want %q", completedErr.ArtifactRef, first.ArtifactURL)
	}
	if completedErr.ContentHash != first.ContentHash {
		t.Errorf("ContentHash = %q, want %q", completedErr.ContentHash, first.ContentHash)
	}
}

func TestResolve(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	created := te.create(t)
	studentToken := tokenFromLink(t, created.NextLink)

	identity, err := te.engine.Resolve(ctx, studentToken)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if identity.Role != envelope.RoleStudent || !identity.Current {
		t.Errorf("identity = %+v, want current student", identity)
	}

	if _, err := te.engine.Advance(ctx, studentToken, AdvanceRequest{
		SignatureImage: testSignature,
		NextEmail:      "super@example.edu.au",
	}); err != nil {
		t.Fatalf("Advance() error = %v", err)
	}

	// the student token still resolves, but is no longer current
	identity, err = te.engine.Resolve(ctx, studentToken)
	if err != nil {
		t.Fatalf("Resolve() after advance error = %v", err)
	}
	if identity.Current {
		t.Error("student token should not be current after the turn passed")
	}
	if identity.Status != envelope.StatusAwaitingSupervisor {
		t.Errorf("status = %v", identity.Status)
	}
}

// signAll drives a fresh envelope through all three signatures and returns
// the envelope id and the assessor's token.
func signAll(t *testing.T, te *testEnv) (uuid.UUID, string) {
	t.Helper()
	ctx := context.Background()
	created := te.create(t)

	link := created.NextLink
	var assessorToken string
	for _, next := range []string{"super@example.edu.au", "assessor@example.edu.au", ""} {
		tok := tokenFromLink(t, link)
		result, err := te.engine.Advance(ctx, tok, AdvanceRequest{
			SignatureImage: testSignature,
			NextEmail:      next,
		})
		if err != nil {
			t.Fatalf("Advance() error = %v", err)
		}
		if result.Terminal {
			assessorToken = tok
			break
		}
		link = result.NextLink
	}
	return created.Envelope.ID, assessorToken
}

// completeEnvelope drives a fresh envelope to completion and returns the
// assessor's token and the first finalize result.
func completeEnvelope(t *testing.T, te *testEnv) (string, FinalizeResult) {
	t.Helper()
	_, assessorToken := signAll(t, te)

	final, err := te.engine.Finalize(context.Background(), assessorToken, FinalizeRequest{Outcome: "COMPETENT"})
	if err != nil {
		t.Fatalf("Finalize() error = %v", err)
	}
	return assessorToken, final
}

func assertWorkflowCode(t *testing.T, err error, want envelope.ErrorCode) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	var workflowErr *envelope.WorkflowError
	if !errors.As(err, &workflowErr) {
		t.Fatalf("error type = %T (%v), want *WorkflowError", err, err)
	}
	if workflowErr.Code() != want {
		t.Errorf("code = %v, want %v", workflowErr.Code(), want)
	}
}
