package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/markmyw0rd/digital-declaration101/internal/api"
	"github.com/markmyw0rd/digital-declaration101/internal/envelope"
	"github.com/markmyw0rd/digital-declaration101/internal/workflow"
)

// linkCookieName is the session cookie set when a party follows their signing
// link. It carries the link token so subsequent API calls from the browser
// are authorized without the token appearing in every URL.
const linkCookieName = "ev"

type createEnvelopeResponse struct {
	Envelope envelopeView `json:"envelope"`
	NextLink string       `json:"nextLink"`
}

type envelopeView struct {
	ID                 string           `json:"id"`
	UnitCode           string           `json:"unitCode"`
	UnitName           string           `json:"unitName,omitempty"`
	Status             envelope.Status  `json:"status"`
	FormData           map[string]any   `json:"formData"`
	Parties            []partyView      `json:"parties"`
	ArtifactURL        string           `json:"artifactUrl,omitempty"`
	ContentHash        string           `json:"contentHash,omitempty"`
	CompletionManifest string           `json:"completionManifest,omitempty"`
	CreatedAt          time.Time        `json:"createdAt"`
	UpdatedAt          time.Time        `json:"updatedAt"`
}

type partyView struct {
	Role         envelope.Role `json:"role"`
	Email        string        `json:"email,omitempty"`
	Name         string        `json:"name,omitempty"`
	SignatureURL string        `json:"signatureUrl,omitempty"`
	SignedAt     *time.Time    `json:"signedAt,omitempty"`
}

func (s *Server) envelopeView(env envelope.Envelope, parties []envelope.Party) envelopeView {
	view := envelopeView{
		ID:                 env.ID.String(),
		UnitCode:           env.UnitCode,
		UnitName:           env.UnitName,
		Status:             env.Status,
		FormData:           env.FormData,
		ArtifactURL:        s.fileURL(env.FinalArtifactRef),
		ContentHash:        env.ContentHash,
		CompletionManifest: env.CompletionManifest,
		CreatedAt:          env.CreatedAt,
		UpdatedAt:          env.UpdatedAt,
	}
	for _, p := range parties {
		view.Parties = append(view.Parties, partyView{
			Role:         p.Role,
			Email:        p.Email,
			Name:         p.Name,
			SignatureURL: s.fileURL(p.SignatureRef),
			SignedAt:     p.SignedAt,
		})
	}
	return view
}

func (s *Server) fileURL(ref string) string {
	if ref == "" {
		return ""
	}
	return strings.TrimRight(s.config.PublicOrigin, "/") + "/files/" + ref
}

// requestToken extracts the link token from the request: an explicit value
// wins, then the Authorization header, then the link cookie.
func requestToken(r *http.Request, explicit string) string {
	if explicit != "" {
		return explicit
	}
	if auth := r.Header.Get("Authorization"); strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	if cookie, err := r.Cookie(linkCookieName); err == nil {
		return cookie.Value
	}
	return ""
}

func decodeJSONBody(r *http.Request, dst any) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return envelope.WrapValidationError(err, "request body is not valid JSON")
	}
	return nil
}

// handleCreateEnvelope godoc
//
//	@Summary		Create a declaration envelope
//	@Description	Opens a new envelope awaiting the student's signature and
//	@Description	returns the student's signing link.
//	@Tags			Envelopes
//	@Accept			json
//	@Produce		json
//	@Param			request	body		workflow.CreateRequest	true	"Envelope details"
//	@Success		201		{object}	createEnvelopeResponse
//	@Failure		400		{object}	api.ErrorResponse
//	@Router			/api/envelopes [post]
func (s *Server) handleCreateEnvelope(w http.ResponseWriter, r *http.Request) {
	var req workflow.CreateRequest
	if err := decodeJSONBody(r, &req); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	result, err := s.engine.Create(r.Context(), req)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusCreated, createEnvelopeResponse{
		Envelope: s.envelopeView(result.Envelope, nil),
		NextLink: result.NextLink,
	})
}

// handleGetEnvelope godoc
//
//	@Summary		Get an envelope
//	@Description	Returns the envelope, its parties and, once completed, the
//	@Description	final artifact details. Requires a link token for the same
//	@Description	envelope (a stale token may still read).
//	@Tags			Envelopes
//	@Produce		json
//	@Param			envelopeID	path		string	true	"Envelope ID"
//	@Success		200			{object}	envelopeView
//	@Failure		401			{object}	api.ErrorResponse
//	@Failure		404			{object}	api.ErrorResponse
//	@Router			/api/envelopes/{envelopeID} [get]
func (s *Server) handleGetEnvelope(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "envelopeID"))
	if err != nil {
		api.RespondWithError(w, r, envelope.WrapValidationError(err, "envelopeID is not a valid UUID"))
		return
	}

	identity, err := s.engine.Resolve(r.Context(), requestToken(r, ""))
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}
	if identity.EnvelopeID != id {
		api.RespondWithError(w, r, envelope.NewForbiddenError("link token is for a different envelope"))
		return
	}

	env, parties, err := s.engine.GetEnvelope(r.Context(), id)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusOK, s.envelopeView(env, parties))
}

type signEnvelopeRequest struct {
	Token string `json:"token,omitempty"`
	workflow.AdvanceRequest
}

// handleSignEnvelope godoc
//
//	@Summary		Sign an envelope
//	@Description	Records the current party's signature and hands the envelope
//	@Description	to the next role. The token identifies both the envelope and
//	@Description	the acting role; it may also be supplied via the link cookie
//	@Description	or an Authorization header.
//	@Tags			Envelopes
//	@Accept			json
//	@Produce		json
//	@Param			request	body		signEnvelopeRequest	true	"Signature submission"
//	@Success		200		{object}	workflow.AdvanceResult
//	@Failure		401		{object}	api.ErrorResponse
//	@Failure		409		{object}	api.ErrorResponse
//	@Router			/api/envelopes/sign [post]
func (s *Server) handleSignEnvelope(w http.ResponseWriter, r *http.Request) {
	var req signEnvelopeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	result, err := s.engine.Advance(r.Context(), requestToken(r, req.Token), req.AdvanceRequest)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusOK, result)
}

type completeEnvelopeRequest struct {
	Token   string `json:"token,omitempty"`
	Outcome string `json:"outcome"`
}

// handleCompleteEnvelope godoc
//
//	@Summary		Complete an envelope
//	@Description	Finalizes the envelope with the assessor's outcome, producing
//	@Description	the immutable declaration artifact, its content hash and a
//	@Description	signed completion manifest. Assessor token only; all parties
//	@Description	must have signed; repeat attempts return 409 with the stored
//	@Description	artifact details.
//	@Tags			Envelopes
//	@Accept			json
//	@Produce		json
//	@Param			request	body		completeEnvelopeRequest	true	"Completion request"
//	@Success		200		{object}	workflow.FinalizeResult
//	@Failure		401		{object}	api.ErrorResponse
//	@Failure		403		{object}	api.ErrorResponse
//	@Failure		409		{object}	api.ErrorResponse
//	@Failure		422		{object}	api.ErrorResponse
//	@Router			/api/envelopes/complete [post]
func (s *Server) handleCompleteEnvelope(w http.ResponseWriter, r *http.Request) {
	var req completeEnvelopeRequest
	if err := decodeJSONBody(r, &req); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	result, err := s.engine.Finalize(r.Context(), requestToken(r, req.Token), workflow.FinalizeRequest{Outcome: req.Outcome})
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusOK, result)
}

type whoamiRequest struct {
	Token string `json:"token,omitempty"`
}

// handleWhoami godoc
//
//	@Summary		Resolve a link token
//	@Description	Verifies a link token and reports who it identifies and
//	@Description	whether it is the role the envelope currently expects.
//	@Tags			Envelopes
//	@Accept			json
//	@Produce		json
//	@Param			request	body		whoamiRequest	true	"Token to resolve"
//	@Success		200		{object}	workflow.Identity
//	@Failure		401		{object}	api.ErrorResponse
//	@Router			/api/whoami [post]
func (s *Server) handleWhoami(w http.ResponseWriter, r *http.Request) {
	var req whoamiRequest
	if err := decodeJSONBody(r, &req); err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	identity, err := s.engine.Resolve(r.Context(), requestToken(r, req.Token))
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	api.RespondWithJSONPayload(w, http.StatusOK, identity)
}

// handleLinkEntry godoc
//
//	@Summary		Follow a signing link
//	@Description	Entry point for the links emailed to each party. Verifies the
//	@Description	token, stores it in the link cookie and redirects to the
//	@Description	envelope view.
//	@Tags			Envelopes
//	@Param			token	path	string	true	"Link token"
//	@Success		303
//	@Failure		401	{object}	api.ErrorResponse
//	@Router			/e/{token} [get]
func (s *Server) handleLinkEntry(w http.ResponseWriter, r *http.Request) {
	tokenString := chi.URLParam(r, "token")

	identity, err := s.engine.Resolve(r.Context(), tokenString)
	if err != nil {
		api.RespondWithError(w, r, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     linkCookieName,
		Value:    tokenString,
		Path:     "/",
		MaxAge:   int(s.config.LinkTokenTTL.Seconds()),
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   s.config.Environment == "prod" || s.config.Environment == "staging",
	})

	http.Redirect(w, r, "/api/envelopes/"+identity.EnvelopeID.String(), http.StatusSeeOther)
}
