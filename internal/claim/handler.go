package claim

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/platform/middleware"
	"lifekey/internal/transport/http/shared"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// Handler handles claim endpoints. Submission is public: recipients hold no
// account, their asserted identity is the credential. Review endpoints sit
// behind the auth middleware.
type Handler struct {
	claims *Service
	logger *slog.Logger
}

func NewHandler(claims *Service, logger *slog.Logger) *Handler {
	return &Handler{claims: claims, logger: logger}
}

// RegisterPublic registers the unauthenticated submission route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Post("/claims", h.handleSubmit)
}

// RegisterReview registers the routes for reviewers. The enclosing router
// has already applied RequireAuth.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Get("/claims/{claimID}", h.handleGet)
	r.Post("/claims/{claimID}/verdict", h.handleVerdict)
	r.Post("/claims/{claimID}/approve", h.handleApprove)
	r.Post("/claims/{claimID}/reject", h.handleReject)
}

type submitRequest struct {
	PolicyID       string `json:"policy_id"`
	Email          string `json:"email"`
	LegalName      string `json:"legal_name"`
	DOB            string `json:"dob"`
	DeathCertRef   string `json:"death_cert_ref"`
	IdentityDocRef string `json:"identity_doc_ref"`
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	policyID, err := id.ParsePolicyID(req.PolicyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	c, err := h.claims.Submit(ctx, policyID, req.Email, req.LegalName, req.DOB, req.DeathCertRef, req.IdentityDocRef)
	if err != nil {
		h.logger.WarnContext(ctx, "claim submission failed",
			"error", err.Error(),
			"policy_id", req.PolicyID,
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, c)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	c, err := h.claims.Get(r.Context(), claimID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

type verdictRequest struct {
	Verdict     string `json:"verdict"`
	EvidenceRef string `json:"evidence_ref"`
}

func (h *Handler) handleVerdict(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	var req verdictRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	c, err := h.claims.AttachVerdict(ctx, claimID, Verdict(req.Verdict), req.EvidenceRef)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleApprove(w http.ResponseWriter, r *http.Request) {
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	c, err := h.claims.Approve(r.Context(), claimID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}

func (h *Handler) handleReject(w http.ResponseWriter, r *http.Request) {
	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	c, err := h.claims.Reject(r.Context(), claimID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, c)
}
