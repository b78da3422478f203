package assignment

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

// Handler handles assignment endpoints for authenticated owners.
type Handler struct {
	assignments *Service
	logger      *slog.Logger
}

func NewHandler(assignments *Service, logger *slog.Logger) *Handler {
	return &Handler{assignments: assignments, logger: logger}
}

// Register registers the assignment routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/assignments", h.handleAssign)
	r.Delete("/assignments/{assignmentID}", h.handleRemove)
}

type assignRequest struct {
	PolicyID    string `json:"policy_id"`
	VaultItemID string `json:"vault_item_id"`
	RecipientID string `json:"recipient_id"`
	Permission  string `json:"permission"`
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}
	policyID, err := id.ParsePolicyID(req.PolicyID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	itemID, err := id.ParseVaultItemID(req.VaultItemID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	recipientID, err := id.ParseRecipientID(req.RecipientID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	permission, err := ParsePermission(req.Permission)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	a, err := h.assignments.Assign(ctx, ownerID, policyID, itemID, recipientID, permission)
	if err != nil {
		h.logger.WarnContext(ctx, "assignment failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, a)
}

func (h *Handler) handleRemove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	assignmentID, err := id.ParseAssignmentID(chi.URLParam(r, "assignmentID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	if err := h.assignments.Remove(ctx, ownerID, assignmentID); err != nil {
		shared.WriteError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
