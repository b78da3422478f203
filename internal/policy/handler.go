package policy

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/platform/middleware"
	"lifekey/internal/transport/http/shared"
	dErrors "lifekey/pkg/domain-errors"
)

// Handler handles policy endpoints for authenticated owners.
type Handler struct {
	policies *Service
	logger   *slog.Logger
}

func NewHandler(policies *Service, logger *slog.Logger) *Handler {
	return &Handler{policies: policies, logger: logger}
}

// Register registers the policy routes with the chi router. The enclosing
// router has already applied RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Post("/policies", h.handleCreate)
	r.Get("/policies/me", h.handleListMine)
}

type createRequest struct {
	DisputeWindowSeconds int64 `json:"dispute_window_seconds"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	p, err := h.policies.Create(ctx, ownerID, time.Duration(req.DisputeWindowSeconds)*time.Second)
	if err != nil {
		h.logger.WarnContext(ctx, "policy create failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	policies, err := h.policies.ListMine(ctx, ownerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if policies == nil {
		policies = []*Policy{}
	}
	shared.WriteJSON(w, http.StatusOK, policies)
}
