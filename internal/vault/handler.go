package vault

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

// Handler handles vault item endpoints for authenticated owners. Responses
// never carry ciphertext or wrapped keys.
type Handler struct {
	items  *Service
	logger *slog.Logger
}

func NewHandler(items *Service, logger *slog.Logger) *Handler {
	return &Handler{items: items, logger: logger}
}

// Register registers the vault routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/vault-items", h.handleCreate)
	r.Get("/vault-items/me", h.handleListMine)
	r.Get("/vault-items/{itemID}", h.handleGet)
}

type createRequest struct {
	Title   string            `json:"title"`
	Type    string            `json:"type"`
	Payload map[string]string `json:"payload"`
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
	itemType, err := ParseItemType(req.Type)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	item, err := h.items.Create(ctx, ownerID, req.Title, itemType, req.Payload)
	if err != nil {
		h.logger.WarnContext(ctx, "vault item create failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusCreated, item)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	itemID, err := id.ParseVaultItemID(chi.URLParam(r, "itemID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	item, err := h.items.Get(ctx, ownerID, itemID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	shared.WriteJSON(w, http.StatusOK, item)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	items, err := h.items.ListMine(ctx, ownerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if items == nil {
		items = []*Item{}
	}
	shared.WriteJSON(w, http.StatusOK, items)
}
