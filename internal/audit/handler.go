package audit

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/transport/http/shared"
)

// Handler serves the owner's audit timeline.
type Handler struct {
	store  Store
	logger *slog.Logger
}

func NewHandler(store Store, logger *slog.Logger) *Handler {
	return &Handler{store: store, logger: logger}
}

// Register registers the audit routes with the chi router. The enclosing
// router has already applied RequireAuth.
func (h *Handler) Register(r chi.Router) {
	r.Get("/audit/me", h.handleListMine)
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	events, err := h.store.ListByOwner(ctx, ownerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if events == nil {
		events = []Event{}
	}
	shared.WriteJSON(w, http.StatusOK, events)
}
