package recipient

import (
	"encoding/base64"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/platform/middleware"
	"lifekey/internal/transport/http/shared"
	dErrors "lifekey/pkg/domain-errors"
)

// Handler handles recipient endpoints for authenticated owners.
type Handler struct {
	recipients *Service
	logger     *slog.Logger
}

func NewHandler(recipients *Service, logger *slog.Logger) *Handler {
	return &Handler{recipients: recipients, logger: logger}
}

// Register registers the recipient routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/recipients", h.handleAdd)
	r.Get("/recipients/me", h.handleListMine)
}

type addRequest struct {
	Email     string `json:"email"`
	LegalName string `json:"legal_name"`
	DOB       string `json:"dob"`
}

type addResponse struct {
	Recipient *Recipient `json:"recipient"`
	// PrivateKey is handed out exactly once, at registration, for delivery
	// to the recipient. The server keeps only the public half.
	PrivateKey string `json:"private_key"`
}

func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	var req addRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	rcpt, privateKey, err := h.recipients.Add(ctx, ownerID, req.Email, req.LegalName, req.DOB)
	if err != nil {
		h.logger.WarnContext(ctx, "recipient add failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, addResponse{
		Recipient:  rcpt,
		PrivateKey: base64.RawURLEncoding.EncodeToString(privateKey),
	})
}

func (h *Handler) handleListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID, err := shared.OwnerIDFrom(ctx)
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	recipients, err := h.recipients.ListMine(ctx, ownerID)
	if err != nil {
		shared.WriteError(w, err)
		return
	}
	if recipients == nil {
		recipients = []*Recipient{}
	}
	shared.WriteJSON(w, http.StatusOK, recipients)
}
