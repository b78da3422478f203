package owner

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/platform/middleware"
	"lifekey/internal/transport/http/shared"
	dErrors "lifekey/pkg/domain-errors"
	"lifekey/pkg/requestcontext"
)

// TokenIssuer signs actor tokens at the login edge.
type TokenIssuer interface {
	Issue(actor requestcontext.Actor, now time.Time) (string, error)
}

// Handler handles the login edge. This is the only place tokens are minted;
// everything else consumes them through the auth middleware.
type Handler struct {
	owners   *Service
	tokens   TokenIssuer
	adminKey string
	logger   *slog.Logger
}

// HandlerOption configures a Handler.
type HandlerOption func(*Handler)

// WithAdminKey enables the reviewer login route. An empty key leaves it
// disabled: every attempt fails, and no admin token can ever be minted.
func WithAdminKey(key string) HandlerOption {
	return func(h *Handler) { h.adminKey = key }
}

func NewHandler(owners *Service, tokens TokenIssuer, logger *slog.Logger, opts ...HandlerOption) *Handler {
	h := &Handler{owners: owners, tokens: tokens, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the auth routes with the chi router.
func (h *Handler) Register(r chi.Router) {
	r.Post("/auth/login", h.handleLogin)
	r.Post("/auth/admin/login", h.handleAdminLogin)
}

type loginRequest struct {
	Email string `json:"email"`
	Name  string `json:"name"`
}

type loginResponse struct {
	Token string `json:"token"`
	Owner *Owner `json:"owner"`
}

// handleLogin upserts the owner by email and returns a signed actor token.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	o, err := h.owners.FirstLogin(ctx, req.Email, req.Name)
	if err != nil {
		h.logger.WarnContext(ctx, "login failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	actor := requestcontext.Actor{Kind: requestcontext.ActorOwner, Subject: o.ID.String()}
	token, err := h.tokens.Issue(actor, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "token issuance failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, loginResponse{Token: token, Owner: o})
}

type adminLoginRequest struct {
	APIKey string `json:"api_key"`
}

type adminLoginResponse struct {
	Token string `json:"token"`
}

// handleAdminLogin exchanges the shared reviewer key for an admin token.
// Review routes reject every other actor kind, so this is the only way in.
func (h *Handler) handleAdminLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req adminLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid request body"))
		return
	}

	if h.adminKey == "" || subtle.ConstantTimeCompare([]byte(req.APIKey), []byte(h.adminKey)) != 1 {
		h.logger.WarnContext(ctx, "admin login rejected",
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeForbidden, "invalid admin credentials"))
		return
	}

	actor := requestcontext.Actor{Kind: requestcontext.ActorAdmin, Subject: "reviewer"}
	token, err := h.tokens.Issue(actor, requestcontext.Now(ctx))
	if err != nil {
		h.logger.ErrorContext(ctx, "token issuance failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, dErrors.New(dErrors.CodeInternal, "failed to issue token"))
		return
	}

	shared.WriteJSON(w, http.StatusOK, adminLoginResponse{Token: token})
}
