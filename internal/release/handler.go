package release

import (
	"encoding/base64"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"lifekey/internal/platform/middleware"
	"lifekey/internal/transport/http/shared"
	id "lifekey/pkg/domain"
	dErrors "lifekey/pkg/domain-errors"
)

// recipientKeyHeader carries the base64 private key a recipient presents at
// redemption. The server never stored it; registration handed it out once.
const recipientKeyHeader = "X-Recipient-Key"

// Handler handles release issuance and redemption. Redemption is public:
// the token plus the recipient's private key are the whole credential.
type Handler struct {
	releases *Service
	sweeper  *Sweeper
	logger   *slog.Logger
}

func NewHandler(releases *Service, sweeper *Sweeper, logger *slog.Logger) *Handler {
	return &Handler{releases: releases, sweeper: sweeper, logger: logger}
}

// RegisterReview registers issuance behind the auth middleware.
func (h *Handler) RegisterReview(r chi.Router) {
	r.Post("/claims/{claimID}/issue-releases", h.handleIssue)
}

// RegisterPublic registers the redemption route.
func (h *Handler) RegisterPublic(r chi.Router) {
	r.Get("/release/{token}", h.handleView)
}

type issueResponse struct {
	ReleaseID  string    `json:"release_id"`
	ReleaseURL string    `json:"release_url"`
	ExpiresAt  time.Time `json:"expires_at"`
	ItemCount  int       `json:"item_count"`
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	claimID, err := id.ParseClaimID(chi.URLParam(r, "claimID"))
	if err != nil {
		shared.WriteError(w, err)
		return
	}

	rel, err := h.releases.IssueReleases(ctx, claimID)
	if err != nil {
		if dErrors.Retryable(err) && h.sweeper != nil {
			h.sweeper.Add(claimID)
		}
		h.logger.WarnContext(ctx, "release issuance failed",
			"error", err.Error(),
			"claim_id", claimID.String(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusCreated, issueResponse{
		ReleaseID:  rel.ID.String(),
		ReleaseURL: "/release/" + rel.Token,
		ExpiresAt:  rel.ExpiresAt,
		ItemCount:  len(rel.Items),
	})
}

type viewResponse struct {
	ReleaseID string       `json:"release_id"`
	ViewedAt  time.Time    `json:"viewed_at"`
	Items     []ViewedItem `json:"items"`
}

func (h *Handler) handleView(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	token := chi.URLParam(r, "token")
	rawKey := r.Header.Get(recipientKeyHeader)
	if rawKey == "" {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing recipient key header"))
		return
	}
	privateKey, err := base64.RawURLEncoding.DecodeString(rawKey)
	if err != nil {
		shared.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed recipient key"))
		return
	}

	rel, items, err := h.releases.ViewRelease(ctx, token, privateKey)
	if err != nil {
		h.logger.WarnContext(ctx, "release redemption failed",
			"error", err.Error(),
			"request_id", middleware.GetRequestID(ctx),
		)
		shared.WriteError(w, err)
		return
	}

	shared.WriteJSON(w, http.StatusOK, viewResponse{
		ReleaseID: rel.ID.String(),
		ViewedAt:  *rel.ConsumedAt,
		Items:     items,
	})
}
