// Package httptransport assembles the HTTP surface: middleware stack,
// public edge routes, and the authenticated owner/reviewer API.
package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lifekey/internal/assignment"
	"lifekey/internal/audit"
	"lifekey/internal/claim"
	"lifekey/internal/owner"
	"lifekey/internal/platform/middleware"
	"lifekey/internal/policy"
	"lifekey/internal/recipient"
	"lifekey/internal/release"
	"lifekey/internal/vault"
	"lifekey/pkg/requestcontext"
)

// Handlers collects every domain handler the router mounts.
type Handlers struct {
	Owner      *owner.Handler
	Policy     *policy.Handler
	Recipient  *recipient.Handler
	Vault      *vault.Handler
	Assignment *assignment.Handler
	Claim      *claim.Handler
	Release    *release.Handler
	Audit      *audit.Handler
}

// NewRouter wires all endpoints. Claim submission and release redemption
// stay public: recipients authenticate with what they know (identity
// assertion) and what they hold (token + private key), not with an account.
func NewRouter(h Handlers, validator middleware.TokenValidator, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID)
	r.Use(middleware.RequestTime)
	r.Use(middleware.Logger(logger))
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Group(func(pub chi.Router) {
		pub.Use(middleware.ContentTypeJSON)
		h.Owner.Register(pub)
		h.Claim.RegisterPublic(pub)
		h.Release.RegisterPublic(pub)
	})

	r.Group(func(authed chi.Router) {
		authed.Use(middleware.ContentTypeJSON)
		authed.Use(middleware.RequireAuth(validator, logger))
		h.Policy.Register(authed)
		h.Recipient.Register(authed)
		h.Vault.Register(authed)
		h.Assignment.Register(authed)
		h.Audit.Register(authed)

		// Review verdicts on claims the reviewer does not own; an owner token
		// must not reach them.
		authed.Group(func(review chi.Router) {
			review.Use(middleware.RequireKind(requestcontext.ActorAdmin))
			h.Claim.RegisterReview(review)
			h.Release.RegisterReview(review)
		})
	})

	return r
}
