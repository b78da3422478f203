package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application. A nil *Metrics
// is safe: every increment method no-ops, so services take it as an
// optional dependency.
type Metrics struct {
	ClaimsSubmitted prometheus.Counter
	ClaimsApproved  prometheus.Counter
	ClaimsRejected  prometheus.Counter
	ReleasesIssued  prometheus.Counter
	ReleasesViewed  prometheus.Counter
	DecryptFailures prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		ClaimsSubmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_claims_submitted_total",
			Help: "Total number of claims submitted by recipients",
		}),
		ClaimsApproved: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_claims_approved_total",
			Help: "Total number of claims approved",
		}),
		ClaimsRejected: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_claims_rejected_total",
			Help: "Total number of claims rejected",
		}),
		ReleasesIssued: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_releases_issued_total",
			Help: "Total number of releases issued for approved claims",
		}),
		ReleasesViewed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_releases_viewed_total",
			Help: "Total number of releases redeemed by recipients",
		}),
		DecryptFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "lifekey_decrypt_failures_total",
			Help: "Total number of payload or key unwrap failures",
		}),
	}
}

func (m *Metrics) IncClaimsSubmitted() {
	if m != nil {
		m.ClaimsSubmitted.Inc()
	}
}

func (m *Metrics) IncClaimsApproved() {
	if m != nil {
		m.ClaimsApproved.Inc()
	}
}

func (m *Metrics) IncClaimsRejected() {
	if m != nil {
		m.ClaimsRejected.Inc()
	}
}

func (m *Metrics) IncReleasesIssued() {
	if m != nil {
		m.ReleasesIssued.Inc()
	}
}

func (m *Metrics) IncReleasesViewed() {
	if m != nil {
		m.ReleasesViewed.Inc()
	}
}

func (m *Metrics) IncDecryptFailures() {
	if m != nil {
		m.DecryptFailures.Inc()
	}
}
