// Package metrics exposes Prometheus counters for the link-token flows.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds counters for link issuance and exchange outcomes.
type Metrics struct {
	LinksIssued    *prometheus.CounterVec
	Exchanges      *prometheus.CounterVec
	PasswordResets prometheus.Counter
}

// New creates and registers the link-token metrics on the default registry.
func New() *Metrics {
	return &Metrics{
		LinksIssued: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_links_issued_total",
			Help: "Auth links issued, by intent",
		}, []string{"intent"}),
		Exchanges: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "linkgate_exchanges_total",
			Help: "Link token exchange attempts, by intent and result",
		}, []string{"intent", "result"}),
		PasswordResets: promauto.NewCounter(prometheus.CounterOpts{
			Name: "linkgate_password_resets_total",
			Help: "Completed password updates via recovery sessions",
		}),
	}
}
