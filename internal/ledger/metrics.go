package ledger

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	claims   *prometheus.CounterVec
	unclaims *prometheus.CounterVec
	attempts prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	if reg == nil {
		return nil
	}
	m := &metrics{
		claims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wedding_site_ledger_claims_total",
			Help: "Gift claims by outcome.",
		}, []string{"outcome"}),
		unclaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wedding_site_ledger_unclaims_total",
			Help: "Gift unclaims by outcome.",
		}, []string{"outcome"}),
		attempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wedding_site_ledger_claim_attempts",
			Help:    "Compare-and-set attempts needed per claim.",
			Buckets: []float64{1, 2, 3, 4, 6, 8, 12},
		}),
	}
	reg.MustRegister(m.claims, m.unclaims, m.attempts)
	return m
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientQuantity):
		return "insufficient"
	case errors.Is(err, ErrContention):
		return "contention"
	case errors.Is(err, ErrIdempotencyConflict):
		return "idempotency_conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrStoreUnavailable):
		return "unavailable"
	}
	return "error"
}

func (m *metrics) observeClaim(err error, replayed bool, attempts int) {
	if m == nil {
		return
	}
	label := outcome(err)
	if err == nil && replayed {
		label = "replayed"
	}
	m.claims.WithLabelValues(label).Inc()
	if attempts > 0 {
		m.attempts.Observe(float64(attempts))
	}
}

func (m *metrics) observeUnclaim(err error, removed bool) {
	if m == nil {
		return
	}
	label := outcome(err)
	if err == nil && !removed {
		label = "noop"
	}
	m.unclaims.WithLabelValues(label).Inc()
}
