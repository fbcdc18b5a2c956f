// Package prom counts tiercache Hooks events with Prometheus counters.
package prom

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/unkn0wn-root/tiercache"
)

type Hooks struct {
	backendErrors *prometheus.CounterVec
	selfHeals     *prometheus.CounterVec
	tierFailures  *prometheus.CounterVec
	promoted      *prometheus.CounterVec
}

var _ tiercache.Hooks = (*Hooks)(nil)

// New registers the counters with reg (prometheus.DefaultRegisterer when nil).
// namespace prefixes every metric name, e.g. "app" => app_tiercache_backend_errors_total.
func New(reg prometheus.Registerer, namespace string) (*Hooks, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tiercache",
			Name:      name,
			Help:      help,
		}, labels)
	}
	h := &Hooks{
		backendErrors: counter("backend_errors_total", "Store failures folded into a false result.", "backend", "op"),
		selfHeals:     counter("self_heals_total", "Unreadable entries deleted on read.", "backend", "reason"),
		tierFailures:  counter("tier_failures_total", "Tier failures inside a tiered fan-out.", "tier", "backend", "op"),
		promoted:      counter("promoted_keys_total", "Keys copied from a lower tier into the tiers above it.", "tier"),
	}
	for _, c := range []prometheus.Collector{h.backendErrors, h.selfHeals, h.tierFailures, h.promoted} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return h, nil
}

func (h *Hooks) BackendError(backend, op string, _ error) {
	h.backendErrors.WithLabelValues(backend, op).Inc()
}

func (h *Hooks) SelfHeal(backend, _, reason string) {
	h.selfHeals.WithLabelValues(backend, reason).Inc()
}

func (h *Hooks) TierFailed(tier int, backend, op string) {
	h.tierFailures.WithLabelValues(strconv.Itoa(tier), backend, op).Inc()
}

func (h *Hooks) Promoted(tier, count int) {
	h.promoted.WithLabelValues(strconv.Itoa(tier)).Add(float64(count))
}
