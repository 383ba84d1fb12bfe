package metrics

import "github.com/prometheus/client_golang/prometheus"

// EscrowMetrics tracks escrow release activity across the confirmation
// endpoints and the auto-release sweep.
type EscrowMetrics struct {
	released *prometheus.CounterVec
	blocked  prometheus.Counter
	scanned  prometheus.Counter
}

// NewEscrowMetrics registers the escrow metrics on the provided registerer.
func NewEscrowMetrics(reg prometheus.Registerer) *EscrowMetrics {
	if reg == nil {
		return &EscrowMetrics{}
	}
	released := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "escrow_released_total",
		Help: "Escrow records released, by trigger.",
	}, []string{"trigger"})
	blocked := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_release_blocked_total",
		Help: "Release attempts blocked by an active return request.",
	})
	scanned := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "escrow_sweep_scanned_total",
		Help: "Escrow records scanned by the auto-release sweep.",
	})
	reg.MustRegister(released, blocked, scanned)
	return &EscrowMetrics{
		released: released,
		blocked:  blocked,
		scanned:  scanned,
	}
}

// IncReleased increments the released counter for the given trigger.
func (e *EscrowMetrics) IncReleased(trigger string) {
	if e == nil || e.released == nil {
		return
	}
	e.released.WithLabelValues(normalizeLabel(trigger)).Inc()
}

// IncBlocked increments the blocked-release counter.
func (e *EscrowMetrics) IncBlocked() {
	if e == nil || e.blocked == nil {
		return
	}
	e.blocked.Inc()
}

// AddScanned adds to the sweep scan counter.
func (e *EscrowMetrics) AddScanned(n int) {
	if e == nil || e.scanned == nil || n <= 0 {
		return
	}
	e.scanned.Add(float64(n))
}
