package metrics

import "github.com/prometheus/client_golang/prometheus"

// OutboxMetrics exposes outbox health between publisher runs.
type OutboxMetrics struct {
	dlqBacklog prometheus.Gauge
}

func NewOutboxMetrics(reg prometheus.Registerer) *OutboxMetrics {
	if reg == nil {
		return &OutboxMetrics{}
	}
	backlog := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "procurement_outbox_dlq_entries",
		Help: "Outbox events parked in the dead-letter table.",
	})
	reg.MustRegister(backlog)
	return &OutboxMetrics{dlqBacklog: backlog}
}

func (m *OutboxMetrics) SetDLQBacklog(n int64) {
	if m == nil || m.dlqBacklog == nil {
		return
	}
	m.dlqBacklog.Set(float64(n))
}
