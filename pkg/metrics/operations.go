package metrics

import (
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	pkgerrors "github.com/angelmondragon/ffe-procurement/pkg/errors"
)

const OutcomeSuccess = "success"

// OperationMetrics records rate, errors and duration of engine operations.
// A nil *OperationMetrics is a valid no-op recorder.
type OperationMetrics struct {
	total    *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewOperationMetrics registers the operation metrics on the provided registerer.
func NewOperationMetrics(reg prometheus.Registerer) *OperationMetrics {
	if reg == nil {
		return nil
	}
	total := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "procurement_operations_total",
		Help: "Procurement operations by outcome.",
	}, []string{"operation", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "procurement_operation_duration_seconds",
		Help:    "Duration of procurement operations in seconds.",
		Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})
	reg.MustRegister(total, duration)
	return &OperationMetrics{total: total, duration: duration}
}

// Observe records one finished operation. Call it deferred with a pointer to the named
// error result so the outcome reflects what the caller returned.
func (m *OperationMetrics) Observe(operation string, start time.Time, errp *error) {
	if m == nil {
		return
	}
	var err error
	if errp != nil {
		err = *errp
	}
	m.total.WithLabelValues(normalizeLabel(operation), Outcome(err)).Inc()
	m.duration.WithLabelValues(normalizeLabel(operation)).Observe(time.Since(start).Seconds())
}

// Outcome maps an error to its metric label: "success" or the lower-cased error code.
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return strings.ToLower(string(pkgerrors.CodeOf(err)))
}
