package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "device_loan"

// LedgerMetrics counts loan ledger transitions.
type LedgerMetrics struct {
	loans      prometheus.Counter
	rejections *prometheus.CounterVec
	returns    prometheus.Counter
	imports    *prometheus.CounterVec
	reminders  *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger counters. A nil registerer yields a
// no-op collector.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		loans: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loans_created_total",
			Help:      "Loan records created.",
		}),
		rejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "loan_rejections_total",
			Help:      "Requested devices that could not be loaned, by reason.",
		}, []string{"reason"}),
		returns: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "returns_total",
			Help:      "Loan records stamped as returned.",
		}),
		imports: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "imports_total",
			Help:      "Snapshot imports, by outcome.",
		}, []string{"outcome"}),
		reminders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "overdue_reminders_total",
			Help:      "Overdue reminders, by outcome.",
		}, []string{"outcome"}),
	}
	reg.MustRegister(m.loans, m.rejections, m.returns, m.imports, m.reminders)
	return m
}

func (m *LedgerMetrics) AddLoans(n int) {
	if m == nil || m.loans == nil || n <= 0 {
		return
	}
	m.loans.Add(float64(n))
}

func (m *LedgerMetrics) IncRejection(reason string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(reason)).Inc()
}

func (m *LedgerMetrics) AddReturns(n int) {
	if m == nil || m.returns == nil || n <= 0 {
		return
	}
	m.returns.Add(float64(n))
}

func (m *LedgerMetrics) IncImport(outcome string) {
	if m == nil || m.imports == nil {
		return
	}
	m.imports.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncReminder(outcome string) {
	if m == nil || m.reminders == nil {
		return
	}
	m.reminders.WithLabelValues(normalizeLabel(outcome)).Inc()
}
