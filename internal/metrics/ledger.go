package metrics

import (
	"math/big"
	"time"

	"github.com/fundraising-token/backend/internal/ledger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
)

// LedgerMetrics records ledger operation outcomes and reconciliation state.
// It implements ledger.Recorder.
type LedgerMetrics struct {
	operations     *prometheus.CounterVec
	duration       *prometheus.HistogramVec
	goal           prometheus.Gauge
	totalCollected prometheus.Gauge
	escrowBalance  prometheus.Gauge
	violations     prometheus.Gauge
	reconciles     *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger metrics on the provided registerer.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	m := &LedgerMetrics{
		operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Ledger operations by outcome.",
		}, []string{"op", "result"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger operations in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		goal: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_goal_ether",
			Help: "Fundraising goal in ether.",
		}),
		totalCollected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_total_collected_ether",
			Help: "Total collected (token supply) in ether.",
		}),
		escrowBalance: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_escrow_balance_ether",
			Help: "Funds held in escrow in ether.",
		}),
		violations: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "ledger_reconcile_violations",
			Help: "Invariant violations found by the last reconciliation.",
		}),
		reconciles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_reconcile_runs_total",
			Help: "Reconciliation runs by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.operations, m.duration, m.goal, m.totalCollected, m.escrowBalance, m.violations, m.reconciles)
	return m
}

// ObserveOperation counts op under "ok" or the error kind of err.
func (m *LedgerMetrics) ObserveOperation(op string, err error, d time.Duration) {
	if m == nil || m.operations == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(ledger.Kind(err))
	}
	m.operations.WithLabelValues(normalizeLabel(op), result).Inc()
	m.duration.WithLabelValues(normalizeLabel(op)).Observe(d.Seconds())
}

func (m *LedgerMetrics) ObserveReconciliation(r *ledger.Reconciliation, err error) {
	if m == nil || m.reconciles == nil {
		return
	}
	switch {
	case err != nil:
		m.reconciles.WithLabelValues("error").Inc()
		return
	case r.OK():
		m.reconciles.WithLabelValues("ok").Inc()
	default:
		m.reconciles.WithLabelValues("violation").Inc()
	}
	m.violations.Set(float64(len(r.Violations)))
	m.goal.Set(etherFloat(r.Goal))
	m.totalCollected.Set(etherFloat(r.TotalCollected))
	m.escrowBalance.Set(etherFloat(r.EscrowBalance))
}

func etherFloat(wei *big.Int) float64 {
	if wei == nil {
		return 0
	}
	return decimal.NewFromBigInt(wei, -ledger.Decimals).InexactFloat64()
}

func normalizeLabel(op string) string {
	if op == "" {
		return "unknown"
	}
	return op
}
