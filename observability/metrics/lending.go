package metrics

import (
	"math/big"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type LendingMetrics struct {
	operations  *prometheus.CounterVec
	latency     *prometheus.HistogramVec
	liquidity   prometheus.Gauge
	borrowed    prometheus.Gauge
	utilization prometheus.Gauge
	interest    prometheus.Gauge
	loanStatus  *prometheus.CounterVec
}

var (
	lendingOnce     sync.Once
	lendingRegistry *LendingMetrics
)

func Lending() *LendingMetrics {
	lendingOnce.Do(func() {
		lendingRegistry = &LendingMetrics{
			operations: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_operations_total",
				Help: "Ledger operations by name and outcome kind.",
			}, []string{"operation", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "lending_operation_duration_seconds",
				Help:    "Ledger operation latency including commit.",
				Buckets: prometheus.DefBuckets,
			}, []string{"operation"}),
			liquidity: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_liquidity",
				Help: "Total liquidity deposited in the pool.",
			}),
			borrowed: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_borrowed",
				Help: "Principal currently lent out.",
			}),
			utilization: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_utilization_bps",
				Help: "Borrowed over liquidity in basis points.",
			}),
			interest: prometheus.NewGauge(prometheus.GaugeOpts{
				Name: "lending_pool_interest_earned",
				Help: "Cumulative interest booked by the pool.",
			}),
			loanStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "lending_loan_transitions_total",
				Help: "Loan lifecycle transitions by target status.",
			}, []string{"status"}),
		}
		prometheus.MustRegister(
			lendingRegistry.operations,
			lendingRegistry.latency,
			lendingRegistry.liquidity,
			lendingRegistry.borrowed,
			lendingRegistry.utilization,
			lendingRegistry.interest,
			lendingRegistry.loanStatus,
		)
	})
	return lendingRegistry
}

// ObserveOperation records the outcome of one ledger call. Outcome is "ok" or
// the error kind.
func (m *LendingMetrics) ObserveOperation(operation, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	if operation == "" {
		operation = "unknown"
	}
	if outcome == "" {
		outcome = "ok"
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.latency.WithLabelValues(operation).Observe(duration.Seconds())
}

// SetPool publishes the pool totals. Values beyond float64 precision are
// approximated.
func (m *LendingMetrics) SetPool(liquidity, borrowed, interest *big.Int, utilizationBps uint32) {
	if m == nil {
		return
	}
	m.liquidity.Set(toFloat(liquidity))
	m.borrowed.Set(toFloat(borrowed))
	m.interest.Set(toFloat(interest))
	m.utilization.Set(float64(utilizationBps))
}

func (m *LendingMetrics) ObserveLoanTransition(status string) {
	if m == nil {
		return
	}
	if status == "" {
		status = "unknown"
	}
	m.loanStatus.WithLabelValues(status).Inc()
}

func toFloat(v *big.Int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f
}
