package service

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ledgerOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "governance",
		Subsystem: "ledger",
		Name:      "operations_total",
		Help:      "State-changing ledger operations by outcome.",
	}, []string{"op", "code"})

	ledgerOpDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "governance",
		Subsystem: "ledger",
		Name:      "operation_duration_seconds",
		Help:      "Latency of state-changing ledger operations including lock wait.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"op"})

	grantRelayed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "governance",
		Subsystem: "grants",
		Name:      "relayed_total",
		Help:      "Role grant intents handed to the registry transport.",
	}, []string{"status"})
)

func observeOp(op string, err error, elapsed time.Duration) {
	code := "ok"
	if err != nil {
		code = CodeOf(err).String()
	}
	ledgerOps.WithLabelValues(op, code).Inc()
	ledgerOpDuration.WithLabelValues(op).Observe(elapsed.Seconds())
}
