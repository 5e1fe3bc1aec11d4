// Package metrics exports chain and miner counters to Prometheus.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const DEFAULT_NAMESPACE = "powchain"

// Metrics are updated by the node. A nil *Metrics is valid and records nothing.
type Metrics struct {
	BlocksAccepted *prometheus.CounterVec
	BlocksRejected *prometheus.CounterVec
	Reorgs         prometheus.Counter
	ReorgDepth     prometheus.Histogram
	BlocksMined    prometheus.Counter
	StaleMined     prometheus.Counter
	TrxsAccepted   prometheus.Counter
	TrxsRejected   prometheus.Counter
	TrxPoolSize    prometheus.Gauge
}

func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = DEFAULT_NAMESPACE
	}
	return &Metrics{
		BlocksAccepted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "blocks_accepted_total",
			Help:      "Accepted blocks by outcome",
		}, []string{"outcome"}),
		BlocksRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "blocks_rejected_total",
			Help:      "Rejected blocks by reason",
		}, []string{"reason"}),
		Reorgs: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "reorgs_total",
			Help:      "Reorganizations of the active branch",
		}),
		ReorgDepth: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "chain",
			Name:      "reorg_depth",
			Help:      "Blocks disconnected per reorganization",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 8),
		}),
		BlocksMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "blocks_mined_total",
			Help:      "Locally mined blocks accepted by the chain",
		}),
		StaleMined: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "miner",
			Name:      "stale_total",
			Help:      "Mined or abandoned candidates whose parent was no longer the tip",
		}),
		TrxsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trxpool",
			Name:      "accepted_total",
			Help:      "Transactions admitted to the pool",
		}),
		TrxsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trxpool",
			Name:      "rejected_total",
			Help:      "Transactions refused by the pool",
		}),
		TrxPoolSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "trxpool",
			Name:      "size",
			Help:      "Transactions waiting in the pool",
		}),
	}
}

func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.BlocksAccepted,
		m.BlocksRejected,
		m.Reorgs,
		m.ReorgDepth,
		m.BlocksMined,
		m.StaleMined,
		m.TrxsAccepted,
		m.TrxsRejected,
		m.TrxPoolSize,
	}
}

func (m *Metrics) Register(reg prometheus.Registerer) error {
	for _, c := range m.Collectors() {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}

func (m *Metrics) BlockAccepted(outcome string, disconnected int) {
	if m == nil {
		return
	}
	m.BlocksAccepted.WithLabelValues(outcome).Inc()
	if disconnected > 0 {
		m.Reorgs.Inc()
		m.ReorgDepth.Observe(float64(disconnected))
	}
}

func (m *Metrics) BlockRejected(reason string) {
	if m == nil {
		return
	}
	m.BlocksRejected.WithLabelValues(reason).Inc()
}

func (m *Metrics) Mined() {
	if m == nil {
		return
	}
	m.BlocksMined.Inc()
}

func (m *Metrics) Stale() {
	if m == nil {
		return
	}
	m.StaleMined.Inc()
}

func (m *Metrics) TrxAdmitted(ok bool, poolSize int) {
	if m == nil {
		return
	}
	if ok {
		m.TrxsAccepted.Inc()
	} else {
		m.TrxsRejected.Inc()
	}
	m.TrxPoolSize.Set(float64(poolSize))
}

func (m *Metrics) PoolSize(n int) {
	if m == nil {
		return
	}
	m.TrxPoolSize.Set(float64(n))
}
