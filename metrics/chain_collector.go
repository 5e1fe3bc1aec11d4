package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// ChainSource is read at scrape time.
type ChainSource interface {
	Height() uint64
	UtxoCount() int
	TotalWork() float64
}

// ChainCollector reports the chain tip without the node pushing updates.
type ChainCollector struct {
	src       ChainSource
	height    *prometheus.Desc
	utxoCount *prometheus.Desc
	work      *prometheus.Desc
}

func NewChainCollector(namespace string, src ChainSource) *ChainCollector {
	if namespace == "" {
		namespace = DEFAULT_NAMESPACE
	}
	return &ChainCollector{
		src: src,
		height: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "height"),
			"Height of the active tip",
			nil, nil,
		),
		utxoCount: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "utxo_count"),
			"Unspent outputs at the tip",
			nil, nil,
		),
		work: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "chain", "cumulative_work"),
			"Cumulative work of the active branch",
			nil, nil,
		),
	}
}

func (c *ChainCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.height
	ch <- c.utxoCount
	ch <- c.work
}

func (c *ChainCollector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.height, prometheus.GaugeValue, float64(c.src.Height()))
	ch <- prometheus.MustNewConstMetric(c.utxoCount, prometheus.GaugeValue, float64(c.src.UtxoCount()))
	ch <- prometheus.MustNewConstMetric(c.work, prometheus.GaugeValue, c.src.TotalWork())
}
