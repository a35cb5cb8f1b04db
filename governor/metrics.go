package governor

import "github.com/prometheus/client_golang/prometheus"

var (
	callsDesc = prometheus.NewDesc(
		"hub_governor_calls_total",
		"Total number of governed call attempts started",
		nil, nil,
	)
	failedDesc = prometheus.NewDesc(
		"hub_governor_failed_total",
		"Total number of governed call attempts that failed",
		nil, nil,
	)
	retriedDesc = prometheus.NewDesc(
		"hub_governor_retried_total",
		"Total number of retries scheduled after transient failures",
		nil, nil,
	)
	activeDesc = prometheus.NewDesc(
		"hub_governor_active",
		"Number of units of work currently executing",
		nil, nil,
	)
	pendingDesc = prometheus.NewDesc(
		"hub_governor_pending",
		"Number of distinct dedup keys currently in flight",
		nil, nil,
	)
	detachedDesc = prometheus.NewDesc(
		"hub_governor_detached",
		"Number of cancelled executions still waiting for their work to return",
		nil, nil,
	)
)

var _ prometheus.Collector = (*Governor)(nil)

// Describe implements prometheus.Collector.
func (g *Governor) Describe(ch chan<- *prometheus.Desc) {
	ch <- callsDesc
	ch <- failedDesc
	ch <- retriedDesc
	ch <- activeDesc
	ch <- pendingDesc
	ch <- detachedDesc
}

// Collect implements prometheus.Collector.
func (g *Governor) Collect(ch chan<- prometheus.Metric) {
	s := g.Stats()
	ch <- prometheus.MustNewConstMetric(callsDesc, prometheus.CounterValue, float64(s.TotalCalls))
	ch <- prometheus.MustNewConstMetric(failedDesc, prometheus.CounterValue, float64(s.FailedCalls))
	ch <- prometheus.MustNewConstMetric(retriedDesc, prometheus.CounterValue, float64(s.RetriedCalls))
	ch <- prometheus.MustNewConstMetric(activeDesc, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(pendingDesc, prometheus.GaugeValue, float64(s.Pending))
	ch <- prometheus.MustNewConstMetric(detachedDesc, prometheus.GaugeValue, float64(s.Detached))
}
