package counters

import "github.com/prometheus/client_golang/prometheus"

// names mirrors fields(): same order, lowercase snake_case for metric
// naming. Kept alongside fields() rather than derived via reflection,
// same tradeoff the struct itself makes.
var names = [numFields]string{
	"tx_bytes", "tx_blocks", "tx_data", "tx_all_frames", "tx_data_frames",
	"tx_ack_frames", "tx_nak_frames", "tx_re_data_frames", "tx_n0_frames",
	"tx_n1_frames", "tx_cancelled",
	"rx_bytes", "rx_blocks", "rx_data", "rx_all_frames", "rx_data_frames",
	"rx_ack_frames", "rx_nak_frames", "rx_re_data_frames", "rx_n0_frames",
	"rx_n1_frames", "rx_cancelled",
	"rx_crc_errors", "rx_comm_errors", "rx_too_short", "rx_too_long",
	"rx_bad_control", "rx_bad_length", "rx_bad_ack_number", "rx_no_buffer",
	"rx_duplicates", "rx_out_of_sequence", "rx_ack_timeouts",
}

// PrometheusCollector exposes a Store's counters as a read-only
// prometheus.Collector. Unlike Snapshot/Reset, Collect never mutates
// the underlying counters: it's a live mirror for scraping, distinct
// from the reset-on-read API the upper layer uses for its own
// diagnostics.
type PrometheusCollector struct {
	store *Store
	descs [numFields]*prometheus.Desc
}

// NewPrometheusCollector builds a collector over store. namespace is
// prefixed to every metric name (e.g. "ash_host").
func NewPrometheusCollector(namespace string, store *Store) *PrometheusCollector {
	c := &PrometheusCollector{store: store}
	for i, name := range names {
		c.descs[i] = prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "link", name),
			"ASH link counter "+name,
			nil, nil,
		)
	}
	return c
}

func (c *PrometheusCollector) Describe(descs chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		descs <- d
	}
}

func (c *PrometheusCollector) Collect(metrics chan<- prometheus.Metric) {
	snap := c.store.Snapshot()
	values := snap.fields()
	for i, d := range c.descs {
		metrics <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(*values[i]))
	}
}

var _ prometheus.Collector = (*PrometheusCollector)(nil)
