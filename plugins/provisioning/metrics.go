package provisioning

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/climatelink/internal/profiles"
)

var renderTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "climatelink_render_total",
		Help: "Header renders by result (ok, refused, error)",
	},
	[]string{"profile", "result"},
)

// MetricsCollector reports profile readiness, rescanning the store on every
// scrape.
type MetricsCollector struct {
	store profiles.Store

	ready       *prometheus.GaugeVec
	problems    *prometheus.GaugeVec
	broken      *prometheus.GaugeVec
	lastSuccess prometheus.Gauge
	success     prometheus.Gauge
}

func NewMetricsCollector(store profiles.Store) *MetricsCollector {
	return &MetricsCollector{
		store: store,
		ready: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_profile_ready",
			Help: "Profile deployment readiness (1=ready, 0=not ready)",
		}, []string{"profile"}),
		problems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_profile_problems",
			Help: "Readiness problems per profile and problem code",
		}, []string{"profile", "code"}),
		broken: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_profile_decode_error",
			Help: "Profile document could not be decoded (1=broken)",
		}, []string{"profile"}),
		lastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climatelink_profile_last_scan_timestamp_seconds",
			Help: "Last successful profile scan (epoch seconds)",
		}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climatelink_profile_scan_success",
			Help: "Last profile scan success (1=ok, 0=error)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.ready.Describe(ch)
	c.problems.Describe(ch)
	c.broken.Describe(ch)
	c.lastSuccess.Describe(ch)
	c.success.Describe(ch)
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	scanned, err := profiles.Scan(ctx, c.store)
	if err != nil {
		c.success.Set(0)
		c.collectAll(ch)
		return
	}

	c.ready.Reset()
	c.problems.Reset()
	c.broken.Reset()

	for _, sc := range scanned {
		if sc.Err != nil {
			c.broken.WithLabelValues(sc.Name).Set(1)
			c.ready.WithLabelValues(sc.Name).Set(0)
			continue
		}
		report := sc.Entry.Profile.Readiness()
		c.broken.WithLabelValues(sc.Name).Set(0)
		c.ready.WithLabelValues(sc.Name).Set(boolToFloat(report.Ready()))
		for code, n := range report.Codes() {
			c.problems.WithLabelValues(sc.Name, code).Set(float64(n))
		}
	}

	c.success.Set(1)
	c.lastSuccess.Set(float64(time.Now().Unix()))
	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.ready.Collect(ch)
	c.problems.Collect(ch)
	c.broken.Collect(ch)
	c.lastSuccess.Collect(ch)
	c.success.Collect(ch)
}

func boolToFloat(value bool) float64 {
	if value {
		return 1
	}
	return 0
}
