package ircodes

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/joshp123/climatelink/internal/firmware"
	"github.com/joshp123/climatelink/internal/profiles"
)

// MetricsCollector exports code table shape per profile.
type MetricsCollector struct {
	store profiles.Store

	sequenceLength *prometheus.GaugeVec
	declaredLength *prometheus.GaugeVec
	carrier        *prometheus.GaugeVec
	success        prometheus.Gauge
}

func NewMetricsCollector(store profiles.Store) *MetricsCollector {
	return &MetricsCollector{
		store: store,
		sequenceLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_ir_sequence_length",
			Help: "Captured timings per IR sequence",
		}, []string{"profile", "unit", "command"}),
		declaredLength: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_ir_declared_length",
			Help: "Declared IR_<UNIT>_LEN per unit (0=undeclared)",
		}, []string{"profile", "unit"}),
		carrier: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "climatelink_ir_carrier_khz",
			Help: "IR carrier frequency per profile",
		}, []string{"profile"}),
		success: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "climatelink_ir_scan_success",
			Help: "Last code table scan success (1=ok, 0=error)",
		}),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	c.sequenceLength.Describe(ch)
	c.declaredLength.Describe(ch)
	c.carrier.Describe(ch)
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

	c.sequenceLength.Reset()
	c.declaredLength.Reset()
	c.carrier.Reset()

	for _, sc := range scanned {
		if sc.Err != nil {
			continue
		}
		p := sc.Entry.Profile
		c.carrier.WithLabelValues(p.Name).Set(float64(p.CarrierKHz))
		for _, t := range p.Tables {
			c.declaredLength.WithLabelValues(p.Name, t.Unit).Set(float64(t.Length))
			for _, cmd := range firmware.Commands() {
				c.sequenceLength.WithLabelValues(p.Name, t.Unit, commandKey(cmd)).Set(float64(len(t.Sequence(cmd))))
			}
		}
	}

	c.success.Set(1)
	c.collectAll(ch)
}

func (c *MetricsCollector) collectAll(ch chan<- prometheus.Metric) {
	c.sequenceLength.Collect(ch)
	c.declaredLength.Collect(ch)
	c.carrier.Collect(ch)
	c.success.Collect(ch)
}
