package profiles

import "github.com/prometheus/client_golang/prometheus"

var (
	mirrorPersistOK = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "climatelink_profile_mirror_ok",
			Help: "Remote blob mirror health per profile (1=ok, 0=error)",
		},
		[]string{"profile"},
	)
	mirrorRestores = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "climatelink_profile_mirror_restore_total",
			Help: "Profiles restored from the blob mirror",
		},
		[]string{"profile"},
	)
)

// MetricsCollectors returns collectors for the profile mirror.
func MetricsCollectors() []prometheus.Collector {
	return []prometheus.Collector{
		mirrorPersistOK,
		mirrorRestores,
	}
}
