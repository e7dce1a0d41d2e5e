// Package metrics holds the process-local Prometheus registry and the
// counters the ingestion pipeline reports into.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "citylore"

// Registry is the registry all citylore metrics register against.
var Registry = prometheus.NewRegistry()

// AppInfo exposes version information as labels (value is always 1).
var AppInfo = promauto.With(Registry).NewGaugeVec(
	prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "app_info",
		Help:      "Application version information (always 1, version in labels)",
	},
	[]string{"version", "commit", "build_date"},
)

// Init registers runtime collectors and stamps version info.
func Init(version, commit, buildDate string) {
	Registry.MustRegister(collectors.NewGoCollector())
	Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	AppInfo.WithLabelValues(version, commit, buildDate).Set(1)
}
