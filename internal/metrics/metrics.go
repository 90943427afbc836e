// Package metrics registers the Prometheus instruments shared by the import
// pipeline. HTTP-level metrics live with the router middleware.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsCreated counts import jobs accepted, by tipo
	JobsCreated = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_jobs_created_total",
			Help: "Import jobs accepted for processing",
		},
		[]string{"tipo"},
	)

	// JobsFinished counts jobs reaching a terminal state
	JobsFinished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_jobs_finished_total",
			Help: "Import jobs that reached a terminal state",
		},
		[]string{"tipo", "estado"},
	)

	// JobsActivos tracks jobs currently being processed
	JobsActivos = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "import_jobs_activos",
			Help: "Import jobs currently in the procesando state",
		},
	)

	// Rows counts processed rows by outcome (exitoso, error)
	Rows = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "import_rows_total",
			Help: "Rows processed across all import jobs, by outcome",
		},
		[]string{"resultado"},
	)
)
