// Package metrics holds the Prometheus collectors for the import pipeline.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the import pipeline counters. Register once per process.
type Metrics struct {
	SessionsCreated  *prometheus.CounterVec
	DuplicateUploads prometheus.Counter
	DryRunRows       *prometheus.CounterVec
	Executions       *prometheus.CounterVec
	ImportedRows     prometheus.Counter
}

// New creates and registers the collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		SessionsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "priceport_import_sessions_created_total",
			Help: "Import sessions created, by target kind and source.",
		}, []string{"kind", "source"}),
		DuplicateUploads: factory.NewCounter(prometheus.CounterOpts{
			Name: "priceport_import_duplicate_uploads_total",
			Help: "Uploads refused because a completed session already imported the same file.",
		}),
		DryRunRows: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "priceport_import_dry_run_rows_total",
			Help: "Rows classified during dry runs, by verdict.",
		}, []string{"verdict"}),
		Executions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "priceport_import_executions_total",
			Help: "Execution attempts, by outcome.",
		}, []string{"outcome"}),
		ImportedRows: factory.NewCounter(prometheus.CounterOpts{
			Name: "priceport_import_rows_written_total",
			Help: "Price rows written by completed executions.",
		}),
	}
}
