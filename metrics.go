package ingestor

import (
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/xerrors"
)

// Metrics holds the Prometheus counters of ingest runs.
type Metrics struct {
	files          *prometheus.CounterVec
	recordsWritten *prometheus.CounterVec
	recordsDropped *prometheus.CounterVec
}

// NewMetrics builds and registers the counters.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		files: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "files_total",
			Help:      "Files handled, by job and status (processed, failed, skipped).",
		}, []string{"job", "status"}),
		recordsWritten: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "records_written_total",
			Help:      "Target records committed, by job.",
		}, []string{"job"}),
		recordsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor",
			Name:      "records_dropped_total",
			Help:      "Raw records that produced no target record, by job.",
		}, []string{"job"}),
	}

	for _, c := range []prometheus.Collector{m.files, m.recordsWritten, m.recordsDropped} {
		if err := reg.Register(c); err != nil {
			return nil, xerrors.Errorf("failed to register metrics: %w", err)
		}
	}

	return m, nil
}

func (m *Metrics) observe(job string, r FileResult) {
	if m == nil {
		return
	}

	status := "processed"
	switch {
	case r.Skipped:
		status = "skipped"
	case r.Err != nil:
		status = "failed"
	}

	m.files.WithLabelValues(job, status).Inc()
	m.recordsWritten.WithLabelValues(job).Add(float64(r.RecordsWritten))
	m.recordsDropped.WithLabelValues(job).Add(float64(r.RecordsDropped))
}
