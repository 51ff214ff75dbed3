// Package metrics exposes ingestion and linking collectors for Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"BucketCatalog/internal/domain"
	"BucketCatalog/internal/ports"
)

const namespace = "bucketcatalog"

// Collectors implements ports.Metrics.
type Collectors struct {
	ingested   prometheus.Counter
	batches    prometheus.Counter
	runs       *prometheus.CounterVec
	inProgress prometheus.Gauge
	linked     prometheus.Gauge
	duration   *prometheus.HistogramVec
}

var _ ports.Metrics = (*Collectors)(nil)

// New builds the collectors and registers them on reg.
func New(reg prometheus.Registerer) *Collectors {
	c := &Collectors{
		ingested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingested_objects_total",
			Help:      "Objects written into run stores.",
		}),
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ingest_batches_total",
			Help:      "Upsert batches written into run stores.",
		}),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Finished fetch runs by terminal status.",
		}, []string{"status"}),
		inProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "run_in_progress",
			Help:      "1 while a fetch run is ingesting.",
		}),
		linked: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "linked_objects",
			Help:      "Objects linked by the latest link pass.",
		}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of ingestion, linking and query operations.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 10),
		}, []string{"operation"}),
	}

	if reg != nil {
		reg.MustRegister(c.ingested, c.batches, c.runs, c.inProgress, c.linked, c.duration)
	}
	return c
}

// ObjectsIngested records one written batch of n objects.
func (c *Collectors) ObjectsIngested(n int) {
	c.ingested.Add(float64(n))
	c.batches.Inc()
}

// RunStarted marks a run as in progress.
func (c *Collectors) RunStarted() {
	c.inProgress.Set(1)
}

// RunFinished records the terminal status of a run.
func (c *Collectors) RunFinished(status domain.RunStatus) {
	c.inProgress.Set(0)
	c.runs.WithLabelValues(string(status)).Inc()
}

// LinkedObjects records the linked count of the latest link pass.
func (c *Collectors) LinkedObjects(n int64) {
	c.linked.Set(float64(n))
}

// ObserveDuration records how long an operation took.
func (c *Collectors) ObserveDuration(operation string, d time.Duration) {
	c.duration.WithLabelValues(operation).Observe(d.Seconds())
}

// Nop discards every observation.
type Nop struct{}

var _ ports.Metrics = Nop{}

func (Nop) ObjectsIngested(int)                   {}
func (Nop) RunStarted()                           {}
func (Nop) RunFinished(domain.RunStatus)          {}
func (Nop) LinkedObjects(int64)                   {}
func (Nop) ObserveDuration(string, time.Duration) {}
