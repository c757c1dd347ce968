// Package metrics exposes Prometheus counters for the ingestion core.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "echomem"

// Registry aggregates the core ingestion counters.
type Registry struct {
	chunksIngested  prometheus.Counter
	recordsUpserted prometheus.Counter
	recordsEvicted  prometheus.Counter
	callbacks       *prometheus.CounterVec
	dlqWrites       prometheus.Counter
	hotIndexSize    prometheus.Gauge
}

// NewRegistry registers the core metrics on the given registerer. A nil
// registerer uses the Prometheus default. Re-registration of identical
// collectors is tolerated.
func NewRegistry(reg prometheus.Registerer) (*Registry, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &Registry{
		chunksIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunks_ingested_total",
			Help:      "Count of text chunks produced by ingestion.",
		}),
		recordsUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_upserted_total",
			Help:      "Count of newly-written durable memory records.",
		}),
		recordsEvicted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "records_evicted_total",
			Help:      "Count of records evicted from the hot index.",
		}),
		callbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "callbacks_total",
			Help:      "Count of processed ingest callbacks by outcome.",
		}, []string{"status"}),
		dlqWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "dlq_writes_total",
			Help:      "Count of payloads persisted to the dead-letter queue.",
		}),
		hotIndexSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hot_index_size",
			Help:      "Live record count in the hot index.",
		}),
	}

	collectors := []prometheus.Collector{
		r.chunksIngested, r.recordsUpserted, r.recordsEvicted,
		r.callbacks, r.dlqWrites, r.hotIndexSize,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); ok {
				continue
			}
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return r, nil
}

// ObserveCallback records the counters for one successful ingest call.
func (r *Registry) ObserveCallback(chunks, upserted, evicted int) {
	if r == nil {
		return
	}
	r.chunksIngested.Add(float64(chunks))
	r.recordsUpserted.Add(float64(upserted))
	r.recordsEvicted.Add(float64(evicted))
	r.callbacks.WithLabelValues("ok").Inc()
}

// ObserveFailure records a failed ingest call by failure class.
func (r *Registry) ObserveFailure(status string) {
	if r == nil {
		return
	}
	r.callbacks.WithLabelValues(status).Inc()
}

// ObserveDLQWrite records one dead-letter write.
func (r *Registry) ObserveDLQWrite() {
	if r == nil {
		return
	}
	r.dlqWrites.Inc()
}

// SetHotIndexSize records the current hot index cardinality.
func (r *Registry) SetHotIndexSize(size int) {
	if r == nil {
		return
	}
	r.hotIndexSize.Set(float64(size))
}
