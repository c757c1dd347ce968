package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveCallback(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	r.ObserveCallback(3, 2, 1)
	r.ObserveCallback(1, 1, 0)

	if got := testutil.ToFloat64(r.chunksIngested); got != 4 {
		t.Errorf("chunks_ingested_total = %f, want 4", got)
	}
	if got := testutil.ToFloat64(r.recordsUpserted); got != 3 {
		t.Errorf("records_upserted_total = %f, want 3", got)
	}
	if got := testutil.ToFloat64(r.recordsEvicted); got != 1 {
		t.Errorf("records_evicted_total = %f, want 1", got)
	}
	if got := testutil.ToFloat64(r.callbacks.WithLabelValues("ok")); got != 2 {
		t.Errorf("callbacks_total{status=ok} = %f, want 2", got)
	}
}

func TestObserveFailureAndDLQ(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, err := NewRegistry(reg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}

	r.ObserveFailure("signature")
	r.ObserveFailure("signature")
	r.ObserveDLQWrite()

	if got := testutil.ToFloat64(r.callbacks.WithLabelValues("signature")); got != 2 {
		t.Errorf("callbacks_total{status=signature} = %f, want 2", got)
	}
	if got := testutil.ToFloat64(r.dlqWrites); got != 1 {
		t.Errorf("dlq_writes_total = %f, want 1", got)
	}
}

func TestSetHotIndexSize(t *testing.T) {
	reg := prometheus.NewRegistry()
	r, _ := NewRegistry(reg)
	r.SetHotIndexSize(42)
	if got := testutil.ToFloat64(r.hotIndexSize); got != 42 {
		t.Errorf("hot_index_size = %f, want 42", got)
	}
}

func TestNilRegistrySafe(t *testing.T) {
	var r *Registry
	r.ObserveCallback(1, 1, 1)
	r.ObserveFailure("x")
	r.ObserveDLQWrite()
	r.SetHotIndexSize(1)
}

func TestReRegistrationTolerated(t *testing.T) {
	reg := prometheus.NewRegistry()
	if _, err := NewRegistry(reg); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := NewRegistry(reg); err != nil {
		t.Fatalf("second: %v", err)
	}
}
