package counters

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusCollectorDescribe(t *testing.T) {
	var store Store
	c := NewPrometheusCollector("ash_host", &store)

	ch := make(chan *prometheus.Desc, numFields+1)
	c.Describe(ch)
	close(ch)

	n := 0
	for range ch {
		n++
	}
	if n != numFields {
		t.Errorf("Describe emitted %d descs, want %d", n, numFields)
	}
}

func TestPrometheusCollectorCollectReflectsCounters(t *testing.T) {
	var store Store
	store.Raw().TxBytes = 42
	store.Raw().RxCrcErrors = 7

	c := NewPrometheusCollector("ash_host", &store)
	ch := make(chan prometheus.Metric, numFields+1)
	c.Collect(ch)
	close(ch)

	var found42, found7 bool
	for m := range ch {
		var pb dto.Metric
		if err := m.Write(&pb); err != nil {
			t.Fatalf("Write: %v", err)
		}
		v := pb.GetCounter().GetValue()
		if v == 42 {
			found42 = true
		}
		if v == 7 {
			found7 = true
		}
	}
	if !found42 || !found7 {
		t.Errorf("expected to find values 42 and 7 among collected metrics, found42=%v found7=%v", found42, found7)
	}

	// Collect must not reset the underlying counters.
	if store.Raw().TxBytes != 42 {
		t.Errorf("TxBytes = %d after Collect, want unchanged 42", store.Raw().TxBytes)
	}
}
