package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObservePacket(PacketNotify)
	m.ObserveSearch()
	m.ObserveFetch(FetchOK)
	m.SetTrackedServices("ssdp", 3)
	m.SetDevices(1, 1)
	m.ObserveEvent("device_added")
	m.ObserveDroppedEvent()

	if m.Gatherer() == nil {
		t.Error("Gatherer() on nil Metrics should return an empty registry")
	}
}

func TestCollectors(t *testing.T) {
	m := New()

	m.ObservePacket(PacketNotify)
	m.ObservePacket(PacketNotify)
	m.ObservePacket(PacketDiscarded)
	m.ObserveSearch()
	m.ObserveFetch(FetchError)
	m.SetTrackedServices("ssdp", 4)
	m.SetDevices(5, 2)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{"notify packets", testutil.ToFloat64(m.packets.WithLabelValues(PacketNotify)), 2},
		{"discarded packets", testutil.ToFloat64(m.packets.WithLabelValues(PacketDiscarded)), 1},
		{"searches", testutil.ToFloat64(m.searches), 1},
		{"fetch errors", testutil.ToFloat64(m.fetches.WithLabelValues(FetchError)), 1},
		{"tracked services", testutil.ToFloat64(m.services.WithLabelValues("ssdp")), 4},
		{"all devices", testutil.ToFloat64(m.devices.WithLabelValues("all")), 5},
		{"compatible devices", testutil.ToFloat64(m.devices.WithLabelValues("compatible")), 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}

	families, err := m.Gatherer().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("Gather() returned no metric families")
	}
}
