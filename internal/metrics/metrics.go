// Package metrics holds the Prometheus collectors for discovery activity.
//
// A nil *Metrics is valid and records nothing, so components can take an
// optional metrics handle without checking it.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "castscan"

// Packet classifications recorded by ObservePacket
const (
	PacketResponse  = "response"
	PacketNotify    = "notify"
	PacketByebye    = "byebye"
	PacketDiscarded = "discarded"
)

// Fetch results recorded by ObserveFetch
const (
	FetchOK     = "ok"
	FetchCached = "cached"
	FetchError  = "error"
)

// Metrics groups every collector exported by castscan.
type Metrics struct {
	registry prometheus.Gatherer

	packets       *prometheus.CounterVec
	searches      prometheus.Counter
	fetches       *prometheus.CounterVec
	services      *prometheus.GaugeVec
	devices       *prometheus.GaugeVec
	events        *prometheus.CounterVec
	eventsDropped prometheus.Counter
}

// New creates the collectors and registers them on a fresh registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		packets: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "packets_total",
			Help:      "SSDP datagrams received, by classification.",
		}, []string{"kind"}),
		searches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "searches_total",
			Help:      "M-SEARCH requests sent.",
		}),
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ssdp",
			Name:      "description_fetches_total",
			Help:      "Device description fetches, by result.",
		}, []string{"result"}),
		services: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "tracked_services",
			Help:      "Services currently tracked by a discovery provider.",
		}, []string{"provider"}),
		devices: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Devices known to the discovery manager, by set.",
		}, []string{"set"}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_total",
			Help:      "Device events emitted by the discovery manager.",
		}, []string{"kind"}),
		eventsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "device_events_dropped_total",
			Help:      "Device events dropped because a subscriber was full.",
		}),
	}
	reg.MustRegister(
		m.packets, m.searches, m.fetches, m.services,
		m.devices, m.events, m.eventsDropped,
		prometheus.NewGoCollector(),
	)
	return m
}

// Gatherer returns the registry backing the collectors.
func (m *Metrics) Gatherer() prometheus.Gatherer {
	if m == nil {
		return prometheus.NewRegistry()
	}
	return m.registry
}

func (m *Metrics) ObservePacket(kind string) {
	if m == nil {
		return
	}
	m.packets.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveSearch() {
	if m == nil {
		return
	}
	m.searches.Inc()
}

func (m *Metrics) ObserveFetch(result string) {
	if m == nil {
		return
	}
	m.fetches.WithLabelValues(result).Inc()
}

// SetTrackedServices records the size of a provider's found set.
func (m *Metrics) SetTrackedServices(provider string, n int) {
	if m == nil {
		return
	}
	m.services.WithLabelValues(provider).Set(float64(n))
}

// SetDevices records the size of the all and compatible device sets.
func (m *Metrics) SetDevices(all, compatible int) {
	if m == nil {
		return
	}
	m.devices.WithLabelValues("all").Set(float64(all))
	m.devices.WithLabelValues("compatible").Set(float64(compatible))
}

func (m *Metrics) ObserveEvent(kind string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(kind).Inc()
}

func (m *Metrics) ObserveDroppedEvent() {
	if m == nil {
		return
	}
	m.eventsDropped.Inc()
}
