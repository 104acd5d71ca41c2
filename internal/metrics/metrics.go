// Package metrics exposes simulation counters on the default prometheus
// registry; cmd/sim serves them next to the observer endpoints.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// TicksTotal counts world ticks processed.
	TicksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "reliefnet_ticks_total",
			Help: "World ticks processed",
		},
	)

	// HazardsTotal counts injected hazards by kind (road_closed, road_delay,
	// attack, demand_spike).
	HazardsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefnet_hazards_total",
			Help: "Hazard events injected by the world",
		},
		[]string{"kind"},
	)

	// RequestsTotal counts resource requests received per center.
	RequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefnet_requests_total",
			Help: "Resource requests received by aid centers",
		},
		[]string{"center_id"},
	)

	// DispatchesTotal counts shipments dispatched per center.
	DispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefnet_dispatches_total",
			Help: "Shipments dispatched by aid centers",
		},
		[]string{"center_id"},
	)

	// DeliveriesTotal counts deliveries completed per group.
	DeliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefnet_deliveries_total",
			Help: "Deliveries received by aid groups",
		},
		[]string{"group_id"},
	)

	// UnitsDeliveredTotal counts delivered units by resource kind.
	UnitsDeliveredTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reliefnet_units_delivered_total",
			Help: "Resource units delivered to groups",
		},
		[]string{"kind"},
	)

	// GroupStock tracks current stock per group and resource kind.
	GroupStock = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "reliefnet_group_stock",
			Help: "Current stock held by a group",
		},
		[]string{"group_id", "kind"},
	)
)

func init() {
	prometheus.MustRegister(TicksTotal)
	prometheus.MustRegister(HazardsTotal)
	prometheus.MustRegister(RequestsTotal)
	prometheus.MustRegister(DispatchesTotal)
	prometheus.MustRegister(DeliveriesTotal)
	prometheus.MustRegister(UnitsDeliveredTotal)
	prometheus.MustRegister(GroupStock)
}
