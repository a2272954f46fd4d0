package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds the client core collectors.
var Registry = prometheus.NewRegistry()

var (
	CartRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderflow",
			Subsystem: "cart",
			Name:      "rejections_total",
			Help:      "Cart mutations rejected, by reason.",
		},
		[]string{"op", "reason"},
	)

	CartMutations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderflow",
			Subsystem: "cart",
			Name:      "mutations_total",
			Help:      "Cart mutations applied.",
		},
		[]string{"op"},
	)

	TrackerTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderflow",
			Subsystem: "tracker",
			Name:      "transitions_total",
			Help:      "Order state transitions applied.",
		},
		[]string{"from", "to"},
	)

	TrackerIgnoredEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderflow",
			Subsystem: "tracker",
			Name:      "ignored_events_total",
			Help:      "Status events dropped as duplicate, regressing or foreign.",
		},
		[]string{"cause"},
	)

	SideEffects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "orderflow",
			Subsystem: "tracker",
			Name:      "side_effects_total",
			Help:      "Delivered side effect calls, by effect and outcome.",
		},
		[]string{"effect", "outcome"},
	)

	SideEffectDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "orderflow",
			Subsystem: "tracker",
			Name:      "side_effect_duration_seconds",
			Help:      "Duration of delivered side effect calls.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"effect"},
	)
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		CartRejections,
		CartMutations,
		TrackerTransitions,
		TrackerIgnoredEvents,
		SideEffects,
		SideEffectDuration,
	)
}

func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}
