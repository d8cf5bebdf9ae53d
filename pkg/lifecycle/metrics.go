package lifecycle

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsDispatchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "file_events_dispatched_total",
		Help: "Change events routed by the dispatcher, by handler",
	}, []string{"route"})

	resizePassesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "file_resize_passes_total",
		Help: "Resize passes by outcome (skipped, completed, failed)",
	}, []string{"outcome"})

	derivativesProducedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_derivatives_produced_total",
		Help: "Resized derivatives uploaded to object storage",
	})

	referencesMarkedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_references_marked_total",
		Help: "Assets flipped to standalone=false by the reference tracker",
	})

	cascadeDeletesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "file_cascade_deletes_total",
		Help: "Storage deletes issued by the deletion cascade, by outcome",
	}, []string{"outcome"})

	failuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "file_failures_total",
		Help: "Handler failures by component and error kind",
	}, []string{"component", "kind"})

	gcRunsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_gc_runs_total",
		Help: "Garbage collector sweeps started",
	})

	gcDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "file_gc_deleted_total",
		Help: "Standalone assets deleted by the garbage collector",
	})

	gcDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "file_gc_duration_seconds",
		Help:    "Duration of garbage collector sweeps in seconds",
		Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 10, 30, 60, 300},
	})
)

func recordFailure(component string, err error) {
	failuresTotal.WithLabelValues(component, string(KindOf(err))).Inc()
}
