package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "route", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docflow_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})

	statusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_status_transitions_total",
		Help: "Committed document version status transitions",
	}, []string{"from", "to", "event"})

	casConflicts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_cas_conflicts_total",
		Help: "Optimistic lock conflicts observed by the workflow engine",
	}, []string{"operation"})

	workflowOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_workflow_operations_total",
		Help: "Workflow operations by name and result",
	}, []string{"operation", "result"})

	workflowDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "docflow_workflow_operation_duration_seconds",
		Help:    "Duration of workflow operations",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})

	eventsEmitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "docflow_events_emitted_total",
		Help: "Workflow events handed to the notification queue",
	}, []string{"type", "result"})

	notificationsDelivered = promauto.NewCounter(prometheus.CounterOpts{
		Name: "docflow_notifications_delivered_total",
		Help: "Notifications written by the worker",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, route, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, route, status).Inc()
	httpRequestDuration.WithLabelValues(method, route, status).Observe(duration.Seconds())
}

// ObserveTransition counts a committed status change.
func ObserveTransition(from, to, event string) {
	statusTransitions.WithLabelValues(from, to, event).Inc()
}

// ObserveConflict counts a lost compare-and-swap.
func ObserveConflict(operation string) {
	casConflicts.WithLabelValues(operation).Inc()
}

// ObserveOperation records the outcome and latency of a workflow operation.
func ObserveOperation(operation string, err error, duration time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	workflowOperations.WithLabelValues(operation, result).Inc()
	workflowDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func ObserveEmit(eventType string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	eventsEmitted.WithLabelValues(eventType, result).Inc()
}

func ObserveNotificationDelivered() {
	notificationsDelivered.Inc()
}
