package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

var (
	// Registry is the dedicated Prometheus registry for WasteLink processes
	Registry = prometheus.NewRegistry()
	// HTTPRequests counts fixture server requests by method, path, and status
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "http_requests_total", Help: "Total HTTP requests."},
		[]string{"method", "path", "status"},
	)
	// HTTPDuration records request durations in seconds
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "http_request_duration_seconds", Help: "HTTP request duration in seconds.", Buckets: prometheus.DefBuckets},
		[]string{"method", "path", "status"},
	)

	// WalkerCalls counts operation client calls by kind (spawn, run, create_node), operation and outcome
	WalkerCalls = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "walker_calls_total", Help: "Walker client calls by kind, operation and outcome."},
		[]string{"kind", "op", "outcome"},
	)
	// WalkerDuration tracks walker call latency in seconds
	WalkerDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "walker_call_duration_seconds", Help: "Walker call duration in seconds.", Buckets: []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10}},
		[]string{"kind", "op"},
	)
	// WalkerInFlight is the number of walker calls currently outstanding
	WalkerInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "walker_calls_in_flight", Help: "Walker calls currently in flight."},
	)

	// WebhookDeliveries counts notification webhook delivery outcomes by level and status
	WebhookDeliveries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "webhook_deliveries_total", Help: "Notification webhook deliveries by level and status."},
		[]string{"level", "status"},
	)
)

// RegisterDefault registers collectors to Registry once.
func RegisterDefault() {
	regOnce.Do(func(){
		Registry.MustRegister(HTTPRequests)
		Registry.MustRegister(HTTPDuration)
		Registry.MustRegister(WalkerCalls)
		Registry.MustRegister(WalkerDuration)
		Registry.MustRegister(WalkerInFlight)
		Registry.MustRegister(WebhookDeliveries)
		// Go/process collectors on our registry
		Registry.MustRegister(collectors.NewGoCollector())
		Registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

var regOnce sync.Once
