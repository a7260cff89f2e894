// Package metrics exposes dialer and HTTP metrics in Prometheus format.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every collector of the service. It is separate from the
// global default registry so tests can read values without interference.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	callsDialed = factory.NewCounter(prometheus.CounterOpts{
		Name: "dialer_calls_dialed_total",
		Help: "Calls handed to the telephony gateway.",
	})
	callOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_call_outcomes_total",
		Help: "Terminal call results by status and outcome.",
	}, []string{"status", "outcome"})
	dispatchFaults = factory.NewCounter(prometheus.CounterOpts{
		Name: "dialer_dispatch_faults_total",
		Help: "Dispatch attempts rejected by the gateway.",
	})
	callsInFlight = factory.NewGauge(prometheus.GaugeOpts{
		Name: "dialer_calls_in_flight",
		Help: "Calls placed and awaiting an outcome on this instance.",
	})
	runningCampaigns = factory.NewGauge(prometheus.GaugeOpts{
		Name: "dialer_running_campaigns",
		Help: "Dispatcher loops alive on this instance.",
	})
	webhooks = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "dialer_webhooks_total",
		Help: "Provider and assistant callbacks by source and resolution.",
	}, []string{"source", "resolution"})

	httpRequests = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "HTTP requests by method, route and status.",
	}, []string{"method", "route", "status"})
	httpDuration = factory.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request latency in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

func CallDialed() { callsDialed.Inc() }
func DispatchFault() { dispatchFaults.Inc() }
func CallStarted() { callsInFlight.Inc() }
func CallFinished() { callsInFlight.Dec() }
func DispatcherStarted() { runningCampaigns.Inc() }
func DispatcherStopped() { runningCampaigns.Dec() }
func WebhookRejected(source string) { webhooks.WithLabelValues(source, "rejected").Inc() }

func CallOutcome(status, outcome string) {
	if outcome == "" {
		outcome = "none"
	}
	callOutcomes.WithLabelValues(status, outcome).Inc()
}

func WebhookReceived(source, resolution string) {
	webhooks.WithLabelValues(source, resolution).Inc()
}

// Handler serves the registry.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latency per matched route.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := strconv.Itoa(c.Writer.Status())
		httpRequests.WithLabelValues(c.Request.Method, route, status).Inc()
		httpDuration.WithLabelValues(c.Request.Method, route, status).Observe(time.Since(start).Seconds())
	}
}
