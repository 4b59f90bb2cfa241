package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	reportsAccepted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_reports_accepted_total",
		Help: "The total number of accepted position reports",
	})

	reportsRejected = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_reports_rejected_total",
		Help: "The total number of rejected position reports",
	})

	activeConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "tracking_active_connections",
		Help: "The number of currently open tracking connections",
	})

	broadcastDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_broadcast_dropped_total",
		Help: "Broadcast messages dropped from full subscriber queues",
	})

	eventDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "tracking_events_dropped_total",
		Help: "Tracking events dropped before reaching the event sinks",
	})

	reportDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "tracking_report_duration_seconds",
		Help:    "Time spent on the position report hot path",
		Buckets: prometheus.ExponentialBuckets(0.0001, 2, 14),
	})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "tracking_http_request_duration_seconds",
		Help:    "Time spent serving HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "status"})
)

// Metrics feeds the gateway's hot-path measurements into prometheus.
type Metrics struct{}

func (Metrics) ReportAccepted()   { reportsAccepted.Inc() }
func (Metrics) ReportRejected()   { reportsRejected.Inc() }
func (Metrics) SessionOpened()    { activeConnections.Inc() }
func (Metrics) SessionClosed()    { activeConnections.Dec() }
func (Metrics) BroadcastDropped() { broadcastDrops.Inc() }
func (Metrics) EventDropped()     { eventDrops.Inc() }

func (Metrics) ObserveReport(d time.Duration) {
	reportDuration.Observe(d.Seconds())
}

func metricsMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		}
		requestDuration.WithLabelValues(c.Method(), statusClass(status)).Observe(time.Since(start).Seconds())
		return err
	}
}

func statusClass(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
