package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	SweepRuns = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "class_sweep_runs_total",
			Help: "Number of lifecycle sweeps executed",
		},
	)

	SweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "class_sweep_failures_total",
			Help: "Number of lifecycle sweeps that returned an error",
		},
	)

	SessionTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "class_session_transitions_total",
			Help: "Session status transitions by target status and trigger",
		},
		[]string{"status", "trigger"},
	)

	AbsencesBackfilled = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "attendance_absences_backfilled_total",
			Help: "Absent attendance records created for students who never joined",
		},
	)

	AttendanceEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attendance_events_total",
			Help: "Join, reconnect and leave events by outcome status",
		},
		[]string{"event", "status"},
	)
)

// Register adds every collector to reg.
func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		RequestCounter,
		RequestDuration,
		SweepRuns,
		SweepFailures,
		SessionTransitions,
		AbsencesBackfilled,
		AttendanceEvents,
	)
}

// Middleware records request counts and latency per route template.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		endpoint := c.FullPath()
		if endpoint == "" {
			endpoint = "unmatched"
		}
		RequestCounter.WithLabelValues(c.Request.Method, endpoint, strconv.Itoa(c.Writer.Status())).Inc()
		RequestDuration.WithLabelValues(c.Request.Method, endpoint).Observe(time.Since(start).Seconds())
	}
}
