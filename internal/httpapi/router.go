// Package httpapi exposes the class lifecycle and attendance services over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"liveclass/internal/attendance"
	"liveclass/internal/auth"
	"liveclass/internal/classes"
	"liveclass/internal/events"
	"liveclass/internal/httpmiddleware"
	"liveclass/internal/metrics"
	"liveclass/internal/roster"
)

// HealthCheck reports whether a dependency is reachable.
type HealthCheck func(ctx context.Context) bool

// Deps holds everything the router needs.
type Deps struct {
	Classes    *classes.Service
	Attendance *attendance.Service
	Students   roster.Registry
	Bus        events.Bus
	Log        *zap.Logger

	JWTSigningKey string
	JWTIssuer     string
	// Limiter is optional; nil disables rate limiting.
	Limiter  *httpmiddleware.RateLimiter
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthCheck
}

// Handler serves the API routes.
type Handler struct {
	classes    *classes.Service
	attendance *attendance.Service
	students   roster.Registry
	bus        events.Bus
	log        *zap.Logger
	checks     map[string]HealthCheck
}

// NewRouter builds the gin engine with middlewares and every route.
func NewRouter(d Deps) *gin.Engine {
	log := d.Log
	if log == nil {
		log = zap.NewNop()
	}
	h := &Handler{
		classes:    d.Classes,
		attendance: d.Attendance,
		students:   d.Students,
		bus:        d.Bus,
		log:        log.Named("http"),
		checks:     d.Checks,
	}

	r := gin.New()
	r.Use(
		httpmiddleware.Recovery(h.log),
		httpmiddleware.RequestLogger(h.log, "/healthz", "/metrics"),
		httpmiddleware.CORS(),
		httpmiddleware.SecurityHeaders(),
		metrics.Middleware(),
	)
	if d.Limiter != nil {
		r.Use(d.Limiter.GinMiddleware())
	}

	gatherer := d.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	r.GET("/healthz", h.health)

	api := r.Group("", auth.Bearer(d.JWTSigningKey, d.JWTIssuer))
	admin := auth.RequireRole(auth.RoleAdmin)

	cls := api.Group("/classes")
	cls.POST("/create", admin, h.createClass)
	cls.GET("/upcoming/:program", h.upcoming)
	cls.POST("/start/:id", admin, h.startClass)
	cls.POST("/end/:id", admin, h.endClass)
	cls.PUT("/update/:id", admin, h.updateClass)
	cls.POST("/cancel/:id", admin, h.cancelClass)
	cls.GET("/active/:program", h.active)
	cls.GET("/completed-sessions", h.completed)
	cls.GET("/expired-sessions", h.expired)
	cls.POST("/check-expired", admin, h.checkExpired)

	att := api.Group("/attendance")
	att.POST("/join", h.join)
	att.POST("/reconnect", h.reconnect)
	att.POST("/leave", h.leave)
	att.GET("/class/:classId", admin, h.classAttendance)
	att.GET("/summary", admin, h.summary)
	att.GET("/student/:studentId", h.studentHistory)

	api.POST("/students", admin, h.upsertStudent)
	api.GET("/ws/rooms/:room", h.roomStream)

	return r
}

func (h *Handler) health(c *gin.Context) {
	status := http.StatusOK
	body := gin.H{"status": "ok"}
	for name, check := range h.checks {
		ok := check(c.Request.Context())
		body[name] = ok
		if !ok {
			status = http.StatusServiceUnavailable
			body["status"] = "degraded"
		}
	}
	c.JSON(status, body)
}
