package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	devicehandler "device-session-gate/internal/device/handler"
	healthhandler "device-session-gate/internal/health/handler"
	"device-session-gate/internal/security"
	"device-session-gate/internal/server/middleware"
)

// HTTPDeps holds the dependencies of the HTTP API.
type HTTPDeps struct {
	// Devices serves the device endpoints. Required.
	Devices *devicehandler.Handler
	// Health backs GET /healthz. If nil, /healthz always reports ok.
	Health *healthhandler.Server
	// AdminTokens guards the admin routes. If nil, no admin route is mounted.
	AdminTokens *security.AdminTokens
	// EventsEnabled mounts the admin session-event listing; requires a persistent event store.
	EventsEnabled bool
	Logger        *zap.Logger
}

// NewRouter returns the gin engine serving the device API.
//
// Routes:
//   - GET  /healthz, GET /metrics
//   - POST /api/v1/auth/register
//   - GET  /api/v1/auth/check-status
//   - POST /api/v1/admin/devices/activate            (admin bearer)
//   - GET  /api/v1/admin/accounts/:email/events      (admin bearer, persistent event store)
func NewRouter(deps HTTPDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.Metrics(), middleware.RequestLogger(deps.Logger))

	r.GET("/healthz", func(c *gin.Context) {
		if deps.Health != nil {
			if err := deps.Health.Ready(c.Request.Context()); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	auth := r.Group("/api/v1/auth")
	auth.POST("/register", deps.Devices.Register)
	auth.GET("/check-status", deps.Devices.CheckStatus)

	if deps.AdminTokens != nil {
		admin := r.Group("/api/v1/admin", middleware.AdminAuth(deps.AdminTokens))
		admin.POST("/devices/activate", deps.Devices.Activate)
		if deps.EventsEnabled {
			admin.GET("/accounts/:email/events", deps.Devices.ListEvents)
		}
	}
	return r
}
