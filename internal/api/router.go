package api

import (
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/api/handlers"
	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/auth"
	"github.com/your-org/presence/internal/features"
	"github.com/your-org/presence/internal/roster"
)

type RouterConfig struct {
	APIKey   string
	Engine   *alert.Engine
	Features *features.Store
	Roster   *roster.Roster
	Monitor  handlers.MonitorController
	Cameras  handlers.CameraStatuser
	// Images is optional; without it reference images are not kept.
	Images handlers.ReferenceStore
	Hub    *ws.Hub
	Checks []handlers.Check
	// EmbedFn extracts a face vector from image bytes (from vision pipeline).
	EmbedFn handlers.EmbedFunc
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(LoggingMiddleware())
	r.Use(cors.Default())

	// System endpoints (no auth)
	systemH := handlers.NewSystemHandler(cfg.Checks...)
	r.GET("/healthz", systemH.Healthz)
	r.GET("/readyz", systemH.Readyz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// API v1 (with auth)
	v1 := r.Group("/v1")
	v1.Use(auth.APIKeyMiddleware(cfg.APIKey))

	// WebSocket
	if cfg.Hub != nil {
		v1.GET("/ws", cfg.Hub.HandleWS)
	}

	// Alerts
	alertH := handlers.NewAlertHandler(cfg.Engine)
	v1.GET("/alerts", alertH.List)
	v1.POST("/alerts", alertH.Create)
	v1.GET("/alerts/stats", alertH.Stats)
	v1.POST("/alerts/cleanup", alertH.Cleanup)
	v1.DELETE("/alerts/resolved", alertH.ClearResolved)
	v1.GET("/alerts/:id", alertH.Get)
	v1.POST("/alerts/:id/resolve", alertH.Resolve)
	v1.POST("/alerts/:id/dismiss", alertH.Dismiss)
	v1.GET("/settings/alerts", alertH.GetSettings)
	v1.PUT("/settings/alerts", alertH.UpdateSettings)

	// Identities
	var flagger handlers.ImageFlagger
	if cfg.Roster != nil {
		flagger = cfg.Roster
	}
	identH := handlers.NewIdentityHandler(cfg.Features, cfg.EmbedFn, cfg.Images, flagger)
	v1.GET("/identities", identH.List)
	v1.POST("/identities", identH.Enroll)
	v1.DELETE("/identities/:id", identH.Delete)

	// Faculty
	facultyH := handlers.NewFacultyHandler(cfg.Roster)
	v1.GET("/faculty", facultyH.List)
	v1.POST("/faculty", facultyH.Create)
	v1.GET("/faculty/search", facultyH.Search)
	v1.GET("/faculty/:name", facultyH.Get)
	v1.PATCH("/faculty/:name", facultyH.Update)
	v1.DELETE("/faculty/:name", facultyH.Delete)

	// Monitoring
	if cfg.Monitor != nil {
		monH := handlers.NewMonitorHandler(cfg.Monitor, cfg.Cameras)
		v1.POST("/monitor/start", monH.Start)
		v1.POST("/monitor/stop", monH.Stop)
		v1.GET("/monitor/status", monH.Status)
		v1.GET("/detections", monH.Detections)
	}

	return r
}
