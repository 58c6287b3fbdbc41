package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/camera"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/monitor"
)

// MonitorController is satisfied by monitor.Monitor.
type MonitorController interface {
	Start(ctx context.Context) error
	Stop() error
	Status() monitor.Status
	DetectionLog() []models.Detection
}

// CameraStatuser is satisfied by camera.Manager.
type CameraStatuser interface {
	Status() []camera.CameraStatus
}

type MonitorHandler struct {
	monitor MonitorController
	cameras CameraStatuser
}

func NewMonitorHandler(m MonitorController, cameras CameraStatuser) *MonitorHandler {
	return &MonitorHandler{monitor: m, cameras: cameras}
}

func (h *MonitorHandler) Start(c *gin.Context) {
	if err := h.monitor.Start(c.Request.Context()); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.monitor.Status())
}

// Stop returns once the worker has exited or the stop grace period elapsed.
func (h *MonitorHandler) Stop(c *gin.Context) {
	if err := h.monitor.Stop(); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.monitor.Status())
}

func (h *MonitorHandler) Status(c *gin.Context) {
	resp := gin.H{"monitor": h.monitor.Status()}
	if h.cameras != nil {
		resp["cameras"] = h.cameras.Status()
	}
	c.JSON(http.StatusOK, resp)
}

func (h *MonitorHandler) Detections(c *gin.Context) {
	log := h.monitor.DetectionLog()
	c.JSON(http.StatusOK, gin.H{"detections": log, "total": len(log)})
}
