package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/pkg/dto"
)

type AlertHandler struct {
	engine *alert.Engine
}

func NewAlertHandler(engine *alert.Engine) *AlertHandler {
	return &AlertHandler{engine: engine}
}

func (h *AlertHandler) List(c *gin.Context) {
	var q dto.AlertQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	f := alert.Filter{
		Status:   models.AlertStatus(q.Status),
		Type:     models.AlertType(q.Type),
		Priority: models.Priority(q.Priority),
		Limit:    q.Limit,
	}
	if f.Status != "" && !f.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid status"})
		return
	}
	if f.Type != "" && !f.Type.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid type"})
		return
	}
	if f.Priority != "" && !f.Priority.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid priority"})
		return
	}

	alerts := h.engine.List(f)
	if alerts == nil {
		alerts = []models.Alert{}
	}
	c.JSON(http.StatusOK, dto.AlertListResponse{Alerts: alerts, Total: len(alerts)})
}

func (h *AlertHandler) Get(c *gin.Context) {
	a, err := h.engine.Get(c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, a)
}

// Create raises a free-text SystemError or General alert.
func (h *AlertHandler) Create(c *gin.Context) {
	var req dto.CreateAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	a, action, err := h.engine.Create(c.Request.Context(), alert.Input{
		Type:        req.Type,
		Title:       req.Title,
		Description: req.Description,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	status := http.StatusOK
	if action == alert.ActionCreated {
		status = http.StatusCreated
	}
	c.JSON(status, dto.AlertResponse{Alert: a, Action: action.String()})
}

func (h *AlertHandler) Resolve(c *gin.Context) {
	h.transition(c, h.engine.Resolve)
}

func (h *AlertHandler) Dismiss(c *gin.Context) {
	h.transition(c, h.engine.Dismiss)
}

func (h *AlertHandler) transition(c *gin.Context, fn func(ctx context.Context, id string) (alert.Result, error)) {
	id := c.Param("id")
	res, err := fn(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.TransitionResponse{ID: id, Result: res.String()})
}

// Cleanup removes closed alerts older than the given days, or the configured
// retention when the body is empty.
func (h *AlertHandler) Cleanup(c *gin.Context) {
	var req dto.CleanupRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}
	days := h.engine.Settings().RetentionDays
	if req.Days != nil {
		days = *req.Days
	}

	n, err := h.engine.Cleanup(c.Request.Context(), days)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CleanupResponse{Removed: n})
}

func (h *AlertHandler) ClearResolved(c *gin.Context) {
	n, err := h.engine.ClearResolved(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, dto.CleanupResponse{Removed: n})
}

func (h *AlertHandler) Stats(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Stats())
}

func (h *AlertHandler) GetSettings(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Settings())
}

// UpdateSettings replaces the settings as a whole.
func (h *AlertHandler) UpdateSettings(c *gin.Context) {
	var s models.AlertSettings
	if err := c.ShouldBindJSON(&s); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := h.engine.UpdateSettings(c.Request.Context(), s); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, h.engine.Settings())
}
