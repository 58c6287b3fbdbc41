package dto

import "github.com/your-org/presence/internal/models"

type CreateAlertRequest struct {
	Type        models.AlertType `json:"type" binding:"required"`
	Title       string           `json:"title" binding:"required"`
	Description string           `json:"description"`
}

type AlertResponse struct {
	Alert  models.Alert `json:"alert"`
	Action string       `json:"action"`
}

type AlertListResponse struct {
	Alerts []models.Alert `json:"alerts"`
	Total  int            `json:"total"`
}

type AlertQuery struct {
	Status   string `form:"status"`
	Type     string `form:"type"`
	Priority string `form:"priority"`
	Limit    int    `form:"limit"`
}

// TransitionResponse reports whether a resolve or dismiss changed anything.
type TransitionResponse struct {
	ID     string `json:"id"`
	Result string `json:"result"`
}

type CleanupRequest struct {
	Days *int `json:"days"`
}

type CleanupResponse struct {
	Removed int `json:"removed"`
}
