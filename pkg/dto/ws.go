package dto

import "github.com/your-org/presence/internal/models"

const (
	WSTypeAlert     = "alert"
	WSTypeDetection = "detection"
)

// WSEvent is a WebSocket message for the live feed.
type WSEvent struct {
	Type       string             `json:"type"`
	Kind       string             `json:"kind,omitempty"`
	Camera     string             `json:"camera,omitempty"`
	Alert      *models.Alert      `json:"alert,omitempty"`
	Detections []models.Detection `json:"detections,omitempty"`
	Timestamp  string             `json:"timestamp"`
}
