package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/features"
	"github.com/your-org/presence/internal/monitor"
	"github.com/your-org/presence/internal/roster"
	"github.com/your-org/presence/internal/vision"
)

// respondError maps domain errors to HTTP status codes.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, alert.ErrNotFound), errors.Is(err, features.ErrNotFound), errors.Is(err, roster.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, alert.ErrInvalid), errors.Is(err, features.ErrInvalid), errors.Is(err, roster.ErrInvalid),
		errors.Is(err, vision.ErrNoFace), errors.Is(err, vision.ErrEmptyImage):
		status = http.StatusBadRequest
	case errors.Is(err, roster.ErrExists), errors.Is(err, monitor.ErrAlreadyRunning), errors.Is(err, monitor.ErrNotRunning):
		status = http.StatusConflict
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
