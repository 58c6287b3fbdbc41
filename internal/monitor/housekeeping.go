package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron"
)

// Housekeeper runs absence checks and retention cleanup on a schedule.
type Housekeeper struct {
	scheduler *gocron.Scheduler
	monitor   *Monitor
}

func NewHousekeeper(m *Monitor, absenceInterval, cleanupInterval time.Duration) (*Housekeeper, error) {
	if absenceInterval <= 0 {
		absenceInterval = time.Minute
	}
	if cleanupInterval <= 0 {
		cleanupInterval = 24 * time.Hour
	}

	s := gocron.NewScheduler(time.UTC)
	s.SingletonModeAll()

	h := &Housekeeper{scheduler: s, monitor: m}

	if _, err := s.Every(absenceInterval).WaitForSchedule().Tag("absence").Do(h.checkAbsences); err != nil {
		return nil, fmt.Errorf("schedule absence check: %w", err)
	}
	if _, err := s.Every(cleanupInterval).Tag("cleanup").Do(h.cleanup); err != nil {
		return nil, fmt.Errorf("schedule cleanup: %w", err)
	}
	return h, nil
}

func (h *Housekeeper) Start() {
	h.scheduler.StartAsync()
	slog.Info("housekeeping scheduler started")
}

func (h *Housekeeper) Stop() {
	h.scheduler.Stop()
	slog.Info("housekeeping scheduler stopped")
}

func (h *Housekeeper) checkAbsences() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	n, err := h.monitor.CheckAbsences(ctx)
	if err != nil {
		slog.Error("absence check", "error", err)
	}
	if n > 0 {
		slog.Info("absence check raised alerts", "count", n)
	}
}

func (h *Housekeeper) cleanup() {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if _, err := h.monitor.RunCleanup(ctx); err != nil {
		slog.Error("retention cleanup", "error", err)
	}
}
