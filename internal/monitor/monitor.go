// Package monitor runs the background capture -> recognition -> alert loop
// and the periodic absence and retention housekeeping.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"time"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/vision"
)

var (
	ErrAlreadyRunning = errors.New("monitoring already running")
	ErrNotRunning     = errors.New("monitoring not running")
	ErrStopTimeout    = errors.New("monitoring did not stop within grace period")
)

// FrameSource is one camera's latest-frame mailbox.
type FrameSource interface {
	Name() string
	GetCurrentFrame() image.Image
}

// Cameras controls capture processes. Satisfied by camera.Manager.
type Cameras interface {
	StartAll(ctx context.Context)
	StopAll(ctx context.Context) error
}

type Processor interface {
	Process(img image.Image, camera string) []models.Detection
}

// AlertHandler is the subset of alert.Engine the worker drives.
type AlertHandler interface {
	HandleDetection(ctx context.Context, d models.Detection) (models.Alert, alert.Action, error)
	HandleAbsence(ctx context.Context, ev alert.AbsenceEvent) (models.Alert, alert.Action, error)
	HandlePresence(ctx context.Context, facultyName string) (alert.Result, error)
	SetSnapshot(ctx context.Context, id, key string) error
	Cleanup(ctx context.Context, retentionDays int) (int, error)
	Settings() models.AlertSettings
}

type Roster interface {
	ListIdentities() []models.Faculty
	MarkSeen(ctx context.Context, name string, ts time.Time) error
	UpdateStatus(ctx context.Context, name string, status models.PresenceStatus) error
}

// DetectionPublisher is satisfied by queue.Producer.
type DetectionPublisher interface {
	PublishDetections(ctx context.Context, task models.DetectionTask) error
}

// SnapshotStore is satisfied by storage.MinIOStore.
type SnapshotStore interface {
	PutSnapshot(ctx context.Context, camera string, ts time.Time, data []byte) (string, error)
}

type Option func(*Monitor)

func WithCameras(c Cameras) Option {
	return func(m *Monitor) { m.cameras = c }
}

// WithDetectionPublisher adds a sink for detection batches. May be repeated.
func WithDetectionPublisher(p DetectionPublisher) Option {
	return func(m *Monitor) { m.publishers = append(m.publishers, p) }
}

func WithSnapshotStore(s SnapshotStore) Option {
	return func(m *Monitor) { m.snapshots = s }
}

func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// Status is a point-in-time view of the worker.
type Status struct {
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitempty"`
	Cycles     uint64    `json:"cycles"`
	LastCycle  time.Time `json:"last_cycle,omitempty"`
	Detections int       `json:"detections_logged"`
	Cameras    []string  `json:"cameras"`
}

type Monitor struct {
	cfg        config.MonitorConfig
	sources    []FrameSource
	pipeline   Processor
	alerts     AlertHandler
	roster     Roster
	cameras    Cameras
	publishers []DetectionPublisher
	snapshots  SnapshotStore
	log        *DetectionLog
	now        func() time.Time

	mu        sync.Mutex
	running   bool
	cancel    context.CancelFunc
	done      chan struct{}
	startedAt time.Time
	cycles    uint64
	lastCycle time.Time
}

func New(cfg config.MonitorConfig, sources []FrameSource, pipeline Processor, alerts AlertHandler, roster Roster, opts ...Option) *Monitor {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.StopGrace <= 0 {
		cfg.StopGrace = 3 * time.Second
	}
	m := &Monitor{
		cfg:      cfg,
		sources:  sources,
		pipeline: pipeline,
		alerts:   alerts,
		roster:   roster,
		log:      NewDetectionLog(cfg.DetectionLogSize),
		now:      time.Now,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Start launches cameras and the polling loop. The loop outlives ctx's
// cancellation; only Stop ends it.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	if m.cameras != nil {
		m.cameras.StartAll(loopCtx)
	}

	m.running = true
	m.cancel = cancel
	m.done = make(chan struct{})
	m.startedAt = m.now()
	m.cycles = 0

	go m.loop(loopCtx, m.done)

	slog.Info("monitoring started", "cameras", len(m.sources), "interval", m.cfg.PollInterval)
	return nil
}

// Stop cancels the loop and releases cameras. It returns once the loop has
// exited, or with ErrStopTimeout after the stop grace period.
func (m *Monitor) Stop() error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrNotRunning
	}
	m.running = false
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	cancel()

	deadline := time.NewTimer(m.cfg.StopGrace)
	defer deadline.Stop()

	var err error
	select {
	case <-done:
	case <-deadline.C:
		err = ErrStopTimeout
	}

	if m.cameras != nil {
		ctx, cancelStop := context.WithTimeout(context.Background(), m.cfg.StopGrace)
		if stopErr := m.cameras.StopAll(ctx); stopErr != nil {
			slog.Warn("stop cameras", "error", stopErr)
			if err == nil {
				err = stopErr
			}
		}
		cancelStop()
	}

	if err != nil {
		slog.Warn("monitoring stopped with error", "error", err)
	} else {
		slog.Info("monitoring stopped")
	}
	return err
}

func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// DetectionLog returns the most recent detections, newest first.
func (m *Monitor) DetectionLog() []models.Detection {
	return m.log.Entries()
}

func (m *Monitor) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	names := make([]string, 0, len(m.sources))
	for _, s := range m.sources {
		names = append(names, s.Name())
	}
	st := Status{
		Running:    m.running,
		Cycles:     m.cycles,
		LastCycle:  m.lastCycle,
		Detections: m.log.Len(),
		Cameras:    names,
	}
	if m.running {
		st.StartedAt = m.startedAt
	}
	return st
}

func (m *Monitor) loop(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(m.cfg.PollInterval)
	defer ticker.Stop()

	for {
		m.cycle(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// cycle processes the latest frame of every camera. A panic anywhere in the
// cycle is logged and counted; the loop carries on.
func (m *Monitor) cycle(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			observability.CycleErrors.Inc()
			slog.Error("monitor cycle panicked", "panic", r)
		}
	}()

	for _, src := range m.sources {
		if ctx.Err() != nil {
			return
		}
		m.processSource(ctx, src)
	}

	m.mu.Lock()
	m.cycles++
	m.lastCycle = m.now()
	m.mu.Unlock()
}

func (m *Monitor) processSource(ctx context.Context, src FrameSource) {
	name := src.Name()
	frame := src.GetCurrentFrame()
	if frame == nil {
		observability.FramesSkipped.WithLabelValues(name).Inc()
		return
	}

	detections := m.pipeline.Process(frame, name)
	observability.FramesProcessed.WithLabelValues(name).Inc()
	if len(detections) == 0 {
		return
	}
	m.log.Add(detections...)

	if len(m.publishers) > 0 {
		task := models.DetectionTask{Camera: name, Timestamp: detections[0].Timestamp, Detections: detections}
		for _, p := range m.publishers {
			if err := p.PublishDetections(ctx, task); err != nil {
				slog.Warn("publish detections", "camera", name, "error", err)
			}
		}
	}

	for _, d := range detections {
		if d.Recognized() {
			m.handleRecognized(ctx, d)
		}

		a, action, err := m.alerts.HandleDetection(ctx, d)
		if err != nil {
			observability.CycleErrors.Inc()
			slog.Error("handle detection", "camera", name, "error", err)
			continue
		}
		if action == alert.ActionCreated && a.Type == models.AlertTypeUnknownPerson {
			m.saveSnapshot(ctx, a, frame, d)
		}
	}
}

func (m *Monitor) handleRecognized(ctx context.Context, d models.Detection) {
	name := *d.IdentityID
	if err := m.roster.MarkSeen(ctx, name, d.Timestamp); err != nil {
		slog.Debug("mark seen", "name", name, "error", err)
	}
	if _, err := m.alerts.HandlePresence(ctx, name); err != nil {
		slog.Warn("resolve absence", "name", name, "error", err)
	}
}

func (m *Monitor) saveSnapshot(ctx context.Context, a models.Alert, frame image.Image, d models.Detection) {
	if m.snapshots == nil {
		return
	}

	img := frame
	if sub, ok := frame.(interface {
		SubImage(r image.Rectangle) image.Image
	}); ok {
		if r := d.Box.Rect().Intersect(frame.Bounds()); !r.Empty() {
			img = sub.SubImage(r)
		}
	}

	data, err := vision.EncodeJPEG(img, 85)
	if err != nil {
		slog.Warn("encode snapshot", "alert", a.ID, "error", err)
		return
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	key, err := m.snapshots.PutSnapshot(ctx, d.Camera, d.Timestamp, data)
	if err != nil {
		slog.Warn("store snapshot", "alert", a.ID, "error", err)
		return
	}
	if err := m.alerts.SetSnapshot(ctx, a.ID, key); err != nil {
		slog.Warn("attach snapshot", "alert", a.ID, "key", key, "error", err)
	}
}

// CheckAbsences raises Absence alerts for members unseen for at least the
// alert threshold and marks them absent. Members never seen are measured
// from the start of monitoring. It returns how many members were reported.
func (m *Monitor) CheckAbsences(ctx context.Context) (int, error) {
	m.mu.Lock()
	running, startedAt := m.running, m.startedAt
	m.mu.Unlock()
	if !running {
		return 0, nil
	}

	settings := m.alerts.Settings()
	now := m.now()
	reported := 0
	var errs []error

	for _, f := range m.roster.ListIdentities() {
		since := startedAt
		if f.LastSeen != nil {
			since = *f.LastSeen
		}
		hours := now.Sub(since).Hours()
		if hours < settings.AbsenceHours {
			continue
		}

		if f.Status == models.PresenceStatusPresent {
			if err := m.roster.UpdateStatus(ctx, f.Name, models.PresenceStatusAbsent); err != nil {
				errs = append(errs, fmt.Errorf("mark %s absent: %w", f.Name, err))
			}
		}

		_, action, err := m.alerts.HandleAbsence(ctx, alert.AbsenceEvent{FacultyName: f.Name, AbsenceHours: hours})
		if err != nil {
			errs = append(errs, fmt.Errorf("absence alert for %s: %w", f.Name, err))
			continue
		}
		if action != alert.ActionNone {
			reported++
		}
	}
	return reported, errors.Join(errs...)
}

// RunCleanup drops closed alerts past the configured retention.
func (m *Monitor) RunCleanup(ctx context.Context) (int, error) {
	days := m.alerts.Settings().RetentionDays
	if days <= 0 {
		return 0, nil
	}
	n, err := m.alerts.Cleanup(ctx, days)
	if err != nil {
		return 0, fmt.Errorf("cleanup alerts: %w", err)
	}
	if n > 0 {
		slog.Info("old alerts cleaned up", "removed", n, "retention_days", days)
	}
	return n, nil
}
