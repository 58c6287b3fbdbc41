package camera

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/observability"
)

type Status string

const (
	StatusStopped Status = "stopped"
	StatusRunning Status = "running"
	StatusError   Status = "error"
)

// maxRetries is how many times a failed camera is restarted (after 2s, 4s, 8s).
const maxRetries = 3

// extractor runs one capture session until it ends or ctx is cancelled.
type extractor interface {
	Run(ctx context.Context, in Input, callback FrameCallback) error
	Stop()
}

type camera struct {
	cfg    config.CameraConfig
	source *Source

	mu        sync.Mutex
	status    Status
	lastError string
	cancel    context.CancelFunc
	extractor extractor
	done      chan struct{}
}

// CameraStatus is a point-in-time view of one camera.
type CameraStatus struct {
	Name      string    `json:"name"`
	Type      string    `json:"type"`
	Status    Status    `json:"status"`
	LastError string    `json:"last_error,omitempty"`
	LastFrame time.Time `json:"last_frame"`
}

// Manager starts and stops frame capture for the configured cameras.
type Manager struct {
	cameras      []*camera
	newExtractor func() extractor
	retryDelay   func(attempt int) time.Duration
}

// NewManager creates a manager with one Source per camera. Frames older than
// maxFrameAge are reported as missing.
func NewManager(cameras []config.CameraConfig, maxFrameAge time.Duration) *Manager {
	m := &Manager{
		newExtractor: func() extractor { return &FFmpegExtractor{} },
		retryDelay: func(attempt int) time.Duration {
			return time.Duration(1<<uint(attempt)) * time.Second // 2s, 4s, 8s
		},
	}
	for _, c := range cameras {
		m.cameras = append(m.cameras, &camera{
			cfg:    c,
			source: NewSource(c.Name, maxFrameAge),
			status: StatusStopped,
		})
	}
	return m
}

// Sources returns every camera's frame source, in configuration order.
func (m *Manager) Sources() []*Source {
	out := make([]*Source, len(m.cameras))
	for i, c := range m.cameras {
		out[i] = c.source
	}
	return out
}

// StartAll starts capture on every camera that is not already running.
func (m *Manager) StartAll(ctx context.Context) {
	for _, c := range m.cameras {
		m.start(ctx, c)
	}
}

func (m *Manager) start(ctx context.Context, c *camera) {
	c.mu.Lock()
	if c.status == StatusRunning {
		c.mu.Unlock()
		return
	}
	camCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.status = StatusRunning
	c.lastError = ""
	done := make(chan struct{})
	c.done = done
	c.mu.Unlock()

	observability.ActiveCameras.Inc()
	slog.Info("starting camera", "camera", c.cfg.Name, "type", c.cfg.Type, "fps", c.cfg.FPS)

	go m.run(camCtx, c, done)
}

func (m *Manager) run(ctx context.Context, c *camera, done chan struct{}) {
	defer func() {
		c.source.Reset()
		observability.ActiveCameras.Dec()
		close(done)
		slog.Info("camera stopped", "camera", c.cfg.Name)
	}()

	in := Input{URL: c.cfg.URL, Type: c.cfg.Type, FPS: c.cfg.FPS, Width: c.cfg.Width}
	callback := func(frame []byte) error {
		return c.source.PublishJPEG(frame)
	}

	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := m.retryDelay(attempt)
			slog.Warn("retrying camera capture", "camera", c.cfg.Name, "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				c.setStatus(StatusStopped, "")
				return
			case <-time.After(delay):
			}
		}

		ext := m.newExtractor()
		c.mu.Lock()
		c.extractor = ext
		c.mu.Unlock()

		err := ext.Run(ctx, in, callback)
		if err == nil || ctx.Err() != nil {
			c.setStatus(StatusStopped, "")
			return
		}
		slog.Error("camera capture failed", "camera", c.cfg.Name, "attempt", attempt, "error", err)
		c.setStatus(StatusRunning, err.Error())
	}

	c.setStatus(StatusError, fmt.Sprintf("capture failed after %d retries", maxRetries))
}

// StopAll stops every camera and waits until their capture processes exit
// or ctx is done.
func (m *Manager) StopAll(ctx context.Context) error {
	var waits []chan struct{}
	for _, c := range m.cameras {
		c.mu.Lock()
		if c.cancel != nil {
			c.cancel()
		}
		if c.extractor != nil {
			c.extractor.Stop()
		}
		if c.done != nil {
			waits = append(waits, c.done)
		}
		c.mu.Unlock()
	}

	for _, done := range waits {
		select {
		case <-done:
		case <-ctx.Done():
			return fmt.Errorf("stop cameras: %w", ctx.Err())
		}
	}
	return nil
}

// Status reports every camera, sorted by name.
func (m *Manager) Status() []CameraStatus {
	out := make([]CameraStatus, 0, len(m.cameras))
	for _, c := range m.cameras {
		c.mu.Lock()
		out = append(out, CameraStatus{
			Name:      c.cfg.Name,
			Type:      c.cfg.Type,
			Status:    c.status,
			LastError: c.lastError,
			LastFrame: c.source.Updated(),
		})
		c.mu.Unlock()
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (c *camera) setStatus(s Status, errMsg string) {
	c.mu.Lock()
	c.status = s
	c.lastError = errMsg
	c.mu.Unlock()
}
