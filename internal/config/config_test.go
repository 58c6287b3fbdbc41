package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParse_Defaults(t *testing.T) {
	cfg, err := Parse([]byte("{}"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.Port != 8080 {
		t.Errorf("server port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Storage.Backend != StorageBackendFile {
		t.Errorf("storage backend = %q, want %q", cfg.Storage.Backend, StorageBackendFile)
	}
	if cfg.Monitor.PollInterval != 2*time.Second {
		t.Errorf("poll interval = %v, want 2s", cfg.Monitor.PollInterval)
	}
	if cfg.Monitor.DetectionLogSize != 50 {
		t.Errorf("detection log size = %d, want 50", cfg.Monitor.DetectionLogSize)
	}
	if cfg.Alerts.AbsenceHours != 2 || cfg.Alerts.HighPriorityHours != 4 {
		t.Errorf("absence thresholds = %v/%v, want 2/4", cfg.Alerts.AbsenceHours, cfg.Alerts.HighPriorityHours)
	}
	if cfg.Alerts.RetentionDays != 30 {
		t.Errorf("retention days = %d, want 30", cfg.Alerts.RetentionDays)
	}
	if cfg.Vision.MatchThreshold != 0.7 {
		t.Errorf("match threshold = %v, want 0.7", cfg.Vision.MatchThreshold)
	}
	if cfg.Vision.MatchThresholdHistogram != 0.9 {
		t.Errorf("histogram match threshold = %v, want 0.9", cfg.Vision.MatchThresholdHistogram)
	}
	if cfg.Notification.SMTPPort != 587 {
		t.Errorf("smtp port = %d, want 587", cfg.Notification.SMTPPort)
	}
}

func TestParse_YAML(t *testing.T) {
	data := []byte(`
server:
  port: 9000
storage:
  backend: postgres
vision:
  detector: cascade
  embedder: histogram
monitor:
  poll_interval: 500ms
alerts:
  enabled: false
  absence_hours: 3
  high_priority_hours: 6
cameras:
  - name: Main Entrance
    url: rtsp://cam1/stream
  - name: Faculty Lounge
    url: /dev/video0
    type: device
    fps: 10
`)

	cfg, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Monitor.PollInterval != 500*time.Millisecond {
		t.Errorf("poll interval = %v, want 500ms", cfg.Monitor.PollInterval)
	}
	if len(cfg.Cameras) != 2 {
		t.Fatalf("cameras = %d, want 2", len(cfg.Cameras))
	}
	if cfg.Cameras[0].Type != "rtsp" || cfg.Cameras[0].FPS != 5 || cfg.Cameras[0].Width != 640 {
		t.Errorf("camera defaults not applied: %+v", cfg.Cameras[0])
	}
	if cfg.Cameras[1].FPS != 10 {
		t.Errorf("camera fps = %d, want 10", cfg.Cameras[1].FPS)
	}

	settings := cfg.AlertSettings()
	if settings.Enabled {
		t.Error("expected alerts disabled")
	}
	if settings.AbsenceHours != 3 || settings.HighPriorityHours != 6 {
		t.Errorf("settings thresholds = %v/%v, want 3/6", settings.AbsenceHours, settings.HighPriorityHours)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown storage", "storage:\n  backend: redis\n"},
		{"unknown detector", "vision:\n  detector: yolo\n"},
		{"unknown embedder", "vision:\n  embedder: random\n"},
		{"inverted thresholds", "alerts:\n  absence_hours: 5\n  high_priority_hours: 3\n"},
		{"match threshold above one", "vision:\n  match_threshold: 1.5\n"},
		{"negative histogram threshold", "vision:\n  match_threshold_histogram: -0.2\n"},
		{"camera without url", "cameras:\n  - name: A\n"},
		{"duplicate camera", "cameras:\n  - name: A\n    url: x\n  - name: A\n    url: y\n"},
		{"bad yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("PRESENCE_SERVER_PORT", "9100")
	t.Setenv("PRESENCE_ALERT_RECIPIENTS", "a@example.edu, b@example.edu,")
	t.Setenv("PRESENCE_NATS_URL", "nats://localhost:4222")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100", cfg.Server.Port)
	}
	if len(cfg.Notification.Recipients) != 2 {
		t.Errorf("recipients = %v, want 2 entries", cfg.Notification.Recipients)
	}
	if !cfg.NATS.Enabled {
		t.Error("expected NATS enabled by env override")
	}
}

func TestMatchThresholdFor(t *testing.T) {
	cfg, err := Parse([]byte("vision:\n  match_threshold: 0.65\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}

	tests := []struct {
		embedder string
		want     float64
	}{
		{EmbedderArcFace, 0.65},
		{EmbedderHistogram, 0.9},
	}
	for _, tt := range tests {
		t.Run(tt.embedder, func(t *testing.T) {
			if got := cfg.Vision.MatchThresholdFor(tt.embedder); got != tt.want {
				t.Errorf("MatchThresholdFor(%q) = %v, want %v", tt.embedder, got, tt.want)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestNotificationConfigured(t *testing.T) {
	n := NotificationConfig{SMTPServer: "smtp.example.edu", Username: "u", Password: "p"}
	if n.Configured() {
		t.Error("expected unconfigured without recipients")
	}
	n.Recipients = []string{"ops@example.edu"}
	if !n.Configured() {
		t.Error("expected configured")
	}
}
