package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/your-org/presence/internal/models"
)

type Config struct {
	Server       ServerConfig       `yaml:"server"`
	Database     DatabaseConfig     `yaml:"database"`
	NATS         NATSConfig         `yaml:"nats"`
	MinIO        MinIOConfig        `yaml:"minio"`
	Storage      StorageConfig      `yaml:"storage"`
	Vision       VisionConfig       `yaml:"vision"`
	Monitor      MonitorConfig      `yaml:"monitor"`
	Alerts       AlertsConfig       `yaml:"alerts"`
	Notification NotificationConfig `yaml:"notification"`
	Cameras      []CameraConfig     `yaml:"cameras"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type ServerConfig struct {
	Port   int    `yaml:"port"`
	APIKey string `yaml:"api_key"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	MaxConns int    `yaml:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
}

type MinIOConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`
	Bucket    string `yaml:"bucket"`
	UseSSL    bool   `yaml:"use_ssl"`
}

const (
	StorageBackendFile     = "file"
	StorageBackendPostgres = "postgres"
)

type StorageConfig struct {
	Backend string `yaml:"backend"`
	DataDir string `yaml:"data_dir"`
}

const (
	DetectorRetinaFace = "retinaface"
	DetectorCascade    = "cascade"

	EmbedderArcFace   = "arcface"
	EmbedderHistogram = "histogram"
)

type VisionConfig struct {
	ModelsDir          string  `yaml:"models_dir"`
	Detector           string  `yaml:"detector"`
	CascadeFile        string  `yaml:"cascade_file"`
	Embedder           string  `yaml:"embedder"`
	DetectionThreshold float64 `yaml:"detection_threshold"`
	MatchThreshold     float64 `yaml:"match_threshold"`
	// Histogram confidence is (1+correlation)/2, so 0.9 means correlation 0.8.
	MatchThresholdHistogram float64 `yaml:"match_threshold_histogram"`
	NMSThreshold            float64 `yaml:"nms_threshold"`
}

// MatchThresholdFor returns the recognizer threshold for the embedder actually
// in use, which may be the histogram fallback rather than the configured one.
func (v VisionConfig) MatchThresholdFor(embedder string) float64 {
	if embedder == EmbedderHistogram {
		return v.MatchThresholdHistogram
	}
	return v.MatchThreshold
}

type MonitorConfig struct {
	AutoStart            bool          `yaml:"auto_start"`
	PollInterval         time.Duration `yaml:"poll_interval"`
	StopGrace            time.Duration `yaml:"stop_grace"`
	DetectionLogSize     int           `yaml:"detection_log_size"`
	AbsenceCheckInterval time.Duration `yaml:"absence_check_interval"`
	CleanupInterval      time.Duration `yaml:"cleanup_interval"`
}

type AlertsConfig struct {
	Enabled                      *bool   `yaml:"enabled"`
	AbsenceHours                 float64 `yaml:"absence_hours"`
	HighPriorityHours            float64 `yaml:"high_priority_hours"`
	DetectionConfidenceThreshold float64 `yaml:"detection_confidence_threshold"`
	RetentionDays                int     `yaml:"retention_days"`
}

type NotificationConfig struct {
	SMTPServer  string   `yaml:"smtp_server"`
	SMTPPort    int      `yaml:"smtp_port"`
	Username    string   `yaml:"username"`
	Password    string   `yaml:"password"`
	From        string   `yaml:"from"`
	Recipients  []string `yaml:"recipients"`
	QueueSize   int      `yaml:"queue_size"`
	Workers     int      `yaml:"workers"`
	PublishNATS bool     `yaml:"publish_nats"`
}

// Configured reports whether enough SMTP settings are present to send mail.
func (n NotificationConfig) Configured() bool {
	return n.SMTPServer != "" && n.Username != "" && n.Password != "" && len(n.Recipients) > 0
}

type CameraConfig struct {
	Name  string `yaml:"name"`
	URL   string `yaml:"url"`
	Type  string `yaml:"type"` // rtsp, http, device, file
	FPS   int    `yaml:"fps"`
	Width int    `yaml:"width"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// AlertSettings builds the engine's initial settings from config.
func (c *Config) AlertSettings() models.AlertSettings {
	enabled := true
	if c.Alerts.Enabled != nil {
		enabled = *c.Alerts.Enabled
	}
	recipients := make([]string, len(c.Notification.Recipients))
	copy(recipients, c.Notification.Recipients)
	return models.AlertSettings{
		Enabled:                      enabled,
		AbsenceHours:                 c.Alerts.AbsenceHours,
		HighPriorityHours:            c.Alerts.HighPriorityHours,
		DetectionConfidenceThreshold: float32(c.Alerts.DetectionConfidenceThreshold),
		RetentionDays:                c.Alerts.RetentionDays,
		Recipients:                   recipients,
	}
}

// Load reads config from YAML file and applies environment variable overrides.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML config bytes, then applies env overrides and defaults.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(cfg)
	setDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the services cannot run with.
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case StorageBackendFile, StorageBackendPostgres:
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}
	switch c.Vision.Detector {
	case DetectorRetinaFace, DetectorCascade:
	default:
		return fmt.Errorf("unknown detector %q", c.Vision.Detector)
	}
	switch c.Vision.Embedder {
	case EmbedderArcFace, EmbedderHistogram:
	default:
		return fmt.Errorf("unknown embedder %q", c.Vision.Embedder)
	}
	for _, th := range []float64{c.Vision.MatchThreshold, c.Vision.MatchThresholdHistogram} {
		if th <= 0 || th > 1 {
			return fmt.Errorf("vision match thresholds must be in (0, 1], got %v", th)
		}
	}
	if c.Alerts.HighPriorityHours < c.Alerts.AbsenceHours {
		return fmt.Errorf("alerts.high_priority_hours (%v) must be >= alerts.absence_hours (%v)",
			c.Alerts.HighPriorityHours, c.Alerts.AbsenceHours)
	}
	seen := make(map[string]bool, len(c.Cameras))
	for i, cam := range c.Cameras {
		if cam.Name == "" || cam.URL == "" {
			return fmt.Errorf("camera %d: name and url are required", i)
		}
		if seen[cam.Name] {
			return fmt.Errorf("camera %q defined twice", cam.Name)
		}
		seen[cam.Name] = true
	}
	return nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = 5432
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = StorageBackendFile
	}
	if cfg.Storage.DataDir == "" {
		cfg.Storage.DataDir = "data"
	}
	if cfg.Vision.ModelsDir == "" {
		cfg.Vision.ModelsDir = "models"
	}
	if cfg.Vision.Detector == "" {
		cfg.Vision.Detector = DetectorRetinaFace
	}
	if cfg.Vision.CascadeFile == "" {
		cfg.Vision.CascadeFile = "haarcascade_frontalface_default.xml"
	}
	if cfg.Vision.Embedder == "" {
		cfg.Vision.Embedder = EmbedderArcFace
	}
	if cfg.Vision.DetectionThreshold == 0 {
		cfg.Vision.DetectionThreshold = 0.5
	}
	if cfg.Vision.MatchThreshold == 0 {
		cfg.Vision.MatchThreshold = 0.7
	}
	if cfg.Vision.MatchThresholdHistogram == 0 {
		cfg.Vision.MatchThresholdHistogram = 0.9
	}
	if cfg.Vision.NMSThreshold == 0 {
		cfg.Vision.NMSThreshold = 0.4
	}
	if cfg.Monitor.PollInterval == 0 {
		cfg.Monitor.PollInterval = 2 * time.Second
	}
	if cfg.Monitor.StopGrace == 0 {
		cfg.Monitor.StopGrace = 3 * time.Second
	}
	if cfg.Monitor.DetectionLogSize == 0 {
		cfg.Monitor.DetectionLogSize = 50
	}
	if cfg.Monitor.AbsenceCheckInterval == 0 {
		cfg.Monitor.AbsenceCheckInterval = 5 * time.Minute
	}
	if cfg.Monitor.CleanupInterval == 0 {
		cfg.Monitor.CleanupInterval = 24 * time.Hour
	}
	if cfg.Alerts.AbsenceHours == 0 {
		cfg.Alerts.AbsenceHours = 2
	}
	if cfg.Alerts.HighPriorityHours == 0 {
		cfg.Alerts.HighPriorityHours = 4
	}
	if cfg.Alerts.DetectionConfidenceThreshold == 0 {
		cfg.Alerts.DetectionConfidenceThreshold = 0.7
	}
	if cfg.Alerts.RetentionDays == 0 {
		cfg.Alerts.RetentionDays = 30
	}
	if cfg.Notification.SMTPPort == 0 {
		cfg.Notification.SMTPPort = 587
	}
	if cfg.Notification.QueueSize == 0 {
		cfg.Notification.QueueSize = 64
	}
	if cfg.Notification.Workers == 0 {
		cfg.Notification.Workers = 2
	}
	if cfg.Notification.From == "" {
		cfg.Notification.From = cfg.Notification.Username
	}
	for i := range cfg.Cameras {
		if cfg.Cameras[i].FPS == 0 {
			cfg.Cameras[i].FPS = 5
		}
		if cfg.Cameras[i].Width == 0 {
			cfg.Cameras[i].Width = 640
		}
		if cfg.Cameras[i].Type == "" {
			cfg.Cameras[i].Type = "rtsp"
		}
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PRESENCE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PRESENCE_API_KEY"); v != "" {
		cfg.Server.APIKey = v
	}
	if v := os.Getenv("PRESENCE_DB_HOST"); v != "" {
		cfg.Database.Host = v
	}
	if v := os.Getenv("PRESENCE_DB_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Database.Port = port
		}
	}
	if v := os.Getenv("PRESENCE_DB_NAME"); v != "" {
		cfg.Database.Name = v
	}
	if v := os.Getenv("PRESENCE_DB_USER"); v != "" {
		cfg.Database.User = v
	}
	if v := os.Getenv("PRESENCE_DB_PASSWORD"); v != "" {
		cfg.Database.Password = v
	}
	if v := os.Getenv("PRESENCE_NATS_URL"); v != "" {
		cfg.NATS.URL = v
		cfg.NATS.Enabled = true
	}
	if v := os.Getenv("PRESENCE_MINIO_ENDPOINT"); v != "" {
		cfg.MinIO.Endpoint = v
		cfg.MinIO.Enabled = true
	}
	if v := os.Getenv("PRESENCE_MINIO_ACCESS_KEY"); v != "" {
		cfg.MinIO.AccessKey = v
	}
	if v := os.Getenv("PRESENCE_MINIO_SECRET_KEY"); v != "" {
		cfg.MinIO.SecretKey = v
	}
	if v := os.Getenv("PRESENCE_MINIO_BUCKET"); v != "" {
		cfg.MinIO.Bucket = v
	}
	if v := os.Getenv("PRESENCE_STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("PRESENCE_DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("PRESENCE_MODELS_DIR"); v != "" {
		cfg.Vision.ModelsDir = v
	}
	if v := os.Getenv("PRESENCE_SMTP_SERVER"); v != "" {
		cfg.Notification.SMTPServer = v
	}
	if v := os.Getenv("PRESENCE_SMTP_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Notification.SMTPPort = port
		}
	}
	if v := os.Getenv("PRESENCE_SMTP_USERNAME"); v != "" {
		cfg.Notification.Username = v
	}
	if v := os.Getenv("PRESENCE_SMTP_PASSWORD"); v != "" {
		cfg.Notification.Password = v
	}
	if v := os.Getenv("PRESENCE_ALERT_RECIPIENTS"); v != "" {
		var recipients []string
		for _, r := range strings.Split(v, ",") {
			if r = strings.TrimSpace(r); r != "" {
				recipients = append(recipients, r)
			}
		}
		cfg.Notification.Recipients = recipients
	}
	if v := os.Getenv("PRESENCE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}
