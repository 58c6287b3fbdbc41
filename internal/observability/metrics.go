package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	FramesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "frames_processed_total",
		Help:      "Total number of frames run through the pipeline",
	}, []string{"camera"})

	FramesSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "frames_skipped_total",
		Help:      "Monitoring ticks skipped because no frame was available",
	}, []string{"camera"})

	FacesDetected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "faces_detected_total",
		Help:      "Total number of faces detected",
	}, []string{"camera"})

	FacesRecognized = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "faces_recognized_total",
		Help:      "Total number of faces matched to a known identity",
	}, []string{"camera"})

	InferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Name:      "inference_duration_seconds",
		Help:      "Duration of ML inference stages",
		Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
	}, []string{"stage"})

	DetectorDegraded = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "detector_degraded",
		Help:      "1 when the detector runs without its preferred backend",
	})

	AlertsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "alerts_created_total",
		Help:      "Alerts inserted into the ledger",
	}, []string{"type"})

	AlertsSuppressed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "alerts_suppressed_total",
		Help:      "Qualifying events folded into an existing active alert",
	}, []string{"type"})

	ActiveAlerts = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "active_alerts",
		Help:      "Number of alerts currently in Active status",
	})

	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "notifications_total",
		Help:      "Notification attempts by result (sent, failed, skipped, dropped)",
	}, []string{"result"})

	ActiveCameras = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "active_cameras",
		Help:      "Number of cameras currently capturing",
	})

	CycleErrors = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "presence",
		Name:      "monitor_cycle_errors_total",
		Help:      "Monitoring cycles that failed or panicked",
	})

	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "presence",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	WSConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "presence",
		Name:      "ws_connections",
		Help:      "Number of active WebSocket connections",
	})
)
