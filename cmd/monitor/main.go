package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/api"
	"github.com/your-org/presence/internal/api/handlers"
	"github.com/your-org/presence/internal/api/ws"
	"github.com/your-org/presence/internal/camera"
	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/features"
	"github.com/your-org/presence/internal/monitor"
	"github.com/your-org/presence/internal/notify"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/roster"
	"github.com/your-org/presence/internal/storage"
	"github.com/your-org/presence/internal/vision"
	"github.com/your-org/presence/internal/vision/cascade"
)

// backend is the persistence every component writes through.
type backend interface {
	alert.LedgerStore
	alert.SettingsStore
	features.Repository
	roster.Repository
}

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "load .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	observability.SetupLogger(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("starting presence monitor",
		"port", cfg.Server.Port,
		"storage", cfg.Storage.Backend,
		"cameras", len(cfg.Cameras),
		"cpu_cores", runtime.NumCPU(),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Persistence
	var (
		store  backend
		checks []handlers.Check
	)
	switch cfg.Storage.Backend {
	case config.StorageBackendPostgres:
		db, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		if err := db.Migrate(ctx); err != nil {
			slog.Error("migrate postgres", "error", err)
			os.Exit(1)
		}
		store = db
		checks = append(checks, handlers.Check{Name: "postgres", Ping: db.Ping})
	default:
		fs, err := storage.NewFileStore(cfg.Storage.DataDir)
		if err != nil {
			slog.Error("open data dir", "error", err)
			os.Exit(1)
		}
		store = fs
	}

	// MinIO (optional)
	var minioStore *storage.MinIOStore
	if cfg.MinIO.Enabled {
		minioStore, err = storage.NewMinIOStore(cfg.MinIO)
		if err != nil {
			slog.Error("connect to minio", "error", err)
			os.Exit(1)
		}
		if err := minioStore.EnsureBucket(ctx); err != nil {
			slog.Warn("ensure minio bucket", "error", err)
		}
		checks = append(checks, handlers.Check{Name: "minio", Ping: minioStore.Ping})
	}

	// NATS (optional)
	var producer *queue.Producer
	if cfg.NATS.Enabled {
		producer, err = queue.NewProducer(cfg.NATS.URL)
		if err != nil {
			slog.Error("connect to nats", "error", err)
			os.Exit(1)
		}
		defer producer.Close()
		if err := producer.EnsureStreams(ctx); err != nil {
			slog.Warn("ensure nats streams", "error", err)
		}
		checks = append(checks, handlers.Check{Name: "nats", Ping: func(context.Context) error { return producer.Ping() }})
	}

	// Identities and roster
	gallery := features.NewStore(store)
	if err := gallery.Load(ctx); err != nil {
		slog.Error("load identities", "error", err)
		os.Exit(1)
	}
	faculty := roster.New(store)
	if err := faculty.Load(ctx); err != nil {
		slog.Error("load roster", "error", err)
		os.Exit(1)
	}
	slog.Info("gallery loaded", "identities", gallery.Len(), "faculty", len(faculty.ListIdentities()))

	// Vision
	onnxReady := initONNX()
	if onnxReady {
		defer ort.DestroyEnvironment()
	}
	detector := vision.NewFallbackDetector(detectorBackends(cfg.Vision, onnxReady)...)
	embedder, embedderName := newEmbedder(cfg.Vision, onnxReady)
	matchThreshold := cfg.Vision.MatchThresholdFor(embedderName)
	slog.Info("recognizer ready", "embedder", embedderName, "match_threshold", matchThreshold)
	recognizer := vision.NewRecognizer(embedder, gallery, float32(matchThreshold))
	pipeline := vision.NewPipeline(detector, recognizer)
	defer pipeline.Close()

	// Live feed
	hub := ws.NewHub()
	go hub.Run(ctx)

	// Notifications
	senders := []notify.Sender{}
	var engine *alert.Engine
	senders = append(senders, notify.NewEmailNotifier(cfg.Notification,
		notify.WithRecipients(func() []string { return engine.Settings().Recipients })))
	if cfg.Notification.PublishNATS && producer != nil {
		senders = append(senders, notify.NewNATSNotifier(producer))
	}
	dispatcher := notify.NewDispatcher(cfg.Notification.QueueSize, cfg.Notification.Workers, senders...)

	// Alert engine
	engineOpts := []alert.Option{
		alert.WithSettingsStore(store),
		alert.WithNotifier(dispatcher),
		alert.WithPublisher(hub),
	}
	if producer != nil {
		engineOpts = append(engineOpts, alert.WithPublisher(producer))
	}
	engine = alert.NewEngine(store, cfg.AlertSettings(), engineOpts...)
	if err := engine.Load(ctx); err != nil {
		slog.Error("load alert ledger", "error", err)
		os.Exit(1)
	}

	// Cameras and monitoring worker
	cameras := camera.NewManager(cfg.Cameras, 5*cfg.Monitor.PollInterval)
	sources := make([]monitor.FrameSource, 0, len(cfg.Cameras))
	for _, s := range cameras.Sources() {
		sources = append(sources, s)
	}

	monOpts := []monitor.Option{
		monitor.WithCameras(cameras),
		monitor.WithDetectionPublisher(hub),
	}
	if producer != nil {
		monOpts = append(monOpts, monitor.WithDetectionPublisher(producer))
	}
	if minioStore != nil {
		monOpts = append(monOpts, monitor.WithSnapshotStore(minioStore))
	}
	mon := monitor.New(cfg.Monitor, sources, pipeline, engine, faculty, monOpts...)

	housekeeper, err := monitor.NewHousekeeper(mon, cfg.Monitor.AbsenceCheckInterval, cfg.Monitor.CleanupInterval)
	if err != nil {
		slog.Error("create housekeeping scheduler", "error", err)
		os.Exit(1)
	}
	housekeeper.Start()

	if cfg.Monitor.AutoStart {
		if err := mon.Start(ctx); err != nil {
			slog.Error("start monitoring", "error", err)
		}
	}

	// HTTP API
	gin.SetMode(gin.ReleaseMode)
	routerCfg := api.RouterConfig{
		APIKey:   cfg.Server.APIKey,
		Engine:   engine,
		Features: gallery,
		Roster:   faculty,
		Monitor:  mon,
		Cameras:  cameras,
		Hub:      hub,
		Checks:   checks,
		EmbedFn:  pipeline.EmbedImage,
	}
	if minioStore != nil {
		routerCfg.Images = minioStore
	}
	router := api.NewRouter(routerCfg)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("API server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down presence monitor...")

	if mon.Running() {
		if err := mon.Stop(); err != nil {
			slog.Warn("stop monitoring", "error", err)
		}
	}
	housekeeper.Stop()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	if err := dispatcher.Close(shutdownCtx); err != nil {
		slog.Warn("notifications not fully drained", "error", err)
	}
	cancel()

	slog.Info("presence monitor stopped")
}

func initONNX() bool {
	ort.SetSharedLibraryPath(getONNXLibPath())
	if err := ort.InitializeEnvironment(); err != nil {
		slog.Warn("onnx runtime init failed, ONNX backends unavailable", "error", err)
		return false
	}
	return true
}

// detectorBackends lists the configured detector first and the other one as fallback.
func detectorBackends(cfg config.VisionConfig, onnxReady bool) []vision.Backend {
	retina := vision.Backend{
		Name: config.DetectorRetinaFace,
		New: func() (vision.Detector, error) {
			if !onnxReady {
				return nil, errors.New("onnx runtime not initialized")
			}
			return vision.NewRetinaFaceDetector(filepath.Join(cfg.ModelsDir, "det_10g.onnx"),
				float32(cfg.DetectionThreshold), float32(cfg.NMSThreshold), nil)
		},
	}
	haar := vision.Backend{
		Name: config.DetectorCascade,
		New: func() (vision.Detector, error) {
			return cascade.New(cfg.CascadeFile)
		},
	}

	if cfg.Detector == config.DetectorCascade {
		return []vision.Backend{haar, retina}
	}
	return []vision.Backend{retina, haar}
}

// newEmbedder builds the configured embedder, falling back to histogram
// features when the ArcFace model cannot be loaded. It also returns the name
// of the embedder in use so the matching threshold follows its feature space.
func newEmbedder(cfg config.VisionConfig, onnxReady bool) (vision.Embedder, string) {
	if cfg.Embedder == config.EmbedderArcFace {
		if onnxReady {
			emb, err := vision.NewArcFaceEmbedder(filepath.Join(cfg.ModelsDir, "w600k_r50.onnx"), nil)
			if err == nil {
				slog.Info("embedder loaded", "embedder", config.EmbedderArcFace, "dim", emb.Dim())
				return emb, config.EmbedderArcFace
			}
			slog.Warn("arcface embedder unavailable, using histogram features", "error", err)
		} else {
			slog.Warn("arcface embedder needs onnx runtime, using histogram features")
		}
	}
	return vision.NewHistogramEmbedder(), config.EmbedderHistogram
}

// getONNXLibPath returns the ONNX Runtime shared library path.
func getONNXLibPath() string {
	if p := os.Getenv("ONNXRUNTIME_LIB"); p != "" {
		return p
	}
	switch runtime.GOOS {
	case "windows":
		return "onnxruntime.dll"
	case "darwin":
		return "libonnxruntime.dylib"
	default:
		return "libonnxruntime.so"
	}
}
