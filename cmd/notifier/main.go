package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/notify"
	"github.com/your-org/presence/internal/observability"
	"github.com/your-org/presence/internal/queue"
	"github.com/your-org/presence/internal/storage"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	workers := flag.Int("workers", 2, "concurrent email senders")
	metricsAddr := flag.String("metrics-addr", ":8082", "metrics listen address")
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

	if !cfg.NATS.Enabled {
		slog.Error("notifier requires nats to be enabled")
		os.Exit(1)
	}

	slog.Info("starting alert notifier", "nats", cfg.NATS.URL, "workers", *workers)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Streams are created here too so the notifier can start before the monitor.
	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer producer.Close()
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Error("ensure nats streams", "error", err)
		os.Exit(1)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		slog.Error("connect to nats", "error", err)
		os.Exit(1)
	}
	defer consumer.Close()

	// Recipients edited through the API live in the shared settings row.
	var emailOpts []notify.EmailOption
	if cfg.Storage.Backend == config.StorageBackendPostgres {
		db, err := storage.NewPostgresStore(cfg.Database)
		if err != nil {
			slog.Error("connect to postgres", "error", err)
			os.Exit(1)
		}
		defer db.Close()
		emailOpts = append(emailOpts, notify.WithRecipients(func() []string {
			lookupCtx, lookupCancel := context.WithTimeout(ctx, 5*time.Second)
			defer lookupCancel()
			settings, ok, err := db.LoadSettings(lookupCtx)
			if err != nil {
				slog.Warn("load alert settings", "error", err)
				return nil
			}
			if !ok {
				return nil
			}
			return settings.Recipients
		}))
	}
	email := notify.NewEmailNotifier(cfg.Notification, emailOpts...)

	err = consumer.ConsumeNotifications(ctx, "email-notifier", func(ctx context.Context, msg jetstream.Msg) error {
		var a models.Alert
		if err := json.Unmarshal(msg.Data(), &a); err != nil {
			slog.Error("unmarshal notification", "error", err)
			return nil // Don't retry on unmarshal errors
		}

		if err := email.Send(ctx, a); err != nil {
			observability.Notifications.WithLabelValues("failed").Inc()
			return fmt.Errorf("notify alert %s: %w", a.ID, err)
		}
		observability.Notifications.WithLabelValues("sent").Inc()
		return nil
	}, *workers)
	if err != nil {
		slog.Error("start notification consumer", "error", err)
		os.Exit(1)
	}

	err = consumer.ConsumeAlerts(ctx, "alert-audit", func(ctx context.Context, msg jetstream.Msg) error {
		var ev alert.Event
		if err := json.Unmarshal(msg.Data(), &ev); err != nil {
			slog.Error("unmarshal alert event", "error", err)
			return nil
		}
		slog.Info("alert event",
			"kind", ev.Kind,
			"id", ev.Alert.ID,
			"type", ev.Alert.Type,
			"priority", ev.Alert.Priority,
			"status", ev.Alert.Status,
		)
		return nil
	})
	if err != nil {
		slog.Error("start alert consumer", "error", err)
		os.Exit(1)
	}

	// Metrics endpoint
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			if err := producer.Ping(); err != nil {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"nats unavailable"}`))
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte(`{"status":"ok"}`))
		})
		slog.Info("notifier metrics listening", "addr", *metricsAddr)
		if err := http.ListenAndServe(*metricsAddr, mux); err != nil {
			slog.Error("metrics server error", "error", err)
		}
	}()

	// Wait for shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("shutting down notifier...")
	cancel()
	time.Sleep(2 * time.Second)
	slog.Info("notifier stopped")
}
