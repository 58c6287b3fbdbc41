package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/your-org/presence/internal/alert"
	"github.com/your-org/presence/internal/models"
)

const (
	DetectionsStreamName  = "DETECTIONS"
	DetectionsSubjectBase = "detections"

	AlertsStreamName  = "ALERTS"
	AlertsSubjectBase = "alerts"

	NotificationsStreamName  = "NOTIFICATIONS"
	NotificationsSubjectBase = "notifications"
)

type Producer struct {
	nc *nats.Conn
	js jetstream.JetStream
}

func NewProducer(natsURL string) (*Producer, error) {
	nc, err := connect(natsURL)
	if err != nil {
		return nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create jetstream context: %w", err)
	}

	return &Producer{nc: nc, js: js}, nil
}

func connect(natsURL string) (*nats.Conn, error) {
	nc, err := nats.Connect(natsURL,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("connect to nats: %w", err)
	}
	return nc, nil
}

func streamConfigs() []jetstream.StreamConfig {
	return []jetstream.StreamConfig{
		{
			Name:        DetectionsStreamName,
			Subjects:    []string{DetectionsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      time.Hour,
			MaxMsgs:     100000,
			Storage:     jetstream.FileStorage,
			Discard:     jetstream.DiscardOld,
			Description: "Per-frame detection results",
		},
		{
			Name:        AlertsStreamName,
			Subjects:    []string{AlertsSubjectBase + ".>"},
			Retention:   jetstream.LimitsPolicy,
			MaxAge:      7 * 24 * time.Hour,
			MaxMsgs:     1000000,
			Storage:     jetstream.FileStorage,
			Description: "Alert ledger changes",
		},
		{
			Name:        NotificationsStreamName,
			Subjects:    []string{NotificationsSubjectBase + ".>"},
			Retention:   jetstream.WorkQueuePolicy,
			MaxAge:      24 * time.Hour,
			Storage:     jetstream.FileStorage,
			Duplicates:  time.Minute,
			Description: "Alerts awaiting out-of-process delivery",
		},
	}
}

// EnsureStreams creates JetStream streams if they don't exist.
// Retries up to 30 times (1s apart) to handle NATS startup delay.
func (p *Producer) EnsureStreams(ctx context.Context) error {
	streams := streamConfigs()

	const maxAttempts = 30
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		allOK := true
		for _, cfg := range streams {
			opCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			_, err := p.js.CreateOrUpdateStream(opCtx, cfg)
			cancel()
			if err != nil {
				allOK = false
				if attempt == maxAttempts {
					return fmt.Errorf("create stream %s: %w (after %d attempts)", cfg.Name, err, maxAttempts)
				}
				slog.Warn("ensure NATS stream (retrying...)", "name", cfg.Name, "attempt", attempt, "error", err)
				break
			}
			slog.Info("ensured NATS stream", "name", cfg.Name)
		}
		if allOK {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(1 * time.Second):
		}
	}
	return nil
}

// PublishDetections publishes one frame's detections on detections.<camera>.
func (p *Producer) PublishDetections(ctx context.Context, task models.DetectionTask) error {
	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("marshal detections: %w", err)
	}

	if _, err := p.js.Publish(ctx, DetectionSubject(task.Camera), payload); err != nil {
		return fmt.Errorf("publish detections: %w", err)
	}
	return nil
}

// PublishAlert publishes a ledger change on alerts.<kind>.
func (p *Producer) PublishAlert(ctx context.Context, ev alert.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal alert event: %w", err)
	}

	if _, err := p.js.Publish(ctx, AlertSubject(ev.Kind), payload); err != nil {
		return fmt.Errorf("publish alert event: %w", err)
	}
	return nil
}

// PublishNotification hands an alert to an out-of-process notifier. The alert
// id and occurrence count form the dedup id, so a retried publish is dropped.
func (p *Producer) PublishNotification(ctx context.Context, a models.Alert) error {
	payload, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	msgID := fmt.Sprintf("%s-%d", a.ID, a.Occurrences)
	if _, err := p.js.Publish(ctx, NotificationSubject(a.Type), payload, jetstream.WithMsgID(msgID)); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

func (p *Producer) Ping() error {
	if !p.nc.IsConnected() {
		return fmt.Errorf("nats not connected")
	}
	return nil
}

func (p *Producer) Close() {
	p.nc.Close()
}

func DetectionSubject(camera string) string {
	return DetectionsSubjectBase + "." + subjectToken(camera)
}

func AlertSubject(kind alert.EventKind) string {
	return AlertsSubjectBase + "." + subjectToken(string(kind))
}

func NotificationSubject(t models.AlertType) string {
	return NotificationsSubjectBase + "." + subjectToken(string(t))
}

// subjectToken makes s safe for use as a single NATS subject token.
func subjectToken(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '.', '*', '>', '\t':
			return '_'
		}
		return r
	}, s)
}
