package notify

import (
	"context"

	"github.com/your-org/presence/internal/models"
)

// NotificationPublisher is satisfied by queue.Producer.
type NotificationPublisher interface {
	PublishNotification(ctx context.Context, a models.Alert) error
}

// NATSNotifier hands alerts to cmd/notifier through the NOTIFICATIONS stream.
type NATSNotifier struct {
	pub NotificationPublisher
}

func NewNATSNotifier(pub NotificationPublisher) *NATSNotifier {
	return &NATSNotifier{pub: pub}
}

func (n *NATSNotifier) Name() string { return "nats" }

func (n *NATSNotifier) Send(ctx context.Context, a models.Alert) error {
	return n.pub.PublishNotification(ctx, a)
}
