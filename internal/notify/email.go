package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
)

type EmailOption func(*EmailNotifier)

// WithRecipients makes the notifier read recipients at send time, e.g. from
// the current alert settings. The configured list is used when fn returns none.
func WithRecipients(fn func() []string) EmailOption {
	return func(n *EmailNotifier) { n.recipients = fn }
}

// WithDialer replaces the SMTP transport, mainly for tests.
func WithDialer(fn func(ctx context.Context, msg *mail.Msg) error) EmailOption {
	return func(n *EmailNotifier) { n.dial = fn }
}

type EmailNotifier struct {
	cfg        config.NotificationConfig
	recipients func() []string
	dial       func(ctx context.Context, msg *mail.Msg) error

	warnOnce sync.Once
}

func NewEmailNotifier(cfg config.NotificationConfig, opts ...EmailOption) *EmailNotifier {
	n := &EmailNotifier{cfg: cfg}
	n.dial = n.dialSMTP
	for _, opt := range opts {
		opt(n)
	}
	return n
}

func (n *EmailNotifier) Name() string { return "email" }

// Send mails the alert. Missing configuration is not an error for the
// dispatcher: the alert is skipped and the condition logged once.
func (n *EmailNotifier) Send(ctx context.Context, a models.Alert) error {
	to := n.to()
	if n.cfg.SMTPServer == "" || n.cfg.Username == "" || n.cfg.Password == "" || len(to) == 0 {
		n.warnOnce.Do(func() {
			slog.Warn("email settings not configured, skipping email notifications")
		})
		return nil
	}

	msg, err := n.buildMessage(a, to)
	if err != nil {
		return err
	}
	if err := n.dial(ctx, msg); err != nil {
		return fmt.Errorf("send alert email: %w", err)
	}
	slog.Info("email alert sent", "id", a.ID, "type", a.Type, "recipients", len(to))
	return nil
}

func (n *EmailNotifier) to() []string {
	if n.recipients != nil {
		if r := n.recipients(); len(r) > 0 {
			return r
		}
	}
	return n.cfg.Recipients
}

func (n *EmailNotifier) buildMessage(a models.Alert, to []string) (*mail.Msg, error) {
	from := n.cfg.From
	if from == "" {
		from = n.cfg.Username
	}

	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", from, err)
	}
	if err := msg.To(to...); err != nil {
		return nil, fmt.Errorf("set recipients: %w", err)
	}
	msg.Subject(Subject(a))
	msg.SetBodyString(mail.TypeTextPlain, Body(a))
	return msg, nil
}

func (n *EmailNotifier) dialSMTP(ctx context.Context, msg *mail.Msg) error {
	client, err := mail.NewClient(n.cfg.SMTPServer,
		mail.WithPort(n.cfg.SMTPPort),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(n.cfg.Username),
		mail.WithPassword(n.cfg.Password),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(30*time.Second),
	)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	return client.DialAndSendWithContext(ctx, msg)
}

func Subject(a models.Alert) string {
	return fmt.Sprintf("Faculty Monitoring Alert: %s", a.Type)
}

func Body(a models.Alert) string {
	var b strings.Builder
	b.WriteString("Faculty Monitoring System Alert\n\n")
	fmt.Fprintf(&b, "Type: %s\n", a.Type)
	fmt.Fprintf(&b, "Priority: %s\n", a.Priority)
	fmt.Fprintf(&b, "Time: %s\n", a.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Title: %s\n", a.Title)
	if a.Description != "" {
		fmt.Fprintf(&b, "Message: %s\n", a.Description)
	}
	if a.FacultyName != "" {
		fmt.Fprintf(&b, "Faculty: %s\n", a.FacultyName)
	}
	if a.Camera != "" {
		fmt.Fprintf(&b, "Camera: %s\n", a.Camera)
	}
	if a.Occurrences > 1 {
		fmt.Fprintf(&b, "Occurrences: %d\n", a.Occurrences)
	}
	b.WriteString("\nThis is an automated alert from the Faculty Monitoring System.\n")
	return b.String()
}
