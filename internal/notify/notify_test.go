package notify

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/wneessen/go-mail"

	"github.com/your-org/presence/internal/config"
	"github.com/your-org/presence/internal/models"
)

type recordingSender struct {
	mu      sync.Mutex
	got     []models.Alert
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *recordingSender) Name() string { return "recording" }

func (s *recordingSender) Send(ctx context.Context, a models.Alert) error {
	if s.started != nil {
		s.started <- struct{}{}
	}
	if s.release != nil {
		<-s.release
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, a)
	return s.err
}

func (s *recordingSender) ids() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for _, a := range s.got {
		out = append(out, a.ID)
	}
	return out
}

type panicSender struct{}

func (panicSender) Name() string                             { return "panic" }
func (panicSender) Send(context.Context, models.Alert) error { panic("boom") }

func TestDispatcher_DeliversToAllSenders(t *testing.T) {
	a := &recordingSender{}
	b := &recordingSender{err: errors.New("smtp down")}
	d := NewDispatcher(8, 2, panicSender{}, a, b)

	for _, id := range []string{"1", "2", "3"} {
		d.Notify(models.Alert{ID: id})
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if got := len(a.ids()); got != 3 {
		t.Errorf("sender a got %d alerts, want 3", got)
	}
	if got := len(b.ids()); got != 3 {
		t.Errorf("failing sender b got %d alerts, want 3", got)
	}
}

func TestDispatcher_NotifyNeverBlocks(t *testing.T) {
	s := &recordingSender{started: make(chan struct{}, 4), release: make(chan struct{})}
	d := NewDispatcher(1, 1, s)

	d.Notify(models.Alert{ID: "in-flight"})
	<-s.started

	d.Notify(models.Alert{ID: "queued"})

	done := make(chan struct{})
	go func() {
		d.Notify(models.Alert{ID: "dropped"})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Notify blocked on a full queue")
	}

	close(s.release)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := d.Close(ctx); err != nil {
		t.Fatalf("Close: %v", err)
	}

	got := strings.Join(s.ids(), ",")
	if got != "in-flight,queued" {
		t.Errorf("delivered = %s, want in-flight,queued", got)
	}
}

func TestDispatcher_NotifyAfterClose(t *testing.T) {
	s := &recordingSender{}
	d := NewDispatcher(4, 1, s)
	if err := d.Close(context.Background()); err != nil {
		t.Fatalf("Close: %v", err)
	}
	d.Notify(models.Alert{ID: "late"})
	if err := d.Close(context.Background()); err != nil {
		t.Errorf("second Close: %v", err)
	}
	if len(s.ids()) != 0 {
		t.Errorf("alert delivered after close: %v", s.ids())
	}
}

func TestDispatcher_CloseDeadline(t *testing.T) {
	s := &recordingSender{started: make(chan struct{}, 1), release: make(chan struct{})}
	d := NewDispatcher(4, 1, s)
	d.Notify(models.Alert{ID: "slow"})
	<-s.started

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- d.Close(ctx) }()

	time.Sleep(50 * time.Millisecond)
	close(s.release)

	if err := <-errCh; !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Close error = %v, want deadline exceeded", err)
	}
}

func TestEmailNotifier_SkipsWhenUnconfigured(t *testing.T) {
	dialed := false
	n := NewEmailNotifier(config.NotificationConfig{SMTPServer: "smtp.example.edu"},
		WithDialer(func(context.Context, *mail.Msg) error {
			dialed = true
			return nil
		}))

	for i := 0; i < 3; i++ {
		if err := n.Send(context.Background(), models.Alert{ID: "a"}); err != nil {
			t.Fatalf("Send: %v", err)
		}
	}
	if dialed {
		t.Error("dialed SMTP without credentials")
	}
}

func TestEmailNotifier_Send(t *testing.T) {
	var sent *mail.Msg
	cfg := config.NotificationConfig{
		SMTPServer: "smtp.example.edu",
		SMTPPort:   587,
		Username:   "monitor@example.edu",
		Password:   "secret",
		Recipients: []string{"fallback@example.edu"},
	}
	n := NewEmailNotifier(cfg,
		WithRecipients(func() []string { return []string{"dean@example.edu", "ops@example.edu"} }),
		WithDialer(func(_ context.Context, m *mail.Msg) error {
			sent = m
			return nil
		}))

	a := models.Alert{
		ID:          "a1",
		Type:        models.AlertTypeAbsence,
		Title:       "Extended Absence",
		Priority:    models.PriorityHigh,
		FacultyName: "Dr. Smith",
		CreatedAt:   time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
	if err := n.Send(context.Background(), a); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if sent == nil {
		t.Fatal("no message dialed")
	}

	rcpts, err := sent.GetRecipients()
	if err != nil {
		t.Fatalf("GetRecipients: %v", err)
	}
	if len(rcpts) != 2 {
		t.Errorf("recipients = %v, want settings recipients", rcpts)
	}
	if subj := sent.GetGenHeader(mail.HeaderSubject); len(subj) != 1 || subj[0] != "Faculty Monitoring Alert: Absence" {
		t.Errorf("subject = %v", subj)
	}
}

func TestEmailNotifier_DialError(t *testing.T) {
	n := NewEmailNotifier(config.NotificationConfig{
		SMTPServer: "smtp.example.edu", Username: "u@example.edu", Password: "p", Recipients: []string{"x@example.edu"},
	}, WithDialer(func(context.Context, *mail.Msg) error { return errors.New("connection refused") }))

	if err := n.Send(context.Background(), models.Alert{ID: "a"}); err == nil {
		t.Error("expected dial error")
	}
}

func TestBody(t *testing.T) {
	body := Body(models.Alert{
		Type:        models.AlertTypeUnknownPerson,
		Priority:    models.PriorityMedium,
		Title:       "Unknown Person Detected",
		Camera:      "Main Entrance",
		Occurrences: 4,
	})
	for _, want := range []string{"Type: UnknownPerson", "Priority: Medium", "Camera: Main Entrance", "Occurrences: 4"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

type fakePublisher struct{ got []models.Alert }

func (p *fakePublisher) PublishNotification(_ context.Context, a models.Alert) error {
	p.got = append(p.got, a)
	return nil
}

func TestNATSNotifier(t *testing.T) {
	p := &fakePublisher{}
	n := NewNATSNotifier(p)
	if err := n.Send(context.Background(), models.Alert{ID: "a"}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(p.got) != 1 || p.got[0].ID != "a" {
		t.Errorf("published = %+v", p.got)
	}
}
