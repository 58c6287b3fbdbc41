// Package notify delivers alerts to humans and other systems off the
// request path. Delivery results never feed back into the alert ledger.
package notify

import (
	"context"
	"log/slog"
	"sync"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
)

// Sender delivers a single alert through one channel.
type Sender interface {
	Name() string
	Send(ctx context.Context, a models.Alert) error
}

// Dispatcher fans alerts out to its senders from a bounded queue served by a
// fixed pool of workers. Notify never blocks the caller.
type Dispatcher struct {
	senders []Sender
	queue   chan models.Alert

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.RWMutex
	closed bool
}

func NewDispatcher(queueSize, workers int, senders ...Sender) *Dispatcher {
	if queueSize <= 0 {
		queueSize = 64
	}
	if workers <= 0 {
		workers = 1
	}

	ctx, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		senders: senders,
		queue:   make(chan models.Alert, queueSize),
		ctx:     ctx,
		cancel:  cancel,
	}

	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(i)
	}
	return d
}

// Notify enqueues a copy of a. When the queue is full or the dispatcher is
// closed the alert is dropped and counted.
func (d *Dispatcher) Notify(a models.Alert) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	if d.closed {
		observability.Notifications.WithLabelValues("dropped").Inc()
		return
	}

	select {
	case d.queue <- a.Clone():
	default:
		observability.Notifications.WithLabelValues("dropped").Inc()
		slog.Warn("notification queue full, dropping alert", "id", a.ID, "type", a.Type)
	}
}

// Close stops accepting alerts and waits for queued ones to be delivered.
// In-flight sends are cancelled once ctx is done.
func (d *Dispatcher) Close(ctx context.Context) error {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return nil
	}
	d.closed = true
	close(d.queue)
	d.mu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		d.cancel()
		return nil
	case <-ctx.Done():
		d.cancel()
		<-done
		return ctx.Err()
	}
}

func (d *Dispatcher) worker(id int) {
	defer d.wg.Done()
	for a := range d.queue {
		for _, s := range d.senders {
			if d.ctx.Err() != nil {
				observability.Notifications.WithLabelValues("dropped").Inc()
				continue
			}
			d.deliver(id, s, a)
		}
	}
}

func (d *Dispatcher) deliver(worker int, s Sender, a models.Alert) {
	defer func() {
		if r := recover(); r != nil {
			observability.Notifications.WithLabelValues("failed").Inc()
			slog.Error("notification sender panicked", "sender", s.Name(), "id", a.ID, "panic", r)
		}
	}()

	if err := s.Send(d.ctx, a); err != nil {
		observability.Notifications.WithLabelValues("failed").Inc()
		slog.Error("send notification", "sender", s.Name(), "worker", worker, "id", a.ID, "error", err)
		return
	}
	observability.Notifications.WithLabelValues("sent").Inc()
}
