package monitor

import (
	"sync"

	"github.com/your-org/presence/internal/models"
)

// DetectionLog is a fixed-size ring of the most recent detections.
type DetectionLog struct {
	mu      sync.Mutex
	entries []models.Detection
	next    int
	full    bool
}

func NewDetectionLog(size int) *DetectionLog {
	if size <= 0 {
		size = 50
	}
	return &DetectionLog{entries: make([]models.Detection, size)}
}

func (l *DetectionLog) Add(ds ...models.Detection) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, d := range ds {
		l.entries[l.next] = d
		l.next = (l.next + 1) % len(l.entries)
		if l.next == 0 {
			l.full = true
		}
	}
}

// Entries returns a copy, newest first.
func (l *DetectionLog) Entries() []models.Detection {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.lenLocked()
	out := make([]models.Detection, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}

func (l *DetectionLog) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lenLocked()
}

func (l *DetectionLog) Clear() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.entries)
	l.next = 0
	l.full = false
}

func (l *DetectionLog) lenLocked() int {
	if l.full {
		return len(l.entries)
	}
	return l.next
}
