// Package alert maintains the alert ledger: creation with deduplication and
// priority rules, resolution, and retention.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
)

var (
	ErrNotFound = errors.New("alert not found")
	ErrInvalid  = errors.New("invalid alert request")
)

// Action describes what an incoming event did to the ledger.
type Action int

const (
	ActionNone    Action = iota // event did not qualify
	ActionCreated               // new Active alert inserted
	ActionUpdated               // folded into an existing Active alert
)

func (a Action) String() string {
	switch a {
	case ActionCreated:
		return "created"
	case ActionUpdated:
		return "updated"
	}
	return "none"
}

// Result of a status transition.
type Result int

const (
	ResultUpdated Result = iota
	ResultNoop           // alert was already Resolved or Dismissed
)

func (r Result) String() string {
	if r == ResultNoop {
		return "noop"
	}
	return "updated"
}

type EventKind string

const (
	EventCreated   EventKind = "created"
	EventUpdated   EventKind = "updated"
	EventResolved  EventKind = "resolved"
	EventDismissed EventKind = "dismissed"
)

// Event is emitted to publishers after a committed ledger change.
type Event struct {
	Kind  EventKind    `json:"kind"`
	Alert models.Alert `json:"alert"`
}

// LedgerStore persists the full ledger. SaveAlerts receives the complete
// newest-first list and must replace whatever was stored before.
type LedgerStore interface {
	LoadAlerts(ctx context.Context) ([]models.Alert, error)
	SaveAlerts(ctx context.Context, alerts []models.Alert) error
}

// SettingsStore persists alert settings. ok is false when nothing was saved yet.
type SettingsStore interface {
	LoadSettings(ctx context.Context) (settings models.AlertSettings, ok bool, err error)
	SaveSettings(ctx context.Context, settings models.AlertSettings) error
}

// Notifier receives newly created alerts. Notify must not block.
type Notifier interface {
	Notify(a models.Alert)
}

// Publisher receives ledger events, e.g. for NATS or WebSocket fan-out.
type Publisher interface {
	PublishAlert(ctx context.Context, ev Event) error
}

// AbsenceEvent reports how long a faculty member has gone unseen.
type AbsenceEvent struct {
	FacultyName  string
	AbsenceHours float64
}

// Input is a free-text alert raised by an operator or by the system itself.
type Input struct {
	Type        models.AlertType
	Title       string
	Description string
}

// Filter selects alerts for List. Zero fields match everything.
type Filter struct {
	Status   models.AlertStatus
	Type     models.AlertType
	Priority models.Priority
	Limit    int
}

func (f Filter) match(a models.Alert) bool {
	if f.Status != "" && a.Status != f.Status {
		return false
	}
	if f.Type != "" && a.Type != f.Type {
		return false
	}
	if f.Priority != "" && a.Priority != f.Priority {
		return false
	}
	return true
}

// Engine owns the alert ledger. Every mutation works on a copy of the ledger,
// persists it, and only then replaces the in-memory state.
type Engine struct {
	mu            sync.RWMutex
	alerts        []models.Alert // newest first
	settings      models.AlertSettings
	store         LedgerStore
	settingsStore SettingsStore
	notifier      Notifier
	publishers    []Publisher
	now           func() time.Time
	newID         func() string
}

type Option func(*Engine)

func WithNotifier(n Notifier) Option {
	return func(e *Engine) { e.notifier = n }
}

// WithPublisher adds an event publisher; it may be given more than once.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publishers = append(e.publishers, p) }
}

func WithSettingsStore(s SettingsStore) Option {
	return func(e *Engine) { e.settingsStore = s }
}

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func NewEngine(store LedgerStore, settings models.AlertSettings, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		settings: cloneSettings(settings),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load reads the persisted ledger and, when available, persisted settings.
func (e *Engine) Load(ctx context.Context) error {
	alerts, err := e.store.LoadAlerts(ctx)
	if err != nil {
		return fmt.Errorf("load alerts: %w", err)
	}

	var (
		settings    models.AlertSettings
		hasSettings bool
	)
	if e.settingsStore != nil {
		settings, hasSettings, err = e.settingsStore.LoadSettings(ctx)
		if err != nil {
			return fmt.Errorf("load alert settings: %w", err)
		}
		if hasSettings {
			if err := ValidateSettings(settings); err != nil {
				slog.Warn("ignoring persisted alert settings", "error", err)
				hasSettings = false
			}
		}
	}

	e.mu.Lock()
	e.alerts = cloneAlerts(alerts)
	if hasSettings {
		e.settings = cloneSettings(settings)
	}
	active := countActive(e.alerts)
	e.mu.Unlock()

	observability.ActiveAlerts.Set(float64(active))
	slog.Info("alert ledger loaded", "alerts", len(alerts), "active", active)
	return nil
}

// HandleDetection raises an UnknownPerson alert for a confident, unmatched face.
// Recognized faces never raise alerts.
func (e *Engine) HandleDetection(ctx context.Context, d models.Detection) (models.Alert, Action, error) {
	if d.Recognized() {
		return models.Alert{}, ActionNone, nil
	}
	settings := e.Settings()
	if !settings.Enabled || d.DetectionConfidence < settings.DetectionConfidenceThreshold {
		return models.Alert{}, ActionNone, nil
	}
	if d.Camera == "" {
		return models.Alert{}, ActionNone, fmt.Errorf("%w: detection has no camera", ErrInvalid)
	}

	return e.raise(ctx, models.Alert{
		Type:     models.AlertTypeUnknownPerson,
		Title:    "Unknown Person Detected",
		Priority: unknownPersonPriority(d.MatchConfidence),
		Description: fmt.Sprintf("Unknown person detected at %s (detection confidence %.2f, best match %.2f)",
			d.Camera, d.DetectionConfidence, d.MatchConfidence),
		Camera:     d.Camera,
		Confidence: d.DetectionConfidence,
	})
}

// HandleAbsence raises an Absence alert once the absence reaches the alert threshold.
func (e *Engine) HandleAbsence(ctx context.Context, ev AbsenceEvent) (models.Alert, Action, error) {
	name := strings.TrimSpace(ev.FacultyName)
	if name == "" {
		return models.Alert{}, ActionNone, fmt.Errorf("%w: faculty name is required", ErrInvalid)
	}
	settings := e.Settings()
	if !settings.Enabled {
		return models.Alert{}, ActionNone, nil
	}
	priority, ok := absencePriority(ev.AbsenceHours, settings)
	if !ok {
		return models.Alert{}, ActionNone, nil
	}

	title := "Faculty Absence: " + name
	if priority == models.PriorityHigh {
		title = "Extended Absence: " + name
	}
	return e.raise(ctx, models.Alert{
		Type:        models.AlertTypeAbsence,
		Title:       title,
		Description: fmt.Sprintf("%s has not been detected for %.1f hours", name, ev.AbsenceHours),
		Priority:    priority,
		FacultyName: name,
	})
}

// HandlePresence resolves the Active absence alert for a faculty member who was seen again.
func (e *Engine) HandlePresence(ctx context.Context, facultyName string) (Result, error) {
	e.mu.RLock()
	i := findActive(e.alerts, models.AlertTypeAbsence, facultyName)
	var id string
	if i >= 0 {
		id = e.alerts[i].ID
	}
	e.mu.RUnlock()

	if id == "" {
		return ResultNoop, nil
	}
	res, err := e.transition(ctx, id, models.AlertStatusResolved)
	if errors.Is(err, ErrNotFound) {
		return ResultNoop, nil
	}
	return res, err
}

// Create raises a free-text SystemError or General alert, prioritised by keyword.
// Free-text alerts are raised even when automatic alerting is disabled.
func (e *Engine) Create(ctx context.Context, in Input) (models.Alert, Action, error) {
	if in.Type != models.AlertTypeSystemError && in.Type != models.AlertTypeGeneral {
		return models.Alert{}, ActionNone, fmt.Errorf("%w: type must be %s or %s",
			ErrInvalid, models.AlertTypeSystemError, models.AlertTypeGeneral)
	}
	title := strings.TrimSpace(in.Title)
	if title == "" {
		return models.Alert{}, ActionNone, fmt.Errorf("%w: title is required", ErrInvalid)
	}

	return e.raise(ctx, models.Alert{
		Type:        in.Type,
		Title:       title,
		Description: in.Description,
		Priority:    textPriority(title, in.Description),
	})
}

// raise inserts candidate or folds it into the Active alert with the same subject.
func (e *Engine) raise(ctx context.Context, candidate models.Alert) (models.Alert, Action, error) {
	e.mu.Lock()
	now := e.now()
	next := cloneAlerts(e.alerts)

	var (
		result models.Alert
		action Action
	)
	if i := findActive(next, candidate.Type, candidate.Subject()); i >= 0 {
		a := &next[i]
		a.Description = candidate.Description
		a.LastSeenAt = now
		a.Occurrences++
		if candidate.Type == models.AlertTypeUnknownPerson {
			a.Confidence = candidate.Confidence
		}
		// Escalate, never downgrade.
		if priorityRank(candidate.Priority) > priorityRank(a.Priority) {
			a.Priority = candidate.Priority
			a.Title = candidate.Title
		}
		result = *a
		action = ActionUpdated
	} else {
		candidate.ID = e.newID()
		candidate.Status = models.AlertStatusActive
		candidate.CreatedAt = now
		candidate.LastSeenAt = now
		candidate.Occurrences = 1
		next = append([]models.Alert{candidate}, next...)
		result = candidate
		action = ActionCreated
	}

	if err := e.store.SaveAlerts(ctx, next); err != nil {
		e.mu.Unlock()
		return models.Alert{}, ActionNone, fmt.Errorf("save alerts: %w", err)
	}
	e.alerts = next
	active := countActive(next)
	e.mu.Unlock()

	observability.ActiveAlerts.Set(float64(active))
	result = result.Clone()

	if action == ActionCreated {
		observability.AlertsCreated.WithLabelValues(string(result.Type)).Inc()
		slog.Info("alert created",
			"id", result.ID,
			"type", result.Type,
			"priority", result.Priority,
			"subject", result.Subject(),
		)
		if e.notifier != nil {
			e.notifier.Notify(result)
		}
		e.publish(ctx, EventCreated, result)
	} else {
		observability.AlertsSuppressed.WithLabelValues(string(result.Type)).Inc()
		slog.Debug("alert deduplicated", "id", result.ID, "occurrences", result.Occurrences)
		e.publish(ctx, EventUpdated, result)
	}
	return result, action, nil
}

// Resolve marks an Active alert Resolved. Already-terminal alerts yield ResultNoop.
func (e *Engine) Resolve(ctx context.Context, id string) (Result, error) {
	return e.transition(ctx, id, models.AlertStatusResolved)
}

// Dismiss marks an Active alert Dismissed. Already-terminal alerts yield ResultNoop.
func (e *Engine) Dismiss(ctx context.Context, id string) (Result, error) {
	return e.transition(ctx, id, models.AlertStatusDismissed)
}

func (e *Engine) transition(ctx context.Context, id string, status models.AlertStatus) (Result, error) {
	e.mu.Lock()
	i := indexOf(e.alerts, id)
	if i < 0 {
		e.mu.Unlock()
		return ResultNoop, ErrNotFound
	}
	if !e.alerts[i].Active() {
		e.mu.Unlock()
		return ResultNoop, nil
	}

	next := cloneAlerts(e.alerts)
	now := e.now()
	next[i].Status = status
	next[i].ResolvedAt = &now

	if err := e.store.SaveAlerts(ctx, next); err != nil {
		e.mu.Unlock()
		return ResultNoop, fmt.Errorf("save alerts: %w", err)
	}
	e.alerts = next
	updated := next[i].Clone()
	active := countActive(next)
	e.mu.Unlock()

	observability.ActiveAlerts.Set(float64(active))
	slog.Info("alert status changed", "id", id, "status", status)

	kind := EventResolved
	if status == models.AlertStatusDismissed {
		kind = EventDismissed
	}
	e.publish(ctx, kind, updated)
	return ResultUpdated, nil
}

// SetSnapshot records the object key of a face snapshot on an alert.
func (e *Engine) SetSnapshot(ctx context.Context, id, key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	i := indexOf(e.alerts, id)
	if i < 0 {
		return ErrNotFound
	}
	next := cloneAlerts(e.alerts)
	next[i].SnapshotKey = key
	if err := e.store.SaveAlerts(ctx, next); err != nil {
		return fmt.Errorf("save alerts: %w", err)
	}
	e.alerts = next
	return nil
}

// Cleanup removes Resolved and Dismissed alerts older than retentionDays.
// Active alerts are kept regardless of age.
func (e *Engine) Cleanup(ctx context.Context, retentionDays int) (int, error) {
	if retentionDays < 0 {
		return 0, fmt.Errorf("%w: retention days must not be negative", ErrInvalid)
	}
	maxAge := time.Duration(retentionDays) * 24 * time.Hour

	return e.removeWhere(ctx, func(a models.Alert, now time.Time) bool {
		return !a.Active() && now.Sub(a.CreatedAt) > maxAge
	})
}

// ClearResolved removes every Resolved alert; Dismissed and Active alerts stay.
func (e *Engine) ClearResolved(ctx context.Context) (int, error) {
	return e.removeWhere(ctx, func(a models.Alert, _ time.Time) bool {
		return a.Status == models.AlertStatusResolved
	})
}

func (e *Engine) removeWhere(ctx context.Context, drop func(a models.Alert, now time.Time) bool) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	now := e.now()
	next := make([]models.Alert, 0, len(e.alerts))
	for _, a := range e.alerts {
		if !drop(a, now) {
			next = append(next, a.Clone())
		}
	}
	removed := len(e.alerts) - len(next)
	if removed == 0 {
		return 0, nil
	}

	if err := e.store.SaveAlerts(ctx, next); err != nil {
		return 0, fmt.Errorf("save alerts: %w", err)
	}
	e.alerts = next
	slog.Info("alerts removed", "count", removed)
	return removed, nil
}

// List returns a point-in-time copy of the alerts matching f, newest first.
func (e *Engine) List(f Filter) []models.Alert {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]models.Alert, 0)
	for _, a := range e.alerts {
		if !f.match(a) {
			continue
		}
		out = append(out, a.Clone())
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out
}

func (e *Engine) Active() []models.Alert {
	return e.List(Filter{Status: models.AlertStatusActive})
}

func (e *Engine) Get(id string) (models.Alert, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	i := indexOf(e.alerts, id)
	if i < 0 {
		return models.Alert{}, ErrNotFound
	}
	return e.alerts[i].Clone(), nil
}

func (e *Engine) Stats() models.AlertStats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	stats := models.AlertStats{
		Total: len(e.alerts),
		PriorityCounts: map[models.Priority]int{
			models.PriorityHigh:   0,
			models.PriorityMedium: 0,
			models.PriorityLow:    0,
		},
		TypeCounts: make(map[models.AlertType]int),
	}
	for _, a := range e.alerts {
		switch a.Status {
		case models.AlertStatusActive:
			stats.Active++
		case models.AlertStatusResolved:
			stats.Resolved++
		case models.AlertStatusDismissed:
			stats.Dismissed++
		}
		stats.PriorityCounts[a.Priority]++
		stats.TypeCounts[a.Type]++
	}
	return stats
}

// Settings returns a copy of the current settings.
func (e *Engine) Settings() models.AlertSettings {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return cloneSettings(e.settings)
}

// UpdateSettings validates and replaces the settings as a whole.
func (e *Engine) UpdateSettings(ctx context.Context, s models.AlertSettings) error {
	if err := ValidateSettings(s); err != nil {
		return err
	}
	s = cloneSettings(s)

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.settingsStore != nil {
		if err := e.settingsStore.SaveSettings(ctx, s); err != nil {
			return fmt.Errorf("save alert settings: %w", err)
		}
	}
	e.settings = s
	slog.Info("alert settings updated",
		"enabled", s.Enabled,
		"absence_hours", s.AbsenceHours,
		"high_priority_hours", s.HighPriorityHours,
	)
	return nil
}

// ValidateSettings rejects thresholds the engine cannot apply.
func ValidateSettings(s models.AlertSettings) error {
	if s.AbsenceHours <= 0 {
		return fmt.Errorf("%w: absence_hours must be positive", ErrInvalid)
	}
	if s.HighPriorityHours < s.AbsenceHours {
		return fmt.Errorf("%w: high_priority_hours must be >= absence_hours", ErrInvalid)
	}
	if s.DetectionConfidenceThreshold < 0 || s.DetectionConfidenceThreshold > 1 {
		return fmt.Errorf("%w: detection_confidence_threshold must be within [0,1]", ErrInvalid)
	}
	if s.RetentionDays <= 0 {
		return fmt.Errorf("%w: retention_days must be positive", ErrInvalid)
	}
	return nil
}

func (e *Engine) publish(ctx context.Context, kind EventKind, a models.Alert) {
	for _, p := range e.publishers {
		if err := p.PublishAlert(ctx, Event{Kind: kind, Alert: a}); err != nil {
			slog.Warn("publish alert event", "error", err, "kind", kind, "id", a.ID)
		}
	}
}

func findActive(alerts []models.Alert, t models.AlertType, subject string) int {
	for i := range alerts {
		if alerts[i].Active() && alerts[i].Type == t && alerts[i].Subject() == subject {
			return i
		}
	}
	return -1
}

func indexOf(alerts []models.Alert, id string) int {
	for i := range alerts {
		if alerts[i].ID == id {
			return i
		}
	}
	return -1
}

func countActive(alerts []models.Alert) int {
	n := 0
	for i := range alerts {
		if alerts[i].Active() {
			n++
		}
	}
	return n
}

func cloneAlerts(alerts []models.Alert) []models.Alert {
	out := make([]models.Alert, len(alerts))
	for i, a := range alerts {
		out[i] = a.Clone()
	}
	return out
}

func cloneSettings(s models.AlertSettings) models.AlertSettings {
	if s.Recipients != nil {
		s.Recipients = append([]string(nil), s.Recipients...)
	}
	return s
}
