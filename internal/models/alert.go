package models

import (
	"strings"
	"time"
)

type AlertType string

const (
	AlertTypeUnknownPerson AlertType = "UnknownPerson"
	AlertTypeAbsence       AlertType = "Absence"
	AlertTypeSystemError   AlertType = "SystemError"
	AlertTypeGeneral       AlertType = "General"
)

// Valid reports whether t is one of the known alert types.
func (t AlertType) Valid() bool {
	switch t {
	case AlertTypeUnknownPerson, AlertTypeAbsence, AlertTypeSystemError, AlertTypeGeneral:
		return true
	}
	return false
}

type Priority string

const (
	PriorityHigh   Priority = "High"
	PriorityMedium Priority = "Medium"
	PriorityLow    Priority = "Low"
)

func (p Priority) Valid() bool {
	return p == PriorityHigh || p == PriorityMedium || p == PriorityLow
}

type AlertStatus string

const (
	AlertStatusActive    AlertStatus = "Active"
	AlertStatusResolved  AlertStatus = "Resolved"
	AlertStatusDismissed AlertStatus = "Dismissed"
)

func (s AlertStatus) Valid() bool {
	return s == AlertStatusActive || s == AlertStatusResolved || s == AlertStatusDismissed
}

// Alert is a persisted, deduplicated notification of a qualifying condition.
type Alert struct {
	ID          string      `json:"id" db:"id"`
	Type        AlertType   `json:"type" db:"type"`
	Title       string      `json:"title" db:"title"`
	Description string      `json:"description" db:"description"`
	Priority    Priority    `json:"priority" db:"priority"`
	Status      AlertStatus `json:"status" db:"status"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
	LastSeenAt  time.Time   `json:"last_seen_at" db:"last_seen_at"`
	ResolvedAt  *time.Time  `json:"resolved_at,omitempty" db:"resolved_at"`
	Occurrences int         `json:"occurrences" db:"occurrences"`

	// Absence
	FacultyName string `json:"faculty_name,omitempty" db:"faculty_name"`
	// UnknownPerson
	Camera      string  `json:"camera,omitempty" db:"camera"`
	Confidence  float32 `json:"confidence,omitempty" db:"confidence"`
	SnapshotKey string  `json:"snapshot_key,omitempty" db:"snapshot_key"`
}

// Subject returns the entity an alert is deduplicated on.
func (a Alert) Subject() string {
	switch a.Type {
	case AlertTypeAbsence:
		return a.FacultyName
	case AlertTypeUnknownPerson:
		return a.Camera
	default:
		return strings.ToLower(strings.TrimSpace(a.Title))
	}
}

func (a Alert) Active() bool {
	return a.Status == AlertStatusActive
}

// Clone returns a copy that shares no pointers with a.
func (a Alert) Clone() Alert {
	out := a
	if a.ResolvedAt != nil {
		t := *a.ResolvedAt
		out.ResolvedAt = &t
	}
	return out
}

// AlertSettings governs alert thresholds and recipients. It is replaced as a whole,
// never mutated field by field.
type AlertSettings struct {
	Enabled                      bool     `json:"enabled" yaml:"enabled"`
	AbsenceHours                 float64  `json:"absence_hours" yaml:"absence_hours"`
	HighPriorityHours            float64  `json:"high_priority_hours" yaml:"high_priority_hours"`
	DetectionConfidenceThreshold float32  `json:"detection_confidence_threshold" yaml:"detection_confidence_threshold"`
	RetentionDays                int      `json:"retention_days" yaml:"retention_days"`
	Recipients                   []string `json:"recipients" yaml:"recipients"`
}

// AlertStats summarises the ledger.
type AlertStats struct {
	Total          int               `json:"total"`
	Active         int               `json:"active"`
	Resolved       int               `json:"resolved"`
	Dismissed      int               `json:"dismissed"`
	PriorityCounts map[Priority]int  `json:"priority_counts"`
	TypeCounts     map[AlertType]int `json:"type_counts"`
}
