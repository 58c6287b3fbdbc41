package models

import "time"

type PresenceStatus string

const (
	PresenceStatusPresent PresenceStatus = "present"
	PresenceStatusAbsent  PresenceStatus = "absent"
)

// Faculty is a roster entry. Name is the join key used by identities and alerts.
type Faculty struct {
	ID            int            `json:"id" db:"id"`
	Name          string         `json:"name" db:"name"`
	Department    string         `json:"department" db:"department"`
	Email         string         `json:"email,omitempty" db:"email"`
	Phone         string         `json:"phone,omitempty" db:"phone"`
	Status        PresenceStatus `json:"status" db:"status"`
	LastSeen      *time.Time     `json:"last_seen,omitempty" db:"last_seen"`
	ImageUploaded bool           `json:"image_uploaded" db:"image_uploaded"`
	CreatedAt     time.Time      `json:"created_at" db:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at" db:"updated_at"`
}

func (f Faculty) Clone() Faculty {
	out := f
	if f.LastSeen != nil {
		t := *f.LastSeen
		out.LastSeen = &t
	}
	return out
}
