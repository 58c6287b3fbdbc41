package models

import "time"

// Identity is a known person with a stored reference feature vector.
// The vector is never mutated in place; re-enrolling replaces it.
type Identity struct {
	ID          string    `json:"id" db:"id"`
	DisplayName string    `json:"name" db:"display_name"`
	Vector      []float32 `json:"features" db:"embedding"`
	ImageKey    string    `json:"image_key,omitempty" db:"image_key"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
	ProcessedAt time.Time `json:"processed_at" db:"processed_at"`
}

// Clone returns a deep copy so callers can't alias the stored vector.
func (i Identity) Clone() Identity {
	out := i
	if i.Vector != nil {
		out.Vector = make([]float32, len(i.Vector))
		copy(out.Vector, i.Vector)
	}
	return out
}
