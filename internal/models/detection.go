package models

import (
	"image"
	"time"
)

// BoundingBox is a face region in pixel coordinates of the source frame.
type BoundingBox struct {
	X int `json:"x"`
	Y int `json:"y"`
	W int `json:"w"`
	H int `json:"h"`
}

// Rect converts the box to an image.Rectangle.
func (b BoundingBox) Rect() image.Rectangle {
	return image.Rect(b.X, b.Y, b.X+b.W, b.Y+b.H)
}

func (b BoundingBox) Empty() bool {
	return b.W <= 0 || b.H <= 0
}

// BoxFromRect converts an image.Rectangle to a BoundingBox.
func BoxFromRect(r image.Rectangle) BoundingBox {
	r = r.Canon()
	return BoundingBox{X: r.Min.X, Y: r.Min.Y, W: r.Dx(), H: r.Dy()}
}

// Detection is one per-frame, per-face observation.
type Detection struct {
	Box                 BoundingBox `json:"bbox"`
	DetectionConfidence float32     `json:"detection_confidence"`
	IdentityID          *string     `json:"identity_id,omitempty"`
	DisplayName         string      `json:"name"`
	MatchConfidence     float32     `json:"match_confidence"`
	Camera              string      `json:"camera"`
	Timestamp           time.Time   `json:"timestamp"`
}

// UnknownName labels detections without a matched identity.
const UnknownName = "Unknown Person"

// Recognized reports whether the detection matched a known identity.
func (d Detection) Recognized() bool {
	return d.IdentityID != nil
}

// Label returns the display name, or UnknownName when unmatched.
func (d Detection) Label() string {
	if d.IdentityID == nil {
		return UnknownName
	}
	if d.DisplayName != "" {
		return d.DisplayName
	}
	return *d.IdentityID
}

// DetectionTask is published to NATS for downstream consumers of the detection stream.
type DetectionTask struct {
	Camera     string      `json:"camera"`
	Timestamp  time.Time   `json:"timestamp"`
	Detections []Detection `json:"detections"`
}
