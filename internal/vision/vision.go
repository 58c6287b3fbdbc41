// Package vision turns camera frames into labeled, confidence-scored face detections.
//
// Detection and feature extraction are strategies behind the Detector and Embedder
// interfaces; the backend is chosen at construction time, never per call.
package vision

import (
	"errors"
	"image"

	"github.com/your-org/presence/internal/models"
)

var (
	// ErrNoFace is returned by enrollment helpers when an image contains no detectable face.
	ErrNoFace = errors.New("no face detected in image")
	// ErrEmptyImage is returned for nil or zero-area images.
	ErrEmptyImage = errors.New("empty image")
)

// Region is a candidate face region with its detection confidence in [0,1].
type Region struct {
	Box        models.BoundingBox
	Confidence float32
}

// Detector finds candidate face regions in a frame.
// An empty result (not an error) means no faces were found.
type Detector interface {
	Detect(img image.Image) ([]Region, error)
}

// Embedder converts a face crop into a fixed-length feature vector.
type Embedder interface {
	Embed(face image.Image) ([]float32, error)
	Dim() int
}

// Gallery provides a point-in-time copy of the known identities.
type Gallery interface {
	Snapshot() []models.Identity
}

// closer is implemented by backends holding native resources.
type closer interface {
	Close()
}
