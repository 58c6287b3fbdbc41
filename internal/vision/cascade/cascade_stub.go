//go:build !opencv

package cascade

import (
	"image"

	"github.com/your-org/presence/internal/vision"
)

type Detector struct{}

// New reports ErrUnavailable; this build has no OpenCV.
func New(path string) (*Detector, error) {
	return nil, ErrUnavailable
}

func (d *Detector) Detect(img image.Image) ([]vision.Region, error) {
	return nil, ErrUnavailable
}

func (d *Detector) Close() {}
