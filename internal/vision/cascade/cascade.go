//go:build opencv

package cascade

import (
	"fmt"
	"image"
	"sync"

	"gocv.io/x/gocv"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/vision"
)

const (
	scaleFactor  = 1.1
	minNeighbors = 5
	minFaceSize  = 30
)

// Detector wraps a gocv.CascadeClassifier. The classifier is not safe for
// concurrent use, so calls are serialized.
type Detector struct {
	mu         sync.Mutex
	classifier gocv.CascadeClassifier
}

// New loads the cascade XML file (e.g. haarcascade_frontalface_default.xml).
func New(path string) (*Detector, error) {
	classifier := gocv.NewCascadeClassifier()
	if !classifier.Load(path) {
		classifier.Close()
		return nil, fmt.Errorf("load cascade classifier %q", path)
	}
	return &Detector{classifier: classifier}, nil
}

// Detect runs multi-scale detection on the grayscale frame.
func (d *Detector) Detect(img image.Image) ([]vision.Region, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, nil
	}

	mat, err := gocv.ImageToMatRGB(img)
	if err != nil {
		return nil, fmt.Errorf("convert frame: %w", err)
	}
	defer mat.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(mat, &gray, gocv.ColorBGRToGray)
	gocv.EqualizeHist(gray, &gray)

	d.mu.Lock()
	rects := d.classifier.DetectMultiScaleWithParams(gray, scaleFactor, minNeighbors, 0,
		image.Pt(minFaceSize, minFaceSize), image.Pt(0, 0))
	d.mu.Unlock()

	offset := img.Bounds().Min
	regions := make([]vision.Region, 0, len(rects))
	for _, r := range rects {
		regions = append(regions, vision.Region{
			Box:        models.BoxFromRect(r.Add(offset)),
			Confidence: Confidence,
		})
	}
	return regions, nil
}

func (d *Detector) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.classifier.Close()
}
