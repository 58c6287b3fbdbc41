package vision

import (
	"fmt"
	"image"
	"time"

	"github.com/your-org/presence/internal/models"
	"github.com/your-org/presence/internal/observability"
)

// Pipeline composes a Detector and a Recognizer: frame in, labeled detections out.
// It holds no per-frame state, so one Pipeline serves every camera.
type Pipeline struct {
	detector   Detector
	recognizer *Recognizer
	now        func() time.Time
}

// Option customises a Pipeline.
type Option func(*Pipeline)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) { p.now = now }
}

func NewPipeline(detector Detector, recognizer *Recognizer, opts ...Option) *Pipeline {
	p := &Pipeline{
		detector:   detector,
		recognizer: recognizer,
		now:        time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Process detects and recognizes every face in img. A nil or empty frame,
// or a detector failure, yields no detections.
func (p *Pipeline) Process(img image.Image, camera string) []models.Detection {
	if emptyImage(img) {
		return nil
	}

	start := time.Now()
	regions, err := p.detector.Detect(img)
	observability.InferenceDuration.WithLabelValues("detect").Observe(time.Since(start).Seconds())
	if err != nil || len(regions) == 0 {
		return nil
	}
	observability.FacesDetected.WithLabelValues(camera).Add(float64(len(regions)))

	boxes := make([]models.BoundingBox, len(regions))
	for i, r := range regions {
		boxes[i] = r.Box
	}

	start = time.Now()
	matches := p.recognizer.Recognize(img, boxes)
	observability.InferenceDuration.WithLabelValues("recognize").Observe(time.Since(start).Seconds())

	ts := p.now()
	detections := make([]models.Detection, len(regions))
	for i, r := range regions {
		m := matches[i]
		detections[i] = models.Detection{
			Box:                 r.Box,
			DetectionConfidence: r.Confidence,
			IdentityID:          m.IdentityID,
			DisplayName:         m.DisplayName,
			MatchConfidence:     m.Confidence,
			Camera:              camera,
			Timestamp:           ts,
		}
		if m.IdentityID != nil {
			observability.FacesRecognized.WithLabelValues(camera).Inc()
		}
	}
	return detections
}

// EmbedImage extracts a reference vector from an enrollment image, using the
// highest-confidence face. It returns the vector and that face's detection confidence.
func (p *Pipeline) EmbedImage(data []byte) ([]float32, float32, error) {
	img, err := DecodeImage(data)
	if err != nil {
		return nil, 0, err
	}
	if emptyImage(img) {
		return nil, 0, ErrEmptyImage
	}

	regions, err := p.detector.Detect(img)
	if err != nil {
		return nil, 0, fmt.Errorf("detect: %w", err)
	}
	if len(regions) == 0 {
		return nil, 0, ErrNoFace
	}

	best := regions[0]
	for _, r := range regions[1:] {
		if r.Confidence > best.Confidence {
			best = r
		}
	}

	face := cropFace(img, best.Box)
	if face == nil {
		return nil, 0, ErrNoFace
	}
	vec, err := p.recognizer.embedder.Embed(face)
	if err != nil {
		return nil, 0, fmt.Errorf("embed: %w", err)
	}
	return vec, best.Confidence, nil
}

// Close releases native resources held by the detector and embedder.
func (p *Pipeline) Close() {
	if c, ok := p.detector.(closer); ok {
		c.Close()
	}
	if c, ok := p.recognizer.embedder.(closer); ok {
		c.Close()
	}
}
