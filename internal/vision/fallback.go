package vision

import (
	"image"
	"log/slog"

	"github.com/your-org/presence/internal/observability"
)

// Backend names a detector strategy and how to build it.
type Backend struct {
	Name string
	New  func() (Detector, error)
}

type namedDetector struct {
	name string
	det  Detector
}

// FallbackDetector tries an ordered list of detector backends. Backends that fail
// to construct are skipped and the detector is marked degraded; a backend that
// errors at runtime hands the frame to the next one. It never returns an error.
type FallbackDetector struct {
	backends []namedDetector
	degraded bool
}

// NewFallbackDetector builds every backend in order, keeping those that load.
func NewFallbackDetector(backends ...Backend) *FallbackDetector {
	f := &FallbackDetector{}
	for _, b := range backends {
		det, err := b.New()
		if err != nil {
			slog.Warn("detector backend unavailable", "backend", b.Name, "error", err)
			f.degraded = true
			continue
		}
		slog.Info("detector backend loaded", "backend", b.Name)
		f.backends = append(f.backends, namedDetector{name: b.Name, det: det})
	}

	if len(f.backends) == 0 {
		slog.Error("no detector backend available, detection disabled")
		f.degraded = true
	}
	if f.degraded {
		observability.DetectorDegraded.Set(1)
	} else {
		observability.DetectorDegraded.Set(0)
	}
	return f
}

// Detect returns the first successful backend's regions, or none.
func (f *FallbackDetector) Detect(img image.Image) ([]Region, error) {
	if emptyImage(img) {
		return nil, nil
	}
	for _, b := range f.backends {
		regions, err := b.det.Detect(img)
		if err != nil {
			slog.Warn("detector backend failed", "backend", b.name, "error", err)
			continue
		}
		return regions, nil
	}
	return nil, nil
}

// Degraded reports whether any configured backend failed to load.
func (f *FallbackDetector) Degraded() bool {
	return f.degraded
}

// Backends lists the names of the loaded backends in priority order.
func (f *FallbackDetector) Backends() []string {
	names := make([]string, len(f.backends))
	for i, b := range f.backends {
		names[i] = b.name
	}
	return names
}

func (f *FallbackDetector) Close() {
	for _, b := range f.backends {
		if c, ok := b.det.(closer); ok {
			c.Close()
		}
	}
}
