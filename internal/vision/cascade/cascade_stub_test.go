//go:build !opencv

package cascade

import (
	"errors"
	"image"
	"testing"

	"github.com/your-org/presence/internal/vision"
)

func TestNew_UnavailableWithoutOpenCV(t *testing.T) {
	d, err := New("haarcascade_frontalface_default.xml")
	if !errors.Is(err, ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
	if d != nil {
		t.Error("expected nil detector")
	}
}

func TestFallbackDetector_SkipsMissingCascade(t *testing.T) {
	f := vision.NewFallbackDetector(vision.Backend{
		Name: "cascade",
		New: func() (vision.Detector, error) {
			return New("haarcascade_frontalface_default.xml")
		},
	})
	defer f.Close()

	if !f.Degraded() {
		t.Error("expected degraded detector")
	}
	if names := f.Backends(); len(names) != 0 {
		t.Errorf("backends = %v, want none", names)
	}
	regions, err := f.Detect(image.NewRGBA(image.Rect(0, 0, 32, 32)))
	if err != nil || len(regions) != 0 {
		t.Errorf("Detect = %v, %v, want no regions and no error", regions, err)
	}
}
