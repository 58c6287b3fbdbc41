// Package camera captures frames from configured cameras into latest-frame slots.
package camera

import (
	"bytes"
	"fmt"
	"image"
	"image/jpeg"
	"sync"
	"time"

	"golang.org/x/image/draw"
)

// Source holds the most recent frame of one camera. Readers never wait for a
// new frame; they get whatever was published last, or nil.
type Source struct {
	name   string
	maxAge time.Duration
	now    func() time.Time

	mu      sync.RWMutex
	frame   *image.RGBA
	updated time.Time
}

// NewSource creates an empty source. Frames older than maxAge are treated as
// missing; zero disables the check.
func NewSource(name string, maxAge time.Duration) *Source {
	return &Source{name: name, maxAge: maxAge, now: time.Now}
}

func (s *Source) Name() string {
	return s.name
}

// Publish replaces the current frame.
func (s *Source) Publish(img image.Image) {
	if img == nil {
		return
	}
	frame := toRGBA(img)

	s.mu.Lock()
	s.frame = frame
	s.updated = s.now()
	s.mu.Unlock()
}

// PublishJPEG decodes a JPEG frame and publishes it.
func (s *Source) PublishJPEG(data []byte) error {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("decode frame: %w", err)
	}
	s.Publish(img)
	return nil
}

// GetCurrentFrame returns a copy of the latest frame, or nil when none is
// available or the latest one is stale.
func (s *Source) GetCurrentFrame() image.Image {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.frame == nil {
		return nil
	}
	if s.maxAge > 0 && s.now().Sub(s.updated) > s.maxAge {
		return nil
	}
	return cloneRGBA(s.frame)
}

// Updated returns when the last frame was published.
func (s *Source) Updated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updated
}

// Reset drops the current frame.
func (s *Source) Reset() {
	s.mu.Lock()
	s.frame = nil
	s.updated = time.Time{}
	s.mu.Unlock()
}

func toRGBA(img image.Image) *image.RGBA {
	if rgba, ok := img.(*image.RGBA); ok {
		return cloneRGBA(rgba)
	}
	b := img.Bounds()
	out := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(out, out.Bounds(), img, b.Min, draw.Src)
	return out
}

func cloneRGBA(src *image.RGBA) *image.RGBA {
	out := &image.RGBA{
		Pix:    make([]byte, len(src.Pix)),
		Stride: src.Stride,
		Rect:   src.Rect,
	}
	copy(out.Pix, src.Pix)
	return out
}
