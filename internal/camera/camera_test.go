package camera

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/presence/internal/config"
)

func jpegFrame(t *testing.T, c color.RGBA) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for y := 0; y < 8; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, nil); err != nil {
		t.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

func TestReadJPEGFrames(t *testing.T) {
	var stream []byte
	stream = append(stream, 0x00, 0x12) // leading garbage
	stream = append(stream, 0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9)
	stream = append(stream, 0xFF, 0xFF, 0xD8, 0x03, 0xFF, 0xD9)

	var frames [][]byte
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(b []byte) error {
		frames = append(frames, b)
		return nil
	})
	if err != nil {
		t.Fatalf("readJPEGFrames: %v", err)
	}
	if len(frames) != 2 {
		t.Fatalf("frames = %d, want 2", len(frames))
	}
	if !bytes.Equal(frames[0], []byte{0xFF, 0xD8, 0x01, 0x02, 0xFF, 0xD9}) {
		t.Errorf("frame[0] = %x", frames[0])
	}
	if !bytes.Equal(frames[1], []byte{0xFF, 0xD8, 0x03, 0xFF, 0xD9}) {
		t.Errorf("frame[1] = %x", frames[1])
	}
}

func TestReadJPEGFrames_CallbackErrorIsNotFatal(t *testing.T) {
	stream := []byte{0xFF, 0xD8, 0x01, 0xFF, 0xD9, 0xFF, 0xD8, 0x02, 0xFF, 0xD9}
	calls := 0
	err := readJPEGFrames(context.Background(), bytes.NewReader(stream), func(b []byte) error {
		calls++
		return errors.New("bad frame")
	})
	if err != nil || calls != 2 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}

func TestReadJPEGFrames_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := readJPEGFrames(ctx, bytes.NewReader(nil), func([]byte) error { return nil })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestInputArgs(t *testing.T) {
	tests := []struct {
		typ  string
		want string
	}{
		{TypeRTSP, "-rtsp_transport tcp"},
		{TypeHTTP, "-reconnect 1"},
		{TypeDevice, "-f v4l2"},
		{TypeFile, "-stream_loop -1"},
	}
	for _, tt := range tests {
		t.Run(tt.typ, func(t *testing.T) {
			args := strings.Join(Input{URL: "src", Type: tt.typ, FPS: 5, Width: 640}.Args(), " ")
			if !strings.Contains(args, tt.want) {
				t.Errorf("args %q missing %q", args, tt.want)
			}
			if !strings.Contains(args, "-i src -vf fps=5,scale=640:-1") {
				t.Errorf("args %q missing input/filter", args)
			}
		})
	}
}

func TestSource_DefensiveCopy(t *testing.T) {
	s := NewSource("lobby", 0)
	if s.GetCurrentFrame() != nil {
		t.Fatal("expected nil before first frame")
	}

	if err := s.PublishJPEG(jpegFrame(t, color.RGBA{R: 200, A: 255})); err != nil {
		t.Fatalf("PublishJPEG: %v", err)
	}

	a := s.GetCurrentFrame().(*image.RGBA)
	a.SetRGBA(0, 0, color.RGBA{B: 255, A: 255})

	b := s.GetCurrentFrame().(*image.RGBA)
	if b.RGBAAt(0, 0).B == 255 {
		t.Error("frame returned by GetCurrentFrame aliases the stored frame")
	}

	if err := s.PublishJPEG([]byte("garbage")); err == nil {
		t.Error("expected decode error")
	}
}

func TestSource_Stale(t *testing.T) {
	s := NewSource("lobby", time.Second)
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.Publish(image.NewRGBA(image.Rect(0, 0, 4, 4)))
	if s.GetCurrentFrame() == nil {
		t.Fatal("expected fresh frame")
	}

	now = now.Add(2 * time.Second)
	if s.GetCurrentFrame() != nil {
		t.Error("expected stale frame to be reported missing")
	}

	s.Reset()
	if !s.Updated().IsZero() {
		t.Error("expected reset timestamp")
	}
}

type fakeExtractor struct {
	frame []byte
	err   error
	runs  *atomic.Int32
}

func (f *fakeExtractor) Run(ctx context.Context, in Input, callback FrameCallback) error {
	f.runs.Add(1)
	if f.err != nil {
		return f.err
	}
	_ = callback(f.frame)
	<-ctx.Done()
	return nil
}

func (f *fakeExtractor) Stop() {}

func TestManager_StartStop(t *testing.T) {
	frame := jpegFrame(t, color.RGBA{G: 180, A: 255})
	runs := &atomic.Int32{}

	m := NewManager([]config.CameraConfig{{Name: "Main Entrance", URL: "rtsp://x", Type: TypeRTSP, FPS: 5, Width: 640}}, 0)
	m.newExtractor = func() extractor { return &fakeExtractor{frame: frame, runs: runs} }

	m.StartAll(context.Background())
	m.StartAll(context.Background()) // already running

	src := m.Sources()[0]
	deadline := time.Now().Add(2 * time.Second)
	for src.GetCurrentFrame() == nil && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if src.GetCurrentFrame() == nil {
		t.Fatal("no frame published")
	}
	if st := m.Status(); len(st) != 1 || st[0].Status != StatusRunning {
		t.Errorf("status = %+v, want running", st)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}
	if st := m.Status(); st[0].Status != StatusStopped {
		t.Errorf("status = %s, want stopped", st[0].Status)
	}
	if src.GetCurrentFrame() != nil {
		t.Error("frame still available after stop")
	}
	if runs.Load() != 1 {
		t.Errorf("runs = %d, want 1", runs.Load())
	}
}

func TestManager_RetriesThenErrors(t *testing.T) {
	runs := &atomic.Int32{}
	m := NewManager([]config.CameraConfig{{Name: "Lab", URL: "/dev/video0", Type: TypeDevice, FPS: 5, Width: 640}}, 0)
	m.newExtractor = func() extractor { return &fakeExtractor{err: errors.New("no device"), runs: runs} }
	m.retryDelay = func(int) time.Duration { return time.Millisecond }

	m.StartAll(context.Background())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := m.StopAll(ctx); err != nil {
		t.Fatalf("StopAll: %v", err)
	}

	// StopAll cancels retries; start again and wait for exhaustion instead.
	runs.Store(0)
	m.StartAll(context.Background())
	deadline := time.Now().Add(2 * time.Second)
	for m.Status()[0].Status != StatusError && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if st := m.Status()[0]; st.Status != StatusError {
		t.Fatalf("status = %+v, want error", st)
	}
	if runs.Load() != maxRetries+1 {
		t.Errorf("runs = %d, want %d", runs.Load(), maxRetries+1)
	}
}
