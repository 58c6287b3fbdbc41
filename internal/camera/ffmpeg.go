package camera

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strconv"
	"sync"
	"time"
)

// Input types.
const (
	TypeRTSP   = "rtsp"
	TypeHTTP   = "http"
	TypeDevice = "device"
	TypeFile   = "file"
)

// FrameCallback is called for each extracted JPEG frame.
type FrameCallback func(frameData []byte) error

// Input describes what ffmpeg should read and how to sample it.
type Input struct {
	URL   string
	Type  string
	FPS   int
	Width int
}

// Args builds the ffmpeg command line for the input.
func (in Input) Args() []string {
	args := []string{
		"-hide_banner",
		"-loglevel", "warning",
	}

	switch in.Type {
	case TypeRTSP:
		args = append(args,
			"-rtsp_transport", "tcp",
			"-timeout", "5000000", // 5s socket timeout (microseconds)
		)
	case TypeHTTP:
		args = append(args,
			"-reconnect", "1",
			"-reconnect_streamed", "1",
			"-reconnect_delay_max", "5",
			"-timeout", "10000000", // 10s (microseconds)
		)
	case TypeDevice:
		args = append(args, "-f", "v4l2")
	case TypeFile:
		// Read at native rate and loop, so a recording behaves like a live feed.
		args = append(args, "-re", "-stream_loop", "-1")
	}

	args = append(args,
		"-i", in.URL,
		"-vf", fmt.Sprintf("fps=%d,scale=%d:-1", in.FPS, in.Width),
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-q:v", "5",
		"pipe:1",
	)
	return args
}

// FFmpegExtractor extracts JPEG frames from a video source using FFmpeg.
type FFmpegExtractor struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	cmd    *exec.Cmd
}

// Run starts FFmpeg and calls callback for each JPEG frame.
// It blocks until the context is cancelled or the stream ends.
func (f *FFmpegExtractor) Run(ctx context.Context, in Input, callback FrameCallback) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ffmpeg", in.Args()...)
	f.mu.Lock()
	f.cancel = cancel
	f.cmd = cmd
	f.mu.Unlock()

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("ffmpeg stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start ffmpeg: %w", err)
	}

	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
			slog.Warn("ffmpeg stderr", "output", scanner.Text())
		}
	}()

	if err := readJPEGFrames(ctx, stdout, callback); err != nil {
		_ = cmd.Wait()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("read frames: %w", err)
	}

	return cmd.Wait()
}

// Stop terminates the FFmpeg process.
func (f *FFmpegExtractor) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cancel != nil {
		f.cancel()
	}
	if f.cmd != nil && f.cmd.Process != nil {
		_ = f.cmd.Process.Kill()
	}
}

// maxFrameSize bounds a single JPEG frame.
const maxFrameSize = 10 * 1024 * 1024

// readJPEGFrames reads a stream of concatenated JPEG images.
// Tolerates initial EOF while ffmpeg is still connecting (up to 5 seconds).
func readJPEGFrames(ctx context.Context, r io.Reader, callback FrameCallback) error {
	reader := bufio.NewReaderSize(r, 512*1024)
	framesRead := 0
	const maxStartupRetries = 50 // 50 * 100ms = 5s max wait for first frame
	startupRetries := 0

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		err := findJPEGStart(reader)
		if err != nil {
			if errors.Is(err, io.EOF) {
				if framesRead == 0 && startupRetries < maxStartupRetries {
					startupRetries++
					time.Sleep(100 * time.Millisecond)
					continue
				}
				if framesRead > 0 {
					return nil
				}
				return fmt.Errorf("no frames received from ffmpeg (waited %.1fs)", float64(startupRetries)*0.1)
			}
			return err
		}

		frameData, err := readUntilJPEGEnd(reader)
		if err != nil {
			if errors.Is(err, io.EOF) && framesRead > 0 {
				return nil // stream ended mid-frame
			}
			return err
		}

		framesRead++
		if err := callback(frameData); err != nil {
			slog.Warn("frame callback error", "error", err)
		}
	}
}

// findJPEGStart consumes bytes up to and including the SOI marker FF D8.
func findJPEGStart(r *bufio.Reader) error {
	for {
		b, err := r.ReadByte()
		if err != nil {
			return err
		}
		if b != 0xFF {
			continue
		}
		b, err = r.ReadByte()
		if err != nil {
			return err
		}
		if b == 0xD8 {
			return nil
		}
		if b == 0xFF {
			_ = r.UnreadByte()
		}
	}
}

// readUntilJPEGEnd returns one frame, SOI through the EOI marker FF D9.
func readUntilJPEGEnd(r *bufio.Reader) ([]byte, error) {
	data := []byte{0xFF, 0xD8}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		data = append(data, b)

		if b == 0xFF {
			next, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			data = append(data, next)
			if next == 0xD9 {
				return data, nil
			}
		}

		if len(data) > maxFrameSize {
			return nil, fmt.Errorf("jpeg frame too large: %s bytes", strconv.Itoa(len(data)))
		}
	}
}
