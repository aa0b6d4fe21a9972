package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"runtime"
	"strconv"
	"sync"
)

const (
	// DefaultSampleRate is the capture rate expected by the recognizers.
	DefaultSampleRate = 16000

	// DefaultBlockFrames is the number of mono frames delivered per callback
	// (0.5 s at 16 kHz).
	DefaultBlockFrames = 8000
)

// Source delivers fixed-size PCM chunks from a capture device.
//
// Run calls fn once per chunk on the capture goroutine until the stream ends
// or ctx is done. fn must return quickly and must not block; the typical fn is
// [ChunkQueue.Push]. Each chunk passed to fn is a fresh slice owned by fn.
// Run returns nil when the stream ends normally or ctx is cancelled.
type Source interface {
	Run(ctx context.Context, fn func(chunk []byte)) error
}

// ReaderSource reads 16-bit PCM from R in blocks of BlockBytes.
// A short trailing block at end of stream is delivered as-is.
type ReaderSource struct {
	R          io.Reader
	BlockBytes int
}

var _ Source = (*ReaderSource)(nil)

// NewReaderSource returns a ReaderSource delivering blockFrames mono 16-bit frames per chunk.
func NewReaderSource(r io.Reader, blockFrames int) *ReaderSource {
	if blockFrames <= 0 {
		blockFrames = DefaultBlockFrames
	}
	return &ReaderSource{R: r, BlockBytes: blockFrames * 2}
}

// Run implements Source.
func (s *ReaderSource) Run(ctx context.Context, fn func(chunk []byte)) error {
	size := s.BlockBytes
	if size <= 0 {
		size = DefaultBlockFrames * 2
	}
	for {
		if ctx.Err() != nil {
			return nil
		}
		buf := make([]byte, size)
		n, err := io.ReadFull(s.R, buf)
		if n > 0 {
			fn(buf[:n])
		}
		switch {
		case err == nil:
		case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF):
			return nil
		default:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("audio: read capture stream: %w", err)
		}
	}
}

// FFmpegSource captures the default microphone through an ffmpeg subprocess
// that resamples to mono s16le at SampleRate.
type FFmpegSource struct {
	// Binary is the ffmpeg executable. Defaults to "ffmpeg".
	Binary string

	// Device overrides the platform input device ("default" on PulseAudio,
	// ":0" on AVFoundation).
	Device string

	SampleRate  int
	BlockFrames int
}

var _ Source = (*FFmpegSource)(nil)

// Args returns the ffmpeg command-line for goos.
func (s *FFmpegSource) Args(goos string) ([]string, error) {
	rate := s.SampleRate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	var input []string
	switch goos {
	case "darwin":
		input = []string{"-f", "avfoundation", "-i", orDefault(s.Device, ":0")}
	case "linux":
		input = []string{"-f", "pulse", "-i", orDefault(s.Device, "default")}
	default:
		return nil, fmt.Errorf("audio: microphone capture is not implemented for %s; supported platforms: darwin, linux", goos)
	}
	args := []string{"-hide_banner", "-loglevel", "error"}
	args = append(args, input...)
	args = append(args, "-ac", "1", "-ar", strconv.Itoa(rate), "-f", "s16le", "-")
	return args, nil
}

// Run implements Source. The ffmpeg process is killed when ctx is done.
func (s *FFmpegSource) Run(ctx context.Context, fn func(chunk []byte)) error {
	bin := orDefault(s.Binary, "ffmpeg")
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("audio: %s is required for microphone capture: %w", bin, err)
	}
	args, err := s.Args(runtime.GOOS)
	if err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("audio: open ffmpeg stdout: %w", err)
	}
	var stderr tailBuffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("audio: start ffmpeg capture: %w", err)
	}

	readErr := NewReaderSource(stdout, s.BlockFrames).Run(ctx, fn)
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return nil
	}
	if readErr != nil {
		return readErr
	}
	if waitErr != nil {
		return fmt.Errorf("audio: ffmpeg exited: %w: %s", waitErr, stderr.String())
	}
	return nil
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

// tailBuffer keeps the last 4 KiB written to it.
type tailBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (t *tailBuffer) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.buf.Write(p)
	if over := t.buf.Len() - 4096; over > 0 {
		t.buf.Next(over)
	}
	return len(p), nil
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return string(bytes.TrimSpace(t.buf.Bytes()))
}
