package audio

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"sync"
)

// Sink plays a complete synthesized utterance. Play blocks until playback
// finishes or ctx is done.
type Sink interface {
	Play(ctx context.Context, wav []byte) error
}

// FFplaySink plays WAV audio by piping it into an ffplay subprocess.
type FFplaySink struct {
	// Binary is the ffplay executable. Defaults to "ffplay".
	Binary string
}

var _ Sink = (*FFplaySink)(nil)

// Args returns the ffplay command-line; the WAV is read from stdin.
func (s *FFplaySink) Args() []string {
	return []string{"-hide_banner", "-loglevel", "error", "-nodisp", "-autoexit", "-i", "pipe:0"}
}

// Play implements Sink.
func (s *FFplaySink) Play(ctx context.Context, wav []byte) error {
	if len(wav) == 0 {
		return nil
	}
	bin := orDefault(s.Binary, "ffplay")
	cmd := exec.CommandContext(ctx, bin, s.Args()...)
	cmd.Stdin = bytes.NewReader(wav)
	var stderr tailBuffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("audio: ffplay: %w: %s", err, stderr.String())
	}
	return nil
}

// WriterSink writes each utterance's WAV bytes to W. Useful for recording
// replies to a file or piping them to another process.
type WriterSink struct {
	mu sync.Mutex
	W  io.Writer
}

var _ Sink = (*WriterSink)(nil)

// Play implements Sink.
func (s *WriterSink) Play(_ context.Context, wav []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.W.Write(wav); err != nil {
		return fmt.Errorf("audio: write utterance: %w", err)
	}
	return nil
}

// DiscardSink drops all audio. It is used when playback is disabled.
type DiscardSink struct{}

// Play implements Sink.
func (DiscardSink) Play(context.Context, []byte) error { return nil }
