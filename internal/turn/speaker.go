package turn

import (
	"context"
	"fmt"

	"github.com/MrWong99/frontdesk/pkg/audio"
	"github.com/MrWong99/frontdesk/pkg/provider/tts"
)

// Speaker renders reply text and plays it back.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Voice is a [Speaker] built from a synthesizer and a playback sink.
type Voice struct {
	TTS  tts.Provider
	Sink audio.Sink
}

var _ Speaker = (*Voice)(nil)

// Speak synthesizes text and blocks until the sink finishes playing it.
func (v *Voice) Speak(ctx context.Context, text string) error {
	wav, err := v.TTS.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("turn: synthesize: %w", err)
	}
	if err := v.Sink.Play(ctx, wav); err != nil {
		return fmt.Errorf("turn: play: %w", err)
	}
	return nil
}
