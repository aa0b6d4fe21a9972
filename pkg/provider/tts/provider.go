// Package tts defines the Provider interface for text-to-speech backends.
//
// The receptionist speaks one complete reply per turn, so synthesis is a single
// request: text in, a playable WAV file out. Playback belongs to an
// [audio.Sink]; providers never touch the audio device.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// Synthesize renders text as a complete RIFF/WAV file. A non-2xx response
	// from a remote service is returned as an error that includes the status
	// code; the caller logs it and moves on to the next turn.
	Synthesize(ctx context.Context, text string) ([]byte, error)
}
