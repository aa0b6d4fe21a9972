// Package stt defines the speech recognizer abstraction used by the utterance
// segmenter.
//
// A [Decoder] is fed fixed-size PCM chunks one at a time. After each chunk it
// reports whether the current speech segment has been finalized; when it has,
// [Decoder.Result] returns the recognised text for that segment and the
// decoder starts a new segment. Segment boundaries belong entirely to the
// decoder: the caller never splits or merges results.
//
// Decoders are single-owner. All calls come from the processing goroutine, so
// implementations need not be safe for concurrent use. Providers, which create
// decoders, must be.
package stt

import (
	"context"
	"errors"
)

// ErrClosed is returned by AcceptWaveform after Close.
var ErrClosed = errors.New("stt: decoder is closed")

// StreamConfig describes the audio format fed to a new decoder.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. It must match the capture source.
	SampleRate int

	// Channels is the number of interleaved channels; the receptionist uses 1.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g., "en").
	// Empty lets the provider pick its default.
	Language string
}

// Decoder consumes raw 16-bit little-endian PCM and decides segment boundaries.
type Decoder interface {
	// AcceptWaveform appends chunk to the current segment and reports whether
	// the segment is now finalized. A non-nil error means recognition of the
	// current segment failed; the segment is discarded and the decoder remains
	// usable for the next one.
	AcceptWaveform(ctx context.Context, chunk []byte) (bool, error)

	// Result returns the text of the most recently finalized segment. It may be
	// empty when the segment contained no intelligible speech.
	Result() string

	// Close releases the decoder's resources. Calling Close more than once is safe.
	Close() error
}

// Provider creates decoders for a single recognizer backend.
type Provider interface {
	// NewDecoder opens a decoder for the given audio format. The caller owns the
	// returned Decoder and must Close it.
	NewDecoder(ctx context.Context, cfg StreamConfig) (Decoder, error)
}
