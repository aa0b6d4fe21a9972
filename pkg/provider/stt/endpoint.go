package stt

import (
	"encoding/binary"
	"math"
)

const (
	// DefaultRMSThreshold is the root-mean-square energy (in 16-bit PCM units)
	// below which a chunk counts as silence. 300 of a possible 32 767 is
	// near-silence on a typical headset mic.
	DefaultRMSThreshold = 300.0

	// DefaultSilenceMs is how much trailing silence closes a segment.
	DefaultSilenceMs = 500

	// DefaultMaxSegmentMs forces a segment boundary during continuous speech.
	DefaultMaxSegmentMs = 10_000
)

// Endpointer is an energy-based segment detector for batch recognizers that
// have no endpointing of their own (whisper.cpp over HTTP or in-process).
//
// Leading silence is dropped. Once a chunk above the threshold arrives, chunks
// accumulate until SilenceMs of consecutive quiet audio follows, or until the
// segment reaches MaxSegmentMs.
type Endpointer struct {
	SampleRate   int
	Channels     int
	Threshold    float64
	SilenceMs    int
	MaxSegmentMs int

	buffer    []byte
	hadSpeech bool
	silenceMs int
}

// NewEndpointer returns an Endpointer with default thresholds for the given format.
func NewEndpointer(sampleRate, channels int) *Endpointer {
	if sampleRate <= 0 {
		sampleRate = 16000
	}
	if channels <= 0 {
		channels = 1
	}
	return &Endpointer{
		SampleRate:   sampleRate,
		Channels:     channels,
		Threshold:    DefaultRMSThreshold,
		SilenceMs:    DefaultSilenceMs,
		MaxSegmentMs: DefaultMaxSegmentMs,
	}
}

// Push appends chunk and returns the completed segment PCM when a boundary is
// reached. The returned slice is owned by the caller.
func (e *Endpointer) Push(chunk []byte) (segment []byte, done bool) {
	if ComputeRMS(chunk) < e.Threshold {
		if !e.hadSpeech {
			return nil, false
		}
		e.silenceMs += ChunkDurationMs(chunk, e.SampleRate, e.Channels)
		e.buffer = append(e.buffer, chunk...)
		if e.silenceMs >= e.SilenceMs {
			return e.take(), true
		}
		return nil, false
	}

	e.hadSpeech = true
	e.silenceMs = 0
	e.buffer = append(e.buffer, chunk...)
	maxBytes := e.MaxSegmentMs * e.bytesPerMs()
	if maxBytes > 0 && len(e.buffer) >= maxBytes {
		return e.take(), true
	}
	return nil, false
}

// Flush returns any buffered speech and resets the detector.
func (e *Endpointer) Flush() []byte {
	if !e.hadSpeech {
		e.Reset()
		return nil
	}
	return e.take()
}

// Reset discards buffered audio.
func (e *Endpointer) Reset() {
	e.buffer = nil
	e.hadSpeech = false
	e.silenceMs = 0
}

func (e *Endpointer) take() []byte {
	seg := e.buffer
	e.Reset()
	return seg
}

func (e *Endpointer) bytesPerMs() int {
	n := e.SampleRate * e.Channels * 2 / 1000
	if n <= 0 {
		return 32
	}
	return n
}

// ComputeRMS returns the root-mean-square energy of a 16-bit signed
// little-endian PCM buffer. Returns 0 for buffers shorter than one sample.
func ComputeRMS(pcm []byte) float64 {
	n := len(pcm) / 2
	if n == 0 {
		return 0
	}
	var sum float64
	for i := 0; i < n; i++ {
		v := float64(int16(binary.LittleEndian.Uint16(pcm[i*2 : i*2+2])))
		sum += v * v
	}
	return math.Sqrt(sum / float64(n))
}

// ChunkDurationMs returns the duration of a 16-bit PCM chunk in milliseconds.
func ChunkDurationMs(chunk []byte, sampleRate, channels int) int {
	if sampleRate <= 0 || channels <= 0 {
		return 0
	}
	return len(chunk) * 1000 / (sampleRate * channels * 2)
}
