// Package mock provides in-memory implementations of [audio.Source] and
// [audio.Sink] for unit tests.
//
// Both mocks are safe for concurrent use and record what passes through them.
//
//	src := &mock.Source{Chunks: [][]byte{speech, silence}}
//	sink := &mock.Sink{}
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/frontdesk/pkg/audio"
)

var (
	_ audio.Source = (*Source)(nil)
	_ audio.Sink   = (*Sink)(nil)
)

// Source replays Chunks in order, then either returns RunErr or, when
// Block is set, waits for ctx to be cancelled.
type Source struct {
	Chunks [][]byte
	RunErr error
	Block  bool

	mu        sync.Mutex
	delivered int
}

// Run implements audio.Source.
func (s *Source) Run(ctx context.Context, fn func(chunk []byte)) error {
	for _, c := range s.Chunks {
		if ctx.Err() != nil {
			return nil
		}
		fn(append([]byte(nil), c...))
		s.mu.Lock()
		s.delivered++
		s.mu.Unlock()
	}
	if s.Block {
		<-ctx.Done()
		return nil
	}
	return s.RunErr
}

// Delivered returns the number of chunks passed to fn so far.
func (s *Source) Delivered() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.delivered
}

// Sink records every played utterance. PlayErr, when set, is returned from Play.
type Sink struct {
	PlayErr error

	mu     sync.Mutex
	played [][]byte
}

// Play implements audio.Sink.
func (s *Sink) Play(_ context.Context, wav []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.played = append(s.played, append([]byte(nil), wav...))
	return s.PlayErr
}

// Played returns copies of every WAV passed to Play.
func (s *Sink) Played() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.played...)
}
