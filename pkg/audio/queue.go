// Package audio provides the PCM plumbing between the capture device, the
// processing loop, and the playback device.
//
// The [ChunkQueue] is the only value shared between the capture goroutine and
// the processing goroutine. Push never blocks; Pop blocks until a chunk is
// available, the queue is closed, or the context is done.
package audio

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

// ErrQueueClosed is returned by Pop once the queue is closed and drained.
var ErrQueueClosed = errors.New("audio: queue closed")

// ChunkQueue is a FIFO of raw PCM chunks with a non-blocking producer side.
//
// Capacity policy: with capacity 0 the queue is unbounded and never drops a
// chunk; memory grows while the consumer is stalled. With capacity > 0 a push
// into a full queue evicts the oldest chunk, so the most recent audio is kept.
// Every eviction is counted in [ChunkQueue.Dropped] and reported to the
// OnDrop hook; the first one of a run is also logged at warn.
type ChunkQueue struct {
	mu       sync.Mutex
	chunks   [][]byte
	head     int
	capacity int
	dropped  uint64
	dropping bool
	closed   bool

	// ready has capacity 1 and is signalled on every push.
	ready chan struct{}
	done  chan struct{}

	onDrop func()
}

// QueueOption configures a [ChunkQueue].
type QueueOption func(*ChunkQueue)

// WithCapacity bounds the queue to n chunks. n <= 0 means unbounded.
func WithCapacity(n int) QueueOption {
	return func(q *ChunkQueue) {
		if n > 0 {
			q.capacity = n
		}
	}
}

// WithDropHook registers fn to be called, on the producer goroutine, for every
// chunk evicted by the capacity policy. fn must not block.
func WithDropHook(fn func()) QueueOption {
	return func(q *ChunkQueue) {
		q.onDrop = fn
	}
}

// NewChunkQueue returns an empty, open queue.
func NewChunkQueue(opts ...QueueOption) *ChunkQueue {
	q := &ChunkQueue{
		ready: make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(q)
	}
	return q
}

// Push appends chunk to the queue and returns immediately. The queue keeps its
// own reference to chunk; the caller must not reuse the backing array.
// Pushing to a closed queue is a no-op that returns false.
func (q *ChunkQueue) Push(chunk []byte) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	evicted := false
	if q.capacity > 0 && q.lenLocked() >= q.capacity {
		q.chunks[q.head] = nil
		q.head++
		q.dropped++
		evicted = true
		q.compactLocked()
	}
	firstDrop := evicted && !q.dropping
	q.dropping = evicted
	q.chunks = append(q.chunks, chunk)
	dropped := q.dropped
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}

	if evicted {
		if firstDrop {
			slog.Warn("audio: chunk queue full, evicting oldest chunks", "capacity", q.capacity, "dropped_total", dropped)
		}
		if q.onDrop != nil {
			q.onDrop()
		}
	}
	return true
}

// Pop removes and returns the oldest chunk, waiting until one is available.
// It returns ctx.Err() if ctx is done first, and [ErrQueueClosed] once the
// queue has been closed and every pushed chunk has been consumed.
func (q *ChunkQueue) Pop(ctx context.Context) ([]byte, error) {
	for {
		q.mu.Lock()
		if q.lenLocked() > 0 {
			chunk := q.chunks[q.head]
			q.chunks[q.head] = nil
			q.head++
			q.compactLocked()
			q.mu.Unlock()
			return chunk, nil
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return nil, ErrQueueClosed
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-q.ready:
		case <-q.done:
		}
	}
}

// Close stops accepting pushes. Chunks already queued remain poppable.
// Calling Close more than once is safe.
func (q *ChunkQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	q.closed = true
	close(q.done)
}

// Len returns the number of queued chunks.
func (q *ChunkQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.lenLocked()
}

// Dropped returns the total number of chunks evicted by the capacity policy.
func (q *ChunkQueue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}

// compactLocked reclaims the consumed prefix of the backing slice.
func (q *ChunkQueue) compactLocked() {
	switch {
	case q.head == len(q.chunks):
		q.chunks = q.chunks[:0]
		q.head = 0
	case q.head > 1024 && q.head*2 >= len(q.chunks):
		q.chunks = append(q.chunks[:0:0], q.chunks[q.head:]...)
		q.head = 0
	}
}

func (q *ChunkQueue) lenLocked() int {
	return len(q.chunks) - q.head
}
