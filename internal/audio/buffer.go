package audio

import (
	"sync"
)

// SinkFunc receives drained sub-chunks in arrival order.
type SinkFunc func(chunk []byte) error

// ErrorFunc receives sink delivery errors. Delivery is best-effort: a sink
// error is an observability event, not a transaction abort.
type ErrorFunc func(err error)

// StreamingBuffer is an ordered chunk buffer with size-based backpressure.
// It decouples the telephony arrival rate from the downstream processing
// rate: producers enqueue raw chunks, the sink receives pieces no larger
// than the configured chunk size, strictly in arrival order.
//
// A push that grows the queue past MaxBufferSize drains synchronously before
// returning, so producers that ignore backpressure are throttled by the call
// itself. Only one drain runs at a time; a re-entrant push during a drain
// enqueues without starting a second drain.
type StreamingBuffer struct {
	chunkSize     int
	maxBufferSize int
	sink          SinkFunc
	onError       ErrorFunc

	mu       sync.Mutex
	queue    [][]byte
	total    int
	draining bool
	gen      uint64 // bumped by Clear so an in-flight drain stops delivering stale data
}

// BufferConfig configures a StreamingBuffer. Zero values fall back to the
// defaults used by the telephony media path (1 KiB sub-chunks, 16 KiB cap).
type BufferConfig struct {
	ChunkSize     int
	MaxBufferSize int
	Sink          SinkFunc
	OnError       ErrorFunc
}

const (
	defaultChunkSize     = 1024
	defaultMaxBufferSize = 16384
)

func NewStreamingBuffer(cfg BufferConfig) *StreamingBuffer {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = defaultChunkSize
	}
	if cfg.MaxBufferSize <= 0 {
		cfg.MaxBufferSize = defaultMaxBufferSize
	}
	if cfg.Sink == nil {
		cfg.Sink = func([]byte) error { return nil }
	}
	if cfg.OnError == nil {
		cfg.OnError = func(error) {}
	}
	return &StreamingBuffer{
		chunkSize:     cfg.ChunkSize,
		maxBufferSize: cfg.MaxBufferSize,
		sink:          cfg.Sink,
		onError:       cfg.OnError,
	}
}

// Push appends a chunk. If the queued size exceeds MaxBufferSize the buffer
// drains before returning, so the producer pays for delivery instead of
// growing memory unboundedly.
func (b *StreamingBuffer) Push(chunk []byte) {
	b.mu.Lock()
	b.queue = append(b.queue, chunk)
	b.total += len(chunk)

	if b.total <= b.maxBufferSize || b.draining {
		// Under the cap, or another drain already owns delivery.
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
}

// Flush drains all queued chunks immediately. No-op if a drain is in flight.
func (b *StreamingBuffer) Flush() {
	b.mu.Lock()
	if b.draining {
		b.mu.Unlock()
		return
	}
	b.draining = true
	b.mu.Unlock()

	b.drain()
}

// Clear discards all queued data without invoking the sink. Used on call
// termination.
func (b *StreamingBuffer) Clear() {
	b.mu.Lock()
	b.queue = nil
	b.total = 0
	b.gen++
	b.mu.Unlock()
}

// Size returns the total number of queued bytes.
func (b *StreamingBuffer) Size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.total
}

func (b *StreamingBuffer) drain() {
	b.mu.Lock()
	gen := b.gen
	for len(b.queue) > 0 {
		chunk := b.queue[0]
		b.queue = b.queue[1:]
		b.total -= len(chunk)
		b.mu.Unlock()

		for i := 0; i < len(chunk); i += b.chunkSize {
			end := i + b.chunkSize
			if end > len(chunk) {
				end = len(chunk)
			}
			if err := b.sink(chunk[i:end]); err != nil {
				b.onError(err)
			}
		}

		b.mu.Lock()
		if b.gen != gen {
			// Cleared mid-drain; whatever queued since belongs to a new stream.
			break
		}
	}
	b.draining = false
	b.mu.Unlock()
}
