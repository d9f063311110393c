package audio

import (
	"fmt"
	"sync"
)

// DefaultSource is the source label assumed when binary audio arrives
// before any explicit start control message.
const DefaultSource = "microphone"

// ChunkPolicy contains the byte thresholds governing chunk extraction
type ChunkPolicy struct {
	MinChunkBytes  int // accumulated bytes required before a chunk is emitted
	OverlapBytes   int // tail of each chunk repeated at the head of the next
	MaxBufferBytes int // hard cap; oldest bytes beyond it are dropped
}

// Validate checks the ordering invariant between the three thresholds
func (p ChunkPolicy) Validate() error {
	if p.MinChunkBytes <= 0 {
		return fmt.Errorf("min chunk bytes must be positive, got %d", p.MinChunkBytes)
	}

	if p.OverlapBytes < 0 || p.OverlapBytes >= p.MinChunkBytes {
		return fmt.Errorf("overlap bytes must be in [0, %d), got %d", p.MinChunkBytes, p.OverlapBytes)
	}

	if p.MaxBufferBytes <= p.MinChunkBytes {
		return fmt.Errorf("max buffer bytes (%d) must exceed min chunk bytes (%d)",
			p.MaxBufferBytes, p.MinChunkBytes)
	}

	return nil
}

// Chunk is a fixed-size slice of accumulated audio handed to inference as
// one unit. PCM is an independent copy and is never mutated after emission.
type Chunk struct {
	Source string
	Seq    uint64
	PCM    []byte
}

// SessionBuffer accumulates raw PCM for one (connection, source) pair and
// extracts ready chunks. Callers feed bytes as they arrive; the buffer
// decides chunk boundaries, carries the configured overlap into the next
// chunk, and drops the oldest bytes on overflow.
type SessionBuffer struct {
	source string
	policy ChunkPolicy

	data []byte
	seq  uint64

	// Statistics
	bytesReceived uint64
	bytesDropped  uint64
	chunksEmitted uint64

	mu sync.Mutex
}

// BufferStats represents a snapshot of session buffer counters
type BufferStats struct {
	Source        string `json:"source"`
	PendingBytes  int    `json:"pending_bytes"`
	BytesReceived uint64 `json:"bytes_received"`
	BytesDropped  uint64 `json:"bytes_dropped"`
	ChunksEmitted uint64 `json:"chunks_emitted"`
}

// NewSessionBuffer creates an empty accumulation buffer for the given source
func NewSessionBuffer(source string, policy ChunkPolicy) (*SessionBuffer, error) {
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid chunk policy: %w", err)
	}

	if source == "" {
		source = DefaultSource
	}

	return &SessionBuffer{
		source: source,
		policy: policy,
		data:   make([]byte, 0, policy.MinChunkBytes),
	}, nil
}

// Feed appends newly arrived bytes and returns any chunks that became
// ready, plus the number of bytes dropped for overflow (zero in the normal
// case). Feeding an empty slice never emits a chunk and never changes
// buffer state.
//
// Overflow is resolved before extraction: if the accumulator exceeds
// MaxBufferBytes the oldest excess bytes are discarded so the client is
// never blocked. Extraction then repeats while at least MinChunkBytes are
// pending. When data beyond the chunk boundary has already arrived, the
// accumulator is rewound to MinChunkBytes-OverlapBytes so the chunk's tail
// reappears at the head of the next chunk; when the accumulator held
// exactly one chunk it is cleared outright, since there is no later data
// to join an overlap to.
func (b *SessionBuffer) Feed(p []byte) ([]Chunk, int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(p) == 0 {
		return nil, 0
	}

	b.data = append(b.data, p...)
	b.bytesReceived += uint64(len(p))

	dropped := 0
	if len(b.data) > b.policy.MaxBufferBytes {
		dropped = len(b.data) - b.policy.MaxBufferBytes
		b.data = b.data[dropped:]
		b.bytesDropped += uint64(dropped)
	}

	var chunks []Chunk
	for len(b.data) >= b.policy.MinChunkBytes {
		pcm := make([]byte, b.policy.MinChunkBytes)
		copy(pcm, b.data[:b.policy.MinChunkBytes])

		b.seq++
		b.chunksEmitted++
		chunks = append(chunks, Chunk{
			Source: b.source,
			Seq:    b.seq,
			PCM:    pcm,
		})

		if len(b.data) > b.policy.MinChunkBytes {
			remainder := b.data[b.policy.MinChunkBytes-b.policy.OverlapBytes:]
			next := make([]byte, len(remainder), b.policy.MinChunkBytes+len(remainder))
			copy(next, remainder)
			b.data = next
		} else {
			b.data = b.data[:0]
		}
	}

	return chunks, dropped
}

// Source returns the client-supplied source label for this buffer
func (b *SessionBuffer) Source() string {
	return b.source
}

// Len returns the number of bytes currently pending in the accumulator
func (b *SessionBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Reset discards all pending bytes. Sequence numbers and counters keep
// counting so a restarted stream does not reuse chunk sequence numbers.
func (b *SessionBuffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = b.data[:0]
}

// Stats returns a snapshot of the buffer counters
func (b *SessionBuffer) Stats() BufferStats {
	b.mu.Lock()
	defer b.mu.Unlock()

	return BufferStats{
		Source:        b.source,
		PendingBytes:  len(b.data),
		BytesReceived: b.bytesReceived,
		BytesDropped:  b.bytesDropped,
		ChunksEmitted: b.chunksEmitted,
	}
}
