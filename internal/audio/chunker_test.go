package audio

import (
	"bytes"
	"testing"
)

var testPolicy = ChunkPolicy{
	MinChunkBytes:  48000,
	OverlapBytes:   16000,
	MaxBufferBytes: 160000,
}

func newTestBuffer(t *testing.T) *SessionBuffer {
	t.Helper()
	buf, err := NewSessionBuffer("microphone", testPolicy)
	if err != nil {
		t.Fatalf("NewSessionBuffer failed: %v", err)
	}
	return buf
}

// pattern returns n bytes with a repeating counter so chunk boundaries can
// be verified byte-for-byte.
func pattern(offset, n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte((offset + i) % 251)
	}
	return p
}

func TestChunkPolicyValidate(t *testing.T) {
	tests := []struct {
		name   string
		policy ChunkPolicy
		valid  bool
	}{
		{"valid", ChunkPolicy{MinChunkBytes: 100, OverlapBytes: 10, MaxBufferBytes: 500}, true},
		{"zero overlap", ChunkPolicy{MinChunkBytes: 100, OverlapBytes: 0, MaxBufferBytes: 500}, true},
		{"zero min", ChunkPolicy{MinChunkBytes: 0, OverlapBytes: 0, MaxBufferBytes: 500}, false},
		{"overlap equals min", ChunkPolicy{MinChunkBytes: 100, OverlapBytes: 100, MaxBufferBytes: 500}, false},
		{"negative overlap", ChunkPolicy{MinChunkBytes: 100, OverlapBytes: -1, MaxBufferBytes: 500}, false},
		{"cap equals min", ChunkPolicy{MinChunkBytes: 100, OverlapBytes: 10, MaxBufferBytes: 100}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.policy.Validate()
			if tt.valid && err != nil {
				t.Errorf("Expected valid policy but got error: %v", err)
			}
			if !tt.valid && err == nil {
				t.Error("Expected invalid policy but got no error")
			}
		})
	}
}

func TestFeedEmptyIsIdempotent(t *testing.T) {
	buf := newTestBuffer(t)

	buf.Feed(pattern(0, 100))

	chunks, dropped := buf.Feed(nil)
	if len(chunks) != 0 {
		t.Errorf("Feeding zero bytes emitted %d chunks", len(chunks))
	}
	if dropped != 0 {
		t.Errorf("Feeding zero bytes dropped %d bytes", dropped)
	}
	if buf.Len() != 100 {
		t.Errorf("Feeding zero bytes changed buffer length to %d", buf.Len())
	}
}

func TestFeedBelowThresholdAccumulates(t *testing.T) {
	buf := newTestBuffer(t)

	chunks, dropped := buf.Feed(pattern(0, testPolicy.MinChunkBytes-1))
	if len(chunks) != 0 {
		t.Errorf("Expected no chunks below threshold, got %d", len(chunks))
	}
	if dropped != 0 {
		t.Errorf("Expected no overflow, got %d dropped", dropped)
	}
	if buf.Len() != testPolicy.MinChunkBytes-1 {
		t.Errorf("Expected %d pending bytes, got %d", testPolicy.MinChunkBytes-1, buf.Len())
	}
}

func TestFeedExactChunkClearsBuffer(t *testing.T) {
	buf := newTestBuffer(t)

	data := pattern(0, testPolicy.MinChunkBytes)
	chunks, dropped := buf.Feed(data)

	if len(chunks) != 1 {
		t.Fatalf("Expected exactly one chunk, got %d", len(chunks))
	}
	if dropped != 0 {
		t.Errorf("Expected no overflow, got %d", dropped)
	}
	if !bytes.Equal(chunks[0].PCM, data) {
		t.Error("Chunk bytes do not match fed bytes")
	}
	if chunks[0].Seq != 1 {
		t.Errorf("Expected sequence 1, got %d", chunks[0].Seq)
	}
	if chunks[0].Source != "microphone" {
		t.Errorf("Expected source 'microphone', got '%s'", chunks[0].Source)
	}
	// Exact-length case: no overlap is fabricated, buffer is cleared.
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after exact-length chunk, got %d pending", buf.Len())
	}
}

func TestFeedOverlapRetained(t *testing.T) {
	buf := newTestBuffer(t)

	extra := 1000
	chunks, _ := buf.Feed(pattern(0, testPolicy.MinChunkBytes+extra))

	if len(chunks) != 1 {
		t.Fatalf("Expected exactly one chunk, got %d", len(chunks))
	}
	if len(chunks[0].PCM) != testPolicy.MinChunkBytes {
		t.Errorf("Expected chunk size %d, got %d", testPolicy.MinChunkBytes, len(chunks[0].PCM))
	}

	wantPending := extra + testPolicy.OverlapBytes
	if buf.Len() != wantPending {
		t.Errorf("Expected %d pending bytes (extra + overlap), got %d", wantPending, buf.Len())
	}

	// The retained bytes must start with the tail of the emitted chunk.
	next, _ := buf.Feed(pattern(0, testPolicy.MinChunkBytes))
	if len(next) != 1 {
		t.Fatalf("Expected one follow-up chunk, got %d", len(next))
	}
	tail := chunks[0].PCM[testPolicy.MinChunkBytes-testPolicy.OverlapBytes:]
	if !bytes.Equal(next[0].PCM[:testPolicy.OverlapBytes], tail) {
		t.Error("Next chunk does not begin with previous chunk's overlap tail")
	}
	if next[0].Seq != 2 {
		t.Errorf("Expected sequence 2, got %d", next[0].Seq)
	}
}

func TestFeedMultipleChunksFromOneWrite(t *testing.T) {
	buf := newTestBuffer(t)

	// Two chunk extractions: min + (min - overlap) bytes exactly drains to
	// empty on the second (exact-length) extraction.
	n := testPolicy.MinChunkBytes + (testPolicy.MinChunkBytes - testPolicy.OverlapBytes)
	chunks, _ := buf.Feed(pattern(0, n))

	if len(chunks) != 2 {
		t.Fatalf("Expected two chunks, got %d", len(chunks))
	}
	if buf.Len() != 0 {
		t.Errorf("Expected drained buffer, got %d pending", buf.Len())
	}
	if chunks[0].Seq != 1 || chunks[1].Seq != 2 {
		t.Errorf("Expected sequences 1,2, got %d,%d", chunks[0].Seq, chunks[1].Seq)
	}
}

func TestFeedOverflowDropsOldest(t *testing.T) {
	policy := ChunkPolicy{MinChunkBytes: 1 << 20, OverlapBytes: 0, MaxBufferBytes: 1<<20 + 100}
	buf, err := NewSessionBuffer("system", policy)
	if err != nil {
		t.Fatalf("NewSessionBuffer failed: %v", err)
	}

	first := pattern(0, policy.MaxBufferBytes)
	if _, dropped := buf.Feed(first[:policy.MinChunkBytes-1]); dropped != 0 {
		t.Fatalf("Unexpected drop while under cap: %d", dropped)
	}

	// Push 200 bytes past the cap in one write. The drop resolves first,
	// then a chunk is extracted from the capped accumulator.
	over := 200 + policy.MaxBufferBytes - (policy.MinChunkBytes - 1)
	chunks, dropped := buf.Feed(pattern(1, over))
	if dropped != 200 {
		t.Errorf("Expected 200 dropped bytes, got %d", dropped)
	}
	if len(chunks) != 1 {
		t.Errorf("Expected one chunk after the capped buffer crossed threshold, got %d", len(chunks))
	}
	if buf.Len() > policy.MaxBufferBytes {
		t.Errorf("Buffer exceeds cap after overflow: %d > %d", buf.Len(), policy.MaxBufferBytes)
	}

	stats := buf.Stats()
	if stats.BytesDropped != 200 {
		t.Errorf("Expected 200 in dropped counter, got %d", stats.BytesDropped)
	}
}

// TestStreamReassembly checks the conservation property: concatenating the
// non-overlapping portion of every emitted chunk reproduces the input
// stream, with at most the not-yet-eligible tail still pending.
func TestStreamReassembly(t *testing.T) {
	policy := ChunkPolicy{MinChunkBytes: 800, OverlapBytes: 200, MaxBufferBytes: 20000}
	buf, err := NewSessionBuffer("microphone", policy)
	if err != nil {
		t.Fatalf("NewSessionBuffer failed: %v", err)
	}

	input := pattern(0, 10000)
	var reassembled []byte
	emitted := 0

	// Feed in uneven increments to exercise straddling boundaries.
	sizes := []int{1, 37, 799, 800, 801, 1600, 3, 0, 5959}
	offset := 0
	for _, size := range sizes {
		chunks, dropped := buf.Feed(input[offset : offset+size])
		if dropped != 0 {
			t.Fatalf("Unexpected overflow drop: %d", dropped)
		}
		offset += size

		for _, c := range chunks {
			if emitted == 0 {
				reassembled = append(reassembled, c.PCM...)
			} else {
				reassembled = append(reassembled, c.PCM[policy.OverlapBytes:]...)
			}
			emitted++
		}
	}

	if !bytes.Equal(reassembled, input[:len(reassembled)]) {
		t.Fatal("Reassembled chunk stream diverges from input")
	}

	withheld := len(input) - len(reassembled)
	if withheld != buf.Len()-policy.OverlapBytes && withheld != buf.Len() {
		t.Errorf("Withheld bytes (%d) unaccounted for by pending buffer (%d)", withheld, buf.Len())
	}
}

func TestResetDiscardsPendingKeepsSequence(t *testing.T) {
	buf := newTestBuffer(t)

	chunks, _ := buf.Feed(pattern(0, testPolicy.MinChunkBytes))
	if len(chunks) != 1 || chunks[0].Seq != 1 {
		t.Fatalf("Setup chunk not emitted as expected")
	}

	buf.Feed(pattern(0, 500))
	buf.Reset()
	if buf.Len() != 0 {
		t.Errorf("Expected empty buffer after reset, got %d", buf.Len())
	}

	chunks, _ = buf.Feed(pattern(0, testPolicy.MinChunkBytes))
	if len(chunks) != 1 {
		t.Fatalf("Expected chunk after reset, got %d", len(chunks))
	}
	if chunks[0].Seq != 2 {
		t.Errorf("Expected sequence to continue at 2 after reset, got %d", chunks[0].Seq)
	}
}

func TestOddLengthAccepted(t *testing.T) {
	buf := newTestBuffer(t)

	// Odd-length writes are legal during accumulation; truncation to whole
	// samples happens at WAV hand-off, not here.
	chunks, dropped := buf.Feed(pattern(0, 333))
	if len(chunks) != 0 || dropped != 0 {
		t.Errorf("Odd-length feed misbehaved: %d chunks, %d dropped", len(chunks), dropped)
	}
	if buf.Len() != 333 {
		t.Errorf("Expected 333 pending bytes, got %d", buf.Len())
	}
}

func TestDefaultSourceApplied(t *testing.T) {
	buf, err := NewSessionBuffer("", testPolicy)
	if err != nil {
		t.Fatalf("NewSessionBuffer failed: %v", err)
	}
	if buf.Source() != DefaultSource {
		t.Errorf("Expected default source '%s', got '%s'", DefaultSource, buf.Source())
	}
}
