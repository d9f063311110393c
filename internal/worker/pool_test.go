package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mpetrenko/stt-stream-service/internal/audio"
	"github.com/mpetrenko/stt-stream-service/internal/engine"
)

func testConfig() Config {
	return Config{
		Workers:           2,
		SampleRate:        16000,
		MinAudibleBytes:   2000,
		InferenceTimeout:  5 * time.Second,
		NoSpeechThreshold: 0.5,
		Denylist:          []string{"thank you for watching", "subscribe"},
	}
}

func audiblePCM() []byte {
	return make([]byte, 4000)
}

func newTestPool(t *testing.T, mock *engine.Mock) *Pool {
	t.Helper()
	pool, err := NewPool(testConfig(), mock, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	t.Cleanup(pool.Stop)
	return pool
}

func awaitResult(t *testing.T, ch <-chan Result) Result {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("Timed out waiting for result")
		return Result{}
	}
}

func TestSubmitTranscribes(t *testing.T) {
	mock := &engine.Mock{}
	mock.Enqueue(&engine.Result{
		Language: "en",
		Segments: []engine.Segment{{Text: " hello there", NoSpeechProb: 0.02}},
	})
	pool := newTestPool(t, mock)

	r := awaitResult(t, pool.Submit(audio.Chunk{Source: "microphone", Seq: 1, PCM: audiblePCM()}))

	if !r.Success {
		t.Fatalf("Expected success, got error '%s'", r.ErrorDetail)
	}
	if r.Text != "hello there" {
		t.Errorf("Expected trimmed text 'hello there', got '%s'", r.Text)
	}
	if r.Language != "en" {
		t.Errorf("Expected language 'en', got '%s'", r.Language)
	}
	if r.Source != "microphone" {
		t.Errorf("Expected source carried through, got '%s'", r.Source)
	}
}

func TestSubAudiblePayloadSkipsInference(t *testing.T) {
	mock := &engine.Mock{}
	pool := newTestPool(t, mock)

	r := awaitResult(t, pool.Submit(audio.Chunk{Source: "microphone", PCM: make([]byte, 500)}))

	if !r.Success || r.Text != "" {
		t.Errorf("Expected empty success result, got %+v", r)
	}
	if r.Language != "en" {
		t.Errorf("Expected default language 'en', got '%s'", r.Language)
	}
	if mock.Calls() != 0 {
		t.Errorf("Expected engine untouched for tiny payload, got %d calls", mock.Calls())
	}
}

func TestEngineFailureProducesErrorResult(t *testing.T) {
	mock := &engine.Mock{}
	mock.EnqueueError(errors.New("backend unreachable"))
	pool := newTestPool(t, mock)

	r := awaitResult(t, pool.Submit(audio.Chunk{Source: "system", PCM: audiblePCM()}))

	if r.Success {
		t.Fatal("Expected failure result")
	}
	if r.ErrorDetail == "" {
		t.Error("Expected error detail to be populated")
	}
	if r.Source != "system" {
		t.Errorf("Expected source 'system', got '%s'", r.Source)
	}
}

func TestInferenceTimeout(t *testing.T) {
	mock := &engine.Mock{}
	mock.Block(func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})

	cfg := testConfig()
	cfg.InferenceTimeout = 50 * time.Millisecond
	pool, err := NewPool(cfg, mock, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	defer pool.Stop()

	start := time.Now()
	r := awaitResult(t, pool.Submit(audio.Chunk{PCM: audiblePCM()}))

	if r.Success {
		t.Fatal("Expected timeout failure")
	}
	if time.Since(start) > 3*time.Second {
		t.Error("Timeout did not bound the inference call")
	}
}

func TestProcessSynchronous(t *testing.T) {
	mock := &engine.Mock{}
	mock.Enqueue(&engine.Result{
		Language: "en",
		Segments: []engine.Segment{{Text: "one shot result", NoSpeechProb: 0.1}},
	})
	pool := newTestPool(t, mock)

	r := pool.Process(context.Background(), "upload", audiblePCM())
	if !r.Success || r.Text != "one shot result" {
		t.Errorf("Unexpected result: %+v", r)
	}
}

func TestResultsMatchSubmissions(t *testing.T) {
	// Each submission owns its result channel, so concurrent completion
	// cannot deliver another chunk's transcript.
	mock := &engine.Mock{}
	mock.Enqueue(&engine.Result{Language: "en", Segments: []engine.Segment{{Text: "first chunk"}}})
	mock.Enqueue(&engine.Result{Language: "en", Segments: []engine.Segment{{Text: "second chunk"}}})
	pool := newTestPool(t, mock)

	ch1 := pool.Submit(audio.Chunk{Source: "microphone", Seq: 1, PCM: audiblePCM()})
	ch2 := pool.Submit(audio.Chunk{Source: "microphone", Seq: 2, PCM: audiblePCM()})

	r1 := awaitResult(t, ch1)
	r2 := awaitResult(t, ch2)

	got := map[string]bool{r1.Text: true, r2.Text: true}
	if !got["first chunk"] || !got["second chunk"] {
		t.Errorf("Expected both transcripts delivered, got '%s' and '%s'", r1.Text, r2.Text)
	}
}

func TestSubmitAfterStop(t *testing.T) {
	mock := &engine.Mock{}
	pool, err := NewPool(testConfig(), mock, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}
	pool.Stop()

	r := awaitResult(t, pool.Submit(audio.Chunk{PCM: audiblePCM()}))
	if r.Success {
		t.Error("Expected failure result after Stop")
	}
}

func TestStopDrainsQueue(t *testing.T) {
	mock := &engine.Mock{}
	mock.Enqueue(&engine.Result{Language: "en", Segments: []engine.Segment{{Text: "drained"}}})

	cfg := testConfig()
	cfg.Workers = 1
	pool, err := NewPool(cfg, mock, nil)
	if err != nil {
		t.Fatalf("NewPool failed: %v", err)
	}

	var channels []<-chan Result
	for i := 0; i < 5; i++ {
		channels = append(channels, pool.Submit(audio.Chunk{Seq: uint64(i + 1), PCM: audiblePCM()}))
	}

	pool.Stop()

	for i, ch := range channels {
		r := awaitResult(t, ch)
		if !r.Success {
			t.Errorf("Queued chunk %d not drained: %+v", i, r)
		}
	}
}

func TestQueueObserver(t *testing.T) {
	mock := &engine.Mock{}
	pool := newTestPool(t, mock)

	depths := make(chan int, 16)
	pool.SetQueueObserver(func(depth int) {
		select {
		case depths <- depth:
		default:
		}
	})

	awaitResult(t, pool.Submit(audio.Chunk{PCM: audiblePCM()}))

	select {
	case <-depths:
	case <-time.After(time.Second):
		t.Error("Queue observer was never invoked")
	}
}

func TestFilterTranscript(t *testing.T) {
	denylist := []string{"Thank you for watching", "please subscribe"}

	tests := []struct {
		name   string
		result *engine.Result
		want   string
	}{
		{
			name: "keeps clean segments",
			result: &engine.Result{Segments: []engine.Segment{
				{Text: " hello ", NoSpeechProb: 0.1},
				{Text: "world", NoSpeechProb: 0.2},
			}},
			want: "hello world",
		},
		{
			name: "drops high no-speech probability",
			result: &engine.Result{Segments: []engine.Segment{
				{Text: "kept", NoSpeechProb: 0.4},
				{Text: "dropped", NoSpeechProb: 0.9},
			}},
			want: "kept",
		},
		{
			name: "drops short segments",
			result: &engine.Result{Segments: []engine.Segment{
				{Text: " a ", NoSpeechProb: 0.0},
				{Text: "ok", NoSpeechProb: 0.0},
			}},
			want: "ok",
		},
		{
			name: "denylist is case-insensitive substring",
			result: &engine.Result{Segments: []engine.Segment{
				{Text: "real words", NoSpeechProb: 0.0},
				{Text: "THANK YOU FOR WATCHING!", NoSpeechProb: 0.0},
				{Text: "and Please Subscribe to the channel", NoSpeechProb: 0.0},
			}},
			want: "real words",
		},
		{
			name:   "nil result",
			result: nil,
			want:   "",
		},
		{
			name:   "no segments",
			result: &engine.Result{Language: "en"},
			want:   "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := filterTranscript(tt.result, 0.5, denylist); got != tt.want {
				t.Errorf("filterTranscript() = '%s', want '%s'", got, tt.want)
			}
		})
	}
}

func TestDefaultWorkerCount(t *testing.T) {
	n := defaultWorkerCount()
	if n < 2 || n > 4 {
		t.Errorf("Expected worker count in [2,4], got %d", n)
	}
}
