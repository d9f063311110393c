package worker

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/mpetrenko/stt-stream-service/internal/audio"
	"github.com/mpetrenko/stt-stream-service/internal/engine"
)

// Config contains worker pool configuration
type Config struct {
	Workers           int           // goroutines running inference; 0 derives from CPU count
	SampleRate        int           // PCM sample rate for WAV wrapping
	MinAudibleBytes   int           // payloads below this skip inference entirely
	InferenceTimeout  time.Duration // per-chunk deadline for the engine call
	NoSpeechThreshold float64       // segments above this no-speech probability are dropped
	Denylist          []string      // hallucinated phrases removed from transcripts
}

// Result is the final outcome of processing one audio payload. A silent
// payload is a success with empty text; Success false means the pipeline
// itself failed and ErrorDetail says why.
type Result struct {
	Source      string `json:"source,omitempty"`
	Success     bool   `json:"success"`
	Text        string `json:"text"`
	Language    string `json:"language,omitempty"`
	ErrorDetail string `json:"error,omitempty"`
}

type job struct {
	chunk audio.Chunk
	out   chan Result
}

// Pool runs speech-to-text inference on a fixed set of worker goroutines
// fed from an unbounded FIFO queue. Submitting never blocks the caller;
// each submission gets its own result channel so out-of-order completion
// cannot cross results between chunks.
type Pool struct {
	config  Config
	eng     engine.Engine
	logger  *slog.Logger
	onQueue func(depth int) // optional queue depth observer

	mu      sync.Mutex
	cond    *sync.Cond
	queue   []job
	stopped bool

	wg sync.WaitGroup

	// Statistics
	processed uint64
	failed    uint64
	silent    uint64
}

// PoolStats represents a snapshot of pool counters
type PoolStats struct {
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	Processed  uint64 `json:"processed"`
	Failed     uint64 `json:"failed"`
	Silent     uint64 `json:"silent"`
}

// NewPool creates and starts a worker pool backed by the given engine
func NewPool(config Config, eng engine.Engine, logger *slog.Logger) (*Pool, error) {
	if eng == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}

	if config.Workers <= 0 {
		config.Workers = defaultWorkerCount()
	}
	if config.InferenceTimeout <= 0 {
		config.InferenceTimeout = 30 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}

	p := &Pool{
		config: config,
		eng:    eng,
		logger: logger,
	}
	p.cond = sync.NewCond(&p.mu)

	for i := 0; i < config.Workers; i++ {
		p.wg.Add(1)
		go p.worker(i)
	}

	logger.Info("Worker pool started",
		slog.Int("workers", config.Workers),
		slog.Duration("inference_timeout", config.InferenceTimeout))

	return p, nil
}

// defaultWorkerCount sizes the pool from the host CPU count, clamped to
// [2, 4]. Inference is remote, so more workers buy queue drainage rather
// than compute; a small cap keeps backend pressure bounded.
func defaultWorkerCount() int {
	n := runtime.NumCPU() / 2
	if n < 2 {
		n = 2
	}
	if n > 4 {
		n = 4
	}
	return n
}

// Engine exposes the backing inference engine, letting the stats
// surface pick up backend client counters when the engine tracks them.
func (p *Pool) Engine() engine.Engine {
	return p.eng
}

// SetQueueObserver installs a callback invoked with the queue depth after
// every enqueue and dequeue. Used to feed the queue depth gauge.
func (p *Pool) SetQueueObserver(fn func(depth int)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onQueue = fn
}

// Submit queues a chunk for inference and returns a channel that will
// receive exactly one Result. Submitting to a stopped pool yields an
// immediate failure result.
func (p *Pool) Submit(chunk audio.Chunk) <-chan Result {
	out := make(chan Result, 1)

	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		out <- Result{
			Source:      chunk.Source,
			Success:     false,
			ErrorDetail: "worker pool is shut down",
		}
		return out
	}

	p.queue = append(p.queue, job{chunk: chunk, out: out})
	depth := len(p.queue)
	observer := p.onQueue
	p.cond.Signal()
	p.mu.Unlock()

	if observer != nil {
		observer(depth)
	}

	return out
}

// Process runs one payload through the full pipeline synchronously. It is
// the one-shot path: no queue, but the same silence short-circuit,
// WAV wrapping, timeout, and transcript filtering as queued chunks.
func (p *Pool) Process(ctx context.Context, source string, pcm []byte) Result {
	return p.process(ctx, audio.Chunk{Source: source, PCM: pcm})
}

func (p *Pool) worker(id int) {
	defer p.wg.Done()

	for {
		p.mu.Lock()
		for len(p.queue) == 0 && !p.stopped {
			p.cond.Wait()
		}
		if len(p.queue) == 0 && p.stopped {
			p.mu.Unlock()
			return
		}

		j := p.queue[0]
		p.queue = p.queue[1:]
		depth := len(p.queue)
		observer := p.onQueue
		p.mu.Unlock()

		if observer != nil {
			observer(depth)
		}

		j.out <- p.process(context.Background(), j.chunk)
	}
}

func (p *Pool) process(ctx context.Context, chunk audio.Chunk) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("Panic while processing audio",
				slog.String("source", chunk.Source),
				slog.Any("panic", r))
			result = Result{
				Source:      chunk.Source,
				Success:     false,
				ErrorDetail: fmt.Sprintf("internal error: %v", r),
			}
			p.recordFailure()
		}
	}()

	pcm := chunk.PCM

	// Tiny payloads cannot contain intelligible speech; answer silence
	// without burning an inference slot.
	if len(pcm) < p.config.MinAudibleBytes {
		p.recordSilent()
		return Result{
			Source:   chunk.Source,
			Success:  true,
			Text:     "",
			Language: "en",
		}
	}

	if len(pcm)%2 != 0 {
		p.logger.Warn("Odd-length PCM payload, truncating to whole samples",
			slog.String("source", chunk.Source),
			slog.Int("bytes", len(pcm)))
	}

	// Low amplitude usually means the chunk is silence; inference still
	// runs since the model's own no-speech detection makes the real call.
	amplitude := audio.MaxAmplitude(pcm)
	if amplitude < 100 {
		p.logger.Debug("Audio appears silent",
			slog.String("source", chunk.Source),
			slog.Uint64("seq", chunk.Seq),
			slog.Int("max_amplitude", amplitude))
	}

	wav, err := audio.EncodeWAV(pcm, p.config.SampleRate)
	if err != nil {
		p.recordFailure()
		return Result{
			Source:      chunk.Source,
			Success:     false,
			ErrorDetail: fmt.Sprintf("failed to encode audio: %v", err),
		}
	}

	inferCtx, cancel := context.WithTimeout(ctx, p.config.InferenceTimeout)
	defer cancel()

	start := time.Now()
	raw, err := p.eng.Transcribe(inferCtx, wav)
	if err != nil {
		p.recordFailure()
		p.logger.Error("Inference failed",
			slog.String("source", chunk.Source),
			slog.Uint64("seq", chunk.Seq),
			slog.String("error", err.Error()))
		return Result{
			Source:      chunk.Source,
			Success:     false,
			ErrorDetail: fmt.Sprintf("transcription failed: %v", err),
		}
	}

	text := filterTranscript(raw, p.config.NoSpeechThreshold, p.config.Denylist)
	if text == "" {
		p.recordSilent()
		p.logger.Debug("No speech in chunk",
			slog.String("source", chunk.Source),
			slog.Uint64("seq", chunk.Seq),
			slog.Int("max_amplitude", amplitude))
	} else {
		p.recordProcessed()
	}

	p.logger.Debug("Chunk processed",
		slog.String("source", chunk.Source),
		slog.Uint64("seq", chunk.Seq),
		slog.Int("text_len", len(text)),
		slog.Duration("duration", time.Since(start)))

	return Result{
		Source:   chunk.Source,
		Success:  true,
		Text:     text,
		Language: languageOf(raw),
	}
}

// Stop drains whatever is queued and waits for workers to finish. The
// drain has no deadline of its own; each remaining job still runs under
// the per-job inference timeout. Further submissions fail fast.
func (p *Pool) Stop() {
	p.mu.Lock()
	p.stopped = true
	p.cond.Broadcast()
	p.mu.Unlock()

	p.wg.Wait()

	stats := p.Stats()
	p.logger.Info("Worker pool stopped",
		slog.Uint64("processed", stats.Processed),
		slog.Uint64("failed", stats.Failed),
		slog.Uint64("silent", stats.Silent))
}

func (p *Pool) recordProcessed() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.processed++
}

func (p *Pool) recordFailure() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failed++
}

func (p *Pool) recordSilent() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.silent++
}

// Stats returns a snapshot of pool counters
func (p *Pool) Stats() PoolStats {
	p.mu.Lock()
	defer p.mu.Unlock()

	return PoolStats{
		Workers:    p.config.Workers,
		QueueDepth: len(p.queue),
		Processed:  p.processed,
		Failed:     p.failed,
		Silent:     p.silent,
	}
}
