package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"
)

// stderrHeadLimit bounds how much of ffmpeg's stderr is carried into the
// returned error, keeping log lines and client-facing messages short.
const stderrHeadLimit = 200

// Error describes a failed conversion, carrying the leading bytes of the
// converter's stderr for diagnosis.
type Error struct {
	Op     string
	Stderr string
	Err    error
}

func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("%s: %v: %s", e.Op, e.Err, e.Stderr)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Transcoder converts compressed audio uploads (WebM/Opus, Ogg, MP3 and
// anything else ffmpeg understands) into the raw mono 16-bit PCM the
// inference path consumes.
type Transcoder struct {
	ffmpegPath string
	sampleRate int
	timeout    time.Duration
	logger     *slog.Logger
}

// NewTranscoder creates a transcoder that shells out to the given ffmpeg
// binary. An empty path falls back to "ffmpeg" on PATH.
func NewTranscoder(ffmpegPath string, sampleRate int, timeout time.Duration, logger *slog.Logger) *Transcoder {
	if ffmpegPath == "" {
		ffmpegPath = "ffmpeg"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Transcoder{
		ffmpegPath: ffmpegPath,
		sampleRate: sampleRate,
		timeout:    timeout,
		logger:     logger,
	}
}

// Convert decodes compressed audio bytes to raw mono s16le PCM at the
// configured sample rate. The conversion runs under the configured
// timeout in addition to any deadline already on ctx. Input and output
// pass through temporary files that are removed on every path.
func (t *Transcoder) Convert(ctx context.Context, compressed []byte) ([]byte, error) {
	if len(compressed) == 0 {
		return nil, &Error{Op: "convert", Err: fmt.Errorf("empty input")}
	}

	dir, err := os.MkdirTemp("", "transcode-*")
	if err != nil {
		return nil, &Error{Op: "convert", Err: fmt.Errorf("failed to create temp dir: %w", err)}
	}
	defer os.RemoveAll(dir)

	inPath := filepath.Join(dir, "input.audio")
	outPath := filepath.Join(dir, "output.pcm")

	if err := os.WriteFile(inPath, compressed, 0o600); err != nil {
		return nil, &Error{Op: "convert", Err: fmt.Errorf("failed to write input file: %w", err)}
	}

	if t.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.timeout)
		defer cancel()
	}

	start := time.Now()

	cmd := exec.CommandContext(ctx, t.ffmpegPath,
		"-y",
		"-i", inPath,
		"-vn",
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", strconv.Itoa(t.sampleRate),
		"-ac", "1",
		"-loglevel", "error",
		"-nostdin",
		outPath,
	)

	stderr, err := runCapturingStderr(cmd)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, &Error{Op: "convert", Err: fmt.Errorf("conversion timed out after %v", t.timeout)}
		}
		return nil, &Error{Op: "convert", Stderr: stderrHead(stderr), Err: fmt.Errorf("ffmpeg failed: %w", err)}
	}

	pcm, err := os.ReadFile(outPath)
	if err != nil {
		return nil, &Error{Op: "convert", Err: fmt.Errorf("failed to read output: %w", err)}
	}

	if len(pcm) == 0 {
		return nil, &Error{Op: "convert", Stderr: stderrHead(stderr), Err: fmt.Errorf("conversion produced no audio")}
	}

	t.logger.Debug("Audio converted",
		slog.Int("input_bytes", len(compressed)),
		slog.Int("output_bytes", len(pcm)),
		slog.Duration("duration", time.Since(start)))

	return pcm, nil
}

func runCapturingStderr(cmd *exec.Cmd) ([]byte, error) {
	var buf limitedBuffer
	cmd.Stderr = &buf
	err := cmd.Run()
	return buf.data, err
}

// limitedBuffer keeps only the first stderrHeadLimit bytes written to it
// so a chatty ffmpeg run cannot balloon memory.
type limitedBuffer struct {
	data []byte
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	if room := stderrHeadLimit - len(b.data); room > 0 {
		if len(p) > room {
			b.data = append(b.data, p[:room]...)
		} else {
			b.data = append(b.data, p...)
		}
	}
	return len(p), nil
}

func stderrHead(stderr []byte) string {
	if len(stderr) > stderrHeadLimit {
		stderr = stderr[:stderrHeadLimit]
	}
	return string(stderr)
}
