package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Audio     AudioConfig     `yaml:"audio"`
	Engine    EngineConfig    `yaml:"engine"`
	Transcode TranscodeConfig `yaml:"transcode"`
	Worker    WorkerConfig    `yaml:"worker"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServerConfig contains HTTP/WebSocket server configuration
type ServerConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
}

// AudioConfig contains audio stream and chunking parameters.
// Durations are in seconds; byte equivalents derive from the sample rate
// (mono, 16-bit signed little-endian).
type AudioConfig struct {
	SampleRate        int     `yaml:"sample_rate"`
	MinChunkDuration  float64 `yaml:"min_chunk_duration"`
	OverlapDuration   float64 `yaml:"overlap_duration"`
	MaxBufferDuration float64 `yaml:"max_buffer_duration"`
}

// EngineConfig selects and configures the transcription engine
type EngineConfig struct {
	Type          string `yaml:"type"` // "whisper" or "openai"
	Endpoint      string `yaml:"endpoint"`
	APIKey        string `yaml:"api_key"`
	Model         string `yaml:"model"`
	Timeout       int    `yaml:"timeout"` // seconds
	MaxRetries    int    `yaml:"max_retries"`
	MaxConcurrent int    `yaml:"max_concurrent"`
}

// TranscodeConfig contains external transcoder (ffmpeg) configuration
type TranscodeConfig struct {
	FFmpegPath string `yaml:"ffmpeg_path"`
	Timeout    int    `yaml:"timeout"` // seconds
}

// WorkerConfig contains inference worker pool and result filtering parameters
type WorkerConfig struct {
	PoolSize          int      `yaml:"pool_size"` // 0 = derive from CPU count
	MinAudibleBytes   int      `yaml:"min_audible_bytes"`
	MinContainerBytes int      `yaml:"min_container_bytes"`
	NoSpeechThreshold float64  `yaml:"no_speech_threshold"`
	Denylist          []string `yaml:"denylist"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// DefaultDenylist contains filler phrases whisper models are known to
// hallucinate on silence or background noise.
var DefaultDenylist = []string{
	"thank you", "thanks", "subscribe", "please subscribe",
	"like and subscribe", "thank you for watching",
	"thanks for watching", "please like and subscribe",
}

// Default returns the built-in configuration used when no config file exists
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    8765,
		},
		Audio: AudioConfig{
			SampleRate:        16000,
			MinChunkDuration:  1.5,
			OverlapDuration:   0.5,
			MaxBufferDuration: 5.0,
		},
		Engine: EngineConfig{
			Type:          "whisper",
			Endpoint:      "http://localhost:9000/transcribe",
			Model:         "small.en",
			Timeout:       30,
			MaxRetries:    2,
			MaxConcurrent: 4,
		},
		Transcode: TranscodeConfig{
			FFmpegPath: "ffmpeg",
			Timeout:    30,
		},
		Worker: WorkerConfig{
			PoolSize:          0,
			MinAudibleBytes:   2000,
			MinContainerBytes: 1000,
			NoSpeechThreshold: 0.5,
			Denylist:          DefaultDenylist,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
			Output: "stdout",
		},
	}
}

// Load reads and parses the configuration file. Values absent from the
// file keep their defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Audio.Validate(); err != nil {
		return fmt.Errorf("audio config: %w", err)
	}

	if err := c.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}

	if err := c.Transcode.Validate(); err != nil {
		return fmt.Errorf("transcode config: %w", err)
	}

	if err := c.Worker.Validate(); err != nil {
		return fmt.Errorf("worker config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (s *ServerConfig) Validate() error {
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", s.Port)
	}

	if s.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	return nil
}

// Validate validates audio configuration
func (a *AudioConfig) Validate() error {
	if a.SampleRate != 16000 {
		return fmt.Errorf("sample_rate must be 16000 Hz, got %d", a.SampleRate)
	}

	if a.MinChunkDuration <= 0 {
		return fmt.Errorf("min_chunk_duration must be positive, got %f", a.MinChunkDuration)
	}

	if a.OverlapDuration < 0 {
		return fmt.Errorf("overlap_duration cannot be negative, got %f", a.OverlapDuration)
	}

	if a.OverlapDuration >= a.MinChunkDuration {
		return fmt.Errorf("overlap_duration (%f) must be less than min_chunk_duration (%f)",
			a.OverlapDuration, a.MinChunkDuration)
	}

	if a.MaxBufferDuration <= a.MinChunkDuration {
		return fmt.Errorf("max_buffer_duration (%f) must be greater than min_chunk_duration (%f)",
			a.MaxBufferDuration, a.MinChunkDuration)
	}

	return nil
}

// Validate validates engine configuration
func (e *EngineConfig) Validate() error {
	switch e.Type {
	case "whisper":
		if e.Endpoint == "" {
			return fmt.Errorf("endpoint cannot be empty for whisper engine")
		}
	case "openai":
		if e.APIKey == "" {
			return fmt.Errorf("api_key cannot be empty for openai engine")
		}
	default:
		return fmt.Errorf("type must be 'whisper' or 'openai', got '%s'", e.Type)
	}

	if e.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", e.Timeout)
	}

	if e.MaxRetries < 0 {
		return fmt.Errorf("max_retries cannot be negative, got %d", e.MaxRetries)
	}

	if e.MaxConcurrent < 1 {
		return fmt.Errorf("max_concurrent must be at least 1, got %d", e.MaxConcurrent)
	}

	return nil
}

// Validate validates transcode configuration
func (t *TranscodeConfig) Validate() error {
	if t.FFmpegPath == "" {
		return fmt.Errorf("ffmpeg_path cannot be empty")
	}

	if t.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", t.Timeout)
	}

	return nil
}

// Validate validates worker pool configuration
func (w *WorkerConfig) Validate() error {
	if w.PoolSize < 0 {
		return fmt.Errorf("pool_size cannot be negative, got %d", w.PoolSize)
	}

	if w.MinAudibleBytes < 2 {
		return fmt.Errorf("min_audible_bytes must be at least 2, got %d", w.MinAudibleBytes)
	}

	if w.MinContainerBytes < 1 {
		return fmt.Errorf("min_container_bytes must be at least 1, got %d", w.MinContainerBytes)
	}

	if w.NoSpeechThreshold < 0 || w.NoSpeechThreshold > 1 {
		return fmt.Errorf("no_speech_threshold must be between 0 and 1, got %f", w.NoSpeechThreshold)
	}

	for i, phrase := range w.Denylist {
		if strings.TrimSpace(phrase) == "" {
			return fmt.Errorf("denylist entry %d is empty", i)
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	return nil
}

// bytesPerSecond returns the stream byte rate (mono, 16-bit samples)
func (a *AudioConfig) bytesPerSecond() float64 {
	return float64(a.SampleRate) * 2
}

// MinChunkBytes returns the chunk trigger threshold in bytes
func (a *AudioConfig) MinChunkBytes() int {
	return int(a.MinChunkDuration * a.bytesPerSecond())
}

// OverlapBytes returns the inter-chunk overlap in bytes
func (a *AudioConfig) OverlapBytes() int {
	return int(a.OverlapDuration * a.bytesPerSecond())
}

// MaxBufferBytes returns the accumulation buffer hard cap in bytes
func (a *AudioConfig) MaxBufferBytes() int {
	return int(a.MaxBufferDuration * a.bytesPerSecond())
}

// GetTimeoutDuration returns the engine call timeout as a time.Duration
func (e *EngineConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(e.Timeout) * time.Second
}

// GetTimeoutDuration returns the transcode timeout as a time.Duration
func (t *TranscodeConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(t.Timeout) * time.Second
}
