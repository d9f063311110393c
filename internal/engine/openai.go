package engine

import (
	"bytes"
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIConfig contains configuration for the OpenAI-compatible backend
type OpenAIConfig struct {
	APIKey  string
	BaseURL string // optional; empty uses the official API endpoint
	Model   string
}

// OpenAIClient runs inference through an OpenAI-compatible transcription
// API. Any server implementing the audio transcriptions endpoint works,
// which covers the official API and most self-hosted whisper frontends.
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient creates an engine backed by the OpenAI audio API
func NewOpenAIClient(config OpenAIConfig) (*OpenAIClient, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("API key cannot be empty")
	}

	if config.Model == "" {
		config.Model = openai.Whisper1
	}

	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		clientConfig.BaseURL = config.BaseURL
	}

	return &OpenAIClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  config.Model,
	}, nil
}

// Model returns the configured model name
func (c *OpenAIClient) Model() string {
	return c.model
}

// Transcribe sends a WAV payload to the transcription endpoint
func (c *OpenAIClient) Transcribe(ctx context.Context, wav []byte) (*Result, error) {
	if len(wav) == 0 {
		return nil, fmt.Errorf("audio payload cannot be empty")
	}

	resp, err := c.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    c.model,
		FilePath: "audio.wav",
		Reader:   bytes.NewReader(wav),
		Language: "en",
		Format:   openai.AudioResponseFormatVerboseJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("transcription request failed: %w", err)
	}

	result := &Result{Language: resp.Language}
	for _, seg := range resp.Segments {
		result.Segments = append(result.Segments, Segment{
			Start:        seg.Start,
			End:          seg.End,
			Text:         seg.Text,
			NoSpeechProb: seg.NoSpeechProb,
		})
	}

	if len(result.Segments) == 0 && resp.Text != "" {
		result.Segments = []Segment{{Text: resp.Text}}
	}

	return result, nil
}
