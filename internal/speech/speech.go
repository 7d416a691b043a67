// Package speech converts voice messages to text and replies back to audio
// using the OpenAI audio endpoints.
package speech

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/sashabaranov/go-openai"
)

type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error)
}

type Synthesizer interface {
	// Synthesize returns OGG/Opus audio. The caller closes the reader.
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

type Config struct {
	APIKey     string
	BaseURL    string
	STTModel   string
	TTSModel   string
	TTSVoice   string
	HTTPClient *http.Client
}

type OpenAI struct {
	client   *openai.Client
	sttModel string
	ttsModel string
	voice    string
}

func NewOpenAI(cfg Config) *OpenAI {
	oc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oc.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		oc.HTTPClient = cfg.HTTPClient
	}
	return &OpenAI{
		client:   openai.NewClientWithConfig(oc),
		sttModel: cfg.STTModel,
		ttsModel: cfg.TTSModel,
		voice:    cfg.TTSVoice,
	}
}

func (s *OpenAI) Transcribe(ctx context.Context, audio io.Reader, filename string) (string, error) {
	resp, err := s.client.CreateTranscription(ctx, openai.AudioRequest{
		Model:    s.sttModel,
		Reader:   audio,
		FilePath: filename,
	})
	if err != nil {
		return "", fmt.Errorf("transcription: %w", err)
	}
	return strings.TrimSpace(resp.Text), nil
}

func (s *OpenAI) Synthesize(ctx context.Context, text string) (io.ReadCloser, error) {
	resp, err := s.client.CreateSpeech(ctx, openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(s.ttsModel),
		Input:          text,
		Voice:          openai.SpeechVoice(s.voice),
		ResponseFormat: openai.SpeechResponseFormatOpus,
	})
	if err != nil {
		return nil, fmt.Errorf("speech synthesis: %w", err)
	}
	return resp, nil
}
