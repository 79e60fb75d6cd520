package stt

import (
	"context"
	"fmt"

	openai "github.com/openai/openai-go/v3"

	"github.com/loqalabs/jarvis/internal/config"
)

// TranscriptResult captures recognizer output.
type TranscriptResult struct {
	Text     string
	Language string
	Duration float64
}

// Recognizer turns a finalized audio clip into text.
type Recognizer interface {
	Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error)
}

// New selects the backend named by cfg.Mode. client is only used in
// openai mode.
func New(cfg config.STTConfig, client openai.Client) (Recognizer, error) {
	switch cfg.Mode {
	case "openai":
		return NewOpenAIRecognizer(client, cfg), nil
	case "exec":
		return NewExecRecognizer(cfg)
	case "mock":
		return NewMockRecognizer(), nil
	default:
		return nil, fmt.Errorf("unsupported stt mode %q", cfg.Mode)
	}
}
