package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"

	"github.com/loqalabs/jarvis/internal/config"
)

// SynthRequest contains parameters to synthesize speech.
type SynthRequest struct {
	SessionID    string
	Text         string
	Voice        string
	Model        string
	Speed        float64
	Format       string
	Instructions string
}

// Synthesizer produces a compressed audio stream the caller must close.
type Synthesizer interface {
	Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error)
}

// RequestFromConfig fills voice parameters for text.
func RequestFromConfig(cfg config.TTSConfig, text string) SynthRequest {
	return SynthRequest{
		Text:         text,
		Voice:        cfg.Voice,
		Model:        cfg.Model,
		Speed:        cfg.Speed,
		Format:       cfg.Format,
		Instructions: cfg.Instructions,
	}
}

// New selects the backend named by cfg.Mode. client is only used in
// openai mode.
func New(cfg config.TTSConfig, client openai.Client) (Synthesizer, error) {
	switch cfg.Mode {
	case "openai":
		return NewOpenAISynth(client), nil
	case "exec":
		return NewExecSynth(cfg.Command)
	case "mock":
		return NewMockSynth(), nil
	default:
		return nil, fmt.Errorf("unsupported tts mode %q", cfg.Mode)
	}
}
