package stt

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	openai "github.com/openai/openai-go/v3"

	"github.com/loqalabs/jarvis/internal/config"
)

type openAIRecognizer struct {
	client openai.Client
	cfg    config.STTConfig
}

func NewOpenAIRecognizer(client openai.Client, cfg config.STTConfig) Recognizer {
	if cfg.Model == "" {
		cfg.Model = openai.AudioModelWhisper1
	}
	return &openAIRecognizer{client: client, cfg: cfg}
}

func (r *openAIRecognizer) Transcribe(ctx context.Context, audioPath string) (TranscriptResult, error) {
	f, err := os.Open(audioPath)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("open clip: %w", err)
	}
	defer f.Close()

	params := openai.AudioTranscriptionNewParams{
		File:           openai.File(f, filepath.Base(audioPath), "audio/mpeg"),
		Model:          r.cfg.Model,
		ResponseFormat: openai.AudioResponseFormatJSON,
	}
	if r.cfg.Language != "" {
		params.Language = openai.String(r.cfg.Language)
	}
	if r.cfg.Prompt != "" {
		params.Prompt = openai.String(r.cfg.Prompt)
	}
	if r.cfg.Temperature > 0 {
		params.Temperature = openai.Float(r.cfg.Temperature)
	}

	resp, err := r.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return TranscriptResult{}, fmt.Errorf("transcription request: %w", err)
	}
	return TranscriptResult{
		Text:     strings.TrimSpace(resp.Text),
		Language: r.cfg.Language,
	}, nil
}
