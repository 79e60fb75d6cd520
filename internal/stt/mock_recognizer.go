package stt

import (
	"context"
	"fmt"
	"os"
)

type mockRecognizer struct{}

func NewMockRecognizer() Recognizer {
	return &mockRecognizer{}
}

func (m *mockRecognizer) Transcribe(_ context.Context, audioPath string) (TranscriptResult, error) {
	info, err := os.Stat(audioPath)
	if err != nil {
		return TranscriptResult{}, err
	}
	return TranscriptResult{
		Text: fmt.Sprintf("[mock transcript bytes=%d]", info.Size()),
	}, nil
}
