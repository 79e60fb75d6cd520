package tts

import (
	"context"
	"fmt"
	"io"

	openai "github.com/openai/openai-go/v3"
)

type openAISynth struct {
	client openai.Client
}

func NewOpenAISynth(client openai.Client) Synthesizer {
	return &openAISynth{client: client}
}

func (s *openAISynth) Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error) {
	params := openai.AudioSpeechNewParams{
		Input:          req.Text,
		Model:          req.Model,
		Voice:          openai.AudioSpeechNewParamsVoice(req.Voice),
		ResponseFormat: openai.AudioSpeechNewParamsResponseFormat(req.Format),
	}
	if params.Model == "" {
		params.Model = openai.SpeechModelTTS1
	}
	if params.Voice == "" {
		params.Voice = openai.AudioSpeechNewParamsVoiceAlloy
	}
	if params.ResponseFormat == "" {
		params.ResponseFormat = openai.AudioSpeechNewParamsResponseFormatMP3
	}
	if req.Speed > 0 {
		params.Speed = openai.Float(req.Speed)
	}
	if req.Instructions != "" {
		params.Instructions = openai.String(req.Instructions)
	}

	resp, err := s.client.Audio.Speech.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("speech request: %w", err)
	}
	return resp.Body, nil
}
