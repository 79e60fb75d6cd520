package tts

import (
	"context"
	"io"
	"strings"
	"time"
)

type mockSynth struct{}

// NewMockSynth returns a synthesizer whose stream is the request text.
func NewMockSynth() Synthesizer {
	return &mockSynth{}
}

func (m *mockSynth) Synthesize(ctx context.Context, req SynthRequest) (io.ReadCloser, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-time.After(10 * time.Millisecond):
	}
	return io.NopCloser(strings.NewReader(req.Text)), nil
}
