// Package speaker plays mp3 streams in-process through the system audio
// device.
package speaker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Player decodes mp3 and feeds the shared speaker. Playback is serialized.
type Player struct {
	mu     sync.Mutex
	logger *slog.Logger
}

func New(logger *slog.Logger) *Player {
	return &Player{logger: logger.With(slog.String("component", "speaker"))}
}

func (p *Player) Play(ctx context.Context, audio io.Reader) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	rc, ok := audio.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(audio)
	}
	streamer, format, err := mp3.Decode(rc)
	if err != nil {
		return fmt.Errorf("decode mp3: %w", err)
	}
	defer streamer.Close()

	if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
		return fmt.Errorf("init speaker: %w", err)
	}
	p.logger.Debug("playing", slog.Int("sample_rate", int(format.SampleRate)))

	done := make(chan struct{}, 1)
	speaker.Play(beep.Seq(streamer, beep.Callback(func() {
		done <- struct{}{}
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}
