package player

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/mattn/go-shellwords"
)

// Player plays one encoded audio stream to completion.
type Player interface {
	Play(ctx context.Context, audio io.Reader) error
}

// FFplay pipes the stream into ffplay, which exits at end of stream.
type FFplay struct {
	cmd    []string
	logger *slog.Logger
}

func NewFFplay(command string, logger *slog.Logger) (*FFplay, error) {
	args, err := shellwords.NewParser().Parse(command)
	if err != nil {
		return nil, fmt.Errorf("parse player command: %w", err)
	}
	if len(args) == 0 {
		return nil, errors.New("player command empty")
	}
	return &FFplay{cmd: args, logger: logger.With(slog.String("component", "player"))}, nil
}

func (p *FFplay) Args() []string {
	args := append([]string{}, p.cmd[1:]...)
	return append(args, "-nodisp", "-autoexit", "-loglevel", "error", "-i", "-")
}

func (p *FFplay) Play(ctx context.Context, audio io.Reader) error {
	cmd := exec.CommandContext(ctx, p.cmd[0], p.Args()...)
	cmd.Stdin = audio
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	p.logger.Debug("starting playback", slog.String("cmd", cmd.String()))
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("playback failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return nil
}

// Discard drains the stream without playing it.
type Discard struct{}

func (Discard) Play(ctx context.Context, audio io.Reader) error {
	if _, err := io.Copy(io.Discard, audio); err != nil {
		return err
	}
	return ctx.Err()
}
