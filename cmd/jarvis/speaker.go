//go:build speaker

package main

import (
	"log/slog"

	"github.com/loqalabs/jarvis/internal/player"
	"github.com/loqalabs/jarvis/internal/player/speaker"
)

// The speaker backend needs cgo and the platform audio headers, so it is
// only built with -tags speaker.
func init() {
	optionalPlayers["speaker"] = func(l *slog.Logger) (player.Player, error) {
		return speaker.New(l), nil
	}
}
