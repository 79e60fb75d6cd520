package player

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
)

func newLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestFFplayArgs(t *testing.T) {
	p, err := NewFFplay("ffplay -volume 50", newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got := strings.Join(p.Args(), " ")
	if got != "-volume 50 -nodisp -autoexit -loglevel error -i -" {
		t.Fatalf("unexpected args %q", got)
	}
	if _, err := NewFFplay("", newLogger()); err == nil {
		t.Fatal("expected error for empty command")
	}
}

func TestFFplayMissingBinary(t *testing.T) {
	p, err := NewFFplay("definitely-not-a-real-player-binary", newLogger())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.Play(context.Background(), strings.NewReader("audio")); err == nil {
		t.Fatal("expected error for missing binary")
	}
}

type countingReader struct {
	r *strings.Reader
	n int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += n
	return n, err
}

func TestDiscardDrains(t *testing.T) {
	r := &countingReader{r: strings.NewReader("0123456789")}
	if err := (Discard{}).Play(context.Background(), r); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.n != 10 {
		t.Fatalf("expected stream drained, read %d bytes", r.n)
	}
}
