package capture

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

// writeCaptureScript stands in for ffmpeg: it gets the full argument list
// and can treat the last argument as the output file.
func writeCaptureScript(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts unavailable on windows")
	}
	path := filepath.Join(t.TempDir(), "fake-ffmpeg.sh")
	script := "#!/bin/sh\neval out=\\${$#}\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatalf("write script: %v", err)
	}
	return path
}

func runScripted(ctx context.Context, t *testing.T, body string) (Result, error, string) {
	t.Helper()
	script := writeCaptureScript(t, body)
	rec, err := NewFFmpeg(script, Device{Format: "pulse", Input: "default"}, FFmpegOptions{}, newLogger())
	if err != nil {
		t.Fatalf("new ffmpeg: %v", err)
	}
	out := filepath.Join(t.TempDir(), "recording.mp3")
	session := NewSession(rec, out, SessionOptions{SilenceDelay: 50 * time.Millisecond}, newLogger())

	done := make(chan struct{})
	var (
		res    Result
		runErr error
	)
	go func() {
		defer close(done)
		res, runErr = session.Run(ctx)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("capture process did not finish")
	}
	return res, runErr, out
}

func TestFFmpegProcessStopsOnSilence(t *testing.T) {
	body := `echo "[silencedetect @ 0x1] silence_start: 0.5" >&2
dd bs=1 count=1 of="$out" 2>/dev/null
exit 0`
	res, err, out := runScripted(context.Background(), t, body)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Reason != ReasonSilence {
		t.Fatalf("expected silence stop, got %s", res.Reason)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if string(data) != "q" {
		t.Fatalf("expected quit command on stdin, got %q", data)
	}
	if len(res.Lines) == 0 || res.Lines[0] != "[silencedetect @ 0x1] silence_start: 0.5" {
		t.Fatalf("diagnostic line not captured: %q", res.Lines)
	}
}

func TestFFmpegProcessInterruptToleratesExitCode(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	body := `echo "Press [q] to stop" >&2
dd bs=1 count=1 of="$out" 2>/dev/null
exit 255`
	res, err, out := runScripted(ctx, t, body)
	if err != nil {
		t.Fatalf("interrupt should not be a capture failure: %v", err)
	}
	if res.Reason != ReasonInterrupt {
		t.Fatalf("expected interrupt, got %s", res.Reason)
	}
	if data, _ := os.ReadFile(out); string(data) != "q" {
		t.Fatalf("expected quit command on stdin, got %q", data)
	}
}

func TestFFmpegProcessClosedControlChannel(t *testing.T) {
	body := `exec 0<&-
echo "silence_start: 0.1" >&2
sleep 0.3
exit 0`
	res, err, _ := runScripted(context.Background(), t, body)
	if err != nil {
		t.Fatalf("undeliverable stop should not fail the session: %v", err)
	}
	if res.Reason != ReasonSilence {
		t.Fatalf("expected silence stop, got %s", res.Reason)
	}
}

func TestFFmpegProcessFailure(t *testing.T) {
	body := `echo "audio device busy" >&2
exit 1`
	res, err, _ := runScripted(context.Background(), t, body)
	if !errors.Is(err, ErrCaptureFailed) {
		t.Fatalf("expected capture failure, got %v", err)
	}
	if res.Reason != ReasonExited {
		t.Fatalf("expected exited, got %s", res.Reason)
	}
}
