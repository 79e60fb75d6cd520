package capture

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"regexp"
	"runtime"
	"strings"

	"github.com/loqalabs/jarvis/internal/config"
	"github.com/mattn/go-shellwords"
)

var (
	ErrUnsupportedPlatform = errors.New("unsupported platform for automatic device resolution")
	ErrNoDevice            = errors.New("no audio capture device found")
)

// Device is the ffmpeg input for the microphone.
type Device struct {
	Format string
	Input  string
}

func (d Device) String() string { return d.Format + ":" + d.Input }

// Resolver picks the capture device per platform or from config.
type Resolver struct {
	cfg  config.CaptureConfig
	goos string
	// list runs the device enumeration command and returns its output.
	list func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewResolver(cfg config.CaptureConfig) *Resolver {
	return &Resolver{cfg: cfg, goos: runtime.GOOS, list: runListing}
}

// ResolveDevice is a convenience wrapper for NewResolver(cfg).Resolve.
func ResolveDevice(ctx context.Context, cfg config.CaptureConfig) (Device, error) {
	return NewResolver(cfg).Resolve(ctx)
}

func (r *Resolver) Resolve(ctx context.Context) (Device, error) {
	if r.cfg.DeviceStrategy == "fixed" {
		return Device{Format: r.cfg.InputFormat, Input: r.cfg.Input}, nil
	}
	switch r.goos {
	case "windows":
		name, err := r.firstDirectShowAudio(ctx)
		if err != nil {
			return Device{}, err
		}
		return Device{Format: "dshow", Input: "audio=" + name}, nil
	case "darwin":
		return Device{Format: "avfoundation", Input: r.inputOr(":0")}, nil
	case "linux":
		return Device{Format: "pulse", Input: r.inputOr("default")}, nil
	default:
		return Device{}, fmt.Errorf("%w: %s", ErrUnsupportedPlatform, r.goos)
	}
}

func (r *Resolver) inputOr(fallback string) string {
	if r.cfg.Input != "" {
		return r.cfg.Input
	}
	return fallback
}

func (r *Resolver) firstDirectShowAudio(ctx context.Context) (string, error) {
	args, err := shellwords.NewParser().Parse(r.cfg.Command)
	if err != nil || len(args) == 0 {
		return "", fmt.Errorf("parse capture command: %q", r.cfg.Command)
	}
	out, err := r.list(ctx, args[0], "-hide_banner", "-list_devices", "true", "-f", "dshow", "-i", "dummy")
	if err != nil {
		return "", fmt.Errorf("list dshow devices: %w", err)
	}
	name := parseDirectShowAudio(string(out))
	if name == "" {
		return "", ErrNoDevice
	}
	return name, nil
}

var (
	taggedAudio = regexp.MustCompile(`"([^"]+)"\s+\(audio\)`)
	quotedName  = regexp.MustCompile(`\]\s+"([^"]+)"`)
)

// parseDirectShowAudio returns the first audio device in a dshow listing.
// Newer ffmpeg tags each device with (audio); older builds group devices
// under a "DirectShow audio devices" header.
func parseDirectShowAudio(listing string) string {
	if m := taggedAudio.FindStringSubmatch(listing); m != nil {
		return m[1]
	}
	inAudio := false
	scanner := bufio.NewScanner(strings.NewReader(listing))
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.Contains(line, "DirectShow audio devices"):
			inAudio = true
		case strings.Contains(line, "DirectShow video devices"):
			inAudio = false
		case inAudio && !strings.Contains(line, "Alternative name"):
			if m := quotedName.FindStringSubmatch(line); m != nil {
				return m[1]
			}
		}
	}
	return ""
}

// runListing tolerates the non-zero exit ffmpeg always reports for the
// dummy input; only a missing binary is an error.
func runListing(ctx context.Context, name string, args ...string) ([]byte, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return nil, err
	}
	return out, nil
}
