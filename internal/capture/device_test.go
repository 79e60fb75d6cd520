package capture

import (
	"context"
	"errors"
	"testing"

	"github.com/loqalabs/jarvis/internal/config"
)

const modernListing = `[dshow @ 000001] "Integrated Camera" (video)
[dshow @ 000001]   Alternative name "@device_pnp_\\?\usb#vid"
[dshow @ 000001] "Headset (realme Buds T300 Hands-Free AG Audio)" (audio)
[dshow @ 000001]   Alternative name "@device_cm_{33D9A762}"
[dshow @ 000001] "Microphone Array (Realtek)" (audio)
dummy: Immediate exit requested`

const legacyListing = `[dshow @ 0000] DirectShow video devices (some may be both video and audio devices)
[dshow @ 0000]  "Integrated Camera"
[dshow @ 0000]     Alternative name "@device_pnp"
[dshow @ 0000] DirectShow audio devices
[dshow @ 0000]  "Microphone (USB Audio)"
[dshow @ 0000]     Alternative name "@device_cm"
dummy: Immediate exit requested`

func TestParseDirectShowAudio(t *testing.T) {
	if got := parseDirectShowAudio(modernListing); got != "Headset (realme Buds T300 Hands-Free AG Audio)" {
		t.Fatalf("unexpected device from tagged listing: %q", got)
	}
	if got := parseDirectShowAudio(legacyListing); got != "Microphone (USB Audio)" {
		t.Fatalf("unexpected device from legacy listing: %q", got)
	}
	if got := parseDirectShowAudio(`[dshow @ 0] "Camera" (video)`); got != "" {
		t.Fatalf("expected no audio device, got %q", got)
	}
}

func resolverFor(goos string, cfg config.CaptureConfig, listing string) *Resolver {
	if cfg.Command == "" {
		cfg.Command = "ffmpeg"
	}
	r := NewResolver(cfg)
	r.goos = goos
	r.list = func(context.Context, string, ...string) ([]byte, error) { return []byte(listing), nil }
	return r
}

func TestResolvePerPlatform(t *testing.T) {
	cases := []struct {
		goos string
		want Device
	}{
		{"windows", Device{Format: "dshow", Input: "audio=Headset (realme Buds T300 Hands-Free AG Audio)"}},
		{"darwin", Device{Format: "avfoundation", Input: ":0"}},
		{"linux", Device{Format: "pulse", Input: "default"}},
	}
	for _, tc := range cases {
		t.Run(tc.goos, func(t *testing.T) {
			got, err := resolverFor(tc.goos, config.CaptureConfig{DeviceStrategy: "auto"}, modernListing).Resolve(context.Background())
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %+v, got %+v", tc.want, got)
			}
		})
	}
}

func TestResolveUnsupportedPlatform(t *testing.T) {
	_, err := resolverFor("plan9", config.CaptureConfig{DeviceStrategy: "auto"}, "").Resolve(context.Background())
	if !errors.Is(err, ErrUnsupportedPlatform) {
		t.Fatalf("expected unsupported platform, got %v", err)
	}
}

func TestResolveWindowsWithoutAudioDevice(t *testing.T) {
	_, err := resolverFor("windows", config.CaptureConfig{DeviceStrategy: "auto"}, "no devices").Resolve(context.Background())
	if !errors.Is(err, ErrNoDevice) {
		t.Fatalf("expected no device error, got %v", err)
	}
}

func TestResolveFixedAndOverride(t *testing.T) {
	fixed := config.CaptureConfig{DeviceStrategy: "fixed", InputFormat: "alsa", Input: "hw:1"}
	got, err := resolverFor("plan9", fixed, "").Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != (Device{Format: "alsa", Input: "hw:1"}) {
		t.Fatalf("unexpected fixed device: %+v", got)
	}

	override := config.CaptureConfig{DeviceStrategy: "auto", Input: ":2"}
	got, err = resolverFor("darwin", override, "").Resolve(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Input != ":2" {
		t.Fatalf("expected input override, got %+v", got)
	}
}
