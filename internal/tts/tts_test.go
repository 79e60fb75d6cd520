package tts

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/loqalabs/jarvis/internal/config"
)

func TestOpenAISynthStreamsBody(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/audio/speech" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "audio/mpeg")
		_, _ = w.Write([]byte("ID3-audio-bytes"))
	}))
	defer server.Close()

	client := openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	cfg := config.TTSConfig{Model: "tts-1", Voice: "nova", Speed: 1.25, Format: "mp3"}
	stream, err := NewOpenAISynth(client).Synthesize(context.Background(), RequestFromConfig(cfg, "Hello there"))
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	defer stream.Close()
	audio, err := io.ReadAll(stream)
	if err != nil {
		t.Fatalf("read stream: %v", err)
	}
	if string(audio) != "ID3-audio-bytes" {
		t.Fatalf("unexpected audio %q", audio)
	}
	if got["input"] != "Hello there" || got["voice"] != "nova" || got["model"] != "tts-1" || got["response_format"] != "mp3" {
		t.Fatalf("unexpected request: %v", got)
	}
	if got["speed"] != 1.25 {
		t.Fatalf("expected speed 1.25, got %v", got["speed"])
	}
}

func TestOpenAISynthDefaults(t *testing.T) {
	var got map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_, _ = w.Write([]byte("x"))
	}))
	defer server.Close()

	client := openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	stream, err := NewOpenAISynth(client).Synthesize(context.Background(), SynthRequest{Text: "hi"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	stream.Close()
	if got["voice"] != "alloy" || got["model"] != "tts-1" || got["response_format"] != "mp3" {
		t.Fatalf("expected defaults, got %v", got)
	}
	if _, ok := got["speed"]; ok {
		t.Fatalf("speed should be omitted when unset, got %v", got["speed"])
	}
}

func TestOpenAISynthErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = io.WriteString(w, `{"error":{"message":"bad key"}}`)
	}))
	defer server.Close()

	client := openai.NewClient(option.WithAPIKey("sk-test"), option.WithBaseURL(server.URL), option.WithMaxRetries(0))
	if _, err := NewOpenAISynth(client).Synthesize(context.Background(), SynthRequest{Text: "hi"}); err == nil {
		t.Fatal("expected error")
	}
}

func TestMockSynth(t *testing.T) {
	stream, err := NewMockSynth().Synthesize(context.Background(), SynthRequest{Text: "spoken"})
	if err != nil {
		t.Fatalf("synthesize: %v", err)
	}
	data, _ := io.ReadAll(stream)
	if string(data) != "spoken" {
		t.Fatalf("unexpected mock audio %q", data)
	}
}

func TestNewSelectsBackend(t *testing.T) {
	if _, err := New(config.TTSConfig{Mode: "mock"}, openai.Client{}); err != nil {
		t.Fatalf("mock: %v", err)
	}
	if _, err := New(config.TTSConfig{Mode: "exec"}, openai.Client{}); err == nil {
		t.Fatal("expected error for empty command")
	}
	if _, err := New(config.TTSConfig{Mode: "ttsopenai"}, openai.Client{}); err == nil {
		t.Fatal("expected error for unknown mode")
	}
}
