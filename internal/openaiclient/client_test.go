package openaiclient

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/loqalabs/jarvis/internal/config"
)

func TestNewRequiresKey(t *testing.T) {
	if _, err := New(config.OpenAIConfig{}); err == nil {
		t.Fatal("expected error without api key")
	}
}

func TestNewWithProxy(t *testing.T) {
	if _, err := New(config.OpenAIConfig{APIKey: "sk-test", Proxy: "127.0.0.1:1080", RequestTimeoutMS: 1000}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestNewSocksClientTimeout(t *testing.T) {
	client, err := NewSocksClient("127.0.0.1:1080", 3*time.Second)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 0 {
		t.Fatalf("client timeout would cut off streamed bodies, got %v", client.Timeout)
	}
	transport, ok := client.Transport.(*http.Transport)
	if !ok {
		t.Fatalf("unexpected transport %T", client.Transport)
	}
	if transport.ResponseHeaderTimeout != 3*time.Second {
		t.Fatalf("expected header timeout to carry over, got %v", transport.ResponseHeaderTimeout)
	}
}

func TestHTTPClientDoesNotCapBody(t *testing.T) {
	client, err := newHTTPClient(config.OpenAIConfig{APIKey: "sk-test", RequestTimeoutMS: 50})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if client.Timeout != 0 {
		t.Fatalf("expected no client timeout, got %v", client.Timeout)
	}

	// Headers arrive at once; the body trickles in for longer than the
	// request timeout.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		flusher := w.(http.Flusher)
		for i := 0; i < 4; i++ {
			_, _ = w.Write([]byte("chunk"))
			flusher.Flush()
			time.Sleep(40 * time.Millisecond)
		}
	}))
	t.Cleanup(srv.Close)

	resp, err := client.Get(srv.URL)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("body cut off: %v", err)
	}
	if string(body) != "chunkchunkchunkchunk" {
		t.Fatalf("unexpected body %q", body)
	}
}
