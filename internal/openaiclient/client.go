// Package openaiclient builds the API client shared by the openai-mode
// speech, chat and synthesis backends.
package openaiclient

import (
	"errors"
	"net/http"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/loqalabs/jarvis/internal/config"
)

// New returns a client that makes exactly MaxRetries+1 attempts per call.
func New(cfg config.OpenAIConfig) (openai.Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return openai.Client{}, errors.New("openai api key not set")
	}
	httpClient, err := newHTTPClient(cfg)
	if err != nil {
		return openai.Client{}, err
	}

	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(cfg.MaxRetries),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return openai.NewClient(opts...), nil
}

// newHTTPClient leaves http.Client.Timeout unset: it would also cap reading
// the body, and speech bodies are streamed at playback speed. The request
// timeout only bounds the wait for response headers; the whole call is
// bounded by its context.
func newHTTPClient(cfg config.OpenAIConfig) (*http.Client, error) {
	headerTimeout := time.Duration(cfg.RequestTimeoutMS) * time.Millisecond
	if cfg.Proxy != "" {
		return NewSocksClient(cfg.Proxy, headerTimeout)
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &http.Client{Transport: transport}, nil
}
