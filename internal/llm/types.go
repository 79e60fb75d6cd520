package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	openai "github.com/openai/openai-go/v3"

	"github.com/loqalabs/jarvis/internal/config"
	"github.com/loqalabs/jarvis/internal/conversation"
)

// Request describes one chat completion over the conversation so far.
type Request struct {
	SessionID   string
	Model       string
	Messages    []conversation.Message
	MaxTokens   int
	Temperature float64
	TraceID     string
}

// Chunk represents streamed model output.
type Chunk struct {
	SessionID        string
	Content          string
	Partial          bool
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
	TraceID          string
}

// Reply is the assembled result of a generation.
type Reply struct {
	Content          string
	PromptTokens     int
	CompletionTokens int
	Latency          time.Duration
}

// Generator defines a pluggable LLM backend.
type Generator interface {
	Generate(ctx context.Context, req Request, consumer func(Chunk) error) error
}

// OptionsFromConfig builds request defaults from config.
func OptionsFromConfig(cfg config.LLMConfig) Request {
	return Request{Model: cfg.Model, MaxTokens: cfg.MaxTokens, Temperature: cfg.Temperature}
}

// Complete runs g and concatenates every chunk into one reply.
func Complete(ctx context.Context, g Generator, req Request) (Reply, error) {
	var (
		b     strings.Builder
		reply Reply
	)
	start := time.Now()
	err := g.Generate(ctx, req, func(c Chunk) error {
		b.WriteString(c.Content)
		if c.PromptTokens > 0 {
			reply.PromptTokens = c.PromptTokens
		}
		if c.CompletionTokens > 0 {
			reply.CompletionTokens = c.CompletionTokens
		}
		return nil
	})
	if err != nil {
		return Reply{}, err
	}
	reply.Content = strings.TrimSpace(b.String())
	reply.Latency = time.Since(start)
	return reply, nil
}

// New selects the backend named by cfg.Mode. client is only used in
// openai mode.
func New(cfg config.LLMConfig, client openai.Client) (Generator, error) {
	switch cfg.Mode {
	case "openai":
		return NewOpenAIGenerator(client), nil
	case "ollama":
		return NewOllamaGenerator(cfg.Endpoint, cfg.Model), nil
	case "exec":
		return NewExecGenerator(cfg.Command)
	case "mock":
		return NewMockGenerator(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}
