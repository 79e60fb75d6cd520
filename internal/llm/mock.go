package llm

import (
	"context"
	"strings"
	"time"

	"github.com/loqalabs/jarvis/internal/conversation"
)

type mockGenerator struct{}

func NewMockGenerator() Generator { return &mockGenerator{} }

func (m *mockGenerator) Generate(ctx context.Context, req Request, consumer func(Chunk) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(20 * time.Millisecond):
	}
	var last string
	for i := len(req.Messages) - 1; i >= 0; i-- {
		if req.Messages[i].Role == conversation.RoleUser {
			last = req.Messages[i].Content
			break
		}
	}
	return consumer(Chunk{
		SessionID: req.SessionID,
		Content:   "[mock completion for " + strings.TrimSpace(last) + "]",
		Latency:   20 * time.Millisecond,
	})
}
