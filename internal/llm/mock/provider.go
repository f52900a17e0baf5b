package mock

import (
	"context"
	"sync"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
)

// Provider is a test double implementing llm.Provider.
type Provider struct {
	NameValue string
	ChatFn    func(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error)
	// Replies are returned in order when ChatFn is nil; the last one repeats.
	Replies []string

	mu       sync.Mutex
	requests []llm.ChatRequest
}

func (p *Provider) Name() string {
	if p.NameValue != "" {
		return p.NameValue
	}
	return "mock"
}

func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	p.mu.Lock()
	n := len(p.requests)
	p.requests = append(p.requests, req)
	p.mu.Unlock()

	if p.ChatFn != nil {
		return p.ChatFn(ctx, req)
	}
	content := "mock"
	if len(p.Replies) > 0 {
		if n >= len(p.Replies) {
			n = len(p.Replies) - 1
		}
		content = p.Replies[n]
	}
	return llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: content,
		},
		ProviderName: p.Name(),
		Model:        req.Model,
	}, nil
}

// Requests returns a copy of every request received so far.
func (p *Provider) Requests() []llm.ChatRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]llm.ChatRequest(nil), p.requests...)
}
