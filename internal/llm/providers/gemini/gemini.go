package gemini

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
)

// DefaultModel is used when a route leaves the physical model empty.
const DefaultModel = "gemini-2.0-flash"

type generator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// Provider implements chat on the Gemini API.
type Provider struct {
	name   string
	models generator
}

// NewProvider builds a Gemini provider. An empty apiKey lets the SDK fall
// back to GOOGLE_API_KEY / GEMINI_API_KEY from the environment.
func NewProvider(ctx context.Context, name, apiKey, baseURL string) (*Provider, error) {
	cfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		cfg.HTTPOptions = genai.HTTPOptions{BaseURL: baseURL}
	}
	client, err := genai.NewClient(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Provider{name: name, models: client.Models}, nil
}

// Name returns provider identifier.
func (p *Provider) Name() string {
	return p.name
}

// Chat sends the conversation as Gemini contents. System messages become the
// system instruction.
func (p *Provider) Chat(ctx context.Context, req llm.ChatRequest) (llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = DefaultModel
	}

	contents, system := toContents(req.Messages)
	if len(contents) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("gemini: no user content")
	}

	cfg := &genai.GenerateContentConfig{}
	if req.Temperature > 0 {
		temp := float32(req.Temperature)
		cfg.Temperature = &temp
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if system != "" {
		cfg.SystemInstruction = genai.NewContentFromText(system, genai.RoleUser)
	}

	resp, err := p.models.GenerateContent(ctx, model, contents, cfg)
	if err != nil {
		return llm.ChatResponse{}, fmt.Errorf("gemini: %w", err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return llm.ChatResponse{}, fmt.Errorf("gemini: empty candidates")
	}

	out := llm.ChatResponse{
		Message: llm.ChatMessage{
			Role:    llm.RoleAssistant,
			Content: resp.Text(),
		},
		FinishReason: strings.ToLower(string(resp.Candidates[0].FinishReason)),
		ProviderName: p.name,
		Model:        model,
	}
	if u := resp.UsageMetadata; u != nil {
		out.Usage = llm.Usage{
			PromptTokens:     int(u.PromptTokenCount),
			CompletionTokens: int(u.CandidatesTokenCount),
			TotalTokens:      int(u.TotalTokenCount),
		}
	}
	return out, nil
}

func toContents(msgs []llm.ChatMessage) ([]*genai.Content, string) {
	var (
		contents []*genai.Content
		system   []string
	)
	for _, m := range msgs {
		switch m.Role {
		case llm.RoleSystem:
			system = append(system, m.Content)
		case llm.RoleAssistant:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleModel))
		default:
			contents = append(contents, genai.NewContentFromText(m.Content, genai.RoleUser))
		}
	}
	return contents, strings.Join(system, "\n\n")
}
