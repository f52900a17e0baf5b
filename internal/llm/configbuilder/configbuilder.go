package configbuilder

import (
	"context"
	"fmt"
	"os"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
	llmgemini "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm/providers/gemini"
	llmollama "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm/providers/ollama"
	llmopenai "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm/providers/openai"
)

// BuildRegistryFromConfig constructs a registry and providers from config.
// API keys may reference environment variables as $NAME or ${NAME}.
func BuildRegistryFromConfig(ctx context.Context, cfg *config.Config) (*llm.Registry, error) {
	reg := llm.NewRegistry()

	for name, pCfg := range cfg.Providers {
		p, err := buildProvider(ctx, name, pCfg)
		if err != nil {
			return nil, err
		}
		reg.RegisterProvider(name, p)
	}

	for name, mCfg := range cfg.Models {
		reg.RegisterModel(name, llm.ModelRoute{
			Provider:    mCfg.Provider,
			Model:       mCfg.Model,
			Temperature: mCfg.Temperature,
			MaxTokens:   mCfg.MaxTokens,
		}, mCfg.Default)
		if mCfg.Expensive {
			reg.MarkExpensive(name, true)
		}
	}

	if _, _, err := reg.Resolve(""); err != nil {
		return nil, err
	}

	return reg, nil
}

func buildProvider(ctx context.Context, name string, cfg config.ProviderConfig) (llm.Provider, error) {
	apiKey := os.ExpandEnv(cfg.APIKey)
	switch cfg.Type {
	case "gemini":
		p, err := llmgemini.NewProvider(ctx, name, apiKey, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("provider %s: %w", name, err)
		}
		return p, nil
	case "openai", "openrouter", "vllm", "lmstudio", "custom":
		return llmopenai.NewProvider(name, cfg.BaseURL, apiKey, cfg.Timeout), nil
	case "ollama":
		return llmollama.NewProvider(name, cfg.BaseURL, cfg.Timeout), nil
	default:
		return nil, fmt.Errorf("unknown provider type %q for provider %s", cfg.Type, name)
	}
}
