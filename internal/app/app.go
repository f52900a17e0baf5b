// Package app assembles the reasoning core from configuration: model
// backends, tool servers, conversation memory, the local document library
// and the agent loop.
package app

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/agent"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/documents"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/executor"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm/configbuilder"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/logging"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/memory"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/prompts"
)

const memoryDescription = "Conversation memory: search past conversations and the current session"

// App is a ready-to-run agent with the resources it owns.
type App struct {
	Config  *config.Config
	Logger  *zap.Logger
	Metrics *observability.Metrics
	Tools   *mcp.MultiClient
	// Memory and History are nil when disabled.
	Memory  *memory.Store
	History *history.Retriever
	Loop    *agent.Loop
	Servers map[string]string
}

// Build wires an App from cfg. Tool servers that fail to start are logged
// and left out. Close releases everything Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, metrics *observability.Metrics) (*App, error) {
	logger = logging.OrNop(logger)

	registry, err := configbuilder.BuildRegistryFromConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("build registry: %w", err)
	}
	inputGuard := guard.NewInputGuard(guard.Limits{
		MaxLength:    cfg.Guard.MaxInputLength,
		MinLength:    cfg.Guard.MinInputLength,
		MaxURLLength: cfg.Guard.MaxURLLength,
		DenyList:     cfg.Guard.DenyList,
	})
	adapter := llm.NewAdapter(agent.NewStrategyEngine(registry, cfg.Strategy), inputGuard, logger, metrics)

	perceptionTmpl, err := prompts.Load(cfg.Agent.PerceptionPrompt, prompts.Perception)
	if err != nil {
		return nil, err
	}
	decisionTmpl, err := prompts.Load(cfg.Agent.DecisionPrompt, prompts.Decision)
	if err != nil {
		return nil, err
	}

	a := &App{Config: cfg, Logger: logger, Metrics: metrics, Tools: mcp.NewMultiClient(logger, metrics)}
	for _, c := range mcp.ClientsFromConfig(cfg.MCPServers, logger) {
		a.Tools.Add(c)
	}
	if cfg.Memory.Enabled {
		store, err := memory.Open(cfg.Memory.Path, cfg.Memory.WordLimit)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("open memory: %w", err)
		}
		a.Memory = store
		a.Tools.Add(memory.NewServer(store))
	}
	if cfg.Documents.Enabled {
		srv, err := documentsServer(cfg)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Tools.Add(srv)
	}
	if err := a.Tools.Start(ctx); err != nil {
		a.Close()
		return nil, fmt.Errorf("start tool servers: %w", err)
	}
	a.Servers = a.serverDescriptions()

	var hist agent.HistorySource
	if cfg.History.Enabled {
		a.History = history.NewRetriever(a.Tools, history.Options{
			SearchTool:  cfg.History.SearchTool,
			CurrentTool: cfg.History.CurrentTool,
			Timeout:     cfg.History.Timeout,
		}, logger, metrics)
		hist = a.History
	}

	exec, err := executor.New(cfg.Executor, a.Tools, logger)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("build executor: %w", err)
	}

	loopCfg := agent.LoopConfig{
		Perceiver: agent.NewPerceiver(agent.PerceiverConfig{
			Generator:  adapter,
			History:    hist,
			Guard:      inputGuard,
			Template:   perceptionTmpl,
			MaxHistory: cfg.History.MaxResults,
			Logger:     logger,
			Metrics:    metrics,
		}),
		Planner: agent.NewPlanner(agent.PlannerConfig{
			Generator:  adapter,
			History:    hist,
			Guard:      inputGuard,
			Template:   decisionTmpl,
			MaxHistory: cfg.History.MaxResults,
			Logger:     logger,
			Metrics:    metrics,
		}),
		Executor:   exec,
		MaxSteps:   cfg.Agent.MaxSteps,
		MemoryTopK: cfg.Agent.MemoryTopK,
		Logger:     logger,
		Metrics:    metrics,
	}
	if a.Memory != nil {
		loopCfg.Memory = a.Memory
	}
	a.Loop = agent.NewLoop(loopCfg)

	logger.Info("agent ready",
		zap.Strings("servers", a.Tools.ServerIDs()),
		zap.Strings("models", registry.Models()),
		zap.Bool("memory", a.Memory != nil),
		zap.Bool("history", a.History != nil))
	return a, nil
}

func documentsServer(cfg *config.Config) (*mcp.LocalServer, error) {
	d := cfg.Documents
	if cfg.Memory.Enabled && d.ServerID == memory.ServerID {
		return nil, fmt.Errorf("documents.server_id %q is reserved for memory", d.ServerID)
	}
	lib, err := documents.Open(d.Root, documents.Options{
		MaxFiles:     d.MaxFiles,
		MaxFileBytes: d.MaxFileBytes,
		ChunkWords:   d.ChunkWords,
		Extensions:   d.Extensions,
	})
	if err != nil {
		return nil, fmt.Errorf("open documents: %w", err)
	}
	return documents.NewServer(d.ServerID, lib, d.SearchLimit), nil
}

// serverDescriptions maps every started server to its configured
// description.
func (a *App) serverDescriptions() map[string]string {
	configured := a.Config.ServerDescriptions()
	out := make(map[string]string)
	for _, id := range a.Tools.ServerIDs() {
		desc := configured[id]
		if desc == "" {
			switch {
			case id == memory.ServerID:
				desc = memoryDescription
			case a.Config.Documents.Enabled && id == a.Config.Documents.ServerID:
				desc = a.Config.Documents.Description
				if desc == "" {
					desc = documents.DefaultDescription
				}
			}
		}
		out[id] = desc
	}
	return out
}

// NewTurn starts a turn for input. An empty sessionID starts a new session.
func (a *App) NewTurn(input, sessionID string) *agent.Context {
	return agent.NewContext(input, sessionID, a.Tools, a.Servers)
}

// RunTurn runs one turn to completion.
func (a *App) RunTurn(ctx context.Context, c *agent.Context) (agent.Outcome, error) {
	start := time.Now()
	out, err := a.Loop.RunTurn(ctx, c)
	a.Logger.Debug("turn finished",
		zap.String("session_id", c.SessionID),
		zap.String("kind", out.Directive.Kind.String()),
		zap.Int("steps", out.Steps),
		zap.Duration("elapsed", time.Since(start)),
		zap.Error(err))
	return out, err
}

// Close shuts down tool servers and the memory database.
func (a *App) Close() error {
	var first error
	if a.Tools != nil {
		first = a.Tools.Close()
	}
	if a.Memory != nil {
		if err := a.Memory.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
