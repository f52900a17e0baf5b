package mcp

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
)

// NoDescription is rendered for tools that advertise no description.
const NoDescription = "No description available"

// ErrToolNotFound is returned when no connected server offers a tool.
var ErrToolNotFound = errors.New("tool not found")

type initializer interface {
	Initialize(ctx context.Context) error
}

// MultiClient fans tool discovery out over several servers and routes each
// call to the server that advertised the tool. The first server to claim a
// tool name owns it.
type MultiClient struct {
	logger  *zap.Logger
	metrics *observability.Metrics

	mu      sync.RWMutex
	pending []Server
	servers []Server
	tools   map[string][]ToolDefinition // server id -> tools
	routes  map[string]Server           // tool name -> server
}

// NewMultiClient creates an empty dispatcher.
func NewMultiClient(logger *zap.Logger, metrics *observability.Metrics) *MultiClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MultiClient{
		logger:  logger,
		metrics: metrics,
		tools:   make(map[string][]ToolDefinition),
		routes:  make(map[string]Server),
	}
}

// Add queues a server for the next Start.
func (m *MultiClient) Add(s Server) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending = append(m.pending, s)
}

// ClientsFromConfig builds clients for the stdio and http entries of cfgs.
// Local entries are served by in-process servers added separately.
func ClientsFromConfig(cfgs []config.MCPServerConfig, logger *zap.Logger) []*Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	var out []*Client
	for _, c := range cfgs {
		l := logger.With(zap.String("mcp_server", c.ID))
		switch c.Transport {
		case config.TransportStdio:
			out = append(out, NewClient(c.ID, NewStdioTransport(StdioConfig{
				Command: c.Command,
				Args:    c.Args,
				Dir:     c.Cwd,
				Env:     c.Env,
				Logger:  l,
			}), logger))
		case config.TransportHTTP:
			out = append(out, NewClient(c.ID, NewHTTPTransport(HTTPConfig{
				URL:     c.URL,
				Headers: c.Headers,
				Logger:  l,
			}), logger))
		}
	}
	return out
}

// Start initializes every queued server and indexes its tools. A server
// that fails is logged, closed and left out; the rest keep working.
func (m *MultiClient) Start(ctx context.Context) error {
	m.mu.Lock()
	pending := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, s := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if init, ok := s.(initializer); ok {
			if err := init.Initialize(ctx); err != nil {
				m.logger.Warn("mcp server unavailable", zap.String("server", s.ID()), zap.Error(err))
				_ = s.Close()
				continue
			}
		}
		defs, err := s.ListTools(ctx)
		if err != nil {
			m.logger.Warn("mcp tool discovery failed", zap.String("server", s.ID()), zap.Error(err))
			_ = s.Close()
			continue
		}
		m.index(s, defs)
	}
	return nil
}

func (m *MultiClient) index(s Server, defs []ToolDefinition) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.servers = append(m.servers, s)
	var kept []ToolDefinition
	for _, d := range defs {
		if owner, taken := m.routes[d.Name]; taken {
			m.logger.Warn("duplicate tool name ignored",
				zap.String("tool", d.Name), zap.String("server", s.ID()), zap.String("owner", owner.ID()))
			continue
		}
		m.routes[d.Name] = s
		kept = append(kept, d)
	}
	m.tools[s.ID()] = kept
	m.logger.Info("mcp server ready", zap.String("server", s.ID()), zap.Int("tools", len(kept)))
}

// ServerIDs lists connected servers in start order.
func (m *MultiClient) ServerIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.servers))
	for _, s := range m.servers {
		ids = append(ids, s.ID())
	}
	return ids
}

// ListAllTools returns every tool name, grouped by server in start order.
func (m *MultiClient) ListAllTools(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var names []string
	for _, s := range m.servers {
		for _, d := range m.tools[s.ID()] {
			names = append(names, d.Name)
		}
	}
	return names, nil
}

// Tools returns the tool definitions of the given servers, or of all
// servers when ids is empty. Unknown ids are ignored.
func (m *MultiClient) Tools(ids []string) []ToolDefinition {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(ids) == 0 {
		for _, s := range m.servers {
			ids = append(ids, s.ID())
		}
	}
	var out []ToolDefinition
	for _, id := range ids {
		out = append(out, m.tools[id]...)
	}
	return out
}

// ToolDescriptions renders "- name: description" lines for the tools of
// the given servers.
func (m *MultiClient) ToolDescriptions(ids []string) string {
	defs := m.Tools(ids)
	lines := make([]string, 0, len(defs))
	for _, d := range defs {
		desc := strings.TrimSpace(d.Description)
		if desc == "" {
			desc = NoDescription
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", d.Name, desc))
	}
	return strings.Join(lines, "\n")
}

// CallTool routes a call to the server owning name.
func (m *MultiClient) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	m.mu.RLock()
	s, ok := m.routes[name]
	m.mu.RUnlock()
	if !ok {
		m.metrics.RecordToolCall(name, "not_found")
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	res, err := s.CallTool(ctx, name, args)
	switch {
	case err != nil:
		m.metrics.RecordToolCall(name, "error")
		m.logger.Warn("tool call failed", zap.String("tool", name), zap.String("server", s.ID()), zap.Error(err))
		return nil, err
	case res.IsError:
		m.metrics.RecordToolCall(name, "tool_error")
	default:
		m.metrics.RecordToolCall(name, "ok")
	}
	return res, nil
}

// Close shuts down every server and returns the first error.
func (m *MultiClient) Close() error {
	m.mu.Lock()
	servers := append(m.servers, m.pending...)
	m.servers, m.pending = nil, nil
	m.routes = make(map[string]Server)
	m.tools = make(map[string][]ToolDefinition)
	m.mu.Unlock()

	var first error
	for _, s := range servers {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
