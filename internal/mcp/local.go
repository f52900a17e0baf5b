package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// Handler serves one in-process tool.
type Handler func(ctx context.Context, args map[string]any) (*ToolResult, error)

// LocalServer hosts tools in-process under a server id, so they can be
// dispatched exactly like tools on a remote server.
type LocalServer struct {
	id string

	mu       sync.RWMutex
	defs     []ToolDefinition
	handlers map[string]Handler
}

// NewLocalServer creates an empty in-process server.
func NewLocalServer(id string) *LocalServer {
	return &LocalServer{id: id, handlers: make(map[string]Handler)}
}

// Register adds or replaces a tool.
func (s *LocalServer) Register(def ToolDefinition, h Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[def.Name]; !exists {
		s.defs = append(s.defs, def)
	} else {
		for i := range s.defs {
			if s.defs[i].Name == def.Name {
				s.defs[i] = def
			}
		}
	}
	s.handlers[def.Name] = h
}

// ID returns the server id.
func (s *LocalServer) ID() string {
	return s.id
}

// ListTools returns the registered tools in registration order.
func (s *LocalServer) ListTools(context.Context) ([]ToolDefinition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ToolDefinition(nil), s.defs...), nil
}

// CallTool runs a tool. Handler errors become error results, mirroring how
// remote servers report tool failures.
func (s *LocalServer) CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error) {
	s.mu.RLock()
	h, ok := s.handlers[name]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("tool %q not found on %s", name, s.id)
	}
	res, err := h(ctx, args)
	if err != nil {
		return ErrorResult(err.Error()), nil
	}
	return res, nil
}

// Close is a no-op.
func (s *LocalServer) Close() error {
	return nil
}

// InputArgs unwraps {"input": {...}}; bare arguments are accepted as well.
func InputArgs(args map[string]any) map[string]any {
	if in, ok := args["input"].(map[string]any); ok {
		return in
	}
	return args
}

// InputSchema builds the {"input": {...}} object schema local tools share.
func InputSchema(props map[string]any, required ...string) map[string]any {
	input := map[string]any{"type": "object", "properties": props}
	if len(required) > 0 {
		input["required"] = required
	}
	return map[string]any{
		"type":       "object",
		"properties": map[string]any{"input": input},
	}
}

// JSONResult encodes v as the text block {"result": v}.
func JSONResult(v any) (*ToolResult, error) {
	data, err := json.Marshal(map[string]any{"result": v})
	if err != nil {
		return nil, err
	}
	return TextResult(string(data)), nil
}
