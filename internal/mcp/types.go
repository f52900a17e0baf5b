package mcp

import (
	"context"
	"fmt"
	"strings"
)

// ToolDefinition is a tool as advertised by tools/list.
type ToolDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema,omitempty"`
}

// ContentBlock is one content item of a tool result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// ToolResult is the payload of a tools/call response.
type ToolResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError,omitempty"`
}

// TextResult wraps s as a single text block.
func TextResult(s string) *ToolResult {
	return &ToolResult{Content: []ContentBlock{{Type: "text", Text: s}}}
}

// ErrorResult wraps an error message as a failed tool result.
func ErrorResult(msg string) *ToolResult {
	r := TextResult(msg)
	r.IsError = true
	return r
}

// Text joins the text blocks; other block types appear as [type] markers.
func (r *ToolResult) Text() string {
	if r == nil {
		return ""
	}
	parts := make([]string, 0, len(r.Content))
	for _, b := range r.Content {
		if b.Type == "text" || b.Type == "" {
			parts = append(parts, b.Text)
			continue
		}
		parts = append(parts, fmt.Sprintf("[%s]", b.Type))
	}
	return strings.Join(parts, "\n")
}

// Dispatcher is the tool-calling surface the agent core consumes.
type Dispatcher interface {
	ListAllTools(ctx context.Context) ([]string, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
}

// Server is anything MultiClient can route calls to.
type Server interface {
	ID() string
	ListTools(ctx context.Context) ([]ToolDefinition, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*ToolResult, error)
	Close() error
}
