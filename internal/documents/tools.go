package documents

import (
	"context"
	"fmt"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
)

// Tool names.
const (
	SearchToolName = "search_stored_documents"
	ListToolName   = "list_documents"
	ReadToolName   = "read_document"
)

// DefaultDescription describes the server when the config gives none.
const DefaultDescription = "Local document library: list, read and search stored text documents"

// NewServer exposes lib as an in-process tool server under id.
func NewServer(id string, lib *Library, searchLimit int) *mcp.LocalServer {
	srv := mcp.NewLocalServer(id)

	srv.Register(mcp.ToolDefinition{
		Name: SearchToolName,
		Description: `Search stored documents for passages relevant to a query. Usage: input={"input": {"query": "patent protection"}} ` +
			`result = await mcp.call_tool('search_stored_documents', input)`,
		InputSchema: mcp.InputSchema(map[string]any{
			"query": map[string]any{"type": "string"},
		}, "query"),
	}, func(ctx context.Context, args map[string]any) (*mcp.ToolResult, error) {
		query, _ := mcp.InputArgs(args)["query"].(string)
		hits, err := lib.Search(ctx, query, searchLimit)
		if err != nil {
			return nil, err
		}
		out := make([]string, 0, len(hits))
		for _, h := range hits {
			out = append(out, fmt.Sprintf("%s\n[Source: %s, chunk %d]", h.Text, h.Source, h.Chunk))
		}
		return mcp.JSONResult(out)
	})

	srv.Register(mcp.ToolDefinition{
		Name: ListToolName,
		Description: `List the stored documents. Usage: input={"input": {}} ` +
			`result = await mcp.call_tool('list_documents', input)`,
		InputSchema: mcp.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ map[string]any) (*mcp.ToolResult, error) {
		paths, err := lib.List(ctx)
		if err != nil {
			return nil, err
		}
		if paths == nil {
			paths = []string{}
		}
		return mcp.JSONResult(paths)
	})

	srv.Register(mcp.ToolDefinition{
		Name: ReadToolName,
		Description: `Read one stored document by the path list_documents returns. Usage: input={"input": {"path": "notes/tesla.md"}} ` +
			`result = await mcp.call_tool('read_document', input)`,
		InputSchema: mcp.InputSchema(map[string]any{
			"path": map[string]any{"type": "string"},
		}, "path"),
	}, func(_ context.Context, args map[string]any) (*mcp.ToolResult, error) {
		path, _ := mcp.InputArgs(args)["path"].(string)
		text, err := lib.Read(path)
		if err != nil {
			return nil, err
		}
		return mcp.JSONResult(text)
	})

	return srv
}
