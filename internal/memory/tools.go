package memory

import (
	"context"
	"fmt"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
)

// Tool names served by the memory server.
const (
	SearchToolName  = "search_historical_conversations"
	CurrentToolName = "get_current_conversations"
)

// ServerID is the id the memory tools are registered under.
const ServerID = "memory"

// NewServer exposes the store's search and session lookups as in-process
// tools. Results are JSON text of the form {"result": {...}}.
func NewServer(store *Store) *mcp.LocalServer {
	srv := mcp.NewLocalServer(ServerID)

	srv.Register(mcp.ToolDefinition{
		Name: SearchToolName,
		Description: `Search conversation memory between user and YOU. Usage: input={"input": {"query": "anmol singh"}} ` +
			`result = await mcp.call_tool('search_historical_conversations', input)`,
		InputSchema: mcp.InputSchema(map[string]any{
			"query": map[string]any{"type": "string"},
		}, "query"),
	}, func(ctx context.Context, args map[string]any) (*mcp.ToolResult, error) {
		query, _ := mcp.InputArgs(args)["query"].(string)
		res, err := store.Search(ctx, query)
		if err != nil {
			return mcp.JSONResult(map[string]any{
				"message": fmt.Sprintf("Error searching conversations: %v", err),
				"matches": []Match{},
			})
		}
		return mcp.JSONResult(res)
	})

	srv.Register(mcp.ToolDefinition{
		Name: CurrentToolName,
		Description: `Get current session interactions. Usage: input={"input":{}} ` +
			`result = await mcp.call_tool('get_current_conversations', input)`,
		InputSchema: mcp.InputSchema(map[string]any{}),
	}, func(ctx context.Context, _ map[string]any) (*mcp.ToolResult, error) {
		session, ok, err := store.CurrentSession(ctx)
		switch {
		case err != nil:
			return mcp.JSONResult(map[string]any{"message": fmt.Sprintf("Error retrieving conversations: %v", err)})
		case !ok:
			return mcp.JSONResult(map[string]any{"message": "No sessions found"})
		}
		return mcp.JSONResult(session)
	})

	return srv
}
