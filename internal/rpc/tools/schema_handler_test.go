package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
)

func TestSchemaHandler(t *testing.T) {
	math := mcp.NewLocalServer("math")
	math.Register(mcp.ToolDefinition{Name: "add", Description: "Add two numbers"}, func(context.Context, map[string]any) (*mcp.ToolResult, error) {
		return mcp.TextResult("0"), nil
	})
	multi := mcp.NewMultiClient(nil, nil)
	multi.Add(math)
	require.NoError(t, multi.Start(context.Background()))
	t.Cleanup(func() { multi.Close() })

	h := SchemaHandler{Catalogue: multi, Descriptions: map[string]string{"math": "Math tools"}}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var body struct {
		Servers []rpc.ServerTools `json:"servers"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Equal(t, []rpc.ServerTools{{
		ID:          "math",
		Description: "Math tools",
		Tools:       []rpc.ToolInfo{{Name: "add", Description: "Add two numbers"}},
	}}, body.Servers)
}

func TestSchemaHandlerEmptyAndMethod(t *testing.T) {
	rr := httptest.NewRecorder()
	SchemaHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/tools", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	require.JSONEq(t, `{"servers": []}`, rr.Body.String())

	rr = httptest.NewRecorder()
	SchemaHandler{}.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/tools", nil))
	require.Equal(t, http.StatusMethodNotAllowed, rr.Code)
}
