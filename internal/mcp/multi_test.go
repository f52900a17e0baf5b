package mcp

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
)

func echoHandler(prefix string) Handler {
	return func(_ context.Context, args map[string]any) (*ToolResult, error) {
		s, _ := args["s"].(string)
		return TextResult(prefix + s), nil
	}
}

type failingServer struct {
	*LocalServer
	closed bool
}

func (f *failingServer) Initialize(context.Context) error { return errors.New("connection refused") }
func (f *failingServer) Close() error {
	f.closed = true
	return nil
}

func TestMultiClientRoutesByToolName(t *testing.T) {
	math := NewLocalServer("math")
	math.Register(ToolDefinition{Name: "add", Description: "Add two numbers"}, echoHandler("add:"))
	docs := NewLocalServer("documents")
	docs.Register(ToolDefinition{Name: "search_documents"}, echoHandler("doc:"))

	m := NewMultiClient(nil, nil)
	m.Add(math)
	m.Add(docs)
	require.NoError(t, m.Start(context.Background()))

	names, err := m.ListAllTools(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"add", "search_documents"}, names)
	require.Equal(t, []string{"math", "documents"}, m.ServerIDs())

	res, err := m.CallTool(context.Background(), "search_documents", map[string]any{"s": "x"})
	require.NoError(t, err)
	require.Equal(t, "doc:x", res.Text())

	_, err = m.CallTool(context.Background(), "missing", nil)
	require.ErrorIs(t, err, ErrToolNotFound)
}

func TestMultiClientFirstRegistrationWins(t *testing.T) {
	a := NewLocalServer("a")
	a.Register(ToolDefinition{Name: "echo"}, echoHandler("a:"))
	b := NewLocalServer("b")
	b.Register(ToolDefinition{Name: "echo"}, echoHandler("b:"))
	b.Register(ToolDefinition{Name: "other"}, echoHandler("b:"))

	m := NewMultiClient(nil, nil)
	m.Add(a)
	m.Add(b)
	require.NoError(t, m.Start(context.Background()))

	res, err := m.CallTool(context.Background(), "echo", map[string]any{"s": "1"})
	require.NoError(t, err)
	require.Equal(t, "a:1", res.Text())
	require.Equal(t, "- other: No description available", m.ToolDescriptions([]string{"b"}))
}

func TestMultiClientDropsFailedServers(t *testing.T) {
	bad := &failingServer{LocalServer: NewLocalServer("broken")}
	good := NewLocalServer("good")
	good.Register(ToolDefinition{Name: "ping"}, echoHandler("pong"))

	m := NewMultiClient(nil, nil)
	m.Add(bad)
	m.Add(good)
	require.NoError(t, m.Start(context.Background()))

	require.True(t, bad.closed)
	require.Equal(t, []string{"good"}, m.ServerIDs())
}

func TestMultiClientToolDescriptions(t *testing.T) {
	math := NewLocalServer("math")
	math.Register(ToolDefinition{Name: "add", Description: "Add two numbers"}, echoHandler(""))
	math.Register(ToolDefinition{Name: "mul", Description: "  "}, echoHandler(""))
	docs := NewLocalServer("documents")
	docs.Register(ToolDefinition{Name: "search_documents", Description: "Search docs"}, echoHandler(""))

	m := NewMultiClient(nil, nil)
	m.Add(math)
	m.Add(docs)
	require.NoError(t, m.Start(context.Background()))

	require.Equal(t, "- add: Add two numbers\n- mul: No description available", m.ToolDescriptions([]string{"math"}))
	require.Equal(t,
		"- add: Add two numbers\n- mul: No description available\n- search_documents: Search docs",
		m.ToolDescriptions(nil))
	require.Equal(t, "", m.ToolDescriptions([]string{"unknown"}))
}

func TestMultiClientHandlerErrorBecomesToolError(t *testing.T) {
	s := NewLocalServer("math")
	s.Register(ToolDefinition{Name: "div"}, func(context.Context, map[string]any) (*ToolResult, error) {
		return nil, errors.New("division by zero")
	})

	m := NewMultiClient(nil, nil)
	m.Add(s)
	require.NoError(t, m.Start(context.Background()))

	res, err := m.CallTool(context.Background(), "div", nil)
	require.NoError(t, err)
	require.True(t, res.IsError)
	require.Equal(t, "division by zero", res.Text())
}

func TestMultiClientClose(t *testing.T) {
	s := &failingServer{LocalServer: NewLocalServer("x")}
	m := NewMultiClient(nil, nil)
	m.Add(s)
	require.NoError(t, m.Close())
	require.True(t, s.closed)
	require.Empty(t, m.ServerIDs())
}

func TestClientsFromConfigSkipsLocal(t *testing.T) {
	clients := ClientsFromConfig([]config.MCPServerConfig{
		{ID: "math", Transport: config.TransportStdio, Command: "python3", Args: []string{"math.py"}},
		{ID: "web", Transport: config.TransportHTTP, URL: "http://localhost:9000/mcp"},
		{ID: "memory", Transport: config.TransportLocal},
	}, nil)

	require.Len(t, clients, 2)
	require.Equal(t, "math", clients[0].ID())
	require.Equal(t, "web", clients[1].ID())
}
