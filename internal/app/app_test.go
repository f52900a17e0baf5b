package app

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/agent"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/documents"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/memory"
)

const recallPlan = `async def solve():
    import json
    result = await mcp.call_tool('search_historical_conversations', {"input": {"query": "zebra"}})
    data = json.loads(result.content[0].text)
    return "FINAL_ANSWER: " + str(len(data["result"]["matches"])) + " matches"`

// fakeOllama answers perception prompts with JSON and planning prompts
// with plan.
func fakeOllama(t *testing.T, plan string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Messages []struct {
				Content string `json:"content"`
			} `json:"messages"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		prompt := req.Messages[len(req.Messages)-1].Content
		reply := `{"intent": "recall", "entities": ["zebra"], "tool_hint": "search_historical_conversations", "tags": [], "selected_servers": ["memory"]}`
		if strings.Contains(prompt, "def solve") {
			reply = plan
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":     map[string]string{"role": "assistant", "content": reply},
			"done":        true,
			"done_reason": "stop",
		})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testConfig(t *testing.T, baseURL string) *config.Config {
	t.Helper()
	return &config.Config{
		Providers: map[string]config.ProviderConfig{
			"local": {Type: "ollama", BaseURL: baseURL, Timeout: 5 * time.Second},
		},
		Models: map[string]config.ModelConfig{
			"llama": {Provider: "local", Model: "llama3", Default: true},
		},
		Agent:   config.AgentConfig{MaxSteps: 3, MemoryTopK: 3},
		History: config.HistoryConfig{Enabled: true, Timeout: 2 * time.Second, MaxResults: 3},
		Memory:  config.MemoryConfig{Enabled: true, Path: filepath.Join(t.TempDir(), "memory", "cortexr.db")},
		Executor: config.ExecutorConfig{
			Command:         "python3",
			TimeoutSeconds:  20,
			AllowedCommands: []string{"python3"},
		},
	}
}

func TestBuildWiresMemoryServer(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	a, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.NotNil(t, a.Memory)
	require.NotNil(t, a.History)
	require.Equal(t, map[string]string{memory.ServerID: memoryDescription}, a.Servers)

	tools, err := a.Tools.ListAllTools(context.Background())
	require.NoError(t, err)
	require.ElementsMatch(t, []string{memory.SearchToolName, memory.CurrentToolName}, tools)

	c := a.NewTurn("hello", "")
	require.NotEmpty(t, c.SessionID)
	require.Equal(t, a.Servers, c.ServerDescriptions)
}

func TestBuildWithoutMemory(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Memory.Enabled = false
	cfg.History.Enabled = false
	a, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.Nil(t, a.Memory)
	require.Nil(t, a.History)
	require.Empty(t, a.Servers)
}

func TestBuildWiresDocumentLibrary(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "tesla.md"), []byte("Tesla argues patents slow progress."), 0o644))

	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Memory.Enabled = false
	cfg.History.Enabled = false
	cfg.Documents = config.DocumentsConfig{Enabled: true, ServerID: "library", Root: root}
	a, err := Build(context.Background(), cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	require.Equal(t, map[string]string{"library": documents.DefaultDescription}, a.Servers)

	res, err := a.Tools.CallTool(context.Background(), documents.SearchToolName,
		map[string]any{"input": map[string]any{"query": "tesla patents"}})
	require.NoError(t, err)
	require.Contains(t, res.Text(), "[Source: tesla.md, chunk 0]")
}

func TestBuildRejectsDocumentsUnderMemoryID(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Documents = config.DocumentsConfig{Enabled: true, ServerID: memory.ServerID, Root: t.TempDir()}
	_, err := Build(context.Background(), cfg, nil, nil)
	require.ErrorContains(t, err, "reserved for memory")
}

func TestBuildRejectsDeniedExecutor(t *testing.T) {
	cfg := testConfig(t, "http://127.0.0.1:1")
	cfg.Executor.Command = "rm"
	cfg.Executor.DeniedCommands = []string{"rm"}
	_, err := Build(context.Background(), cfg, nil, nil)
	require.ErrorContains(t, err, "build executor")
}

func TestRunTurnEndToEnd(t *testing.T) {
	if _, err := exec.LookPath("python3"); err != nil {
		t.Skip("python3 not available")
	}
	srv := fakeOllama(t, recallPlan)
	a, err := Build(context.Background(), testConfig(t, srv.URL), nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { a.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	c := a.NewTurn("what did I say about zebra", "")
	out, err := a.RunTurn(ctx, c)
	require.NoError(t, err)
	require.Equal(t, agent.Final, out.Directive.Kind, out.Directive.Text)
	require.Regexp(t, `^\d+ matches$`, out.Directive.Text)
	require.Equal(t, []string{memory.ServerID}, out.Perception.SelectedServers)

	session, ok, err := a.Memory.CurrentSession(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, c.SessionID, session.SessionID)
	require.NotEmpty(t, session.Interactions)
}
