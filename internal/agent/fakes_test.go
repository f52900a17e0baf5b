package agent

import (
	"context"
	"errors"
	"sync"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/prompts"
)

// scriptedGenerator replies per shape, in order; the last reply repeats.
type scriptedGenerator struct {
	mu      sync.Mutex
	replies map[guard.Shape][]string
	errs    map[guard.Shape]error
	prompts map[guard.Shape][]string
}

func newScriptedGenerator() *scriptedGenerator {
	return &scriptedGenerator{
		replies: make(map[guard.Shape][]string),
		errs:    make(map[guard.Shape]error),
		prompts: make(map[guard.Shape][]string),
	}
}

func (g *scriptedGenerator) on(shape guard.Shape, replies ...string) *scriptedGenerator {
	g.replies[shape] = append(g.replies[shape], replies...)
	return g
}

func (g *scriptedGenerator) Generate(_ context.Context, prompt string, shape guard.Shape) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts[shape] = append(g.prompts[shape], prompt)
	if err := g.errs[shape]; err != nil {
		return "", err
	}
	replies := g.replies[shape]
	if len(replies) == 0 {
		return "", errors.New("no scripted reply")
	}
	n := len(g.prompts[shape]) - 1
	if n >= len(replies) {
		n = len(replies) - 1
	}
	return replies[n], nil
}

func (g *scriptedGenerator) promptsFor(shape guard.Shape) []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string(nil), g.prompts[shape]...)
}

type fakeHistory struct {
	items   []history.Item
	queries []string
}

func (h *fakeHistory) Search(_ context.Context, query string, _ int) []history.Item {
	h.queries = append(h.queries, query)
	return h.items
}

type fakeTools struct {
	descriptions map[string]string
	asked        [][]string
}

func (f *fakeTools) ListAllTools(context.Context) ([]string, error) { return nil, nil }

func (f *fakeTools) CallTool(context.Context, string, map[string]any) (*mcp.ToolResult, error) {
	return nil, errors.New("not used")
}

func (f *fakeTools) ToolDescriptions(ids []string) string {
	f.asked = append(f.asked, ids)
	out := ""
	for _, id := range ids {
		if d, ok := f.descriptions[id]; ok {
			if out != "" {
				out += "\n"
			}
			out += d
		}
	}
	return out
}

type scriptedExecutor struct {
	results []string
	err     error
	plans   []string
}

func (e *scriptedExecutor) Execute(_ context.Context, plan string) (string, error) {
	e.plans = append(e.plans, plan)
	if e.err != nil {
		return "", e.err
	}
	n := len(e.plans) - 1
	if n >= len(e.results) {
		n = len(e.results) - 1
	}
	return e.results[n], nil
}

func mustTemplate(name string) string {
	t, err := prompts.Load("", name)
	if err != nil {
		panic(err)
	}
	return t
}

var testServers = map[string]string{
	"math":      "Math tools",
	"documents": "Document search",
	"websearch": "",
}

const solvePlan = "async def solve():\n    return 'FINAL_ANSWER: 5'"
