package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/prompts"
)

func newTestPlanner(gen Generator, hist HistorySource) *Planner {
	return NewPlanner(PlannerConfig{
		Generator:  gen,
		History:    hist,
		Template:   mustTemplate(prompts.Decision),
		MaxHistory: 3,
	})
}

func TestPlannerReturnsSolve(t *testing.T) {
	gen := newScriptedGenerator().on(guard.ShapePlan, solvePlan)

	plan := newTestPlanner(gen, nil).Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3", Step: 1})
	require.Equal(t, solvePlan, plan)
}

func TestPlannerRejectsProse(t *testing.T) {
	gen := newScriptedGenerator().on(guard.ShapePlan, "Sure, here's a plan")

	plan := newTestPlanner(gen, nil).Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3", Step: 1})
	require.Equal(t, InvalidPlanAnswer, plan)
}

func TestPlannerStripsFence(t *testing.T) {
	gen := newScriptedGenerator().on(guard.ShapePlan, "```python\n"+solvePlan+"\n```")

	plan := newTestPlanner(gen, nil).Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3", Step: 1})
	require.Equal(t, solvePlan, plan)
}

func TestPlannerGenerationError(t *testing.T) {
	gen := newScriptedGenerator()
	gen.errs[guard.ShapePlan] = errors.New("quota exceeded")

	plan := newTestPlanner(gen, nil).Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3", Step: 1})
	require.Equal(t, FailedPlanAnswer, plan)
}

func TestPlannerNoGenerator(t *testing.T) {
	plan := newTestPlanner(nil, nil).Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3", Step: 1})
	require.Equal(t, FailedPlanAnswer, plan)
}

func TestPlannerPromptContents(t *testing.T) {
	gen := newScriptedGenerator().on(guard.ShapePlan, solvePlan)
	p := newTestPlanner(gen, nil)

	p.Plan(context.Background(), PlanRequest{
		UserInput:        "add 2 and 3",
		ToolDescriptions: "- add: Add two numbers",
		Step:             1,
	})
	p.Plan(context.Background(), PlanRequest{
		UserInput: "add 2 and 3",
		Memory:    []MemoryItem{{Text: "add returned 5"}, {Text: "done"}},
		Step:      2,
	})

	sent := gen.promptsFor(guard.ShapePlan)
	require.Len(t, sent, 2)
	require.Contains(t, sent[0], "- add: Add two numbers")
	require.Contains(t, sent[0], "Memory from earlier steps of this session:\nNone")
	require.Contains(t, sent[0], `{"input": {...}}`)
	require.Contains(t, sent[1], "- add returned 5\n- done")
}

func TestPlannerHistoryOnlyOnFirstStep(t *testing.T) {
	hist := &fakeHistory{items: []history.Item{{UserQuery: "what is 2+3", FinalAnswer: "FINAL_ANSWER: 5"}}}
	gen := newScriptedGenerator().on(guard.ShapePlan, solvePlan)
	p := newTestPlanner(gen, hist)

	p.Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3 again", Step: 1})
	p.Plan(context.Background(), PlanRequest{UserInput: "add 2 and 3 again", Step: 2})

	require.Len(t, hist.queries, 1)
	sent := gen.promptsFor(guard.ShapePlan)
	require.Contains(t, sent[0], "[RELEVANT HISTORY]\n--- Previous Conversation (Unknown time) ---\nQuery: what is 2+3\nAnswer: 5")
	require.NotContains(t, sent[1], "[RELEVANT HISTORY]")
}

func TestIsPlan(t *testing.T) {
	require.True(t, IsPlan("def solve():\n    return 1"))
	require.True(t, IsPlan("import json\n\nasync def solve():\n    pass"))
	require.True(t, IsPlan("  async  def solve ():"))
	require.False(t, IsPlan("FINAL_ANSWER: 5"))
	require.False(t, IsPlan("def solver():"))
	require.False(t, IsPlan("we should solve() it"))
}

func TestStripFence(t *testing.T) {
	require.Equal(t, "x = 1", stripFence("```\nx = 1\n```"))
	require.Equal(t, "x = 1", stripFence("```Python\nx = 1\n```"))
	require.Equal(t, "plain", stripFence("plain"))
}
