package agent

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/memory"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/prompts"
)

const mathPerception = `{"intent": "math", "selected_servers": ["math"]}`

type loopFixture struct {
	gen   *scriptedGenerator
	exec  *scriptedExecutor
	store *memory.Store
	tools *fakeTools
	loop  *Loop
}

func newLoopFixture(t *testing.T, maxSteps int, exec *scriptedExecutor) *loopFixture {
	t.Helper()
	store, err := memory.Open(filepath.Join(t.TempDir(), "memory.db"), 0)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	f := &loopFixture{
		gen:   newScriptedGenerator().on(guard.ShapePerception, mathPerception),
		exec:  exec,
		store: store,
		tools: &fakeTools{descriptions: map[string]string{"math": "- add: Add two numbers"}},
	}
	cfg := LoopConfig{
		Perceiver:  NewPerceiver(PerceiverConfig{Generator: f.gen, Template: mustTemplate(prompts.Perception)}),
		Planner:    NewPlanner(PlannerConfig{Generator: f.gen, Template: mustTemplate(prompts.Decision)}),
		Memory:     store,
		MaxSteps:   maxSteps,
		MemoryTopK: 5,
	}
	if exec != nil {
		cfg.Executor = exec
	}
	f.loop = NewLoop(cfg)
	return f
}

func (f *loopFixture) context(input string) *Context {
	return NewContext(input, "", f.tools, testServers)
}

func TestLoopFinalAnswer(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"FINAL_ANSWER: 5"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	c := f.context("add 2 and 3")
	out, err := f.loop.RunTurn(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Final, Text: "5"}, out.Directive)
	require.Equal(t, 1, out.Steps)
	require.Equal(t, c.SessionID, out.SessionID)
	require.Equal(t, "math", out.Perception.Intent)
	require.Equal(t, []string{solvePlan}, f.exec.plans)
	require.Equal(t, [][]string{{"math"}}, f.tools.asked)
	require.Contains(t, f.gen.promptsFor(guard.ShapePlan)[0], "- add: Add two numbers")
}

func TestLoopFurtherProcessingReentersPerception(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{
		"FURTHER_PROCESSING_REQUIRED: the page says 42",
		"FINAL_ANSWER: 42",
	}})
	f.gen.on(guard.ShapePlan, solvePlan)

	var events []EventKind
	c := f.context("read the page")
	c.Events = func(ev Event) { events = append(events, ev.Kind) }

	out, err := f.loop.RunTurn(context.Background(), c)
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Final, Text: "42"}, out.Directive)
	require.Equal(t, 2, out.Steps)

	perceptions := f.gen.promptsFor(guard.ShapePerception)
	require.Len(t, perceptions, 2)
	require.Contains(t, perceptions[1], "the page says 42")

	plans := f.gen.promptsFor(guard.ShapePlan)
	require.Len(t, plans, 2)
	require.Contains(t, plans[1], "the page says 42")
	require.Contains(t, plans[1], "- FURTHER_PROCESSING_REQUIRED: the page says 42")

	require.Equal(t, []EventKind{
		EventPerception, EventPlan, EventResult, EventContinue,
		EventPerception, EventPlan, EventResult, EventFinal,
	}, events)

	records, err := f.store.Recent(context.Background(), c.SessionID, 10)
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, memory.KindToolOutput, records[0].Kind)
	require.Equal(t, memory.KindToolOutput, records[1].Kind)
	require.Equal(t, memory.KindFinalAnswer, records[2].Kind)
	require.Equal(t, "FINAL_ANSWER: 42", records[2].FinalAnswer)
	require.Equal(t, "read the page", records[2].UserQuery)
	require.Equal(t, "math", records[2].Intent)
}

func TestLoopMaxSteps(t *testing.T) {
	f := newLoopFixture(t, 2, &scriptedExecutor{results: []string{"FURTHER_PROCESSING_REQUIRED: more"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	out, err := f.loop.RunTurn(context.Background(), f.context("loop forever"))
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Final, Text: MaxStepsAnswer}, out.Directive)
	require.Equal(t, 2, out.Steps)
	require.Len(t, f.exec.plans, 2)
}

func TestLoopRawOutput(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"hello"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	out, err := f.loop.RunTurn(context.Background(), f.context("say hello"))
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Raw, Text: "hello"}, out.Directive)
}

func TestLoopExecutorFailure(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{err: errors.New("plan failed (exit 1): NameError")})
	f.gen.on(guard.ShapePlan, solvePlan)

	out, err := f.loop.RunTurn(context.Background(), f.context("add 2 and 3"))
	require.NoError(t, err)
	require.Equal(t, Raw, out.Directive.Kind)
	require.Equal(t, "[execution failed] plan failed (exit 1): NameError", out.Directive.Text)
	require.Equal(t, 1, out.Steps)
}

func TestLoopPlannerAnswerSkipsExecution(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"FINAL_ANSWER: never"}})
	f.gen.on(guard.ShapePlan, "Sure, here's a plan")

	out, err := f.loop.RunTurn(context.Background(), f.context("add 2 and 3"))
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Final, Text: "[Could not generate valid solve()]"}, out.Directive)
	require.Empty(t, f.exec.plans)
}

func TestLoopWithoutExecutor(t *testing.T) {
	f := newLoopFixture(t, 3, nil)
	f.gen.on(guard.ShapePlan, solvePlan)

	out, err := f.loop.RunTurn(context.Background(), f.context("add 2 and 3"))
	require.NoError(t, err)
	require.Equal(t, Directive{Kind: Raw, Text: "no executor configured"}, out.Directive)
}

func TestLoopCancelled(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"FINAL_ANSWER: 5"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out, err := f.loop.RunTurn(ctx, f.context("add 2 and 3"))
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, out.Steps)
	require.Empty(t, f.exec.plans)
}

func TestLoopRecallsFinalAnswersOfSession(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"FINAL_ANSWER: 5"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	c := f.context("add 2 and 3")
	_, err := f.loop.RunTurn(context.Background(), c)
	require.NoError(t, err)

	next := NewContext("and double it", c.SessionID, f.tools, testServers)
	_, err = f.loop.RunTurn(context.Background(), next)
	require.NoError(t, err)

	plans := f.gen.promptsFor(guard.ShapePlan)
	require.Len(t, plans, 2)
	require.Contains(t, plans[1], "- FINAL_ANSWER: 5\n- add 2 and 3 -> FINAL_ANSWER: 5")
}

func TestLoopHistoryNeverMatchesCurrentTurn(t *testing.T) {
	f := newLoopFixture(t, 3, &scriptedExecutor{results: []string{"FINAL_ANSWER: 5", "FINAL_ANSWER: 5"}})
	f.gen.on(guard.ShapePlan, solvePlan)

	tools := mcp.NewMultiClient(nil, nil)
	tools.Add(memory.NewServer(f.store))
	require.NoError(t, tools.Start(context.Background()))
	t.Cleanup(func() { tools.Close() })
	retriever := history.NewRetriever(tools, history.Options{}, nil, nil)

	f.loop = NewLoop(LoopConfig{
		Perceiver:  NewPerceiver(PerceiverConfig{Generator: f.gen, History: retriever, Template: mustTemplate(prompts.Perception)}),
		Planner:    NewPlanner(PlannerConfig{Generator: f.gen, History: retriever, Template: mustTemplate(prompts.Decision)}),
		Executor:   f.exec,
		Memory:     f.store,
		MaxSteps:   3,
		MemoryTopK: 5,
	})

	_, err := f.loop.RunTurn(context.Background(), f.context("add 2 and 3"))
	require.NoError(t, err)
	require.NotContains(t, f.gen.promptsFor(guard.ShapePerception)[0], "[RELEVANT HISTORY]")
	require.NotContains(t, f.gen.promptsFor(guard.ShapePlan)[0], "[RELEVANT HISTORY]")

	_, err = f.loop.RunTurn(context.Background(), f.context("add 2"))
	require.NoError(t, err)
	perceptions := f.gen.promptsFor(guard.ShapePerception)
	require.Len(t, perceptions, 2)
	require.Contains(t, perceptions[1], "[RELEVANT HISTORY]\n--- Previous Conversation")
	require.Contains(t, perceptions[1], "Query: add 2 and 3\n")
	require.Equal(t, 1, strings.Count(perceptions[1], "--- Previous Conversation"))
}
