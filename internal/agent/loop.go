package agent

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/llm"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/memory"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
)

// MaxStepsAnswer ends a turn that used its whole step budget.
const MaxStepsAnswer = "[Max steps reached]"

// Executor runs a solve() plan and returns what it produced.
type Executor interface {
	Execute(ctx context.Context, plan string) (string, error)
}

// Memory stores step results and recalls the latest ones of a session.
type Memory interface {
	Add(ctx context.Context, r *memory.Record) error
	Recent(ctx context.Context, sessionID string, k int) ([]memory.Record, error)
}

// Outcome is the result of one turn.
type Outcome struct {
	Directive  Directive
	SessionID  string
	Steps      int
	Perception PerceptionResult
}

// LoopConfig wires a Loop. Memory may be nil.
type LoopConfig struct {
	Perceiver  *Perceiver
	Planner    *Planner
	Executor   Executor
	Memory     Memory
	MaxSteps   int
	MemoryTopK int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// Loop drives perceive, plan and execute until a turn has an answer.
type Loop struct {
	perceiver  *Perceiver
	planner    *Planner
	executor   Executor
	memory     Memory
	maxSteps   int
	memoryTopK int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// NewLoop builds a loop; MaxSteps defaults to 3.
func NewLoop(cfg LoopConfig) *Loop {
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Loop{
		perceiver:  cfg.Perceiver,
		planner:    cfg.Planner,
		executor:   cfg.Executor,
		memory:     cfg.Memory,
		maxSteps:   cfg.MaxSteps,
		memoryTopK: cfg.MemoryTopK,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// RunTurn answers c.UserInput. A FURTHER_PROCESSING_REQUIRED result feeds
// its text back into perception within the same turn and step budget. The
// only error is ctx's.
func (l *Loop) RunTurn(ctx context.Context, c *Context) (Outcome, error) {
	start := time.Now()
	ctx = llm.WithBudget(WithSessionID(ctx, c.SessionID))
	logger := l.logger.With(zap.String("session_id", c.SessionID))

	out := Outcome{SessionID: c.SessionID}
	l.remember(ctx, &memory.Record{SessionID: c.SessionID, Kind: memory.KindRunMetadata, UserQuery: c.UserInput})

	input := c.UserInput
	perceive := true
	for out.Steps < l.maxSteps {
		if err := ctx.Err(); err != nil {
			l.metrics.RecordTurn("cancelled", time.Since(start), out.Steps)
			return out, err
		}

		if perceive {
			out.Perception = l.perceiver.Infer(ctx, input, c.ServerDescriptions, out.Steps == 0)
			perceive = false
			logger.Info("perception",
				zap.String("intent", out.Perception.Intent),
				zap.Strings("servers", out.Perception.SelectedServers))
			p := out.Perception
			c.emit(Event{Kind: EventPerception, Step: out.Steps + 1, Perception: &p})
		}

		out.Steps++
		plan := l.planner.Plan(ctx, PlanRequest{
			UserInput:        input,
			Perception:       out.Perception,
			Memory:           l.recall(ctx, c.SessionID),
			ToolDescriptions: c.toolDescriptions(out.Perception.SelectedServers),
			Step:             out.Steps,
		})
		c.emit(Event{Kind: EventPlan, Step: out.Steps, Text: plan})

		d, err := l.step(ctx, c, plan, out.Steps)
		if err != nil {
			l.metrics.RecordTurn("cancelled", time.Since(start), out.Steps)
			return out, err
		}

		if d.Kind == Continue {
			logger.Info("further processing required", zap.Int("step", out.Steps))
			c.emit(Event{Kind: EventContinue, Step: out.Steps, Text: d.Text})
			input = d.Text
			perceive = true
			continue
		}
		return l.finish(ctx, c, out, d, start), nil
	}

	logger.Warn("max steps reached", zap.Int("steps", out.Steps))
	return l.finish(ctx, c, out, Directive{Kind: Final, Text: MaxStepsAnswer}, start), nil
}

// step turns a plan into a directive. Planner answers skip execution.
func (l *Loop) step(ctx context.Context, c *Context, plan string, n int) (Directive, error) {
	if !IsPlan(plan) {
		return Classify(plan), nil
	}
	if l.executor == nil {
		return Directive{Kind: Raw, Text: "no executor configured"}, nil
	}

	result, err := l.executor.Execute(ctx, plan)
	if err != nil {
		if ctx.Err() != nil {
			return Directive{}, ctx.Err()
		}
		l.logger.Warn("plan execution failed", zap.Int("step", n), zap.Error(err))
		return Directive{Kind: Raw, Text: fmt.Sprintf("[execution failed] %v", err)}, nil
	}
	c.emit(Event{Kind: EventResult, Step: n, Text: result})

	l.remember(ctx, &memory.Record{SessionID: c.SessionID, Kind: memory.KindToolOutput, UserQuery: c.UserInput, Text: result})
	return Classify(result), nil
}

func (l *Loop) finish(ctx context.Context, c *Context, out Outcome, d Directive, start time.Time) Outcome {
	out.Directive = d
	answer := d.Text
	if d.Kind == Final {
		answer = d.String()
	}
	l.remember(ctx, &memory.Record{
		SessionID:   c.SessionID,
		Kind:        memory.KindFinalAnswer,
		UserQuery:   c.UserInput,
		FinalAnswer: answer,
		Intent:      out.Perception.Intent,
		Tags:        out.Perception.Tags,
	})
	c.emit(Event{Kind: EventFinal, Step: out.Steps, Text: d.Text})
	l.metrics.RecordTurn(d.Kind.String(), time.Since(start), out.Steps)
	return out
}

func (l *Loop) remember(ctx context.Context, r *memory.Record) {
	if l.memory == nil {
		return
	}
	if err := l.memory.Add(ctx, r); err != nil {
		l.logger.Warn("store memory record", zap.String("kind", r.Kind), zap.Error(err))
	}
}

func (l *Loop) recall(ctx context.Context, sessionID string) []MemoryItem {
	if l.memory == nil || l.memoryTopK <= 0 {
		return nil
	}
	records, err := l.memory.Recent(ctx, sessionID, l.memoryTopK)
	if err != nil {
		l.logger.Warn("recall session memory", zap.Error(err))
		return nil
	}
	items := make([]MemoryItem, 0, len(records))
	for _, r := range records {
		text := r.Text
		if r.Kind == memory.KindFinalAnswer {
			text = fmt.Sprintf("%s -> %s", r.UserQuery, r.FinalAnswer)
		}
		if text == "" {
			continue
		}
		items = append(items, MemoryItem{Text: text, Kind: r.Kind, ToolName: r.ToolName, Tags: r.Tags})
	}
	return items
}
