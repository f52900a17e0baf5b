package agent

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
)

// Planner fallbacks.
const (
	InvalidPlanAnswer = "FINAL_ANSWER: [Could not generate valid solve()]"
	FailedPlanAnswer  = "FINAL_ANSWER: [unknown]"
)

var solveDef = regexp.MustCompile(`(?m)^\s*(async\s+)?def\s+solve\s*\(`)

// IsPlan reports whether text defines a solve() function.
func IsPlan(text string) bool {
	return solveDef.MatchString(text)
}

// MemoryItem is one remembered fact offered to the planner.
type MemoryItem struct {
	Text     string
	Kind     string
	ToolName string
	Tags     []string
}

// PlanRequest carries everything one planning step sees.
type PlanRequest struct {
	UserInput        string
	Perception       PerceptionResult
	Memory           []MemoryItem
	ToolDescriptions string
	Step             int
}

// Planner runs the planning stage.
type Planner struct {
	gen        Generator
	history    HistorySource
	guard      *guard.InputGuard
	template   string
	maxHistory int
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// PlannerConfig wires a Planner. History may be nil.
type PlannerConfig struct {
	Generator  Generator
	History    HistorySource
	Guard      *guard.InputGuard
	Template   string
	MaxHistory int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewPlanner builds a planning stage.
func NewPlanner(cfg PlannerConfig) *Planner {
	if cfg.Guard == nil {
		cfg.Guard = guard.NewInputGuard(guard.Limits{})
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Planner{
		gen:        cfg.Generator,
		history:    cfg.History,
		guard:      cfg.Guard,
		template:   cfg.Template,
		maxHistory: cfg.MaxHistory,
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Plan returns a solve() definition or a FINAL_ANSWER directive. It never
// fails; problems become the placeholder answers.
func (p *Planner) Plan(ctx context.Context, req PlanRequest) string {
	raw, err := p.generate(ctx, req)
	if err != nil {
		p.logger.Warn("planning failed", zap.Error(err))
		p.metrics.RecordStageFallback("plan")
		return FailedPlanAnswer
	}

	plan := stripFence(raw)
	if !IsPlan(plan) {
		p.logger.Warn("model did not return a solve() definition")
		p.metrics.RecordStageFallback("plan")
		return InvalidPlanAnswer
	}
	return plan
}

func (p *Planner) generate(ctx context.Context, req PlanRequest) (string, error) {
	if p.gen == nil {
		return "", errors.New("no generator configured")
	}
	input := guardedInput(p.guard, req.UserInput, p.logger, p.metrics, "plan")

	historyContext := ""
	if req.Step == 1 && p.history != nil {
		if items := p.history.Search(ctx, input, p.maxHistory); len(items) > 0 {
			historyContext = history.Format(items)
			p.logger.Debug("planning history context", zap.Int("items", len(items)))
		}
	}

	prompt, err := renderWithHistory(p.template, map[string]string{
		"memory_texts":      memoryTexts(req.Memory),
		"tool_descriptions": req.ToolDescriptions,
		"user_input":        input,
	}, historyContext)
	if err != nil {
		return "", err
	}

	raw, err := p.gen.Generate(ctx, prompt, guard.ShapePlan)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(raw), nil
}

func memoryTexts(items []MemoryItem) string {
	if len(items) == 0 {
		return "None"
	}
	lines := make([]string, 0, len(items))
	for _, m := range items {
		lines = append(lines, "- "+m.Text)
	}
	return strings.Join(lines, "\n")
}

// stripFence removes a surrounding ``` fence and an optional python tag.
func stripFence(raw string) string {
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	s := strings.TrimSpace(strings.Trim(raw, "`"))
	if strings.HasPrefix(strings.ToLower(s), "python") {
		s = strings.TrimSpace(s[len("python"):])
	}
	return s
}
