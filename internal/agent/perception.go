package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/history"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/prompts"
)

// UnknownIntent is the intent of a fallback perception.
const UnknownIntent = "unknown"

const noServerDescription = "No description available"

// Generator produces model text for a prompt and expected shape.
type Generator interface {
	Generate(ctx context.Context, prompt string, shape guard.Shape) (string, error)
}

// HistorySource finds and renders past conversations.
type HistorySource interface {
	Search(ctx context.Context, query string, maxResults int) []history.Item
}

// PerceptionResult is what the model understood of a request.
type PerceptionResult struct {
	Intent          string   `json:"intent" validate:"required"`
	Entities        []string `json:"entities"`
	ToolHint        *string  `json:"tool_hint"`
	Tags            []string `json:"tags"`
	SelectedServers []string `json:"selected_servers"`
}

// Perceiver runs the perception stage.
type Perceiver struct {
	gen        Generator
	history    HistorySource
	guard      *guard.InputGuard
	template   string
	maxHistory int
	validate   *validator.Validate
	logger     *zap.Logger
	metrics    *observability.Metrics
}

// PerceiverConfig wires a Perceiver. History may be nil.
type PerceiverConfig struct {
	Generator  Generator
	History    HistorySource
	Guard      *guard.InputGuard
	Template   string
	MaxHistory int
	Logger     *zap.Logger
	Metrics    *observability.Metrics
}

// NewPerceiver builds a perception stage.
func NewPerceiver(cfg PerceiverConfig) *Perceiver {
	if cfg.Guard == nil {
		cfg.Guard = guard.NewInputGuard(guard.Limits{})
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Perceiver{
		gen:        cfg.Generator,
		history:    cfg.History,
		guard:      cfg.Guard,
		template:   cfg.Template,
		maxHistory: cfg.MaxHistory,
		validate:   validator.New(),
		logger:     cfg.Logger,
		metrics:    cfg.Metrics,
	}
}

// Infer describes input and picks the servers likely to serve it. It never
// fails: any problem yields the fallback result selecting every server.
// History is consulted only when firstStep is set.
func (p *Perceiver) Infer(ctx context.Context, input string, servers map[string]string, firstStep bool) PerceptionResult {
	ids := sortedKeys(servers)
	res, err := p.infer(ctx, input, servers, ids, firstStep)
	if err != nil {
		p.logger.Warn("perception failed, selecting all servers", zap.Error(err))
		p.metrics.RecordStageFallback("perception")
		return fallbackPerception(ids)
	}
	return res
}

func (p *Perceiver) infer(ctx context.Context, input string, servers map[string]string, ids []string, firstStep bool) (PerceptionResult, error) {
	if p.gen == nil {
		return PerceptionResult{}, errors.New("no generator configured")
	}
	input = guardedInput(p.guard, input, p.logger, p.metrics, "perception")

	historyContext := ""
	if firstStep && p.history != nil {
		if items := p.history.Search(ctx, input, p.maxHistory); len(items) > 0 {
			historyContext = history.Format(items)
			p.logger.Debug("perception history context", zap.Int("items", len(items)))
		}
	}

	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		desc := strings.TrimSpace(servers[id])
		if desc == "" {
			desc = noServerDescription
		}
		lines = append(lines, fmt.Sprintf("- %s: %s", id, desc))
	}

	prompt, err := renderWithHistory(p.template, map[string]string{
		"servers_text": strings.Join(lines, "\n"),
		"user_input":   input,
	}, historyContext)
	if err != nil {
		return PerceptionResult{}, err
	}

	raw, err := p.gen.Generate(ctx, prompt, guard.ShapePerception)
	if err != nil {
		return PerceptionResult{}, err
	}
	return p.decode(raw, ids)
}

func (p *Perceiver) decode(raw string, ids []string) (PerceptionResult, error) {
	block := guard.ExtractBlock(strings.TrimSpace(raw))

	var res PerceptionResult
	dec := json.NewDecoder(strings.NewReader(block))
	if err := dec.Decode(&res); err != nil {
		return PerceptionResult{}, fmt.Errorf("decode perception: %w", err)
	}
	if err := p.validate.Struct(res); err != nil {
		return PerceptionResult{}, fmt.Errorf("validate perception: %w", err)
	}

	res.Intent = strings.TrimSpace(res.Intent)
	res.Entities = dedupe(res.Entities)
	res.Tags = dedupe(res.Tags)
	if res.ToolHint != nil {
		hint := strings.TrimSpace(*res.ToolHint)
		if hint == "" || strings.EqualFold(hint, guard.NotAvailable) {
			res.ToolHint = nil
		} else {
			res.ToolHint = &hint
		}
	}

	known := make(map[string]bool, len(ids))
	for _, id := range ids {
		known[id] = true
	}
	var selected []string
	for _, id := range dedupe(res.SelectedServers) {
		if known[id] {
			selected = append(selected, id)
		}
	}
	if len(selected) == 0 {
		selected = append([]string(nil), ids...)
	}
	res.SelectedServers = selected
	return res, nil
}

func fallbackPerception(ids []string) PerceptionResult {
	return PerceptionResult{
		Intent:          UnknownIntent,
		Entities:        []string{},
		Tags:            []string{},
		SelectedServers: append([]string{}, ids...),
	}
}

// guardedInput runs the input guard and returns the repaired text, logging
// rather than rejecting when checks fail.
func guardedInput(g *guard.InputGuard, input string, logger *zap.Logger, metrics *observability.Metrics, stage string) string {
	out := g.Check(input)
	if !out.Valid {
		logger.Warn("input validation issues", zap.String("stage", stage), zap.Strings("errors", out.Errors))
		metrics.RecordValidationIssues(stage, len(out.Errors))
	}
	text, _ := out.Text()
	return text
}

// renderWithHistory fills tmpl. When the template has no {history_context}
// placeholder, history is prepended to the user input instead.
func renderWithHistory(tmpl string, values map[string]string, historyContext string) (string, error) {
	if prompts.HasPlaceholder(tmpl, "history_context") {
		values["history_context"] = historyContext
	} else if historyContext != "" {
		values["user_input"] = "[RELEVANT HISTORY]\n" + historyContext + "\n\n[CURRENT QUERY]\n" + values["user_input"]
	}
	return prompts.Render(tmpl, values)
}

func dedupe(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
