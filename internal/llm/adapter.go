package llm

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/guard"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
)

// Model roles used when routing a prompt to a backend.
const (
	RoleDefault    = "default"
	RolePerception = "perception"
	RolePlanner    = "planner"
)

// RoleForShape maps the expected response shape to the model role serving it.
func RoleForShape(shape guard.Shape) string {
	switch shape {
	case guard.ShapePerception:
		return RolePerception
	case guard.ShapePlan:
		return RolePlanner
	default:
		return RoleDefault
	}
}

// Candidate is a resolved model a call can be sent to.
type Candidate struct {
	Provider  Provider
	Route     ModelRoute
	Expensive bool
}

// Name is the logical model name.
func (c Candidate) Name() string {
	return c.Route.Name
}

// Routing is the model to call for a role and the one to retry on once.
type Routing struct {
	Primary  Candidate
	Fallback *Candidate
}

// Router maps a role to a Routing. expensiveUsed is the number of expensive
// calls already made in the current turn.
type Router interface {
	Route(role string, expensiveUsed int) (Routing, error)
}

type budgetKey struct{}

type budget struct {
	expensive atomic.Int64
}

// WithBudget attaches a fresh expensive-call counter to ctx. Every Generate
// call made with the returned context draws on the same budget.
func WithBudget(ctx context.Context) context.Context {
	return context.WithValue(ctx, budgetKey{}, &budget{})
}

func budgetFrom(ctx context.Context) *budget {
	b, _ := ctx.Value(budgetKey{}).(*budget)
	return b
}

func (b *budget) used() int {
	if b == nil {
		return 0
	}
	return int(b.expensive.Load())
}

func (b *budget) spend(expensive bool) {
	if b != nil && expensive {
		b.expensive.Add(1)
	}
}

// Adapter is the single entry point for text generation: it guards the
// prompt, routes it to a backend and coerces the reply into a shape.
type Adapter struct {
	router  Router
	guard   *guard.InputGuard
	logger  *zap.Logger
	metrics *observability.Metrics
}

// NewAdapter wires an adapter. A nil guard uses default limits.
func NewAdapter(router Router, inputGuard *guard.InputGuard, logger *zap.Logger, metrics *observability.Metrics) *Adapter {
	if inputGuard == nil {
		inputGuard = guard.NewInputGuard(guard.Limits{})
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{router: router, guard: inputGuard, logger: logger, metrics: metrics}
}

// Generate sends prompt to the backend serving shape and returns the reply.
// Structured replies are re-serialized as indented JSON; replies that could
// not be parsed are returned verbatim. Guard and contract problems are logged,
// never returned. The only error is a *GenerationError.
func (a *Adapter) Generate(ctx context.Context, prompt string, shape guard.Shape) (string, error) {
	in := a.guard.Check(prompt)
	if !in.Valid {
		a.logger.Warn("prompt failed input guard", zap.Strings("errors", in.Errors))
		a.metrics.RecordValidationIssues("input", len(in.Errors))
	}
	text, _ := in.Text()

	raw, err := a.generateRaw(ctx, RoleForShape(shape), text)
	if err != nil {
		a.metrics.RecordLLMCall(string(shape), "error")
		return "", err
	}

	out := guard.CheckOutput(raw, shape)
	if !out.Valid {
		a.logger.Warn("model output failed contract", zap.String("shape", string(shape)), zap.Strings("errors", out.Errors))
		a.metrics.RecordValidationIssues("output", len(out.Errors))
	}
	a.metrics.RecordLLMCall(string(shape), "ok")

	if s, ok := out.Text(); ok {
		return s, nil
	}
	rendered, err := guard.Marshal(out.Repaired)
	if err != nil {
		a.logger.Warn("re-serialize repaired output", zap.Error(err))
		return raw, nil
	}
	return rendered, nil
}

func (a *Adapter) generateRaw(ctx context.Context, role, prompt string) (string, error) {
	if a.router == nil {
		return "", &GenerationError{Err: errors.New("no model router configured")}
	}
	b := budgetFrom(ctx)
	routing, err := a.router.Route(role, b.used())
	if err != nil {
		return "", &GenerationError{Err: err}
	}
	primary := routing.Primary
	if primary.Provider == nil {
		return "", &GenerationError{Err: errors.New("no model available")}
	}

	text, err := a.call(ctx, role, primary, prompt)
	if err == nil {
		b.spend(primary.Expensive)
		return text, nil
	}
	fb := routing.Fallback
	if ctx.Err() != nil || fb == nil || fb.Provider == nil {
		return "", &GenerationError{Model: primary.Name(), Err: err}
	}
	a.logger.Warn("model call failed, retrying on fallback",
		zap.String("role", role), zap.String("model", primary.Name()), zap.String("fallback", fb.Name()), zap.Error(err))

	text, err = a.call(ctx, role, *fb, prompt)
	if err != nil {
		return "", &GenerationError{Model: fb.Name(), Err: err}
	}
	b.spend(fb.Expensive)
	return text, nil
}

func (a *Adapter) call(ctx context.Context, role string, c Candidate, prompt string) (string, error) {
	a.metrics.RecordModelUsage(role, c.Name())
	resp, err := c.Provider.Chat(ctx, UserPrompt(c.Route, prompt))
	if err != nil {
		a.metrics.RecordModelFailure(role, c.Name())
		return "", err
	}
	a.logger.Debug("model call complete",
		zap.String("role", role),
		zap.String("model", c.Name()),
		zap.String("provider", c.Provider.Name()),
		zap.Int("total_tokens", resp.Usage.TotalTokens))
	return strings.TrimSpace(resp.Message.Content), nil
}
