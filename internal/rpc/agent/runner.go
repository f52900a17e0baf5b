package agent

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/agent"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
)

// Runner executes a turn and yields streamed events. The channel closes
// after the done or error event.
type Runner interface {
	Run(ctx context.Context, req rpc.TurnRequest) (<-chan rpc.TurnEvent, error)
}

// TurnRunner runs one agent turn.
type TurnRunner interface {
	NewTurn(input, sessionID string) *agent.Context
	RunTurn(ctx context.Context, c *agent.Context) (agent.Outcome, error)
}

// AgentRunner bridges the agent loop to RPC events.
type AgentRunner struct {
	Turns  TurnRunner
	Logger *zap.Logger
}

// Run starts the turn in the background and streams its progress.
func (r *AgentRunner) Run(ctx context.Context, req rpc.TurnRequest) (<-chan rpc.TurnEvent, error) {
	if r.Turns == nil {
		return nil, errors.New("agent unavailable")
	}
	logger := r.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	c := r.Turns.NewTurn(req.Prompt, req.SessionID)
	corr := req.CorrelationID
	if corr == "" {
		corr = c.SessionID + "-corr"
	}

	out := make(chan rpc.TurnEvent, 16)
	send := func(ev rpc.TurnEvent) {
		ev.SessionID = c.SessionID
		ev.CorrelationID = corr
		select {
		case out <- ev:
		case <-ctx.Done():
		}
	}
	c.Events = func(ev agent.Event) {
		if te, ok := toTurnEvent(ev); ok {
			send(te)
		}
	}

	go func() {
		defer close(out)
		outcome, err := r.Turns.RunTurn(ctx, c)
		if err != nil {
			logger.Warn("turn aborted", zap.String("session_id", c.SessionID), zap.Error(err))
			send(rpc.TurnEvent{Type: rpc.EventError, Error: "cancelled", Step: outcome.Steps})
			return
		}
		send(rpc.TurnEvent{
			Type:       rpc.EventAnswer,
			Step:       outcome.Steps,
			Message:    outcome.Directive.Text,
			AnswerKind: answerKind(outcome.Directive.Kind),
		})
		send(rpc.TurnEvent{Type: rpc.EventDone, Done: true, Step: outcome.Steps})
	}()
	return out, nil
}

// toTurnEvent maps loop progress to the wire. The final event is replaced
// by the answer event sent once the turn returns.
func toTurnEvent(ev agent.Event) (rpc.TurnEvent, bool) {
	te := rpc.TurnEvent{Step: ev.Step, Message: ev.Text}
	switch ev.Kind {
	case agent.EventPerception:
		te.Type = rpc.EventPerception
		if ev.Perception != nil {
			te.Intent = ev.Perception.Intent
			te.Servers = ev.Perception.SelectedServers
		}
	case agent.EventPlan:
		te.Type = rpc.EventPlan
	case agent.EventResult:
		te.Type = rpc.EventResult
	case agent.EventContinue:
		te.Type = rpc.EventContinue
	default:
		return rpc.TurnEvent{}, false
	}
	return te, true
}

func answerKind(k agent.Kind) string {
	switch k {
	case agent.Final:
		return rpc.AnswerFinal
	case agent.Continue:
		return rpc.AnswerContinue
	default:
		return rpc.AnswerRaw
	}
}

// EchoRunner answers every prompt with itself. Handlers fall back to it
// when no runner is configured.
type EchoRunner struct{}

// Run implements Runner.
func (EchoRunner) Run(ctx context.Context, req rpc.TurnRequest) (<-chan rpc.TurnEvent, error) {
	out := make(chan rpc.TurnEvent, 2)
	corr := req.CorrelationID
	if corr == "" {
		corr = req.SessionID + "-corr"
	}
	out <- rpc.TurnEvent{Type: rpc.EventAnswer, SessionID: req.SessionID, CorrelationID: corr, Step: 1, Message: req.Prompt, AnswerKind: rpc.AnswerFinal}
	out <- rpc.TurnEvent{Type: rpc.EventDone, SessionID: req.SessionID, CorrelationID: corr, Done: true, Step: 1}
	close(out)
	return out, nil
}
