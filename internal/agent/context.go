// Package agent is the reasoning core: it perceives a request, plans a
// solve() step, hands the plan to an executor and interprets the result
// until the turn reaches an answer.
package agent

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
)

// Tools is the dispatcher surface the loop needs: calling tools and
// describing the tools of a set of servers.
type Tools interface {
	mcp.Dispatcher
	ToolDescriptions(serverIDs []string) string
}

// Context is the state of one user turn.
type Context struct {
	UserInput          string
	SessionID          string
	Dispatcher         Tools
	ServerDescriptions map[string]string

	// Events, when set, receives progress as the turn runs.
	Events func(Event)
}

// NewContext starts a turn, assigning a fresh session id when sessionID is empty.
func NewContext(input, sessionID string, tools Tools, servers map[string]string) *Context {
	if sessionID == "" {
		sessionID = NewSessionID()
	}
	return &Context{
		UserInput:          input,
		SessionID:          sessionID,
		Dispatcher:         tools,
		ServerDescriptions: servers,
	}
}

// NewSessionID returns a time-ordered unique session id.
func NewSessionID() string {
	return fmt.Sprintf("%s-%s", time.Now().UTC().Format("20060102-150405"), uuid.NewString()[:8])
}

// ServerIDs returns the known server ids in sorted order.
func (c *Context) ServerIDs() []string {
	return sortedKeys(c.ServerDescriptions)
}

func (c *Context) emit(ev Event) {
	if c.Events != nil {
		c.Events(ev)
	}
}

func (c *Context) toolDescriptions(ids []string) string {
	if c.Dispatcher == nil {
		return ""
	}
	return c.Dispatcher.ToolDescriptions(ids)
}

// EventKind labels turn progress.
type EventKind string

// Event kinds emitted during a turn.
const (
	EventPerception EventKind = "perception"
	EventPlan       EventKind = "plan"
	EventResult     EventKind = "result"
	EventContinue   EventKind = "continue"
	EventFinal      EventKind = "final"
)

// Event is one progress notification.
type Event struct {
	Kind       EventKind         `json:"kind"`
	Step       int               `json:"step"`
	Text       string            `json:"text,omitempty"`
	Perception *PerceptionResult `json:"perception,omitempty"`
}

type sessionKey struct{}

// WithSessionID records the session id on ctx for log correlation.
func WithSessionID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, sessionKey{}, id)
}

// SessionIDFrom returns the session id stored by WithSessionID.
func SessionIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(sessionKey{}).(string)
	return id
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
