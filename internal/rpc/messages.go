package rpc

// Event types streamed back for a turn.
const (
	EventPerception = "perception"
	EventPlan       = "plan"
	EventResult     = "result"
	EventContinue   = "continue"
	EventAnswer     = "answer"
	EventError      = "error"
	EventDone       = "done"
)

// Answer kinds carried by an answer event.
const (
	AnswerFinal    = "final"
	AnswerContinue = "continue"
	AnswerRaw      = "raw"
)

// TurnRequest asks the daemon to answer one user input. Reusing a session
// id continues that session's memory.
type TurnRequest struct {
	SessionID     string `json:"session_id,omitempty"`
	CorrelationID string `json:"correlation_id,omitempty"`
	Prompt        string `json:"prompt"`
}

// TurnEvent streams back progress from the daemon.
type TurnEvent struct {
	Type          string   `json:"type"` // perception|plan|result|continue|answer|error|done
	SessionID     string   `json:"session_id,omitempty"`
	CorrelationID string   `json:"correlation_id,omitempty"`
	Step          int      `json:"step,omitempty"`
	Message       string   `json:"message,omitempty"`
	Intent        string   `json:"intent,omitempty"`
	Servers       []string `json:"servers,omitempty"`
	AnswerKind    string   `json:"answer_kind,omitempty"`
	Error         string   `json:"error,omitempty"`
	Done          bool     `json:"done,omitempty"`
}

// TurnStreamRequest is the bidirectional stream payload for Connect RPC.
// The first message must carry the turn; later messages can cancel it.
type TurnStreamRequest struct {
	Turn          *TurnRequest `json:"turn,omitempty"`
	Cancel        bool         `json:"cancel,omitempty"`
	SessionID     string       `json:"session_id,omitempty"`
	CorrelationID string       `json:"correlation_id,omitempty"`
}

// ServerTools lists one tool server and its tools.
type ServerTools struct {
	ID          string     `json:"id"`
	Description string     `json:"description,omitempty"`
	Tools       []ToolInfo `json:"tools"`
}

// ToolInfo describes one tool.
type ToolInfo struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	InputSchema map[string]any `json:"input_schema,omitempty"`
}
