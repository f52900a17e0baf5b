package agent

import (
	"bufio"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
)

// TurnPath is the NDJSON endpoint.
const TurnPath = "/agent/turn"

// Handler processes turn requests and streams NDJSON events.
type Handler struct {
	runner  Runner
	metrics *observability.Metrics
}

// NewHandler constructs a handler instance. A nil runner echoes prompts.
func NewHandler(runner Runner, metrics *observability.Metrics) *Handler {
	if runner == nil {
		runner = EchoRunner{}
	}
	return &Handler{runner: runner, metrics: metrics}
}

// ServeHTTP handles POST /agent/turn with an NDJSON stream of TurnEvent.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.metrics.RecordTransportError("ndjson", "method_not_allowed")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	h.metrics.IncActiveSessions("ndjson")
	defer h.metrics.DecActiveSessions("ndjson")

	var req rpc.TurnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.metrics.RecordTransportError("ndjson", "decode")
		http.Error(w, fmt.Sprintf("invalid request: %v", err), http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.Prompt) == "" {
		h.metrics.RecordTransportError("ndjson", "empty_prompt")
		http.Error(w, "prompt cannot be empty", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	events, err := h.runner.Run(r.Context(), req)
	if err != nil {
		h.metrics.RecordTransportError("ndjson", "runner_error")
		http.Error(w, fmt.Sprintf("runner error: %v", err), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)

	writer := bufio.NewWriter(w)
	enc := json.NewEncoder(writer)
	for ev := range events {
		if err := enc.Encode(ev); err != nil {
			h.metrics.RecordTransportError("ndjson", "write")
			break
		}
		writer.Flush()
		flusher.Flush()
	}
	// Drain so the runner goroutine can exit after a write failure.
	for range events {
	}
}
