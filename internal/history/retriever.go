// Package history looks up past conversations through the tool dispatcher
// and formats them for prompts. Lookups fail open: any problem yields no
// history, never an error.
package history

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
)

// Defaults applied by NewRetriever.
const (
	DefaultSearchTool  = "search_historical_conversations"
	DefaultCurrentTool = "get_current_conversations"
	DefaultTimeout     = 10 * time.Second
	DefaultMaxResults  = 5
)

var errUnexpectedShape = errors.New("unexpected result shape")

// Options tunes a Retriever.
type Options struct {
	SearchTool  string
	CurrentTool string
	Timeout     time.Duration
}

// Retriever searches conversation history. Results are cached by the exact
// query string for the retriever's lifetime; failures are not cached.
type Retriever struct {
	dispatcher mcp.Dispatcher
	opts       Options
	logger     *zap.Logger
	metrics    *observability.Metrics

	mu    sync.Mutex
	cache map[string][]Item
	group singleflight.Group
}

// NewRetriever creates a retriever. A nil dispatcher yields a retriever that
// always returns nothing.
func NewRetriever(d mcp.Dispatcher, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Retriever {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.SearchTool == "" {
		opts.SearchTool = DefaultSearchTool
	}
	if opts.CurrentTool == "" {
		opts.CurrentTool = DefaultCurrentTool
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	return &Retriever{
		dispatcher: d,
		opts:       opts,
		logger:     logger,
		metrics:    metrics,
		cache:      make(map[string][]Item),
	}
}

// Search returns up to maxResults past conversations relevant to query.
// maxResults <= 0 means DefaultMaxResults. The cache keeps every match and
// each caller gets its own slice.
func (r *Retriever) Search(ctx context.Context, query string, maxResults int) []Item {
	if r == nil {
		return nil
	}
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	r.mu.Lock()
	cached, ok := r.cache[query]
	r.mu.Unlock()
	if ok {
		r.metrics.RecordHistoryLookup("hit")
		return firstN(cached, maxResults)
	}

	v, _, _ := r.group.Do(query, func() (any, error) {
		items, err := r.search(ctx, query)
		if err != nil {
			return []Item(nil), nil
		}
		r.mu.Lock()
		r.cache[query] = items
		r.mu.Unlock()
		return items, nil
	})
	return firstN(v.([]Item), maxResults)
}

func firstN(items []Item, n int) []Item {
	if len(items) == 0 {
		return nil
	}
	out := make([]Item, min(n, len(items)))
	copy(out, items)
	return out
}

func (r *Retriever) search(ctx context.Context, query string) ([]Item, error) {
	if r.dispatcher == nil {
		r.metrics.RecordHistoryLookup("unavailable")
		return nil, errors.New("no dispatcher")
	}

	result, err := r.call(ctx, r.opts.SearchTool, map[string]any{"input": map[string]any{"query": query}})
	if err != nil {
		return nil, err
	}

	var payload struct {
		Result *struct {
			Matches []json.RawMessage `json:"matches"`
		} `json:"result"`
	}
	if err := decodeFirstBlock(result, &payload); err != nil || payload.Result == nil {
		r.logger.Warn("history search returned an unexpected shape", zap.Error(err))
		r.metrics.RecordHistoryLookup("error")
		return nil, errUnexpectedShape
	}

	items := make([]Item, 0, len(payload.Result.Matches))
	for _, raw := range payload.Result.Matches {
		var it Item
		if err := json.Unmarshal(raw, &it); err != nil {
			r.logger.Warn("skipping malformed history match", zap.Error(err))
			continue
		}
		items = append(items, it)
	}

	r.metrics.RecordHistoryLookup("miss")
	r.logger.Debug("history search", zap.String("query", truncate(query, 30)), zap.Int("matches", len(items)))
	return items, nil
}

// CurrentSession returns the "result" object of the current-session tool,
// or an empty map on any failure.
func (r *Retriever) CurrentSession(ctx context.Context) map[string]any {
	if r == nil || r.dispatcher == nil {
		return map[string]any{}
	}
	result, err := r.call(ctx, r.opts.CurrentTool, map[string]any{"input": map[string]any{}})
	if err != nil {
		return map[string]any{}
	}
	var payload struct {
		Result map[string]any `json:"result"`
	}
	if err := decodeFirstBlock(result, &payload); err != nil || payload.Result == nil {
		r.logger.Warn("current session lookup returned an unexpected shape", zap.Error(err))
		return map[string]any{}
	}
	return payload.Result
}

type callResult struct {
	res *mcp.ToolResult
	err error
}

// call probes for tool and invokes it within the configured timeout. The
// dispatcher runs in its own goroutine so a call that ignores ctx cannot
// hold the caller past the deadline.
func (r *Retriever) call(ctx context.Context, tool string, args map[string]any) (*mcp.ToolResult, error) {
	ctx, cancel := context.WithTimeout(ctx, r.opts.Timeout)
	defer cancel()

	names, err := r.dispatcher.ListAllTools(ctx)
	if err != nil {
		r.logger.Warn("listing tools failed", zap.Error(err))
		r.metrics.RecordHistoryLookup("error")
		return nil, err
	}
	if !contains(names, tool) {
		r.logger.Debug("history tool not available", zap.String("tool", tool))
		r.metrics.RecordHistoryLookup("unavailable")
		return nil, fmt.Errorf("tool %s not available", tool)
	}

	done := make(chan callResult, 1)
	go func() {
		res, err := r.dispatcher.CallTool(ctx, tool, args)
		done <- callResult{res: res, err: err}
	}()

	select {
	case <-ctx.Done():
		r.logger.Warn("history tool call timed out", zap.String("tool", tool), zap.Duration("timeout", r.opts.Timeout))
		r.metrics.RecordHistoryLookup("timeout")
		return nil, ctx.Err()
	case out := <-done:
		if out.err != nil {
			r.logger.Warn("history tool call failed", zap.String("tool", tool), zap.Error(out.err))
			r.metrics.RecordHistoryLookup("error")
			return nil, out.err
		}
		if out.res == nil || len(out.res.Content) == 0 {
			r.metrics.RecordHistoryLookup("error")
			return nil, errors.New("empty tool result")
		}
		return out.res, nil
	}
}

func decodeFirstBlock(res *mcp.ToolResult, v any) error {
	return json.Unmarshal([]byte(res.Content[0].Text), v)
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
