// Package executor runs generated plans in an external interpreter and
// bridges the plan's tool calls back to the dispatcher.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
)

const (
	// maxStderrTail bounds how much stderr is quoted in an error.
	maxStderrTail = 2000

	toolPrefix   = "@@TOOL "
	resultPrefix = "@@RESULT "
)

// ToolCaller serves the tool calls a plan makes while it runs.
type ToolCaller interface {
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.ToolResult, error)
}

// Result carries output and status code.
type Result struct {
	// Output is the value solve() returned, or the trimmed stdout when the
	// plan never reported one.
	Output   string
	Stdout   string
	Stderr   string
	ExitCode int
	Calls    int
}

// Command executes a plan by writing it, wrapped in a prelude and an
// epilogue, to a temporary file and running the configured interpreter on it.
type Command struct {
	command    string
	args       []string
	workingDir string
	timeout    time.Duration
	tools      ToolCaller
	logger     *zap.Logger

	prelude  string
	epilogue string
}

// New builds a Command, checking the interpreter against the allow/deny lists.
// tools may be nil, in which case every tool call fails inside the plan.
func New(cfg config.ExecutorConfig, tools ToolCaller, logger *zap.Logger) (*Command, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Command == "" {
		return nil, errors.New("executor command is required")
	}
	if err := validateCommand(cfg.Command, cfg.AllowedCommands, cfg.DeniedCommands); err != nil {
		return nil, err
	}
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Command{
		command:    cfg.Command,
		args:       append([]string(nil), cfg.Args...),
		workingDir: cfg.WorkingDir,
		timeout:    timeout,
		tools:      tools,
		logger:     logger,
		prelude:    pythonPrelude,
		epilogue:   pythonEpilogue,
	}, nil
}

// Execute runs plan and returns what solve() produced.
func (c *Command) Execute(ctx context.Context, plan string) (string, error) {
	res, err := c.Run(ctx, plan)
	if err != nil {
		return "", err
	}
	return res.Output, nil
}

// Run executes plan and returns the full result. A non-zero exit is an error
// quoting the tail of stderr.
func (c *Command) Run(ctx context.Context, plan string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	path, err := c.writeScript(plan)
	if err != nil {
		return Result{ExitCode: -1}, err
	}
	defer os.Remove(path)

	cmd := exec.CommandContext(ctx, c.command, append(append([]string(nil), c.args...), path)...)
	// Grandchildren may hold the output pipes open after a kill.
	cmd.WaitDelay = time.Second
	if c.workingDir != "" {
		cmd.Dir = c.workingDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("stdin pipe: %w", err)
	}
	pr, pw := io.Pipe()
	cmd.Stdout = pw
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return Result{ExitCode: -1}, fmt.Errorf("start %s: %w", c.command, err)
	}
	waitErr := make(chan error, 1)
	go func() {
		err := cmd.Wait()
		pw.Close()
		waitErr <- err
	}()

	res := c.bridge(ctx, pr, stdin)
	stdin.Close()
	err = <-waitErr
	res.Stderr = stderr.String()

	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ExitCode = exitErr.ExitCode()
	default:
		res.ExitCode = -1
	}
	c.logger.Debug("plan executed",
		zap.String("command", c.command),
		zap.Int("exit_code", res.ExitCode),
		zap.Int("tool_calls", res.Calls),
		zap.Duration("elapsed", time.Since(start)))

	if ctx.Err() == context.DeadlineExceeded {
		return res, fmt.Errorf("plan timed out after %s", c.timeout)
	}
	if err != nil {
		return res, fmt.Errorf("plan failed (exit %d): %s", res.ExitCode, tail(res.Stderr, err))
	}
	return res, nil
}

func (c *Command) writeScript(plan string) (string, error) {
	f, err := os.CreateTemp("", "cortexr-plan-*.py")
	if err != nil {
		return "", fmt.Errorf("create plan file: %w", err)
	}
	defer f.Close()

	var b strings.Builder
	if c.prelude != "" {
		b.WriteString(c.prelude)
		b.WriteString("\n")
	}
	b.WriteString(strings.TrimRight(plan, "\n"))
	b.WriteString("\n")
	b.WriteString(c.epilogue)

	if _, err := f.WriteString(b.String()); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("write plan file: %w", err)
	}
	return f.Name(), nil
}

type toolRequest struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// bridge reads the interpreter's stdout until EOF. Tool request lines are
// answered on stdin with one JSON line each; the result line is captured;
// everything else is ordinary output.
func (c *Command) bridge(ctx context.Context, r io.Reader, w io.Writer) Result {
	reader := bufio.NewReader(r)
	var (
		res     Result
		stdout  strings.Builder
		output  string
		gotDone bool
	)
	for {
		line, err := reader.ReadString('\n')
		trimmed := strings.TrimRight(line, "\r\n")
		switch {
		case strings.HasPrefix(trimmed, toolPrefix):
			res.Calls++
			reply := c.callTool(ctx, strings.TrimPrefix(trimmed, toolPrefix))
			if _, werr := w.Write(append(reply, '\n')); werr != nil {
				c.logger.Debug("plan stdin closed before tool reply", zap.Error(werr))
			}
		case strings.HasPrefix(trimmed, resultPrefix):
			output, gotDone = decodeResult(strings.TrimPrefix(trimmed, resultPrefix)), true
		default:
			stdout.WriteString(line)
		}
		if err != nil {
			break
		}
	}

	res.Stdout = stdout.String()
	if gotDone {
		res.Output = output
	} else {
		res.Output = strings.TrimSpace(res.Stdout)
	}
	return res
}

func (c *Command) callTool(ctx context.Context, payload string) []byte {
	var req toolRequest
	if err := json.Unmarshal([]byte(payload), &req); err != nil {
		return encodeReply(mcp.ErrorResult(fmt.Sprintf("Error: malformed tool request: %v", err)))
	}
	if c.tools == nil {
		return encodeReply(mcp.ErrorResult("Error: no tools are available"))
	}

	c.logger.Debug("plan tool call", zap.String("tool", req.Name))
	result, err := c.tools.CallTool(ctx, req.Name, req.Args)
	if err != nil {
		return encodeReply(mcp.ErrorResult(fmt.Sprintf("Error: %v", err)))
	}
	if result == nil {
		result = &mcp.ToolResult{}
	}
	return encodeReply(result)
}

func encodeReply(r *mcp.ToolResult) []byte {
	if r.Content == nil {
		r.Content = []mcp.ContentBlock{}
	}
	data, err := json.Marshal(r)
	if err != nil {
		data, _ = json.Marshal(mcp.ErrorResult(err.Error()))
	}
	return data
}

// decodeResult accepts a JSON string, or any other text verbatim.
func decodeResult(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(raw), &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(raw)
}

func tail(stderr string, err error) string {
	s := strings.TrimSpace(stderr)
	if s == "" {
		return err.Error()
	}
	if len(s) > maxStderrTail {
		s = s[len(s)-maxStderrTail:]
	}
	return s
}

func validateCommand(cmd string, allowed, denied []string) error {
	lower := strings.ToLower(filepath.Base(cmd))
	for _, deny := range denied {
		if lower == strings.ToLower(deny) {
			return fmt.Errorf("command %q is denied", cmd)
		}
	}
	if len(allowed) > 0 {
		for _, allow := range allowed {
			if lower == strings.ToLower(allow) {
				return nil
			}
		}
		return fmt.Errorf("command %q is not in allowlist", cmd)
	}
	return nil
}
