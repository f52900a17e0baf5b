package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// StdioConfig describes a subprocess MCP server.
type StdioConfig struct {
	Command string
	Args    []string
	Dir     string
	Env     map[string]string
	Logger  *zap.Logger
}

// StdioTransport exchanges newline-delimited JSON-RPC with a subprocess.
// The process starts lazily and is restarted after a failed exchange.
type StdioTransport struct {
	cfg    StdioConfig
	logger *zap.Logger

	mu     sync.Mutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	reader *bufio.Reader
}

// NewStdioTransport creates a stdio transport; nothing is started yet.
func NewStdioTransport(cfg StdioConfig) *StdioTransport {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StdioTransport{cfg: cfg, logger: logger}
}

// start launches the subprocess. Its lifetime is independent of any call
// context. Caller holds t.mu.
func (t *StdioTransport) start() error {
	if t.cmd != nil {
		return nil
	}

	cmd := exec.Command(t.cfg.Command, t.cfg.Args...)
	cmd.Dir = t.cfg.Dir
	cmd.Env = append(os.Environ(), envList(t.cfg.Env)...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		stdout.Close()
		return fmt.Errorf("stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", t.cfg.Command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.reader = bufio.NewReaderSize(stdout, 1<<20)
	go t.drain(stderr)

	t.logger.Info("mcp subprocess started",
		zap.String("command", t.cfg.Command),
		zap.Strings("args", t.cfg.Args),
		zap.Int("pid", cmd.Process.Pid))
	return nil
}

func (t *StdioTransport) drain(r io.Reader) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 256*1024)
	for scanner.Scan() {
		t.logger.Debug("mcp subprocess stderr", zap.String("line", scanner.Text()))
	}
}

type lineResult struct {
	line []byte
	err  error
}

// Send writes req and reads lines until the response with the same id
// arrives. Server notifications and log noise on stdout are skipped.
func (t *StdioTransport) Send(ctx context.Context, req *Request) (*Response, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if err := t.write(req); err != nil {
		return nil, err
	}

	for {
		ch := make(chan lineResult, 1)
		reader := t.reader
		go func() {
			line, err := reader.ReadBytes('\n')
			ch <- lineResult{line: line, err: err}
		}()

		select {
		case <-ctx.Done():
			// Killing the process unblocks the pending read.
			t.reset()
			return nil, ctx.Err()
		case res := <-ch:
			if res.err != nil {
				t.reset()
				return nil, fmt.Errorf("read from subprocess: %w", res.err)
			}
			var resp Response
			if err := json.Unmarshal(res.line, &resp); err != nil {
				t.logger.Debug("skipping non-json stdout line", zap.ByteString("line", res.line))
				continue
			}
			if resp.ID == req.ID && (resp.Result != nil || resp.Error != nil) {
				return &resp, nil
			}
		}
	}
}

// Notify writes a notification without waiting for a reply.
func (t *StdioTransport) Notify(_ context.Context, notif *Notification) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.write(notif)
}

func (t *StdioTransport) write(msg any) error {
	if err := t.start(); err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		t.reset()
		return fmt.Errorf("write to subprocess: %w", err)
	}
	return nil
}

// Close closes stdin and waits briefly for the process to exit.
func (t *StdioTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cmd == nil {
		return nil
	}
	t.stdin.Close()

	done := make(chan error, 1)
	cmd := t.cmd
	go func() { done <- cmd.Wait() }()

	var err error
	select {
	case err = <-done:
	case <-time.After(5 * time.Second):
		t.logger.Warn("mcp subprocess did not exit, killing", zap.Int("pid", cmd.Process.Pid))
		_ = cmd.Process.Kill()
		<-done
	}
	t.cmd, t.stdin, t.reader = nil, nil, nil
	return err
}

// reset kills the process after a failed exchange. Caller holds t.mu.
func (t *StdioTransport) reset() {
	if t.stdin != nil {
		t.stdin.Close()
	}
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
		_ = t.cmd.Wait()
	}
	t.cmd, t.stdin, t.reader = nil, nil, nil
}

func envList(env map[string]string) []string {
	keys := make([]string, 0, len(env))
	for k := range env {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k+"="+env[k])
	}
	return out
}
