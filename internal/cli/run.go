package cli

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
	agentrpc "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/agent"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/connectjson"
)

// NewRunCmd sends one turn to the daemon and streams its events.
func NewRunCmd(opts *Options) *cobra.Command {
	var sessionID string
	var addr string
	var verbose bool

	cmd := &cobra.Command{
		Use:   "run \"<prompt>\"",
		Short: "Send a prompt to the daemon and stream the turn",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			prompt := args[0]
			if strings.TrimSpace(prompt) == "" {
				return fmt.Errorf("prompt cannot be empty")
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			if addr == "" {
				addr = cfg.Server.Addr
			}
			req := rpc.TurnRequest{SessionID: sessionID, Prompt: prompt}
			r := &eventRenderer{out: cmd.OutOrStdout(), verbose: verbose}

			baseURL := daemonURL(addr)
			switch strings.ToLower(strings.TrimSpace(cfg.Server.Transport)) {
			case "ndjson":
				return runNDJSON(ctx, baseURL+agentrpc.TurnPath, req, r)
			default:
				return runConnect(ctx, baseURL+agentrpc.ConnectRunTurnProcedure, req, r)
			}
		},
	}

	cmd.Flags().StringVar(&sessionID, "session", "", "Continue an existing session id")
	cmd.Flags().StringVar(&addr, "addr", "", "Daemon address (default: server.addr from config)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print perception, plans and step results")
	return cmd
}

func daemonURL(addr string) string {
	if strings.HasPrefix(addr, "http://") || strings.HasPrefix(addr, "https://") {
		return strings.TrimRight(addr, "/")
	}
	if strings.HasPrefix(addr, ":") {
		return "http://localhost" + addr
	}
	return "http://" + addr
}

func runNDJSON(ctx context.Context, url string, reqBody rpc.TurnRequest, r *eventRenderer) error {
	data, err := json.Marshal(reqBody)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("daemon returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		var evt rpc.TurnEvent
		if err := json.Unmarshal(scanner.Bytes(), &evt); err != nil {
			return fmt.Errorf("decode event: %w", err)
		}
		if err := r.render(evt); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func runConnect(ctx context.Context, url string, reqBody rpc.TurnRequest, r *eventRenderer) error {
	client := connect.NewClient[rpc.TurnStreamRequest, rpc.TurnEvent](buildH2CClient(), url, connect.WithCodec(connectjson.Codec{}))
	stream := client.CallBidiStream(ctx)

	if err := stream.Send(&rpc.TurnStreamRequest{Turn: &reqBody}); err != nil {
		return err
	}

	// propagate cancellation to the daemon.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = stream.Send(&rpc.TurnStreamRequest{Cancel: true, SessionID: reqBody.SessionID})
			_ = stream.CloseRequest()
		case <-done:
		}
	}()

	for {
		evt, err := stream.Receive()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}
		if err := r.render(*evt); err != nil {
			return err
		}
	}
	_ = stream.CloseRequest()
	return stream.CloseResponse()
}

type eventRenderer struct {
	out     io.Writer
	verbose bool
}

func (r *eventRenderer) render(evt rpc.TurnEvent) error {
	switch evt.Type {
	case rpc.EventPerception:
		if r.verbose {
			fmt.Fprintf(r.out, "[perception] intent=%q servers=%s\n", evt.Intent, strings.Join(evt.Servers, ","))
		}
	case rpc.EventPlan:
		if r.verbose {
			fmt.Fprintf(r.out, "[plan step %d]\n%s\n", evt.Step, evt.Message)
		}
	case rpc.EventResult:
		if r.verbose {
			fmt.Fprintf(r.out, "[result step %d] %s\n", evt.Step, evt.Message)
		}
	case rpc.EventContinue:
		fmt.Fprintf(r.out, "Further Processing Required: %s\n", evt.Message)
	case rpc.EventAnswer:
		switch evt.AnswerKind {
		case rpc.AnswerFinal:
			fmt.Fprintf(r.out, "Final Answer: %s\n", evt.Message)
		case rpc.AnswerContinue:
			fmt.Fprintf(r.out, "Further Processing Required: %s\n", evt.Message)
		default:
			fmt.Fprintf(r.out, "Final Answer (raw): %s\n", evt.Message)
		}
	case rpc.EventDone:
		fmt.Fprintf(r.out, "[done session=%s steps=%d]\n", evt.SessionID, evt.Step)
	case rpc.EventError:
		return fmt.Errorf("daemon error: %s", evt.Error)
	}
	return nil
}

func buildH2CClient() *http.Client {
	return &http.Client{
		Transport: &http2.Transport{
			AllowHTTP: true,
			DialTLSContext: func(ctx context.Context, network, addr string, _ *tls.Config) (net.Conn, error) {
				var d net.Dialer
				return d.DialContext(ctx, network, addr)
			},
		},
	}
}
