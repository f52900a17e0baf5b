package agent

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/bufbuild/connect-go"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/connectjson"
)

const ConnectRunTurnProcedure = "/connect.cortexr.v1.AgentService/RunTurn"

// NewConnectHandler builds a Connect bidi stream handler for RunTurn.
func NewConnectHandler(runner Runner, metrics *observability.Metrics) (string, http.Handler) {
	if runner == nil {
		runner = EchoRunner{}
	}
	h := &connectTurnHandler{runner: runner, metrics: metrics}
	return ConnectRunTurnProcedure, connect.NewBidiStreamHandler(ConnectRunTurnProcedure, h.handle, connect.WithCodec(connectjson.Codec{}))
}

type connectTurnHandler struct {
	runner  Runner
	metrics *observability.Metrics
}

func (h *connectTurnHandler) handle(ctx context.Context, stream *connect.BidiStream[rpc.TurnStreamRequest, rpc.TurnEvent]) error {
	h.metrics.IncActiveSessions("connect")
	defer h.metrics.DecActiveSessions("connect")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	first, err := stream.Receive()
	if err != nil {
		h.metrics.RecordTransportError("connect", "receive_first")
		return err
	}
	if first == nil || first.Turn == nil {
		h.metrics.RecordTransportError("connect", "missing_turn")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("first message must include turn payload"))
	}
	req := *first.Turn
	if strings.TrimSpace(req.Prompt) == "" {
		h.metrics.RecordTransportError("connect", "empty_prompt")
		return connect.NewError(connect.CodeInvalidArgument, errors.New("prompt cannot be empty"))
	}

	// Listen for cancellation messages from the client. A half-closed
	// request stream is not a cancellation.
	go func() {
		for {
			msg, recvErr := stream.Receive()
			if recvErr != nil {
				if !errors.Is(recvErr, io.EOF) {
					if !errors.Is(recvErr, context.Canceled) {
						h.metrics.RecordTransportError("connect", "receive_stream")
					}
					cancel()
				}
				return
			}
			if msg != nil && msg.Cancel {
				cancel()
				return
			}
		}
	}()

	events, runErr := h.runner.Run(ctx, req)
	if runErr != nil {
		h.metrics.RecordTransportError("connect", "runner_error")
		return connect.NewError(connect.CodeInternal, runErr)
	}

	for ev := range events {
		if err := stream.Send(&ev); err != nil {
			h.metrics.RecordTransportError("connect", "send")
			cancel()
			for range events {
			}
			return err
		}
	}
	return nil
}
