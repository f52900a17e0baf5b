package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/agent"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/app"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/logging"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/observability"
	agentrpc "github.com/shettysaish20/Hybrid-DM-MCP-App/internal/rpc/agent"
)

const chatPrompt = "What do you want to solve today? → "

// NewChatCmd runs the agent in-process as an interactive loop.
func NewChatCmd(opts *Options) *cobra.Command {
	var verbose bool

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the agent in this terminal ('new' starts a session, 'exit' quits)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			logger, err := logging.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck // best-effort

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer stop()

			a, err := app.Build(ctx, cfg, logger, observability.NewMetrics())
			if err != nil {
				return err
			}
			defer a.Close()

			return chatLoop(ctx, cmd.InOrStdin(), cmd.OutOrStdout(), a, verbose)
		},
	}
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "Print perception, plans and step results")
	return cmd
}

// chatLoop reads one request per line until exit, EOF or cancellation.
// The session carries over between requests until "new".
func chatLoop(ctx context.Context, in io.Reader, out io.Writer, turns agentrpc.TurnRunner, verbose bool) error {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	sessionID := ""

	for {
		fmt.Fprint(out, chatPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		switch strings.ToLower(input) {
		case "":
			continue
		case "exit":
			return nil
		case "new":
			sessionID = ""
			fmt.Fprintln(out, "Started a new session.")
			continue
		}

		c := turns.NewTurn(input, sessionID)
		sessionID = c.SessionID
		c.Events = func(ev agent.Event) { printEvent(out, ev, verbose) }

		outcome, err := turns.RunTurn(ctx, c)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				fmt.Fprintln(out, "\nReceived exit signal. Shutting down...")
				return nil
			}
			return err
		}
		printAnswer(out, outcome.Directive)
	}
}

func printEvent(out io.Writer, ev agent.Event, verbose bool) {
	switch ev.Kind {
	case agent.EventContinue:
		fmt.Fprintf(out, "\nFurther Processing Required: %s\n", ev.Text)
	case agent.EventPerception:
		if verbose && ev.Perception != nil {
			fmt.Fprintf(out, "[perception] intent=%q servers=%s\n", ev.Perception.Intent, strings.Join(ev.Perception.SelectedServers, ","))
		}
	case agent.EventPlan:
		if verbose {
			fmt.Fprintf(out, "[plan step %d]\n%s\n", ev.Step, ev.Text)
		}
	case agent.EventResult:
		if verbose {
			fmt.Fprintf(out, "[result step %d] %s\n", ev.Step, ev.Text)
		}
	}
}

func printAnswer(out io.Writer, d agent.Directive) {
	switch d.Kind {
	case agent.Final:
		fmt.Fprintf(out, "\nFinal Answer: %s\n", d.Text)
	case agent.Continue:
		fmt.Fprintf(out, "\nFurther Processing Required: %s\n", d.Text)
	default:
		fmt.Fprintf(out, "\nFinal Answer (raw): %s\n", d.Text)
	}
}
