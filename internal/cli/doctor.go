package cli

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/config"
	"github.com/shettysaish20/Hybrid-DM-MCP-App/internal/mcp"
)

// NewDoctorCmd returns a health-check command validating config and environment.
func NewDoctorCmd(opts *Options) *cobra.Command {
	var probe bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Validate configuration and environment",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config OK. Providers: %d, models: %d, mcp servers: %d\n", len(cfg.Providers), len(cfg.Models), len(cfg.MCPServers))
			fmt.Fprintf(out, "Memory enabled: %v, history: %v, metrics: %v\n", cfg.Memory.Enabled, cfg.History.Enabled, cfg.Server.MetricsEnabled)
			if cfg.Documents.Enabled {
				fmt.Fprintf(out, "Documents %q: %s\n", cfg.Documents.ServerID, cfg.Documents.Root)
			}

			if path, err := exec.LookPath(cfg.Executor.Command); err != nil {
				fmt.Fprintf(out, "Executor %q: not found on PATH\n", cfg.Executor.Command)
			} else {
				fmt.Fprintf(out, "Executor %q: %s\n", cfg.Executor.Command, path)
			}

			if probe {
				ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
				defer cancel()
				probeServers(ctx, out, cfg)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&probe, "probe", false, "Start each configured MCP server and list its tools")
	return cmd
}

// probeServers starts each configured server on its own and reports the
// tools it offers.
func probeServers(ctx context.Context, out io.Writer, cfg *config.Config) {
	for _, c := range mcp.ClientsFromConfig(cfg.MCPServers, nil) {
		status := probeServer(ctx, c)
		fmt.Fprintf(out, "MCP %s: %s\n", c.ID(), status)
	}
}

func probeServer(ctx context.Context, c *mcp.Client) string {
	defer c.Close()
	if err := c.Initialize(ctx); err != nil {
		return "unavailable: " + err.Error()
	}
	defs, err := c.ListTools(ctx)
	if err != nil {
		return "tool discovery failed: " + err.Error()
	}
	names := make([]string, 0, len(defs))
	for _, d := range defs {
		names = append(names, d.Name)
	}
	sort.Strings(names)
	return fmt.Sprintf("%d tools %v", len(names), names)
}
