package main

import (
	"github.com/spf13/cobra"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/danielpatrickdp/deepresearch/internal/logging"
	mcpserver "github.com/danielpatrickdp/deepresearch/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the MCP server over stdio",
	Long: `Starts an MCP server over stdin/stdout exposing the deep_research and
recent_runs tools. Logs go to stderr so they never corrupt the protocol stream.`,
	RunE: runMCP,
}

func runMCP(cmd *cobra.Command, _ []string) error {
	eng, err := buildEngine(cfg)
	if err != nil {
		return err
	}
	defer eng.Close()

	srv := mcpserver.NewServer(eng.orch, eng.store, version)
	logging.New("mcp").Info("starting MCP server over stdio", "source", cfg.Source.Kind)
	return srv.Run(cmd.Context(), &sdkmcp.StdioTransport{})
}
