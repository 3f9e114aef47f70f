package cmd

import (
	"github.com/spf13/cobra"

	"github.com/joescharf/beacon/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets coding agents query their own session history natively.
Configure in Claude Code with:

  {
    "mcpServers": {
      "beacon": { "command": "beacon", "args": ["mcp"] }
    }
  }

Available tools: beacon_list_projects, beacon_list_sessions,
beacon_list_events, beacon_get_session, beacon_stats`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		srv := mcp.NewServer(s)
		return srv.ServeStdio(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
