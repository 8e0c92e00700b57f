package cli

import (
	"fmt"
	"os"
	"strings"

	inframcp "github.com/felixgeelhaar/ganttly/internal/infrastructure/mcp"
	"github.com/spf13/cobra"
)

var (
	mcpTransport string
	mcpAddr      string
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start the Ganttly MCP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		if os.Getenv("GANTTLY_SKIP_MCP_START") == "true" {
			return nil
		}
		root, err := getProjectRoot()
		if err != nil {
			return err
		}
		server, err := inframcp.NewServer(root)
		if err != nil {
			return err
		}
		defer server.Close()

		switch strings.ToLower(mcpTransport) {
		case "stdio", "":
			return server.StartStdio()
		case "http":
			return server.StartHTTP(mcpAddr)
		default:
			return fmt.Errorf("unsupported transport: %s", mcpTransport)
		}
	},
}

func init() {
	mcpCmd.Flags().StringVar(&mcpTransport, "transport", "stdio", "Transport to use (stdio, http)")
	mcpCmd.Flags().StringVar(&mcpAddr, "addr", ":8080", "Address for the http transport")
	RootCmd.AddCommand(mcpCmd)
}
