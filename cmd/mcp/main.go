// Blockpages Risk MCP Server - exposes wallet risk tools for LLMs
package main

import (
	"fmt"
	"os"

	"github.com/mark3labs/mcp-go/server"

	"github.com/LegionofMany/blockpages-risk/internal/mcpserver"
)

func main() {
	cfg := mcpserver.Config{
		APIURL:      envOrDefault("RISK_API_URL", "http://localhost:8080"),
		AdminSecret: os.Getenv("RISK_ADMIN_SECRET"),
	}

	// Read-only tools work without credentials; the override tools
	// fail with a clear API error if no admin secret is configured.
	s := mcpserver.NewMCPServer(cfg)
	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "MCP server error: %v\n", err)
		os.Exit(1)
	}
}

func envOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
