package mcpserver

import (
	"github.com/mark3labs/mcp-go/server"
)

// NewMCPServer creates a configured MCP server with all risk tools registered.
func NewMCPServer(cfg Config) *server.MCPServer {
	s := server.NewMCPServer("blockpages-risk", "1.0.0")
	client := NewRiskClient(cfg)
	h := NewHandlers(client)

	s.AddTool(ToolGetWalletRisk, h.HandleGetWalletRisk)
	s.AddTool(ToolGetRiskHistory, h.HandleGetRiskHistory)
	s.AddTool(ToolListFlaggedWallets, h.HandleListFlaggedWallets)
	s.AddTool(ToolSetRiskOverride, h.HandleSetRiskOverride)
	s.AddTool(ToolClearRiskOverride, h.HandleClearRiskOverride)

	return s
}
