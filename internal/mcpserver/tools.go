package mcpserver

import "github.com/mark3labs/mcp-go/mcp"

// Tool definitions for the risk MCP server.
// Descriptions are what the LLM reads to decide which tool to use.

var ToolGetWalletRisk = mcp.NewTool("get_wallet_risk",
	mcp.WithDescription(
		"Get the current risk assessment for a blockchain wallet. "+
			"Returns a 0-100 score, a category (green/yellow/red/black), "+
			"and the reasons behind the score. Manual analyst overrides take "+
			"precedence over the automated score."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Chain the wallet lives on (e.g. 'eth', 'btc', 'polygon')")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address (e.g. '0x1234...')")),
	mcp.WithBoolean("preview_automated",
		mcp.Description("If true, return the automated score even when a manual override is active")),
)

var ToolGetRiskHistory = mcp.NewTool("get_risk_history",
	mcp.WithDescription(
		"Get the manual override history for a wallet: every time an analyst "+
			"pinned or cleared a score, with dates and notes. Useful for auditing "+
			"why a wallet carries its current rating."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Chain the wallet lives on")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of history entries to return (default 20)")),
)

var ToolListFlaggedWallets = mcp.NewTool("list_flagged_wallets",
	mcp.WithDescription(
		"List wallets whose risk score is at or above a threshold, highest first. "+
			"Requires admin credentials."),
	mcp.WithNumber("min_score",
		mcp.Description("Minimum risk score to include (default 60)")),
	mcp.WithNumber("limit",
		mcp.Description("Maximum number of wallets to return (default 20)")),
)

var ToolSetRiskOverride = mcp.NewTool("set_risk_override",
	mcp.WithDescription(
		"Pin a manual risk score and/or category on a wallet, taking precedence "+
			"over the automated assessment. At least one of score or category is "+
			"required. Requires admin credentials."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Chain the wallet lives on")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address")),
	mcp.WithNumber("score",
		mcp.Description("Manual risk score, 0-100")),
	mcp.WithString("category",
		mcp.Description("Manual risk category"),
		mcp.Enum("green", "yellow", "red", "black")),
)

var ToolClearRiskOverride = mcp.NewTool("clear_risk_override",
	mcp.WithDescription(
		"Remove a manual override from a wallet so automated scoring applies "+
			"again. Requires admin credentials."),
	mcp.WithString("chain",
		mcp.Required(),
		mcp.Description("Chain the wallet lives on")),
	mcp.WithString("address",
		mcp.Required(),
		mcp.Description("The wallet address")),
)
