package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
)

// Handlers holds the handler functions for each MCP tool.
type Handlers struct {
	client *RiskClient
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(client *RiskClient) *Handlers {
	return &Handlers{client: client}
}

// HandleGetWalletRisk returns the assessment for a wallet.
func (h *Handlers) HandleGetWalletRisk(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	if chain == "" {
		return mcp.NewToolResultError("chain is required"), nil
	}
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	preview := req.GetBool("preview_automated", false)

	raw, err := h.client.GetWalletRisk(ctx, chain, address, preview)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get wallet risk: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleGetRiskHistory returns the override history for a wallet.
func (h *Handlers) HandleGetRiskHistory(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	if chain == "" {
		return mcp.NewToolResultError("chain is required"), nil
	}
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}
	limit := req.GetInt("limit", 20)

	raw, err := h.client.GetRiskHistory(ctx, chain, address, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to get risk history: %v", err)), nil
	}

	text, err := formatHistory(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse history: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleListFlaggedWallets lists high-risk wallets.
func (h *Handlers) HandleListFlaggedWallets(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	minScore := req.GetInt("min_score", 0)
	limit := req.GetInt("limit", 20)

	raw, err := h.client.ListFlaggedWallets(ctx, minScore, limit)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to list flagged wallets: %v", err)), nil
	}

	text, err := formatFlaggedList(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse wallet list: %v", err)), nil
	}

	return mcp.NewToolResultText(text), nil
}

// HandleSetRiskOverride pins a manual score or category on a wallet.
func (h *Handlers) HandleSetRiskOverride(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	if chain == "" {
		return mcp.NewToolResultError("chain is required"), nil
	}
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	var score *int
	if raw := req.GetArguments()["score"]; raw != nil {
		if f, ok := raw.(float64); ok {
			v := int(f)
			score = &v
		}
	}
	category := req.GetString("category", "")

	if score == nil && category == "" {
		return mcp.NewToolResultError("at least one of score or category is required"), nil
	}

	raw, err := h.client.SetOverride(ctx, chain, address, score, category)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to set override: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText("Override applied.\n\n" + text), nil
}

// HandleClearRiskOverride removes a manual override.
func (h *Handlers) HandleClearRiskOverride(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	chain := req.GetString("chain", "")
	if chain == "" {
		return mcp.NewToolResultError("chain is required"), nil
	}
	address := req.GetString("address", "")
	if address == "" {
		return mcp.NewToolResultError("address is required"), nil
	}

	raw, err := h.client.ClearOverride(ctx, chain, address)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to clear override: %v", err)), nil
	}

	text, err := formatAssessment(raw)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to parse assessment: %v", err)), nil
	}

	return mcp.NewToolResultText("Override cleared. Automated scoring applies again.\n\n" + text), nil
}

// --- Formatting helpers ---

func formatAssessment(raw json.RawMessage) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return "", err
	}

	var sb strings.Builder
	sb.WriteString("Wallet Risk Assessment:\n")
	if v := getString(m, "address"); v != "" {
		sb.WriteString(fmt.Sprintf("  Address: %s\n", v))
	}
	if v := getString(m, "chain"); v != "" {
		sb.WriteString(fmt.Sprintf("  Chain: %s\n", v))
	}
	if v, ok := getFloat(m, "riskScore"); ok {
		sb.WriteString(fmt.Sprintf("  Score: %.0f / 100\n", v))
	}
	if v := getString(m, "riskCategory"); v != "" {
		sb.WriteString(fmt.Sprintf("  Category: %s\n", v))
	}
	if v := getString(m, "source"); v != "" {
		sb.WriteString(fmt.Sprintf("  Source: %s\n", v))
	}

	if reasons, ok := m["reasons"].([]any); ok && len(reasons) > 0 {
		sb.WriteString("  Reasons:\n")
		for _, r := range reasons {
			if s, ok := r.(string); ok {
				sb.WriteString(fmt.Sprintf("    - %s\n", s))
			}
		}
	}

	return sb.String(), nil
}

func formatHistory(raw json.RawMessage) (string, error) {
	var resp struct {
		History []map[string]any `json:"history"`
	}
	// Try as {"history": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.History == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.History); err != nil {
			return "", fmt.Errorf("unexpected history response format")
		}
	}

	if len(resp.History) == 0 {
		return "No override history for this wallet.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d history entr(ies):\n\n", len(resp.History)))
	for i, e := range resp.History {
		date := getString(e, "date")
		note := getString(e, "note")
		sb.WriteString(fmt.Sprintf("%d. %s\n", i+1, date))
		if v, ok := getFloat(e, "riskScore"); ok {
			sb.WriteString(fmt.Sprintf("   Score: %.0f\n", v))
		}
		if v := getString(e, "riskCategory"); v != "" {
			sb.WriteString(fmt.Sprintf("   Category: %s\n", v))
		}
		if note != "" {
			sb.WriteString(fmt.Sprintf("   Note: %s\n", note))
		}
	}
	return sb.String(), nil
}

func formatFlaggedList(raw json.RawMessage) (string, error) {
	var resp struct {
		Wallets []map[string]any `json:"wallets"`
	}
	// Try as {"wallets": [...]}
	if err := json.Unmarshal(raw, &resp); err != nil || resp.Wallets == nil {
		// Try as direct array
		if err := json.Unmarshal(raw, &resp.Wallets); err != nil {
			return "", fmt.Errorf("unexpected wallets response format")
		}
	}

	if len(resp.Wallets) == 0 {
		return "No wallets at or above the requested score.", nil
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d flagged wallet(s):\n\n", len(resp.Wallets)))
	for i, w := range resp.Wallets {
		addr := getString(w, "address")
		chain := getString(w, "chain")
		sb.WriteString(fmt.Sprintf("%d. %s (%s)\n", i+1, addr, chain))
		if v, ok := getFloat(w, "riskScore"); ok {
			sb.WriteString(fmt.Sprintf("   Score: %.0f", v))
		}
		if v := getString(w, "riskCategory"); v != "" {
			sb.WriteString(fmt.Sprintf(" | Category: %s", v))
		}
		if v := getString(w, "source"); v != "" {
			sb.WriteString(fmt.Sprintf(" | Source: %s", v))
		}
		sb.WriteString("\n")
	}
	return sb.String(), nil
}

// getString extracts a string value from a map, trying multiple key names.
func getString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
			if f, ok := v.(float64); ok {
				return fmt.Sprintf("%g", f)
			}
		}
	}
	return ""
}

// getFloat extracts a float64 value from a map, trying multiple key names.
func getFloat(m map[string]any, keys ...string) (float64, bool) {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			if f, ok := v.(float64); ok {
				return f, true
			}
		}
	}
	return 0, false
}
