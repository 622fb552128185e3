package mcpserver

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Test helpers ---

func newTestSetup(handler http.Handler) (*Handlers, func()) {
	ts := httptest.NewServer(handler)
	cfg := Config{
		APIURL:      ts.URL,
		AdminSecret: "test-secret",
	}
	client := NewRiskClient(cfg)
	h := NewHandlers(client)
	return h, ts.Close
}

func makeRequest(args map[string]any) mcp.CallToolRequest {
	var req mcp.CallToolRequest
	if args == nil {
		args = map[string]any{}
	}
	req.Params.Arguments = args
	return req
}

func resultText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	require.NotEmpty(t, result.Content, "expected at least one content block")
	tc, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected TextContent, got %T", result.Content[0])
	return tc.Text
}

// ============================================================
// Client tests
// ============================================================

func TestClient_DoRequest_AdminHeader(t *testing.T) {
	var gotSecret string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Admin-Secret")
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL, AdminSecret: "s3cret"})
	_, err := client.ListFlaggedWallets(context.Background(), 60, 10)
	require.NoError(t, err)
	assert.Equal(t, "s3cret", gotSecret)
}

func TestClient_DoRequest_NoSecretNoHeader(t *testing.T) {
	var hasHeader bool
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, hasHeader = r.Header["X-Admin-Secret"]
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL})
	_, err := client.GetWalletRisk(context.Background(), "eth", "0xabc", false)
	require.NoError(t, err)
	assert.False(t, hasHeader, "should not send an empty admin secret")
}

func TestClient_DoRequest_HTTPError_WithAPIMessage(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "unauthorized",
			"message": "Valid admin credentials required.",
		})
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL, AdminSecret: "bad"})
	_, err := client.ListFlaggedWallets(context.Background(), 0, 0)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Contains(t, err.Error(), "Valid admin credentials required")
}

func TestClient_DoRequest_HTTPError_NonJSON(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("upstream timeout"))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL})
	_, err := client.GetWalletRisk(context.Background(), "eth", "0xabc", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
	assert.Contains(t, err.Error(), "upstream timeout")
}

func TestClient_DoRequest_ConnectionRefused(t *testing.T) {
	client := NewRiskClient(Config{APIURL: "http://127.0.0.1:1"})
	_, err := client.GetWalletRisk(context.Background(), "eth", "0xabc", false)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "request failed")
}

func TestClient_DoRequest_CancelledContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(5 * time.Second)
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := client.GetWalletRisk(ctx, "eth", "0xabc", false)
	require.Error(t, err)
}

func TestClient_GetWalletRisk_PreviewQuery(t *testing.T) {
	var gotQuery string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{}`))
	}))
	defer ts.Close()

	client := NewRiskClient(Config{APIURL: ts.URL})
	_, err := client.GetWalletRisk(context.Background(), "eth", "0xabc", true)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "preview=automated")
}

// ============================================================
// get_wallet_risk
// ============================================================

func TestHandleGetWalletRisk_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/risk/eth/0xabc", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"address":      "0xabc",
			"chain":        "eth",
			"riskScore":    85,
			"riskCategory": "red",
			"source":       "automated",
			"reasons":      []string{"wallet flagged as suspicious"},
		})
	}))
	defer cleanup()

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "0xabc")
	assert.Contains(t, text, "85 / 100")
	assert.Contains(t, text, "red")
	assert.Contains(t, text, "wallet flagged as suspicious")
}

func TestHandleGetWalletRisk_MissingChain(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "chain is required")
}

func TestHandleGetWalletRisk_MissingAddress(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{
		"chain": "eth",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "address is required")
}

func TestHandleGetWalletRisk_APIError(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "invalid_request",
			"message": "Malformed wallet address for chain eth",
		})
	}))
	defer cleanup()

	result, err := h.HandleGetWalletRisk(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "not-an-address",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "Malformed wallet address")
}

// ============================================================
// get_risk_history
// ============================================================

func TestHandleGetRiskHistory_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/risk/eth/0xabc/history", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"history": []map[string]any{
				{"date": "2026-08-01T10:00:00Z", "riskScore": 95, "riskCategory": "red", "note": "override set by admin:abc"},
				{"date": "2026-08-02T10:00:00Z", "note": "override cleared by admin:abc"},
			},
		})
	}))
	defer cleanup()

	result, err := h.HandleGetRiskHistory(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "2 history")
	assert.Contains(t, text, "Score: 95")
	assert.Contains(t, text, "override cleared")
}

func TestHandleGetRiskHistory_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"history": []map[string]any{}})
	}))
	defer cleanup()

	result, err := h.HandleGetRiskHistory(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No override history")
}

// ============================================================
// list_flagged_wallets
// ============================================================

func TestHandleListFlaggedWallets_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/admin/risk/wallets", r.URL.Path)
		assert.Equal(t, "test-secret", r.Header.Get("X-Admin-Secret"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"wallets": []map[string]any{
				{"address": "0xbad", "chain": "eth", "riskScore": 100, "riskCategory": "black", "source": "blacklist"},
				{"address": "0xmeh", "chain": "btc", "riskScore": 72, "riskCategory": "red", "source": "automated"},
			},
		})
	}))
	defer cleanup()

	result, err := h.HandleListFlaggedWallets(context.Background(), makeRequest(map[string]any{
		"min_score": 70,
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "2 flagged wallet(s)")
	assert.Contains(t, text, "0xbad")
	assert.Contains(t, text, "black")
}

func TestHandleListFlaggedWallets_Empty(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"wallets": []map[string]any{}})
	}))
	defer cleanup()

	result, err := h.HandleListFlaggedWallets(context.Background(), makeRequest(nil))
	require.NoError(t, err)
	assert.Contains(t, resultText(t, result), "No wallets")
}

// ============================================================
// set_risk_override
// ============================================================

func TestHandleSetRiskOverride_Success(t *testing.T) {
	var gotBody map[string]any
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"address":      "0xabc",
			"chain":        "eth",
			"riskScore":    95,
			"riskCategory": "red",
			"source":       "override",
		})
	}))
	defer cleanup()

	result, err := h.HandleSetRiskOverride(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
		"score":   float64(95),
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	assert.Equal(t, float64(95), gotBody["riskScore"])
	text := resultText(t, result)
	assert.Contains(t, text, "Override applied")
	assert.Contains(t, text, "override")
}

func TestHandleSetRiskOverride_RequiresField(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("API should not be called")
	}))
	defer cleanup()

	result, err := h.HandleSetRiskOverride(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "at least one of score or category")
}

// ============================================================
// clear_risk_override
// ============================================================

func TestHandleClearRiskOverride_Success(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/v1/admin/risk/wallets/eth/0xabc/override", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"address":      "0xabc",
			"chain":        "eth",
			"riskScore":    20,
			"riskCategory": "green",
			"source":       "automated",
		})
	}))
	defer cleanup()

	result, err := h.HandleClearRiskOverride(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	require.False(t, result.IsError)

	text := resultText(t, result)
	assert.Contains(t, text, "Override cleared")
	assert.Contains(t, text, "automated")
}

func TestHandleClearRiskOverride_NotFound(t *testing.T) {
	h, cleanup := newTestSetup(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error":   "not_found",
			"message": "No override exists for this wallet",
		})
	}))
	defer cleanup()

	result, err := h.HandleClearRiskOverride(context.Background(), makeRequest(map[string]any{
		"chain":   "eth",
		"address": "0xabc",
	}))
	require.NoError(t, err)
	assert.True(t, result.IsError)
	assert.Contains(t, resultText(t, result), "No override exists")
}
