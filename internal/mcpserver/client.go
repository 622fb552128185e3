package mcpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Config holds the configuration for connecting to the risk API.
type Config struct {
	APIURL      string // Base URL, e.g. "http://localhost:8080"
	AdminSecret string // Optional; required only for the override tools
}

// RiskClient is a pure HTTP client for the risk API.
type RiskClient struct {
	cfg        Config
	httpClient *http.Client
}

// NewRiskClient creates a new client for the risk API.
func NewRiskClient(cfg Config) *RiskClient {
	return &RiskClient{
		cfg: cfg,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// apiError represents an error response from the API.
type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// doRequest makes an HTTP request to the API and returns the response body.
func (c *RiskClient) doRequest(ctx context.Context, method, path string, query url.Values, body any) (json.RawMessage, error) {
	u, err := url.Parse(c.cfg.APIURL + path)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if query != nil {
		u.RawQuery = query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), reqBody)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	if c.cfg.AdminSecret != "" {
		req.Header.Set("X-Admin-Secret", c.cfg.AdminSecret)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if json.Unmarshal(respBody, &apiErr) == nil && apiErr.Message != "" {
			return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, apiErr.Message)
		}
		return nil, fmt.Errorf("API error (%d): %s", resp.StatusCode, string(respBody))
	}

	return json.RawMessage(respBody), nil
}

// GetWalletRisk returns the current risk assessment for a wallet.
// With preview set, the automated score is returned even when an
// override is active.
func (c *RiskClient) GetWalletRisk(ctx context.Context, chain, address string, preview bool) (json.RawMessage, error) {
	path := "/v1/risk/" + url.PathEscape(chain) + "/" + url.PathEscape(address)
	var q url.Values
	if preview {
		q = url.Values{"preview": []string{"automated"}}
	}
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// GetRiskHistory returns the override history for a wallet.
func (c *RiskClient) GetRiskHistory(ctx context.Context, chain, address string, limit int) (json.RawMessage, error) {
	path := "/v1/risk/" + url.PathEscape(chain) + "/" + url.PathEscape(address) + "/history"
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, path, q, nil)
}

// ListFlaggedWallets lists wallets at or above the given score.
func (c *RiskClient) ListFlaggedWallets(ctx context.Context, minScore, limit int) (json.RawMessage, error) {
	q := url.Values{}
	if minScore > 0 {
		q.Set("minScore", strconv.Itoa(minScore))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	return c.doRequest(ctx, http.MethodGet, "/v1/admin/risk/wallets", q, nil)
}

// SetOverride pins a manual score and/or category on a wallet.
func (c *RiskClient) SetOverride(ctx context.Context, chain, address string, score *int, category string) (json.RawMessage, error) {
	body := map[string]any{
		"address": address,
		"chain":   chain,
	}
	if score != nil {
		body["riskScore"] = *score
	}
	if category != "" {
		body["riskCategory"] = category
	}
	return c.doRequest(ctx, http.MethodPatch, "/v1/admin/risk/wallets", nil, body)
}

// ClearOverride removes a manual override, returning the wallet to
// automated scoring.
func (c *RiskClient) ClearOverride(ctx context.Context, chain, address string) (json.RawMessage, error) {
	path := "/v1/admin/risk/wallets/" + url.PathEscape(chain) + "/" + url.PathEscape(address) + "/override"
	return c.doRequest(ctx, http.MethodDelete, path, nil, nil)
}
